/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderEvents struct {
	finished   chan bool
	encodeErrs chan error
}

func newRecorderEvents() *recorderEvents {
	return &recorderEvents{
		finished:   make(chan bool, 4),
		encodeErrs: make(chan error, 4),
	}
}

func (e *recorderEvents) RecorderDidFinish(_ *SoundRecorder, successfully bool) {
	e.finished <- successfully
}

func (e *recorderEvents) RecorderEncodeError(_ *SoundRecorder, err error) {
	e.encodeErrs <- err
}

func (e *recorderEvents) waitFinished(t *testing.T) bool {
	t.Helper()
	select {
	case ok := <-e.finished:
		return ok
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not finish")
		return false
	}
}

func testSettings() Settings {
	return Settings{SampleRate: 22050, Channels: 1, FramesPerBuffer: 256}
}

func newTestRecorder(t *testing.T, backend *MockAudioBackend) (*SoundRecorder, *recorderEvents) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.wav")
	rec, err := NewSoundRecorder(backend, path, testSettings(), nil)
	require.NoError(t, err)

	events := newRecorderEvents()
	rec.SetDelegate(events)
	return rec, events
}

func TestNewSoundRecorder_Validation(t *testing.T) {
	backend := NewMockAudioBackend()

	_, err := NewSoundRecorder(nil, "x.wav", testSettings(), nil)
	assert.Error(t, err, "nil backend")

	_, err = NewSoundRecorder(backend, "", testSettings(), nil)
	assert.Error(t, err, "empty path")

	_, err = NewSoundRecorder(backend, "x.wav", Settings{SampleRate: 22050, Channels: 3, FramesPerBuffer: 256}, nil)
	assert.ErrorIs(t, err, ErrInvalidSettings)

	backend.SetInitError(fmt.Errorf("no device"))
	_, err = NewSoundRecorder(backend, "x.wav", testSettings(), nil)
	assert.Error(t, err, "backend init failure")
}

func TestSoundRecorder_RecordForDuration(t *testing.T) {
	backend := NewMockAudioBackend()
	rec, events := newTestRecorder(t, backend)

	require.NoError(t, rec.RecordForDuration(100*time.Millisecond))
	assert.True(t, events.waitFinished(t), "should finish successfully")
	assert.False(t, rec.IsRecording())

	samples, rate, channels, err := ReadAllWAV(rec.Path())
	require.NoError(t, err)
	assert.Equal(t, 22050, rate)
	assert.Equal(t, 1, channels)
	assert.Len(t, samples, 2205, "should stop at exactly 0.1s of frames")
	assert.Equal(t, 0, backend.OpenStreams(), "input stream should be released")
}

func TestSoundRecorder_Stop(t *testing.T) {
	backend := NewMockAudioBackend()
	backend.SetSimulateRealTiming(true)
	rec, events := newTestRecorder(t, backend)

	require.NoError(t, rec.Record())
	assert.True(t, rec.IsRecording())
	assert.ErrorIs(t, rec.RecordForDuration(time.Second), ErrAlreadyRecording)

	time.Sleep(50 * time.Millisecond)
	rec.Stop()

	assert.False(t, rec.IsRecording())
	assert.True(t, events.waitFinished(t), "stop should report a successful finish")

	samples, _, _, err := ReadAllWAV(rec.Path())
	require.NoError(t, err)
	assert.NotEmpty(t, samples)

	// Stop on an idle recorder is a no-op
	rec.Stop()
}

func TestSoundRecorder_ReadFailure(t *testing.T) {
	backend := NewMockAudioBackend()
	backend.SetReadError(fmt.Errorf("device unplugged"))
	rec, events := newTestRecorder(t, backend)

	require.NoError(t, rec.RecordForDuration(time.Second))
	assert.False(t, events.waitFinished(t), "read failure should finish unsuccessfully")
	assert.Empty(t, events.encodeErrs)

	_, err := os.Stat(rec.Path())
	assert.NoError(t, err, "file should still be finalized")
}

func TestSoundRecorder_PrepareFailure(t *testing.T) {
	backend := NewMockAudioBackend()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	rec, err := NewSoundRecorder(backend, filepath.Join(blocker, "recording.wav"), testSettings(), nil)
	require.NoError(t, err)

	assert.Error(t, rec.Prepare())
	assert.Error(t, rec.RecordForDuration(time.Second))
	assert.False(t, rec.IsRecording())
	assert.Equal(t, 0, backend.OpenStreams(), "stream should be closed when the file cannot be created")
}

func TestSoundRecorder_Metering(t *testing.T) {
	backend := NewMockAudioBackend()
	backend.SetSimulateRealTiming(true)
	backend.SetInputGenerator(func(buf []float32) {
		for i := range buf {
			buf[i] = 0.5
		}
	})
	rec, events := newTestRecorder(t, backend)
	rec.SetMeteringEnabled(true)

	assert.Equal(t, SilenceDB, rec.AveragePower(), "idle recorder reports silence")

	require.NoError(t, rec.Record())
	assert.Eventually(t, func() bool {
		return rec.AveragePower() > -7 && rec.AveragePower() < -5
	}, 2*time.Second, 10*time.Millisecond)

	rec.Stop()
	events.waitFinished(t)
	assert.Equal(t, SilenceDB, rec.AveragePower())
}

func TestSoundRecorder_ReRecordOverwrites(t *testing.T) {
	backend := NewMockAudioBackend()
	rec, events := newTestRecorder(t, backend)

	require.NoError(t, rec.RecordForDuration(200*time.Millisecond))
	events.waitFinished(t)

	require.NoError(t, rec.RecordForDuration(50*time.Millisecond))
	events.waitFinished(t)

	samples, _, _, err := ReadAllWAV(rec.Path())
	require.NoError(t, err)
	assert.Len(t, samples, 1102)
}

func TestFrameLimit(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want int
	}{
		{name: "unlimited", d: 0, want: 0},
		{name: "negative", d: -time.Second, want: 0},
		{name: "sub_frame", d: time.Nanosecond, want: 1},
		{name: "tenth_second", d: 100 * time.Millisecond, want: 2205},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FrameLimit(tt.d, 22050))
		})
	}
}

func TestSoundRecorder_SubFrameDuration(t *testing.T) {
	backend := NewMockAudioBackend()
	rec, events := newTestRecorder(t, backend)

	require.NoError(t, rec.RecordForDuration(time.Microsecond))
	assert.True(t, events.waitFinished(t), "a tiny limit still stops the capture")

	samples, _, _, err := ReadAllWAV(rec.Path())
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestSoundRecorder_PlaybackMatchesCapture(t *testing.T) {
	backend := NewMockAudioBackend()
	rec, events := newTestRecorder(t, backend)

	require.NoError(t, rec.RecordForDuration(50*time.Millisecond))
	require.True(t, events.waitFinished(t))

	player, err := NewSoundPlayer(backend, rec.Path(), 256, nil)
	require.NoError(t, err)
	played := newPlayerEvents()
	player.SetDelegate(played)
	require.NoError(t, player.Play())

	select {
	case ok := <-played.finished:
		require.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("player did not finish")
	}

	var captured, output []float32
	for _, chunk := range backend.GetRecordedAudioData() {
		captured = append(captured, chunk...)
	}
	for _, chunk := range backend.GetPlaybackAudioData() {
		output = append(output, chunk...)
	}

	require.Len(t, output, 1102)
	require.GreaterOrEqual(t, len(captured), len(output), "the last capture buffer is truncated to the limit")
	for i, s := range output {
		assert.InDelta(t, captured[i], s, 1e-3, "sample %d", i)
	}
}
