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

package export

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-speak-go/internal/audio"
)

func writeSource(t *testing.T, path string, rate, channels, frames int) {
	t.Helper()
	w, err := audio.CreateWAV(path, rate, channels)
	require.NoError(t, err)

	samples := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		v := float32(0.25 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
	}
	require.NoError(t, w.Write(samples))
	require.NoError(t, w.Close())
}

func TestSession_Export(t *testing.T) {
	tests := []struct {
		name       string
		srcRate    int
		srcChans   int
		frames     int
		preset     Preset
		wantFrames int
	}{
		{name: "downsample_mono", srcRate: 44100, srcChans: 1, frames: 44100, preset: PresetMediumQuality, wantFrames: 22050},
		{name: "downmix_stereo", srcRate: 44100, srcChans: 2, frames: 4410, preset: PresetMediumQuality, wantFrames: 2205},
		{name: "same_rate", srcRate: 22050, srcChans: 1, frames: 1000, preset: PresetMediumQuality, wantFrames: 1000},
		{name: "stereo_output", srcRate: 22050, srcChans: 1, frames: 500, preset: Preset{SampleRate: 22050, Channels: 2}, wantFrames: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "capture.wav")
			dst := filepath.Join(dir, "recording.wav")
			writeSource(t, src, tt.srcRate, tt.srcChans, tt.frames)

			s := NewSession(src, dst, tt.preset, nil)
			assert.Equal(t, StatusWaiting, s.Status())
			require.NoError(t, s.Export(context.Background()))
			assert.Equal(t, StatusCompleted, s.Status())
			assert.NoError(t, s.Err())

			samples, rate, channels, err := audio.ReadAllWAV(dst)
			require.NoError(t, err)
			assert.Equal(t, tt.preset.SampleRate, rate)
			assert.Equal(t, tt.preset.Channels, channels)
			if tt.srcRate == tt.preset.SampleRate {
				assert.Len(t, samples, tt.wantFrames*tt.preset.Channels)
			} else {
				assert.InEpsilon(t, tt.wantFrames*tt.preset.Channels, len(samples), 0.02)
			}

			_, err = os.Stat(filepath.Join(dir, ".recording.wav.part"))
			assert.True(t, os.IsNotExist(err), "temporary file should be gone")

			assert.ErrorIs(t, s.Export(context.Background()), ErrBusy)
		})
	}
}

func TestSession_Failures(t *testing.T) {
	t.Run("missing_source", func(t *testing.T) {
		dir := t.TempDir()
		dst := filepath.Join(dir, "recording.wav")
		s := NewSession(filepath.Join(dir, "absent.wav"), dst, PresetMediumQuality, nil)

		require.Error(t, s.Export(context.Background()))
		assert.Equal(t, StatusFailed, s.Status())
		assert.Error(t, s.Err())

		_, err := os.Stat(dst)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("bad_preset", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "capture.wav")
		writeSource(t, src, 44100, 1, 100)

		s := NewSession(src, filepath.Join(dir, "out.wav"), Preset{SampleRate: 0, Channels: 1}, nil)
		assert.ErrorIs(t, s.Export(context.Background()), audio.ErrInvalidSettings)
		assert.Equal(t, StatusFailed, s.Status())
	})

	t.Run("cancelled", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "capture.wav")
		dst := filepath.Join(dir, "recording.wav")
		writeSource(t, src, 44100, 1, 1000)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		s := NewSession(src, dst, PresetMediumQuality, nil)
		assert.ErrorIs(t, s.Export(ctx), context.Canceled)
		assert.Equal(t, StatusCancelled, s.Status())

		_, err := os.Stat(dst)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestSession_ExportAsync(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "capture.wav")
	dst := filepath.Join(dir, "recording.wav")
	writeSource(t, src, 44100, 1, 4410)

	completed := make(chan Status, 1)
	done := NewSession(src, dst, PresetMediumQuality, nil).ExportAsync(context.Background(), func(s *Session) {
		completed <- s.Status()
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("export did not finish")
	}
	assert.Equal(t, StatusCompleted, <-completed)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
	assert.Equal(t, "status(42)", Status(42).String())
}
