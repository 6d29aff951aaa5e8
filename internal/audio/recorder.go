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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

// RecorderDelegate receives SoundRecorder completion events. Callbacks run on
// the capture goroutine.
type RecorderDelegate interface {
	RecorderDidFinish(r *SoundRecorder, successfully bool)
	RecorderEncodeError(r *SoundRecorder, err error)
}

// SoundRecorder captures one input stream into a WAV file
type SoundRecorder struct {
	backend  AudioBackend
	path     string
	settings Settings
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	delegate RecorderDelegate
	stream   StreamInterface
	writer   *WAVWriter
	prepared bool
	running  bool
	metering bool
	power    float64
	stopCh   chan struct{}
	done     chan struct{}
}

// NewSoundRecorder initializes the backend and returns a recorder for path
func NewSoundRecorder(backend AudioBackend, path string, settings Settings, logger *zap.SugaredLogger) (*SoundRecorder, error) {
	if backend == nil {
		return nil, fmt.Errorf("audio backend is nil")
	}
	if path == "" {
		return nil, fmt.Errorf("recording path is empty")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := backend.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}

	return &SoundRecorder{
		backend:  backend,
		path:     path,
		settings: settings,
		logger:   logging.OrNop(logger),
		power:    SilenceDB,
	}, nil
}

// SetDelegate sets the completion receiver
func (r *SoundRecorder) SetDelegate(d RecorderDelegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegate = d
}

// SetMeteringEnabled turns AveragePower updates on or off
func (r *SoundRecorder) SetMeteringEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metering = enabled
	if !enabled {
		r.power = SilenceDB
	}
}

// Path returns the file being recorded
func (r *SoundRecorder) Path() string {
	return r.path
}

// Prepare creates the output file and opens the input stream
func (r *SoundRecorder) Prepare() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prepareLocked()
}

func (r *SoundRecorder) prepareLocked() error {
	if r.prepared {
		return nil
	}

	stream, err := r.backend.CreateInputStream(r.settings.SampleRate, r.settings.Channels, r.settings.FramesPerBuffer)
	if err != nil {
		return fmt.Errorf("failed to create input stream: %w", err)
	}

	writer, err := CreateWAV(r.path, int(r.settings.SampleRate), r.settings.Channels)
	if err != nil {
		_ = stream.Close()
		return err
	}

	r.stream = stream
	r.writer = writer
	r.prepared = true
	return nil
}

// Record captures until Stop is called
func (r *SoundRecorder) Record() error {
	return r.RecordForDuration(0)
}

// RecordForDuration captures until d worth of frames has been written or
// Stop is called. A non-positive d records until Stop.
func (r *SoundRecorder) RecordForDuration(d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRecording
	}
	if err := r.prepareLocked(); err != nil {
		return err
	}
	if err := r.stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	limit := FrameLimit(d, r.settings.SampleRate)

	r.running = true
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	go r.captureLoop(r.stream, r.writer, limit, r.stopCh, r.done)

	r.logger.Debugw("🎤 Recorder: started", "path", r.path, "limit_frames", limit)
	return nil
}

// FrameLimit converts a capture duration into a frame count. A non-positive
// d yields 0, meaning no limit; any positive d yields at least one frame.
func FrameLimit(d time.Duration, sampleRate float64) int {
	if d <= 0 {
		return 0
	}
	return max(1, int(d.Seconds()*sampleRate))
}

// Stop ends the capture and waits for the file to be finalized. The
// delegate receives RecorderDidFinish.
func (r *SoundRecorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh, done := r.stopCh, r.done
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	r.mu.Unlock()

	<-done
}

// IsRecording returns true while the capture loop runs
func (r *SoundRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// AveragePower returns the level of the last captured buffer in dBFS
func (r *SoundRecorder) AveragePower() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.metering || !r.running {
		return SilenceDB
	}
	return r.power
}

func (r *SoundRecorder) captureLoop(stream StreamInterface, writer *WAVWriter, limit int, stopCh, done chan struct{}) {
	channels := r.settings.Channels
	buffer := make([]float32, r.settings.FramesPerBuffer*channels)
	captured := 0
	successfully := true
	var encodeErr error

loop:
	for {
		select {
		case <-stopCh:
			break loop
		default:
		}

		if err := stream.Read(buffer); err != nil {
			r.logger.Errorw("❌ Recorder: failed to read input", "error", err)
			successfully = false
			break loop
		}

		chunk := buffer
		if limit > 0 && captured+r.settings.FramesPerBuffer > limit {
			chunk = buffer[:(limit-captured)*channels]
		}

		if err := writer.Write(chunk); err != nil {
			encodeErr = err
			successfully = false
			break loop
		}
		captured += len(chunk) / channels

		r.mu.Lock()
		if r.metering {
			r.power = AveragePower(chunk)
		}
		r.mu.Unlock()

		if limit > 0 && captured >= limit {
			break loop
		}
	}

	if err := stream.Stop(); err != nil {
		r.logger.Warnw("⚠️ Recorder: failed to stop input stream", "error", err)
	}
	if err := stream.Close(); err != nil {
		r.logger.Warnw("⚠️ Recorder: failed to close input stream", "error", err)
	}
	if err := writer.Close(); err != nil && encodeErr == nil {
		encodeErr = err
		successfully = false
	}

	r.mu.Lock()
	r.running = false
	r.prepared = false
	r.stream = nil
	r.writer = nil
	r.power = SilenceDB
	delegate := r.delegate
	r.mu.Unlock()
	close(done)

	r.logger.Debugw("🎤 Recorder: finished", "path", r.path, "frames", captured, "successfully", successfully)

	if delegate == nil {
		return
	}
	if encodeErr != nil {
		delegate.RecorderEncodeError(r, encodeErr)
	}
	delegate.RecorderDidFinish(r, successfully)
}
