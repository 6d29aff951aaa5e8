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

// Package export converts a capture file into the recording format
// expected by the upload queue.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/audio"
	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

// Status of an export session
type Status int

const (
	StatusWaiting Status = iota
	StatusExporting
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusExporting:
		return "exporting"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Preset is the output format of an export
type Preset struct {
	SampleRate int
	Channels   int
}

// PresetMediumQuality is the contribution upload format
var PresetMediumQuality = Preset{SampleRate: 22050, Channels: 1}

// ErrBusy is returned when Export is called on a session that already ran
var ErrBusy = errors.New("export session already started")

// writeChunk is the number of output samples written between cancellation checks
const writeChunk = 8192

// Session converts one source file into one destination file
type Session struct {
	src    string
	dst    string
	preset Preset
	logger *zap.SugaredLogger

	mu     sync.Mutex
	status Status
	err    error
}

// NewSession prepares an export of src into dst
func NewSession(src, dst string, preset Preset, logger *zap.SugaredLogger) *Session {
	return &Session{
		src:    src,
		dst:    dst,
		preset: preset,
		logger: logging.OrNop(logger),
	}
}

// Status returns the current state of the session
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the failure reason once the session has failed or been cancelled
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Source returns the input path
func (s *Session) Source() string { return s.src }

// Destination returns the output path
func (s *Session) Destination() string { return s.dst }

// ExportAsync runs Export on a new goroutine and calls completion when done.
// The returned channel closes after completion returns.
func (s *Session) ExportAsync(ctx context.Context, completion func(*Session)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Export(ctx)
		if completion != nil {
			completion(s)
		}
	}()
	return done
}

// Export converts the source synchronously. The destination is written to a
// temporary sibling and renamed into place, so a failed export never leaves
// a partial file behind.
func (s *Session) Export(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusWaiting {
		s.mu.Unlock()
		return ErrBusy
	}
	s.status = StatusExporting
	s.mu.Unlock()

	err := s.run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.status = StatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.status = StatusCancelled
		s.err = err
	default:
		s.status = StatusFailed
		s.err = err
	}
	return err
}

func (s *Session) run(ctx context.Context) error {
	if s.preset.SampleRate <= 0 || s.preset.Channels < 1 || s.preset.Channels > 2 {
		return fmt.Errorf("invalid export preset %+v: %w", s.preset, audio.ErrInvalidSettings)
	}

	samples, rate, channels, err := audio.ReadAllWAV(s.src)
	if err != nil {
		return fmt.Errorf("failed to read export source: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mono := MixToMono(samples, channels)
	converted, err := Resample(mono, rate, s.preset.SampleRate)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.preset.Channels == 2 {
		converted = Duplicate(converted)
	}

	tmp := filepath.Join(filepath.Dir(s.dst), "."+filepath.Base(s.dst)+".part")
	writer, err := audio.CreateWAV(tmp, s.preset.SampleRate, s.preset.Channels)
	if err != nil {
		return err
	}

	for start := 0; start < len(converted); start += writeChunk {
		if err := ctx.Err(); err != nil {
			_ = writer.Close()
			_ = os.Remove(tmp)
			return err
		}
		end := min(start+writeChunk, len(converted))
		if err := writer.Write(converted[start:end]); err != nil {
			_ = writer.Close()
			_ = os.Remove(tmp)
			return err
		}
	}

	if err := writer.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move export into place: %w", err)
	}

	s.logger.Debugw("📦 Export: converted", "src", s.src, "dst", s.dst,
		"from_rate", rate, "to_rate", s.preset.SampleRate, "samples", len(converted))
	return nil
}
