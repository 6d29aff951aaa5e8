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
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

// PlayerDelegate receives SoundPlayer events. Callbacks run on the playback
// goroutine.
type PlayerDelegate interface {
	PlayerDidFinish(p *SoundPlayer, successfully bool)
	PlayerDecodeError(p *SoundPlayer, err error)
}

// SoundPlayer plays one WAV file through an output stream
type SoundPlayer struct {
	backend         AudioBackend
	path            string
	framesPerBuffer int
	logger          *zap.SugaredLogger

	mu       sync.Mutex
	delegate PlayerDelegate
	reader   *WAVReader
	stream   StreamInterface
	playing  bool
	metering bool
	power    float64
	stopCh   chan struct{}
	done     chan struct{}
}

// NewSoundPlayer opens path and validates its header. An unreadable or
// non-WAV file is reported here rather than through the delegate.
func NewSoundPlayer(backend AudioBackend, path string, framesPerBuffer int, logger *zap.SugaredLogger) (*SoundPlayer, error) {
	if backend == nil {
		return nil, fmt.Errorf("audio backend is nil")
	}
	if framesPerBuffer <= 0 {
		return nil, ErrInvalidSettings
	}
	if err := backend.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}

	reader, err := OpenWAV(path)
	if err != nil {
		return nil, err
	}

	return &SoundPlayer{
		backend:         backend,
		path:            path,
		framesPerBuffer: framesPerBuffer,
		logger:          logging.OrNop(logger),
		reader:          reader,
		power:           SilenceDB,
	}, nil
}

// SetDelegate sets the event receiver
func (p *SoundPlayer) SetDelegate(d PlayerDelegate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate = d
}

// SetMeteringEnabled turns AveragePower updates on or off
func (p *SoundPlayer) SetMeteringEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metering = enabled
	if !enabled {
		p.power = SilenceDB
	}
}

// Path returns the file being played
func (p *SoundPlayer) Path() string {
	return p.path
}

// Prepare opens the output stream at the file's rate and channel count
func (p *SoundPlayer) Prepare() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prepareLocked()
}

func (p *SoundPlayer) prepareLocked() error {
	if p.stream != nil {
		return nil
	}
	if p.reader == nil {
		return fmt.Errorf("player for %s already finished", p.path)
	}

	stream, err := p.backend.CreateOutputStream(float64(p.reader.SampleRate()), p.reader.Channels(), p.framesPerBuffer)
	if err != nil {
		return fmt.Errorf("failed to create output stream: %w", err)
	}
	p.stream = stream
	return nil
}

// Play starts playback from the beginning of the file. Calling Play on a
// playing player is a no-op.
func (p *SoundPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		return nil
	}
	if err := p.prepareLocked(); err != nil {
		return err
	}
	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	p.playing = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	go p.playbackLoop(p.stream, p.reader, p.stopCh, p.done)

	p.logger.Debugw("🔊 Player: started", "path", p.path)
	return nil
}

// Stop halts playback and waits for the stream to be released. The delegate
// is not notified.
func (p *SoundPlayer) Stop() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	stopCh, done := p.stopCh, p.done
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	p.mu.Unlock()

	<-done
}

// IsPlaying returns true while the playback loop runs
func (p *SoundPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// AveragePower returns the level of the last written buffer in dBFS
func (p *SoundPlayer) AveragePower() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.metering || !p.playing {
		return SilenceDB
	}
	return p.power
}

// Close releases the file when the player was never started
func (p *SoundPlayer) Close() error {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		_ = p.stream.Close()
		p.stream = nil
	}
	if p.reader != nil {
		err := p.reader.Close()
		p.reader = nil
		return err
	}
	return nil
}

func (p *SoundPlayer) playbackLoop(stream StreamInterface, reader *WAVReader, stopCh, done chan struct{}) {
	buffer := make([]float32, p.framesPerBuffer*reader.Channels())
	stopped := false
	successfully := true
	var decodeErr error

loop:
	for {
		select {
		case <-stopCh:
			stopped = true
			break loop
		default:
		}

		n, err := reader.Read(buffer)
		if errors.Is(err, io.EOF) {
			break loop
		}
		if err != nil {
			decodeErr = err
			successfully = false
			break loop
		}

		if err := stream.Write(buffer[:n]); err != nil {
			p.logger.Errorw("❌ Player: failed to write output", "error", err)
			successfully = false
			break loop
		}

		p.mu.Lock()
		if p.metering {
			p.power = AveragePower(buffer[:n])
		}
		p.mu.Unlock()
	}

	if err := stream.Stop(); err != nil {
		p.logger.Warnw("⚠️ Player: failed to stop output stream", "error", err)
	}
	if err := stream.Close(); err != nil {
		p.logger.Warnw("⚠️ Player: failed to close output stream", "error", err)
	}
	if err := reader.Close(); err != nil {
		p.logger.Warnw("⚠️ Player: failed to close file", "error", err)
	}

	p.mu.Lock()
	p.playing = false
	p.stream = nil
	p.reader = nil
	p.power = SilenceDB
	delegate := p.delegate
	p.mu.Unlock()
	close(done)

	p.logger.Debugw("🔊 Player: finished", "path", p.path, "stopped", stopped, "successfully", successfully)

	if stopped || delegate == nil {
		return
	}
	if decodeErr != nil {
		delegate.PlayerDecodeError(p, decodeErr)
	}
	delegate.PlayerDidFinish(p, successfully)
}
