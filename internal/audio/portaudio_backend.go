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

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements AudioBackend using the real PortAudio library
type PortAudioBackend struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Initialize initializes the PortAudio subsystem
func (p *PortAudioBackend) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem
func (p *PortAudioBackend) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	err := portaudio.Terminate()
	p.initialized = false
	return err
}

func (p *PortAudioBackend) isInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// CreateInputStream opens the default capture device
func (p *PortAudioBackend) CreateInputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	if !p.isInitialized() {
		return nil, ErrNotInitialized
	}

	inputBuffer := make([]float32, bufferSize*channels)

	stream, err := portaudio.OpenDefaultStream(
		channels, // input channels
		0,        // output channels
		sampleRate,
		bufferSize,
		inputBuffer,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	return &PortAudioStream{
		stream: stream,
		buffer: inputBuffer,
		input:  true,
	}, nil
}

// CreateOutputStream opens the default playback device
func (p *PortAudioBackend) CreateOutputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	if !p.isInitialized() {
		return nil, ErrNotInitialized
	}

	outputBuffer := make([]float32, bufferSize*channels)

	stream, err := portaudio.OpenDefaultStream(
		0,        // input channels
		channels, // output channels
		sampleRate,
		bufferSize,
		outputBuffer,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	return &PortAudioStream{
		stream: stream,
		buffer: outputBuffer,
		input:  false,
	}, nil
}

// PortAudioStream implements StreamInterface over a blocking PortAudio stream
type PortAudioStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buffer []float32
	input  bool
	active bool
}

// Start starts the audio stream
func (p *PortAudioStream) Start() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	if err := p.stream.Start(); err != nil {
		return err
	}
	p.mu.Lock()
	p.active = true
	p.mu.Unlock()
	return nil
}

// Stop stops the audio stream
func (p *PortAudioStream) Stop() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
	return p.stream.Stop()
}

// Close closes the audio stream
func (p *PortAudioStream) Close() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
	return p.stream.Close()
}

// Write copies data into the device buffer and blocks until it is queued.
// Short buffers are padded with silence.
func (p *PortAudioStream) Write(data []float32) error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	if p.input {
		return fmt.Errorf("cannot write to input stream: %w", ErrWrongDirection)
	}

	n := copy(p.buffer, data)
	for i := n; i < len(p.buffer); i++ {
		p.buffer[i] = 0
	}
	return p.stream.Write()
}

// Read blocks for one device buffer and copies it into data
func (p *PortAudioStream) Read(data []float32) error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	if !p.input {
		return fmt.Errorf("cannot read from output stream: %w", ErrWrongDirection)
	}

	if err := p.stream.Read(); err != nil {
		return err
	}

	copy(data, p.buffer)
	return nil
}

// IsActive returns true between Start and Stop
func (p *PortAudioStream) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
