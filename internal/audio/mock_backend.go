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
	"math"
	"sync"
	"time"
)

// MockAudioBackend implements AudioBackend for testing without hardware dependencies
type MockAudioBackend struct {
	mu                 sync.Mutex
	initialized        bool
	streams            map[string]*MockStream
	streamCounter      int
	initError          error
	terminateError     error
	createStreamError  error
	readError          error
	writeError         error
	simulateRealTiming bool
	generator          func([]float32)
	recordedAudioData  [][]float32
	playbackAudioData  [][]float32
}

// NewMockAudioBackend creates a new mock audio backend. Timing simulation is
// off so capture loops run as fast as the test drives them.
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{
		streams:           make(map[string]*MockStream),
		recordedAudioData: make([][]float32, 0),
		playbackAudioData: make([][]float32, 0),
	}
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetCreateStreamError configures the backend to return an error on stream creation
func (m *MockAudioBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// SetReadError makes every stream created afterwards fail on Read()
func (m *MockAudioBackend) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readError = err
}

// SetWriteError makes every stream created afterwards fail on Write()
func (m *MockAudioBackend) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeError = err
}

// SetSimulateRealTiming controls whether Read/Write sleep for the buffer duration
func (m *MockAudioBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// SetInputGenerator sets the sample source for input streams created afterwards
func (m *MockAudioBackend) SetInputGenerator(generator func([]float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generator = generator
}

// GetRecordedAudioData returns all audio data that was "recorded"
func (m *MockAudioBackend) GetRecordedAudioData() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(m.recordedAudioData))
	copy(result, m.recordedAudioData)
	return result
}

// GetPlaybackAudioData returns all audio data that was "played back"
func (m *MockAudioBackend) GetPlaybackAudioData() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(m.playbackAudioData))
	copy(result, m.playbackAudioData)
	return result
}

// PlaybackSampleCount returns the number of samples written to output streams
func (m *MockAudioBackend) PlaybackSampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, chunk := range m.playbackAudioData {
		total += len(chunk)
	}
	return total
}

// OpenStreams returns the number of streams that have not been closed
func (m *MockAudioBackend) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// IsInitialized reports whether Initialize succeeded and Terminate has not run
func (m *MockAudioBackend) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate closes every open stream and marks the backend uninitialized
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()
	if m.terminateError != nil {
		m.mu.Unlock()
		return m.terminateError
	}

	streams := make([]*MockStream, 0, len(m.streams))
	for _, stream := range m.streams {
		streams = append(streams, stream)
	}
	m.mu.Unlock()

	// Stream Close re-enters the backend lock
	for _, stream := range streams {
		_ = stream.Stop()
		_ = stream.Close()
	}

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// CreateInputStream creates a mock input stream
func (m *MockAudioBackend) CreateInputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	return m.createStream("input", true, sampleRate, channels, bufferSize)
}

// CreateOutputStream creates a mock output stream
func (m *MockAudioBackend) CreateOutputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	return m.createStream("output", false, sampleRate, channels, bufferSize)
}

func (m *MockAudioBackend) createStream(prefix string, input bool, sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}

	if m.createStreamError != nil {
		return nil, m.createStreamError
	}

	streamID := fmt.Sprintf("%s_%d", prefix, m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:                 streamID,
		backend:            m,
		sampleRate:         sampleRate,
		channels:           channels,
		bufferSize:         bufferSize,
		isInput:            input,
		isOpen:             true,
		simulateRealTiming: m.simulateRealTiming,
		readError:          m.readError,
		writeError:         m.writeError,
		audioDataGenerator: m.generator,
	}

	m.streams[streamID] = stream
	return stream, nil
}

// MockStream implements StreamInterface for testing
type MockStream struct {
	mu                 sync.Mutex
	id                 string
	backend            *MockAudioBackend
	sampleRate         float64
	channels           int
	bufferSize         int
	isInput            bool
	isOpen             bool
	isActive           bool
	simulateRealTiming bool
	phase              float64
	startError         error
	stopError          error
	closeError         error
	writeError         error
	readError          error
	audioDataGenerator func([]float32)
}

// SetStartError configures the stream to return an error on Start()
func (m *MockStream) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// SetWriteError configures the stream to return an error on Write()
func (m *MockStream) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeError = err
}

// SetReadError configures the stream to return an error on Read()
func (m *MockStream) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readError = err
}

// SetAudioDataGenerator sets a function to generate mock audio input data
func (m *MockStream) SetAudioDataGenerator(generator func([]float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioDataGenerator = generator
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startError != nil {
		return m.startError
	}

	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}

	if m.isActive {
		return fmt.Errorf("stream already active")
	}

	m.isActive = true
	return nil
}

// Stop stops the mock stream
func (m *MockStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopError != nil {
		return m.stopError
	}

	m.isActive = false
	return nil
}

// Close closes the mock stream
func (m *MockStream) Close() error {
	m.mu.Lock()
	if m.closeError != nil {
		m.mu.Unlock()
		return m.closeError
	}

	if !m.isOpen {
		m.mu.Unlock()
		return nil
	}

	m.isOpen = false
	m.isActive = false
	m.mu.Unlock()

	m.backend.mu.Lock()
	delete(m.backend.streams, m.id)
	m.backend.mu.Unlock()
	return nil
}

// Write records the audio data as "played back"
func (m *MockStream) Write(data []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeError != nil {
		return m.writeError
	}

	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}

	if m.isInput {
		return fmt.Errorf("cannot write to input stream: %w", ErrWrongDirection)
	}

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	m.backend.mu.Lock()
	m.backend.playbackAudioData = append(m.backend.playbackAudioData, dataCopy)
	m.backend.mu.Unlock()

	if m.simulateRealTiming {
		time.Sleep(m.bufferDuration(len(data)))
	}

	return nil
}

// Read fills data from the generator, or a 440 Hz tone when none is set
func (m *MockStream) Read(data []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readError != nil {
		return m.readError
	}

	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}

	if !m.isInput {
		return fmt.Errorf("cannot read from output stream: %w", ErrWrongDirection)
	}

	if m.audioDataGenerator != nil {
		m.audioDataGenerator(data)
	} else {
		step := 2 * math.Pi * 440 / m.sampleRate
		for i := range data {
			data[i] = float32(0.1 * math.Sin(m.phase))
			m.phase += step
		}
	}

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	m.backend.mu.Lock()
	m.backend.recordedAudioData = append(m.backend.recordedAudioData, dataCopy)
	m.backend.mu.Unlock()

	if m.simulateRealTiming {
		time.Sleep(m.bufferDuration(len(data)))
	}

	return nil
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}

func (m *MockStream) bufferDuration(samples int) time.Duration {
	channels := m.channels
	if channels < 1 {
		channels = 1
	}
	frames := float64(samples) / float64(channels)
	return time.Duration(frames / m.sampleRate * float64(time.Second))
}
