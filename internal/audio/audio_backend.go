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

// Package audio drives the capture and playback hardware behind the speak
// controller. SoundRecorder and SoundPlayer write and read the recording
// container; AudioBackend keeps them hardware independent.
package audio

// AudioBackend provides an abstraction layer for audio operations
// This enables dependency injection and makes testing hardware-independent
type AudioBackend interface {
	// Initialize the audio subsystem. Calling it twice is safe.
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// CreateInputStream creates a blocking input stream for recording
	CreateInputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error)

	// CreateOutputStream creates a blocking output stream for playback
	CreateOutputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error)
}

// StreamInterface abstracts audio stream operations
type StreamInterface interface {
	Start() error
	Stop() error
	Close() error

	// Write blocks until one buffer of interleaved samples has been queued
	Write(data []float32) error

	// Read blocks until one buffer of interleaved samples is available
	Read(data []float32) error

	// IsActive returns true between Start and Stop
	IsActive() bool
}

// Settings describes the capture format of a recording
type Settings struct {
	SampleRate      float64
	Channels        int
	FramesPerBuffer int
}

// DefaultSettings matches the speech contribution format: 22.05kHz mono
func DefaultSettings() Settings {
	return Settings{
		SampleRate:      22050.0,
		Channels:        1,
		FramesPerBuffer: 1024,
	}
}

// Validate reports whether the settings can open a stream
func (s Settings) Validate() error {
	if s.SampleRate <= 0 {
		return ErrInvalidSettings
	}
	if s.Channels < 1 || s.Channels > 2 {
		return ErrInvalidSettings
	}
	if s.FramesPerBuffer <= 0 {
		return ErrInvalidSettings
	}
	return nil
}
