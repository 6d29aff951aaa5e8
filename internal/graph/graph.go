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

// Package graph implements the node-based capture engine used by the
// complex recording mechanism. An AudioGraph owns its own output file and is
// held by the controller as an explicit handle.
package graph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/audio"
	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

// OutputFileName is the capture file created inside Options.TempDir
const OutputFileName = "graph_capture.wav"

// ErrNotRecording is returned by Stop on an idle graph
var ErrNotRecording = errors.New("audio graph is not recording")

// Options configures an AudioGraph
type Options struct {
	TempDir         string
	SampleRate      float64
	Channels        int
	FramesPerBuffer int

	// GainDB is applied before metering and the file tap
	GainDB float64
}

// DefaultOptions captures 44.1kHz mono into the system temp directory
func DefaultOptions() Options {
	return Options{
		TempDir:         os.TempDir(),
		SampleRate:      44100,
		Channels:        1,
		FramesPerBuffer: 512,
	}
}

// Listener receives capture completion events on the capture goroutine
type Listener interface {
	GraphDidFinish(successfully bool)
	GraphEncodeError(err error)
}

// AudioGraph runs input -> DC block -> gain -> meter -> file
type AudioGraph struct {
	backend audio.AudioBackend
	opts    Options
	logger  *zap.SugaredLogger
	meter   *MeterNode
	nodes   []Node

	mu       sync.Mutex
	listener Listener
	ready    bool
	running  bool
	stopCh   chan struct{}
	done     chan struct{}
}

// New builds a graph; nothing touches the backend until Setup
func New(backend audio.AudioBackend, opts Options, logger *zap.SugaredLogger) *AudioGraph {
	meter := NewMeterNode()
	return &AudioGraph{
		backend: backend,
		opts:    opts,
		logger:  logging.OrNop(logger),
		meter:   meter,
		nodes:   []Node{NewDCBlockNode(), NewGainNodeDB(opts.GainDB), meter},
	}
}

// SetListener sets the completion receiver
func (g *AudioGraph) SetListener(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listener = l
}

// OutputPath is where the graph writes its capture
func (g *AudioGraph) OutputPath() string {
	return filepath.Join(g.opts.TempDir, OutputFileName)
}

// Setup initializes the backend and the temp directory. It is idempotent.
func (g *AudioGraph) Setup() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setupLocked()
}

func (g *AudioGraph) setupLocked() error {
	if g.ready {
		return nil
	}

	settings := audio.Settings{
		SampleRate:      g.opts.SampleRate,
		Channels:        g.opts.Channels,
		FramesPerBuffer: g.opts.FramesPerBuffer,
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if g.backend == nil {
		return fmt.Errorf("audio backend is nil")
	}
	if err := g.backend.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	if err := os.MkdirAll(g.opts.TempDir, 0o755); err != nil {
		return fmt.Errorf("failed to create graph directory: %w", err)
	}

	g.ready = true
	g.logger.Debugw("🎛️ Graph: set up", "rate", g.opts.SampleRate, "output", g.OutputPath())
	return nil
}

// Start begins a capture, setting the graph up first if needed. The capture
// stops itself after maxDuration; a non-positive maxDuration records until
// Stop.
func (g *AudioGraph) Start(maxDuration time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return audio.ErrAlreadyRecording
	}
	if err := g.setupLocked(); err != nil {
		return err
	}

	stream, err := g.backend.CreateInputStream(g.opts.SampleRate, g.opts.Channels, g.opts.FramesPerBuffer)
	if err != nil {
		return fmt.Errorf("failed to create graph input: %w", err)
	}

	writer, err := audio.CreateWAV(g.OutputPath(), int(g.opts.SampleRate), g.opts.Channels)
	if err != nil {
		_ = stream.Close()
		return err
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = writer.Close()
		return fmt.Errorf("failed to start graph input: %w", err)
	}

	for _, n := range g.nodes {
		n.Reset()
	}

	limit := audio.FrameLimit(maxDuration, g.opts.SampleRate)

	g.running = true
	g.stopCh = make(chan struct{})
	g.done = make(chan struct{})
	go g.run(stream, writer, limit, g.stopCh, g.done)

	g.logger.Infow("🎛️ Graph: capture started", "output", g.OutputPath())
	return nil
}

// Stop ends the capture. On return the output file is complete.
func (g *AudioGraph) Stop() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return ErrNotRecording
	}
	stopCh, done := g.stopCh, g.done
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	g.mu.Unlock()

	<-done
	return nil
}

// IsRecording returns true while a capture runs
func (g *AudioGraph) IsRecording() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// HasRecording returns true when a finished capture file exists
func (g *AudioGraph) HasRecording() bool {
	if g.IsRecording() {
		return false
	}
	_, err := os.Stat(g.OutputPath())
	return err == nil
}

// DeleteRecording stops any capture and removes the output file
func (g *AudioGraph) DeleteRecording() error {
	if g.IsRecording() {
		_ = g.Stop()
	}
	if err := os.Remove(g.OutputPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete graph capture: %w", err)
	}
	return nil
}

// Levels returns the meter's average and peak power in dBFS
func (g *AudioGraph) Levels() (average, peak float64) {
	return g.meter.Levels()
}

func (g *AudioGraph) run(stream audio.StreamInterface, writer *audio.WAVWriter, limit int, stopCh, done chan struct{}) {
	channels := g.opts.Channels
	buffer := make([]float32, g.opts.FramesPerBuffer*channels)
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
			g.logger.Errorw("❌ Graph: failed to read input", "error", err)
			successfully = false
			break loop
		}

		chunk := buffer
		if limit > 0 && captured+g.opts.FramesPerBuffer > limit {
			chunk = buffer[:(limit-captured)*channels]
		}

		for _, n := range g.nodes {
			n.Process(chunk, channels)
		}

		if err := writer.Write(chunk); err != nil {
			encodeErr = err
			successfully = false
			break loop
		}
		captured += len(chunk) / channels

		if limit > 0 && captured >= limit {
			g.logger.Infow("⏱️ Graph: max recording length reached", "frames", captured)
			break loop
		}
	}

	if err := stream.Stop(); err != nil {
		g.logger.Warnw("⚠️ Graph: failed to stop input", "error", err)
	}
	if err := stream.Close(); err != nil {
		g.logger.Warnw("⚠️ Graph: failed to close input", "error", err)
	}
	if err := writer.Close(); err != nil && encodeErr == nil {
		encodeErr = err
		successfully = false
	}
	g.meter.Reset()

	g.mu.Lock()
	g.running = false
	listener := g.listener
	g.mu.Unlock()
	close(done)

	g.logger.Infow("🎛️ Graph: capture finished", "frames", captured, "successfully", successfully)

	if listener == nil {
		return
	}
	if encodeErr != nil {
		listener.GraphEncodeError(encodeErr)
	}
	listener.GraphDidFinish(successfully)
}
