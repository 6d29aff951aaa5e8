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

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/alert"
	"github.com/loqalabs/loqa-speak-go/internal/audio"
	"github.com/loqalabs/loqa-speak-go/internal/config"
	"github.com/loqalabs/loqa-speak-go/internal/graph"
	"github.com/loqalabs/loqa-speak-go/internal/location"
	"github.com/loqalabs/loqa-speak-go/internal/media"
	"github.com/loqalabs/loqa-speak-go/internal/nats"
	"github.com/loqalabs/loqa-speak-go/internal/speak"
	"github.com/loqalabs/loqa-speak-go/internal/transport"
)

// App wires the controller to its collaborators and the console
type App struct {
	ctrl       *speak.Controller
	queue      *media.Queue
	tracker    *location.Tracker
	uploader   *transport.UploadClient
	subscriber *nats.CommandSubscriber
	logger     *zap.SugaredLogger

	stopHeartbeat context.CancelFunc
	heartbeatDone chan struct{}
	closeOnce     sync.Once
}

func newApp(cfg *config.AppConfig, lookup config.Lookup, backend audio.AudioBackend, logger *zap.SugaredLogger) (*App, error) {
	queue, err := media.NewQueue(cfg.QueueFile, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		queue:   queue,
		tracker: location.NewTracker(logger),
		logger:  logger,
	}

	var conn nats.SpeakNATSConnection
	if cfg.NATSURL != "" {
		conn, err = nats.Connect(cfg.NATSURL, cfg.DeviceID, logger)
		if err != nil {
			logger.Warnf("⚠️  Continuing without NATS: %v", err)
			conn = nil
		}
	}

	opts := speak.Options{
		Config:     lookup,
		Backend:    backend,
		UseComplex: cfg.UseComplex,
		TempDir:    cfg.TempDir,
		Settings: audio.Settings{
			SampleRate:      float64(cfg.SampleRate),
			Channels:        1,
			FramesPerBuffer: audio.DefaultSettings().FramesPerBuffer,
		},
		Queue:    queue,
		Location: app.tracker,
		Server:   nats.NewServerLogger(conn, cfg.DeviceID, logger),
		Alerts:   alert.NewPresenter(logger),
		Delegate: &consoleDelegate{logger: logger},
		Logger:   logger,
	}
	if cfg.UseComplex {
		graphOpts := graph.DefaultOptions()
		graphOpts.TempDir = cfg.TempDir
		graphOpts.SampleRate = float64(cfg.GraphSampleRate)
		opts.Graph = graph.New(backend, graphOpts, logger)
	}

	app.ctrl, err = speak.New(opts)
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}

	if conn != nil {
		app.subscriber = nats.NewCommandSubscriber(conn, cfg.DeviceID, app.ctrl, logger)
		if err := app.subscriber.Start(); err != nil {
			logger.Warnf("⚠️  Remote commands disabled: %v", err)
		}
	}

	if cfg.HubURL != "" {
		app.uploader = transport.NewUploadClient(cfg.HubURL, cfg.DeviceID, logger)

		ctx, cancel := context.WithCancel(context.Background())
		app.stopHeartbeat = cancel
		app.heartbeatDone = make(chan struct{})
		go app.heartbeat(ctx, time.Duration(cfg.HeartbeatInterval*float64(time.Second)))
	}

	app.ctrl.PreflightRecording()
	return app, nil
}

// Run executes console commands from in until quit, EOF or ctx is done
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		readErr <- scanLines(done, in, lines)
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if quit := a.Execute(ctx, line, out); quit {
				return nil
			}
		}
	}
}

// scanLines forwards lines from in until EOF or until done closes
func scanLines(done <-chan struct{}, in io.Reader, lines chan<- string) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return nil
		}
	}
	return scanner.Err()
}

// Execute runs a single console command and reports whether to quit
func (a *App) Execute(ctx context.Context, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	args := fields[1:]

	switch strings.ToLower(fields[0]) {
	case "record":
		if !a.ctrl.CanRecord() {
			fmt.Fprintln(out, "recording is disabled")
			return false
		}
		a.ctrl.StartRecording()
	case "stop":
		a.ctrl.StopRecording()
	case "play":
		a.ctrl.StartPlayback()
	case "stop-play":
		a.ctrl.StopPlayback()
	case "delete":
		a.ctrl.DeleteRecording()
	case "add":
		path, ok := a.ctrl.AddRecording(strings.Join(args, " "))
		if !ok {
			fmt.Fprintln(out, "no recording to add")
			return false
		}
		fmt.Fprintf(out, "queued %s\n", path)
	case "describe":
		if len(args) < 1 {
			fmt.Fprintln(out, "usage: describe <path> <description>")
			return false
		}
		a.ctrl.SetRecordingDescription(args[0], strings.Join(args[1:], " "))
	case "remove":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: remove <path>")
			return false
		}
		a.ctrl.RemoveRecording(args[0])
	case "upload":
		a.upload(ctx, out)
	case "status":
		a.printStatus(out)
	case "help":
		printHelp(out)
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(out, "unknown command %q (try help)\n", fields[0])
	}
	return false
}

func (a *App) upload(ctx context.Context, out io.Writer) {
	if a.uploader == nil {
		fmt.Fprintln(out, "no hub configured")
		return
	}
	if err := a.uploader.Handshake(ctx); err != nil {
		fmt.Fprintf(out, "hub unavailable: %v\n", err)
		return
	}
	n, err := a.queue.Flush(ctx, a.uploader)
	if err != nil {
		fmt.Fprintf(out, "uploaded %d, %d left: %v\n", n, a.queue.Len(), err)
		return
	}
	fmt.Fprintf(out, "uploaded %d\n", n)
}

func (a *App) printStatus(out io.Writer) {
	fmt.Fprintf(out, "recording=%t playing=%t has_recording=%t queued=%d level=%.1fdB location=%t\n",
		a.ctrl.IsRecording(),
		a.ctrl.IsPlayingBack(),
		a.ctrl.HasRecording(),
		a.queue.Len(),
		a.ctrl.AudioLevel(),
		a.tracker.IsUpdating(),
	)
	for _, e := range a.queue.Entries() {
		fmt.Fprintf(out, "  %s %s %q\n", e.Type, e.Path, e.Description)
	}
}

// heartbeat keeps the hub informed while it is configured
func (a *App) heartbeat(ctx context.Context, interval time.Duration) {
	defer close(a.heartbeatDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.uploader.Heartbeat(ctx); err != nil && ctx.Err() == nil {
				a.logger.Debugf("💓 Heartbeat failed: %v", err)
			}
		}
	}
}

// Close shuts down remote commands, the hub heartbeat and the controller.
// It is safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.stopHeartbeat != nil {
			a.stopHeartbeat()
			<-a.heartbeatDone
		}
		if a.subscriber != nil {
			a.subscriber.Close()
		}
		a.tracker.StopUpdatingLocation()
		if err := a.ctrl.Close(); err != nil {
			a.logger.Warnf("⚠️  %v", err)
		}
	})
}

type consoleDelegate struct {
	logger *zap.SugaredLogger
}

func (d *consoleDelegate) RecordingFinished(successfully bool) {
	d.logger.Infof("⏹️  Recording finished (successfully: %t)", successfully)
}

func (d *consoleDelegate) PlaybackFinished(successfully bool) {
	d.logger.Infof("⏹️  Playback finished (successfully: %t)", successfully)
}

func printBanner(out io.Writer, cfg *config.AppConfig) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "🎤 Loqa Speak - Contribution Recorder")
	fmt.Fprintln(out, "=====================================")
	fmt.Fprintf(out, "📁 Recording file: %s\n", cfg.RecordedFileName)
	fmt.Fprintf(out, "⏱️  Max length: %.0fs\n", cfg.MaxRecordingLength)
	fmt.Fprintln(out)
	printHelp(out)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  record | stop | play | stop-play | delete")
	fmt.Fprintln(out, "  add [description]")
	fmt.Fprintln(out, "  describe <path> <description>")
	fmt.Fprintln(out, "  remove <path>")
	fmt.Fprintln(out, "  upload | status | help | quit")
}
