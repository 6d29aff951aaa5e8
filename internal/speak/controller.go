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

// Package speak sequences recording, playback and queueing of a single
// contribution. Two interchangeable capture mechanisms exist: the simple
// one drives a SoundRecorder and SoundPlayer against one well-known file,
// the complex one drives an AudioGraph and converts its capture into that
// file once recording stops.
package speak

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-speak-go/internal/alert"
	"github.com/loqalabs/loqa-speak-go/internal/audio"
	"github.com/loqalabs/loqa-speak-go/internal/config"
	"github.com/loqalabs/loqa-speak-go/internal/export"
	"github.com/loqalabs/loqa-speak-go/internal/graph"
	"github.com/loqalabs/loqa-speak-go/internal/logging"
	"github.com/loqalabs/loqa-speak-go/internal/media"
)

// Events reported to the server
const (
	EventStartRecord = "start_record"
	EventStopRecord  = "stop_record"
)

// Alert titles shown for media errors
const (
	AlertEncodeError = "Audio Encode Error"
	AlertDecodeError = "Audio Decode Error"
)

// Delegate receives completion events. Callbacks arrive on capture and
// playback goroutines.
type Delegate interface {
	RecordingFinished(successfully bool)
	PlaybackFinished(successfully bool)
}

// Graph is the capture engine of the complex mechanism
type Graph interface {
	SetListener(l graph.Listener)
	Setup() error
	Start(maxDuration time.Duration) error
	Stop() error
	IsRecording() bool
	HasRecording() bool
	DeleteRecording() error
	OutputPath() string
	Levels() (average, peak float64)
}

// MediaQueue receives recordings that are kept for upload
type MediaQueue interface {
	AddMedia(t media.Type, path, description string) error
	SetMediaDescription(t media.Type, path, description string) error
	RemoveMedia(t media.Type, path string) error
}

// LocationTracker is started when geotagging is enabled
type LocationTracker interface {
	StartUpdatingLocation()
}

// ServerLogger reports usage events
type ServerLogger interface {
	LogToServer(event string)
}

// AlertPresenter shows blocking error alerts
type AlertPresenter interface {
	AlertOK(title, message string)
}

// Options wires a Controller. Config, Backend and Queue are required; Graph
// is required when UseComplex is set.
type Options struct {
	Config     config.Lookup
	Backend    audio.AudioBackend
	Graph      Graph
	UseComplex bool

	// TempDir holds the recording file and queued recordings
	TempDir string

	// Settings of the simple recorder and of converted complex captures
	Settings audio.Settings

	Queue    MediaQueue
	Location LocationTracker
	Server   ServerLogger
	Alerts   AlertPresenter
	Delegate Delegate
	Logger   *zap.SugaredLogger
}

// Controller is the recording surface exposed to the application. All
// operations act on implicit shared state, the recording file, and report
// failures only through logs and alerts.
type Controller struct {
	cfg        config.Lookup
	backend    audio.AudioBackend
	graph      Graph
	useComplex bool
	tempDir    string
	settings   audio.Settings
	queue      MediaQueue
	location   LocationTracker
	server     ServerLogger
	alerts     AlertPresenter
	logger     *zap.SugaredLogger

	ctx     context.Context
	cancel  context.CancelFunc
	exports *errgroup.Group

	mu       sync.Mutex
	delegate Delegate
	recorder *audio.SoundRecorder
	player   *audio.SoundPlayer

	// graphFinished closes once the running graph capture has been handed
	// to the exporter
	graphFinished chan struct{}
}

// New validates opts and returns an idle controller
func New(opts Options) (*Controller, error) {
	if opts.Config == nil {
		return nil, errors.New("config lookup is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("audio backend is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("media queue is required")
	}
	if opts.UseComplex && opts.Graph == nil {
		return nil, errors.New("complex recording requires an audio graph")
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Settings == (audio.Settings{}) {
		opts.Settings = audio.DefaultSettings()
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}

	logger := logging.OrNop(opts.Logger)
	if opts.Location == nil {
		opts.Location = nopTracker{}
	}
	if opts.Server == nil {
		opts.Server = nopServer{}
	}
	if opts.Alerts == nil {
		opts.Alerts = alert.NewPresenter(logger)
	}

	// exports share one destination file, so they run one at a time
	exports := &errgroup.Group{}
	exports.SetLimit(1)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:        opts.Config,
		backend:    opts.Backend,
		graph:      opts.Graph,
		useComplex: opts.UseComplex,
		tempDir:    opts.TempDir,
		settings:   opts.Settings,
		queue:      opts.Queue,
		location:   opts.Location,
		server:     opts.Server,
		alerts:     opts.Alerts,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		exports:    exports,
		delegate:   opts.Delegate,
	}
	if c.graph != nil {
		c.graph.SetListener(c)
	}
	return c, nil
}

// SetDelegate replaces the completion receiver
func (c *Controller) SetDelegate(d Delegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

// UsesComplexMechanism reports which capture mechanism is active
func (c *Controller) UsesComplexMechanism() bool {
	return c.useComplex
}

// SoundFilePath is the well-known recording file
func (c *Controller) SoundFilePath() string {
	return filepath.Join(c.tempDir, c.cfg.GetString(config.KeyRecordedFileName))
}

// CanRecord reports whether recording is enabled
func (c *Controller) CanRecord() bool {
	return c.cfg.GetBool(config.KeySpeakEnabled)
}

// PreflightRecording prepares the complex mechanism ahead of the first
// recording
func (c *Controller) PreflightRecording() {
	if !c.CanRecord() || !c.useComplex {
		return
	}
	if err := c.graph.Setup(); err != nil {
		c.logger.Errorf("❌ Failed to set up audio graph: %v", err)
	}
}

// StartRecording begins a new recording, replacing any previous one
func (c *Controller) StartRecording() {
	if !c.CanRecord() {
		return
	}

	if c.cfg.GetBool(config.KeyGeoSpeakEnabled) {
		c.location.StartUpdatingLocation()
	}

	if c.useComplex {
		c.startGraph()
		return
	}

	c.mu.Lock()
	previous := c.recorder
	c.recorder = nil
	c.mu.Unlock()

	if previous != nil {
		previous.SetDelegate(nil)
		previous.Stop()
	}

	path := c.SoundFilePath()
	recorder, err := audio.NewSoundRecorder(c.backend, path, c.settings, c.logger)
	if err != nil {
		c.logger.Errorf("❌ Failed to create recorder for %s: %v", path, err)
		return
	}
	recorder.SetDelegate(c)
	if err := recorder.Prepare(); err != nil {
		c.logger.Errorf("❌ Failed to prepare recorder: %v", err)
		return
	}
	recorder.SetMeteringEnabled(true)

	c.mu.Lock()
	c.recorder = recorder
	c.mu.Unlock()

	maxLength := c.maxRecordingLength()
	if err := recorder.RecordForDuration(maxLength); err != nil {
		c.logger.Errorf("❌ Failed to start recording: %v", err)
		return
	}

	c.logger.Infof("🎤 Recording to %s (max %s)", path, maxLength)
	c.server.LogToServer(EventStartRecord)
}

// StopRecording ends the current recording. In complex mode the capture is
// converted into the recording file in the background; Wait blocks until it
// is in place.
func (c *Controller) StopRecording() {
	if c.useComplex {
		c.stopGraph()
		return
	}

	c.mu.Lock()
	recorder := c.recorder
	c.mu.Unlock()

	if recorder == nil {
		return
	}
	if recorder.IsRecording() {
		recorder.Stop()
		c.server.LogToServer(EventStopRecord)
	}
}

func (c *Controller) maxRecordingLength() time.Duration {
	return time.Duration(c.cfg.GetFloat64(config.KeyMaxRecordingLength) * float64(time.Second))
}

func (c *Controller) startGraph() {
	if c.graph.IsRecording() {
		c.logger.Warnf("⚠️  %v", audio.ErrAlreadyRecording)
		return
	}

	// a capture that just ended may still be on its way to the exporter
	c.mu.Lock()
	previous := c.graphFinished
	c.mu.Unlock()
	if previous != nil {
		<-previous
	}

	finished := make(chan struct{})
	c.mu.Lock()
	c.graphFinished = finished
	c.mu.Unlock()

	if err := c.graph.Start(c.maxRecordingLength()); err != nil {
		c.mu.Lock()
		c.graphFinished = nil
		c.mu.Unlock()
		c.logger.Errorf("❌ Failed to start audio graph: %v", err)
		return
	}
	c.server.LogToServer(EventStartRecord)
}

func (c *Controller) stopGraph() {
	if !c.graph.IsRecording() {
		return
	}

	c.mu.Lock()
	finished := c.graphFinished
	c.mu.Unlock()

	if err := c.graph.Stop(); err != nil && !errors.Is(err, graph.ErrNotRecording) {
		c.logger.Warnf("⚠️  Failed to stop audio graph: %v", err)
	}
	if finished != nil {
		<-finished
	}
	c.server.LogToServer(EventStopRecord)
}

// exportGraphCapture replaces the recording file with a converted copy of
// the graph's capture
func (c *Controller) exportGraphCapture() {
	dst := c.SoundFilePath()
	preset := export.Preset{SampleRate: int(c.settings.SampleRate), Channels: c.settings.Channels}
	session := export.NewSession(c.graph.OutputPath(), dst, preset, c.logger)

	c.exports.Go(func() error {
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			c.logger.Warnf("⚠️  Failed to remove previous recording %s: %v", dst, err)
		}
		<-session.ExportAsync(c.ctx, c.exportFinished)
		return nil
	})
}

func (c *Controller) exportFinished(session *export.Session) {
	switch session.Status() {
	case export.StatusCompleted:
		c.logger.Infof("✅ Export of %s completed", session.Destination())
	default:
		c.logger.Errorf("❌ Export of %s %s: %v", session.Source(), session.Status(), session.Err())
	}
}

// settleGraph waits until a finished capture has been converted into the
// recording file. It returns false while a capture is still running.
func (c *Controller) settleGraph() bool {
	if c.graph.IsRecording() {
		return false
	}

	// the graph reports idle before its listener has queued the export
	c.mu.Lock()
	finished := c.graphFinished
	c.mu.Unlock()
	if finished != nil {
		<-finished
	}
	c.Wait()
	return true
}

// StartPlayback plays the current recording from the beginning
func (c *Controller) StartPlayback() {
	var path string
	if c.useComplex {
		path = c.graph.OutputPath()
	} else {
		if !c.HasRecording() {
			return
		}
		path = c.SoundFilePath()
	}

	c.mu.Lock()
	previous := c.player
	c.player = nil
	c.mu.Unlock()

	if previous != nil {
		previous.SetDelegate(nil)
		if err := previous.Close(); err != nil {
			c.logger.Warnf("⚠️  Failed to release previous player: %v", err)
		}
	}

	player, err := audio.NewSoundPlayer(c.backend, path, c.settings.FramesPerBuffer, c.logger)
	if err != nil {
		c.logger.Errorf("❌ Failed to create player for %s: %v", path, err)
		return
	}
	player.SetDelegate(c)
	player.SetMeteringEnabled(true)

	c.mu.Lock()
	c.player = player
	c.mu.Unlock()

	if err := player.Play(); err != nil {
		c.logger.Errorf("❌ Failed to start playback: %v", err)
		return
	}
	c.logger.Infof("🔊 Playing %s", path)
}

// StopPlayback halts playback; it does nothing when nothing plays
func (c *Controller) StopPlayback() {
	c.mu.Lock()
	player := c.player
	c.mu.Unlock()

	if player == nil {
		return
	}
	if player.IsPlaying() {
		player.Stop()
	}
}

// IsRecording reports whether a capture is running
func (c *Controller) IsRecording() bool {
	if c.useComplex {
		return c.graph.IsRecording()
	}

	c.mu.Lock()
	recorder := c.recorder
	c.mu.Unlock()
	return recorder != nil && recorder.IsRecording()
}

// IsPlayingBack reports whether playback is running
func (c *Controller) IsPlayingBack() bool {
	c.mu.Lock()
	player := c.player
	c.mu.Unlock()
	return player != nil && player.IsPlaying()
}

// HasRecording reports whether a recording is available to play or keep
func (c *Controller) HasRecording() bool {
	if c.useComplex {
		return c.graph.HasRecording()
	}
	_, err := os.Stat(c.SoundFilePath())
	return err == nil
}

// DeleteRecording discards the current recording; it does nothing when
// there is none
func (c *Controller) DeleteRecording() {
	if c.useComplex && !c.settleGraph() {
		c.logger.Warnf("⚠️  Not deleting while the audio graph is recording")
		return
	}
	if !c.HasRecording() {
		return
	}

	if c.useComplex {
		if err := c.graph.DeleteRecording(); err != nil {
			c.logger.Errorf("❌ Failed to delete graph recording: %v", err)
		}
	}

	path := c.SoundFilePath()
	if err := os.Remove(path); err != nil && !(c.useComplex && os.IsNotExist(err)) {
		c.logger.Errorf("❌ Failed to delete recording %s: %v", path, err)
		return
	}
	c.logger.Infof("🗑️  Deleted recording %s", path)
}

// AddRecording keeps the current recording: the file is moved to a unique
// path and queued for upload under description. It returns the queued path
// and false when there was nothing to keep.
func (c *Controller) AddRecording(description string) (string, bool) {
	if c.useComplex && !c.settleGraph() {
		c.logger.Warnf("⚠️  Not adding while the audio graph is recording")
		return "", false
	}
	if !c.HasRecording() {
		return "", false
	}

	src := c.SoundFilePath()
	dst := filepath.Join(c.tempDir, fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(src)))
	if err := os.Rename(src, dst); err != nil {
		c.logger.Errorf("❌ Failed to move recording %s to %s: %v", src, dst, err)
		return "", false
	}

	if err := c.queue.AddMedia(media.TypeAudio, dst, description); err != nil {
		c.logger.Errorf("❌ Failed to queue recording %s: %v", dst, err)
	}

	if c.useComplex {
		if err := c.graph.DeleteRecording(); err != nil {
			c.logger.Warnf("⚠️  Failed to delete graph recording: %v", err)
		}
	}

	c.logger.Infof("📥 Queued recording %s", dst)
	return dst, true
}

// SetRecordingDescription updates the description of a queued recording
func (c *Controller) SetRecordingDescription(path, description string) {
	if err := c.queue.SetMediaDescription(media.TypeAudio, path, description); err != nil {
		c.logger.Warnf("⚠️  Failed to describe recording %s: %v", path, err)
	}
}

// RemoveRecording drops a queued recording
func (c *Controller) RemoveRecording(path string) {
	if err := c.queue.RemoveMedia(media.TypeAudio, path); err != nil {
		c.logger.Warnf("⚠️  Failed to remove recording %s: %v", path, err)
	}
}

// AudioLevel returns the metering level of whatever is running in dBFS
func (c *Controller) AudioLevel() float64 {
	c.mu.Lock()
	recorder, player := c.recorder, c.player
	c.mu.Unlock()

	switch {
	case c.useComplex && c.graph.IsRecording():
		average, _ := c.graph.Levels()
		return average
	case recorder != nil && recorder.IsRecording():
		return recorder.AveragePower()
	case player != nil && player.IsPlaying():
		return player.AveragePower()
	default:
		return audio.SilenceDB
	}
}

// Wait blocks until background conversions started so far have finished
func (c *Controller) Wait() {
	_ = c.exports.Wait()
}

// Close stops capture and playback, abandons pending conversions and
// releases the audio backend
func (c *Controller) Close() error {
	c.mu.Lock()
	recorder, player := c.recorder, c.player
	c.recorder, c.player = nil, nil
	c.mu.Unlock()

	if recorder != nil {
		recorder.SetDelegate(nil)
		recorder.Stop()
	}
	if player != nil {
		player.SetDelegate(nil)
		_ = player.Close()
	}
	if c.graph != nil && c.graph.IsRecording() {
		c.graph.SetListener(nil)
		_ = c.graph.Stop()
	}

	// a capture stopped without its listener never reports; release waiters
	c.mu.Lock()
	finished := c.graphFinished
	c.graphFinished = nil
	c.mu.Unlock()
	if finished != nil {
		close(finished)
	}

	c.cancel()
	c.Wait()

	if err := c.backend.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate audio backend: %w", err)
	}
	return nil
}

func (c *Controller) currentDelegate() Delegate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate
}

// RecorderDidFinish implements audio.RecorderDelegate
func (c *Controller) RecorderDidFinish(_ *audio.SoundRecorder, successfully bool) {
	c.logger.Infof("🎤 Recording finished (successfully: %t)", successfully)
	if d := c.currentDelegate(); d != nil {
		d.RecordingFinished(successfully)
	}
}

// RecorderEncodeError implements audio.RecorderDelegate
func (c *Controller) RecorderEncodeError(_ *audio.SoundRecorder, err error) {
	c.alerts.AlertOK(AlertEncodeError, err.Error())
}

// PlayerDidFinish implements audio.PlayerDelegate
func (c *Controller) PlayerDidFinish(_ *audio.SoundPlayer, successfully bool) {
	c.logger.Infof("🔊 Playback finished (successfully: %t)", successfully)
	if d := c.currentDelegate(); d != nil {
		d.PlaybackFinished(successfully)
	}
}

// PlayerDecodeError implements audio.PlayerDelegate
func (c *Controller) PlayerDecodeError(_ *audio.SoundPlayer, err error) {
	c.alerts.AlertOK(AlertDecodeError, err.Error())
}

// GraphDidFinish implements graph.Listener. Every finished capture, whether
// stopped or ended at the maximum length, is converted into the recording
// file.
func (c *Controller) GraphDidFinish(successfully bool) {
	c.exportGraphCapture()

	c.mu.Lock()
	finished := c.graphFinished
	c.graphFinished = nil
	c.mu.Unlock()
	if finished != nil {
		close(finished)
	}

	c.logger.Infof("🎛️ Graph recording finished (successfully: %t)", successfully)
	if d := c.currentDelegate(); d != nil {
		d.RecordingFinished(successfully)
	}
}

// GraphEncodeError implements graph.Listener
func (c *Controller) GraphEncodeError(err error) {
	c.alerts.AlertOK(AlertEncodeError, err.Error())
}

type nopTracker struct{}

func (nopTracker) StartUpdatingLocation() {}

type nopServer struct{}

func (nopServer) LogToServer(string) {}
