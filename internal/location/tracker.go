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

// Package location tracks whether geotagging of contributions is active.
package location

import (
	"sync"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

// Tracker is a location source that can be switched on before a recording
// so the contribution can be geotagged. Hosts without a positioning device
// only track the requested state.
type Tracker struct {
	mu       sync.Mutex
	updating bool
	starts   int
	logger   *zap.SugaredLogger
}

// NewTracker creates an idle tracker
func NewTracker(logger *zap.SugaredLogger) *Tracker {
	return &Tracker{logger: logging.OrNop(logger)}
}

// StartUpdatingLocation enables location updates. Calling it while already
// updating is harmless.
func (t *Tracker) StartUpdatingLocation() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.starts++
	if t.updating {
		return
	}
	t.updating = true
	t.logger.Info("📍 Location updates started")
}

// StopUpdatingLocation disables location updates
func (t *Tracker) StopUpdatingLocation() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.updating {
		return
	}
	t.updating = false
	t.logger.Info("📍 Location updates stopped")
}

// IsUpdating reports whether updates are enabled
func (t *Tracker) IsUpdating() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updating
}

// StartCount returns how many times updates were requested
func (t *Tracker) StartCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts
}
