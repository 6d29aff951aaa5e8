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

// Package alert reports failures that need the user's attention.
package alert

import (
	"sync"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

// Alert is a titled message shown to the user
type Alert struct {
	Title   string
	Message string
}

// Presenter shows single-button alerts. On a headless host an alert is an
// error-level log line; the alerts raised so far are kept for inspection.
type Presenter struct {
	mu     sync.Mutex
	alerts []Alert
	logger *zap.SugaredLogger
}

// NewPresenter creates a presenter that logs through logger
func NewPresenter(logger *zap.SugaredLogger) *Presenter {
	return &Presenter{logger: logging.OrNop(logger)}
}

// AlertOK shows an alert with a single OK button
func (p *Presenter) AlertOK(title, message string) {
	p.mu.Lock()
	p.alerts = append(p.alerts, Alert{Title: title, Message: message})
	p.mu.Unlock()

	p.logger.Errorw("🚨 "+title, "message", message)
}

// Last returns the most recent alert
func (p *Presenter) Last() (Alert, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.alerts) == 0 {
		return Alert{}, false
	}
	return p.alerts[len(p.alerts)-1], true
}

// Count returns how many alerts were raised
func (p *Presenter) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.alerts)
}
