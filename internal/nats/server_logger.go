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

package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

// ServerEvent is a single usage event reported to the hub
type ServerEvent struct {
	Event     string    `json:"event"`
	DeviceID  string    `json:"device_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSubject returns the subject events of deviceID are published on
func EventSubject(deviceID string) string {
	return fmt.Sprintf("speak.events.%s", deviceID)
}

// ServerLogger publishes usage events. Without a connection events are only
// written to the local log.
type ServerLogger struct {
	natsConn  SpeakNATSConnection
	deviceID  string
	sessionID string
	logger    *zap.SugaredLogger
}

// NewServerLogger creates a logger for one application session. natsConn may
// be nil.
func NewServerLogger(natsConn SpeakNATSConnection, deviceID string, logger *zap.SugaredLogger) *ServerLogger {
	return &ServerLogger{
		natsConn:  natsConn,
		deviceID:  deviceID,
		sessionID: uuid.NewString(),
		logger:    logging.OrNop(logger),
	}
}

// SessionID identifies this run of the application in every event
func (s *ServerLogger) SessionID() string {
	return s.sessionID
}

// LogToServer reports event. Publishing is fire-and-forget; failures are
// logged and dropped.
func (s *ServerLogger) LogToServer(event string) {
	s.logger.Infow("📝 Server event", "event", event)
	if s.natsConn == nil {
		return
	}

	data, err := json.Marshal(ServerEvent{
		Event:     event,
		DeviceID:  s.deviceID,
		SessionID: s.sessionID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Errorf("❌ Failed to marshal server event %s: %v", event, err)
		return
	}

	if err := s.natsConn.Publish(EventSubject(s.deviceID), data); err != nil {
		s.logger.Warnf("⚠️  Failed to publish server event %s: %v", event, err)
	}
}
