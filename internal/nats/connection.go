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

// Package nats connects the speak layer to the hub's message bus: server
// events go out, remote commands come in.
package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

const connectAttempts = 5

// connectRetryDelay is the pause between connection attempts
var connectRetryDelay = 2 * time.Second

// SpeakNATSConnection interface for dependency injection
type SpeakNATSConnection interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

// SpeakNATSConnectionAdapter adapts *nats.Conn to SpeakNATSConnection interface
type SpeakNATSConnectionAdapter struct {
	conn *nats.Conn
}

func NewSpeakNATSConnectionAdapter(conn *nats.Conn) *SpeakNATSConnectionAdapter {
	return &SpeakNATSConnectionAdapter{conn: conn}
}

func (a *SpeakNATSConnectionAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *SpeakNATSConnectionAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return a.conn.Subscribe(subject, cb)
}

func (a *SpeakNATSConnectionAdapter) Close() {
	a.conn.Close()
}

// Connect dials natsURL, retrying a few times before giving up
func Connect(natsURL, deviceID string, logger *zap.SugaredLogger) (SpeakNATSConnection, error) {
	logger = logging.OrNop(logger)

	var nc *nats.Conn
	var err error

	for i := 0; i < connectAttempts; i++ {
		nc, err = nats.Connect(natsURL, nats.Name("loqa-speak-"+deviceID))
		if err == nil {
			break
		}
		logger.Warnf("⚠️  Failed to connect to NATS (attempt %d/%d): %v", i+1, connectAttempts, err)
		if i < connectAttempts-1 {
			time.Sleep(connectRetryDelay)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", connectAttempts, err)
	}

	logger.Infof("✅ Connected to NATS at %s", natsURL)
	return NewSpeakNATSConnectionAdapter(nc), nil
}
