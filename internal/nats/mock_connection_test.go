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
	"sync"

	"github.com/nats-io/nats.go"
)

type publishedMessage struct {
	subject string
	data    []byte
}

// MockSpeakNATSConnection records publishes and lets tests deliver messages
// to subscribed handlers
type MockSpeakNATSConnection struct {
	mu          sync.RWMutex
	subscribers map[string][]nats.MsgHandler
	published   []publishedMessage
	connected   bool
	errors      map[string]error
	publishErr  error
}

func NewMockSpeakNATSConnection() *MockSpeakNATSConnection {
	return &MockSpeakNATSConnection{
		subscribers: make(map[string][]nats.MsgHandler),
		connected:   true,
		errors:      make(map[string]error),
	}
}

func (m *MockSpeakNATSConnection) Publish(subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nats.ErrConnectionClosed
	}
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMessage{subject: subject, data: append([]byte(nil), data...)})
	return nil
}

func (m *MockSpeakNATSConnection) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, nats.ErrConnectionClosed
	}
	if err, exists := m.errors[subject]; exists {
		return nil, err
	}

	m.subscribers[subject] = append(m.subscribers[subject], handler)
	return &nats.Subscription{}, nil
}

// Deliver calls every handler of subject synchronously
func (m *MockSpeakNATSConnection) Deliver(subject, reply string, data []byte) {
	m.mu.RLock()
	handlers := m.subscribers[subject]
	m.mu.RUnlock()

	for _, handler := range handlers {
		handler(&nats.Msg{Subject: subject, Reply: reply, Data: data})
	}
}

func (m *MockSpeakNATSConnection) Published() []publishedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]publishedMessage, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockSpeakNATSConnection) Subjects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subjects := make([]string, 0, len(m.subscribers))
	for s := range m.subscribers {
		subjects = append(subjects, s)
	}
	return subjects
}

func (m *MockSpeakNATSConnection) SetError(subject string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[subject] = err
}

func (m *MockSpeakNATSConnection) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

func (m *MockSpeakNATSConnection) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MockSpeakNATSConnection) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}
