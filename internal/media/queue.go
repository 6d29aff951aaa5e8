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

// Package media holds the contributions waiting to be uploaded.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

// Type of a queued contribution
type Type string

const (
	TypeAudio Type = "audio"
	TypeImage Type = "image"
	TypeText  Type = "text"
)

// ErrNotQueued is returned when no entry matches a (type, path) key
var ErrNotQueued = errors.New("media not queued")

// Entry is one contribution waiting for upload
type Entry struct {
	Type        Type      `json:"type"`
	Path        string    `json:"path"`
	Description string    `json:"description"`
	AddedAt     time.Time `json:"added_at"`
}

// Uploader sends a single entry to the hub
type Uploader interface {
	Upload(ctx context.Context, entry Entry) error
}

// Queue is an ordered set of entries keyed by (type, path). When created
// with a file path, every mutation is persisted to it as JSON.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	file    string
	logger  *zap.SugaredLogger
}

// NewQueue creates a queue, loading previously persisted entries from file
// when it exists. An empty file disables persistence.
func NewQueue(file string, logger *zap.SugaredLogger) (*Queue, error) {
	q := &Queue{
		file:   file,
		logger: logging.OrNop(logger),
	}
	if file == "" {
		return q, nil
	}

	data, err := os.ReadFile(file) //nolint:gosec // configured queue file
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, fmt.Errorf("failed to read queue %s: %w", file, err)
	}
	if len(data) == 0 {
		return q, nil
	}
	if err := json.Unmarshal(data, &q.entries); err != nil {
		return nil, fmt.Errorf("failed to decode queue %s: %w", file, err)
	}

	q.logger.Infof("📂 Loaded %d queued media entries from %s", len(q.entries), file)
	return q, nil
}

// AddMedia appends an entry. Adding an existing (type, path) replaces its
// description instead of creating a duplicate.
func (q *Queue) AddMedia(t Type, path, description string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexLocked(t, path); i >= 0 {
		q.entries[i].Description = description
	} else {
		q.entries = append(q.entries, Entry{
			Type:        t,
			Path:        path,
			Description: description,
			AddedAt:     time.Now().UTC(),
		})
	}

	q.logger.Debugw("➕ Media queued", "type", t, "path", path)
	return q.saveLocked()
}

// SetMediaDescription updates the description of a queued entry
func (q *Queue) SetMediaDescription(t Type, path, description string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(t, path)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", t, path, ErrNotQueued)
	}
	q.entries[i].Description = description
	return q.saveLocked()
}

// RemoveMedia drops a queued entry
func (q *Queue) RemoveMedia(t Type, path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(t, path)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", t, path, ErrNotQueued)
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)

	q.logger.Debugw("➖ Media removed", "type", t, "path", path)
	return q.saveLocked()
}

// Entries returns a copy of the queue in insertion order
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of queued entries
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Flush uploads every entry in order and drops the ones that succeeded.
// Failed entries stay queued; the first failure is returned after all
// entries were attempted. Flush stops early when ctx is done.
func (q *Queue) Flush(ctx context.Context, uploader Uploader) (int, error) {
	var (
		uploaded int
		firstErr error
	)

	for _, entry := range q.Entries() {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}

		if err := uploader.Upload(ctx, entry); err != nil {
			q.logger.Warnf("⚠️  Upload of %s failed: %v", entry.Path, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to upload %s: %w", entry.Path, err)
			}
			continue
		}

		if err := q.RemoveMedia(entry.Type, entry.Path); err != nil && !errors.Is(err, ErrNotQueued) {
			return uploaded, err
		}
		uploaded++
		q.logger.Infof("📤 Uploaded %s", entry.Path)
	}

	return uploaded, firstErr
}

func (q *Queue) indexLocked(t Type, path string) int {
	for i, e := range q.entries {
		if e.Type == t && e.Path == path {
			return i
		}
	}
	return -1
}

func (q *Queue) saveLocked() error {
	if q.file == "" {
		return nil
	}

	data, err := json.MarshalIndent(q.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(q.file), 0o755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmp := q.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write queue: %w", err)
	}
	if err := os.Rename(tmp, q.file); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}
