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

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/logging"
	"github.com/loqalabs/loqa-speak-go/internal/media"
)

const (
	uploadPath            = "/upload/media"
	defaultRequestTimeout = 10 * time.Second
	defaultRetryCount     = 2
)

var (
	// ErrHubRejected is returned when the hub answers with an error frame
	ErrHubRejected = errors.New("hub rejected frame")

	// ErrNoHub is returned when the client has no hub URL configured
	ErrNoHub = errors.New("no hub configured")
)

// UploadMetadata is the JSON payload of an upload-begin frame
type UploadMetadata struct {
	Type        media.Type `json:"type"`
	FileName    string     `json:"file_name"`
	Description string     `json:"description"`
	Size        int        `json:"size"`
	AddedAt     time.Time  `json:"added_at"`
}

// UploadClient sends queued contributions to the hub as binary frames, one
// POST per frame
type UploadClient struct {
	client    *resty.Client
	hubURL    string
	deviceID  string
	sessionID string
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	sequence uint32
}

// NewUploadClient creates a client for hubURL
func NewUploadClient(hubURL, deviceID string, logger *zap.SugaredLogger) *UploadClient {
	sessionID := uuid.NewString()

	client := resty.New().
		SetBaseURL(hubURL).
		SetTimeout(defaultRequestTimeout).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("X-Device-ID", deviceID).
		SetHeader("X-Session-ID", sessionID).
		SetQueryParam("device_id", deviceID)

	return &UploadClient{
		client:    client,
		hubURL:    hubURL,
		deviceID:  deviceID,
		sessionID: sessionID,
		logger:    logging.OrNop(logger),
	}
}

// SetTimeout sets the per-request timeout
func (c *UploadClient) SetTimeout(timeout time.Duration) {
	c.client.SetTimeout(timeout)
}

// SetRetryCount sets how often a failed request is retried
func (c *UploadClient) SetRetryCount(count int) {
	c.client.SetRetryCount(count)
}

// SessionID identifies this client in request headers
func (c *UploadClient) SessionID() string {
	return c.sessionID
}

// Handshake announces the device to the hub
func (c *UploadClient) Handshake(ctx context.Context) error {
	data := fmt.Sprintf("session:%s;device:%s", c.sessionID, c.deviceID)
	c.logger.Infof("🤝 Sending handshake frame (session: %s)", c.sessionID)
	_, err := c.SendFrame(ctx, FrameTypeHandshake, uuid.New().ID(), []byte(data))
	return err
}

// Heartbeat tells the hub the device is still alive
func (c *UploadClient) Heartbeat(ctx context.Context) error {
	_, err := c.SendFrame(ctx, FrameTypeHeartbeat, 0, nil)
	return err
}

// Upload sends the file behind entry as begin, data and end frames. It
// satisfies media.Uploader.
func (c *UploadClient) Upload(ctx context.Context, entry media.Entry) error {
	payload, err := os.ReadFile(entry.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", entry.Path, err)
	}

	meta, err := json.Marshal(UploadMetadata{
		Type:        entry.Type,
		FileName:    filepath.Base(entry.Path),
		Description: entry.Description,
		Size:        len(payload),
		AddedAt:     entry.AddedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode upload metadata: %w", err)
	}
	if len(meta) > MaxDataSize {
		return fmt.Errorf("upload metadata for %s: %w", entry.Path, ErrFrameTooLarge)
	}

	uploadID := uuid.New().ID()
	c.logger.Infof("📤 Uploading %s (%d bytes, upload %08x)", entry.Path, len(payload), uploadID)

	if _, err := c.SendFrame(ctx, FrameTypeUploadBegin, uploadID, meta); err != nil {
		return err
	}
	for _, chunk := range SplitPayload(payload) {
		if _, err := c.SendFrame(ctx, FrameTypeUploadData, uploadID, chunk); err != nil {
			return err
		}
	}

	ack, err := c.SendFrame(ctx, FrameTypeUploadEnd, uploadID, nil)
	if err != nil {
		return err
	}
	if ack == nil || ack.Type != FrameTypeAck {
		return fmt.Errorf("upload %08x: hub did not acknowledge", uploadID)
	}

	c.logger.Infof("✅ Upload %08x acknowledged", uploadID)
	return nil
}

// SendFrame posts one frame to the hub and returns the frame it answered
// with, if any
func (c *UploadClient) SendFrame(ctx context.Context, frameType FrameType, sessionID uint32, data []byte) (*Frame, error) {
	if c.hubURL == "" {
		return nil, ErrNoHub
	}

	c.mu.Lock()
	c.sequence++
	seq := c.sequence
	c.mu.Unlock()

	frame := NewFrame(
		frameType,
		sessionID,
		seq,
		uint64(time.Now().UnixMicro()), //nolint:gosec // Safe conversion from int64 to uint64
		data,
	)

	frameData, err := frame.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize frame: %w", err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(frameData).
		Post(uploadPath)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s frame: %w", frameType, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("send %s frame failed with status: %d", frameType, resp.StatusCode())
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, nil
	}

	reply, err := DeserializeFrame(body)
	if err != nil {
		return nil, fmt.Errorf("invalid reply to %s frame: %w", frameType, err)
	}
	if reply.Type == FrameTypeError {
		return nil, fmt.Errorf("%w: %s", ErrHubRejected, string(reply.Data))
	}

	if frameType != FrameTypeUploadData {
		c.logger.Debugf("📤 Sent %s frame (%d bytes)", frameType, len(frameData))
	}
	return reply, nil
}
