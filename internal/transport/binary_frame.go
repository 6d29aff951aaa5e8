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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Binary frame protocol for contribution uploads. Each frame is a fixed
// big-endian header followed by at most MaxDataSize payload bytes, so a
// recording travels as begin, data... and end frames sharing a session id.

// FrameType represents the type of frame being transmitted
type FrameType uint8

const (
	// Upload frame types
	FrameTypeUploadBegin FrameType = 0x01
	FrameTypeUploadData  FrameType = 0x02
	FrameTypeUploadEnd   FrameType = 0x03

	// Control frame types
	FrameTypeHeartbeat FrameType = 0x10
	FrameTypeHandshake FrameType = 0x11
	FrameTypeError     FrameType = 0x12

	// Response frame types
	FrameTypeAck FrameType = 0x20
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeUploadBegin:
		return "upload-begin"
	case FrameTypeUploadData:
		return "upload-data"
	case FrameTypeUploadEnd:
		return "upload-end"
	case FrameTypeHeartbeat:
		return "heartbeat"
	case FrameTypeHandshake:
		return "handshake"
	case FrameTypeError:
		return "error"
	case FrameTypeAck:
		return "ack"
	default:
		return fmt.Sprintf("frame(0x%02X)", uint8(t))
	}
}

// Frame represents a binary frame in the protocol
type Frame struct {
	Type      FrameType
	SessionID uint32
	Sequence  uint32
	Timestamp uint64
	Data      []byte
}

// FrameHeader represents the fixed-size frame header (24 bytes)
type FrameHeader struct {
	Magic     uint32    // 0x4C4F5141 ("LOQA")
	Type      FrameType // Frame type (1 byte)
	Reserved  uint8     // Reserved for future use (1 byte)
	Length    uint16    // Data payload length (2 bytes)
	SessionID uint32    // Upload session identifier (4 bytes)
	Sequence  uint32    // Sequence number within the session (4 bytes)
	Timestamp uint64    // Unix timestamp microseconds (8 bytes)
}

const (
	// Magic number for frame validation
	FrameMagic = 0x4C4F5141 // "LOQA" in big-endian

	// Frames stay small enough for constrained hubs to buffer whole
	MaxFrameSize = 1536
	HeaderSize   = 24
	MaxDataSize  = MaxFrameSize - HeaderSize
)

var (
	// ErrFrameTooLarge is returned for payloads above MaxDataSize
	ErrFrameTooLarge = errors.New("frame data too large")

	// ErrInvalidMagic is returned when a header does not start with FrameMagic
	ErrInvalidMagic = errors.New("invalid frame magic")
)

// Serialize converts a frame to binary format
func (f *Frame) Serialize() ([]byte, error) {
	if len(f.Data) > MaxDataSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(f.Data), MaxDataSize)
	}

	header := FrameHeader{
		Magic:     FrameMagic,
		Type:      f.Type,
		Length:    uint16(len(f.Data)), //nolint:gosec // G115: bounded by MaxDataSize above
		SessionID: f.SessionID,
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp,
	}

	buf := bytes.NewBuffer(make([]byte, 0, f.Size()))
	if err := binary.Write(buf, binary.BigEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write frame header: %w", err)
	}
	buf.Write(f.Data)

	return buf.Bytes(), nil
}

// DeserializeFrame converts exactly one serialized frame back into a Frame
func DeserializeFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too small: %d bytes (min %d)", len(data), HeaderSize)
	}

	header, err := parseFrameHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}

	expectedSize := HeaderSize + int(header.Length)
	if len(data) != expectedSize {
		return nil, fmt.Errorf("frame size mismatch: got %d bytes, expected %d", len(data), expectedSize)
	}

	frame := frameFromHeader(header)
	if header.Length > 0 {
		frame.Data = append([]byte(nil), data[HeaderSize:]...)
	}
	return frame, nil
}

// ReadFrame reads the next frame from r, header first and then the payload.
// It returns io.EOF when r is exhausted on a frame boundary.
func ReadFrame(r io.Reader) (*Frame, error) {
	headerData := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerData); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated frame header: %w", err)
		}
		return nil, err
	}

	header, err := parseFrameHeader(headerData)
	if err != nil {
		return nil, err
	}

	frame := frameFromHeader(header)
	if header.Length > 0 {
		frame.Data = make([]byte, header.Length)
		if _, err := io.ReadFull(r, frame.Data); err != nil {
			return nil, fmt.Errorf("failed to read frame data: %w", err)
		}
	}
	return frame, nil
}

// parseFrameHeader parses and validates just the header portion of a frame
func parseFrameHeader(headerData []byte) (*FrameHeader, error) {
	if len(headerData) != HeaderSize {
		return nil, fmt.Errorf("invalid header size: %d bytes (expected %d)", len(headerData), HeaderSize)
	}

	var header FrameHeader
	if err := binary.Read(bytes.NewReader(headerData), binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	if header.Magic != FrameMagic {
		return nil, fmt.Errorf("%w: 0x%08X (expected 0x%08X)", ErrInvalidMagic, header.Magic, FrameMagic)
	}

	if header.Length > MaxDataSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, header.Length, MaxDataSize)
	}

	return &header, nil
}

func frameFromHeader(h *FrameHeader) *Frame {
	return &Frame{
		Type:      h.Type,
		SessionID: h.SessionID,
		Sequence:  h.Sequence,
		Timestamp: h.Timestamp,
	}
}

// NewFrame creates a new frame with the specified parameters
func NewFrame(frameType FrameType, sessionID, sequence uint32, timestamp uint64, data []byte) *Frame {
	return &Frame{
		Type:      frameType,
		SessionID: sessionID,
		Sequence:  sequence,
		Timestamp: timestamp,
		Data:      data,
	}
}

// IsValid checks if the frame is structurally valid
func (f *Frame) IsValid() bool {
	return len(f.Data) <= MaxDataSize
}

// Size returns the total serialized size of the frame
func (f *Frame) Size() int {
	return HeaderSize + len(f.Data)
}

// SplitPayload cuts data into chunks that each fit a single frame
func SplitPayload(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(data)+MaxDataSize-1)/MaxDataSize)
	for start := 0; start < len(data); start += MaxDataSize {
		end := min(start+MaxDataSize, len(data))
		chunks = append(chunks, data[start:end])
	}
	return chunks
}
