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

package audio

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// BitDepth of every file written by this package
	BitDepth = 16

	// wavFormatPCM is the WAVE_FORMAT_PCM tag
	wavFormatPCM = 1

	// SilenceDB is the metering floor reported for silence or idle meters
	SilenceDB = -160.0
)

// WAVWriter streams float32 samples into a 16-bit PCM WAV file
type WAVWriter struct {
	file     *os.File
	encoder  *wav.Encoder
	buf      *goaudio.IntBuffer
	channels int
	frames   int
}

// CreateWAV creates (or truncates) path and prepares a 16-bit encoder
func CreateWAV(path string, sampleRate, channels int) (*WAVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.Create(path) //nolint:gosec // path is the configured recording path
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	return &WAVWriter{
		file:    f,
		encoder: wav.NewEncoder(f, sampleRate, BitDepth, channels, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: BitDepth,
		},
		channels: channels,
	}, nil
}

// Write encodes interleaved float32 samples in [-1, 1]
func (w *WAVWriter) Write(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		w.buf.Data[i] = int(FloatToInt16(s))
	}

	if err := w.encoder.Write(w.buf); err != nil {
		return fmt.Errorf("failed to encode samples: %w", err)
	}
	w.frames += len(samples) / w.channels
	return nil
}

// Frames returns the number of frames written so far
func (w *WAVWriter) Frames() int {
	return w.frames
}

// Close finalizes the WAV header and closes the file
func (w *WAVWriter) Close() error {
	if w.frames == 0 {
		// the encoder only emits a header alongside samples
		w.buf.Data = w.buf.Data[:0]
		_ = w.encoder.Write(w.buf)
	}
	encErr := w.encoder.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize WAV: %w", encErr)
	}
	return fileErr
}

// WAVReader streams float32 samples out of a PCM WAV file
type WAVReader struct {
	file       *os.File
	decoder    *wav.Decoder
	buf        *goaudio.IntBuffer
	sampleRate int
	channels   int
	bitDepth   int
}

// OpenWAV validates the header of path and positions the reader at the
// first PCM sample
func OpenWAV(path string) (*WAVReader, error) {
	f, err := os.Open(path) //nolint:gosec // path is the configured recording path
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}
	if err := d.FwdToPCM(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w: %v", path, ErrInvalidWAV, err)
	}
	if d.WavAudioFormat != wavFormatPCM || d.NumChans == 0 || d.SampleRate == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w: unsupported format %d", path, ErrInvalidWAV, d.WavAudioFormat)
	}

	return &WAVReader{
		file:       f,
		decoder:    d,
		buf:        &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: int(d.NumChans), SampleRate: int(d.SampleRate)}},
		sampleRate: int(d.SampleRate),
		channels:   int(d.NumChans),
		bitDepth:   int(d.BitDepth),
	}, nil
}

// SampleRate of the file
func (r *WAVReader) SampleRate() int { return r.sampleRate }

// Channels of the file
func (r *WAVReader) Channels() int { return r.channels }

// Read fills dst with normalized interleaved samples. It returns io.EOF once
// no samples remain.
func (r *WAVReader) Read(dst []float32) (int, error) {
	if cap(r.buf.Data) < len(dst) {
		r.buf.Data = make([]int, len(dst))
	}
	r.buf.Data = r.buf.Data[:len(dst)]

	n, err := r.decoder.PCMBuffer(r.buf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to decode samples: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	scale := float32(int(1) << (r.bitDepth - 1))
	for i := 0; i < n; i++ {
		dst[i] = float32(r.buf.Data[i]) / scale
	}
	return n, nil
}

// Close closes the underlying file
func (r *WAVReader) Close() error {
	return r.file.Close()
}

// ReadAllWAV decodes the whole file at path
func ReadAllWAV(path string) (samples []float32, sampleRate, channels int, err error) {
	r, err := OpenWAV(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer func() { _ = r.Close() }()

	buf := make([]float32, 4096)
	for {
		n, readErr := r.Read(buf)
		samples = append(samples, buf[:n]...)
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, 0, 0, readErr
		}
	}
	return samples, r.SampleRate(), r.Channels(), nil
}

// FloatToInt16 converts a normalized sample, clamping out-of-range values
func FloatToInt16(x float32) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(x * math.MaxInt16)
}

// AveragePower returns the RMS level of buffer in dBFS, SilenceDB for silence
func AveragePower(buffer []float32) float64 {
	if len(buffer) == 0 {
		return SilenceDB
	}

	var sum float64
	for _, sample := range buffer {
		sum += float64(sample) * float64(sample)
	}

	rms := math.Sqrt(sum / float64(len(buffer)))
	if rms <= 0 {
		return SilenceDB
	}
	return math.Max(SilenceDB, 20*math.Log10(rms))
}
