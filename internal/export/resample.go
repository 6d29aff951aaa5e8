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

package export

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampler"

	"github.com/loqalabs/loqa-speak-go/internal/audio"
)

// MixToMono averages interleaved channels into one
func MixToMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Duplicate turns a mono signal into interleaved stereo
func Duplicate(samples []float32) []float32 {
	out := make([]float32, len(samples)*2)
	for i, s := range samples {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}

// Resample converts a mono signal between rates with a band-limited
// resampler. Equal rates return samples unchanged.
func Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("cannot resample %d Hz to %d Hz: %w", fromRate, toRate, audio.ErrInvalidSettings)
	}
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}

	out, err := resampling.ResampleMono(in, float64(fromRate), float64(toRate), resampling.QualityHigh)
	if err != nil {
		return nil, fmt.Errorf("failed to resample %d Hz to %d Hz: %w", fromRate, toRate, err)
	}

	converted := make([]float32, len(out))
	for i, s := range out {
		converted[i] = float32(s)
	}
	return converted, nil
}
