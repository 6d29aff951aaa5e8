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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-speak-go/internal/audio"
)

func TestMixToMono(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0}, MixToMono([]float32{1, 0, 0.5, -0.5}, 2))

	mono := []float32{0.1, 0.2}
	assert.Equal(t, mono, MixToMono(mono, 1))

	assert.Len(t, MixToMono([]float32{1, 1, 1}, 2), 1, "trailing partial frame is dropped")
}

func TestDuplicate(t *testing.T) {
	assert.Equal(t, []float32{0.1, 0.1, -0.2, -0.2}, Duplicate([]float32{0.1, -0.2}))
}

func sine(n, rate int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func TestResample(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		in := []float32{1, 2, 3}
		out, err := Resample(in, 22050, 22050)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("empty", func(t *testing.T) {
		out, err := Resample(nil, 44100, 22050)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("invalid_rate", func(t *testing.T) {
		_, err := Resample([]float32{1}, 0, 22050)
		assert.ErrorIs(t, err, audio.ErrInvalidSettings)
	})

	tests := []struct {
		name     string
		fromRate int
		toRate   int
	}{
		{name: "halve", fromRate: 44100, toRate: 22050},
		{name: "double", fromRate: 22050, toRate: 44100},
		{name: "to_wideband", fromRate: 48000, toRate: 16000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sine(tt.fromRate/2, tt.fromRate, 440, 0.5)
			out, err := Resample(in, tt.fromRate, tt.toRate)
			require.NoError(t, err)

			want := float64(len(in)) * float64(tt.toRate) / float64(tt.fromRate)
			assert.InEpsilon(t, want, float64(len(out)), 0.02)

			// a 440 Hz tone is in band for every rate, so its level survives
			middle := out[len(out)/4 : 3*len(out)/4]
			assert.InDelta(t, rms(in), rms(middle), 0.03)
		})
	}
}
