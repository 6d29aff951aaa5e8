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

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loqalabs/loqa-speak-go/internal/audio"
)

func TestGainNode(t *testing.T) {
	g := NewGainNodeDB(-6.0206)
	buf := []float32{1, -1, 0.5}
	g.Process(buf, 1)

	assert.InDelta(t, 0.5, buf[0], 0.001)
	assert.InDelta(t, -0.5, buf[1], 0.001)
	assert.InDelta(t, 0.25, buf[2], 0.001)

	unity := NewGainNodeDB(0)
	buf = []float32{0.3}
	unity.Process(buf, 1)
	assert.Equal(t, float32(0.3), buf[0])
}

func TestDCBlockNode(t *testing.T) {
	d := NewDCBlockNode()

	// a constant offset decays toward zero
	buf := make([]float32, 4000)
	for i := range buf {
		buf[i] = 0.5
	}
	d.Process(buf, 1)
	assert.InDelta(t, 0.5, buf[0], 0.0001, "first sample passes through")
	assert.InDelta(t, 0, buf[len(buf)-1], 0.001)

	t.Run("per_channel_state", func(t *testing.T) {
		d := NewDCBlockNode()
		stereo := []float32{0.5, -0.5, 0.5, -0.5}
		d.Process(stereo, 2)
		assert.InDelta(t, 0.5, stereo[0], 0.0001)
		assert.InDelta(t, -0.5, stereo[1], 0.0001)
		assert.InDelta(t, 0.4975, stereo[2], 0.0001)
		assert.InDelta(t, -0.4975, stereo[3], 0.0001)
	})

	d.Reset()
	assert.Nil(t, d.prevX)
}

func TestMeterNode(t *testing.T) {
	m := NewMeterNode()
	avg, peak := m.Levels()
	assert.Equal(t, audio.SilenceDB, avg)
	assert.Equal(t, audio.SilenceDB, peak)

	m.Process([]float32{0.5, -1, 0.5, 0}, 1)
	avg, peak = m.Levels()
	assert.InDelta(t, 0, peak, 0.0001)
	assert.Less(t, avg, peak)

	m.Reset()
	avg, _ = m.Levels()
	assert.Equal(t, audio.SilenceDB, avg)
}
