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
	"math"
	"sync"

	"github.com/loqalabs/loqa-speak-go/internal/audio"
)

// Node processes one buffer of interleaved samples in place
type Node interface {
	Process(buf []float32, channels int)
	Reset()
}

// GainNode scales every sample by a linear factor
type GainNode struct {
	Gain float32
}

// NewGainNodeDB returns a gain node for a level change in decibels
func NewGainNodeDB(db float64) *GainNode {
	return &GainNode{Gain: float32(math.Pow(10, db/20))}
}

func (g *GainNode) Process(buf []float32, _ int) {
	if g.Gain == 1 {
		return
	}
	for i := range buf {
		buf[i] *= g.Gain
	}
}

func (g *GainNode) Reset() {}

// DCBlockNode removes DC offset with a one-pole high-pass filter per channel
type DCBlockNode struct {
	R     float32
	prevX []float32
	prevY []float32
}

// NewDCBlockNode returns a DC blocker with the usual 0.995 pole
func NewDCBlockNode() *DCBlockNode {
	return &DCBlockNode{R: 0.995}
}

func (d *DCBlockNode) Process(buf []float32, channels int) {
	if len(d.prevX) != channels {
		d.prevX = make([]float32, channels)
		d.prevY = make([]float32, channels)
	}
	for i := range buf {
		c := i % channels
		x := buf[i]
		y := x - d.prevX[c] + d.R*d.prevY[c]
		d.prevX[c] = x
		d.prevY[c] = y
		buf[i] = y
	}
}

func (d *DCBlockNode) Reset() {
	d.prevX = nil
	d.prevY = nil
}

// MeterNode tracks the average and peak level of the latest buffer
type MeterNode struct {
	mu      sync.Mutex
	average float64
	peak    float64
}

// NewMeterNode returns a meter reading silence
func NewMeterNode() *MeterNode {
	return &MeterNode{average: audio.SilenceDB, peak: audio.SilenceDB}
}

func (m *MeterNode) Process(buf []float32, _ int) {
	var peak float32
	for _, s := range buf {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}

	peakDB := audio.SilenceDB
	if peak > 0 {
		peakDB = math.Max(audio.SilenceDB, 20*math.Log10(float64(peak)))
	}

	m.mu.Lock()
	m.average = audio.AveragePower(buf)
	m.peak = peakDB
	m.mu.Unlock()
}

func (m *MeterNode) Reset() {
	m.mu.Lock()
	m.average = audio.SilenceDB
	m.peak = audio.SilenceDB
	m.mu.Unlock()
}

// Levels returns the average and peak power in dBFS
func (m *MeterNode) Levels() (average, peak float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.average, m.peak
}
