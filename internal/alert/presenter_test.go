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

package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPresenter_AlertOK(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p := NewPresenter(zap.New(core).Sugar())

	_, ok := p.Last()
	assert.False(t, ok)

	p.AlertOK("Audio Encode Error", "disk full")
	p.AlertOK("Audio Decode Error", "bad header")

	last, ok := p.Last()
	assert.True(t, ok)
	assert.Equal(t, Alert{Title: "Audio Decode Error", Message: "bad header"}, last)
	assert.Equal(t, 2, p.Count())

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Contains(t, entries[0].Message, "Audio Encode Error")
		assert.Equal(t, "disk full", entries[0].ContextMap()["message"])
	}
}
