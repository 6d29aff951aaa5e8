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

package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	tr := NewTracker(nil)
	assert.False(t, tr.IsUpdating())

	tr.StopUpdatingLocation()
	assert.False(t, tr.IsUpdating(), "stop while idle is a no-op")

	tr.StartUpdatingLocation()
	tr.StartUpdatingLocation()
	assert.True(t, tr.IsUpdating())
	assert.Equal(t, 2, tr.StartCount())

	tr.StopUpdatingLocation()
	assert.False(t, tr.IsUpdating())
}
