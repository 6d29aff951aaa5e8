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

import "errors"

var (
	// ErrInvalidSettings is returned for a non-positive rate, buffer size or
	// an unsupported channel count
	ErrInvalidSettings = errors.New("invalid audio settings")

	// ErrAlreadyRecording is returned by RecordForDuration on an active recorder
	ErrAlreadyRecording = errors.New("already recording")

	// ErrNotInitialized is returned when a stream is requested before Initialize
	ErrNotInitialized = errors.New("audio backend not initialized")

	// ErrInvalidWAV is returned when a playback file is not a PCM WAV
	ErrInvalidWAV = errors.New("not a valid WAV file")

	// ErrWrongDirection is returned for Read on an output stream or Write on
	// an input stream
	ErrWrongDirection = errors.New("wrong stream direction")
)
