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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPortAudioBackend tests the PortAudio backend implementation
func TestPortAudioBackend(t *testing.T) {
	// Skip if in CI environment where PortAudio may not be available
	if isCIEnvironment() {
		t.Skip("Skipping PortAudio tests in CI environment")
	}

	t.Run("backend_creation", func(t *testing.T) {
		backend := NewPortAudioBackend()
		require.NotNil(t, backend, "should create PortAudio backend")
		assert.False(t, backend.initialized, "should not be initialized by default")
	})

	t.Run("double_initialization", func(t *testing.T) {
		backend := NewPortAudioBackend()

		err := backend.Initialize()
		if err != nil {
			t.Skipf("PortAudio initialization failed (may be expected): %v", err)
		}

		err = backend.Initialize()
		assert.NoError(t, err, "double initialization should be safe")
		assert.True(t, backend.initialized)

		assert.NoError(t, backend.Terminate())
		assert.False(t, backend.initialized, "should be marked as not initialized")
	})

	t.Run("terminate_without_init", func(t *testing.T) {
		backend := NewPortAudioBackend()
		assert.NoError(t, backend.Terminate(), "should handle terminate without init")
	})

	t.Run("stream_without_initialization", func(t *testing.T) {
		backend := NewPortAudioBackend()

		stream, err := backend.CreateInputStream(22050, 1, 1024)
		require.Error(t, err, "should fail without initialization")
		assert.Nil(t, stream, "stream should be nil on error")
		assert.ErrorIs(t, err, ErrNotInitialized)

		stream, err = backend.CreateOutputStream(22050, 1, 1024)
		require.Error(t, err)
		assert.Nil(t, stream)
	})
}

// TestPortAudioStreamDirection checks the direction guards without touching hardware
func TestPortAudioStreamDirection(t *testing.T) {
	t.Run("nil_stream", func(t *testing.T) {
		stream := &PortAudioStream{}
		assert.Error(t, stream.Start())
		assert.Error(t, stream.Stop())
		assert.Error(t, stream.Close())
		assert.Error(t, stream.Read(make([]float32, 4)))
		assert.Error(t, stream.Write(make([]float32, 4)))
		assert.False(t, stream.IsActive())
	})
}

// isCIEnvironment detects if we're running in a CI environment
func isCIEnvironment() bool {
	ciEnvVars := []string{
		"CI", // Generic CI indicator
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",   // GitHub Actions
		"GITLAB_CI",        // GitLab CI
		"JENKINS_URL",      // Jenkins
		"TRAVIS",           // Travis CI
		"CIRCLECI",         // CircleCI
		"BUILDKITE",        // Buildkite
		"TEAMCITY_VERSION", // TeamCity
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}

	return false
}
