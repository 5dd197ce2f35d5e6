// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureINI = `
concurrent = 20
chunk_size = 200
rate_limit = 300
timeout_ms = 8000

[resolvers]
resolver = 1.1.1.1
resolver = 8.8.8.8
resolver = 1.1.1.1
`

func TestLoadFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentri.ini")
	require.NoError(t, os.WriteFile(path, []byte(fixtureINI), 0644))

	s := Defaults()
	require.NoError(t, s.LoadFile(path))

	assert.Equal(t, 20, s.Concurrent)
	assert.Equal(t, 200, s.ChunkSize)
	assert.Equal(t, 300, s.RateLimit)
	assert.Equal(t, 8000, s.TimeoutMS)
	assert.ElementsMatch(t, []string{"1.1.1.1", "8.8.8.8"}, s.Resolvers)
}

func TestLoadFilePartialOverrideLeavesRestAtDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.ini")
	require.NoError(t, os.WriteFile(path, []byte("concurrent = 42\n"), 0644))

	s := Defaults()
	require.NoError(t, s.LoadFile(path))

	assert.Equal(t, 42, s.Concurrent)
	assert.Equal(t, DefaultChunkSizeFallback, s.ChunkSize)
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	s := Defaults()
	err := s.LoadFile("/nonexistent/path/sentri.ini")
	assert.Error(t, err)
}

// DefaultChunkSizeFallback mirrors Defaults().ChunkSize so the test above
// doesn't hardcode the literal twice.
const DefaultChunkSizeFallback = 50
