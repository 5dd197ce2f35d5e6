// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/sentri/internal/cache"
	"github.com/copyleftdev/sentri/internal/dnsprobe"
	"github.com/copyleftdev/sentri/internal/httpprobe"
	"github.com/copyleftdev/sentri/internal/probe"
	"github.com/copyleftdev/sentri/internal/record"
	"github.com/copyleftdev/sentri/internal/retry"
)

type alwaysUnlimited struct{}

func (alwaysUnlimited) Acquire(ctx context.Context) error { return nil }

func newFailingProber() *probe.Prober {
	// A Prober pointed at no real endpoint: every domain fails validation
	// or federation lookup deterministically, which is enough to exercise
	// the batch engine's chunking and output plumbing without network I/O.
	return &probe.Prober{
		HTTP:      httpprobe.New(httpprobe.DefaultConfig()),
		DNS:       dnsprobe.NewResolver(dnsprobe.WithServer("127.0.0.1:1")),
		RateLimit: alwaysUnlimited{},
		Cache:     cache.New(1000),
		Retry:     retry.NewPolicy(),
		Endpoint:  "http://127.0.0.1:1",
	}
}

func TestRunSkipsBlankAndCommentLines(t *testing.T) {
	input := strings.NewReader("\n# comment\n-bad-.com\n\n")
	var out bytes.Buffer

	e := &Engine{Prober: newFailingProber()}
	err := e.Run(context.Background(), input, record.NewWriter(&out), Config{ChunkSize: 10, Concurrent: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "-bad-.com")
}

func TestRunChunksAcrossMultipleBatches(t *testing.T) {
	lines := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		lines = append(lines, "-bad-.com")
	}
	input := strings.NewReader(strings.Join(lines, "\n"))
	var out bytes.Buffer

	var progressCalls []ChunkProgress
	e := &Engine{
		Prober: newFailingProber(),
		Progress: func(p ChunkProgress) {
			progressCalls = append(progressCalls, p)
		},
	}

	err := e.Run(context.Background(), input, record.NewWriter(&out), Config{ChunkSize: 5, Concurrent: 3})
	require.NoError(t, err)

	assert.Equal(t, 12, strings.Count(out.String(), "\n"))
	require.Len(t, progressCalls, 3)
	assert.Equal(t, 5, progressCalls[0].Processed)
	assert.Equal(t, 5, progressCalls[1].Processed)
	assert.Equal(t, 2, progressCalls[2].Processed)
}

func TestConfigNormalizedAppliesDefaultsAndCap(t *testing.T) {
	c := Config{}.normalized()
	assert.Equal(t, DefaultChunkSize, c.ChunkSize)
	assert.Equal(t, DefaultConcurrent, c.Concurrent)

	c2 := Config{ChunkSize: 999999}.normalized()
	assert.Equal(t, MaxChunkSize, c2.ChunkSize)
}
