// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAcquireSucceeds(t *testing.T) {
	l := New(600) // 10/sec
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, l.Acquire(ctx))
}

func TestLimiterAcquireRespectsCancellation(t *testing.T) {
	l := New(1) // one token per minute, far slower than the test timeout
	// Drain the initial token so the next Acquire call must wait.
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiterThroughputMatchesConfiguredRateForNonMultipleOf60(t *testing.T) {
	// 90/min = 1.5/sec, deliberately not a clean multiple of 60 so a
	// regression to ratePerMinute/60 integer division (which would floor
	// this to 1/sec, i.e. 60/min) would be caught.
	l := New(90)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	elapsed := time.Since(start)

	// 4 tokens at 1.5/sec span 3 inter-token intervals: ~2s.
	expected := 2 * time.Second
	assert.Greater(t, elapsed, expected*8/10, "limiter ran faster than its configured rate")
	assert.Less(t, elapsed, expected*13/10, "limiter ran more than 1.3x slower than its configured rate")
}

func TestConcurrencySemaphoreBoundsPermits(t *testing.T) {
	sem := NewConcurrencySemaphore(2)
	ctx := context.Background()

	require.NoError(t, sem.Acquire(ctx))
	require.NoError(t, sem.Acquire(ctx))

	tryCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := sem.Acquire(tryCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	sem.Release()
	require.NoError(t, sem.Acquire(ctx))
}
