// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit implements the Rate Limiter (C5): a process-wide
// token bucket enforcing a requests-per-minute ceiling, built on
// go.uber.org/ratelimit, plus a concurrency bound adapted from a simple
// counting semaphore for the batch engine's per-chunk worker cap.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/ratelimit"
)

// Limiter enforces a requests-per-minute ceiling shared by every in-flight
// probe. Each outbound SOAP request consumes exactly one token; DNS queries
// never call Acquire.
type Limiter struct {
	rl ratelimit.Limiter
}

// New builds a Limiter refilling continuously at a ratePerMinute ceiling,
// expressed directly via ratelimit.Per so rates that aren't clean multiples
// of 60 (e.g. 45/min) aren't distorted by integer division. A non-positive
// rate disables limiting (unlimited throughput).
func New(ratePerMinute int) *Limiter {
	if ratePerMinute <= 0 {
		return &Limiter{rl: ratelimit.NewUnlimited()}
	}
	return &Limiter{rl: ratelimit.New(ratePerMinute, ratelimit.WithoutSlack, ratelimit.Per(time.Minute))}
}

// Acquire blocks the caller until one token is available or ctx is done.
// go.uber.org/ratelimit's Take() does not itself observe a context, so
// cancellation is layered on top via a worker goroutine.
func (l *Limiter) Acquire(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.rl.Take()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConcurrencySemaphore bounds the number of probes in flight within a chunk.
type ConcurrencySemaphore struct {
	c chan struct{}
}

// NewConcurrencySemaphore returns a semaphore initialized to max permits.
func NewConcurrencySemaphore(max int) *ConcurrencySemaphore {
	s := &ConcurrencySemaphore{c: make(chan struct{}, max)}
	for i := 0; i < max; i++ {
		s.c <- struct{}{}
	}
	return s
}

// Acquire blocks until a permit is available or ctx is done.
func (s *ConcurrencySemaphore) Acquire(ctx context.Context) error {
	select {
	case <-s.c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the pool.
func (s *ConcurrencySemaphore) Release() {
	s.c <- struct{}{}
}
