// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package retry implements the Retry Policy (C6): classification of a
// network attempt's outcome and exponential-backoff scheduling with
// jitter, built on cenkalti/backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/copyleftdev/sentri/internal/dnsprobe"
	"github.com/copyleftdev/sentri/internal/httpprobe"
	"github.com/copyleftdev/sentri/internal/soap"
)

// Outcome classifies an attempt.
type Outcome int

const (
	// Success means the attempt completed and produced a usable result.
	Success Outcome = iota
	// Transient means the attempt failed in a way that may succeed on retry.
	Transient
	// Permanent means retrying will not help.
	Permanent
)

const (
	maxAttempts         = 3
	initialInterval     = 250 * time.Millisecond
	maxInterval         = 5 * time.Second
	backoffMultiplier   = 2.0
	randomizationFactor = 0.5
)

// Classify inspects err (which may be nil on success) and reports which
// bucket the attempt falls into, per the HttpError/DnsError/ParseError kinds
// produced by the probe layers.
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}

	var herr *httpprobe.HttpError
	if errors.As(err, &herr) {
		if herr.Kind == httpprobe.KindTransient {
			return Transient
		}
		return Permanent
	}

	var perr *soap.ParseError
	if errors.As(err, &perr) {
		return Permanent
	}

	var derr *dnsprobe.DnsError
	if errors.As(err, &derr) {
		return Transient
	}

	return Permanent
}

// Policy schedules retry delays for transient failures: up to maxAttempts
// total, delay before attempt n is min(cap, base*2^(n-1)) scaled by a
// uniform random factor in [0.5, 1.5].
type Policy struct {
	backoffFactory func() *backoff.ExponentialBackOff
}

// NewPolicy builds a Policy using the real wall clock and math/rand jitter
// via cenkalti/backoff's own RNG.
func NewPolicy() *Policy {
	return &Policy{
		backoffFactory: func() *backoff.ExponentialBackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initialInterval
			b.MaxInterval = maxInterval
			b.Multiplier = backoffMultiplier
			b.RandomizationFactor = randomizationFactor
			b.MaxElapsedTime = 0 // bounded externally by MaxAttempts, not elapsed time
			// NewExponentialBackOff's constructor already called Reset(),
			// which snapshots currentInterval from its own default
			// InitialInterval (500ms) before the fields above overwrite it.
			// Reset again so currentInterval starts from our values.
			b.Reset()
			return b
		},
	}
}

// MaxAttempts is the total number of attempts (first try plus retries).
func (p *Policy) MaxAttempts() int {
	return maxAttempts
}

// Run executes attempt repeatedly (up to MaxAttempts), sleeping the
// backoff-scheduled delay between transient failures. It stops immediately
// on success or a permanent failure, and on ctx cancellation.
func (p *Policy) Run(ctx context.Context, attempt func(ctx context.Context, attemptNum int) error) error {
	b := p.backoffFactory()

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		err := attempt(ctx, n)
		outcome := Classify(err)

		if outcome == Success {
			return nil
		}
		if outcome == Permanent {
			return err
		}

		lastErr = err
		if n == maxAttempts {
			break
		}

		delay := b.NextBackOff()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
