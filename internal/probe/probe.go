// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package probe implements the Per-Domain Probe (C8): the state machine
// orchestrating validation, federation lookup, tenant derivation, and the
// MDI existence check for a single domain, always emitting a Record and
// never letting one domain's failure escape as a panic. One in-process
// state machine per call, rather than a shared multi-stage pipeline graph.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/copyleftdev/sentri/internal/cache"
	"github.com/copyleftdev/sentri/internal/dnsprobe"
	"github.com/copyleftdev/sentri/internal/domain"
	"github.com/copyleftdev/sentri/internal/httpprobe"
	"github.com/copyleftdev/sentri/internal/record"
	"github.com/copyleftdev/sentri/internal/retry"
	"github.com/copyleftdev/sentri/internal/soap"
)

const mdiSuffix = "sensorapi.atp.azure.com"

// Prober holds the shared singletons every per-domain probe uses:
// one HTTP client, one DNS resolver, one rate limiter, one cache.
type Prober struct {
	HTTP      *httpprobe.Client
	DNS       *dnsprobe.Resolver
	RateLimit interface{ Acquire(context.Context) error }
	Cache     *cache.Cache
	Retry     *retry.Policy

	// Endpoint overrides the federation lookup URL; defaults to
	// soap.Endpoint when empty. Exists so tests can point the probe at a
	// local fixture server instead of Microsoft's live endpoint.
	Endpoint string

	cacheHits int64
}

// CacheHits reports how many Run calls since the last ResetCacheHits
// short-circuited on a cached or in-flight-coalesced Record.
func (p *Prober) CacheHits() int64 {
	return atomic.LoadInt64(&p.cacheHits)
}

// ResetCacheHits zeroes the cache-hit counter, called once per chunk by the batch engine.
func (p *Prober) ResetCacheHits() {
	atomic.StoreInt64(&p.cacheHits, 0)
}

func (p *Prober) endpoint() string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	return soap.Endpoint
}

// Run executes the full C8 state machine for raw and returns a Record.
// It never returns an error and never panics; every terminal state is
// expressed as a populated Record.
func (p *Prober) Run(ctx context.Context, raw string) (rec *record.Record) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d := raw
			rec = record.New(d).WithError(fmt.Sprintf("internal probe failure: %v", r))
		}
		rec.ProcessingTimeMS = uint64(time.Since(start).Milliseconds())
	}()

	// VALIDATE
	normalized, err := domain.Validate(raw)
	if err != nil {
		return record.New(raw).WithError(err.Error())
	}

	if cached, ok := p.Cache.Get(normalized); ok {
		atomic.AddInt64(&p.cacheHits, 1)
		return cached.Clone()
	}

	claim := p.Cache.Claim(normalized)
	if !claim.Owner {
		if claim.Record != nil {
			atomic.AddInt64(&p.cacheHits, 1)
			return claim.Record.Clone()
		}
		// The owner aborted; fall through and compute it ourselves.
		claim = p.Cache.Claim(normalized)
		if !claim.Owner {
			if claim.Record != nil {
				atomic.AddInt64(&p.cacheHits, 1)
				return claim.Record.Clone()
			}
			return record.New(normalized).WithError("in-flight computation aborted")
		}
	}

	rec = p.compute(ctx, normalized)

	if ctx.Err() != nil {
		p.Cache.Abort(normalized)
	} else {
		p.Cache.Store(normalized, rec)
	}
	return rec
}

// compute runs FETCH_FEDERATION -> DERIVE_TENANT -> PROBE_MDI for an
// already-validated, normalized domain.
func (p *Prober) compute(ctx context.Context, normalized string) *record.Record {
	rec := record.New(normalized)

	federated, err := p.fetchFederation(ctx, normalized)
	if err != nil {
		return rec.WithError(err.Error())
	}
	rec = rec.WithFederatedDomains(federated)

	tenant, ok := deriveTenant(federated)
	if !ok {
		return rec.WithError("tenant not found")
	}
	rec = rec.WithTenant(tenant)

	mdiHost := tenant + mdiSuffix
	exists, err := p.DNS.Exists(ctx, mdiHost)
	if err != nil {
		return rec.WithError(err.Error())
	}
	if exists {
		rec = rec.WithMDIInstance(mdiHost)
	}
	return rec
}

// fetchFederation runs C5 acquire -> C3 POST -> C2 parse, retried through
// C6 for transient outcomes.
func (p *Prober) fetchFederation(ctx context.Context, normalized string) ([]string, error) {
	var result []string

	err := p.Retry.Run(ctx, func(ctx context.Context, attemptNum int) error {
		if err := p.RateLimit.Acquire(ctx); err != nil {
			return err
		}

		reqBody := soap.BuildRequest(normalized)
		respBody, err := p.HTTP.PostSOAP(ctx, p.endpoint(), soap.SOAPAction, reqBody, soap.MaxResponseSize)
		if err != nil {
			return err
		}

		domains, err := soap.ParseResponse(bytes.NewReader(respBody))
		if err != nil {
			return err
		}

		result = domains
		return nil
	})

	return result, err
}

// deriveTenant scans the FederatedDomainList for the first
// {label}.onmicrosoft.com entry and returns its label, case-insensitively.
func deriveTenant(federated []string) (string, bool) {
	const suffix = ".onmicrosoft.com"
	for _, d := range federated {
		lower := strings.ToLower(d)
		if strings.HasSuffix(lower, suffix) && len(lower) > len(suffix) {
			return lower[:len(lower)-len(suffix)], true
		}
	}
	return "", false
}
