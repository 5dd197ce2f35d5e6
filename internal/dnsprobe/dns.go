// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package dnsprobe implements the DNS Probe (C4): an MDI sensor existence
// check backed by a caching miekg/dns client, reduced to the single
// exists() operation this tool needs instead of a full active-resolution
// engine with a resolver pool.
package dnsprobe

import (
	"context"
	"sync"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultCacheSize   = 4096
	defaultQueryTO     = 2 * time.Second
	defaultMaxAttempts = 3 // one original attempt plus up to 2 retries
)

// DnsError reports a SERVFAIL, a timeout surviving all retries, or any
// other resolver-level failure. NXDOMAIN is not an error; it yields false.
type DnsError struct {
	Reason string
}

func (e *DnsError) Error() string {
	return "DNS probe failed: " + e.Reason
}

type cacheEntry struct {
	exists  bool
	expires time.Time
}

// Resolver answers Exists queries against a configured upstream, caching
// positive and negative results for the record's TTL (or 30 seconds when
// the upstream didn't attach one).
type Resolver struct {
	server      string
	client      *dns.Client
	cacheSize   int
	queryTO     time.Duration
	maxAttempts int

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithServer overrides the upstream nameserver (host:port). Without it the
// Resolver queries 1.1.1.1:53; the system resolver configuration is not read.
func WithServer(addr string) Option {
	return func(r *Resolver) { r.server = addr }
}

// WithCacheSize overrides the positive-cache capacity.
func WithCacheSize(n int) Option {
	return func(r *Resolver) { r.cacheSize = n }
}

// WithQueryTimeout overrides the per-query timeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.queryTO = d }
}

// NewResolver builds a Resolver. server defaults to "1.1.1.1:53" when unset
// via WithServer.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		server:      "1.1.1.1:53",
		cacheSize:   defaultCacheSize,
		queryTO:     defaultQueryTO,
		maxAttempts: defaultMaxAttempts,
		cache:       make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.client = &dns.Client{Timeout: r.queryTO}
	return r
}

// Exists reports whether host resolves to at least one A or AAAA record.
func (r *Resolver) Exists(ctx context.Context, host string) (bool, error) {
	if cached, ok := r.lookupCache(host); ok {
		return cached, nil
	}

	exists, ttl, err := r.query(ctx, host)
	if err != nil {
		return false, err
	}

	r.storeCache(host, exists, ttl)
	return exists, nil
}

func (r *Resolver) lookupCache(host string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cache[host]
	if !ok || time.Now().After(e.expires) {
		return false, false
	}
	return e.exists, true
}

func (r *Resolver) storeCache(host string, exists bool, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.cache) >= r.cacheSize {
		for k := range r.cache {
			delete(r.cache, k)
			break
		}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	r.cache[host] = cacheEntry{exists: exists, expires: time.Now().Add(ttl)}
}

func (r *Resolver) query(ctx context.Context, host string) (bool, time.Duration, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false, 0, &DnsError{Reason: ctx.Err().Error()}
		default:
		}

		found, ttl, retryable, err := r.exchange(host, dns.TypeA)
		if err == nil {
			if found {
				return true, ttl, nil
			}
			// Fall through to AAAA only when A produced a clean NOERROR/NXDOMAIN.
			foundAAAA, ttl6, retryable6, err6 := r.exchange(host, dns.TypeAAAA)
			if err6 == nil {
				return foundAAAA, ttl6, nil
			}
			if !retryable6 {
				return false, 0, err6
			}
			lastErr = err6
			continue
		}

		if !retryable {
			return false, 0, err
		}
		lastErr = err
	}

	return false, 0, lastErr
}

// exchange performs a single query/response round trip and classifies the
// result. retryable is true for SERVFAIL and transport-level failures.
func (r *Resolver) exchange(host string, qtype uint16) (found bool, ttl time.Duration, retryable bool, err error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	resp, _, xerr := r.client.Exchange(msg, r.server)
	if xerr != nil {
		return false, 0, true, &DnsError{Reason: xerr.Error()}
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				return true, time.Duration(rec.Hdr.Ttl) * time.Second, false, nil
			case *dns.AAAA:
				return true, time.Duration(rec.Hdr.Ttl) * time.Second, false, nil
			}
		}
		return false, 0, false, nil
	case dns.RcodeNameError:
		return false, 0, false, nil
	case dns.RcodeServerFailure:
		return false, 0, true, &DnsError{Reason: "SERVFAIL"}
	default:
		return false, 0, false, &DnsError{Reason: dns.RcodeToString[resp.Rcode]}
	}
}
