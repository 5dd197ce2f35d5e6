// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package httpprobe implements the HTTP Probe (C3): a single process-wide
// client configured with strict TLS and bounded redirects, and the
// PostSOAP operation that drives it.
package httpprobe

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Version is substituted into the fixed User-Agent string.
var Version = "dev"

// Config mirrors the non-negotiable HTTP client options.
type Config struct {
	VerifyCertificates bool
	MinTLSVersion      uint16
	MaxRedirects       int
	RequestTimeout     time.Duration
	PoolIdleTimeout    time.Duration
	TCPKeepAlive       time.Duration
	PreferHTTP2        bool
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		VerifyCertificates: true,
		MinTLSVersion:      tls.VersionTLS12,
		MaxRedirects:       5,
		RequestTimeout:     5000 * time.Millisecond,
		PoolIdleTimeout:    90000 * time.Millisecond,
		TCPKeepAlive:       60 * time.Second,
		PreferHTTP2:        true,
	}
}

// Kind classifies an HttpError for the retry policy.
type Kind int

const (
	// KindTransient covers errors worth retrying: connect/read timeouts,
	// resets, and the retryable status codes.
	KindTransient Kind = iota
	// KindPermanent covers errors that will not be fixed by retrying.
	KindPermanent
)

// HttpError carries the classified outcome of a failed post_soap call.
type HttpError struct {
	StatusCode int
	Kind       Kind
	Reason     string
}

func (e *HttpError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP probe failed: status %d: %s", e.StatusCode, e.Reason)
	}
	return "HTTP probe failed: " + e.Reason
}

var transientStatus = map[int]bool{
	408: true, 425: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
}

func classifyStatus(code int) Kind {
	if code >= 500 || transientStatus[code] {
		return KindTransient
	}
	return KindPermanent
}

// Client wraps the single process-wide *http.Client and its fixed headers.
type Client struct {
	cfg        Config
	httpClient *http.Client
	userAgent  string
}

// New builds the process-wide HTTP client. Called once at startup.
func New(cfg Config) *Client {
	dialer := &net.Dialer{
		Timeout:   cfg.RequestTimeout,
		KeepAlive: cfg.TCPKeepAlive,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     cfg.PoolIdleTimeout,
		TLSHandshakeTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:   cfg.PreferHTTP2,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifyCertificates,
			MinVersion:         cfg.MinTLSVersion,
		},
	}

	hc := &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}

	return &Client{
		cfg:        cfg,
		httpClient: hc,
		userAgent:  "sentri/" + Version,
	}
}

// PostSOAP issues the POST carrying a SOAP envelope and returns the raw
// response body, bounded to maxBodySize bytes.
func (c *Client) PostSOAP(ctx context.Context, url, soapAction string, body []byte, maxBodySize int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &HttpError{Kind: KindPermanent, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := KindTransient
		if isPermanentTransportError(err) {
			kind = KindPermanent
		}
		return nil, &HttpError{Kind: kind, Reason: err.Error()}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxBodySize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &HttpError{Kind: KindTransient, Reason: err.Error()}
	}

	if int64(len(data)) > maxBodySize {
		return nil, &HttpError{Kind: KindPermanent, Reason: "response body exceeds maximum size"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HttpError{
			StatusCode: resp.StatusCode,
			Kind:       classifyStatus(resp.StatusCode),
			Reason:     resp.Status,
		}
	}

	return data, nil
}

// isPermanentTransportError reports whether err indicates a failure the
// retry policy should never attempt again, such as a TLS handshake or
// certificate verification failure, or an exceeded redirect limit.
func isPermanentTransportError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{
		"x509:", "tls:", "certificate", "stopped after", "handshake",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
