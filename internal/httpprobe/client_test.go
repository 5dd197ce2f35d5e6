// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package httpprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostSOAPSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/xml; charset=utf-8", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("SOAPAction"))
		assert.Contains(t, r.Header.Get("User-Agent"), "sentri/")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<Domains><Domain>contoso.com</Domain></Domains>"))
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	body, err := c.PostSOAP(context.Background(), srv.URL, "action", []byte("<req/>"), 8<<20)
	require.NoError(t, err)
	assert.Contains(t, string(body), "contoso.com")
}

func TestPostSOAPClassifiesTransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	_, err := c.PostSOAP(context.Background(), srv.URL, "action", []byte("<req/>"), 8<<20)
	require.Error(t, err)

	var herr *HttpError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindTransient, herr.Kind)
	assert.Equal(t, 503, herr.StatusCode)
}

func TestPostSOAPClassifiesPermanentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	_, err := c.PostSOAP(context.Background(), srv.URL, "action", []byte("<req/>"), 8<<20)
	require.Error(t, err)

	var herr *HttpError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindPermanent, herr.Kind)
	assert.Equal(t, 403, herr.StatusCode)
}

func TestPostSOAPRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	_, err := c.PostSOAP(context.Background(), srv.URL, "action", []byte("<req/>"), 16)
	require.Error(t, err)

	var herr *HttpError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindPermanent, herr.Kind)
}
