// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccepts(t *testing.T) {
	cases := []string{
		"a.b",
		"xn--abc.example.com",
		strings.Repeat("a", 63) + ".com",
	}

	for _, in := range cases {
		out, err := Validate(in)
		require.NoError(t, err, in)
		assert.Equal(t, strings.ToLower(in), out)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []string{
		"-a.b",
		"a-.b",
		strings.Repeat("a", 64) + ".com",
		"a..com",
		"1.2.3.4",
		"::1",
		"",
		strings.Repeat("a", 250) + ".com",
		"#comment.example.com",
	}

	for _, in := range cases {
		_, err := Validate(in)
		assert.Error(t, err, in)
	}
}

func TestValidateNormalizesCase(t *testing.T) {
	out, err := Validate("  Microsoft.COM  ")
	require.NoError(t, err)
	assert.Equal(t, "microsoft.com", out)
}
