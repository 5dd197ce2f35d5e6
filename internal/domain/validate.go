// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package domain implements the Domain Validator (C1): normalization and
// rejection of malformed domain strings, built around label-grammar
// checks plus IDNA-aware normalization.
package domain

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

const (
	maxDomainLength = 253
	maxLabelLength  = 63
)

// ValidationError reports why a raw input failed Domain validation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

var idnaProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// Validate normalizes raw into a canonical domain: trimmed, lowercased,
// length-bounded, hyphen/charset-checked labels, a non-numeric final
// label, and rejection of IP literals and comment lines.
func Validate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &ValidationError{Reason: "Domain validation failed: empty input"}
	}
	if strings.HasPrefix(s, "#") {
		return "", &ValidationError{Reason: "Domain validation failed: comment line"}
	}
	if strings.Contains(s, ":") {
		return "", &ValidationError{Reason: "Domain validation failed: IP literal not allowed"}
	}

	lower := strings.ToLower(s)

	normalized, err := idnaProfile.ToASCII(lower)
	if err != nil {
		return "", &ValidationError{Reason: fmt.Sprintf("Domain validation failed: %v", err)}
	}

	if len(normalized) > maxDomainLength {
		return "", &ValidationError{Reason: "Domain validation failed: exceeds 253 characters"}
	}

	labels := strings.Split(normalized, ".")
	if len(labels) < 2 {
		return "", &ValidationError{Reason: "Domain validation failed: missing a label separator"}
	}

	for _, label := range labels {
		if err := validateLabel(label); err != nil {
			return "", err
		}
	}

	if isAllNumeric(labels[len(labels)-1]) {
		return "", &ValidationError{Reason: "Domain validation failed: IP literal not allowed"}
	}

	return normalized, nil
}

func validateLabel(label string) error {
	if len(label) == 0 {
		return &ValidationError{Reason: "Domain validation failed: empty label"}
	}
	if len(label) > maxLabelLength {
		return &ValidationError{Reason: "Domain validation failed: label exceeds 63 characters"}
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return &ValidationError{Reason: "Domain validation failed: label starts or ends with a hyphen"}
	}
	for _, r := range label {
		if !isLabelChar(r) {
			return &ValidationError{Reason: "Domain validation failed: illegal character in label"}
		}
	}
	return nil
}

func isLabelChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-':
		return true
	}
	return false
}

func isAllNumeric(label string) bool {
	if label == "" {
		return false
	}
	for _, r := range label {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
