// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package soap

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/copyleftdev/sentri/internal/domain"
)

// ParseError reports a malformed, oversized, or empty SOAP response.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "SOAP parse failed: " + e.Reason
}

// localName strips a namespace prefix from an xml.Name, since GetFederationInformation
// responses vary the prefix bound to the autodiscover namespace across tenants.
func localName(n xml.Name) string {
	return n.Local
}

// limitedReader caps how many bytes the decoder is allowed to consume,
// rejecting oversized responses instead of buffering the whole thing first.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, fmt.Errorf("response exceeds %d bytes", MaxResponseSize)
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

// ParseResponse streams the <Domain> elements out of a GetFederationInformation
// response body without building a DOM. Elements are matched by local name
// only, tolerant of whatever namespace prefix the server chose. Each
// extracted candidate is re-validated; invalid ones are silently dropped.
func ParseResponse(r io.Reader) ([]string, error) {
	lr := &limitedReader{r: r, remaining: MaxResponseSize}
	dec := xml.NewDecoder(lr)

	var (
		domains      []string
		inDomains    bool
		inDomainElem bool
		text         []byte
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Reason: err.Error()}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch localName(t.Name) {
			case "Domains":
				inDomains = true
			case "Domain":
				if inDomains {
					inDomainElem = true
					text = text[:0]
				}
			}
		case xml.CharData:
			if inDomainElem {
				text = append(text, t...)
			}
		case xml.EndElement:
			switch localName(t.Name) {
			case "Domains":
				inDomains = false
			case "Domain":
				if inDomainElem {
					inDomainElem = false
					if candidate, verr := domain.Validate(string(text)); verr == nil {
						domains = append(domains, candidate)
					}
				}
			}
		}
	}

	if len(domains) == 0 {
		return nil, &ParseError{Reason: "no Domain elements found"}
	}
	return domains, nil
}
