// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package soap implements the SOAP Envelope Codec (C2): building the fixed
// autodiscover request body and streaming the federated-domain list out of
// the response, without ever materializing a DOM.
package soap

import (
	"fmt"
)

// Endpoint is Microsoft's autodiscover SOAP endpoint.
const Endpoint = "https://autodiscover-s.outlook.com/autodiscover/autodiscover.svc"

// SOAPAction is the fixed SOAPAction header value for GetFederationInformation.
const SOAPAction = `"http://schemas.microsoft.com/exchange/2010/Autodiscover/Autodiscover/GetFederationInformation"`

// MaxResponseSize bounds the response body the parser will accept.
const MaxResponseSize = 8 << 20 // 8 MiB

const envelopeTemplate = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"
               xmlns:a="http://schemas.microsoft.com/exchange/2010/Autodiscover"
               xmlns:wsa="http://www.w3.org/2005/08/addressing">
  <soap:Header>
    <a:RequestedServerVersion>Exchange2010</a:RequestedServerVersion>
    <wsa:Action soap:mustUnderstand="1">http://schemas.microsoft.com/exchange/2010/Autodiscover/Autodiscover/GetFederationInformation</wsa:Action>
    <wsa:To soap:mustUnderstand="1">https://autodiscover-s.outlook.com/autodiscover/autodiscover.svc</wsa:To>
  </soap:Header>
  <soap:Body>
    <GetFederationInformationRequestMessage xmlns="http://schemas.microsoft.com/exchange/2010/Autodiscover">
      <Request>
        <Domain>%s</Domain>
      </Request>
    </GetFederationInformationRequestMessage>
  </soap:Body>
</soap:Envelope>`

// BuildRequest produces the SOAP 1.1 envelope invoking GetFederationInformation
// for the given (already validated, normalized) Domain. The envelope is
// literal except for the single Domain substitution point — no general
// templating engine is used.
func BuildRequest(normalizedDomain string) []byte {
	return []byte(fmt.Sprintf(envelopeTemplate, escapeXMLText(normalizedDomain)))
}

func escapeXMLText(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			out = append(out, []byte("&amp;")...)
		case '<':
			out = append(out, []byte("&lt;")...)
		case '>':
			out = append(out, []byte("&gt;")...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
