// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package soap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestEmbedsDomain(t *testing.T) {
	body := BuildRequest("contoso.com")
	s := string(body)
	assert.Contains(t, s, "<Domain>contoso.com</Domain>")
	assert.Contains(t, s, "GetFederationInformationRequestMessage")
}

func TestBuildRequestEscapesText(t *testing.T) {
	body := BuildRequest("a&b.com")
	assert.Contains(t, string(body), "a&amp;b.com")
}

const fixtureResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetFederationInformationResponseMessage xmlns="http://schemas.microsoft.com/exchange/2010/Autodiscover">
      <Response>
        <Domains>
          <Domain>contoso.com</Domain>
          <Domain>contoso.onmicrosoft.com</Domain>
          <Domain>mail.contoso.com</Domain>
        </Domains>
      </Response>
    </GetFederationInformationResponseMessage>
  </soap:Body>
</soap:Envelope>`

func TestParseResponseExtractsDomainsInOrder(t *testing.T) {
	got, err := ParseResponse(strings.NewReader(fixtureResponse))
	require.NoError(t, err)
	assert.Equal(t, []string{"contoso.com", "contoso.onmicrosoft.com", "mail.contoso.com"}, got)
}

func TestParseResponseToleratesPrefixedNamespaces(t *testing.T) {
	const prefixed = `<a:GetFederationInformationResponseMessage xmlns:a="http://schemas.microsoft.com/exchange/2010/Autodiscover">
  <a:Response><a:Domains><a:Domain>fabrikam.com</a:Domain></a:Domains></a:Response>
</a:GetFederationInformationResponseMessage>`
	got, err := ParseResponse(strings.NewReader(prefixed))
	require.NoError(t, err)
	assert.Equal(t, []string{"fabrikam.com"}, got)
}

func TestParseResponseDiscardsInvalidCandidatesSilently(t *testing.T) {
	const withJunk = `<Domains><Domain>good.com</Domain><Domain>-bad-.com</Domain></Domains>`
	got, err := ParseResponse(strings.NewReader(withJunk))
	require.NoError(t, err)
	assert.Equal(t, []string{"good.com"}, got)
}

func TestParseResponseRejectsNoDomainElements(t *testing.T) {
	_, err := ParseResponse(strings.NewReader(`<Domains></Domains>`))
	require.Error(t, err)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestParseResponseRejectsMalformedXML(t *testing.T) {
	_, err := ParseResponse(strings.NewReader(`<Domains><Domain>oops`))
	require.Error(t, err)
}

func TestParseResponseRejectsOversizedBody(t *testing.T) {
	huge := "<Domains>" + strings.Repeat("<!-- pad -->", MaxResponseSize/10) + "<Domain>x.com</Domain></Domains>"
	_, err := ParseResponse(strings.NewReader(huge))
	require.Error(t, err)
}
