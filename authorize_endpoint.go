package oidcreq

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/vdbulcke/assert"
	"github.com/vdbulcke/oidcreq/metric"
)

// ErrMalformedAuthorizationEndpoint the configured 'authorization_endpoint'
// is not a valid absolute uri. This is a configuration error, retrying
// the same request will fail the same way.
var ErrMalformedAuthorizationEndpoint = errors.New("malformed authorization endpoint uri")

// AuthRequestURLBuilder builds the url the End-User is redirected
// to in order to authenticate at the OpenID Provider.
type AuthRequestURLBuilder interface {
	BuildAuthRequestURL(ctx context.Context, server *ServerConfiguration, client *RegisteredClient, params *AuthRequestParams) (string, error)
}

var (
	_ AuthRequestURLBuilder = (*PlainAuthRequestURLBuilder)(nil)
	_ AuthRequestURLBuilder = (*SignedAuthRequestURLBuilder)(nil)
	_ AuthRequestURLBuilder = (*EncryptedAuthRequestURLBuilder)(nil)
)

// PlainAuthRequestURLBuilder sends every authorization request
// parameter in the query string of the 'authorization_endpoint'.
type PlainAuthRequestURLBuilder struct{}

func NewPlainAuthRequestURLBuilder() *PlainAuthRequestURLBuilder {
	return &PlainAuthRequestURLBuilder{}
}

func (b *PlainAuthRequestURLBuilder) BuildAuthRequestURL(ctx context.Context, server *ServerConfiguration, client *RegisteredClient, params *AuthRequestParams) (string, error) {
	assert.NotNil(server, assert.Panic, "plain: server configuration is required")
	assert.NotNil(client, assert.Panic, "plain: registered client is required")
	assert.NotNil(params, assert.Panic, "plain: params are required")

	err := validateAuthorizationEndpoint(server.AuthorizationEndpoint)
	if err != nil {
		return "", err
	}

	claims := NewAuthRequestClaims(client, params)

	metric.MonitorRequestObject("plain")
	return addParamsToEndpoint(server.AuthorizationEndpoint, claimsToValues(claims)), nil
}

// validateAuthorizationEndpoint checks endpoint is an absolute uri
// (rfc3986), any failure is returned wrapping
// [oidcreq.ErrMalformedAuthorizationEndpoint]
func validateAuthorizationEndpoint(endpoint string) error {
	for i := 0; i < len(endpoint); i++ {
		if !isURIChar(endpoint[i]) {
			return fmt.Errorf("%w: invalid character %q at index %d", ErrMalformedAuthorizationEndpoint, endpoint[i], i)
		}
	}

	// fragment = *( pchar / "/" / "?" )
	if strings.Count(endpoint, "#") > 1 {
		return fmt.Errorf("%w: '#' in fragment", ErrMalformedAuthorizationEndpoint)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedAuthorizationEndpoint, err)
	}

	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: '%s' is not an absolute uri", ErrMalformedAuthorizationEndpoint, endpoint)
	}

	return nil
}

// isURIChar reports whether c is an unreserved, reserved
// or '%' character of rfc3986
func isURIChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}

	return strings.IndexByte("-._~:/?#[]@!$&'()*+,;=%", c) >= 0
}

// addParamsToEndpoint appends params to the query of endpoint,
// the endpoint is kept as configured (query and fragment included).
func addParamsToEndpoint(endpoint string, params url.Values) string {
	encoded := params.Encode()
	if encoded == "" {
		return endpoint
	}

	base, fragment, hasFragment := strings.Cut(endpoint, "#")

	var buf bytes.Buffer
	buf.WriteString(base)

	switch {
	case !strings.Contains(base, "?"):
		buf.WriteByte('?')
	case !strings.HasSuffix(base, "?") && !strings.HasSuffix(base, "&"):
		buf.WriteByte('&')
	}
	buf.WriteString(encoded)

	if hasFragment {
		buf.WriteByte('#')
		buf.WriteString(fragment)
	}

	return buf.String()
}
