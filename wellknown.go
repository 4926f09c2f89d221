package oidcreq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vdbulcke/assert"
	"github.com/vdbulcke/oidcreq/metric"
	"github.com/vdbulcke/oidcreq/tracing"
)

// ServerConfiguration the subset of the OpenID Provider
// metadata (OpenID Connect Discovery 1.0 / rfc8414) used
// to build authorization requests.
type ServerConfiguration struct {

	// REQUIRED.  URL using the https scheme with no query or fragment
	// components that the OP asserts as its Issuer Identifier.
	Issuer string `json:"issuer,omitempty" validate:"required,url"`

	// REQUIRED.  URL of the OP's OAuth 2.0 Authorization Endpoint
	// [OpenID.Core].  This URL MUST use the "https" scheme and MAY
	// contain port, path, and query parameter components.
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty" validate:"required,url"`

	// URL of the OP's OAuth 2.0 Token Endpoint [OpenID.Core].
	TokenEndpoint string `json:"token_endpoint,omitempty" validate:"omitempty,url"`

	// RECOMMENDED.  URL of the OP's UserInfo Endpoint [OpenID.Core].
	UserinfoEndpoint string `json:"userinfo_endpoint,omitempty" validate:"omitempty,url"`

	// REQUIRED.  URL of the OP's JWK Set [JWK] document, which MUST use
	// the "https" scheme.  The JWK Set MAY also contain the Server's
	// encryption key or keys, which are used by RPs to encrypt requests
	// to the Server.  When both signing and encryption keys are made
	// available, a "use" (public key use) parameter value is REQUIRED
	// for all keys in the referenced JWK Set to indicate each key's
	// intended usage.
	JwksUri string `json:"jwks_uri,omitempty" validate:"omitempty,url"`

	// RECOMMENDED.  JSON array containing a list of the OAuth 2.0
	// [RFC6749] scope values that this server supports.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// REQUIRED.  JSON array containing a list of the OAuth 2.0
	// "response_type" values that this OP supports.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`

	// OPTIONAL.  JSON array containing a list of Proof Key for Code
	// Exchange (PKCE) [RFC7636] code challenge methods supported by this
	// authorization server.  If omitted, the authorization server
	// does not support PKCE.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`

	// OPTIONAL.  Boolean value specifying whether the OP supports use of
	// the "request" parameter, with "true" indicating support.  If
	// omitted, the default value is "false".
	RequestParameterSupported bool `json:"request_parameter_supported,omitempty"`

	// OPTIONAL.  JSON array containing a list of the JWS signing
	// algorithms ("alg" values) supported by the OP for Request Objects.
	RequestObjectSigningAlgValuesSupported []string `json:"request_object_signing_alg_values_supported,omitempty"`

	// OPTIONAL.  JSON array containing a list of the JWE encryption
	// algorithms ("alg" values) supported by the OP for Request Objects.
	RequestObjectEncryptionAlgValuesSupported []string `json:"request_object_encryption_alg_values_supported,omitempty"`

	// OPTIONAL.  JSON array containing a list of the JWE encryption
	// algorithms ("enc" values) supported by the OP for Request Objects.
	RequestObjectEncryptionEncValuesSupported []string `json:"request_object_encryption_enc_values_supported,omitempty"`

	WellKnownRaw []byte `json:"-"`
}

// Validate checks the required metadata
// (issuer, authorization_endpoint) are present and that
// endpoints are urls.
//
// Building an authorization request does NOT call Validate.
func (s *ServerConfiguration) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("server-configuration: %w", err)
	}
	return nil
}

// SupportsPKCES256 returns true if "S256" is listed in
// 'code_challenge_methods_supported'
func (s *ServerConfiguration) SupportsPKCES256() bool {
	return slices.Contains(s.CodeChallengeMethodsSupported, PKCEMethodS256)
}

// SupportsRequestObjectEncryption returns true if the OP advertises
// both alg and enc for request objects encryption.
func (s *ServerConfiguration) SupportsRequestObjectEncryption(alg, enc string) bool {
	return slices.Contains(s.RequestObjectEncryptionAlgValuesSupported, alg) &&
		slices.Contains(s.RequestObjectEncryptionEncValuesSupported, enc)
}

type DiscoveryOptFunc func(*DiscoveryOptions)

// DiscoveryOptions options for making the
// call to the metadata endpoint
type DiscoveryOptions struct {
	http *httpLimitClient
}

// DiscoveryWithHttpClient set a [http.Client] and a limit for the http response
// for the metadata endpoint call.
//
// The limit is expressed as max number of bytes read from the response body
func DiscoveryWithHttpClient(client *http.Client, limit int64) DiscoveryOptFunc {
	return func(o *DiscoveryOptions) {
		if client == nil {
			client = http.DefaultClient
		}

		if limit < 0 {
			panic("http client limit cannot be negative")
		}

		o.http = newHttpLimitClient(limit, client)
	}
}

// DiscoveryWithHttpClientDefaultLimit like [oidcreq.DiscoveryWithHttpClient]
// with [oidcreq.LIMIT_HTTP_RESP_BODY_MAX_SIZE_BYTES] as limit
func DiscoveryWithHttpClientDefaultLimit(client *http.Client) DiscoveryOptFunc {
	return DiscoveryWithHttpClient(client, LIMIT_HTTP_RESP_BODY_MAX_SIZE_BYTES)
}

// NewServerConfigurationFromDiscovery fetch "/.well-known/openid-configuration"
// based on [issuer] according to OpenID Connect Discovery 1.0
func NewServerConfigurationFromDiscovery(ctx context.Context, issuer string, opts ...DiscoveryOptFunc) (*ServerConfiguration, error) {
	assert.StrNotEmpty(issuer, assert.Panic, "oidc-discovery: issuer cannot be empty")

	// OpenID Connect Discovery 1.0
	//  OpenID Providers supporting Discovery MUST make a JSON document
	//  available at the path formed by concatenating the string
	//  "/.well-known/openid-configuration" to the Issuer.
	wkEndpoint := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"

	cfg, err := fetchServerConfiguration(ctx, wkEndpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("oidc: %w", err)
	}

	// OpenID Connect Discovery 1.0
	//   The "issuer" value returned MUST be identical to the Issuer URL that
	//   was used as the prefix to "/.well-known/openid-configuration" to
	//   retrieve the configuration information.
	if cfg.Issuer != issuer {
		return nil, fmt.Errorf("oidc: well-known issuer not matching. expected %s got %s", issuer, cfg.Issuer)
	}

	return cfg, nil
}

// NewServerConfigurationFromRFC8414 fetch "/.well-known/oauth-authorization-server"
// based on [issuer] according to rfc8414: OAuth 2.0 Authorization Server Metadata
func NewServerConfigurationFromRFC8414(ctx context.Context, issuer string, opts ...DiscoveryOptFunc) (*ServerConfiguration, error) {
	assert.StrNotEmpty(issuer, assert.Panic, "rfc8414: issuer cannot be empty")

	wkEndpoint := strings.TrimSuffix(issuer, "/") + "/.well-known/oauth-authorization-server"

	cfg, err := fetchServerConfiguration(ctx, wkEndpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("rfc8414: %w", err)
	}

	// rfc8414
	//   If these values are not identical, the data contained in the response
	//   MUST NOT be used.
	if cfg.Issuer != issuer {
		return nil, fmt.Errorf("rfc8414: well-known issuer not matching. expected %s got %s", issuer, cfg.Issuer)
	}

	return cfg, nil
}

func fetchServerConfiguration(ctx context.Context, wkEndpoint string, opts ...DiscoveryOptFunc) (_ *ServerConfiguration, err error) {
	assert.NotNil(ctx, assert.Panic, "well-known: ctx cannot be nil")

	endpoint := metric.EndpointWellKnown
	timer := metric.NewTimer(endpoint)
	defer timer.ObserveDuration()
	defer metric.DeferMonitorError(endpoint, &err)

	opt := &DiscoveryOptions{
		http: newHttpLimitClient(LIMIT_HTTP_RESP_BODY_MAX_SIZE_BYTES, http.DefaultClient),
	}

	for _, fn := range opts {
		fn(opt)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wkEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	tracing.AddHeadersFromContext(ctx, req)

	resp, err := opt.http.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, opt.http.maxSizeBytes))
	if err != nil {
		return nil, err
	}

	if int64(len(body)) >= opt.http.maxSizeBytes {
		return nil, fmt.Errorf("well-known: http resp body max size limit exceeded: %d bytes", opt.http.maxSizeBytes)
	}

	if resp.StatusCode != http.StatusOK {
		err = &HttpErr{
			RespBody:       body,
			StatusCode:     resp.StatusCode,
			ResponseHeader: resp.Header,
			Err:            fmt.Errorf("invalid status code %d expected %d", resp.StatusCode, http.StatusOK),
		}

		return nil, err
	}

	var cfg ServerConfiguration
	err = json.Unmarshal(body, &cfg)
	if err != nil {
		err = &HttpErr{
			RespBody:       body,
			StatusCode:     resp.StatusCode,
			ResponseHeader: resp.Header,
			Err:            err,
		}
		return nil, err
	}
	cfg.WellKnownRaw = body

	return &cfg, nil
}
