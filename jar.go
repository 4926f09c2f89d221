package oidcreq

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vdbulcke/assert"
	"github.com/vdbulcke/oidcreq/metric"
)

type SignedBuilderOptFunc func(*SignedAuthRequestURLBuilder)

// WithRFC9101JarJwtTTL set the time to live ('exp') of
// the 'request=' jwt. Default 10 minutes.
func WithRFC9101JarJwtTTL(ttl time.Duration) SignedBuilderOptFunc {
	return func(b *SignedAuthRequestURLBuilder) {
		b.ttl = ttl
	}
}

// WithLegacyRequestJwtTyp does not set the 'typ: oauth-authz-req+jwt'
// header, for OP only supporting OpenID Connect Core request objects.
func WithLegacyRequestJwtTyp() SignedBuilderOptFunc {
	return func(b *SignedAuthRequestURLBuilder) {
		b.legacyTyp = true
	}
}

// SignedAuthRequestURLBuilder sends the authorization request
// parameters as a signed request object (rfc9101 'request=' parameter).
type SignedAuthRequestURLBuilder struct {
	signer    OAuthPrivateKey
	ttl       time.Duration
	legacyTyp bool
}

func NewSignedAuthRequestURLBuilder(signer OAuthPrivateKey, opts ...SignedBuilderOptFunc) *SignedAuthRequestURLBuilder {
	assert.NotNil(signer, assert.Panic, "rfc9101: private key required for generating 'request' JAR")

	b := &SignedAuthRequestURLBuilder{
		signer: signer,
		ttl:    10 * time.Minute,
	}

	for _, fn := range opts {
		fn(b)
	}

	return b
}

func (b *SignedAuthRequestURLBuilder) BuildAuthRequestURL(ctx context.Context, server *ServerConfiguration, client *RegisteredClient, params *AuthRequestParams) (string, error) {
	assert.NotNil(server, assert.Panic, "rfc9101: server configuration is required")
	assert.NotNil(client, assert.Panic, "rfc9101: registered client is required")
	assert.NotNil(params, assert.Panic, "rfc9101: params are required")

	err := validateAuthorizationEndpoint(server.AuthorizationEndpoint)
	if err != nil {
		return "", err
	}

	request, err := b.generateRequestJwt(server, client, NewAuthRequestClaims(client, params))
	if err != nil {
		return "", err
	}

	// request
	//      REQUIRED unless "request_uri" is specified.  The Request Object
	//      (Section 2.1) that holds authorization request parameters stated
	//      in Section 4 of [RFC6749] (OAuth 2.0).
	values := url.Values{}
	values.Set("request", request)

	metric.MonitorRequestObject("signed")
	return addParamsToEndpoint(server.AuthorizationEndpoint, values), nil
}

func (b *SignedAuthRequestURLBuilder) generateRequestJwt(server *ServerConfiguration, client *RegisteredClient, claims jwt.MapClaims) (string, error) {
	now := time.Now()

	jwtClaims := jwt.MapClaims{}
	jwtClaims["exp"] = jwt.NewNumericDate(now.Add(b.ttl))
	jwtClaims["iat"] = jwt.NewNumericDate(now)
	jwtClaims["nbf"] = jwt.NewNumericDate(now)

	// rfc9101
	// The value of "aud" should be the value of
	// the authorization server (AS) "issuer", as defined in RFC 8414
	// [RFC8414].
	jwtClaims["aud"] = server.Issuer
	jwtClaims["iss"] = client.ClientId

	for k, v := range claims {
		jwtClaims[k] = v
	}

	headers := []*HeaderField{}
	if !b.legacyTyp {
		// rfc9101 10.8 Cross Jwt Confusion
		headers = append(headers, &HeaderField{Key: "typ", Value: "oauth-authz-req+jwt"})
	}

	signedJwt, err := b.signer.SignJWT(jwtClaims, headers...)
	if err != nil {
		return "", fmt.Errorf("rfc9101: %w", err)
	}

	return signedJwt, nil
}
