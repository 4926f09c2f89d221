package oidcreq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/vdbulcke/assert"
	"github.com/vdbulcke/oidcreq/metric"
)

type EncryptedBuilderOptFunc func(*EncryptedAuthRequestURLBuilder)

// WithEncryptionKeyID use the key with 'kid' from the OP
// 'jwks_uri' instead of the first encryption key matching alg.
func WithEncryptionKeyID(kid string) EncryptedBuilderOptFunc {
	return func(b *EncryptedAuthRequestURLBuilder) {
		b.kid = kid
	}
}

// WithEncryptedBuilderLogger set the logger, default [slog.Default]
func WithEncryptedBuilderLogger(logger *slog.Logger) EncryptedBuilderOptFunc {
	return func(b *EncryptedAuthRequestURLBuilder) {
		b.logger = logger
	}
}

// EncryptedAuthRequestURLBuilder sends the authorization request
// parameters as an encrypted request object ('request=' parameter)
// readable only by the OpenID Provider.
//
// The request object is encrypted to a public key published at
// the OP 'jwks_uri'.
type EncryptedAuthRequestURLBuilder struct {
	service EncrypterService
	alg     jose.KeyAlgorithm
	enc     jose.ContentEncryption
	kid     string
	logger  *slog.Logger
}

// NewEncryptedAuthRequestURLBuilder creates a builder encrypting with alg/enc.
//
// returns [oidcreq.ErrUnsupportedEncryptionAlg] if alg or enc
// cannot be used to encrypt a request object.
func NewEncryptedAuthRequestURLBuilder(service EncrypterService, alg jose.KeyAlgorithm, enc jose.ContentEncryption, opts ...EncryptedBuilderOptFunc) (*EncryptedAuthRequestURLBuilder, error) {
	assert.NotNil(service, assert.Panic, "jwe: encrypter service is required")

	if _, err := keyTypeForAlg(alg); err != nil {
		return nil, err
	}

	if !isSupportedContentEncryption(enc) {
		return nil, fmt.Errorf("%w: enc '%s'", ErrUnsupportedEncryptionAlg, enc)
	}

	b := &EncryptedAuthRequestURLBuilder{
		service: service,
		alg:     alg,
		enc:     enc,
		logger:  slog.Default(),
	}

	for _, fn := range opts {
		fn(b)
	}

	return b, nil
}

func (b *EncryptedAuthRequestURLBuilder) BuildAuthRequestURL(ctx context.Context, server *ServerConfiguration, client *RegisteredClient, params *AuthRequestParams) (string, error) {
	assert.NotNil(ctx, assert.Panic, "jwe: ctx cannot be nil")
	assert.NotNil(server, assert.Panic, "jwe: server configuration is required")
	assert.NotNil(client, assert.Panic, "jwe: registered client is required")
	assert.NotNil(params, assert.Panic, "jwe: params are required")

	err := validateAuthorizationEndpoint(server.AuthorizationEndpoint)
	if err != nil {
		return "", err
	}

	claims := NewAuthRequestClaims(client, params)

	request, err := b.encrypt(ctx, server.JwksUri, claims)
	if err != nil {
		b.logger.Error("request object encryption failed", "jwks_uri", server.JwksUri, "alg", b.alg, "enc", b.enc, "err", err)
		return "", fmt.Errorf("jwe: %w", err)
	}

	values := url.Values{}
	values.Set("request", request)

	metric.MonitorRequestObject("encrypted")
	return addParamsToEndpoint(server.AuthorizationEndpoint, values), nil
}

// encrypt encrypts claims to the 'jwks_uri' key set. If no key of the
// cached set matches (e.g. the OP rotated its encryption key) and the
// service implements [oidcreq.EncrypterRefresher], the set is refreshed
// and encryption retried once.
func (b *EncryptedAuthRequestURLBuilder) encrypt(ctx context.Context, jwksUri string, claims jwt.Claims) (string, error) {
	header := &JWEHeader{
		Alg:   b.alg,
		Enc:   b.enc,
		KeyID: b.kid,
	}

	encrypter, err := b.service.GetEncrypter(ctx, jwksUri)
	if err != nil {
		return "", err
	}

	request, err := encrypter.EncryptJWT(claims, header)
	if err == nil || !errors.Is(err, ErrNoEncryptionKey) {
		return request, err
	}

	refresher, ok := b.service.(EncrypterRefresher)
	if !ok {
		return "", err
	}

	b.logger.Debug("no matching encryption key, refreshing jwks_uri", "jwks_uri", jwksUri, "kid", b.kid, "err", err)
	if err := refresher.Refresh(ctx, jwksUri); err != nil {
		return "", err
	}

	encrypter, err = b.service.GetEncrypter(ctx, jwksUri)
	if err != nil {
		return "", err
	}

	return encrypter.EncryptJWT(claims, header)
}

// ParseJWEHeader parses the 'alg' and 'enc' names as registered
// in rfc7518 (e.g. "RSA-OAEP-256", "A256GCM")
func ParseJWEHeader(alg, enc string) (*JWEHeader, error) {
	h := &JWEHeader{
		Alg: jose.KeyAlgorithm(alg),
		Enc: jose.ContentEncryption(enc),
	}

	if _, err := keyTypeForAlg(h.Alg); err != nil {
		return nil, err
	}

	if !isSupportedContentEncryption(h.Enc) {
		return nil, fmt.Errorf("%w: enc '%s'", ErrUnsupportedEncryptionAlg, enc)
	}

	return h, nil
}

func isSupportedContentEncryption(enc jose.ContentEncryption) bool {
	switch enc {
	case jose.A128CBC_HS256, jose.A192CBC_HS384, jose.A256CBC_HS512,
		jose.A128GCM, jose.A192GCM, jose.A256GCM:
		return true
	default:
		return false
	}
}
