package oidcreq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/vdbulcke/assert"
	"github.com/vdbulcke/oidcreq/metric"
	"github.com/vdbulcke/oidcreq/tracing"
	"golang.org/x/sync/singleflight"
)

// sentinel errors
var (
	ErrNoEncryptionKey          = errors.New("jwks_uri: no encryption key matching alg")
	ErrUnsupportedEncryptionAlg = errors.New("jwe: unsupported encryption algorithm")
)

// JWEHeader the algorithms used to encrypt
// a request object.
type JWEHeader struct {
	// key management algorithm ('alg')
	Alg jose.KeyAlgorithm
	// content encryption algorithm ('enc')
	Enc jose.ContentEncryption
	// KeyID optional 'kid' of the key to use in
	// the remote key set
	KeyID string
}

// JWTEncrypter encrypts a claim set to a remote key.
type JWTEncrypter interface {
	EncryptJWT(claims jwt.Claims, header *JWEHeader) (string, error)
}

// EncrypterService returns a [oidcreq.JWTEncrypter] for
// the keys published at jwksUri
type EncrypterService interface {
	GetEncrypter(ctx context.Context, jwksUri string) (JWTEncrypter, error)
}

// EncrypterRefresher is implemented by an [oidcreq.EncrypterService]
// able to force a new fetch of jwksUri
type EncrypterRefresher interface {
	Refresh(ctx context.Context, jwksUri string) error
}

var (
	_ EncrypterService   = (*JWKSetCacheService)(nil)
	_ EncrypterRefresher = (*JWKSetCacheService)(nil)
	_ JWTEncrypter       = (*JWKSetEncrypter)(nil)
)

type JWKSetCacheOptFunc func(*JWKSetCacheService)

// WithJWKSetHttpClient override the default [http.DefaultClient]
// used to fetch the 'jwks_uri'
func WithJWKSetHttpClient(client *http.Client) JWKSetCacheOptFunc {
	return func(s *JWKSetCacheService) {
		s.client = client
	}
}

// WithJWKSetMinRefreshInterval set the minimum interval between
// two fetch of the same 'jwks_uri'. Default 15 minutes
func WithJWKSetMinRefreshInterval(d time.Duration) JWKSetCacheOptFunc {
	return func(s *JWKSetCacheService) {
		s.minRefresh = d
	}
}

// WithJWKSetLogger set the logger, default [slog.Default]
func WithJWKSetLogger(logger *slog.Logger) JWKSetCacheOptFunc {
	return func(s *JWKSetCacheService) {
		s.logger = logger
	}
}

// JWKSetCacheService implements [oidcreq.EncrypterService].
//
// It will fetch and cache the JWK Set of each 'jwks_uri'
// it is asked an encrypter for. Safe for concurrent use.
type JWKSetCacheService struct {
	client     *http.Client
	minRefresh time.Duration
	logger     *slog.Logger

	cache         *jwk.Cache
	registerGroup singleflight.Group
}

// NewJWKSetCacheService creates a new JWK Set cache. The background
// refresh of registered 'jwks_uri' stops when ctx is done.
//
// if ctx was created with [tracing.ContextWithTraceID] the trace header
// is sent on every 'jwks_uri' request.
func NewJWKSetCacheService(ctx context.Context, opts ...JWKSetCacheOptFunc) *JWKSetCacheService {
	assert.NotNil(ctx, assert.Panic, "jwks_uri: ctx cannot be nil")

	s := &JWKSetCacheService{
		client:     http.DefaultClient,
		minRefresh: 15 * time.Minute,
		logger:     slog.Default(),
	}

	for _, fn := range opts {
		fn(s)
	}

	header, id := tracing.FromContext(ctx)
	if header != "" && id != "" {
		traced := *s.client
		traced.Transport = &tracing.Transport{Base: s.client.Transport, Header: header, ID: id}
		s.client = &traced
	}

	s.cache = jwk.NewCache(ctx)

	return s
}

// GetEncrypter returns a [oidcreq.JWTEncrypter] bound to the
// current JWK Set published at jwksUri.
//
// The first call for a jwksUri registers it in the cache and
// fetches it.
func (s *JWKSetCacheService) GetEncrypter(ctx context.Context, jwksUri string) (_ JWTEncrypter, err error) {
	assert.NotNil(ctx, assert.Panic, "jwks_uri: ctx cannot be nil")

	if jwksUri == "" {
		return nil, errors.New("jwks_uri: server configuration has no 'jwks_uri'")
	}

	endpoint := metric.EndpointJwksUri
	timer := metric.NewTimer(endpoint)
	defer timer.ObserveDuration()
	defer metric.DeferMonitorError(endpoint, &err)

	err = s.register(jwksUri)
	if err != nil {
		return nil, err
	}

	set, err := s.cache.Get(ctx, jwksUri)
	if err != nil {
		s.logger.Warn("jwks_uri fetch failed", "jwks_uri", jwksUri, "err", err)
		return nil, fmt.Errorf("jwks_uri: fetch %w", err)
	}

	return &JWKSetEncrypter{JwksUri: jwksUri, set: set}, nil
}

// Refresh forces a new fetch of jwksUri, e.g. after the OP
// rotated its encryption key.
func (s *JWKSetCacheService) Refresh(ctx context.Context, jwksUri string) (err error) {
	endpoint := metric.EndpointJwksUri
	defer metric.DeferMonitorError(endpoint, &err)

	err = s.register(jwksUri)
	if err != nil {
		return err
	}

	_, err = s.cache.Refresh(ctx, jwksUri)
	if err != nil {
		return fmt.Errorf("jwks_uri: refresh %w", err)
	}
	return nil
}

func (s *JWKSetCacheService) register(jwksUri string) error {
	if s.cache.IsRegistered(jwksUri) {
		return nil
	}

	_, err, _ := s.registerGroup.Do(jwksUri, func() (interface{}, error) {
		if s.cache.IsRegistered(jwksUri) {
			return nil, nil
		}

		s.logger.Debug("registering jwks_uri", "jwks_uri", jwksUri, "min_refresh", s.minRefresh)
		err := s.cache.Register(jwksUri,
			jwk.WithMinRefreshInterval(s.minRefresh),
			jwk.WithHTTPClient(s.client),
		)
		if err != nil {
			return nil, fmt.Errorf("jwks_uri: register %w", err)
		}

		return nil, nil
	})

	return err
}

// JWKSetEncrypter encrypts claims to a key of a
// fetched JWK Set
type JWKSetEncrypter struct {
	JwksUri string

	set jwk.Set
}

// EncryptJWT serializes claims as JSON and encrypts them to the key
// of the set matching header (compact serialization).
func (e *JWKSetEncrypter) EncryptJWT(claims jwt.Claims, header *JWEHeader) (string, error) {
	assert.NotNil(header, assert.Panic, "jwe: header cannot be nil")

	key, err := e.encryptionKey(header)
	if err != nil {
		return "", err
	}

	var raw interface{}
	err = key.Raw(&raw)
	if err != nil {
		return "", fmt.Errorf("jwe: key '%s' %w", key.KeyID(), err)
	}

	encrypter, err := jose.NewEncrypter(header.Enc, jose.Recipient{
		Algorithm: header.Alg,
		Key:       raw,
		KeyID:     key.KeyID(),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("jwe: %w", err)
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("jwe: claims %w", err)
	}

	obj, err := encrypter.Encrypt(payload)
	if err != nil {
		return "", fmt.Errorf("jwe: %w", err)
	}

	return obj.CompactSerialize()
}

// encryptionKey returns the key with header.KeyID, or the first key
// usable for encryption with header.Alg
func (e *JWKSetEncrypter) encryptionKey(header *JWEHeader) (jwk.Key, error) {
	kty, err := keyTypeForAlg(header.Alg)
	if err != nil {
		return nil, err
	}

	if header.KeyID != "" {
		key, ok := e.set.LookupKeyID(header.KeyID)
		if !ok {
			return nil, fmt.Errorf("%w: kid '%s' not found in %s", ErrNoEncryptionKey, header.KeyID, e.JwksUri)
		}
		if key.KeyType() != kty {
			return nil, fmt.Errorf("%w: kid '%s' is %s expected %s", ErrNoEncryptionKey, header.KeyID, key.KeyType(), kty)
		}
		return key, nil
	}

	for i := 0; i < e.set.Len(); i++ {
		key, ok := e.set.Key(i)
		if !ok {
			continue
		}

		// When both signing and encryption keys are made
		// available, a "use" (public key use) parameter value is REQUIRED
		// for all keys in the referenced JWK Set
		if use := key.KeyUsage(); use != "" && use != string(jwk.ForEncryption) {
			continue
		}

		if key.KeyType() == kty {
			return key, nil
		}
	}

	return nil, fmt.Errorf("%w '%s' in %s", ErrNoEncryptionKey, header.Alg, e.JwksUri)
}

func keyTypeForAlg(alg jose.KeyAlgorithm) (jwa.KeyType, error) {
	switch alg {
	case jose.RSA_OAEP, jose.RSA_OAEP_256:
		return jwa.RSA, nil
	case jose.ECDH_ES, jose.ECDH_ES_A128KW, jose.ECDH_ES_A192KW, jose.ECDH_ES_A256KW:
		return jwa.EC, nil
	default:
		return "", fmt.Errorf("%w: alg '%s'", ErrUnsupportedEncryptionAlg, alg)
	}
}
