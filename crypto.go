package oidcreq

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vdbulcke/assert"
)

// OAuthPrivateKey interface for signing request objects
type OAuthPrivateKey interface {
	// signs jwt claims, extra header fields are added
	// to the jws protected header
	SignJWT(claims jwt.Claims, extraHeaderFields ...*HeaderField) (string, error)
}

// JwtAdvertiser publishes the public part of a client key
type JwtAdvertiser interface {
	GetKid() string        // return active kid
	JWKS() ([]byte, error) // marshal of JWKS
}

// HeaderField extra jws header
type HeaderField struct {
	Key   string
	Value any
}

// NewOAuthPrivateKey create a [oidcreq.OAuthPrivateKey] for the corresponding key type
//
// supported key types are [rsa.PrivateKey] and [ecdsa.PrivateKey]
//
// Set [staticKid] to "" (empty string) to generate kid based on public key
func NewOAuthPrivateKey(key crypto.PrivateKey, alg, staticKid string) (OAuthPrivateKey, error) {

	switch priv := key.(type) {
	case *rsa.PrivateKey:
		return NewRSAJWTSigner(priv, alg, staticKid)

	case *ecdsa.PrivateKey:
		return NewECJWTSigner(priv, alg, staticKid)

	default:
		return nil, errors.New("unsupported key type. Must be one of RSA or EC")
	}
}

// ParsePrivateKeyPEM parses the first PEM block of data as a
// PKCS8, PKCS1 (RSA) or SEC1 (EC) private key
func ParsePrivateKeyPEM(data []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("pem: no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		return x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("pem: unsupported block type '%s'", block.Type)
	}
}

// kid generates a kid by sha256 sum public key
func kid(k crypto.PublicKey) (string, error) {

	publicKeyDERBytes, err := x509.MarshalPKIXPublicKey(k)
	if err != nil {
		return "", err
	}

	hasher := crypto.SHA256.New()
	if _, err := hasher.Write(publicKeyDERBytes); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(hasher.Sum(nil)), nil
}

func signWithHeaders(method jwt.SigningMethod, key crypto.PrivateKey, kid string, claims jwt.Claims, extraHeaderFields []*HeaderField) (string, error) {
	token := jwt.NewWithClaims(method, claims)

	token.Header["kid"] = kid

	for _, hf := range extraHeaderFields {
		if hf == nil {
			continue
		}

		token.Header[hf.Key] = hf.Value
	}

	return token.SignedString(key)
}

// JWKSHandler serves the client public JWKS, so the OP can
// verify request objects signed by the client ('jwks_uri'
// client metadata).
func JWKSHandler(key JwtAdvertiser) http.Handler {
	assert.NotNil(key, assert.Panic, "jwks-handler: key cannot be nil")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		jwks, err := key.JWKS()
		if err != nil {
			http.Error(w, "jwks unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/jwk-set+json")
		_, _ = w.Write(jwks)
	})
}
