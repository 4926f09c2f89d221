package oidcreq

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

var (
	_ JwtAdvertiser   = (*RSAJWTSigner)(nil)
	_ OAuthPrivateKey = (*RSAJWTSigner)(nil)
)

// RSAJWTSigner an implementation of
// [oidcreq.OAuthPrivateKey] and [oidcreq.JwtAdvertiser] for
// [rsa.PrivateKey]
type RSAJWTSigner struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	Kid        string

	alg           string
	signingMethod jwt.SigningMethod
}

// NewRSAJWTSigner create a [oidcreq.RSAJWTSigner] from
// [rsa.PrivateKey], with alg (MUST be one of RS256, RS384, RS512, PS256, PS384, PS512).
//
// if staticKid is empty generate a kid based on the bytes of
// the [rsa.PublicKey]
func NewRSAJWTSigner(k *rsa.PrivateKey, alg, staticKid string) (*RSAJWTSigner, error) {
	var method jwt.SigningMethod
	switch alg {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "RS384":
		method = jwt.SigningMethodRS384
	case "RS512":
		method = jwt.SigningMethodRS512
	case "PS256":
		method = jwt.SigningMethodPS256
	case "PS384":
		method = jwt.SigningMethodPS384
	case "PS512":
		method = jwt.SigningMethodPS512

	default:
		return nil, fmt.Errorf("unsuported signing alg %s for RSA private key", alg)
	}

	rsaKid := staticKid
	if rsaKid == "" {
		var err error
		rsaKid, err = kid(&k.PublicKey)
		if err != nil {
			return nil, err
		}
	}

	return &RSAJWTSigner{
		PrivateKey:    k,
		PublicKey:     &k.PublicKey,
		Kid:           rsaKid,
		alg:           alg,
		signingMethod: method,
	}, nil
}

func (k *RSAJWTSigner) GetKid() string {
	return k.Kid
}

// JWKS is the JSON JWKS representation of the rsa.PublicKey
func (k *RSAJWTSigner) JWKS() ([]byte, error) {
	jwks := &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Use:       "sig",
				Algorithm: k.alg,
				Key:       k.PublicKey,
				KeyID:     k.Kid,
			},
		},
	}

	return json.Marshal(jwks)
}

// SignJWT signs jwt.Claims with the Keypair and returns a token string
func (k *RSAJWTSigner) SignJWT(claims jwt.Claims, extraHeaderFields ...*HeaderField) (string, error) {
	return signWithHeaders(k.signingMethod, k.PrivateKey, k.Kid, claims, extraHeaderFields)
}
