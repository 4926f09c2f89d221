package oidcreq

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

var (
	_ JwtAdvertiser   = (*ECJWTSigner)(nil)
	_ OAuthPrivateKey = (*ECJWTSigner)(nil)
)

type ECJWTSigner struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
	Kid        string

	alg           string
	signingMethod jwt.SigningMethod
}

func NewECJWTSigner(k *ecdsa.PrivateKey, alg, staticKid string) (*ECJWTSigner, error) {
	var method jwt.SigningMethod
	switch alg {
	case "ES256":
		method = jwt.SigningMethodES256
	case "ES384":
		method = jwt.SigningMethodES384
	case "ES512":
		method = jwt.SigningMethodES512
	default:
		return nil, fmt.Errorf("unsuported signing alg %s for EC Private key", alg)
	}

	ecKid := staticKid
	if ecKid == "" {
		var err error
		ecKid, err = kid(&k.PublicKey)
		if err != nil {
			return nil, err
		}
	}

	return &ECJWTSigner{
		PrivateKey:    k,
		PublicKey:     &k.PublicKey,
		Kid:           ecKid,
		alg:           alg,
		signingMethod: method,
	}, nil
}

func (k *ECJWTSigner) GetKid() string {
	return k.Kid
}

// JWKS is the JSON JWKS representation of the ecdsa.PublicKey
func (k *ECJWTSigner) JWKS() ([]byte, error) {
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
func (k *ECJWTSigner) SignJWT(claims jwt.Claims, extraHeaderFields ...*HeaderField) (string, error) {
	return signWithHeaders(k.signingMethod, k.PrivateKey, k.Kid, claims, extraHeaderFields)
}
