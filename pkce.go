package oidcreq

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Constants defined in the RFC7636
// https://datatracker.ietf.org/doc/html/rfc7636#section-4.1
const (
	charSet         = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
	charSetLength   = byte(len(charSet))
	minSize         = 43
	maxSize         = 128
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// GenerateVerifier generates a PKCE code verifier of 64 characters
// from the unreserved charset:
//
//	code-verifier = 43*128unreserved
//	unreserved = ALPHA / DIGIT / "-" / "." / "_" / "~"
func GenerateVerifier() (string, error) {
	return GenerateVerifierWithLength(64)
}

// GenerateVerifierWithLength generates a PKCE code verifier of l characters,
// l must be between 43 and 128.
func GenerateVerifierWithLength(l int) (string, error) {
	if l < minSize || l > maxSize {
		return "", fmt.Errorf("pkce: verifier length %d not in [%d, %d]", l, minSize, maxSize)
	}

	data, err := genCryptoSecureRandomBytes(l)
	if err != nil {
		return "", fmt.Errorf("pkce: %w", err)
	}

	return string(data), nil
}

// PKCES256ChallengeFromVerifier returns a PKCE code challenge derived from verifier with method S256.
//
//	code_challenge = BASE64URL-ENCODE(SHA256(ASCII(code_verifier)))
func PKCES256ChallengeFromVerifier(verifier string) string {
	sha := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sha[:])
}

// PKCES256ChallengeOpt derives a PKCE code challenge from verifier with
// method S256. The verifier is kept in the [oidcreq.OAuthContext] only.
func PKCES256ChallengeOpt(verifier string) AuthRequestOption {
	return challengeOption{
		challengeMethod: PKCEMethodS256,
		challenge:       PKCES256ChallengeFromVerifier(verifier),
		verifier:        verifier,
	}
}

// PKCEOpt generates a new verifier and adds pkce option with method S256.
func PKCEOpt() (AuthRequestOption, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}

	return PKCES256ChallengeOpt(verifier), nil
}

type challengeOption struct{ challengeMethod, challenge, verifier string }

func (p challengeOption) SetOption(m map[string]string) {
	m["code_challenge_method"] = p.challengeMethod
	m["code_challenge"] = p.challenge
}

func (p challengeOption) SetRequestContext(oauthCtx *OAuthContext) {
	oauthCtx.PKCECodeVerifier = p.verifier
}
