package oidcreq

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// genCryptoSecureRandomBytes generates an unbiased,
// crypto random sequence of l characters of the PKCE charSet
func genCryptoSecureRandomBytes(l int) ([]byte, error) {
	randSequence := make([]byte, 0, l)

	// NOTE: read twice as many bytes as needed, most of
	//       them are discarded by the charSet filter below
	randLength := l * 2

	for {
		b := make([]byte, randLength)
		_, err := rand.Read(b)
		if err != nil {
			return nil, err
		}

		for _, randByte := range b {
			// to avoid modulo bias towards certain character
			// only keep random byte that are valid index of the charset
			if randByte < charSetLength {
				randSequence = append(randSequence, charSet[randByte])

				if len(randSequence) == l {
					return randSequence, nil
				}
			}
		}
	}
}

// NewNonce generates a new base64-urlencoded nonce
// from size random bytes
func NewNonce(size int) (string, error) {
	n, err := RandString(size)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	return n, nil
}

// NewState generates a new base64-urlencoded state
// from size random bytes
func NewState(size int) (string, error) {
	n, err := RandString(size)
	if err != nil {
		return "", fmt.Errorf("state: %w", err)
	}

	return n, nil
}

// RandString generates a base64-urlencoded string
// from nByte random data
func RandString(nByte int) (string, error) {
	b := make([]byte, nByte)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
