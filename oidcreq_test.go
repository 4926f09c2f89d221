package oidcreq_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/vdbulcke/assert"
	"github.com/vdbulcke/oidcreq"
)

// fixture keys, generated once
var (
	opSigKey    = assert.Must(rsa.GenerateKey(rand.Reader, 2048))
	opEncKey    = assert.Must(rsa.GenerateKey(rand.Reader, 2048))
	opEncECKey  = assert.Must(ecdsa.GenerateKey(elliptic.P256(), rand.Reader))
	clientKey   = assert.Must(rsa.GenerateKey(rand.Reader, 2048))
	clientECKey = assert.Must(ecdsa.GenerateKey(elliptic.P256(), rand.Reader))
)

const (
	kidSig   = "op-sig"
	kidEncRS = "op-enc-rsa"
	kidEncEC = "op-enc-ec"
)

type mockOP struct {
	mockServer *httptest.Server

	jwksHits atomic.Int32

	mu          sync.Mutex
	traceHeader string
	traceValues []string

	// override the issuer in the metadata
	issuer string
	// jwks_uri status code, default 200
	jwksStatus int
}

func newMockOP(t *testing.T) *mockOP {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	m := &mockOP{
		mockServer: srv,
		jwksStatus: http.StatusOK,
	}

	mux.HandleFunc("/.well-known/openid-configuration", m.wkHandler())
	mux.HandleFunc("/.well-known/oauth-authorization-server", m.wkHandler())
	mux.HandleFunc("/jwks", m.jwksHandler(t))

	return m
}

func (m *mockOP) getIssuer() string {
	return m.mockServer.URL
}

func (m *mockOP) getHttpClient() *http.Client {
	return m.mockServer.Client()
}

// recordTrace records the value of header on every request
func (m *mockOP) recordTrace(header string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traceHeader = header
}

func (m *mockOP) tracedValues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.traceValues...)
}

func (m *mockOP) trace(r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.traceHeader != "" {
		m.traceValues = append(m.traceValues, r.Header.Get(m.traceHeader))
	}
}

func (m *mockOP) getServerConfiguration() *oidcreq.ServerConfiguration {
	baseUrl := m.mockServer.URL

	issuer := baseUrl
	if m.issuer != "" {
		issuer = m.issuer
	}

	return &oidcreq.ServerConfiguration{
		Issuer:                        issuer,
		AuthorizationEndpoint:         fmt.Sprintf("%s/auth", baseUrl),
		TokenEndpoint:                 fmt.Sprintf("%s/token", baseUrl),
		JwksUri:                       fmt.Sprintf("%s/jwks", baseUrl),
		ScopesSupported:               []string{"openid", "profile", "email"},
		ResponseTypesSupported:        []string{"code"},
		CodeChallengeMethodsSupported: []string{"S256"},
		RequestParameterSupported:     true,
		RequestObjectEncryptionAlgValuesSupported: []string{"RSA-OAEP-256", "ECDH-ES"},
		RequestObjectEncryptionEncValuesSupported: []string{"A256GCM", "A128CBC-HS256"},
	}
}

func (m *mockOP) wkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.trace(r)

		w.Header().Add("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(m.getServerConfiguration())
		assert.ErrNotNil(err, assert.Panic, "wkHandler json")
	}
}

func (m *mockOP) jwksHandler(t *testing.T) http.HandlerFunc {
	payload := opJWKS(t)

	return func(w http.ResponseWriter, r *http.Request) {
		m.jwksHits.Add(1)
		m.trace(r)

		if m.jwksStatus != http.StatusOK {
			w.WriteHeader(m.jwksStatus)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}
}

// opJWKS the OP key set, signing key listed first
func opJWKS(t *testing.T) []byte {
	t.Helper()

	set := jwk.NewSet()

	addKey := func(raw interface{}, kid, use string, alg jwa.KeyAlgorithm) {
		pub, err := jwk.PublicKeyOf(raw)
		if err != nil {
			t.Fatalf("public key: %v", err)
		}
		if err := pub.Set(jwk.KeyIDKey, kid); err != nil {
			t.Fatalf("set kid: %v", err)
		}
		if err := pub.Set(jwk.KeyUsageKey, use); err != nil {
			t.Fatalf("set use: %v", err)
		}
		if err := pub.Set(jwk.AlgorithmKey, alg); err != nil {
			t.Fatalf("set alg: %v", err)
		}
		if err := set.AddKey(pub); err != nil {
			t.Fatalf("add key: %v", err)
		}
	}

	addKey(opSigKey, kidSig, "sig", jwa.RS256)
	addKey(opEncKey, kidEncRS, "enc", jwa.RSA_OAEP_256)
	addKey(opEncECKey, kidEncEC, "enc", jwa.ECDH_ES)

	payload, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}

	return payload
}

func newTestClient() *oidcreq.RegisteredClient {
	return &oidcreq.RegisteredClient{
		ClientId:     "my-client",
		Scope:        []string{"openid", "profile"},
		RedirectUris: []string{"https://rp.example.com/callback"},
	}
}

func newTestParams() *oidcreq.AuthRequestParams {
	return &oidcreq.AuthRequestParams{
		RedirectUri: "https://rp.example.com/callback",
		Nonce:       "n-0S6_WzA2Mj",
		State:       "af0ifjsldkj",
		Options:     map[string]string{"prompt": "login"},
		LoginHint:   "alice@example.com",
	}
}
