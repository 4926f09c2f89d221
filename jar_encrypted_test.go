package oidcreq_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vdbulcke/assert"
	"github.com/vdbulcke/oidcreq"
	"github.com/vdbulcke/oidcreq/metric"
)

func TestEncryptedAuthRequestURL(t *testing.T) {
	op := newMockOP(t)
	server := op.getServerConfiguration()
	server.AuthorizationEndpoint = server.AuthorizationEndpoint + "?tenant=acme"

	ctx := context.Background()
	svc := oidcreq.NewJWKSetCacheService(ctx, oidcreq.WithJWKSetHttpClient(op.getHttpClient()))

	before := testutil.ToFloat64(metric.RequestObjectCounter.WithLabelValues("encrypted"))

	builder, err := oidcreq.NewEncryptedAuthRequestURLBuilder(svc, jose.RSA_OAEP_256, jose.A256GCM)
	if err != nil {
		t.Fatal(err)
	}

	u, err := builder.BuildAuthRequestURL(ctx, server, newTestClient(), newTestParams())
	if err != nil {
		t.Fatal(err)
	}

	parsed := assert.Must(url.Parse(u))
	if parsed.Scheme+"://"+parsed.Host+parsed.Path != op.getIssuer()+"/auth" {
		t.Fatalf("unexpected endpoint %s", u)
	}

	q := parsed.Query()
	if len(q) != 2 || q.Get("tenant") != "acme" || len(q["request"]) != 1 {
		t.Fatalf("expected tenant and exactly one request param got %v", q)
	}

	token := q.Get("request")

	// recipient header
	obj, err := jose.ParseEncrypted(token, []jose.KeyAlgorithm{jose.RSA_OAEP_256}, []jose.ContentEncryption{jose.A256GCM})
	if err != nil {
		t.Fatalf("not a compact jwe: %v", err)
	}
	if obj.Header.KeyID != kidEncRS {
		t.Fatalf("expected kid %s got %s", kidEncRS, obj.Header.KeyID)
	}

	payload, err := jwe.Decrypt([]byte(token), jwe.WithKey(jwa.RSA_OAEP_256, opEncKey))
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		t.Fatal(err)
	}

	expected := map[string]interface{}{
		"response_type": "code",
		"client_id":     "my-client",
		"scope":         "openid profile",
		"redirect_uri":  "https://rp.example.com/callback",
		"nonce":         "n-0S6_WzA2Mj",
		"state":         "af0ifjsldkj",
		"prompt":        "login",
		"login_hint":    "alice@example.com",
	}
	if len(claims) != len(expected) {
		t.Fatalf("expected %v got %v", expected, claims)
	}
	for k, v := range expected {
		if claims[k] != v {
			t.Errorf("claim %s: expected %v got %v", k, v, claims[k])
		}
	}

	after := testutil.ToFloat64(metric.RequestObjectCounter.WithLabelValues("encrypted"))
	if after != before+1 {
		t.Fatalf("expected request object counter %f got %f", before+1, after)
	}
}

func TestEncryptedAuthRequestURLAlgorithms(t *testing.T) {
	op := newMockOP(t)
	server := op.getServerConfiguration()

	ctx := context.Background()
	svc := oidcreq.NewJWKSetCacheService(ctx, oidcreq.WithJWKSetHttpClient(op.getHttpClient()))

	tbl := []struct {
		name        string
		alg         jose.KeyAlgorithm
		enc         jose.ContentEncryption
		opts        []oidcreq.EncryptedBuilderOptFunc
		decryptKey  interface{}
		expectedKid string
	}{
		{
			name:        "RSA-OAEP A128CBC-HS256",
			alg:         jose.RSA_OAEP,
			enc:         jose.A128CBC_HS256,
			decryptKey:  opEncKey,
			expectedKid: kidEncRS,
		},
		{
			name:        "ECDH-ES A256GCM",
			alg:         jose.ECDH_ES,
			enc:         jose.A256GCM,
			decryptKey:  opEncECKey,
			expectedKid: kidEncEC,
		},
		{
			name:        "ECDH-ES+A128KW explicit kid",
			alg:         jose.ECDH_ES_A128KW,
			enc:         jose.A128GCM,
			opts:        []oidcreq.EncryptedBuilderOptFunc{oidcreq.WithEncryptionKeyID(kidEncEC)},
			decryptKey:  opEncECKey,
			expectedKid: kidEncEC,
		},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			builder := assert.Must(oidcreq.NewEncryptedAuthRequestURLBuilder(svc, tt.alg, tt.enc, tt.opts...))

			u, err := builder.BuildAuthRequestURL(ctx, server, newTestClient(), newTestParams())
			if err != nil {
				t.Fatal(err)
			}

			token := assert.Must(url.Parse(u)).Query().Get("request")

			obj, err := jose.ParseEncrypted(token, []jose.KeyAlgorithm{tt.alg}, []jose.ContentEncryption{tt.enc})
			if err != nil {
				t.Fatal(err)
			}

			if obj.Header.KeyID != tt.expectedKid {
				t.Fatalf("expected kid %s got %s", tt.expectedKid, obj.Header.KeyID)
			}

			payload, err := obj.Decrypt(tt.decryptKey)
			if err != nil {
				t.Fatalf("decrypt: %v", err)
			}

			var claims map[string]interface{}
			if err := json.Unmarshal(payload, &claims); err != nil {
				t.Fatal(err)
			}

			if claims["client_id"] != "my-client" || claims["state"] != "af0ifjsldkj" {
				t.Fatalf("unexpected claims %v", claims)
			}
		})
	}
}

func TestEncryptedAuthRequestURLErrors(t *testing.T) {
	op := newMockOP(t)
	ctx := context.Background()

	tbl := []struct {
		name   string
		server func() *oidcreq.ServerConfiguration
		opts   []oidcreq.EncryptedBuilderOptFunc
		alg    jose.KeyAlgorithm
		is     error
	}{
		{
			name: "unknown kid",
			server: func() *oidcreq.ServerConfiguration {
				return op.getServerConfiguration()
			},
			opts: []oidcreq.EncryptedBuilderOptFunc{oidcreq.WithEncryptionKeyID("unknown")},
			alg:  jose.RSA_OAEP_256,
			is:   oidcreq.ErrNoEncryptionKey,
		},
		{
			name: "kid of wrong key type",
			server: func() *oidcreq.ServerConfiguration {
				return op.getServerConfiguration()
			},
			opts: []oidcreq.EncryptedBuilderOptFunc{oidcreq.WithEncryptionKeyID(kidEncEC)},
			alg:  jose.RSA_OAEP_256,
			is:   oidcreq.ErrNoEncryptionKey,
		},
		{
			name: "no jwks_uri",
			server: func() *oidcreq.ServerConfiguration {
				s := op.getServerConfiguration()
				s.JwksUri = ""
				return s
			},
			alg: jose.RSA_OAEP_256,
		},
		{
			name: "unreachable jwks_uri",
			server: func() *oidcreq.ServerConfiguration {
				s := op.getServerConfiguration()
				s.JwksUri = op.getIssuer() + "/not-found"
				return s
			},
			alg: jose.RSA_OAEP_256,
		},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			svc := oidcreq.NewJWKSetCacheService(ctx, oidcreq.WithJWKSetHttpClient(op.getHttpClient()))
			builder := assert.Must(oidcreq.NewEncryptedAuthRequestURLBuilder(svc, tt.alg, jose.A256GCM, tt.opts...))

			u, err := builder.BuildAuthRequestURL(ctx, tt.server(), newTestClient(), newTestParams())
			if err == nil {
				t.Fatalf("expected error got url %s", u)
			}

			if errors.Is(err, oidcreq.ErrMalformedAuthorizationEndpoint) {
				t.Fatalf("key set failure reported as configuration error: %v", err)
			}

			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Fatalf("expected %v got %v", tt.is, err)
			}
		})
	}
}

func TestEncryptedAuthRequestURLJwksServerError(t *testing.T) {
	op := newMockOP(t)
	op.jwksStatus = http.StatusInternalServerError

	ctx := context.Background()
	svc := oidcreq.NewJWKSetCacheService(ctx, oidcreq.WithJWKSetHttpClient(op.getHttpClient()))
	builder := assert.Must(oidcreq.NewEncryptedAuthRequestURLBuilder(svc, jose.RSA_OAEP_256, jose.A256GCM))

	_, err := builder.BuildAuthRequestURL(ctx, op.getServerConfiguration(), newTestClient(), newTestParams())
	if err == nil {
		t.Fatal("expected error")
	}

	if errors.Is(err, oidcreq.ErrMalformedAuthorizationEndpoint) {
		t.Fatalf("key set failure reported as configuration error: %v", err)
	}
}

func TestNewEncryptedAuthRequestURLBuilderUnsupported(t *testing.T) {
	svc := &failingEncrypterService{}

	tbl := []struct {
		name string
		alg  jose.KeyAlgorithm
		enc  jose.ContentEncryption
	}{
		{name: "dir", alg: jose.DIRECT, enc: jose.A256GCM},
		{name: "RSA1_5", alg: jose.RSA1_5, enc: jose.A256GCM},
		{name: "A128KW", alg: jose.A128KW, enc: jose.A256GCM},
		{name: "bad enc", alg: jose.RSA_OAEP_256, enc: jose.ContentEncryption("A512GCM")},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			_, err := oidcreq.NewEncryptedAuthRequestURLBuilder(svc, tt.alg, tt.enc)
			if !errors.Is(err, oidcreq.ErrUnsupportedEncryptionAlg) {
				t.Fatalf("expected ErrUnsupportedEncryptionAlg got %v", err)
			}
		})
	}
}

func TestParseJWEHeader(t *testing.T) {
	h, err := oidcreq.ParseJWEHeader("RSA-OAEP-256", "A256GCM")
	if err != nil {
		t.Fatal(err)
	}
	if h.Alg != jose.RSA_OAEP_256 || h.Enc != jose.A256GCM {
		t.Fatalf("unexpected header %v", h)
	}

	if _, err := oidcreq.ParseJWEHeader("HS256", "A256GCM"); !errors.Is(err, oidcreq.ErrUnsupportedEncryptionAlg) {
		t.Fatalf("expected ErrUnsupportedEncryptionAlg got %v", err)
	}

	if _, err := oidcreq.ParseJWEHeader("ECDH-ES", "none"); !errors.Is(err, oidcreq.ErrUnsupportedEncryptionAlg) {
		t.Fatalf("expected ErrUnsupportedEncryptionAlg got %v", err)
	}
}
