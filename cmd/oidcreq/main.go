package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/vdbulcke/oidcreq"
	"github.com/vdbulcke/oidcreq/tracing"
)

// repeatable '-opt key=value' flag
type optFlags []string

func (o *optFlags) String() string { return strings.Join(*o, ",") }
func (o *optFlags) Set(v string) error {
	*o = append(*o, v)
	return nil
}

func main() {
	var opts optFlags

	issuer := flag.String("issuer", os.Getenv("OIDCREQ_ISSUER"), "OpenID Provider issuer (env OIDCREQ_ISSUER)")
	clientId := flag.String("client-id", os.Getenv("OIDCREQ_CLIENT_ID"), "registered client_id (env OIDCREQ_CLIENT_ID)")
	scope := flag.String("scope", "openid", "space separated scopes")
	redirectUri := flag.String("redirect-uri", "", "registered redirect_uri")
	mode := flag.String("mode", "encrypted", "request delivery: plain, signed or encrypted")
	alg := flag.String("alg", "", "request object 'alg': JWS alg (signed, default RS256) or JWE key management alg (encrypted, default RSA-OAEP-256)")
	enc := flag.String("enc", "A256GCM", "request object JWE 'enc' (encrypted)")
	kid := flag.String("kid", "", "'kid' of the OP encryption key (encrypted, optional)")
	loginHint := flag.String("login-hint", "", "login_hint, omitted when empty")
	keyFile := flag.String("key", "", "client PEM private key (signed)")
	traceHeader := flag.String("trace-header", "x-trace-id", "trace header name")
	traceId := flag.String("trace-id", "", "trace id sent on outbound requests")
	timeout := flag.Duration("timeout", 10*time.Second, "timeout for discovery and jwks_uri fetch")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Var(&opts, "opt", "extra parameter key=value (repeatable)")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *issuer == "" || *clientId == "" || *redirectUri == "" {
		flag.Usage()
		log.Fatal("issuer, client-id and redirect-uri are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *traceId != "" {
		ctx = tracing.ContextWithTraceID(ctx, *traceHeader, *traceId)
	}

	server, err := oidcreq.NewServerConfigurationFromDiscovery(ctx, *issuer)
	if err != nil {
		log.Fatalf("discovery: %v", err)
	}

	if err := server.Validate(); err != nil {
		logger.Warn("provider metadata", "err", err)
	}

	client := &oidcreq.RegisteredClient{
		ClientId:     *clientId,
		Scope:        strings.Fields(*scope),
		RedirectUris: []string{*redirectUri},
	}
	if err := client.Validate(); err != nil {
		log.Fatalf("client: %v", err)
	}

	builder, err := newBuilder(ctx, server, logger, *mode, algOrDefault(*mode, *alg), *enc, *kid, *keyFile)
	if err != nil {
		log.Fatalf("builder: %v", err)
	}

	rp := oidcreq.NewRelyingParty(server, client, builder, oidcreq.WithRelyingPartyLogger(logger))

	req, err := rp.NewAuthorizationRequest(ctx, *redirectUri, *loginHint, oidcreq.ParseOptions(opts)...)
	if err != nil {
		if errors.Is(err, oidcreq.ErrMalformedAuthorizationEndpoint) {
			log.Fatalf("provider configuration: %v", err)
		}
		log.Fatalf("authorization request: %v", err)
	}

	logger.Info("authorization request",
		"state", req.ReqCtx.State,
		"nonce", req.ReqCtx.Nonce,
		"code_verifier", req.ReqCtx.PKCECodeVerifier,
	)

	fmt.Println(req.Url)
}

// algOrDefault returns alg, or the default request object alg of mode
func algOrDefault(mode, alg string) string {
	if alg != "" {
		return alg
	}

	switch mode {
	case "signed":
		return "RS256"
	case "encrypted":
		return "RSA-OAEP-256"
	default:
		return ""
	}
}

func newBuilder(ctx context.Context, server *oidcreq.ServerConfiguration, logger *slog.Logger, mode, alg, enc, kid, keyFile string) (oidcreq.AuthRequestURLBuilder, error) {
	switch mode {
	case "plain":
		return oidcreq.NewPlainAuthRequestURLBuilder(), nil

	case "signed":
		if keyFile == "" {
			return nil, errors.New("signed mode requires -key")
		}

		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, err
		}

		key, err := oidcreq.ParsePrivateKeyPEM(data)
		if err != nil {
			return nil, err
		}

		signer, err := oidcreq.NewOAuthPrivateKey(key, alg, "")
		if err != nil {
			return nil, err
		}

		return oidcreq.NewSignedAuthRequestURLBuilder(signer), nil

	case "encrypted":
		header, err := oidcreq.ParseJWEHeader(alg, enc)
		if err != nil {
			return nil, err
		}

		if !server.SupportsRequestObjectEncryption(alg, enc) {
			logger.Warn("provider does not advertise request object encryption", "alg", alg, "enc", enc)
		}

		svc := oidcreq.NewJWKSetCacheService(ctx, oidcreq.WithJWKSetLogger(logger))

		return oidcreq.NewEncryptedAuthRequestURLBuilder(svc, header.Alg, header.Enc,
			oidcreq.WithEncryptionKeyID(kid),
			oidcreq.WithEncryptedBuilderLogger(logger),
		)

	default:
		return nil, fmt.Errorf("unknown mode '%s'", mode)
	}
}
