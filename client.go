package oidcreq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vdbulcke/assert"
	"github.com/vdbulcke/oidcreq/metric"
)

// RegisteredClient the Relying Party registration
// at the OpenID Provider
type RegisteredClient struct {
	ClientId string `json:"client_id" validate:"required"`

	// Scope requested scopes, sent space separated
	Scope []string `json:"scope,omitempty"`

	RedirectUris []string `json:"redirect_uris,omitempty" validate:"dive,url"`

	// OpenID Connect Dynamic Client Registration metadata
	// for request objects
	RequestObjectSigningAlg    string `json:"request_object_signing_alg,omitempty"`
	RequestObjectEncryptionAlg string `json:"request_object_encryption_alg,omitempty"`
	RequestObjectEncryptionEnc string `json:"request_object_encryption_enc,omitempty"`
}

// Validate checks client_id is set and redirect_uris are urls.
//
// Building an authorization request does NOT call Validate.
func (c *RegisteredClient) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("registered-client: %w", err)
	}
	return nil
}

// AuthorizationRequest the url to redirect the End-User to,
// and the context to keep for the callback
type AuthorizationRequest struct {
	Url    string
	ReqCtx *OAuthContext
}

type RelyingPartyOptFunc func(*RelyingParty)

// WithStaticAuthRequestOpt add [oidcreq.AuthRequestOption] set on
// every authorization request, before the per request options
func WithStaticAuthRequestOpt(opt ...AuthRequestOption) RelyingPartyOptFunc {
	return func(rp *RelyingParty) {
		rp.staticOpts = append(rp.staticOpts, opt...)
	}
}

// WithRelyingPartyLogger set the logger, default [slog.Default]
func WithRelyingPartyLogger(logger *slog.Logger) RelyingPartyOptFunc {
	return func(rp *RelyingParty) {
		rp.logger = logger
	}
}

// WithoutPKCE never send a pkce challenge, even
// when the OP supports S256
func WithoutPKCE() RelyingPartyOptFunc {
	return func(rp *RelyingParty) {
		rp.disablePKCE = true
	}
}

// RelyingParty creates authorization requests for a
// registered client.
type RelyingParty struct {
	server  *ServerConfiguration
	client  *RegisteredClient
	builder AuthRequestURLBuilder

	staticOpts  []AuthRequestOption
	disablePKCE bool
	logger      *slog.Logger
}

// NewRelyingParty create a new [oidcreq.RelyingParty]
//
// Example:
//
//	ctx := context.Background()
//	ctx = tracing.ContextWithTraceID(ctx, "x-trace-id", traceId)
//	//
//	server, err := oidcreq.NewServerConfigurationFromDiscovery(ctx, issuer)
//	if err != nil {
//	    return err
//	}
//	//
//	// encrypt request object to the OP key
//	svc := oidcreq.NewJWKSetCacheService(ctx)
//	builder, err := oidcreq.NewEncryptedAuthRequestURLBuilder(svc, jose.RSA_OAEP_256, jose.A256GCM)
//	if err != nil {
//	    return err
//	}
//	//
//	rp := oidcreq.NewRelyingParty(server, client, builder,
//	    oidcreq.WithStaticAuthRequestOpt(oidcreq.PromptOpt("login")),
//	)
//	req, err := rp.NewAuthorizationRequest(ctx, redirectUri, "")
func NewRelyingParty(server *ServerConfiguration, client *RegisteredClient, builder AuthRequestURLBuilder, opts ...RelyingPartyOptFunc) *RelyingParty {
	assert.NotNil(server, assert.Panic, "relying-party: server configuration is required")
	assert.NotNil(client, assert.Panic, "relying-party: registered client is required")
	assert.NotNil(builder, assert.Panic, "relying-party: builder is required")

	rp := &RelyingParty{
		server:  server,
		client:  client,
		builder: builder,
		logger:  slog.Default(),
	}

	for _, fn := range opts {
		fn(rp)
	}

	return rp
}

// NewAuthorizationRequest generates a fresh nonce, state and (if supported
// by the OP) pkce verifier, then builds the authorization request url.
//
// loginHint is only sent when not empty.
func (rp *RelyingParty) NewAuthorizationRequest(ctx context.Context, redirectUri, loginHint string, extra ...AuthRequestOption) (_ *AuthorizationRequest, err error) {
	assert.NotNil(ctx, assert.Panic, "relying-party: ctx cannot be nil")

	endpoint := metric.EndpointAuthorizationRequest
	timer := metric.NewTimer(endpoint)
	defer timer.ObserveDuration()
	defer metric.DeferMonitorError(endpoint, &err)

	nonce, err := NewNonce(32)
	if err != nil {
		return nil, err
	}

	state, err := NewState(32)
	if err != nil {
		return nil, err
	}

	reqCtx := &OAuthContext{
		ClientId:    rp.client.ClientId,
		Nonce:       nonce,
		State:       state,
		Scope:       strings.Join(rp.client.Scope, " "),
		RedirectUri: redirectUri,
	}

	opts := []AuthRequestOption{}
	if !rp.disablePKCE && rp.server.SupportsPKCES256() {
		pkce, err := PKCEOpt()
		if err != nil {
			return nil, err
		}
		opts = append(opts, pkce)
	}
	opts = append(opts, rp.staticOpts...)
	opts = append(opts, extra...)

	params := &AuthRequestParams{
		RedirectUri: redirectUri,
		Nonce:       nonce,
		State:       state,
		Options:     map[string]string{},
		LoginHint:   loginHint,
	}

	for _, opt := range opts {
		opt.SetOption(params.Options)
		opt.SetRequestContext(reqCtx)
	}

	u, err := rp.builder.BuildAuthRequestURL(ctx, rp.server, rp.client, params)
	if err != nil {
		rp.logger.Error("authorization request", "client_id", rp.client.ClientId, "err", err)
		return nil, fmt.Errorf("authorization-request: %w", err)
	}

	rp.logger.Debug("authorization request", "client_id", rp.client.ClientId, "state", reqCtx.State)

	return &AuthorizationRequest{
		Url:    u,
		ReqCtx: reqCtx,
	}, nil
}
