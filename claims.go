package oidcreq

import (
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthRequestParams the per request values of an
// OpenID Connect authentication request
type AuthRequestParams struct {
	// redirect_uri
	//    REQUIRED.  Redirection URI to which the response will be sent.
	RedirectUri string

	// nonce
	//    String value used to associate a Client session with an ID Token,
	//    and to mitigate replay attacks. Comes back in the id_token.
	Nonce string

	// state
	//    RECOMMENDED.  Opaque value used to maintain state between the
	//    request and the callback.
	State string

	// Options extra authorization request parameters
	// (prompt, acr_values, ui_locales, ...)
	Options map[string]string

	// login_hint
	//    OPTIONAL.  Hint to the Authorization Server about the login
	//    identifier the End-User might use to log in. Only sent
	//    when not empty.
	LoginHint string
}

// NewAuthRequestClaims returns the claim set of the authentication
// request for client.
//
// Options are applied after the fixed claims and may override them,
// 'login_hint' is applied last and only when not empty.
func NewAuthRequestClaims(client *RegisteredClient, params *AuthRequestParams) jwt.MapClaims {
	claims := jwt.MapClaims{}

	// response_type
	//    REQUIRED.  OAuth 2.0 Response Type value that determines the
	//    authorization processing flow to be used, including what
	//    parameters are returned from the endpoints used.  When using the
	//    Authorization Code Flow, this value is "code".
	claims["response_type"] = "code"
	claims["client_id"] = client.ClientId
	claims["scope"] = strings.Join(client.Scope, " ")
	claims["redirect_uri"] = params.RedirectUri
	claims["nonce"] = params.Nonce
	claims["state"] = params.State

	for k, v := range params.Options {
		claims[k] = v
	}

	if params.LoginHint != "" {
		claims["login_hint"] = params.LoginHint
	}

	return claims
}

// claimsToValues converts the string claims into
// query parameters
func claimsToValues(claims jwt.MapClaims) url.Values {
	params := url.Values{}
	for k, v := range claims {
		if s, ok := v.(string); ok {
			params.Set(k, s)
		}
	}
	return params
}
