package oidcreq

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/vdbulcke/assert"
)

// OAuthContext the values of an authorization request the
// Relying Party must keep (e.g. in session) to validate the
// authorization response and redeem the code.
type OAuthContext struct {
	ClientId         string `json:"client_id"`
	Nonce            string `json:"nonce"`
	State            string `json:"state"`
	PKCECodeVerifier string `json:"code_verifier"`
	Scope            string `json:"scope"`
	AcrValues        string `json:"acr_values"`
	RedirectUri      string `json:"redirect_uri"`
}

// AuthRequestOption an extra authorization
// request parameter
type AuthRequestOption interface {
	// SetOption set the parameter in the request options
	SetOption(map[string]string)
	// SetRequestContext save option in request context
	SetRequestContext(oauthCtx *OAuthContext)
}

type setOption struct{ k, v string }

func (p setOption) SetOption(m map[string]string) { m[p.k] = p.v }
func (p setOption) SetRequestContext(oauthCtx *OAuthContext) {
	switch p.k {
	case "client_id":
		oauthCtx.ClientId = p.v
	case "redirect_uri":
		oauthCtx.RedirectUri = p.v
	case "nonce":
		oauthCtx.Nonce = p.v
	case "state":
		oauthCtx.State = p.v
	case "scope":
		oauthCtx.Scope = p.v
	case "acr_values":
		oauthCtx.AcrValues = p.v
	}
}

// SetOption set key/value as authorization request parameter,
// overriding any value previously set for key.
func SetOption(key, value string) AuthRequestOption {
	return setOption{key, value}
}

// SetJSONOption json marshal value as the parameter value
//
// panics if value cannot be marshalled
func SetJSONOption(key string, value interface{}) AuthRequestOption {
	payload := assert.Must(json.Marshal(value))
	return setOption{key, string(payload)}
}

// PromptOpt format prompts as a space separated string
// and set 'prompt=' (none, login, consent, select_account)
func PromptOpt(prompts ...string) AuthRequestOption {
	return SetOption("prompt", strings.Join(prompts, " "))
}

// MaxAgeOpt set 'max_age=' the allowable elapsed time in seconds
// since the last time the End-User was actively authenticated
func MaxAgeOpt(seconds int) AuthRequestOption {
	return SetOption("max_age", strconv.Itoa(seconds))
}

// DisplayOpt set 'display=' (page, popup, touch, wap)
func DisplayOpt(display string) AuthRequestOption {
	return SetOption("display", display)
}

// AcrValuesOpt format acrValues as a space separated string
// set 'acr_values=' parameter and in [oidcreq.OAuthContext]
func AcrValuesOpt(acrValues []string) AuthRequestOption {
	return SetOption("acr_values", strings.Join(acrValues, " "))
}

// UILocalesOpt format uiLocales as a space separated string
// set 'ui_locales=' parameter
func UILocalesOpt(uiLocales []string) AuthRequestOption {
	return SetOption("ui_locales", strings.Join(uiLocales, " "))
}

// ClaimsLocalesOpt format locales as a space separated string
// set 'claims_locales=' parameter
func ClaimsLocalesOpt(locales []string) AuthRequestOption {
	return SetOption("claims_locales", strings.Join(locales, " "))
}

// IdTokenHintOpt set 'id_token_hint='
func IdTokenHintOpt(idToken string) AuthRequestOption {
	return SetOption("id_token_hint", idToken)
}

// ResponseModeOpt set 'response_mode=' (query, fragment, form_post)
func ResponseModeOpt(mode string) AuthRequestOption {
	return SetOption("response_mode", mode)
}

// 5.5.  Requesting Claims using the "claims" Request Parameter
//
//	claims
//	   OPTIONAL.  This parameter is used to request that specific Claims
//	   be returned.  The value is a JSON object listing the requested
//	   Claims.
//
// the JSON object is sent as its string serialization.
func ClaimsParameterOpt(claims *OpenIdRequestedClaimsParam) AuthRequestOption {
	return SetJSONOption("claims", claims)
}

// 5.5.1.  Individual Claims Requests
type OpenIdRequestedClaim struct {
	//    essential
	//       OPTIONAL.  Indicates whether the Claim being requested is an
	//       Essential Claim.
	Essential bool `json:"essential,omitempty"`

	// value
	//    OPTIONAL.  Requests that the Claim be returned with a
	//    particular value.
	Value interface{} `json:"value,omitempty"`

	// values
	//    OPTIONAL.  Requests that the Claim be returned with one of a
	//    set of values, with the values appearing in order of
	//    preference.
	Values []interface{} `json:"values,omitempty"`
}

func NewOpenIdRequestedClaim(essential bool, values []interface{}) *OpenIdRequestedClaim {
	c := &OpenIdRequestedClaim{
		Essential: essential,
	}

	if len(values) == 1 {
		c.Value = values[0]
		return c
	}

	c.Values = values
	return c
}

func (c *OpenIdRequestedClaim) GetValues() []interface{} {
	if c.Value != nil {
		return []interface{}{c.Value}
	}

	return c.Values
}

// 5.5.  Requesting Claims using the "claims" Request Parameter
type OpenIdRequestedClaimsParam struct {
	// userinfo
	//    OPTIONAL.  Requests that the listed individual Claims be returned
	//    from the UserInfo Endpoint.
	Userinfo map[string]*OpenIdRequestedClaim `json:"userinfo,omitempty"`

	// id_token
	//    OPTIONAL.  Requests that the listed individual Claims be returned
	//    in the ID Token.
	IDToken map[string]*OpenIdRequestedClaim `json:"id_token,omitempty"`
}

// ParseOptions parses "key=value" pairs into options. An entry
// without '=' is set with an empty value.
func ParseOptions(pairs []string) []AuthRequestOption {
	opts := make([]AuthRequestOption, 0, len(pairs))
	for _, p := range pairs {
		k, v, _ := strings.Cut(p, "=")
		opts = append(opts, SetOption(k, v))
	}
	return opts
}
