// Package oauth2 implements the authorization-code grant shared by every
// OAuth2/OIDC provider. Providers stay thin: they hold endpoints, scopes,
// and a profile mapper, and delegate the wire work here.
package oauth2

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-social"
)

// AuthStyle says how client credentials travel on the token request.
type AuthStyle int

const (
	// AuthStyleInBody sends client_id/client_secret as form fields.
	AuthStyleInBody AuthStyle = iota
	// AuthStyleInHeader sends credentials as HTTP Basic auth. Some
	// providers reject body credentials and insist on this.
	AuthStyleInHeader
)

// Endpoints are the resolved provider URLs for one flow.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// Config holds the client half of a provider configuration.
type Config struct {
	// ProviderName tags errors; it is the provider identifier.
	ProviderName string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	AuthStyle    AuthStyle
	// AuthParams are extra authorization-URL parameters some providers
	// require (access_type, claims, response_mode and friends).
	AuthParams url.Values
	// UserInfoHeaders are extra headers for the user-info request. Twitch
	// wants Client-Id, GitHub wants its versioned Accept header.
	UserInfoHeaders map[string]string

	HTTPClient *http.Client
}

// Client drives the authorization-code grant against a provider.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a client. Without an explicit HTTP client a 10 second
// timeout applies; provider calls must not hang a login request.
func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{config: cfg, httpClient: client}
}

// AuthCodeURL composes the authorization redirect URL.
func (c *Client) AuthCodeURL(endpoints Endpoints, state string, cfg social.AuthCodeConfig) string {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = c.config.Scopes
	}

	params := url.Values{
		"client_id":     {c.config.ClientID},
		"redirect_uri":  {c.config.CallbackURL},
		"response_type": {"code"},
		"state":         {state},
	}
	if len(scopes) > 0 {
		params.Set("scope", strings.Join(scopes, " "))
	}

	for key, values := range c.config.AuthParams {
		for _, v := range values {
			params.Set(key, v)
		}
	}

	if cfg.CodeChallenge != "" {
		method := cfg.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		params.Set("code_challenge", cfg.CodeChallenge)
		params.Set("code_challenge_method", method)
	}

	if cfg.Prompt != "" {
		params.Set("prompt", cfg.Prompt)
	}

	return endpoints.AuthURL + "?" + params.Encode()
}

// Exchange trades an authorization code for a token.
func (c *Client) Exchange(ctx context.Context, endpoints Endpoints, code, codeVerifier string) (*social.Token, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.config.CallbackURL},
	}
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}

	return c.tokenRequest(ctx, endpoints.TokenURL, "exchange", data)
}

// Refresh trades a refresh token for a fresh access token.
func (c *Client) Refresh(ctx context.Context, endpoints Endpoints, refreshToken string) (*social.Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	token, err := c.tokenRequest(ctx, endpoints.TokenURL, "refresh", data)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

// Get performs a bearer-authenticated GET, typically against the user-info
// endpoint. Any status >= 300 is fatal for the attempt; the body rides along
// on the error for logging, never for display.
func (c *Client) Get(ctx context.Context, rawURL string, token *social.Token) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")
	for key, value := range c.config.UserInfoHeaders {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 300 {
		code, desc, raw := parseErrorBody(body)
		return nil, c.providerError("user_info", resp.StatusCode, code, desc, nil, raw)
	}

	return body, nil
}

func (c *Client) tokenRequest(ctx context.Context, tokenURL, operation string, data url.Values) (*social.Token, error) {
	if c.config.AuthStyle == AuthStyleInBody {
		data.Set("client_id", c.config.ClientID)
		data.Set("client_secret", c.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.config.AuthStyle == AuthStyleInHeader {
		req.SetBasicAuth(url.QueryEscape(c.config.ClientID), url.QueryEscape(c.config.ClientSecret))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	tokenResp, err := parseTokenResponse(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, c.providerError(operation, resp.StatusCode, "invalid_response", "failed to decode token response", err, nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 || tokenResp.Error != "" {
		code, desc, raw := tokenResp.Error, tokenResp.ErrorDesc, tokenResp.errorMetadata()
		if code == "" && desc == "" {
			code, desc, raw = parseErrorBody(body)
		}
		return nil, c.providerError(operation, resp.StatusCode, code, desc, nil, raw)
	}
	if tokenResp.AccessToken == "" {
		return nil, c.providerError(operation, resp.StatusCode, "missing_access_token", "missing access token", nil, nil)
	}

	expiresAt := time.Time{}
	if tokenResp.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	raw := map[string]any{}
	if tokenResp.IDToken != "" {
		raw["id_token"] = tokenResp.IDToken
	}

	return &social.Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       SplitScopes(tokenResp.Scope),
		Raw:          raw,
	}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

func (r tokenResponse) errorMetadata() map[string]any {
	meta := map[string]any{}
	if r.Error != "" {
		meta["error"] = r.Error
	}
	if r.ErrorDesc != "" {
		meta["error_description"] = r.ErrorDesc
	}
	return meta
}

// parseTokenResponse handles both response shapes in the wild: JSON, and
// the form-encoded bodies GitHub-era endpoints still emit.
func parseTokenResponse(contentType string, body []byte) (*tokenResponse, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	if mediaType == "application/x-www-form-urlencoded" || mediaType == "text/plain" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, err
		}
		expiresIn := 0
		if raw := values.Get("expires_in"); raw != "" {
			expiresIn, _ = strconv.Atoi(raw)
		}
		return &tokenResponse{
			AccessToken:  values.Get("access_token"),
			TokenType:    values.Get("token_type"),
			ExpiresIn:    expiresIn,
			RefreshToken: values.Get("refresh_token"),
			Scope:        values.Get("scope"),
			IDToken:      values.Get("id_token"),
			Error:        values.Get("error"),
			ErrorDesc:    values.Get("error_description"),
		}, nil
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Desc  string `json:"error_description"`
}

func parseErrorBody(body []byte) (string, string, map[string]any) {
	var plain errorResponse
	if err := json.Unmarshal(body, &plain); err == nil && (plain.Error != "" || plain.Desc != "") {
		return plain.Error, plain.Desc, map[string]any{
			"error":             plain.Error,
			"error_description": plain.Desc,
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return "", msg, nil
}

// SplitScopes splits a scope string on spaces and commas; providers use both.
func SplitScopes(scopes string) []string {
	if scopes == "" {
		return nil
	}

	fields := strings.FieldsFunc(scopes, func(r rune) bool {
		return r == ' ' || r == ','
	})

	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Client) providerError(operation string, status int, code, description string, err error, raw map[string]any) *social.ProviderError {
	return &social.ProviderError{
		Provider:    c.config.ProviderName,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
		Raw:         raw,
	}
}
