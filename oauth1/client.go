// Package oauth1 implements the three-legged OAuth 1.0a flow with HMAC-SHA1
// request signing. Only providers that never moved off the legacy protocol
// use it; the broker treats them like any other provider.
package oauth1

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-social"
)

// Endpoints are the provider URLs for the three-legged flow.
type Endpoints struct {
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
	UserInfoURL     string
}

// Config holds the consumer credentials for one provider.
type Config struct {
	ProviderName   string
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string

	HTTPClient *http.Client
}

// Client drives the three-legged flow against a provider.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a client with a 10 second timeout unless one is supplied.
func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{config: cfg, httpClient: client}
}

// RequestToken obtains a temporary request token and its secret. The
// callback may extend the configured one with per-request query params
// (OAuth1 has no state parameter; it travels on the callback URL instead).
func (c *Client) RequestToken(ctx context.Context, endpoints Endpoints, callbackURL string) (string, string, error) {
	if callbackURL == "" {
		callbackURL = c.config.CallbackURL
	}

	oauthParams := c.baseParams()
	oauthParams["oauth_callback"] = callbackURL

	body, err := c.signedPost(ctx, "request_token", endpoints.RequestTokenURL, oauthParams, "")
	if err != nil {
		return "", "", err
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "", "", c.providerError("request_token", 0, "invalid_response", "failed to decode request token response", err)
	}
	if values.Get("oauth_callback_confirmed") != "true" {
		return "", "", c.providerError("request_token", 0, "callback_not_confirmed", "provider did not confirm the callback", nil)
	}

	token := values.Get("oauth_token")
	secret := values.Get("oauth_token_secret")
	if token == "" || secret == "" {
		return "", "", c.providerError("request_token", 0, "invalid_response", "missing request token", nil)
	}

	return token, secret, nil
}

// AuthorizeURL composes the user-facing authorization redirect.
func (c *Client) AuthorizeURL(endpoints Endpoints, requestToken string) string {
	params := url.Values{"oauth_token": {requestToken}}
	return endpoints.AuthorizeURL + "?" + params.Encode()
}

// AccessToken trades an authorized request token plus verifier for the
// long-lived token pair.
func (c *Client) AccessToken(ctx context.Context, endpoints Endpoints, requestToken, requestSecret, verifier string) (*social.Token, error) {
	oauthParams := c.baseParams()
	oauthParams["oauth_token"] = requestToken
	oauthParams["oauth_verifier"] = verifier

	body, err := c.signedPost(ctx, "exchange", endpoints.AccessTokenURL, oauthParams, requestSecret)
	if err != nil {
		return nil, err
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, c.providerError("exchange", 0, "invalid_response", "failed to decode access token response", err)
	}

	token := values.Get("oauth_token")
	secret := values.Get("oauth_token_secret")
	if token == "" || secret == "" {
		return nil, c.providerError("exchange", 0, "invalid_response", "missing access token", nil)
	}

	return &social.Token{
		AccessToken: token,
		TokenSecret: secret,
		TokenType:   "oauth1",
	}, nil
}

// Get performs a signed GET against a protected resource, typically the
// user-info endpoint. Query params participate in the signature.
func (c *Client) Get(ctx context.Context, rawURL string, token *social.Token, query url.Values) ([]byte, error) {
	oauthParams := c.baseParams()
	oauthParams["oauth_token"] = token.AccessToken

	requestURL := rawURL
	if len(query) > 0 {
		requestURL = rawURL + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	signature := c.sign(http.MethodGet, rawURL, mergeParams(oauthParams, query), token.TokenSecret)
	oauthParams["oauth_signature"] = signature
	req.Header.Set("Authorization", authorizationHeader(oauthParams))
	req.Header.Set("Accept", "application/json")

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
		code, desc := parseErrorBody(body)
		return nil, c.providerError("user_info", resp.StatusCode, code, desc, nil)
	}

	return body, nil
}

func (c *Client) signedPost(ctx context.Context, operation, rawURL string, oauthParams map[string]string, tokenSecret string) ([]byte, error) {
	signature := c.sign(http.MethodPost, rawURL, mergeParams(oauthParams, nil), tokenSecret)
	oauthParams["oauth_signature"] = signature

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authorizationHeader(oauthParams))

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
		code, desc := parseErrorBody(body)
		return nil, c.providerError(operation, resp.StatusCode, code, desc, nil)
	}

	return body, nil
}

func (c *Client) baseParams() map[string]string {
	return map[string]string{
		"oauth_consumer_key":     c.config.ConsumerKey,
		"oauth_nonce":            nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(time.Now().Unix(), 10),
		"oauth_version":          "1.0",
	}
}

// sign computes the HMAC-SHA1 signature over the canonical base string. The
// base URL must not carry a query string; query params arrive via params.
func (c *Client) sign(method, baseURL string, params map[string]string, tokenSecret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, percentEncode(key)+"="+percentEncode(params[key]))
	}

	base := strings.Join([]string{
		method,
		percentEncode(baseURL),
		percentEncode(strings.Join(pairs, "&")),
	}, "&")

	key := percentEncode(c.config.ConsumerSecret) + "&" + percentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func mergeParams(oauthParams map[string]string, query url.Values) map[string]string {
	merged := make(map[string]string, len(oauthParams)+len(query))
	for key, value := range oauthParams {
		merged[key] = value
	}
	for key := range query {
		merged[key] = query.Get(key)
	}
	return merged
}

func authorizationHeader(oauthParams map[string]string) string {
	keys := make([]string, 0, len(oauthParams))
	for key := range oauthParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", percentEncode(key), percentEncode(oauthParams[key])))
	}
	return "OAuth " + strings.Join(pairs, ", ")
}

// percentEncode applies the strict RFC 3986 encoding OAuth1 signatures
// require; url.QueryEscape is close but encodes spaces as '+'.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') ||
			(ch >= '0' && ch <= '9') || ch == '-' || ch == '.' || ch == '_' || ch == '~' {
			b.WriteByte(ch)
		} else {
			b.WriteString(fmt.Sprintf("%%%02X", ch))
		}
	}
	return b.String()
}

func nonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(buf)
}

// parseErrorBody understands the two JSON error shapes legacy APIs emit:
// a top-level "error" string, or an "errors" array with message/code pairs.
func parseErrorBody(body []byte) (string, string) {
	var payload struct {
		Error  string `json:"error"`
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return "", payload.Error
		}
		if len(payload.Errors) > 0 {
			return strconv.Itoa(payload.Errors[0].Code), payload.Errors[0].Message
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return "", msg
}

func (c *Client) providerError(operation string, status int, code, description string, err error) *social.ProviderError {
	return &social.ProviderError{
		Provider:    c.config.ProviderName,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}
