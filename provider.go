package social

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Provider is the capability surface a social identity provider exposes to
// the broker. Implementations are plain configuration plus a profile mapper;
// protocol mechanics live in the shared oauth2/oauth1 clients.
type Provider interface {
	// Name returns the provider identifier (e.g., "github", "google").
	Name() string

	// AuthCodeURL returns the URL to redirect users to for authorization.
	// The state parameter is required for CSRF protection.
	AuthCodeURL(ctx context.Context, state string, opts ...AuthCodeOption) (string, error)

	// Exchange trades an authorization callback (code, or code+verifier for
	// OAuth1 providers) for an access token.
	Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error)

	// UserInfo fetches and normalizes the user's profile.
	UserInfo(ctx context.Context, token *Token) (*Profile, error)

	// RefreshToken refreshes an expired access token where supported.
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
}

// Token represents a provider token response.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	// TokenSecret is only set by OAuth1 providers.
	TokenSecret string
	Raw         map[string]any
}

// Expired reports whether the token carries an expiry in the past.
func (t *Token) Expired() bool {
	return t != nil && !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// Profile is the normalized identity record every provider payload maps
// into. ProviderUserID is the provider-scoped external id and must never be
// empty; mapping fails instead of producing an anonymous profile.
type Profile struct {
	ProviderUserID string
	Provider       string
	Email          string
	EmailVerified  bool
	Name           string
	FirstName      string
	LastName       string
	Username       string
	AvatarURL      string
	// Timezone is a normalized IANA zone name, "UTC" when the provider
	// value could not be resolved.
	Timezone string
	Raw      map[string]any
}

// Validate enforces the profile invariants once, at the mapping boundary.
func (p *Profile) Validate() error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.ProviderUserID, validation.Required),
		validation.Field(&p.Provider, validation.Required),
	)
	if err != nil {
		clone := ErrProfileInvalid.Clone()
		clone.Source = err
		return clone.WithMetadata(map[string]any{
			"provider": p.Provider,
		})
	}
	return nil
}

// NormalizeProfile trims the free-form fields and applies fallbacks, then
// validates. Providers call this at the end of their mappers.
func NormalizeProfile(p *Profile) (*Profile, error) {
	if p == nil {
		return nil, ErrProfileInvalid
	}

	p.ProviderUserID = strings.TrimSpace(p.ProviderUserID)
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	p.Name = strings.TrimSpace(p.Name)
	p.Username = strings.TrimSpace(p.Username)

	if p.Timezone == "" {
		p.Timezone = "UTC"
	} else {
		p.Timezone = NormalizeTimezone(p.Timezone)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// AuthCodeOption configures the authorization URL.
type AuthCodeOption func(*authCodeConfig)

// WithScopes appends scopes to the auth request.
func WithScopes(scopes ...string) AuthCodeOption {
	return func(c *authCodeConfig) {
		c.scopes = append(c.scopes, scopes...)
	}
}

// WithPKCE enables PKCE with the given code challenge.
func WithPKCE(codeChallenge, method string) AuthCodeOption {
	return func(c *authCodeConfig) {
		c.codeChallenge = codeChallenge
		c.codeChallengeMethod = method
	}
}

// WithPrompt sets the prompt parameter (e.g., "consent", "select_account").
func WithPrompt(prompt string) AuthCodeOption {
	return func(c *authCodeConfig) {
		c.prompt = prompt
	}
}

// ExchangeOption configures the token exchange.
type ExchangeOption func(*exchangeConfig)

// WithCodeVerifier sets the PKCE code verifier for token exchange.
func WithCodeVerifier(verifier string) ExchangeOption {
	return func(c *exchangeConfig) {
		c.codeVerifier = verifier
	}
}

// WithOAuth1Verifier carries the oauth_verifier and request token through an
// OAuth1 exchange.
func WithOAuth1Verifier(requestToken, requestSecret string) ExchangeOption {
	return func(c *exchangeConfig) {
		c.requestToken = requestToken
		c.requestSecret = requestSecret
	}
}

// WithFlowNonce carries the nonce the initiating browser stored when the flow
// began. The broker requires it to match the nonce sealed in the state, which
// pins the callback to the browser that started the flow.
func WithFlowNonce(nonce string) ExchangeOption {
	return func(c *exchangeConfig) {
		c.flowNonce = nonce
	}
}

type authCodeConfig struct {
	scopes              []string
	codeChallenge       string
	codeChallengeMethod string
	prompt              string
}

type exchangeConfig struct {
	codeVerifier  string
	requestToken  string
	requestSecret string
	flowNonce     string
}

// AuthCodeConfig represents applied auth code options in a provider-friendly form.
type AuthCodeConfig struct {
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	Prompt              string
}

// ExchangeConfig represents applied exchange options in a provider-friendly form.
type ExchangeConfig struct {
	CodeVerifier  string
	RequestToken  string
	RequestSecret string
	FlowNonce     string
}

// ApplyAuthCodeOptions applies AuthCodeOption values and returns a normalized config.
func ApplyAuthCodeOptions(scopes []string, opts ...AuthCodeOption) AuthCodeConfig {
	cfg := authCodeConfig{scopes: append([]string(nil), scopes...)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return AuthCodeConfig{
		Scopes:              cfg.scopes,
		CodeChallenge:       cfg.codeChallenge,
		CodeChallengeMethod: cfg.codeChallengeMethod,
		Prompt:              cfg.prompt,
	}
}

// ApplyExchangeOptions applies ExchangeOption values and returns a normalized config.
func ApplyExchangeOptions(opts ...ExchangeOption) ExchangeConfig {
	cfg := exchangeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return ExchangeConfig{
		CodeVerifier:  cfg.codeVerifier,
		RequestToken:  cfg.requestToken,
		RequestSecret: cfg.requestSecret,
		FlowNonce:     cfg.flowNonce,
	}
}
