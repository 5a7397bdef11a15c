// Package amazon implements the Login with Amazon provider.
package amazon

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/goliatone/go-social"
	"github.com/goliatone/go-social/oauth2"
)

const (
	defaultAuthURL     = "https://www.amazon.com/ap/oa"
	defaultTokenURL    = "https://api.amazon.com/auth/o2/token"
	defaultUserInfoURL = "https://api.amazon.com/user/profile"
)

// Config holds Amazon OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default Amazon scopes.
func DefaultScopes() []string {
	return []string{"profile"}
}

// Provider implements social.Provider for Amazon.
type Provider struct {
	client    *oauth2.Client
	endpoints oauth2.Endpoints
	scopes    []string
}

// New creates a new Amazon provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	return &Provider{
		client: oauth2.New(oauth2.Config{
			ProviderName: "amazon",
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			CallbackURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			HTTPClient:   cfg.HTTPClient,
		}),
		endpoints: oauth2.Endpoints{
			AuthURL:     cfg.AuthURL,
			TokenURL:    cfg.TokenURL,
			UserInfoURL: cfg.UserInfoURL,
		},
		scopes: cfg.Scopes,
	}
}

// Name implements social.Provider.
func (p *Provider) Name() string {
	return "amazon"
}

// AuthCodeURL implements social.Provider.
func (p *Provider) AuthCodeURL(_ context.Context, state string, opts ...social.AuthCodeOption) (string, error) {
	cfg := social.ApplyAuthCodeOptions(p.scopes, opts...)
	return p.client.AuthCodeURL(p.endpoints, state, cfg), nil
}

// Exchange implements social.Provider.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)
	return p.client.Exchange(ctx, p.endpoints, code, cfg.CodeVerifier)
}

// UserInfo implements social.Provider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	body, err := p.client.Get(ctx, p.endpoints.UserInfoURL, token)
	if err != nil {
		return nil, err
	}

	var info amazonProfile
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &social.ProviderError{
			Provider:    "amazon",
			Operation:   "user_info",
			Code:        "invalid_response",
			Description: "failed to decode profile response",
			Err:         err,
		}
	}

	return mapProfile(&info)
}

// RefreshToken implements social.Provider.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	return p.client.Refresh(ctx, p.endpoints, refreshToken)
}

type amazonProfile struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func mapProfile(info *amazonProfile) (*social.Profile, error) {
	// Amazon accounts always have a verified address.
	return social.NormalizeProfile(&social.Profile{
		ProviderUserID: info.UserID,
		Provider:       "amazon",
		Email:          info.Email,
		EmailVerified:  true,
		Name:           info.Name,
		Raw: map[string]any{
			"user_id": info.UserID,
		},
	})
}
