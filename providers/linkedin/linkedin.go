// Package linkedin implements the LinkedIn OIDC provider.
package linkedin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/goliatone/go-social"
	"github.com/goliatone/go-social/oauth2"
)

const (
	defaultAuthURL     = "https://www.linkedin.com/oauth/v2/authorization"
	defaultTokenURL    = "https://www.linkedin.com/oauth/v2/accessToken"
	defaultUserInfoURL = "https://api.linkedin.com/v2/userinfo"
)

// Config holds LinkedIn OAuth configuration.
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

// DefaultScopes returns the default LinkedIn scopes.
func DefaultScopes() []string {
	return []string{"openid", "profile", "email"}
}

// Provider implements social.Provider for LinkedIn.
type Provider struct {
	client    *oauth2.Client
	endpoints oauth2.Endpoints
	scopes    []string
}

// New creates a new LinkedIn provider.
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
			ProviderName: "linkedin",
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
	return "linkedin"
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

	var info linkedinUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &social.ProviderError{
			Provider:    "linkedin",
			Operation:   "user_info",
			Code:        "invalid_response",
			Description: "failed to decode userinfo response",
			Err:         err,
		}
	}

	return mapProfile(&info)
}

// RefreshToken implements social.Provider.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	return p.client.Refresh(ctx, p.endpoints, refreshToken)
}

type linkedinUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

func mapProfile(info *linkedinUserInfo) (*social.Profile, error) {
	return social.NormalizeProfile(&social.Profile{
		ProviderUserID: info.Sub,
		Provider:       "linkedin",
		Email:          info.Email,
		EmailVerified:  info.EmailVerified,
		Name:           info.Name,
		FirstName:      info.GivenName,
		LastName:       info.FamilyName,
		AvatarURL:      info.Picture,
		Raw: map[string]any{
			"sub": info.Sub,
		},
	})
}
