// Package microsoft implements the Microsoft identity platform provider.
// The common tenant endpoints cover both personal and work accounts.
package microsoft

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/goliatone/go-social"
	"github.com/goliatone/go-social/oauth2"
)

const (
	defaultAuthURL     = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	defaultTokenURL    = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	defaultUserInfoURL = "https://graph.microsoft.com/oidc/userinfo"
)

// Config holds Microsoft OAuth configuration. Tenant-specific endpoints can
// be set through AuthURL/TokenURL.
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

// DefaultScopes returns the default Microsoft scopes.
func DefaultScopes() []string {
	return []string{"openid", "profile", "email", "offline_access"}
}

// Provider implements social.Provider for Microsoft.
type Provider struct {
	client    *oauth2.Client
	endpoints oauth2.Endpoints
	scopes    []string
}

// New creates a new Microsoft provider.
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
			ProviderName: "microsoft",
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
	return "microsoft"
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

	var info microsoftUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &social.ProviderError{
			Provider:    "microsoft",
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

type microsoftUserInfo struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"givenname"`
	FamilyName string `json:"familyname"`
	Picture    string `json:"picture"`
}

func mapProfile(info *microsoftUserInfo) (*social.Profile, error) {
	// The userinfo endpoint carries no verified flag. Microsoft accounts
	// require a confirmed address, so presence stands in for verification.
	return social.NormalizeProfile(&social.Profile{
		ProviderUserID: info.Sub,
		Provider:       "microsoft",
		Email:          info.Email,
		EmailVerified:  info.Email != "",
		Name:           info.Name,
		FirstName:      info.GivenName,
		LastName:       info.FamilyName,
		AvatarURL:      info.Picture,
		Raw: map[string]any{
			"sub": info.Sub,
		},
	})
}
