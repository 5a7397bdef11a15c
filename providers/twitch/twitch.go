// Package twitch implements the Twitch OAuth provider.
package twitch

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/goliatone/go-social"
	"github.com/goliatone/go-social/oauth2"
)

const (
	defaultAuthURL     = "https://id.twitch.tv/oauth2/authorize"
	defaultTokenURL    = "https://id.twitch.tv/oauth2/token"
	defaultUserInfoURL = "https://api.twitch.tv/helix/users"
)

// Config holds Twitch OAuth configuration.
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

// DefaultScopes returns the default Twitch scopes.
func DefaultScopes() []string {
	return []string{"user:read:email"}
}

// Provider implements social.Provider for Twitch.
type Provider struct {
	client    *oauth2.Client
	endpoints oauth2.Endpoints
	scopes    []string
}

// New creates a new Twitch provider.
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
			ProviderName: "twitch",
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			CallbackURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			// Helix requires the app id alongside the user token.
			UserInfoHeaders: map[string]string{
				"Client-Id": cfg.ClientID,
			},
			HTTPClient: cfg.HTTPClient,
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
	return "twitch"
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

	var resp twitchUsersResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Data) == 0 {
		return nil, &social.ProviderError{
			Provider:    "twitch",
			Operation:   "user_info",
			Code:        "invalid_response",
			Description: "failed to decode users response",
			Err:         err,
		}
	}

	return mapProfile(&resp.Data[0])
}

// RefreshToken implements social.Provider.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	return p.client.Refresh(ctx, p.endpoints, refreshToken)
}

type twitchUsersResponse struct {
	Data []twitchUser `json:"data"`
}

type twitchUser struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Email           string `json:"email"`
	ProfileImageURL string `json:"profile_image_url"`
}

func mapProfile(info *twitchUser) (*social.Profile, error) {
	return social.NormalizeProfile(&social.Profile{
		ProviderUserID: info.ID,
		Provider:       "twitch",
		Email:          info.Email,
		// Helix only returns an email Twitch has verified.
		EmailVerified: info.Email != "",
		Name:          info.DisplayName,
		Username:      info.Login,
		AvatarURL:     info.ProfileImageURL,
		Raw: map[string]any{
			"id":    info.ID,
			"login": info.Login,
		},
	})
}
