// Package discord implements the Discord OAuth provider.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/goliatone/go-social"
	"github.com/goliatone/go-social/oauth2"
)

const (
	defaultAuthURL     = "https://discord.com/api/oauth2/authorize"
	defaultTokenURL    = "https://discord.com/api/oauth2/token"
	defaultUserInfoURL = "https://discord.com/api/users/@me"

	cdnBase = "https://cdn.discordapp.com"
)

// Config holds Discord OAuth configuration.
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

// DefaultScopes returns the default Discord scopes.
func DefaultScopes() []string {
	return []string{"identify", "email"}
}

// Provider implements social.Provider for Discord.
type Provider struct {
	client    *oauth2.Client
	endpoints oauth2.Endpoints
	scopes    []string
}

// New creates a new Discord provider.
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
			ProviderName: "discord",
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
	return "discord"
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

	var info discordUser
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &social.ProviderError{
			Provider:    "discord",
			Operation:   "user_info",
			Code:        "invalid_response",
			Description: "failed to decode user response",
			Err:         err,
		}
	}

	return mapProfile(&info)
}

// RefreshToken implements social.Provider.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	return p.client.Refresh(ctx, p.endpoints, refreshToken)
}

type discordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Email      string `json:"email"`
	Verified   bool   `json:"verified"`
	Avatar     string `json:"avatar"`
}

func mapProfile(info *discordUser) (*social.Profile, error) {
	name := info.GlobalName
	if name == "" {
		name = info.Username
	}

	avatarURL := ""
	if info.Avatar != "" {
		avatarURL = fmt.Sprintf("%s/avatars/%s/%s.png", cdnBase, info.ID, info.Avatar)
	}

	return social.NormalizeProfile(&social.Profile{
		ProviderUserID: info.ID,
		Provider:       "discord",
		Email:          info.Email,
		EmailVerified:  info.Verified,
		Name:           name,
		Username:       info.Username,
		AvatarURL:      avatarURL,
		Raw: map[string]any{
			"id":       info.ID,
			"username": info.Username,
		},
	})
}
