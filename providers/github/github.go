// Package github implements the GitHub OAuth provider.
package github

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/goliatone/go-social"
	"github.com/goliatone/go-social/oauth2"
)

const (
	defaultAuthURL     = "https://github.com/login/oauth/authorize"
	defaultTokenURL    = "https://github.com/login/oauth/access_token"
	defaultUserInfoURL = "https://api.github.com/user"
	defaultEmailsURL   = "https://api.github.com/user/emails"
)

// Config holds GitHub OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	EmailsURL   string

	HTTPClient *http.Client
}

// DefaultScopes returns the default GitHub scopes.
func DefaultScopes() []string {
	return []string{"read:user", "user:email"}
}

// Provider implements social.Provider for GitHub.
type Provider struct {
	client    *oauth2.Client
	endpoints oauth2.Endpoints
	emailsURL string
	scopes    []string
}

// New creates a new GitHub provider.
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
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}

	return &Provider{
		client: oauth2.New(oauth2.Config{
			ProviderName: "github",
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			CallbackURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			UserInfoHeaders: map[string]string{
				"Accept": "application/vnd.github+json",
			},
			HTTPClient: cfg.HTTPClient,
		}),
		endpoints: oauth2.Endpoints{
			AuthURL:     cfg.AuthURL,
			TokenURL:    cfg.TokenURL,
			UserInfoURL: cfg.UserInfoURL,
		},
		emailsURL: cfg.EmailsURL,
		scopes:    cfg.Scopes,
	}
}

// Name implements social.Provider.
func (p *Provider) Name() string {
	return "github"
}

// AuthCodeURL implements social.Provider.
func (p *Provider) AuthCodeURL(_ context.Context, state string, opts ...social.AuthCodeOption) (string, error) {
	cfg := social.ApplyAuthCodeOptions(p.scopes, opts...)
	return p.client.AuthCodeURL(p.endpoints, state, cfg), nil
}

// Exchange implements social.Provider. GitHub answers with a form-encoded
// body unless asked otherwise; the shared client handles both.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)
	return p.client.Exchange(ctx, p.endpoints, code, cfg.CodeVerifier)
}

// UserInfo implements social.Provider. Users can hide their email from the
// public profile; the emails endpoint supplies the primary verified address.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	body, err := p.client.Get(ctx, p.endpoints.UserInfoURL, token)
	if err != nil {
		return nil, err
	}

	var info githubUser
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &social.ProviderError{
			Provider:    "github",
			Operation:   "user_info",
			Code:        "invalid_response",
			Description: "failed to decode user response",
			Err:         err,
		}
	}

	if info.Email == "" {
		info.Email = p.primaryEmail(ctx, token)
	}

	return mapProfile(&info)
}

// RefreshToken implements social.Provider. Classic GitHub OAuth apps issue
// non-expiring tokens; refresh only works for apps with expiration enabled.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	return p.client.Refresh(ctx, p.endpoints, refreshToken)
}

// primaryEmail is best effort; a login should not fail because the emails
// scope was declined.
func (p *Provider) primaryEmail(ctx context.Context, token *social.Token) string {
	body, err := p.client.Get(ctx, p.emailsURL, token)
	if err != nil {
		return ""
	}

	var emails []githubEmail
	if err := json.Unmarshal(body, &emails); err != nil {
		return ""
	}

	for _, email := range emails {
		if email.Primary && email.Verified {
			return email.Email
		}
	}
	for _, email := range emails {
		if email.Verified {
			return email.Email
		}
	}
	return ""
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func mapProfile(info *githubUser) (*social.Profile, error) {
	// GitHub only exposes verified addresses through the API.
	return social.NormalizeProfile(&social.Profile{
		ProviderUserID: strconv.FormatInt(info.ID, 10),
		Provider:       "github",
		Email:          info.Email,
		EmailVerified:  info.Email != "",
		Name:           info.Name,
		Username:       info.Login,
		AvatarURL:      info.AvatarURL,
		Raw: map[string]any{
			"id":    info.ID,
			"login": info.Login,
		},
	})
}
