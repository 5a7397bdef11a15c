// Package synology implements the Synology SSO Server provider. Unlike the
// hosted providers its endpoints differ per installation, so they resolve
// through the OIDC well-known document at call time.
package synology

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/goliatone/go-social"
	"github.com/goliatone/go-social/discovery"
	"github.com/goliatone/go-social/oauth2"
)

// Config holds Synology SSO configuration. WellKnownURL points at the
// installation's .well-known/openid-configuration document.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	WellKnownURL string
	Resolver     *discovery.Resolver

	HTTPClient *http.Client
	Logger     social.Logger
}

// DefaultScopes returns the default Synology scopes.
func DefaultScopes() []string {
	return []string{"openid", "email"}
}

// Provider implements social.Provider for Synology SSO.
type Provider struct {
	client       *oauth2.Client
	resolver     *discovery.Resolver
	verifier     *discovery.IDTokenVerifier
	clientID     string
	wellKnownURL string
	scopes       []string
}

// New creates a new Synology provider. A shared resolver keeps one document
// cache across providers; nil gets a private one.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = discovery.NewResolver(cfg.HTTPClient)
	}

	return &Provider{
		client: oauth2.New(oauth2.Config{
			ProviderName: "synology",
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			CallbackURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			HTTPClient:   cfg.HTTPClient,
		}),
		resolver:     cfg.Resolver,
		verifier:     discovery.NewIDTokenVerifier(cfg.Logger),
		clientID:     cfg.ClientID,
		wellKnownURL: cfg.WellKnownURL,
		scopes:       cfg.Scopes,
	}
}

// Name implements social.Provider.
func (p *Provider) Name() string {
	return "synology"
}

// Available implements social.AvailabilityChecker; the provider is only
// usable while its well-known document resolves.
func (p *Provider) Available(ctx context.Context) error {
	_, err := p.resolver.Resolve(ctx, p.wellKnownURL)
	return err
}

// AuthCodeURL implements social.Provider. Discovery failure makes the
// provider unavailable for this attempt; nothing is cached on error.
func (p *Provider) AuthCodeURL(ctx context.Context, state string, opts ...social.AuthCodeOption) (string, error) {
	endpoints, err := p.endpoints(ctx)
	if err != nil {
		return "", err
	}

	cfg := social.ApplyAuthCodeOptions(p.scopes, opts...)
	return p.client.AuthCodeURL(endpoints, state, cfg), nil
}

// Exchange implements social.Provider. When the token response carries an
// id_token it is verified against the installation's JWKS before the token
// is accepted.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	endpoints, err := p.endpoints(ctx)
	if err != nil {
		return nil, err
	}

	cfg := social.ApplyExchangeOptions(opts...)
	token, err := p.client.Exchange(ctx, endpoints, code, cfg.CodeVerifier)
	if err != nil {
		return nil, err
	}

	if rawIDToken, ok := token.Raw["id_token"].(string); ok && rawIDToken != "" {
		doc, err := p.resolver.Resolve(ctx, p.wellKnownURL)
		if err != nil {
			return nil, err
		}
		if doc.JWKSURI != "" {
			if _, err := p.verifier.Verify(doc.JWKSURI, rawIDToken, doc.Issuer, p.clientID); err != nil {
				return nil, err
			}
		}
	}

	return token, nil
}

// UserInfo implements social.Provider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	endpoints, err := p.endpoints(ctx)
	if err != nil {
		return nil, err
	}

	body, err := p.client.Get(ctx, endpoints.UserInfoURL, token)
	if err != nil {
		return nil, err
	}

	var info synologyUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &social.ProviderError{
			Provider:    "synology",
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
	endpoints, err := p.endpoints(ctx)
	if err != nil {
		return nil, err
	}
	return p.client.Refresh(ctx, endpoints, refreshToken)
}

func (p *Provider) endpoints(ctx context.Context) (oauth2.Endpoints, error) {
	doc, err := p.resolver.Resolve(ctx, p.wellKnownURL)
	if err != nil {
		return oauth2.Endpoints{}, err
	}
	return oauth2.Endpoints{
		AuthURL:     doc.AuthorizationEndpoint,
		TokenURL:    doc.TokenEndpoint,
		UserInfoURL: doc.UserInfoEndpoint,
	}, nil
}

type synologyUserInfo struct {
	Sub      string `json:"sub"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func mapProfile(info *synologyUserInfo) (*social.Profile, error) {
	// The SSO server is the directory of record; its accounts count as
	// verified.
	return social.NormalizeProfile(&social.Profile{
		ProviderUserID: info.Sub,
		Provider:       "synology",
		Email:          info.Email,
		EmailVerified:  true,
		Username:       info.Username,
		Name:           info.Username,
		Raw: map[string]any{
			"sub": info.Sub,
		},
	})
}
