// Package twitter implements the Twitter provider over OAuth 1.0a. Twitter
// never exposed email through OAuth2, so the legacy flow stays.
//
// OAuth1 has no state parameter; the broker's state token travels as a query
// param on the per-request callback URL, and the request token secret waits
// in an in-memory store until the callback returns.
package twitter

import (
	"context"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/goliatone/go-social"
	"github.com/goliatone/go-social/oauth1"
)

const (
	defaultRequestTokenURL = "https://api.twitter.com/oauth/request_token"
	defaultAuthorizeURL    = "https://api.twitter.com/oauth/authenticate"
	defaultAccessTokenURL  = "https://api.twitter.com/oauth/access_token"
	defaultUserInfoURL     = "https://api.twitter.com/1.1/account/verify_credentials.json"

	// requestTokenTTL outlives the broker state TTL so the secret is still
	// around whenever the state itself would still verify.
	requestTokenTTL = 15 * time.Minute
)

// Config holds Twitter OAuth1 configuration.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string

	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
	UserInfoURL     string

	HTTPClient *http.Client
}

// Provider implements social.Provider for Twitter.
type Provider struct {
	client      *oauth1.Client
	endpoints   oauth1.Endpoints
	callbackURL string
	secrets     *gocache.Cache
}

// New creates a new Twitter provider.
func New(cfg Config) *Provider {
	if cfg.RequestTokenURL == "" {
		cfg.RequestTokenURL = defaultRequestTokenURL
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = defaultAuthorizeURL
	}
	if cfg.AccessTokenURL == "" {
		cfg.AccessTokenURL = defaultAccessTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	return &Provider{
		client: oauth1.New(oauth1.Config{
			ProviderName:   "twitter",
			ConsumerKey:    cfg.ConsumerKey,
			ConsumerSecret: cfg.ConsumerSecret,
			CallbackURL:    cfg.CallbackURL,
			HTTPClient:     cfg.HTTPClient,
		}),
		endpoints: oauth1.Endpoints{
			RequestTokenURL: cfg.RequestTokenURL,
			AuthorizeURL:    cfg.AuthorizeURL,
			AccessTokenURL:  cfg.AccessTokenURL,
			UserInfoURL:     cfg.UserInfoURL,
		},
		callbackURL: cfg.CallbackURL,
		secrets:     gocache.New(requestTokenTTL, 2*requestTokenTTL),
	}
}

// Name implements social.Provider.
func (p *Provider) Name() string {
	return "twitter"
}

// AuthCodeURL implements social.Provider. Each call obtains a fresh request
// token; the state rides on the callback URL.
func (p *Provider) AuthCodeURL(ctx context.Context, state string, opts ...social.AuthCodeOption) (string, error) {
	callback := p.callbackURL
	if state != "" {
		sep := "?"
		if u, err := url.Parse(callback); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		callback = callback + sep + "state=" + url.QueryEscape(state)
	}

	requestToken, requestSecret, err := p.client.RequestToken(ctx, p.endpoints, callback)
	if err != nil {
		return "", err
	}

	p.secrets.Set(requestToken, requestSecret, requestTokenTTL)

	return p.client.AuthorizeURL(p.endpoints, requestToken), nil
}

// Exchange implements social.Provider. The code argument is the
// oauth_verifier; the request token arrives as an exchange option.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)

	requestToken := cfg.RequestToken
	requestSecret := cfg.RequestSecret
	if requestSecret == "" && requestToken != "" {
		if cached, ok := p.secrets.Get(requestToken); ok {
			requestSecret, _ = cached.(string)
		}
	}
	if requestToken == "" || requestSecret == "" {
		return nil, &social.ProviderError{
			Provider:    "twitter",
			Operation:   "exchange",
			Code:        "request_token_expired",
			Description: "request token missing or expired",
		}
	}

	token, err := p.client.AccessToken(ctx, p.endpoints, requestToken, requestSecret, code)
	if err != nil {
		return nil, err
	}

	p.secrets.Delete(requestToken)
	return token, nil
}

// UserInfo implements social.Provider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	body, err := p.client.Get(ctx, p.endpoints.UserInfoURL, token, url.Values{
		"include_email": {"true"},
		"skip_status":   {"true"},
	})
	if err != nil {
		return nil, err
	}

	var info twitterUser
	if err := unmarshalUser(body, &info); err != nil {
		return nil, &social.ProviderError{
			Provider:    "twitter",
			Operation:   "user_info",
			Code:        "invalid_response",
			Description: "failed to decode credentials response",
			Err:         err,
		}
	}

	return mapProfile(&info)
}

// RefreshToken implements social.Provider. OAuth1 tokens do not expire and
// cannot be refreshed.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	return nil, &social.ProviderError{
		Provider:    "twitter",
		Operation:   "refresh",
		Code:        "unsupported",
		Description: "twitter oauth1 tokens cannot be refreshed",
	}
}

func mapProfile(info *twitterUser) (*social.Profile, error) {
	return social.NormalizeProfile(&social.Profile{
		ProviderUserID: info.IDStr,
		Provider:       "twitter",
		Email:          info.Email,
		// Twitter only hands out addresses it has verified.
		EmailVerified: info.Email != "",
		Name:          info.Name,
		Username:      info.ScreenName,
		AvatarURL:     info.ProfileImageURL,
		Timezone:      info.TimeZone,
		Raw: map[string]any{
			"id":          info.IDStr,
			"screen_name": info.ScreenName,
		},
	})
}
