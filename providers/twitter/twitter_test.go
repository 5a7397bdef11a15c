package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/goliatone/go-social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oauthServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/request_token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("oauth_token=req-token&oauth_token_secret=req-secret&oauth_callback_confirmed=true"))
	})
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		assert.Contains(t, header, `oauth_token="req-token"`)
		assert.Contains(t, header, `oauth_verifier="verifier-value"`)
		w.Write([]byte("oauth_token=access-token&oauth_token_secret=access-secret&user_id=42&screen_name=person"))
	})
	mux.HandleFunc("/1.1/account/verify_credentials.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("include_email"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id_str":                    "42",
			"screen_name":               "person",
			"name":                      "Person Example",
			"email":                     "person@example.com",
			"profile_image_url_https":   "https://example.com/avatar.png",
			"time_zone":                 "Europe/Paris",
		})
	})
	return httptest.NewServer(mux)
}

func newTestProvider(serverURL string) *Provider {
	return New(Config{
		ConsumerKey:     "consumer-key",
		ConsumerSecret:  "consumer-secret",
		CallbackURL:     "https://app.example/callback",
		RequestTokenURL: serverURL + "/oauth/request_token",
		AuthorizeURL:    serverURL + "/oauth/authenticate",
		AccessTokenURL:  serverURL + "/oauth/access_token",
		UserInfoURL:     serverURL + "/1.1/account/verify_credentials.json",
	})
}

func TestProviderAuthCodeURLCachesSecret(t *testing.T) {
	server := oauthServer(t)
	defer server.Close()

	provider := newTestProvider(server.URL)

	authURL, err := provider.AuthCodeURL(context.Background(), "state-token")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "req-token", parsed.Query().Get("oauth_token"))

	secret, ok := provider.secrets.Get("req-token")
	require.True(t, ok)
	assert.Equal(t, "req-secret", secret)
}

func TestProviderFullFlow(t *testing.T) {
	server := oauthServer(t)
	defer server.Close()

	provider := newTestProvider(server.URL)

	_, err := provider.AuthCodeURL(context.Background(), "state-token")
	require.NoError(t, err)

	// The callback hands back the verifier plus the request token; the
	// secret comes from the in-memory store.
	token, err := provider.Exchange(context.Background(), "verifier-value",
		social.WithOAuth1Verifier("req-token", ""))
	require.NoError(t, err)
	assert.Equal(t, "access-token", token.AccessToken)
	assert.Equal(t, "access-secret", token.TokenSecret)
	assert.Equal(t, "oauth1", token.TokenType)

	// The one-shot secret is gone after a successful exchange.
	_, ok := provider.secrets.Get("req-token")
	assert.False(t, ok)

	profile, err := provider.UserInfo(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "42", profile.ProviderUserID)
	assert.Equal(t, "person", profile.Username)
	assert.Equal(t, "person@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Europe/Paris", profile.Timezone)
}

func TestProviderExchangeWithoutRequestToken(t *testing.T) {
	server := oauthServer(t)
	defer server.Close()

	provider := newTestProvider(server.URL)

	_, err := provider.Exchange(context.Background(), "verifier-value",
		social.WithOAuth1Verifier("unknown-token", ""))
	require.Error(t, err)

	var perr *social.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "request_token_expired", perr.Code)
}

func TestProviderRefreshUnsupported(t *testing.T) {
	provider := New(Config{})

	_, err := provider.RefreshToken(context.Background(), "anything")
	require.Error(t, err)

	var perr *social.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "unsupported", perr.Code)
}
