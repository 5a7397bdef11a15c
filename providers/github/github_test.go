package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderExchangeFormEncodedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		w.Write([]byte("access_token=gho_token&token_type=bearer&scope=read%3Auser"))
	}))
	defer server.Close()

	provider := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "https://example.com/callback",
		TokenURL:     server.URL,
	})

	token, err := provider.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "gho_token", token.AccessToken)
	assert.Equal(t, []string{"read:user"}, token.Scopes)
}

func TestProviderUserInfoPublicEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         12345,
			"login":      "octo",
			"name":       "Octo Cat",
			"email":      "octo@example.com",
			"avatar_url": "https://example.com/avatar.png",
		})
	}))
	defer server.Close()

	provider := New(Config{
		ClientID:    "client-id",
		UserInfoURL: server.URL,
	})

	profile, err := provider.UserInfo(context.Background(), &social.Token{AccessToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, "12345", profile.ProviderUserID)
	assert.Equal(t, "octo", profile.Username)
	assert.Equal(t, "octo@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
}

func TestProviderUserInfoFallsBackToEmailsEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    12345,
			"login": "octo",
			"email": nil,
		})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	provider := New(Config{
		ClientID:    "client-id",
		UserInfoURL: server.URL + "/user",
		EmailsURL:   server.URL + "/user/emails",
	})

	profile, err := provider.UserInfo(context.Background(), &social.Token{AccessToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
}

func TestProviderUserInfoNoEmailAnywhere(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    12345,
			"login": "octo",
		})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		// Emails scope declined.
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	provider := New(Config{
		ClientID:    "client-id",
		UserInfoURL: server.URL + "/user",
		EmailsURL:   server.URL + "/user/emails",
	})

	profile, err := provider.UserInfo(context.Background(), &social.Token{AccessToken: "token"})
	require.NoError(t, err)
	assert.Empty(t, profile.Email)
	assert.False(t, profile.EmailVerified)
	assert.Equal(t, "octo", profile.Username)
}
