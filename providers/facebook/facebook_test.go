package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetString(t *testing.T) {
	cases := map[float64]string{
		0:    "+0:00",
		2:    "+2:00",
		-7:   "-7:00",
		5.5:  "+5:30",
		-3.5: "-3:30",
		5.75: "+5:45",
	}
	for hours, want := range cases {
		assert.Equal(t, want, offsetString(hours), "offset %v", hours)
	}
}

func TestProviderUserInfoMapsProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "fb-1",
			"name":       "Person Example",
			"email":      "person@example.com",
			"first_name": "Person",
			"last_name":  "Example",
			"timezone":   5.5,
			"picture": map[string]any{
				"data": map[string]any{
					"url": "https://example.com/avatar.png",
				},
			},
		})
	}))
	defer server.Close()

	provider := New(Config{
		ClientID:    "client-id",
		UserInfoURL: server.URL,
	})

	profile, err := provider.UserInfo(context.Background(), &social.Token{AccessToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, "fb-1", profile.ProviderUserID)
	assert.Equal(t, "person@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Person", profile.FirstName)
	assert.Equal(t, "https://example.com/avatar.png", profile.AvatarURL)
	assert.Equal(t, "Asia/Kolkata", profile.Timezone)
}

func TestProviderUserInfoWithoutEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "fb-1",
			"name": "Person Example",
		})
	}))
	defer server.Close()

	provider := New(Config{UserInfoURL: server.URL})

	profile, err := provider.UserInfo(context.Background(), &social.Token{AccessToken: "token"})
	require.NoError(t, err)
	assert.Empty(t, profile.Email)
	assert.False(t, profile.EmailVerified)
}

func TestProviderRefreshUnsupported(t *testing.T) {
	provider := New(Config{})

	_, err := provider.RefreshToken(context.Background(), "refresh")
	require.Error(t, err)

	var perr *social.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "unsupported", perr.Code)
}
