package social

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenServiceGenerate(t *testing.T) {
	signingKey := []byte("test-signing-key")
	service := NewTokenService(signingKey, 72, "test-issuer", jwt.ClaimStrings{"test-audience"}, nil)

	user := &User{
		ID:       uuid.New(),
		Username: "person",
		Email:    "person@example.com",
		Role:     RoleMember,
	}

	signed, err := service.Generate(NewIdentityFromUser(user))
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims := &JWTClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (any, error) {
		return signingKey, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer("test-issuer"),
		jwt.WithAudience("test-audience"),
	)
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, user.ID.String(), claims.UID)
	assert.Equal(t, RoleMember, claims.UserRole)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenServiceRejectsNilIdentity(t *testing.T) {
	service := NewTokenService([]byte("key"), 1, "iss", nil, nil)

	_, err := service.Generate(nil)
	require.Error(t, err)
}

func TestTokenServiceWrongKeyFailsValidation(t *testing.T) {
	service := NewTokenService([]byte("right-key"), 1, "iss", nil, nil)

	user := &User{ID: uuid.New(), Role: RoleMember}
	signed, err := service.Generate(NewIdentityFromUser(user))
	require.NoError(t, err)

	_, err = jwt.Parse(signed, func(token *jwt.Token) (any, error) {
		return []byte("wrong-key"), nil
	})
	require.Error(t, err)
}
