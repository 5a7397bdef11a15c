package discovery

import (
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/goliatone/go-social"
)

// IDTokenVerifier validates OIDC id_tokens against a provider's JWKS. The
// key set refreshes in the background; one verifier serves one jwks_uri.
type IDTokenVerifier struct {
	logger social.Logger

	mu   sync.Mutex
	sets map[string]*keyfunc.JWKS
}

// NewIDTokenVerifier creates a verifier.
func NewIDTokenVerifier(logger social.Logger) *IDTokenVerifier {
	return &IDTokenVerifier{
		logger: logger,
		sets:   map[string]*keyfunc.JWKS{},
	}
}

// Verify parses and validates an id_token, checking signature, expiry,
// issuer, and audience. Returns the token claims on success.
func (v *IDTokenVerifier) Verify(jwksURI, rawToken, issuer, clientID string) (jwt.MapClaims, error) {
	jwks, err := v.keySet(jwksURI)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if clientID != "" {
		opts = append(opts, jwt.WithAudience(clientID))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, jwks.Keyfunc, opts...)
	if err != nil {
		return nil, v.invalid(err)
	}
	if !token.Valid {
		return nil, v.invalid(fmt.Errorf("id_token failed validation"))
	}

	return claims, nil
}

// Close stops the background refresh goroutines of every cached key set.
func (v *IDTokenVerifier) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, jwks := range v.sets {
		jwks.EndBackground()
	}
	v.sets = map[string]*keyfunc.JWKS{}
}

func (v *IDTokenVerifier) keySet(jwksURI string) (*keyfunc.JWKS, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if jwks, ok := v.sets[jwksURI]; ok {
		return jwks, nil
	}

	jwks, err := keyfunc.Get(jwksURI, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			if v.logger != nil {
				v.logger.Error("jwks background refresh failed for %s: %v", jwksURI, err)
			}
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		clone := social.ErrProviderUnavailable.Clone()
		clone.Source = err
		return nil, clone.WithMetadata(map[string]any{
			"jwks_uri": jwksURI,
		})
	}

	v.sets[jwksURI] = jwks
	return jwks, nil
}

func (v *IDTokenVerifier) invalid(err error) error {
	clone := social.ErrUserInfoFailed.Clone()
	clone.Source = err
	return clone
}
