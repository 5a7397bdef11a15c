package social

import (
	"context"
	"time"
)

// LinkedAccount is the persisted binding between a provider identity and a
// local account. (Provider, ProviderUserID) maps to at most one user; the
// linking engine is the only writer of new bindings.
type LinkedAccount struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Provider       string         `json:"provider"`
	ProviderUserID string         `json:"provider_user_id"`
	Email          string         `json:"email,omitempty"`
	Name           string         `json:"name,omitempty"`
	Username       string         `json:"username,omitempty"`
	AvatarURL      string         `json:"avatar_url,omitempty"`
	AccessToken    string         `json:"-"`
	RefreshToken   string         `json:"-"`
	TokenSecret    string         `json:"-"`
	TokenExpiresAt *time.Time     `json:"token_expires_at,omitempty"`
	ProfileData    map[string]any `json:"profile_data,omitempty"`
	LinkedAt       time.Time      `json:"linked_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// LinkedAccountRepository manages linked account persistence.
//
// Link is a strict insert: attempting to bind a (provider, provider_user_id)
// pair that another user already owns must fail with ErrIdentityTaken, never
// reassign. SaveTokens
// updates the mutable columns (tokens, profile snapshot) of an existing
// binding without touching ownership.
type LinkedAccountRepository interface {
	FindByProviderID(ctx context.Context, provider, providerUserID string) (*LinkedAccount, error)
	FindByUserID(ctx context.Context, userID string) ([]*LinkedAccount, error)
	Link(ctx context.Context, account *LinkedAccount) error
	SaveTokens(ctx context.Context, account *LinkedAccount) error
	Unlink(ctx context.Context, userID, provider string) error
	DeleteForUser(ctx context.Context, userID string) error
}

// Users is the account lookup/creation surface the broker consumes. Email
// lookups are case-insensitive exact matches.
type Users interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
}
