// Package repository provides the Bun-backed persistence layer for linked
// accounts and users.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-social"
)

// LinkedAccountModel is the Bun model for social account links.
type LinkedAccountModel struct {
	bun.BaseModel `bun:"table:social_accounts"`

	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid"`
	UserID         uuid.UUID      `bun:"user_id,notnull,type:uuid"`
	Provider       string         `bun:"provider,notnull"`
	ProviderUserID string         `bun:"provider_user_id,notnull"`
	Email          string         `bun:"email"`
	Name           string         `bun:"name"`
	Username       string         `bun:"username"`
	AvatarURL      string         `bun:"avatar_url"`
	AccessToken    string         `bun:"access_token"`
	RefreshToken   string         `bun:"refresh_token"`
	TokenSecret    string         `bun:"token_secret"`
	TokenExpiresAt *time.Time     `bun:"token_expires_at"`
	ProfileData    map[string]any `bun:"profile_data,type:jsonb"`
	LinkedAt       time.Time      `bun:"linked_at,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,default:current_timestamp"`
}

// LinkedAccounts implements social.LinkedAccountRepository using Bun.
type LinkedAccounts struct {
	db *bun.DB
}

var _ social.LinkedAccountRepository = (*LinkedAccounts)(nil)

// NewLinkedAccounts creates the repository.
func NewLinkedAccounts(db *bun.DB) *LinkedAccounts {
	return &LinkedAccounts{db: db}
}

// FindByProviderID implements social.LinkedAccountRepository.
func (r *LinkedAccounts) FindByProviderID(ctx context.Context, provider, providerUserID string) (*social.LinkedAccount, error) {
	model, err := r.findModel(ctx, provider, providerUserID)
	if err != nil {
		return nil, err
	}
	return r.toAccount(model), nil
}

// FindByUserID implements social.LinkedAccountRepository.
func (r *LinkedAccounts) FindByUserID(ctx context.Context, userID string) ([]*social.LinkedAccount, error) {
	var models []LinkedAccountModel
	err := r.db.NewSelect().
		Model(&models).
		Where("user_id = ?", userID).
		Order("linked_at ASC").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*social.LinkedAccount{}, nil
		}
		return nil, err
	}

	accounts := make([]*social.LinkedAccount, len(models))
	for i := range models {
		accounts[i] = r.toAccount(&models[i])
	}
	return accounts, nil
}

// Link implements social.LinkedAccountRepository. The insert is strict: a
// (provider, provider_user_id) pair owned by another user fails with
// ErrIdentityTaken and ownership never moves. A link the same user already
// holds refreshes its mutable columns instead.
func (r *LinkedAccounts) Link(ctx context.Context, account *social.LinkedAccount) error {
	existing, err := r.findModel(ctx, account.Provider, account.ProviderUserID)
	if err == nil {
		if existing.UserID.String() != account.UserID {
			return r.identityTaken(account, existing.UserID.String())
		}
		account.ID = existing.ID.String()
		account.LinkedAt = existing.LinkedAt
		return r.SaveTokens(ctx, account)
	}
	if !isNotFound(err) {
		return err
	}

	model := r.fromAccount(account)
	now := time.Now()
	model.LinkedAt = now
	model.UpdatedAt = now

	if _, err := r.db.NewInsert().Model(model).Exec(ctx); err != nil {
		// A concurrent link may have raced us into the unique index.
		// Re-check so the caller sees a conflict, not a driver error.
		if existing, lookupErr := r.findModel(ctx, account.Provider, account.ProviderUserID); lookupErr == nil {
			if existing.UserID.String() != account.UserID {
				return r.identityTaken(account, existing.UserID.String())
			}
		}
		return err
	}

	account.ID = model.ID.String()
	account.LinkedAt = model.LinkedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

// SaveTokens implements social.LinkedAccountRepository. Only the mutable
// columns move; ownership is untouched.
func (r *LinkedAccounts) SaveTokens(ctx context.Context, account *social.LinkedAccount) error {
	now := time.Now()
	res, err := r.db.NewUpdate().
		Model((*LinkedAccountModel)(nil)).
		Set("email = ?", account.Email).
		Set("name = ?", account.Name).
		Set("username = ?", account.Username).
		Set("avatar_url = ?", account.AvatarURL).
		Set("access_token = ?", account.AccessToken).
		Set("refresh_token = ?", account.RefreshToken).
		Set("token_secret = ?", account.TokenSecret).
		Set("token_expires_at = ?", account.TokenExpiresAt).
		Set("profile_data = ?", account.ProfileData).
		Set("updated_at = ?", now).
		Where("provider = ? AND provider_user_id = ?", account.Provider, account.ProviderUserID).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			"provider":         account.Provider,
			"provider_user_id": account.ProviderUserID,
		})
	}

	account.UpdatedAt = now
	return nil
}

// Unlink implements social.LinkedAccountRepository.
func (r *LinkedAccounts) Unlink(ctx context.Context, userID, provider string) error {
	res, err := r.db.NewDelete().
		Model((*LinkedAccountModel)(nil)).
		Where("user_id = ? AND provider = ?", userID, provider).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			"user_id":  userID,
			"provider": provider,
		})
	}

	return nil
}

// DeleteForUser implements social.LinkedAccountRepository. Used when a user
// account is removed; deleting nothing is fine.
func (r *LinkedAccounts) DeleteForUser(ctx context.Context, userID string) error {
	_, err := r.db.NewDelete().
		Model((*LinkedAccountModel)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *LinkedAccounts) findModel(ctx context.Context, provider, providerUserID string) (*LinkedAccountModel, error) {
	var model LinkedAccountModel
	err := r.db.NewSelect().
		Model(&model).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"provider":         provider,
				"provider_user_id": providerUserID,
			})
		}
		return nil, err
	}
	return &model, nil
}

func (r *LinkedAccounts) identityTaken(account *social.LinkedAccount, ownerID string) error {
	clone := social.ErrIdentityTaken.Clone()
	return clone.WithMetadata(map[string]any{
		"provider":         account.Provider,
		"provider_user_id": account.ProviderUserID,
		"owner_id":         ownerID,
	})
}

func (r *LinkedAccounts) toAccount(m *LinkedAccountModel) *social.LinkedAccount {
	return &social.LinkedAccount{
		ID:             m.ID.String(),
		UserID:         m.UserID.String(),
		Provider:       m.Provider,
		ProviderUserID: m.ProviderUserID,
		Email:          m.Email,
		Name:           m.Name,
		Username:       m.Username,
		AvatarURL:      m.AvatarURL,
		AccessToken:    m.AccessToken,
		RefreshToken:   m.RefreshToken,
		TokenSecret:    m.TokenSecret,
		TokenExpiresAt: m.TokenExpiresAt,
		ProfileData:    m.ProfileData,
		LinkedAt:       m.LinkedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func (r *LinkedAccounts) fromAccount(a *social.LinkedAccount) *LinkedAccountModel {
	var id uuid.UUID
	if a.ID != "" {
		if parsed, err := uuid.Parse(a.ID); err == nil {
			id = parsed
		}
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	var userID uuid.UUID
	if a.UserID != "" {
		if parsed, err := uuid.Parse(a.UserID); err == nil {
			userID = parsed
		}
	}

	profileData := a.ProfileData
	if profileData == nil {
		profileData = map[string]any{}
	}

	return &LinkedAccountModel{
		ID:             id,
		UserID:         userID,
		Provider:       a.Provider,
		ProviderUserID: a.ProviderUserID,
		Email:          a.Email,
		Name:           a.Name,
		Username:       a.Username,
		AvatarURL:      a.AvatarURL,
		AccessToken:    a.AccessToken,
		RefreshToken:   a.RefreshToken,
		TokenSecret:    a.TokenSecret,
		TokenExpiresAt: a.TokenExpiresAt,
		ProfileData:    profileData,
		LinkedAt:       a.LinkedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func isNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}
