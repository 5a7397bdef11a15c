package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-social"
)

// UsersRepository implements social.Users on top of the generic Bun
// repository.
type UsersRepository struct {
	repository.Repository[*social.User]
	db *bun.DB
}

var _ social.Users = (*UsersRepository)(nil)

// NewUsersRepository creates the repository.
func NewUsersRepository(db *bun.DB) *UsersRepository {
	repo := repository.NewRepository[*social.User](db, repository.ModelHandlers[*social.User]{
		NewRecord: func() *social.User { return &social.User{} },
		GetID: func(u *social.User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *social.User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &UsersRepository{
		Repository: repo,
		db:         db,
	}
}

// GetByID implements social.Users.
func (r *UsersRepository) GetByID(ctx context.Context, id string) (*social.User, error) {
	return r.Repository.GetByIdentifierTx(ctx, r.db, id)
}

// GetByEmail implements social.Users. Lookups are case-insensitive exact
// matches; provider emails arrive with arbitrary casing.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*social.User, error) {
	record := &social.User{}
	err := r.db.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"email": email,
			})
		}
		return nil, err
	}
	return record, nil
}

// Create implements social.Users.
func (r *UsersRepository) Create(ctx context.Context, user *social.User) (*social.User, error) {
	if user != nil {
		if user.Role == "" {
			user.Role = social.RoleGuest
		}
		if user.ID == uuid.Nil {
			user.ID = uuid.New()
		}
	}
	return r.Repository.CreateTx(ctx, r.db, user)
}
