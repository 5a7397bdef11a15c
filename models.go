package social

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleGuest is a guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember is a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
)

// ParseRole maps a configured role name onto a known role.
func ParseRole(role string) (UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleGuest:
		return RoleGuest, true
	case RoleMember:
		return RoleMember, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// User is the local account model.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole       `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName      string         `bun:"first_name" json:"first_name,omitempty"`
	LastName       string         `bun:"last_name" json:"last_name,omitempty"`
	Username       string         `bun:"username,notnull,unique" json:"username,omitempty"`
	ProfilePicture string         `bun:"profile_picture" json:"profile_picture,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"-"`
	EmailValidated bool           `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	Timezone       string         `bun:"timezone" json:"timezone,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasPassword reports whether the account can sign in without a social link.
// Accounts the linking engine creates carry no hash until the user sets one.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// SetPassword hashes and stores a password, giving a social-only account a
// second way in.
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether plain matches the stored hash.
func (u *User) CheckPassword(plain string) bool {
	if !u.HasPassword() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// NewIdentityFromUser adapts a user record to the Identity surface.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return &userIdentity{user: user}
}

type userIdentity struct {
	user *User
}

func (i *userIdentity) ID() string       { return i.user.ID.String() }
func (i *userIdentity) Username() string { return i.user.Username }
func (i *userIdentity) Email() string    { return i.user.Email }
func (i *userIdentity) Role() string     { return i.user.Role }
