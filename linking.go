package social

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// LinkPolicy is the per-provider decision policy for unlinked identities.
// Flags are read-only per attempt; they come from provider configuration.
type LinkPolicy struct {
	// AllowLoginWhenUnlinked lets an unlinked identity log into an existing
	// account whose email matches the provider email.
	AllowLoginWhenUnlinked bool
	// AllowAccountCreation lets the engine create a local account for an
	// unknown identity, subject to the host registration toggle.
	AllowAccountCreation bool
	// ForceAccountCreation creates accounts even when the host has
	// registration disabled.
	ForceAccountCreation bool
	// AllowVerificationBypass permits email matching and validated-email
	// account creation for identities the provider did not verify. Without
	// it an unverified email never links to an existing account.
	AllowVerificationBypass bool
	// DefaultRole is assigned to accounts the engine creates.
	DefaultRole string
}

// OutcomeKind enumerates what the engine decided.
type OutcomeKind int

const (
	// OutcomeLogIn resolves to an existing account.
	OutcomeLogIn OutcomeKind = iota + 1
	// OutcomeCreateAndLogIn created a fresh account for the identity.
	OutcomeCreateAndLogIn
	// OutcomeLinked bound the identity to the requesting session's account.
	OutcomeLinked
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLogIn:
		return "login"
	case OutcomeCreateAndLogIn:
		return "create_and_login"
	case OutcomeLinked:
		return "linked"
	}
	return "unknown"
}

// LinkOutcome is the engine's verdict for one attempt.
type LinkOutcome struct {
	Kind OutcomeKind
	User *User
	// Account is the binding backing the outcome. For OutcomeLogIn it is
	// the pre-existing row; otherwise the row the engine just created.
	Account *LinkedAccount
}

// LinkRequest carries one attempt's inputs into the engine.
type LinkRequest struct {
	Provider string
	Profile  *Profile
	// SessionUserID is the local account driving the session, empty for an
	// anonymous login attempt. When set and no binding exists, the attempt
	// is an explicit "link my account" action.
	SessionUserID string
	Policy        LinkPolicy
}

// LinkingEngine owns the (provider, external id) -> account binding. It is
// stateless across attempts; every decision is derived from the request and
// the repositories.
type LinkingEngine struct {
	accounts LinkedAccountRepository
	users    Users
	logger   Logger

	// RegistrationOpen mirrors the host's global signup toggle. Policy
	// ForceAccountCreation overrides it per provider.
	RegistrationOpen bool

	OnUserCreated   func(ctx context.Context, user *User, profile *Profile) error
	OnAccountLinked func(ctx context.Context, user *User, profile *Profile) error
}

// NewLinkingEngine creates the engine. Registration defaults to open.
func NewLinkingEngine(accounts LinkedAccountRepository, users Users, logger Logger) *LinkingEngine {
	if logger == nil {
		logger = defLogger{}
	}
	return &LinkingEngine{
		accounts:         accounts,
		users:            users,
		logger:           logger,
		RegistrationOpen: true,
	}
}

// Resolve runs the decision table. Evaluation order matters and first match
// wins:
//
//  1. an existing binding resolves to its owner, unless the session belongs
//     to somebody else
//  2. anonymous + matching email may auto-link under policy
//  3. anonymous + unknown identity may create an account under policy
//  4. logged-in session + unbound identity is an explicit link action
//
// Bindings are created here and nowhere else.
func (e *LinkingEngine) Resolve(ctx context.Context, req LinkRequest) (*LinkOutcome, error) {
	if req.Profile == nil {
		return nil, ErrProfileInvalid
	}
	if err := req.Profile.Validate(); err != nil {
		return nil, err
	}
	if e.accounts == nil || e.users == nil {
		return nil, ErrCannotAuthenticate
	}

	profile := req.Profile

	existing, err := e.accounts.FindByProviderID(ctx, req.Provider, profile.ProviderUserID)
	if err != nil && !isRecordNotFound(err) {
		return nil, fmt.Errorf("failed to look up linked account: %w", err)
	}

	if existing != nil {
		if req.SessionUserID != "" && req.SessionUserID != existing.UserID {
			clone := ErrAlreadyLinked.Clone()
			return nil, clone.WithMetadata(map[string]any{
				"provider":         req.Provider,
				"provider_user_id": profile.ProviderUserID,
			})
		}

		user, err := e.users.GetByID(ctx, existing.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find linked user: %w", err)
		}
		return &LinkOutcome{Kind: OutcomeLogIn, User: user, Account: existing}, nil
	}

	if req.SessionUserID != "" {
		return e.linkToSession(ctx, req)
	}

	if profile.Email != "" {
		user, err := e.users.GetByEmail(ctx, profile.Email)
		if err != nil && !isRecordNotFound(err) {
			return nil, fmt.Errorf("failed to find user by email: %w", err)
		}
		if user != nil {
			return e.autoLink(ctx, req, user)
		}
	}

	return e.createAccount(ctx, req)
}

// autoLink handles an anonymous attempt whose email matches an existing
// account. An unverified provider email never links silently; the bypass
// flag is an explicit operator decision.
func (e *LinkingEngine) autoLink(ctx context.Context, req LinkRequest, user *User) (*LinkOutcome, error) {
	profile := req.Profile

	if !req.Policy.AllowLoginWhenUnlinked {
		return nil, cannotAuthenticate(req, "unlinked_login_disabled")
	}
	if !profile.EmailVerified && !req.Policy.AllowVerificationBypass {
		return nil, cannotAuthenticate(req, "email_unverified")
	}

	account := newLinkedAccount(user.ID.String(), req.Provider, profile)
	if err := e.accounts.Link(ctx, account); err != nil {
		return nil, e.linkError(req, err)
	}

	if e.OnAccountLinked != nil {
		if err := e.OnAccountLinked(ctx, user, profile); err != nil {
			return nil, err
		}
	}

	return &LinkOutcome{Kind: OutcomeLogIn, User: user, Account: account}, nil
}

func (e *LinkingEngine) createAccount(ctx context.Context, req LinkRequest) (*LinkOutcome, error) {
	canCreate := req.Policy.ForceAccountCreation ||
		(req.Policy.AllowAccountCreation && e.RegistrationOpen)
	if !canCreate {
		return nil, cannotAuthenticate(req, "account_creation_disabled")
	}

	profile := req.Profile

	user, err := e.userFromProfile(profile, req.Policy)
	if err != nil {
		return nil, err
	}

	created, err := e.users.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	account := newLinkedAccount(created.ID.String(), req.Provider, profile)
	if err := e.accounts.Link(ctx, account); err != nil {
		return nil, e.linkError(req, err)
	}

	if e.OnUserCreated != nil {
		if err := e.OnUserCreated(ctx, created, profile); err != nil {
			return nil, err
		}
	}

	return &LinkOutcome{Kind: OutcomeCreateAndLogIn, User: created, Account: account}, nil
}

// linkToSession handles the explicit "link my account" action for a
// logged-in session.
func (e *LinkingEngine) linkToSession(ctx context.Context, req LinkRequest) (*LinkOutcome, error) {
	user, err := e.users.GetByID(ctx, req.SessionUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user to link: %w", err)
	}

	account := newLinkedAccount(user.ID.String(), req.Provider, req.Profile)
	if err := e.accounts.Link(ctx, account); err != nil {
		return nil, e.linkError(req, err)
	}

	if e.OnAccountLinked != nil {
		if err := e.OnAccountLinked(ctx, user, req.Profile); err != nil {
			return nil, err
		}
	}

	return &LinkOutcome{Kind: OutcomeLinked, User: user, Account: account}, nil
}

func (e *LinkingEngine) linkError(req LinkRequest, err error) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil && rich.TextCode == TextCodeIdentityTaken {
		return err
	}
	return fmt.Errorf("failed to save linked account: %w", err)
}

func (e *LinkingEngine) userFromProfile(profile *Profile, policy LinkPolicy) (*User, error) {
	role := RoleMember
	if policy.DefaultRole != "" {
		if parsed, ok := ParseRole(policy.DefaultRole); ok {
			role = parsed
		}
	}

	// PasswordHash stays empty until the user sets one; HasPassword keys the
	// last-auth-method guard off it, so a seeded hash would let a
	// social-only account unlink its only way in.
	user := &User{
		Email:          profile.Email,
		EmailValidated: profile.EmailVerified || (policy.AllowVerificationBypass && profile.Email != ""),
		Role:           role,
		ProfilePicture: profile.AvatarURL,
		Timezone:       profile.Timezone,
		Metadata: map[string]any{
			"social_provider": profile.Provider,
			"avatar_url":      profile.AvatarURL,
		},
	}

	if profile.FirstName != "" {
		user.FirstName = profile.FirstName
		user.LastName = profile.LastName
	} else if profile.Name != "" {
		parts := strings.SplitN(profile.Name, " ", 2)
		user.FirstName = parts[0]
		if len(parts) > 1 {
			user.LastName = parts[1]
		}
	}

	if profile.Username != "" {
		user.Username = profile.Username
	} else if profile.Email != "" {
		user.Username = strings.Split(profile.Email, "@")[0]
	} else {
		user.Username = fmt.Sprintf("%s_%s", profile.Provider, profile.ProviderUserID)
	}

	return user, nil
}

func newLinkedAccount(userID, provider string, profile *Profile) *LinkedAccount {
	now := time.Now()
	return &LinkedAccount{
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		Name:           profile.Name,
		Username:       profile.Username,
		AvatarURL:      profile.AvatarURL,
		ProfileData:    profile.Raw,
		LinkedAt:       now,
		UpdatedAt:      now,
	}
}

func cannotAuthenticate(req LinkRequest, reason string) error {
	clone := ErrCannotAuthenticate.Clone()
	return clone.WithMetadata(map[string]any{
		"provider": req.Provider,
		"reason":   reason,
	})
}

func isRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	return repository.IsRecordNotFound(err) || err == sql.ErrNoRows
}
