package social

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPolicy() LinkPolicy {
	return LinkPolicy{
		AllowLoginWhenUnlinked: true,
		AllowAccountCreation:   true,
		DefaultRole:            "member",
	}
}

func textCode(t *testing.T, err error) string {
	t.Helper()
	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich), "expected a rich error, got %v", err)
	return rich.TextCode
}

func TestLinkingEngineExistingLinkLogsIn(t *testing.T) {
	user := &User{ID: uuid.New(), Email: "existing@example.com"}
	accounts := newMemAccounts()
	accounts.accounts[accountKey("github", "123")] = &LinkedAccount{
		UserID:         user.ID.String(),
		Provider:       "github",
		ProviderUserID: "123",
	}
	users := newMemUsers(user)

	engine := NewLinkingEngine(accounts, users, nil)

	outcome, err := engine.Resolve(context.Background(), LinkRequest{
		Provider: "github",
		Profile:  &Profile{Provider: "github", ProviderUserID: "123", EmailVerified: true},
		Policy:   openPolicy(),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeLogIn, outcome.Kind)
	assert.Equal(t, user, outcome.User)
	assert.Empty(t, users.created)
}

func TestLinkingEngineExistingLinkSameSessionLogsIn(t *testing.T) {
	user := &User{ID: uuid.New()}
	accounts := newMemAccounts()
	accounts.accounts[accountKey("github", "123")] = &LinkedAccount{
		UserID:         user.ID.String(),
		Provider:       "github",
		ProviderUserID: "123",
	}
	users := newMemUsers(user)

	engine := NewLinkingEngine(accounts, users, nil)

	outcome, err := engine.Resolve(context.Background(), LinkRequest{
		Provider:      "github",
		Profile:       &Profile{Provider: "github", ProviderUserID: "123"},
		SessionUserID: user.ID.String(),
		Policy:        openPolicy(),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeLogIn, outcome.Kind)
}

func TestLinkingEngineExistingLinkOtherSessionRejected(t *testing.T) {
	owner := &User{ID: uuid.New()}
	accounts := newMemAccounts()
	accounts.accounts[accountKey("github", "123")] = &LinkedAccount{
		UserID:         owner.ID.String(),
		Provider:       "github",
		ProviderUserID: "123",
	}
	users := newMemUsers(owner)

	engine := NewLinkingEngine(accounts, users, nil)

	_, err := engine.Resolve(context.Background(), LinkRequest{
		Provider:      "github",
		Profile:       &Profile{Provider: "github", ProviderUserID: "123"},
		SessionUserID: uuid.NewString(),
		Policy:        openPolicy(),
	})
	require.Error(t, err)
	assert.Equal(t, TextCodeAlreadyLinked, textCode(t, err))
	assert.Equal(t, ClassLoginError, Classify(err))
}

func TestLinkingEngineAutoLinksVerifiedEmailMatch(t *testing.T) {
	user := &User{ID: uuid.New(), Email: "person@example.com"}
	accounts := newMemAccounts()
	users := newMemUsers(user)

	engine := NewLinkingEngine(accounts, users, nil)

	outcome, err := engine.Resolve(context.Background(), LinkRequest{
		Provider: "google",
		Profile: &Profile{
			Provider:       "google",
			ProviderUserID: "g-1",
			Email:          "person@example.com",
			EmailVerified:  true,
		},
		Policy: openPolicy(),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeLogIn, outcome.Kind)
	assert.Equal(t, user, outcome.User)

	linked, err := accounts.FindByProviderID(context.Background(), "google", "g-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), linked.UserID)
	assert.Empty(t, users.created)
}

func TestLinkingEngineUnverifiedEmailNeverAutoLinks(t *testing.T) {
	user := &User{ID: uuid.New(), Email: "person@example.com"}
	accounts := newMemAccounts()
	engine := NewLinkingEngine(accounts, newMemUsers(user), nil)

	_, err := engine.Resolve(context.Background(), LinkRequest{
		Provider: "google",
		Profile: &Profile{
			Provider:       "google",
			ProviderUserID: "g-1",
			Email:          "person@example.com",
			EmailVerified:  false,
		},
		Policy: openPolicy(),
	})
	require.Error(t, err)
	assert.Equal(t, TextCodeCannotAuthenticate, textCode(t, err))
	assert.Empty(t, accounts.accounts)
}

func TestLinkingEngineVerificationBypassAllowsUnverifiedMatch(t *testing.T) {
	user := &User{ID: uuid.New(), Email: "person@example.com"}
	engine := NewLinkingEngine(newMemAccounts(), newMemUsers(user), nil)

	policy := openPolicy()
	policy.AllowVerificationBypass = true

	outcome, err := engine.Resolve(context.Background(), LinkRequest{
		Provider: "google",
		Profile: &Profile{
			Provider:       "google",
			ProviderUserID: "g-1",
			Email:          "person@example.com",
			EmailVerified:  false,
		},
		Policy: policy,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeLogIn, outcome.Kind)
}

func TestLinkingEngineUnlinkedLoginDisabledRejectsEmailMatch(t *testing.T) {
	user := &User{ID: uuid.New(), Email: "person@example.com"}
	engine := NewLinkingEngine(newMemAccounts(), newMemUsers(user), nil)

	policy := openPolicy()
	policy.AllowLoginWhenUnlinked = false

	_, err := engine.Resolve(context.Background(), LinkRequest{
		Provider: "google",
		Profile: &Profile{
			Provider:       "google",
			ProviderUserID: "g-1",
			Email:          "person@example.com",
			EmailVerified:  true,
		},
		Policy: policy,
	})
	require.Error(t, err)
	assert.Equal(t, TextCodeCannotAuthenticate, textCode(t, err))
}

func TestLinkingEngineCreatesAccountForUnknownIdentity(t *testing.T) {
	accounts := newMemAccounts()
	users := newMemUsers()
	engine := NewLinkingEngine(accounts, users, nil)

	outcome, err := engine.Resolve(context.Background(), LinkRequest{
		Provider: "github",
		Profile: &Profile{
			Provider:       "github",
			ProviderUserID: "456",
			Email:          "new@example.com",
			EmailVerified:  true,
			Name:           "New User",
			AvatarURL:      "https://example.com/a.png",
			Timezone:       "Europe/Paris",
		},
		Policy: openPolicy(),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreateAndLogIn, outcome.Kind)

	require.Len(t, users.created, 1)
	created := users.created[0]
	assert.Equal(t, "new@example.com", created.Email)
	assert.True(t, created.EmailValidated)
	assert.Equal(t, RoleMember, created.Role)
	assert.Equal(t, "New", created.FirstName)
	assert.Equal(t, "User", created.LastName)
	assert.Equal(t, "new", created.Username)
	assert.Equal(t, "Europe/Paris", created.Timezone)
	// Social signups have no password; the unlink guard depends on that.
	assert.False(t, created.HasPassword())

	linked, err := accounts.FindByProviderID(context.Background(), "github", "456")
	require.NoError(t, err)
	assert.Equal(t, created.ID.String(), linked.UserID)
}

func TestLinkingEngineUsernameFallsBackToProviderID(t *testing.T) {
	users := newMemUsers()
	engine := NewLinkingEngine(newMemAccounts(), users, nil)

	policy := openPolicy()
	policy.AllowVerificationBypass = true

	_, err := engine.Resolve(context.Background(), LinkRequest{
		Provider: "twitter",
		Profile:  &Profile{Provider: "twitter", ProviderUserID: "789"},
		Policy:   policy,
	})
	require.NoError(t, err)

	require.Len(t, users.created, 1)
	assert.Equal(t, "twitter_789", users.created[0].Username)
	// No email means nothing to mark verified, bypass or not.
	assert.False(t, users.created[0].EmailValidated)
}

func TestLinkingEngineRegistrationClosedBlocksCreation(t *testing.T) {
	users := newMemUsers()
	engine := NewLinkingEngine(newMemAccounts(), users, nil)
	engine.RegistrationOpen = false

	_, err := engine.Resolve(context.Background(), LinkRequest{
		Provider: "github",
		Profile:  &Profile{Provider: "github", ProviderUserID: "456", EmailVerified: true},
		Policy:   openPolicy(),
	})
	require.Error(t, err)
	assert.Equal(t, TextCodeCannotAuthenticate, textCode(t, err))
	assert.Empty(t, users.created)
}

func TestLinkingEngineForceCreationOverridesClosedRegistration(t *testing.T) {
	users := newMemUsers()
	engine := NewLinkingEngine(newMemAccounts(), users, nil)
	engine.RegistrationOpen = false

	policy := openPolicy()
	policy.ForceAccountCreation = true

	outcome, err := engine.Resolve(context.Background(), LinkRequest{
		Provider: "github",
		Profile:  &Profile{Provider: "github", ProviderUserID: "456", EmailVerified: true},
		Policy:   policy,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreateAndLogIn, outcome.Kind)
	assert.Len(t, users.created, 1)
}

func TestLinkingEngineSessionLinksUnboundIdentity(t *testing.T) {
	user := &User{ID: uuid.New(), Email: "person@example.com"}
	accounts := newMemAccounts()
	engine := NewLinkingEngine(accounts, newMemUsers(user), nil)

	outcome, err := engine.Resolve(context.Background(), LinkRequest{
		Provider:      "spotify",
		Profile:       &Profile{Provider: "spotify", ProviderUserID: "sp-1"},
		SessionUserID: user.ID.String(),
		Policy:        LinkPolicy{},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeLinked, outcome.Kind)

	linked, err := accounts.FindByProviderID(context.Background(), "spotify", "sp-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), linked.UserID)
}

func TestLinkingEngineIdentityTakenPassesThrough(t *testing.T) {
	user := &User{ID: uuid.New()}
	accounts := newMemAccounts()
	accounts.linkErr = ErrIdentityTaken.Clone()
	engine := NewLinkingEngine(accounts, newMemUsers(user), nil)

	_, err := engine.Resolve(context.Background(), LinkRequest{
		Provider:      "github",
		Profile:       &Profile{Provider: "github", ProviderUserID: "123"},
		SessionUserID: user.ID.String(),
	})
	require.Error(t, err)
	assert.Equal(t, TextCodeIdentityTaken, textCode(t, err))
	assert.Equal(t, ClassLoginError, Classify(err))
}

func TestLinkingEngineRejectsProfileWithoutExternalID(t *testing.T) {
	engine := NewLinkingEngine(newMemAccounts(), newMemUsers(), nil)

	_, err := engine.Resolve(context.Background(), LinkRequest{
		Provider: "github",
		Profile:  &Profile{Provider: "github"},
		Policy:   openPolicy(),
	})
	require.Error(t, err)
	assert.Equal(t, TextCodeProfileInvalid, textCode(t, err))
}
