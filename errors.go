package social

import "github.com/goliatone/go-errors"

// Text codes attached to broker errors.
const (
	TextCodeProviderNotFound    = "social_provider_not_found"
	TextCodeProviderUnavailable = "social_provider_unavailable"
	TextCodeStateMismatch       = "social_state_mismatch"
	TextCodeStateExpired        = "social_state_expired"
	TextCodeStateReplayed       = "social_state_replayed"
	TextCodeTokenExchangeFail   = "social_token_exchange_failed"
	TextCodeUserInfoFail        = "social_user_info_failed"
	TextCodeProfileInvalid      = "social_profile_invalid"
	TextCodeAlreadyLinked       = "social_already_linked_other_account"
	TextCodeIdentityTaken       = "social_identity_taken"
	TextCodeCannotAuthenticate  = "social_cannot_authenticate_or_create"
	TextCodeLastAuthMethod      = "social_last_auth_method"
)

// Class tells the host-facing layer how to surface a failed attempt.
type Class int

const (
	// ClassNone means the error did not originate in the broker.
	ClassNone Class = iota
	// ClassSilent failures are infrastructure or protocol problems (state
	// tampering, discovery, transport). They redirect to a generic error
	// page and bypass failed-login notification.
	ClassSilent
	// ClassLoginError failures are policy decisions about a real login
	// attempt. They flow through the host's failed-login handling.
	ClassLoginError
)

// ErrProviderNotFound is returned when a requested provider is not registered.
var ErrProviderNotFound = errors.New("social provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrProviderUnavailable is returned when endpoint discovery fails and the
// provider cannot participate in a login flow.
var ErrProviderUnavailable = errors.New("social provider unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeProviderUnavailable).
	WithCode(errors.CodeInternal)

// ErrStateMismatch is returned when the callback state is missing, tampered
// with, or bound to a different provider. Fatal for the attempt; the code is
// never exchanged.
var ErrStateMismatch = errors.New("oauth state mismatch", errors.CategoryBadInput).
	WithTextCode(TextCodeStateMismatch).
	WithCode(errors.CodeBadRequest)

// ErrStateExpired is returned when the callback state outlived its TTL.
var ErrStateExpired = errors.New("oauth state expired", errors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

// ErrStateReplayed is returned when a callback presents a state token that
// already completed an attempt. Each state is single use.
var ErrStateReplayed = errors.New("oauth state already used", errors.CategoryBadInput).
	WithTextCode(TextCodeStateReplayed).
	WithCode(errors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when the code-for-token exchange fails.
var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed is returned when the user-info fetch fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)

// ErrProfileInvalid is returned when a provider payload cannot be mapped
// into a usable profile, most importantly when no external id is present.
var ErrProfileInvalid = errors.New("provider profile invalid", errors.CategoryBadInput).
	WithTextCode(TextCodeProfileInvalid).
	WithCode(errors.CodeBadRequest)

// ErrAlreadyLinked is returned when the social identity resolves to a local
// account other than the one driving the session.
var ErrAlreadyLinked = errors.New("identity linked to another account", errors.CategoryAuth).
	WithTextCode(TextCodeAlreadyLinked).
	WithCode(errors.CodeForbidden)

// ErrIdentityTaken is returned when an explicit link request targets an
// identity that another account already owns.
var ErrIdentityTaken = errors.New("identity already linked elsewhere", errors.CategoryConflict).
	WithTextCode(TextCodeIdentityTaken).
	WithCode(errors.CodeConflict)

// ErrCannotAuthenticate is returned when policy forbids both login and
// account creation for an unlinked identity.
var ErrCannotAuthenticate = errors.New("cannot authenticate or create account", errors.CategoryAuth).
	WithTextCode(TextCodeCannotAuthenticate).
	WithCode(errors.CodeForbidden)

// ErrLastAuthMethod is returned when unlinking would strip a passwordless
// account of its only way in.
var ErrLastAuthMethod = errors.New("cannot unlink last authentication method", errors.CategoryValidation).
	WithTextCode(TextCodeLastAuthMethod).
	WithCode(errors.CodeBadRequest)

var errorClasses = map[string]Class{
	TextCodeProviderNotFound:    ClassSilent,
	TextCodeProviderUnavailable: ClassSilent,
	TextCodeStateMismatch:       ClassSilent,
	TextCodeStateExpired:        ClassSilent,
	TextCodeStateReplayed:       ClassSilent,
	TextCodeTokenExchangeFail:   ClassSilent,
	TextCodeUserInfoFail:        ClassSilent,
	TextCodeProfileInvalid:      ClassSilent,
	TextCodeAlreadyLinked:       ClassLoginError,
	TextCodeIdentityTaken:       ClassLoginError,
	TextCodeCannotAuthenticate:  ClassLoginError,
	TextCodeLastAuthMethod:      ClassLoginError,
}

// errorCode picks the stable text code for redirects. Internal details
// (bodies, wrapped errors) never leave the server.
func errorCode(err error) string {
	var rich *errors.Error
	if errors.As(err, &rich) && rich != nil && rich.TextCode != "" {
		return rich.TextCode
	}
	return "auth_failed"
}

// Classify maps an error from the broker onto its surfacing class. Unknown
// errors classify as ClassSilent: showing a generic page for a failure we
// cannot name is the safe default.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	var rich *errors.Error
	if errors.As(err, &rich) && rich != nil {
		if class, ok := errorClasses[rich.TextCode]; ok {
			return class
		}
	}

	return ClassSilent
}
