package social

import (
	"fmt"
	"time"
)

// Logger is the minimal logging surface the broker needs. Wire your own
// implementation; the default writes to stdout.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Identity is the view of a local account that token minting needs.
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// TokenService mints session tokens for a resolved identity.
type TokenService interface {
	Generate(identity Identity) (string, error)
}

// ActivityEvent types emitted by the broker.
const (
	ActivitySocialLogin  = "social_login"
	ActivitySocialSignup = "social_signup"
	ActivitySocialLink   = "social_link"
	ActivitySocialUnlink = "social_unlink"
)

// ActivityEvent describes an audit record for a social auth action.
type ActivityEvent struct {
	EventType  string
	UserID     string
	Provider   string
	OccurredAt time.Time
	Metadata   map[string]any
}

// ActivitySink receives audit events. Sinks run best effort; errors are
// logged, never propagated into the login flow.
type ActivitySink interface {
	Record(event ActivityEvent) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SOCIAL "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SOCIAL "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SOCIAL "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
