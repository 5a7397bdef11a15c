package social

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
)

// ProviderSettings is the host-supplied, immutable configuration for one
// provider. Endpoint fields override the provider's builtin defaults; a
// WellKnownURL routes endpoint resolution through discovery instead.
type ProviderSettings struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	WellKnownURL string
	Policy       LinkPolicy
}

// Validate checks the settings once, at construction.
func (s ProviderSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ClientID, validation.Required),
		validation.Field(&s.ClientSecret, validation.Required),
		validation.Field(&s.CallbackURL, validation.Required),
	)
}

// Settings is the broker-level environment configuration.
type Settings struct {
	StateEncryptionKey string        `env:"SOCIAL_STATE_ENCRYPTION_KEY"`
	StateHMACKey       string        `env:"SOCIAL_STATE_HMAC_KEY"`
	StateTTL           time.Duration `env:"SOCIAL_STATE_TTL" envDefault:"10m"`
	DefaultRedirectURL string        `env:"SOCIAL_DEFAULT_REDIRECT" envDefault:"/"`
	RegistrationOpen   bool          `env:"SOCIAL_REGISTRATION_OPEN" envDefault:"true"`
	SigningKey         string        `env:"SOCIAL_JWT_SIGNING_KEY"`
	TokenExpiration    int           `env:"SOCIAL_JWT_EXPIRATION_HOURS" envDefault:"72"`
	Issuer             string        `env:"SOCIAL_JWT_ISSUER"`
}

type providerEnv struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	CallbackURL  string   `env:"CALLBACK_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
	WellKnownURL string   `env:"WELL_KNOWN_URL"`

	AllowLoginWhenUnlinked  bool   `env:"ALLOW_UNLINKED_LOGIN"`
	AllowAccountCreation    bool   `env:"ALLOW_ACCOUNT_CREATION"`
	ForceAccountCreation    bool   `env:"FORCE_ACCOUNT_CREATION"`
	AllowVerificationBypass bool   `env:"ALLOW_VERIFICATION_BYPASS"`
	DefaultRole             string `env:"DEFAULT_ROLE"`
}

// SettingsFromEnv loads broker settings from the environment.
func SettingsFromEnv() (Settings, error) {
	var cfg Settings
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse settings: %w", err)
	}
	return cfg, nil
}

// ProviderSettingsFromEnv loads one provider's settings from variables
// prefixed SOCIAL_<PROVIDER>_ (e.g. SOCIAL_GITHUB_CLIENT_ID).
func ProviderSettingsFromEnv(providerName string) (ProviderSettings, error) {
	prefix := fmt.Sprintf("SOCIAL_%s_", strings.ToUpper(providerName))

	var raw providerEnv
	if err := env.ParseWithOptions(&raw, env.Options{Prefix: prefix}); err != nil {
		return ProviderSettings{}, fmt.Errorf("failed to parse %s settings: %w", providerName, err)
	}

	settings := ProviderSettings{
		ClientID:     raw.ClientID,
		ClientSecret: raw.ClientSecret,
		CallbackURL:  raw.CallbackURL,
		Scopes:       raw.Scopes,
		WellKnownURL: raw.WellKnownURL,
		Policy: LinkPolicy{
			AllowLoginWhenUnlinked:  raw.AllowLoginWhenUnlinked,
			AllowAccountCreation:    raw.AllowAccountCreation,
			ForceAccountCreation:    raw.ForceAccountCreation,
			AllowVerificationBypass: raw.AllowVerificationBypass,
			DefaultRole:             raw.DefaultRole,
		},
	}

	if err := settings.Validate(); err != nil {
		return ProviderSettings{}, fmt.Errorf("invalid %s settings: %w", providerName, err)
	}

	return settings, nil
}
