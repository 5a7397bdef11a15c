package social

import (
	"context"
	"fmt"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Broker orchestrates social login flows: it hands the browser to the
// provider, digests the callback, and turns the linking engine's verdict
// into a session token.
type Broker struct {
	providers    map[string]Provider
	stateManager StateManager
	engine       *LinkingEngine
	accounts     LinkedAccountRepository
	users        Users
	tokenService TokenService
	activitySink ActivitySink
	logger       Logger
	config       BrokerConfig

	// usedStates remembers completed state nonces until their natural
	// expiry, making every state token single use.
	usedStates *gocache.Cache
}

// BrokerConfig configures the broker.
type BrokerConfig struct {
	DefaultRedirectURL string
	StateEncryptionKey []byte
	StateHMACKey       []byte
	StateTTL           time.Duration
	// RegistrationOpen mirrors the host's global signup toggle.
	RegistrationOpen bool
	// DefaultPolicy applies to providers without an explicit policy.
	DefaultPolicy LinkPolicy
	// Policies maps provider name to its LinkPolicy.
	Policies map[string]LinkPolicy
}

// BrokerOption configures the broker.
type BrokerOption func(*Broker)

// NewBroker creates a social login broker.
func NewBroker(
	accounts LinkedAccountRepository,
	users Users,
	tokenService TokenService,
	config BrokerConfig,
	opts ...BrokerOption,
) *Broker {
	cfg := config
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	b := &Broker{
		providers:    make(map[string]Provider),
		accounts:     accounts,
		users:        users,
		tokenService: tokenService,
		logger:       defLogger{},
		config:       cfg,
		usedStates:   gocache.New(cfg.StateTTL, 2*cfg.StateTTL),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	if b.stateManager == nil {
		b.stateManager = NewEncryptedStateManager(
			cfg.StateEncryptionKey,
			cfg.StateHMACKey,
			cfg.StateTTL,
		)
	}

	if b.engine == nil {
		b.engine = NewLinkingEngine(accounts, users, b.logger)
		b.engine.RegistrationOpen = cfg.RegistrationOpen
	}

	return b
}

// WithProvider registers a social provider.
func WithProvider(provider Provider) BrokerOption {
	return func(b *Broker) {
		if provider == nil {
			return
		}
		b.providers[provider.Name()] = provider
	}
}

// WithStateManager sets a custom state manager.
func WithStateManager(sm StateManager) BrokerOption {
	return func(b *Broker) {
		b.stateManager = sm
	}
}

// WithLinkingEngine sets a custom linking engine.
func WithLinkingEngine(engine *LinkingEngine) BrokerOption {
	return func(b *Broker) {
		b.engine = engine
	}
}

// WithActivitySink sets the audit sink.
func WithActivitySink(sink ActivitySink) BrokerOption {
	return func(b *Broker) {
		b.activitySink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) BrokerOption {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Actions carried in the state payload.
const (
	ActionLogin = "login"
	ActionLink  = "link"
)

// AuthRedirect contains the authorization URL for redirecting users. Nonce
// must be stored with the initiating browser (the HTTP controller puts it in
// a cookie) and handed back to CompleteAuth via WithFlowNonce.
type AuthRedirect struct {
	URL      string
	State    string
	Nonce    string
	Provider string
}

// AuthResult is a completed, successful attempt.
type AuthResult struct {
	User        Identity
	Token       string
	Outcome     OutcomeKind
	IsNewUser   bool
	Provider    string
	Profile     *Profile
	RedirectURL string
}

// BeginAuthOption configures the auth initiation.
type BeginAuthOption func(*beginAuthConfig)

type beginAuthConfig struct {
	action      string
	redirectURL string
	linkUserID  string
}

// WithRedirectURL sets the post-auth redirect URL.
func WithRedirectURL(url string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.redirectURL = url
	}
}

// ForLinkingUser marks the flow as an explicit link action for the given
// logged-in user.
func ForLinkingUser(userID string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.linkUserID = userID
		c.action = ActionLink
	}
}

// BeginAuth starts the flow for a provider and returns the redirect.
func (b *Broker) BeginAuth(ctx context.Context, providerName string, opts ...BeginAuthOption) (*AuthRedirect, error) {
	provider, ok := b.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	cfg := &beginAuthConfig{
		action:      ActionLogin,
		redirectURL: b.config.DefaultRedirectURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	state := &State{
		Nonce:        generateNonce(),
		Provider:     providerName,
		CodeVerifier: codeVerifier,
		RedirectURL:  cfg.redirectURL,
		Action:       cfg.action,
		LinkUserID:   cfg.linkUserID,
		IssuedAt:     time.Now().Unix(),
		ExpiresAt:    time.Now().Add(b.config.StateTTL).Unix(),
	}

	stateToken, err := b.stateManager.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	authURL, err := provider.AuthCodeURL(ctx, stateToken, WithPKCE(computeCodeChallenge(codeVerifier), "S256"))
	if err != nil {
		return nil, WrapProviderError(ErrProviderUnavailable, providerName, "auth_url", err)
	}

	return &AuthRedirect{
		URL:      authURL,
		State:    stateToken,
		Nonce:    state.Nonce,
		Provider: providerName,
	}, nil
}

// CompleteAuth finishes the flow after the provider callback.
// sessionUserID is the account bound to the browser session, empty when
// anonymous; the linking engine uses it to tell a login attempt from an
// explicit link action. The caller must replay the flow nonce the initiating
// browser stored (WithFlowNonce); a callback without it is treated as a
// foreign browser. Extra exchange options carry protocol specifics the
// callback surfaced, like an OAuth1 request token.
func (b *Broker) CompleteAuth(ctx context.Context, providerName, code, stateToken, sessionUserID string, opts ...ExchangeOption) (*AuthResult, error) {
	state, err := b.stateManager.Decode(stateToken)
	if err != nil {
		return nil, err
	}

	if state.Provider != providerName {
		return nil, ErrStateMismatch
	}
	if time.Now().Unix() > state.ExpiresAt {
		return nil, ErrStateExpired
	}
	// The state is valid in isolation; now pin it to the browser that
	// started the flow. Without this check a token minted in one browser
	// completes in any other, which is exactly a login CSRF.
	exchangeCfg := ApplyExchangeOptions(opts...)
	if exchangeCfg.FlowNonce == "" || exchangeCfg.FlowNonce != state.Nonce {
		return nil, ErrStateMismatch
	}
	// A link-action state must come back on the same session it was issued
	// for; anything else smells like a fixation attempt.
	if state.Action == ActionLink && (state.LinkUserID == "" || state.LinkUserID != sessionUserID) {
		return nil, ErrStateMismatch
	}
	if _, used := b.usedStates.Get(state.Nonce); used {
		return nil, ErrStateReplayed
	}
	b.usedStates.Set(state.Nonce, struct{}{}, time.Until(time.Unix(state.ExpiresAt, 0)))

	provider, ok := b.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	token, err := provider.Exchange(ctx, code, append(opts, WithCodeVerifier(state.CodeVerifier))...)
	if err != nil {
		return nil, WrapProviderError(ErrTokenExchangeFailed, providerName, "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, WrapProviderError(ErrUserInfoFailed, providerName, "user_info", err)
	}

	outcome, err := b.engine.Resolve(ctx, LinkRequest{
		Provider:      providerName,
		Profile:       profile,
		SessionUserID: sessionUserID,
		Policy:        b.policyFor(providerName),
	})
	if err != nil {
		return nil, err
	}

	if err := b.persistTokens(ctx, outcome, token, profile); err != nil {
		b.logger.Error("failed to persist provider tokens: %v", err)
	}

	identity := NewIdentityFromUser(outcome.User)
	jwtToken, err := b.tokenService.Generate(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	b.recordActivity(outcome, providerName, profile)

	return &AuthResult{
		User:        identity,
		Token:       jwtToken,
		Outcome:     outcome.Kind,
		IsNewUser:   outcome.Kind == OutcomeCreateAndLogIn,
		Provider:    providerName,
		Profile:     profile,
		RedirectURL: state.RedirectURL,
	}, nil
}

// RefreshToken refreshes a linked account's provider token and persists the
// result. Providers without refresh support return an error unchanged.
func (b *Broker) RefreshToken(ctx context.Context, providerName, userID string) (*Token, error) {
	provider, ok := b.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	accounts, err := b.accounts.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}

	var account *LinkedAccount
	for _, acc := range accounts {
		if acc.Provider == providerName {
			account = acc
			break
		}
	}
	if account == nil || account.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refreshable token for %s", ErrProviderNotFound, providerName)
	}

	token, err := provider.RefreshToken(ctx, account.RefreshToken)
	if err != nil {
		return nil, WrapProviderError(ErrTokenExchangeFailed, providerName, "refresh", err)
	}

	account.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		account.RefreshToken = token.RefreshToken
	}
	if !token.ExpiresAt.IsZero() {
		expires := token.ExpiresAt
		account.TokenExpiresAt = &expires
	}
	if err := b.accounts.SaveTokens(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	return token, nil
}

// Unlink removes a provider binding. A passwordless account keeps its last
// binding; removing it would lock the user out.
func (b *Broker) Unlink(ctx context.Context, userID, providerName string) error {
	user, err := b.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	accounts, err := b.accounts.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list linked accounts: %w", err)
	}

	if !user.HasPassword() && len(accounts) <= 1 {
		return ErrLastAuthMethod
	}

	if err := b.accounts.Unlink(ctx, userID, providerName); err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}

	if b.activitySink != nil {
		_ = b.activitySink.Record(ActivityEvent{
			EventType:  ActivitySocialUnlink,
			UserID:     userID,
			Provider:   providerName,
			OccurredAt: time.Now(),
		})
	}

	return nil
}

// ProviderInfo describes an available provider.
type ProviderInfo struct {
	Name string
}

// AvailabilityChecker is implemented by providers whose readiness depends on
// a runtime lookup, like endpoint discovery. Providers without it are always
// listed; building an authorization URL just to probe would cost a network
// round trip on OAuth1 providers.
type AvailabilityChecker interface {
	Available(ctx context.Context) error
}

// ListProviders returns providers currently able to take a login, sorted by
// name. A provider whose availability check fails is left out rather than
// surfaced as broken.
func (b *Broker) ListProviders(ctx context.Context) []ProviderInfo {
	var providers []ProviderInfo
	for name, p := range b.providers {
		if checker, ok := p.(AvailabilityChecker); ok {
			if err := checker.Available(ctx); err != nil {
				b.logger.Info("provider %s unavailable: %v", name, err)
				continue
			}
		}
		providers = append(providers, ProviderInfo{Name: name})
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].Name < providers[j].Name })
	return providers
}

// Accounts exposes the linked-account repository for management surfaces.
func (b *Broker) Accounts() LinkedAccountRepository {
	return b.accounts
}

func (b *Broker) policyFor(providerName string) LinkPolicy {
	if policy, ok := b.config.Policies[providerName]; ok {
		return policy
	}
	return b.config.DefaultPolicy
}

func (b *Broker) persistTokens(ctx context.Context, outcome *LinkOutcome, token *Token, profile *Profile) error {
	if outcome.Account == nil || token == nil {
		return nil
	}

	account := outcome.Account
	account.AccessToken = token.AccessToken
	account.RefreshToken = token.RefreshToken
	account.TokenSecret = token.TokenSecret
	if !token.ExpiresAt.IsZero() {
		expires := token.ExpiresAt
		account.TokenExpiresAt = &expires
	}
	if profile != nil {
		account.Email = profile.Email
		account.Name = profile.Name
		account.Username = profile.Username
		account.AvatarURL = profile.AvatarURL
		account.ProfileData = profile.Raw
	}

	return b.accounts.SaveTokens(ctx, account)
}

func (b *Broker) recordActivity(outcome *LinkOutcome, providerName string, profile *Profile) {
	if b.activitySink == nil {
		return
	}

	eventType := ActivitySocialLogin
	switch outcome.Kind {
	case OutcomeCreateAndLogIn:
		eventType = ActivitySocialSignup
	case OutcomeLinked:
		eventType = ActivitySocialLink
	}

	err := b.activitySink.Record(ActivityEvent{
		EventType:  eventType,
		UserID:     outcome.User.ID.String(),
		Provider:   providerName,
		OccurredAt: time.Now(),
		Metadata: map[string]any{
			"provider_user_id": profile.ProviderUserID,
			"outcome":          outcome.Kind.String(),
		},
	})
	if err != nil {
		b.logger.Error("activity sink: %v", err)
	}
}
