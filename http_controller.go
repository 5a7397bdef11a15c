package social

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// SessionResolver extracts the logged-in user's id from the request, empty
// string for anonymous sessions. Supplied by the host.
type SessionResolver func(ctx router.Context) string

// HTTPController exposes the broker over the host's router.
type HTTPController struct {
	broker         *Broker
	resolveSession SessionResolver
	config         HTTPConfig
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// CookieName for storing the session JWT (default: "user")
	CookieName string

	// StateCookieName holds the per-flow nonce that pins the callback to
	// the browser that started the flow (default: "social_state")
	StateCookieName string

	// CookieSecure sets the Secure flag on cookies
	CookieSecure bool

	// CookieHTTPOnly sets the HttpOnly flag on cookies
	CookieHTTPOnly bool

	// CookieSameSite sets the SameSite attribute (e.g. "Lax", "Strict", "None")
	CookieSameSite string

	// SuccessRedirect is the default redirect after successful auth
	SuccessRedirect string

	// ErrorRedirect is the generic error page. Infrastructure and protocol
	// failures land here without touching failed-login accounting.
	ErrorRedirect string

	// LoginErrorRedirect is the host's failed-login route. Policy
	// rejections go through it so lockout and notification logic sees them.
	LoginErrorRedirect string
}

// NewHTTPController creates a social auth HTTP controller.
func NewHTTPController(broker *Broker, resolveSession SessionResolver, cfg HTTPConfig) *HTTPController {
	if cfg.CookieName == "" {
		cfg.CookieName = "user"
	}
	if cfg.StateCookieName == "" {
		cfg.StateCookieName = "social_state"
	}
	if cfg.CookieSameSite == "" {
		cfg.CookieSameSite = "Lax"
	}
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}
	if cfg.ErrorRedirect == "" {
		cfg.ErrorRedirect = "/login?error=auth_failed"
	}
	if cfg.LoginErrorRedirect == "" {
		cfg.LoginErrorRedirect = cfg.ErrorRedirect
	}
	if resolveSession == nil {
		resolveSession = func(router.Context) string { return "" }
	}

	return &HTTPController{
		broker:         broker,
		resolveSession: resolveSession,
		config:         cfg,
	}
}

// RegisterRoutes registers social auth routes.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/providers", c.ListProviders)
	group.Get("/accounts", c.ListAccounts)
	group.Get("/:provider/callback", c.Callback)
	group.Post("/:provider/link", c.LinkAccount)
	group.Delete("/:provider", c.UnlinkAccount)
	group.Get("/:provider", c.BeginAuth)
}

// ListProviders returns providers currently able to take a login.
func (c *HTTPController) ListProviders(ctx router.Context) error {
	providers := c.broker.ListProviders(ctx.Context())
	return ctx.JSON(router.StatusOK, map[string]any{
		"providers": providers,
	})
}

// BeginAuth starts the OAuth flow.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	providerName := ctx.Param("provider")

	redirectURL := ctx.Query("redirect_url")
	if redirectURL == "" {
		redirectURL = c.config.SuccessRedirect
	}

	opts := []BeginAuthOption{WithRedirectURL(redirectURL)}

	if ctx.Query("action") == ActionLink {
		userID := c.resolveSession(ctx)
		if userID == "" {
			return ctx.JSON(router.StatusUnauthorized, map[string]string{
				"error": "authentication required for linking",
			})
		}
		opts = append(opts, ForLinkingUser(userID))
	}

	redirect, err := c.broker.BeginAuth(ctx.Context(), providerName, opts...)
	if err != nil {
		return c.handleError(ctx, err)
	}

	c.setStateCookie(ctx, redirect.Nonce)
	return ctx.Redirect(redirect.URL, http.StatusTemporaryRedirect)
}

// Callback handles the provider callback.
func (c *HTTPController) Callback(ctx router.Context) error {
	providerName := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")

	// The provider can bounce the user back with an error instead of a
	// code (denied consent, bad scope). Not a login attempt; generic page.
	if errCode := ctx.Query("error"); errCode != "" {
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "oauth_error", errCode)
		if desc := ctx.Query("error_description"); desc != "" {
			redirectURL = appendQueryParam(redirectURL, "desc", desc)
		}
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	// OAuth1 providers return oauth_verifier and oauth_token instead of a
	// code; the request token rides along as an exchange option.
	var opts []ExchangeOption
	if code == "" {
		if verifier := ctx.Query("oauth_verifier"); verifier != "" {
			code = verifier
			opts = append(opts, WithOAuth1Verifier(ctx.Query("oauth_token"), ""))
		}
	}

	if code == "" || state == "" {
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", "missing_params")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	// The flow nonce lives in a cookie only the initiating browser holds.
	opts = append(opts, WithFlowNonce(ctx.Cookies(c.config.StateCookieName)))

	result, err := c.broker.CompleteAuth(ctx.Context(), providerName, code, state, c.resolveSession(ctx), opts...)
	if err != nil {
		return c.handleError(ctx, err)
	}

	c.clearStateCookie(ctx)
	c.setAuthCookie(ctx, result.Token)

	redirectURL := result.RedirectURL
	if redirectURL == "" {
		redirectURL = c.config.SuccessRedirect
	}
	if result.IsNewUser {
		redirectURL = appendQueryParam(redirectURL, "new_user", "true")
	}

	return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
}

// LinkAccount starts a link flow for the current user.
func (c *HTTPController) LinkAccount(ctx router.Context) error {
	userID := c.resolveSession(ctx)
	if userID == "" {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "authentication required",
		})
	}

	redirect, err := c.broker.BeginAuth(ctx.Context(), ctx.Param("provider"), ForLinkingUser(userID))
	if err != nil {
		return c.handleError(ctx, err)
	}

	c.setStateCookie(ctx, redirect.Nonce)
	return ctx.JSON(router.StatusOK, map[string]string{
		"redirect_url": redirect.URL,
	})
}

// UnlinkAccount removes a social account link.
func (c *HTTPController) UnlinkAccount(ctx router.Context) error {
	userID := c.resolveSession(ctx)
	if userID == "" {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "authentication required",
		})
	}

	if err := c.broker.Unlink(ctx.Context(), userID, ctx.Param("provider")); err != nil {
		if Classify(err) == ClassLoginError {
			return ctx.JSON(router.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		}
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "unlinked",
	})
}

// ListAccounts returns linked social accounts for the current user.
func (c *HTTPController) ListAccounts(ctx router.Context) error {
	userID := c.resolveSession(ctx)
	if userID == "" {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "authentication required",
		})
	}

	accounts, err := c.broker.Accounts().FindByUserID(ctx.Context(), userID)
	if err != nil {
		return c.handleError(ctx, err)
	}

	response := make([]map[string]any, 0, len(accounts))
	for _, acc := range accounts {
		response = append(response, map[string]any{
			"id":               acc.ID,
			"provider":         acc.Provider,
			"provider_user_id": acc.ProviderUserID,
			"email":            acc.Email,
			"name":             acc.Name,
			"avatar_url":       acc.AvatarURL,
			"linked_at":        acc.LinkedAt,
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"accounts": response,
	})
}

// handleError maps a failure onto one of the two host-visible paths based
// on its class, never leaking wire details to the user.
func (c *HTTPController) handleError(ctx router.Context, err error) error {
	switch Classify(err) {
	case ClassLoginError:
		redirectURL := appendQueryParam(c.config.LoginErrorRedirect, "error", errorCode(err))
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	default:
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", errorCode(err))
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}
}

func (c *HTTPController) setStateCookie(ctx router.Context, nonce string) {
	ctx.Cookie(&router.Cookie{
		Name:     c.config.StateCookieName,
		Value:    nonce,
		Path:     "/",
		Expires:  time.Now().Add(c.broker.config.StateTTL),
		Secure:   c.config.CookieSecure,
		HTTPOnly: true,
		SameSite: "Lax",
	})
}

func (c *HTTPController) clearStateCookie(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     c.config.StateCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})
}

func (c *HTTPController) setAuthCookie(ctx router.Context, token string) {
	ctx.Cookie(&router.Cookie{
		Name:     c.config.CookieName,
		Value:    token,
		Path:     "/",
		Secure:   c.config.CookieSecure,
		HTTPOnly: c.config.CookieHTTPOnly,
		SameSite: c.config.CookieSameSite,
	})
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
