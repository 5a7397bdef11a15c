// Package social implements an OAuth1/OAuth2/OIDC login broker: it drives
// the authorization-code dance against third party identity providers,
// normalizes their user-info payloads into a single Profile shape, and
// decides how a social identity maps onto a local account.
//
// The moving parts:
//   - Provider implementations (subpackages of providers/) hold per-provider
//     endpoints and profile mapping. Protocol work is delegated to the shared
//     oauth2 and oauth1 clients, so each provider is plain configuration plus
//     a mapper.
//   - discovery.Resolver fetches and caches OIDC well-known documents for
//     providers that do not hardcode endpoints.
//   - Broker sequences a login attempt: encrypted state out, callback state
//     check, code exchange, profile fetch, then the linking engine.
//   - The linking engine (LinkPolicy + LinkingEngine.Resolve) is the security
//     core.
//     It owns the (provider, external id) -> account binding and is the only
//     place where bindings are created.
//
// Every failure carries an explicit Class: ClassSilent failures (transport,
// discovery, state tampering) short-circuit to a generic error page, while
// ClassLoginError failures (policy rejections) flow through the host's
// failed-login handling so lockout and notification machinery observes them.
package social
