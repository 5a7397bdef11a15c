package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnavailable(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	require.Equal(t, social.TextCodeProviderUnavailable, rich.TextCode)
}

const wellKnownBody = `{
	"issuer": "https://sso.example",
	"authorization_endpoint": "https://sso.example/authorize",
	"token_endpoint": "https://sso.example/token",
	"userinfo_endpoint": "https://sso.example/userinfo",
	"jwks_uri": "https://sso.example/jwks"
}`

func TestResolverFetchesDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(wellKnownBody))
	}))
	defer server.Close()

	resolver := NewResolver(server.Client())

	doc, err := resolver.Resolve(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://sso.example", doc.Issuer)
	assert.Equal(t, "https://sso.example/authorize", doc.AuthorizationEndpoint)
	assert.Equal(t, "https://sso.example/token", doc.TokenEndpoint)
	assert.Equal(t, "https://sso.example/userinfo", doc.UserInfoEndpoint)
	assert.Equal(t, "https://sso.example/jwks", doc.JWKSURI)
}

func TestResolverCachesDocument(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(wellKnownBody))
	}))
	defer server.Close()

	resolver := NewResolver(server.Client())

	for i := 0; i < 3; i++ {
		_, err := resolver.Resolve(context.Background(), server.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestResolverCoalescesConcurrentFetches(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		// Hold the response long enough that every caller is in flight at
		// once.
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(wellKnownBody))
	}))
	defer server.Close()

	resolver := NewResolver(server.Client())

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = resolver.Resolve(context.Background(), server.URL)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestResolverRejectsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	resolver := NewResolver(server.Client())

	_, err := resolver.Resolve(context.Background(), server.URL)
	requireUnavailable(t, err)
	assert.Equal(t, social.ClassSilent, social.Classify(err))
}

func TestResolverRejectsNonJSONContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>login portal</html>"))
	}))
	defer server.Close()

	resolver := NewResolver(server.Client())

	_, err := resolver.Resolve(context.Background(), server.URL)
	requireUnavailable(t, err)
}

func TestResolverRejectsIncompleteDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"issuer": "https://sso.example"}`))
	}))
	defer server.Close()

	resolver := NewResolver(server.Client())

	_, err := resolver.Resolve(context.Background(), server.URL)
	requireUnavailable(t, err)
}

func TestResolverErrorsAreNotCached(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(wellKnownBody))
	}))
	defer server.Close()

	resolver := NewResolver(server.Client())

	_, err := resolver.Resolve(context.Background(), server.URL)
	require.Error(t, err)

	doc, err := resolver.Resolve(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://sso.example", doc.Issuer)
	assert.Equal(t, int32(2), fetches.Load())
}
