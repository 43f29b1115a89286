package identity_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-realms-auth/identity"
	"github.com/jrsteele09/go-realms-auth/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// providerFixture runs fake device-auth, token and service-auth endpoints.
type providerFixture struct {
	server   *httptest.Server
	provider *identity.OAuthProvider

	tokenHandler   http.HandlerFunc
	serviceHandler http.HandlerFunc
}

func setupProviderFixture(t *testing.T) *providerFixture {
	t.Helper()

	f := &providerFixture{}
	mux := http.NewServeMux()
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"device_code": "dev-code-1",
			"user_code": "ABCD-1234",
			"verification_uri": "https://login.example.com/device",
			"verification_uri_complete": "https://login.example.com/device?code=ABCD-1234",
			"expires_in": 900,
			"interval": 1
		}`)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenHandler(w, r)
	})
	mux.HandleFunc("/service", func(w http.ResponseWriter, r *http.Request) {
		f.serviceHandler(w, r)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"access_token": "provider-token",
			"token_type": "Bearer",
			"refresh_token": "refresh-token",
			"expires_in": 3600
		}`)
	}
	f.serviceHandler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"access_token": "service-token",
			"token_type": "Bearer",
			"expires_in": 86400,
			"user_id": "user-1",
			"username": "PlayerOne"
		}`)
	}

	provider, err := identity.NewOAuthProvider(context.Background(), identity.ProviderSettings{
		ClientID:       "test-client-1",
		Scopes:         []string{"openid", "offline_access"},
		DeviceAuthURL:  f.server.URL + "/device",
		TokenURL:       f.server.URL + "/token",
		ServiceAuthURL: f.server.URL + "/service",
	}, identity.WithNowTime(func() time.Time { return testNow }))
	require.NoError(t, err)
	f.provider = provider
	return f
}

func TestNewOAuthProviderRequiresSettings(t *testing.T) {
	ctx := context.Background()

	_, err := identity.NewOAuthProvider(ctx, identity.ProviderSettings{
		ServiceAuthURL: "https://svc.example.com/auth",
	})
	require.Error(t, err)

	_, err = identity.NewOAuthProvider(ctx, identity.ProviderSettings{
		ClientID: "test-client-1",
	})
	require.Error(t, err)

	// Neither issuer nor explicit endpoints.
	_, err = identity.NewOAuthProvider(ctx, identity.ProviderSettings{
		ClientID:       "test-client-1",
		ServiceAuthURL: "https://svc.example.com/auth",
	})
	require.Error(t, err)
}

func TestRequestDeviceCode(t *testing.T) {
	f := setupProviderFixture(t)

	challenge, err := f.provider.RequestDeviceCode(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ABCD-1234", challenge.UserCode)
	require.Equal(t, "https://login.example.com/device", challenge.VerificationURI)
	require.Equal(t, "https://login.example.com/device?code=ABCD-1234", challenge.VerificationURIComplete)
	require.Equal(t, time.Second, challenge.Interval)
}

func TestAwaitAuthorizationBuildsUsableSession(t *testing.T) {
	f := setupProviderFixture(t)
	ctx := context.Background()

	challenge, err := f.provider.RequestDeviceCode(ctx)
	require.NoError(t, err)

	sess, err := f.provider.AwaitAuthorization(ctx, challenge)
	require.NoError(t, err)
	require.True(t, sess.IsUsable())
	require.Equal(t, session.CurrentSchemaVersion, sess.SchemaVersion)
	require.Equal(t, "provider-token", sess.Identity.AccessToken)
	require.Equal(t, "refresh-token", sess.Identity.RefreshToken)
	require.Equal(t, "user-1", sess.Identity.UserID)
	require.Equal(t, "PlayerOne", sess.Identity.Username)
	require.Equal(t, "service-token", sess.ServiceToken.Token)
	require.Equal(t, testNow.Add(86400*time.Second), sess.ServiceToken.ExpiresAt)
}

func TestAwaitAuthorizationCancellation(t *testing.T) {
	f := setupProviderFixture(t)
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "authorization_pending"}`)
	}

	ctx := context.Background()
	challenge, err := f.provider.RequestDeviceCode(ctx)
	require.NoError(t, err)

	cancelCtx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err = f.provider.AwaitAuthorization(cancelCtx, challenge)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestAwaitAuthorizationServiceExchangeFailure(t *testing.T) {
	f := setupProviderFixture(t)
	f.serviceHandler = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}

	ctx := context.Background()
	challenge, err := f.provider.RequestDeviceCode(ctx)
	require.NoError(t, err)

	_, err = f.provider.AwaitAuthorization(ctx, challenge)
	require.True(t, errors.Is(err, identity.ProviderFaultErr))
}

func TestAwaitAuthorizationRejectsForeignChallenge(t *testing.T) {
	f := setupProviderFixture(t)

	_, err := f.provider.AwaitAuthorization(context.Background(), &identity.Challenge{UserCode: "ABCD-1234"})
	require.True(t, errors.Is(err, identity.ProviderFaultErr))
}

func TestRefresh(t *testing.T) {
	f := setupProviderFixture(t)

	old := &session.Session{
		SchemaVersion: session.CurrentSchemaVersion,
		Identity:      &session.IdentityChain{RefreshToken: "refresh-token"},
		ServiceToken:  &session.ServiceToken{Token: "stale-service-token"},
	}

	renewed, err := f.provider.Refresh(context.Background(), old)
	require.NoError(t, err)
	require.True(t, renewed.IsUsable())
	require.Equal(t, "service-token", renewed.ServiceToken.Token)
}

func TestRefreshWithoutRefreshMaterial(t *testing.T) {
	f := setupProviderFixture(t)

	_, err := f.provider.Refresh(context.Background(), &session.Session{})
	require.True(t, errors.Is(err, identity.RefreshFaultErr))
}

func TestRefreshProviderRejection(t *testing.T) {
	f := setupProviderFixture(t)
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid_grant"}`)
	}

	old := &session.Session{Identity: &session.IdentityChain{RefreshToken: "revoked"}}
	_, err := f.provider.Refresh(context.Background(), old)
	require.True(t, errors.Is(err, identity.RefreshFaultErr))
}
