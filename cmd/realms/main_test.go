package main

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-realms-auth/auth"
	"github.com/jrsteele09/go-realms-auth/identity"
	"github.com/jrsteele09/go-realms-auth/identity/identityfakes"
	"github.com/jrsteele09/go-realms-auth/session"
	"github.com/jrsteele09/go-realms-auth/session/storefakes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func setupLoginDeps(t *testing.T) (*identityfakes.FakeProvider, *storefakes.FakeStore, *auth.SessionManager) {
	t.Helper()

	provider := identityfakes.NewFakeProvider()
	store := storefakes.NewFakeStore()
	manager, err := auth.NewSessionManager(store, provider)
	require.NoError(t, err)
	return provider, store, manager
}

func TestLoginCommandReportsSuccess(t *testing.T) {
	provider, store, manager := setupLoginDeps(t)
	provider.AwaitSession = &session.Session{
		SchemaVersion: session.CurrentSchemaVersion,
		IssuedAt:      time.Now(),
		ExpiresAt:     time.Now().Add(time.Hour),
		Identity:      &session.IdentityChain{UserID: "user-1", Username: "PlayerOne"},
		ServiceToken:  &session.ServiceToken{Token: "service-token"},
	}

	require.NoError(t, login(provider, manager))
	require.NotNil(t, store.Stored())
}

func TestLoginCommandReportsFailure(t *testing.T) {
	provider, store, manager := setupLoginDeps(t)
	provider.ChallengeErr = errors.Wrap(identity.ProviderFaultErr, "provider down")

	err := login(provider, manager)
	require.Error(t, err)
	require.True(t, errors.Is(err, identity.ProviderFaultErr))
	require.Nil(t, store.Stored())
}
