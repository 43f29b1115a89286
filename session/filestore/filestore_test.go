package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-realms-auth/session"
	"github.com/jrsteele09/go-realms-auth/session/filestore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func testSession() *session.Session {
	return &session.Session{
		SchemaVersion: session.CurrentSchemaVersion,
		IssuedAt:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		ExpiresAt:     time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC),
		Identity: &session.IdentityChain{
			AccessToken:  "provider-token",
			RefreshToken: "refresh-token",
			UserID:       "user-1",
			Username:     "PlayerOne",
		},
		ServiceToken: &session.ServiceToken{Token: "service-token"},
	}
}

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session.json")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := storePath(t)
	store := filestore.New(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, testSession(), loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveCreatesMissingParentDirectory(t *testing.T) {
	// First run on a fresh machine: the slot's directory does not exist yet.
	path := filepath.Join(t.TempDir(), ".realms-auth", "session.json")
	store := filestore.New(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, testSession(), loaded)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	path := storePath(t)
	store := filestore.New(path)
	require.NoError(t, store.Save(context.Background(), testSession()))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestSaveOverwritesPriorRecord(t *testing.T) {
	store := filestore.New(storePath(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))

	replacement := testSession()
	replacement.Identity.Username = "PlayerTwo"
	require.NoError(t, store.Save(ctx, replacement))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "PlayerTwo", loaded.Identity.Username)
}

func TestLoadMissingRecord(t *testing.T) {
	store := filestore.New(storePath(t))
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestLoadEmptyRecord(t *testing.T) {
	path := storePath(t)
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	loaded, err := filestore.New(path).Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestLoadMalformedRecordIsParseFault(t *testing.T) {
	path := storePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{{{ definitely not json"), 0o600))

	_, err := filestore.New(path).Load(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, session.ParseFaultErr))
}

func TestDeleteIsIdempotent(t *testing.T) {
	path := storePath(t)
	store := filestore.New(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))
	require.NoError(t, store.Delete(ctx))
	require.NoError(t, store.Delete(ctx))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestPassphraseRoundTrip(t *testing.T) {
	path := storePath(t)
	store := filestore.New(path, filestore.WithPassphrase("correct horse"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))

	// The on-disk record must not be readable as plain JSON.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "service-token")

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, testSession(), loaded)
}

func TestWrongPassphraseIsParseFault(t *testing.T) {
	path := storePath(t)
	ctx := context.Background()

	require.NoError(t, filestore.New(path, filestore.WithPassphrase("right")).Save(ctx, testSession()))

	_, err := filestore.New(path, filestore.WithPassphrase("wrong")).Load(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, session.ParseFaultErr))
}

func TestPlainRecordWithPassphraseIsParseFault(t *testing.T) {
	path := storePath(t)
	ctx := context.Background()

	require.NoError(t, filestore.New(path).Save(ctx, testSession()))

	_, err := filestore.New(path, filestore.WithPassphrase("secret")).Load(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, session.ParseFaultErr))
}
