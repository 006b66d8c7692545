package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "cchat.db"))
	require.NoError(t, err, "Open")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDB_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Set(ctx, "a", []byte("1")))
	require.NoError(t, db.Set(ctx, "a", []byte("2")))
	got, err := db.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))

	count, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, db.Delete(ctx, "a"))
	require.NoError(t, db.Delete(ctx, "a"), "deleting a missing key")
	_, err = db.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeys_Prefix(t *testing.T) {
	ctx := context.Background()
	for name, kv := range map[string]KV{"sqlite": openTestDB(t), "memory": NewMemory()} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Set(ctx, SettingsKey("theme"), []byte("{}")))
			require.NoError(t, kv.Set(ctx, SettingsKey("api"), []byte("{}")))
			require.NoError(t, kv.Set(ctx, KeyProfiles, []byte("[]")))

			keys, err := kv.Keys(ctx, "settings.")
			require.NoError(t, err)
			assert.Equal(t, []string{"settings.api", "settings.theme"}, keys)
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()

	var out []string
	found, err := GetJSON(ctx, kv, "list", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetJSON(ctx, kv, "list", []string{"x", "y"}))
	found, err = GetJSON(ctx, kv, "list", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"x", "y"}, out)

	require.NoError(t, kv.Set(ctx, "bad", []byte("{")))
	_, err = GetJSON(ctx, kv, "bad", &out)
	assert.Error(t, err)
}

func TestMemory_FailWrites(t *testing.T) {
	kv := NewMemory()
	kv.FailWrites = errors.New("disk full")
	assert.EqualError(t, kv.Set(context.Background(), "k", nil), "disk full")
}

func TestVault_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	key, err := LoadOrCreateKey(filepath.Join(t.TempDir(), "master.key"))
	require.NoError(t, err)
	vault, err := NewVault(kv, key)
	require.NoError(t, err)

	require.NoError(t, vault.SetSecret(ctx, "p1", "sk-ant-api03-secret"))

	raw, err := kv.Get(ctx, SecretKey("p1"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-ant", "secret stored in plaintext")

	got, err := vault.GetSecret(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-api03-secret", got)

	require.NoError(t, vault.DeleteSecret(ctx, "p1"))
	_, err = vault.GetSecret(ctx, "p1")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestVault_BindsProfileID(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	vault, err := NewVault(kv, make([]byte, 32))
	require.NoError(t, err)

	require.NoError(t, vault.SetSecret(ctx, "p1", "secret"))
	raw, err := kv.Get(ctx, SecretKey("p1"))
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, SecretKey("p2"), raw))

	_, err = vault.GetSecret(ctx, "p2")
	assert.Error(t, err)
}

func TestLoadOrCreateKey_Reuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "master.key")
	first, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	second, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 32)
}
