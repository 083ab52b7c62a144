package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-auth-service"
)

func TestBootstrap_FirstStart(t *testing.T) {
	db := newTestDB(t)
	repo := auth.NewRepositoryManager(db)
	ctx := context.Background()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	provider, hook := captureLogs(t)

	res, err := auth.Bootstrap(ctx, repo, auth.BootstrapConfig{
		AdminUsername: "admin",
		AdminPassword: "adminpass",
	}, hasher, provider.GetLogger("bootstrap"))
	require.NoError(t, err)

	assert.True(t, res.AdminCreated)
	assert.Zero(t, res.KeysInserted)
	require.NotNil(t, res.GeneratedKey)
	assert.Equal(t, auth.DefaultServiceKeyDescription, res.GeneratedKey.Description)
	assert.Len(t, res.GeneratedKey.Key, auth.ServiceKeyLength)

	admin, err := repo.Users().GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
	require.NoError(t, hasher.ComparePasswordAndHash("adminpass", admin.PasswordHash))

	entries := entriesWithMessage(hook, "generated default service key")
	require.Len(t, entries, 1)
	assert.Equal(t, res.GeneratedKey.Suffix(), entries[0].Data["key_suffix"])
	for _, v := range entries[0].Data {
		assert.NotEqual(t, res.GeneratedKey.Key, v)
	}

	again, err := auth.Bootstrap(ctx, repo, auth.BootstrapConfig{
		AdminUsername: "admin",
		AdminPassword: "changed",
	}, hasher, provider.GetLogger("bootstrap"))
	require.NoError(t, err)
	assert.False(t, again.AdminCreated)
	assert.Nil(t, again.GeneratedKey)

	count, err := repo.ServiceKeys().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBootstrap_ConfiguredKeys(t *testing.T) {
	db := newTestDB(t)
	repo := auth.NewRepositoryManager(db)
	ctx := context.Background()

	cfg := auth.BootstrapConfig{
		APIKeys: []string{"configured-key-0001", " ", "configured-key-0002"},
	}

	res, err := auth.Bootstrap(ctx, repo, cfg, auth.NewBcryptHasher(bcrypt.MinCost), nil)
	require.NoError(t, err)
	assert.False(t, res.AdminCreated)
	assert.Equal(t, 2, res.KeysInserted)
	assert.Nil(t, res.GeneratedKey)

	res, err = auth.Bootstrap(ctx, repo, cfg, auth.NewBcryptHasher(bcrypt.MinCost), nil)
	require.NoError(t, err)
	assert.Zero(t, res.KeysInserted)

	gate := auth.NewGate(repo)
	caller, err := gate.Admit(ctx, "configured-key-0002")
	require.NoError(t, err)
	assert.Equal(t, "***0002", caller.KeySuffix)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, auth.Migrate(context.Background(), db))
	assert.Len(t, auth.Models(), 2)
}
