package apikeys_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedb/pulsedb/internal/apikeys"
	pulsedbconfig "github.com/pulsedb/pulsedb/internal/config"
	"github.com/pulsedb/pulsedb/internal/storage"
)

func setupStore(ctx context.Context, t *testing.T) *apikeys.Store {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := pulsedbconfig.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
	})

	conn := &storage.Connection{DB: testDB.Connection}

	return apikeys.NewStore(conn, nil)
}

func TestCreateValidateRevokeLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupStore(ctx, t)

	desc := "integration test key"

	id, plaintext, err := store.Create(ctx, "client-a", &desc)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.NotEmpty(t, plaintext)

	gotID, clientID, ok := store.Validate(ctx, plaintext)
	require.True(t, ok)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "client-a", clientID)

	infos, err := store.List(ctx)
	require.NoError(t, err)

	var found *apikeys.Info

	for _, info := range infos {
		if info.ID == id {
			found = info

			break
		}
	}

	require.NotNil(t, found)
	assert.True(t, found.IsActive)

	revoked, err := store.Revoke(ctx, id)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, _, ok = store.Validate(ctx, plaintext)
	assert.False(t, ok)
}

func TestRevokeUnknownIdReturnsFalse(t *testing.T) {
	ctx := context.Background()
	store := setupStore(ctx, t)

	revoked, err := store.Revoke(ctx, 999999)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestValidateRejectsGarbageInput(t *testing.T) {
	ctx := context.Background()
	store := setupStore(ctx, t)

	_, _, ok := store.Validate(ctx, "not-a-real-key")
	assert.False(t, ok)

	_, _, ok = store.Validate(ctx, "")
	assert.False(t, ok)
}
