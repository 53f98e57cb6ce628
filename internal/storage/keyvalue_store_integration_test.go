package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedb/pulsedb/internal/storage"
)

func TestSetAndGetKeyValueRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := setupAdapter(ctx, t)

	require.NoError(t, adapter.SetKeyValue(ctx, "settings.theme", []byte(`"dark"`)))

	kv, err := adapter.GetKeyValue(ctx, "settings.theme")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"dark"`), kv.Value)

	require.NoError(t, adapter.SetKeyValue(ctx, "settings.theme", []byte(`"light"`)))

	kv, err = adapter.GetKeyValue(ctx, "settings.theme")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"light"`), kv.Value)
}

func TestGetKeyValueMissingFails(t *testing.T) {
	ctx := context.Background()
	adapter := setupAdapter(ctx, t)

	_, err := adapter.GetKeyValue(ctx, "settings.does-not-exist")
	require.Error(t, err)

	var noSuchKey *storage.NoSuchKeyError
	assert.ErrorAs(t, err, &noSuchKey)
}

func TestDeleteKeyValueMissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	adapter := setupAdapter(ctx, t)

	require.NoError(t, adapter.DeleteKeyValue(ctx, "settings.never-existed"))
}

func TestListKeyValuesRestrictsToSettingsPrefix(t *testing.T) {
	ctx := context.Background()
	adapter := setupAdapter(ctx, t)

	require.NoError(t, adapter.SetKeyValue(ctx, "settings.alpha", []byte(`1`)))
	require.NoError(t, adapter.SetKeyValue(ctx, "settings.beta", []byte(`2`)))
	require.NoError(t, adapter.SetKeyValue(ctx, "not-a-setting.gamma", []byte(`3`)))

	got, err := adapter.ListKeyValues(ctx, "%")
	require.NoError(t, err)

	keys := make([]string, 0, len(got))
	for _, kv := range got {
		keys = append(keys, kv.Key)
	}

	assert.Contains(t, keys, "settings.alpha")
	assert.Contains(t, keys, "settings.beta")
	assert.NotContains(t, keys, "not-a-setting.gamma")
}
