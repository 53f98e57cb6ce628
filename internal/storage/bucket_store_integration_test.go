package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pulsedbconfig "github.com/pulsedb/pulsedb/internal/config"
	"github.com/pulsedb/pulsedb/internal/storage"
)

func setupAdapter(ctx context.Context, t *testing.T) *storage.Adapter {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := pulsedbconfig.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
	})

	conn := &storage.Connection{DB: testDB.Connection}

	return storage.NewAdapter(conn, nil)
}

func TestCreateAndGetBucket(t *testing.T) {
	ctx := context.Background()
	adapter := setupAdapter(ctx, t)

	b := &storage.Bucket{ID: "aw-watcher-window_host", Type: "currentwindow", Client: "aw-watcher-window", Hostname: "host", Data: []byte(`{}`)}

	err := adapter.CreateBucket(ctx, b)
	require.NoError(t, err)
	assert.NotZero(t, b.BID)
	assert.False(t, b.Created.IsZero())

	buckets, err := adapter.LoadAllBuckets(ctx)
	require.NoError(t, err)
	require.Contains(t, buckets, b.ID)
	assert.Equal(t, b.Type, buckets[b.ID].Type)
}

func TestCreateBucketDuplicateFails(t *testing.T) {
	ctx := context.Background()
	adapter := setupAdapter(ctx, t)

	b := &storage.Bucket{ID: "dup-bucket", Type: "t", Client: "c", Hostname: "h", Data: []byte(`{}`)}

	require.NoError(t, adapter.CreateBucket(ctx, b))

	err := adapter.CreateBucket(ctx, &storage.Bucket{ID: "dup-bucket", Type: "t", Client: "c", Hostname: "h", Data: []byte(`{}`)})
	require.Error(t, err)

	var alreadyExists *storage.BucketAlreadyExistsError
	assert.ErrorAs(t, err, &alreadyExists)
}

func TestDeleteBucketCascadesEvents(t *testing.T) {
	ctx := context.Background()
	adapter := setupAdapter(ctx, t)

	b := &storage.Bucket{ID: "to-delete", Type: "t", Client: "c", Hostname: "h", Data: []byte(`{}`)}
	require.NoError(t, adapter.CreateBucket(ctx, b))

	events := []*storage.Event{{Timestamp: fixedTime(t), Data: []byte(`{}`)}}
	inserted, err := adapter.InsertEvents(ctx, b.ID, events)
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	require.NoError(t, adapter.DeleteBucket(ctx, b.ID))

	_, err = adapter.GetEvent(ctx, b.ID, inserted[0].ID)
	require.Error(t, err)
}

func TestDeleteBucketMissingFails(t *testing.T) {
	ctx := context.Background()
	adapter := setupAdapter(ctx, t)

	err := adapter.DeleteBucket(ctx, "does-not-exist")
	require.Error(t, err)

	var noSuchBucket *storage.NoSuchBucketError
	assert.ErrorAs(t, err, &noSuchBucket)
}
