package datastore_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pulsedbconfig "github.com/pulsedb/pulsedb/internal/config"
	"github.com/pulsedb/pulsedb/internal/datastore"
	"github.com/pulsedb/pulsedb/internal/storage"
)

func setupDatastore(ctx context.Context, t *testing.T) *datastore.Datastore {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := pulsedbconfig.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
	})

	connStr, err := testDB.Container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	connStr = strings.Replace(connStr, "postgres://", "postgresql://", 1)
	t.Setenv("DATABASE_URL", connStr)

	cfg := pulsedbconfig.Load()

	logger := slog.New(slog.NewJSONHandler(nopWriter{}, nil))

	ds, conn, err := datastore.Open(ctx, cfg, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = ds.Close(ctx)
		_ = conn.Close()
	})

	return ds
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestDatastoreBucketLifecycle(t *testing.T) {
	ctx := context.Background()
	ds := setupDatastore(ctx, t)

	b := &storage.Bucket{ID: "ds-bucket", Type: "t", Client: "c", Hostname: "h", Data: []byte(`{}`)}
	require.NoError(t, ds.CreateBucket(ctx, b))

	got, err := ds.GetBucket(ctx, "ds-bucket")
	require.NoError(t, err)
	assert.Equal(t, "t", got.Type)

	all, err := ds.GetBuckets(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, "ds-bucket")

	// mutating the snapshot must not affect the worker's own cache
	all["ds-bucket"].Type = "mutated"

	again, err := ds.GetBucket(ctx, "ds-bucket")
	require.NoError(t, err)
	assert.Equal(t, "t", again.Type)

	require.NoError(t, ds.DeleteBucket(ctx, "ds-bucket"))

	_, err = ds.GetBucket(ctx, "ds-bucket")
	require.Error(t, err)
}

func TestDatastoreHeartbeatColdStartAndCoalesce(t *testing.T) {
	ctx := context.Background()
	ds := setupDatastore(ctx, t)

	require.NoError(t, ds.CreateBucket(ctx, &storage.Bucket{ID: "hb-bucket", Type: "t", Client: "c", Hostname: "h", Data: []byte(`{}`)}))

	base, err := time.Parse(time.RFC3339, "2024-06-01T00:00:00Z")
	require.NoError(t, err)

	first := &storage.Event{Timestamp: base, Duration: 0, Data: []byte(`{"app":"x"}`)}

	got, err := ds.Heartbeat(ctx, "hb-bucket", first, 10)
	require.NoError(t, err)
	require.NotNil(t, got)

	firstID := got.ID

	second := &storage.Event{Timestamp: base.Add(5 * time.Second), Duration: 0, Data: []byte(`{"app":"x"}`)}

	merged, err := ds.Heartbeat(ctx, "hb-bucket", second, 10)
	require.NoError(t, err)
	assert.Equal(t, firstID, merged.ID)
	assert.Equal(t, 5*time.Second, merged.Duration)

	third := &storage.Event{Timestamp: base.Add(30 * time.Second), Duration: 0, Data: []byte(`{"app":"x"}`)}

	broken, err := ds.Heartbeat(ctx, "hb-bucket", third, 10)
	require.NoError(t, err)
	assert.NotEqual(t, firstID, broken.ID)
}

func TestDatastoreInsertEventsResetsMemo(t *testing.T) {
	ctx := context.Background()
	ds := setupDatastore(ctx, t)

	require.NoError(t, ds.CreateBucket(ctx, &storage.Bucket{ID: "ie-bucket", Type: "t", Client: "c", Hostname: "h", Data: []byte(`{}`)}))

	base, err := time.Parse(time.RFC3339, "2024-06-01T00:00:00Z")
	require.NoError(t, err)

	inserted, err := ds.InsertEvents(ctx, "ie-bucket", []*storage.Event{{Timestamp: base, Data: []byte(`{}`)}})
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	// InsertEvents resets the bucket's memo, so the next heartbeat re-reads
	// the true tail from storage and coalesces into the inserted event
	hb, err := ds.Heartbeat(ctx, "ie-bucket", &storage.Event{Timestamp: base.Add(time.Second), Data: []byte(`{}`)}, 10)
	require.NoError(t, err)
	assert.Equal(t, inserted[0].ID, hb.ID)
}

func TestDatastoreKeyValueRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds := setupDatastore(ctx, t)

	require.NoError(t, ds.SetKeyValue(ctx, "settings.lang", []byte(`"en"`)))

	kv, err := ds.GetKeyValue(ctx, "settings.lang")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"en"`), kv.Value)

	require.NoError(t, ds.DeleteKeyValue(ctx, "settings.lang"))

	_, err = ds.GetKeyValue(ctx, "settings.lang")
	require.Error(t, err)
}

func TestDatastoreForceCommitIsHarmless(t *testing.T) {
	ctx := context.Background()
	ds := setupDatastore(ctx, t)

	require.NoError(t, ds.ForceCommit(ctx))
}

func TestDatastoreCloseRejectsFurtherCommands(t *testing.T) {
	ctx := context.Background()
	ds := setupDatastore(ctx, t)

	require.NoError(t, ds.Close(ctx))

	_, err := ds.GetBuckets(ctx)
	require.ErrorIs(t, err, datastore.ErrDatastoreClosed)
}
