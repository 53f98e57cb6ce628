// Package datastore implements the single-writer engine behind buckets,
// events, and settings: a worker goroutine that serializes every mutating
// request through a command channel, and a cloneable Datastore handle that
// client code calls instead of touching SQL directly.
package datastore

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pulsedb/pulsedb/internal/config"
	"github.com/pulsedb/pulsedb/internal/storage"
)

// Datastore is a thread-safe client facade. Every method builds the
// corresponding command, sends it on the request channel, and waits for
// the response. The channel serializes concurrent callers at the worker,
// so the handle itself holds no lock.
type Datastore struct {
	w *worker
}

// Open opens a connection, runs embedded migrations (logged and tolerated
// on failure), loads the bucket cache, and starts the worker goroutine.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Datastore, *storage.Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := storage.NewConnection(cfg)
	if err != nil {
		return nil, nil, err
	}

	runMigrations(cfg.DatabaseURL(), logger)

	adapter := storage.NewAdapter(conn, logger)

	w, err := newWorker(ctx, adapter, cfg, logger)
	if err != nil {
		_ = conn.Close()

		return nil, nil, err
	}

	go w.run(ctx)

	return &Datastore{w: w}, conn, nil
}

// send delivers cmd to the worker and blocks for its reply. Sending blocks
// if the worker has fallen behind (the channel is the system's
// back-pressure boundary).
//
// Enqueueing is gated behind w.sendMu (held for read) so it can never race
// with Close (which takes the write lock before enqueueing closeCmd and
// marking the worker closed): a call to send either completes its enqueue
// strictly before closeCmd joins the channel, in which case the worker is
// guaranteed to still process it and deliver a real reply, or it observes
// closedFlag already set and returns ErrDatastoreClosed without touching
// the channel at all. There is no window where a command can be enqueued
// behind closeCmd and never drained, and no select race to lose.
func send[T any](d *Datastore, cmd command, reply chan result[T]) (T, error) {
	var zero T

	d.w.sendMu.RLock()

	if d.w.closedFlag {
		d.w.sendMu.RUnlock()

		return zero, ErrDatastoreClosed
	}

	d.w.commands <- cmd
	d.w.sendMu.RUnlock()

	r := <-reply

	return r.value, r.err
}

// CreateBucket inserts a new bucket. Fails with a BucketAlreadyExistsError
// if the id is already in use.
func (d *Datastore) CreateBucket(_ context.Context, b *storage.Bucket) error {
	reply := make(chan result[empty], 1)
	_, err := send(d, &createBucketCmd{bucket: b, reply: reply}, reply)

	return err
}

// DeleteBucket removes a bucket and cascades its events.
func (d *Datastore) DeleteBucket(_ context.Context, id string) error {
	reply := make(chan result[empty], 1)
	_, err := send(d, &deleteBucketCmd{id: id, reply: reply}, reply)

	return err
}

// GetBucket answers strictly from the cache.
func (d *Datastore) GetBucket(_ context.Context, id string) (*storage.Bucket, error) {
	reply := make(chan result[*storage.Bucket], 1)

	return send(d, &getBucketCmd{id: id, reply: reply}, reply)
}

// GetBuckets returns a snapshot clone of the entire bucket cache.
func (d *Datastore) GetBuckets(_ context.Context) (map[string]*storage.Bucket, error) {
	reply := make(chan result[map[string]*storage.Bucket], 1)

	return send(d, &getBucketsCmd{reply: reply}, reply)
}

// InsertEvents bulk-inserts events into bucketID and returns them with
// assigned ids. This also resets the bucket's heartbeat memo.
func (d *Datastore) InsertEvents(_ context.Context, bucketID string, events []*storage.Event) ([]*storage.Event, error) {
	reply := make(chan result[[]*storage.Event], 1)

	return send(d, &insertEventsCmd{bucketID: bucketID, events: events, reply: reply}, reply)
}

// Heartbeat submits a sample that either extends the currently-open
// interval (if it merges with the memoized previous event) or begins a new
// one.
func (d *Datastore) Heartbeat(_ context.Context, bucketID string, event *storage.Event, pulsetime float64) (*storage.Event, error) {
	reply := make(chan result[*storage.Event], 1)

	return send(d, &heartbeatCmd{bucketID: bucketID, event: event, pulsetime: pulsetime, reply: reply}, reply)
}

// GetEvent performs an exact id lookup within bucketID.
func (d *Datastore) GetEvent(_ context.Context, bucketID string, eventID int64) (*storage.Event, error) {
	reply := make(chan result[*storage.Event], 1)

	return send(d, &getEventCmd{bucketID: bucketID, eventID: eventID, reply: reply}, reply)
}

// GetEvents returns events sorted by timestamp descending, subject to the
// overlap/start range contract described on the SQL adapter.
func (d *Datastore) GetEvents(_ context.Context, bucketID string, start, end *time.Time, limit *int) ([]*storage.Event, error) {
	reply := make(chan result[[]*storage.Event], 1)

	return send(d, &getEventsCmd{bucketID: bucketID, start: start, end: end, limit: limit, reply: reply}, reply)
}

// GetEventCount mirrors GetEvents' range filter but returns only a count.
func (d *Datastore) GetEventCount(_ context.Context, bucketID string, start, end *time.Time) (int64, error) {
	reply := make(chan result[int64], 1)

	return send(d, &getEventCountCmd{bucketID: bucketID, start: start, end: end, reply: reply}, reply)
}

// DeleteEventsById deletes the given events from bucketID. A no-op on an
// empty slice; missing ids are silently ignored.
func (d *Datastore) DeleteEventsById(_ context.Context, bucketID string, ids []int64) error {
	reply := make(chan result[empty], 1)
	_, err := send(d, &deleteEventsByIdCmd{bucketID: bucketID, ids: ids, reply: reply}, reply)

	return err
}

// ForceCommit marks the current commit cycle dirty, forcing it to close on
// the next evaluation.
func (d *Datastore) ForceCommit(_ context.Context) error {
	reply := make(chan result[empty], 1)
	_, err := send(d, &forceCommitCmd{reply: reply}, reply)

	return err
}

// GetKeyValue looks up a setting by key.
func (d *Datastore) GetKeyValue(_ context.Context, key string) (*storage.KeyValue, error) {
	reply := make(chan result[*storage.KeyValue], 1)

	return send(d, &getKeyValueCmd{key: key, reply: reply}, reply)
}

// SetKeyValue upserts a setting.
func (d *Datastore) SetKeyValue(_ context.Context, key string, value []byte) error {
	reply := make(chan result[empty], 1)
	_, err := send(d, &setKeyValueCmd{key: key, value: value, reply: reply}, reply)

	return err
}

// DeleteKeyValue removes a setting.
func (d *Datastore) DeleteKeyValue(_ context.Context, key string) error {
	reply := make(chan result[empty], 1)
	_, err := send(d, &deleteKeyValueCmd{key: key, reply: reply}, reply)

	return err
}

// GetKeyValues lists settings matching pattern, restricted to the
// settings. namespace by the adapter.
func (d *Datastore) GetKeyValues(_ context.Context, pattern string) ([]*storage.KeyValue, error) {
	reply := make(chan result[[]*storage.KeyValue], 1)

	return send(d, &getKeyValuesCmd{pattern: pattern, reply: reply}, reply)
}

// Close asks the worker to exit after responding, and waits for it to do
// so. It is idempotent: calling it again after the worker has already
// exited returns ErrDatastoreClosed rather than blocking.
//
// The write lock on sendMu is held across both setting closedFlag and
// enqueueing closeCmd, so it forms the single point that orders every
// concurrent sender relative to shutdown: whoever holds sendMu first wins,
// with no way for a later send to sneak onto the channel behind closeCmd.
func (d *Datastore) Close(_ context.Context) error {
	d.w.sendMu.Lock()

	if d.w.closedFlag {
		d.w.sendMu.Unlock()

		return ErrDatastoreClosed
	}

	d.w.closedFlag = true

	reply := make(chan result[empty], 1)
	d.w.commands <- &closeCmd{reply: reply}
	d.w.sendMu.Unlock()

	r := <-reply

	<-d.w.closed

	return r.err
}

// Stats exposes the underlying connection pool's statistics, for health
// endpoints the boundary may wire up.
func (d *Datastore) Stats() sql.DBStats {
	return d.w.adapter.ConnectionStats()
}
