package datastore

import (
	"context"
	"time"

	"github.com/pulsedb/pulsedb/internal/storage"
)

// result carries a command's outcome back to the caller over a one-shot
// reply channel. Errors from the adapter bubble through unchanged.
type result[T any] struct {
	value T
	err   error
}

// empty is the response payload for commands that carry no data.
type empty struct{}

// command is dispatched to the worker over the single request channel and
// executes against its cache, memo, and adapter. ctx is honored for the
// underlying DB round-trip; the handle's wait for the reply itself is
// unconditional, matching the single-writer model's lack of a per-request
// timeout.
type command interface {
	execute(ctx context.Context, w *worker)
	isMutation() bool
}

type createBucketCmd struct {
	bucket *storage.Bucket
	reply  chan result[empty]
}

func (c *createBucketCmd) isMutation() bool { return true }

func (c *createBucketCmd) execute(ctx context.Context, w *worker) {
	if _, exists := w.cache[c.bucket.ID]; exists {
		c.reply <- result[empty]{err: storage.BucketAlreadyExists(c.bucket.ID)}

		return
	}

	if err := w.adapter.CreateBucket(ctx, c.bucket); err != nil {
		c.reply <- result[empty]{err: err}

		return
	}

	w.cache[c.bucket.ID] = c.bucket
	w.commitFlag = true
	c.reply <- result[empty]{}
}

type deleteBucketCmd struct {
	id    string
	reply chan result[empty]
}

func (c *deleteBucketCmd) isMutation() bool { return true }

func (c *deleteBucketCmd) execute(ctx context.Context, w *worker) {
	if err := w.adapter.DeleteBucket(ctx, c.id); err != nil {
		c.reply <- result[empty]{err: err}

		return
	}

	delete(w.cache, c.id)
	delete(w.memo, c.id)
	w.commitFlag = true
	c.reply <- result[empty]{}
}

type getBucketCmd struct {
	id    string
	reply chan result[*storage.Bucket]
}

func (c *getBucketCmd) isMutation() bool { return false }

func (c *getBucketCmd) execute(_ context.Context, w *worker) {
	b, ok := w.cache[c.id]
	if !ok {
		c.reply <- result[*storage.Bucket]{err: storage.NoSuchBucket(c.id)}

		return
	}

	c.reply <- result[*storage.Bucket]{value: b}
}

type getBucketsCmd struct {
	reply chan result[map[string]*storage.Bucket]
}

func (c *getBucketsCmd) isMutation() bool { return false }

func (c *getBucketsCmd) execute(_ context.Context, w *worker) {
	snapshot := make(map[string]*storage.Bucket, len(w.cache))
	for id, b := range w.cache {
		clone := *b
		snapshot[id] = &clone
	}

	c.reply <- result[map[string]*storage.Bucket]{value: snapshot}
}

type insertEventsCmd struct {
	bucketID string
	events   []*storage.Event
	reply    chan result[[]*storage.Event]
}

func (c *insertEventsCmd) isMutation() bool { return true }

func (c *insertEventsCmd) execute(ctx context.Context, w *worker) {
	if _, ok := w.cache[c.bucketID]; !ok {
		c.reply <- result[[]*storage.Event]{err: storage.NoSuchBucket(c.bucketID)}

		return
	}

	inserted, err := w.adapter.InsertEvents(ctx, c.bucketID, c.events)
	if err != nil {
		c.reply <- result[[]*storage.Event]{err: err}

		return
	}

	// A bulk insert invalidates the heartbeat memo: the next heartbeat must
	// re-read the true tail from storage.
	delete(w.memo, c.bucketID)
	w.uncommittedEvents += uint64(len(inserted))
	c.reply <- result[[]*storage.Event]{value: inserted}
}

type heartbeatCmd struct {
	bucketID  string
	event     *storage.Event
	pulsetime float64
	reply     chan result[*storage.Event]
}

func (c *heartbeatCmd) isMutation() bool { return true }

func (c *heartbeatCmd) execute(ctx context.Context, w *worker) {
	if _, ok := w.cache[c.bucketID]; !ok {
		c.reply <- result[*storage.Event]{err: storage.NoSuchBucket(c.bucketID)}

		return
	}

	prev, ok := w.memo[c.bucketID]
	if !ok {
		loaded, err := w.adapter.GetEvents(ctx, c.bucketID, nil, nil, intPtr(1))
		if err != nil {
			c.reply <- result[*storage.Event]{err: err}

			return
		}

		if len(loaded) > 0 {
			prev = loaded[0]
		}
	}

	if prev == nil {
		inserted, err := w.adapter.InsertEvents(ctx, c.bucketID, []*storage.Event{c.event})
		if err != nil {
			c.reply <- result[*storage.Event]{err: err}

			return
		}

		merged := inserted[0]
		w.memo[c.bucketID] = merged
		w.uncommittedEvents++
		c.reply <- result[*storage.Event]{value: merged}

		return
	}

	merged := merge(prev, c.event, c.pulsetime)
	if merged != nil {
		if err := w.adapter.ReplaceLastEvent(ctx, c.bucketID, merged); err != nil {
			c.reply <- result[*storage.Event]{err: err}

			return
		}

		w.memo[c.bucketID] = merged
		w.uncommittedEvents++
		c.reply <- result[*storage.Event]{value: merged}

		return
	}

	inserted, err := w.adapter.InsertEvents(ctx, c.bucketID, []*storage.Event{c.event})
	if err != nil {
		c.reply <- result[*storage.Event]{err: err}

		return
	}

	newEvent := inserted[0]
	w.memo[c.bucketID] = newEvent
	w.uncommittedEvents++
	c.reply <- result[*storage.Event]{value: newEvent}
}

type getEventCmd struct {
	bucketID string
	eventID  int64
	reply    chan result[*storage.Event]
}

func (c *getEventCmd) isMutation() bool { return false }

func (c *getEventCmd) execute(ctx context.Context, w *worker) {
	e, err := w.adapter.GetEvent(ctx, c.bucketID, c.eventID)
	c.reply <- result[*storage.Event]{value: e, err: err}
}

type getEventsCmd struct {
	bucketID   string
	start, end *time.Time
	limit      *int
	reply      chan result[[]*storage.Event]
}

func (c *getEventsCmd) isMutation() bool { return false }

func (c *getEventsCmd) execute(ctx context.Context, w *worker) {
	events, err := w.adapter.GetEvents(ctx, c.bucketID, c.start, c.end, c.limit)
	c.reply <- result[[]*storage.Event]{value: events, err: err}
}

type getEventCountCmd struct {
	bucketID   string
	start, end *time.Time
	reply      chan result[int64]
}

func (c *getEventCountCmd) isMutation() bool { return false }

func (c *getEventCountCmd) execute(ctx context.Context, w *worker) {
	count, err := w.adapter.GetEventCount(ctx, c.bucketID, c.start, c.end)
	c.reply <- result[int64]{value: count, err: err}
}

type deleteEventsByIdCmd struct {
	bucketID string
	ids      []int64
	reply    chan result[empty]
}

func (c *deleteEventsByIdCmd) isMutation() bool { return true }

func (c *deleteEventsByIdCmd) execute(ctx context.Context, w *worker) {
	err := w.adapter.DeleteEventsById(ctx, c.bucketID, c.ids)
	if err == nil && len(c.ids) > 0 {
		delete(w.memo, c.bucketID)
	}

	c.reply <- result[empty]{err: err}
}

type forceCommitCmd struct {
	reply chan result[empty]
}

func (c *forceCommitCmd) isMutation() bool { return true }

func (c *forceCommitCmd) execute(_ context.Context, w *worker) {
	w.commitFlag = true
	c.reply <- result[empty]{}
}

type getKeyValueCmd struct {
	key   string
	reply chan result[*storage.KeyValue]
}

func (c *getKeyValueCmd) isMutation() bool { return false }

func (c *getKeyValueCmd) execute(ctx context.Context, w *worker) {
	kv, err := w.adapter.GetKeyValue(ctx, c.key)
	c.reply <- result[*storage.KeyValue]{value: kv, err: err}
}

type setKeyValueCmd struct {
	key   string
	value []byte
	reply chan result[empty]
}

func (c *setKeyValueCmd) isMutation() bool { return true }

func (c *setKeyValueCmd) execute(ctx context.Context, w *worker) {
	err := w.adapter.SetKeyValue(ctx, c.key, c.value)
	c.reply <- result[empty]{err: err}
}

type deleteKeyValueCmd struct {
	key   string
	reply chan result[empty]
}

func (c *deleteKeyValueCmd) isMutation() bool { return true }

func (c *deleteKeyValueCmd) execute(ctx context.Context, w *worker) {
	err := w.adapter.DeleteKeyValue(ctx, c.key)
	c.reply <- result[empty]{err: err}
}

type getKeyValuesCmd struct {
	pattern string
	reply   chan result[[]*storage.KeyValue]
}

func (c *getKeyValuesCmd) isMutation() bool { return false }

func (c *getKeyValuesCmd) execute(ctx context.Context, w *worker) {
	kvs, err := w.adapter.ListKeyValues(ctx, c.pattern)
	c.reply <- result[[]*storage.KeyValue]{value: kvs, err: err}
}

type closeCmd struct {
	reply chan result[empty]
}

func (c *closeCmd) isMutation() bool { return false }

func (c *closeCmd) execute(_ context.Context, _ *worker) {
	c.reply <- result[empty]{}
}

func intPtr(n int) *int {
	return &n
}
