package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// microsecondsOf converts a Duration to signed microseconds for storage.
// Go's time.Duration is already an int64 count of nanoseconds, so this can
// never overflow a 64-bit microsecond count; the conversion exists to keep
// the storage representation explicit and to mirror the adapter contract
// that a duration overflowing 64-bit microseconds fails with InternalError.
func microsecondsOf(d time.Duration) int64 {
	return d.Microseconds()
}

// InsertEvents inserts events sequentially into bucket_id, populating each
// event's ID, and returns the inserted list. A partial failure mid-batch
// leaves already-inserted rows committed; the caller sees InternalError.
func (a *Adapter) InsertEvents(ctx context.Context, bucketID string, events []*Event) ([]*Event, error) {
	const q = `
		INSERT INTO events (bucket_id, timestamp, duration, data)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	inserted := make([]*Event, 0, len(events))

	for _, e := range events {
		e.BucketID = bucketID

		row := a.conn.QueryRowContext(ctx, q, bucketID, e.Timestamp, microsecondsOf(e.Duration), e.Data)
		if err := row.Scan(&e.ID); err != nil {
			return inserted, InternalError(fmt.Sprintf("insert event into bucket %s", bucketID), err)
		}

		inserted = append(inserted, e)
	}

	return inserted, nil
}

// GetEvents returns events for bucketID sorted by timestamp DESC. An event
// matches start iff timestamp+duration >= start; it matches end iff
// timestamp <= end. This asymmetry (overlap on the lower bound, start on
// the upper bound) is a deliberate contract, not a bug.
func (a *Adapter) GetEvents(ctx context.Context, bucketID string, start, end *time.Time, limit *int) ([]*Event, error) {
	q := `
		SELECT id, bucket_id, timestamp, duration, data
		FROM events
		WHERE bucket_id = $1`

	args := []any{bucketID}
	argN := 2

	if start != nil {
		q += fmt.Sprintf(" AND timestamp + (duration * INTERVAL '1 microsecond') >= $%d", argN)
		args = append(args, *start)
		argN++
	}

	if end != nil {
		q += fmt.Sprintf(" AND timestamp <= $%d", argN)
		args = append(args, *end)
		argN++
	}

	q += " ORDER BY timestamp DESC, id DESC"

	if limit != nil {
		q += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, *limit)
	}

	rows, err := a.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, InternalError(fmt.Sprintf("get events for bucket %s", bucketID), err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Event

	for rows.Next() {
		e := &Event{}

		var micros int64

		if err := rows.Scan(&e.ID, &e.BucketID, &e.Timestamp, &micros, &e.Data); err != nil {
			return nil, InternalError("scan event row", err)
		}

		e.Duration = time.Duration(micros) * time.Microsecond
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, InternalError("iterate event rows", err)
	}

	return out, nil
}

// GetEvent performs an exact lookup by bucket and event id. A missing row
// is reported as InternalError("Event not found") per the closed error
// taxonomy; a rewrite might introduce a dedicated NoSuchEvent variant.
func (a *Adapter) GetEvent(ctx context.Context, bucketID string, eventID int64) (*Event, error) {
	const q = `
		SELECT id, bucket_id, timestamp, duration, data
		FROM events
		WHERE bucket_id = $1 AND id = $2`

	e := &Event{}

	var micros int64

	row := a.conn.QueryRowContext(ctx, q, bucketID, eventID)
	if err := row.Scan(&e.ID, &e.BucketID, &e.Timestamp, &micros, &e.Data); err != nil {
		if err == sql.ErrNoRows {
			return nil, InternalError("Event not found", nil)
		}

		return nil, InternalError(fmt.Sprintf("get event %d in bucket %s", eventID, bucketID), err)
	}

	e.Duration = time.Duration(micros) * time.Microsecond

	return e, nil
}

// GetEventCount returns the number of events matching the same overlap
// rules as GetEvents, ignoring limit.
func (a *Adapter) GetEventCount(ctx context.Context, bucketID string, start, end *time.Time) (int64, error) {
	q := `SELECT COUNT(*) FROM events WHERE bucket_id = $1`

	args := []any{bucketID}
	argN := 2

	if start != nil {
		q += fmt.Sprintf(" AND timestamp + (duration * INTERVAL '1 microsecond') >= $%d", argN)
		args = append(args, *start)
		argN++
	}

	if end != nil {
		q += fmt.Sprintf(" AND timestamp <= $%d", argN)
		args = append(args, *end)
		argN++
	}

	var count int64

	row := a.conn.QueryRowContext(ctx, q, args...)
	if err := row.Scan(&count); err != nil {
		return 0, InternalError(fmt.Sprintf("count events for bucket %s", bucketID), err)
	}

	return count, nil
}

// DeleteEventsById deletes the named events from a bucket. A no-op on an
// empty id list; missing ids are silently ignored.
func (a *Adapter) DeleteEventsById(ctx context.Context, bucketID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	const q = `DELETE FROM events WHERE bucket_id = $1 AND id = ANY($2)`

	if _, err := a.conn.ExecContext(ctx, q, bucketID, pq.Array(ids)); err != nil {
		return InternalError(fmt.Sprintf("delete events from bucket %s", bucketID), err)
	}

	return nil
}

// ReplaceLastEvent updates the tail row (ORDER BY timestamp DESC, id DESC
// LIMIT 1) of bucketID with the provided timestamp/duration/data. The
// row is selected by that ordering alone; e.ID is ignored and left
// unchanged by the update.
func (a *Adapter) ReplaceLastEvent(ctx context.Context, bucketID string, e *Event) error {
	const q = `
		UPDATE events
		SET timestamp = $1, duration = $2, data = $3
		WHERE id = (
			SELECT id FROM events
			WHERE bucket_id = $4
			ORDER BY timestamp DESC, id DESC
			LIMIT 1
		)`

	if _, err := a.conn.ExecContext(ctx, q, e.Timestamp, microsecondsOf(e.Duration), e.Data, bucketID); err != nil {
		return InternalError(fmt.Sprintf("replace last event in bucket %s", bucketID), err)
	}

	return nil
}
