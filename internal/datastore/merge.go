package datastore

import (
	"encoding/json"
	"reflect"

	"github.com/pulsedb/pulsedb/internal/storage"
)

// merge decides whether next extends prev in place. It returns the merged
// event on success, or nil if the two samples should remain distinct
// events. It touches no storage and is deterministic in prev/next/pulsetime
// alone, so it is unit-testable without a database.
//
// Merge succeeds iff next.Data equals prev.Data as JSON values and the gap
// between the end of prev (prev.Timestamp+prev.Duration) and next.Timestamp
// is within [0, pulsetime] seconds. Equality is checked by unmarshalling
// both payloads rather than comparing raw bytes: prev may have round-tripped
// through a Postgres jsonb column, which does not preserve key order or
// whitespace, so two semantically identical payloads can differ byte for
// byte.
//
// On success the merged event keeps prev.ID and prev.Timestamp; its
// Duration becomes (next.Timestamp+next.Duration) - prev.Timestamp; Data is
// unchanged.
func merge(prev, next *storage.Event, pulsetime float64) *storage.Event {
	if !jsonEqual(prev.Data, next.Data) {
		return nil
	}

	prevEnd := prev.Timestamp.Add(prev.Duration)
	gap := next.Timestamp.Sub(prevEnd).Seconds()

	if gap < 0 || gap > pulsetime {
		return nil
	}

	nextEnd := next.Timestamp.Add(next.Duration)

	return &storage.Event{
		ID:        prev.ID,
		BucketID:  prev.BucketID,
		Timestamp: prev.Timestamp,
		Duration:  nextEnd.Sub(prev.Timestamp),
		Data:      prev.Data,
	}
}

// jsonEqual reports whether a and b decode to the same JSON value,
// independent of key order or formatting. Malformed input is never equal to
// anything, including another copy of itself.
func jsonEqual(a, b []byte) bool {
	var va, vb any

	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}

	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}

	return reflect.DeepEqual(va, vb)
}
