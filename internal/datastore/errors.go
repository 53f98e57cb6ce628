package datastore

import "errors"

// ErrDatastoreClosed is returned when a command cannot be delivered because
// the worker has exited and the request channel is no longer being
// drained. It is the transport-level counterpart to an adapter error: it
// means "no answer is coming," not "the answer was an error."
var ErrDatastoreClosed = errors.New("datastore: worker is closed")

// ErrUninitialized is reserved for startup paths where migrations are
// disabled; unused on the default path, where migration failures at
// startup are logged and tolerated rather than surfaced as a distinct
// error.
var ErrUninitialized = errors.New("datastore: uninitialized")

// ErrOldDbVersion is reserved for startup paths where migrations are
// disabled; unused on the default path.
var ErrOldDbVersion = errors.New("datastore: database schema predates this binary")
