package datastore

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsedb/pulsedb/internal/config"
	"github.com/pulsedb/pulsedb/internal/storage"
	"github.com/pulsedb/pulsedb/migrations"
)

const postgresDriverName = "postgres"

// worker is the single consumer of the command channel. It owns the bucket
// cache and the heartbeat memo exclusively — no locking — and drives the
// commit cycle. All mutation of cache/memo happens inside command.execute,
// called only from worker.run's goroutine.
//
// sendMu/closedFlag are the one exception to the no-locking rule above: they
// guard enqueueing onto commands, not worker state, so that a command sent
// concurrently with Close is deterministically either ordered before the
// close (and gets a real reply) or rejected outright with
// ErrDatastoreClosed. See send and Datastore.Close in handle.go.
type worker struct {
	instanceID string
	adapter    *storage.Adapter
	logger     *slog.Logger

	cache map[string]*storage.Bucket
	memo  map[string]*storage.Event

	commands chan command
	closed   chan struct{}

	sendMu     sync.RWMutex
	closedFlag bool

	commitInterval    time.Duration
	commitEventThresh uint64

	uncommittedEvents uint64
	commitFlag        bool
	lastCommitTime    time.Time
}

// newWorker loads the bucket cache and returns a worker ready to run. Each
// worker is stamped with a random instance id so commit-cycle log lines
// from concurrently running processes (e.g. during a deploy overlap) can be
// told apart in aggregated logs.
func newWorker(ctx context.Context, adapter *storage.Adapter, cfg *config.Config, logger *slog.Logger) (*worker, error) {
	cache, err := adapter.LoadAllBuckets(ctx)
	if err != nil {
		return nil, err
	}

	instanceID := uuid.New().String()

	logger.Info("datastore worker starting",
		"instance_id", instanceID,
		"bucket_count", len(cache),
	)

	return &worker{
		instanceID:        instanceID,
		adapter:           adapter,
		logger:            logger,
		cache:             cache,
		memo:              make(map[string]*storage.Event),
		commands:          make(chan command, cfg.CommandBufferSize),
		closed:            make(chan struct{}),
		commitInterval:    cfg.CommitInterval,
		commitEventThresh: uint64(cfg.CommitEventThresh),
		lastCommitTime:    time.Now(),
	}, nil
}

// run processes commands until a closeCmd is received, then exits. The
// cycle boundary below is a logical flush boundary only — database
// durability remains per-statement in the present schema — so closing it
// is just bookkeeping plus a log line, not a transaction commit.
func (w *worker) run(ctx context.Context) {
	defer close(w.closed)

	for cmd := range w.commands {
		cmd.execute(ctx, w)

		if cmd.isMutation() {
			w.maybeCloseCycle()
		}

		if _, isClose := cmd.(*closeCmd); isClose {
			return
		}
	}
}

// maybeCloseCycle evaluates the commit-cycle thresholds after a mutating
// request and logs the boundary when one is crossed. Keep thresholds
// configurable (commitInterval, commitEventThresh) per the worker's design.
func (w *worker) maybeCloseCycle() {
	elapsed := time.Since(w.lastCommitTime)

	crossed := w.commitFlag || elapsed > w.commitInterval || w.uncommittedEvents > w.commitEventThresh
	if !crossed {
		return
	}

	reason := "event_threshold"

	switch {
	case w.commitFlag:
		reason = "explicit"
	case elapsed > w.commitInterval:
		reason = "interval"
	}

	w.logger.Debug("commit cycle boundary",
		"instance_id", w.instanceID,
		"reason", reason,
		"uncommitted_events", w.uncommittedEvents,
		"elapsed", elapsed,
	)

	w.uncommittedEvents = 0
	w.commitFlag = false
	w.lastCommitTime = time.Now()
}

// runMigrations applies embedded migrations before the cache is populated.
// Failures are logged and tolerated: they are typically benign
// "already applied" conditions, per the startup contract.
//
// golang-migrate's Postgres driver takes ownership of whatever *sql.DB it is
// given via postgres.WithInstance, and migrations.Runner.Close tears that db
// down along with the migrate instance. The pool the worker runs on for the
// rest of the process's life must survive this call, so runMigrations opens
// its own short-lived connection for the migration step instead of reusing
// the caller's pool — the same split the standalone migration CLI uses,
// where the migrator's db is private to that one run.
func runMigrations(databaseURL string, logger *slog.Logger) {
	db, err := sql.Open(postgresDriverName, databaseURL)
	if err != nil {
		logger.Warn("migration connection open failed, continuing without migrating", "error", err)

		return
	}
	defer func() { _ = db.Close() }()

	runner, err := migrations.NewRunner(db, logger)
	if err != nil {
		logger.Warn("migration runner setup failed, continuing without migrating", "error", err)

		return
	}
	defer func() { _ = runner.Close() }()

	if err := runner.Up(); err != nil {
		logger.Warn("migration run failed, continuing with existing schema", "error", err)
	}
}
