package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// Default busy-retry policy. SQLite rejects a second concurrent writer with
// SQLITE_BUSY; bounded exponential backoff turns that into a bounded-latency
// success instead of an error surfaced to every caller.
const (
	DefaultBusyRetries   = 5
	DefaultBusyBaseDelay = 100 * time.Millisecond
	DefaultBusyMaxDelay  = 500 * time.Millisecond
)

const writeQueueDepth = 256

// Options tunes the engine's retry policy. Zero values fall back to the
// defaults above.
type Options struct {
	BusyRetries   int
	BusyBaseDelay time.Duration
	BusyMaxDelay  time.Duration
}

func (o Options) withDefaults() Options {
	if o.BusyRetries <= 0 {
		o.BusyRetries = DefaultBusyRetries
	}
	if o.BusyBaseDelay <= 0 {
		o.BusyBaseDelay = DefaultBusyBaseDelay
	}
	if o.BusyMaxDelay <= 0 {
		o.BusyMaxDelay = DefaultBusyMaxDelay
	}
	return o
}

type writeTask struct {
	fn   func(db *sql.DB) error
	done chan error
}

// Engine owns the single SQLite connection and the global write order.
// All mutations go through Write/WriteRetry; at most one write function runs
// at a time, FIFO across every caller. Reads may use DB() directly, WAL mode
// isolates them from the writer.
type Engine struct {
	db     *sql.DB
	path   string
	opts   Options
	logger *zap.Logger

	queue chan *writeTask
	idle  chan struct{} // closed when the consumer exits

	mu     sync.RWMutex
	closed bool
}

// Open opens the database at path, applies pragmas and all pending
// migrations, and starts the write consumer. Failures are wrapped in
// *InitError; the caller must not proceed on error.
func Open(path string, opts Options, logger *zap.Logger) (*Engine, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &InitError{Path: path, Err: fmt.Errorf("open db: %w", err)}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &InitError{Path: path, Err: fmt.Errorf("ping db: %w", err)}
	}

	e := &Engine{
		db:     db,
		path:   path,
		opts:   opts.withDefaults(),
		logger: logger,
		queue:  make(chan *writeTask, writeQueueDepth),
		idle:   make(chan struct{}),
	}

	result, err := e.migrate()
	if err != nil {
		_ = db.Close()
		return nil, &InitError{Path: path, Err: err}
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	}

	if err := e.setupSearchIndex(); err != nil {
		logger.Warn("full-text index unavailable, search will use substring scan", zap.Error(err))
	}

	go e.run()
	return e, nil
}

// DB exposes the connection for reads. Writers must go through Write.
func (e *Engine) DB() *sql.DB { return e.db }

func (e *Engine) run() {
	for t := range e.queue {
		t.done <- t.fn(e.db)
	}
	close(e.idle)
}

// Write submits fn to the serialized write queue and waits for its result.
// Writes execute in submission order, one at a time. ctx only bounds the
// wait: once enqueued, fn runs to completion regardless of cancellation.
func (e *Engine) Write(ctx context.Context, fn func(db *sql.DB) error) error {
	t := &writeTask{fn: fn, done: make(chan error, 1)}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	select {
	case e.queue <- t:
		e.mu.RUnlock()
	case <-ctx.Done():
		e.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteRetry is Write with the busy-retry policy applied to fn: transient
// lock errors are retried with exponential backoff, anything else fails
// immediately. Exhaustion surfaces as *BusyError.
func (e *Engine) WriteRetry(ctx context.Context, fn func(db *sql.DB) error) error {
	return e.Write(ctx, func(db *sql.DB) error {
		return e.withRetries(db, fn)
	})
}

func (e *Engine) withRetries(db *sql.DB, fn func(db *sql.DB) error) error {
	delay := e.opts.BusyBaseDelay
	var lastErr error
	for attempt := 1; attempt <= e.opts.BusyRetries; attempt++ {
		err := fn(db)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
		if attempt == e.opts.BusyRetries {
			break
		}
		e.logger.Warn("database busy, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))
		time.Sleep(delay)
		delay *= 2
		if delay > e.opts.BusyMaxDelay {
			delay = e.opts.BusyMaxDelay
		}
	}
	return &BusyError{Attempts: e.opts.BusyRetries, Err: lastErr}
}

// Flush waits until every write enqueued before the call has completed.
// The lifecycle notifier calls this before the application suspends so no
// write is torn mid-flight.
func (e *Engine) Flush(ctx context.Context) error {
	err := e.Write(ctx, func(*sql.DB) error { return nil })
	if err == ErrClosed {
		return nil
	}
	return err
}

// ClearAll deletes every row from every table in one transaction. Used only
// for full logout/reset.
func (e *Engine) ClearAll(ctx context.Context) error {
	return e.WriteRetry(ctx, func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, table := range []string{
			"messages", "conversations", "users", "outbox",
			"sync_state", "logs", "translations",
		} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return tx.Commit()
	})
}

// Close drains the write queue and closes the connection. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.queue)
	<-e.idle
	return e.db.Close()
}
