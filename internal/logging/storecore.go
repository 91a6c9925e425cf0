package logging

import (
	"context"
	"sync/atomic"

	"github.com/lfreitas/syncbox/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type record struct {
	level    string
	category string
	message  string
	metadata map[string]any
}

// StoreCore mirrors warn-and-above log records into the diagnostic logs
// table. Appends run on their own goroutine: the logs repository writes
// through the engine's serialized queue, and a record emitted from inside a
// write function must not wait on that same queue. Records are dropped when
// the buffer is full or after Close.
type StoreCore struct {
	zapcore.LevelEnabler
	sink   *storeSink
	fields []zapcore.Field
}

// storeSink is the shared append goroutine; clones produced by With all
// write into the same sink.
type storeSink struct {
	logs   *store.Logs
	ch     chan record
	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewStoreCore creates the mirror core over the logs repository. Callers own
// the core and must Close it before shutting down the store engine.
func NewStoreCore(logs *store.Logs) *StoreCore {
	s := &storeSink{
		logs: logs,
		ch:   make(chan record, 128),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.loop()
	return &StoreCore{
		LevelEnabler: zapcore.WarnLevel,
		sink:         s,
	}
}

// WithStore tees warn-and-above records from logger into core's logs table.
func WithStore(logger *zap.Logger, core *StoreCore) *zap.Logger {
	return logger.WithOptions(zap.WrapCore(func(inner zapcore.Core) zapcore.Core {
		return zapcore.NewTee(inner, core)
	}))
}

// Close stops the append goroutine after draining buffered records. Records
// written after Close are dropped.
func (c *StoreCore) Close() {
	if c.sink.closed.Swap(true) {
		return
	}
	close(c.sink.quit)
	<-c.sink.done
}

func (s *storeSink) loop() {
	defer close(s.done)
	for {
		select {
		case r := <-s.ch:
			_ = s.logs.Append(context.Background(), r.level, r.category, r.message, r.metadata)
		case <-s.quit:
			for {
				select {
				case r := <-s.ch:
					_ = s.logs.Append(context.Background(), r.level, r.category, r.message, r.metadata)
				default:
					return
				}
			}
		}
	}
}

func (c *StoreCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return &clone
}

func (c *StoreCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *StoreCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if c.sink.closed.Load() {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	category := ent.LoggerName
	if cat, ok := enc.Fields["category"].(string); ok {
		category = cat
		delete(enc.Fields, "category")
	}

	select {
	case c.sink.ch <- record{
		level:    ent.Level.String(),
		category: category,
		message:  ent.Message,
		metadata: enc.Fields,
	}:
	default:
	}
	return nil
}

func (c *StoreCore) Sync() error { return nil }
