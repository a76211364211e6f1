// Package logger configures the process-wide structured logger and provides
// an async handler for diagnostic output that must never block a hot path
// (model download progress, idle-unload notices).
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Options controls the process logger.
type Options struct {
	Level string // "debug", "info", "warn", "error"
	Async bool
}

// New builds the process slog.Logger from Options. Unknown levels fall back
// to info.
func New(opts Options) *slog.Logger {
	var level slog.Level
	switch opts.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.Handler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if opts.Async {
		handler = NewAsyncHandler(handler, 1024, 1)
	}
	return slog.New(handler)
}

// AsyncHandler wraps an slog.Handler with a buffered channel and worker pool
// so logging (in particular download-progress and idle-unload chatter) never
// blocks the goroutine that produced it. Records are dropped, not buffered
// unboundedly, once the channel fills.
type AsyncHandler struct {
	inner   slog.Handler
	ch      chan slog.Record
	wg      *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler creates an AsyncHandler with the given channel capacity and
// worker count.
func NewAsyncHandler(inner slog.Handler, chanSize, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		ch:      make(chan slog.Record, chanSize),
		wg:      &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	for range workers {
		h.wg.Add(1)
		go h.drain()
	}
	return h
}

func (h *AsyncHandler) drain() {
	defer h.wg.Done()
	for rec := range h.ch {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it if the channel is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler requires value receiver
	select {
	case h.ch <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a new AsyncHandler sharing the same channel.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), ch: h.ch, wg: h.wg, dropped: h.dropped}
}

// WithGroup returns a new AsyncHandler sharing the same channel.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), ch: h.ch, wg: h.wg, dropped: h.dropped}
}

// Dropped returns the number of records discarded because the channel was
// full.
func (h *AsyncHandler) Dropped() int64 {
	return h.dropped.Load()
}
