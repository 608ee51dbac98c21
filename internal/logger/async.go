package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes buffered records and stops background log workers.
type Closer interface {
	Close()
}

// nopCloser is the Closer for synchronous mode, where there is no buffer.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log writes from request goroutines: records are
// handed to a bounded queue and written by workers. The request context does
// not survive the handoff, so Handle stamps the request and tenant ids onto
// the record before enqueueing. When the queue is full the record is dropped
// instead of blocking the request; Close reports the total dropped.
type AsyncHandler struct {
	inner slog.Handler
	q     *logQueue
}

// logQueue is shared by every WithAttrs/WithGroup clone of an AsyncHandler,
// so one worker pool serves the whole handler tree and one Close drains it.
type logQueue struct {
	ch      chan queuedRecord
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// queuedRecord pairs a record with the handler clone whose attributes and
// groups apply to it.
type queuedRecord struct {
	h   slog.Handler
	rec slog.Record
}

// NewAsyncHandler creates an AsyncHandler over inner with the given queue
// depth and worker count. Non-positive arguments fall back to sane minimums.
func NewAsyncHandler(inner slog.Handler, depth, workers int) *AsyncHandler {
	if depth <= 0 {
		depth = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	q := &logQueue{ch: make(chan queuedRecord, depth)}
	for range workers {
		q.wg.Add(1)
		go q.run()
	}
	return &AsyncHandler{inner: inner, q: q}
}

func (q *logQueue) run() {
	defer q.wg.Done()
	for item := range q.ch {
		_ = item.h.Handle(context.Background(), item.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle stamps the context attributes and enqueues the record. A saturated
// queue drops the record and counts it; request paths never block on logging.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	rec.AddAttrs(contextAttrs(ctx)...)
	select {
	case h.q.ch <- queuedRecord{h: h.inner, rec: rec}:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a clone wrapping the attributed inner handler. The clone
// shares the queue and workers with its parent.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), q: h.q}
}

// WithGroup returns a clone wrapping the grouped inner handler, sharing the
// queue and workers.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), q: h.q}
}

// DroppedCount returns the number of records dropped on a saturated queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.q.dropped.Load()
}

// Close drains the queue and stops the workers. Dropped records are gone,
// but their count still reaches the log stream as a final warning written
// synchronously through the inner handler.
func (h *AsyncHandler) Close() {
	close(h.q.ch)
	h.q.wg.Wait()

	if n := h.q.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), rec)
	}
}
