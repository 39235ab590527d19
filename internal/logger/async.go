package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a handler on shutdown.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from log writing. Verdict and
// transition logging sit on the decision path, so Handle never blocks:
// records queue onto a buffered channel that worker goroutines drain,
// and a full queue sheds the record rather than stalling the caller.
type AsyncHandler struct {
	inner slog.Handler
	queue chan slog.Record
	wg    *sync.WaitGroup
	shed  *atomic.Int64
}

// NewAsyncHandler wraps inner with a queue of the given capacity
// drained by the given number of workers.
func NewAsyncHandler(inner slog.Handler, capacity, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner: inner,
		queue: make(chan slog.Record, capacity),
		wg:    &sync.WaitGroup{},
		shed:  &atomic.Int64{},
	}
	for range workers {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for rec := range h.queue {
				_ = h.inner.Handle(context.Background(), rec)
			}
		}()
	}
	return h
}

// Enabled delegates to the wrapped handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, shedding it when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.shed.Add(1)
	}
	return nil
}

// WithAttrs derives a handler over the same queue and workers.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), queue: h.queue, wg: h.wg, shed: h.shed}
}

// WithGroup derives a handler over the same queue and workers.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), queue: h.queue, wg: h.wg, shed: h.shed}
}

// DroppedCount reports how many records were shed under backpressure.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.shed.Load()
}

// Close stops accepting records and blocks until the workers have
// drained everything already queued.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.wg.Wait()
}
