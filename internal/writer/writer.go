// Package writer implements the Robust Writer (C2): a thin layer in front
// of the Event Store that retries transient failures on a fixed backoff
// schedule and, if every retry is exhausted, spills the event into a
// bounded in-memory fallback queue instead of losing it outright.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentcore/agentcore/internal/events"
)

// ErrFallbackFull is returned when a write fails every retry and the
// fallback queue has no spare capacity.
var ErrFallbackFull = errors.New("writer: fallback queue full, event dropped")

// Store is the subset of *events.Store the writer depends on, named here so
// tests can substitute a faulty stand-in.
type Store interface {
	AllocateSeq(ctx context.Context, messageID string) (uint64, error)
	Append(ctx context.Context, event events.Event) error
}

// Validator checks an event's shape before it is persisted. Satisfied by
// *schemacheck.Validator; kept as a narrow interface here so the writer
// doesn't force every caller to depend on schemacheck.
type Validator interface {
	Validate(ev events.Event) error
}

// Writer retries Store.Append on the configured backoff schedule and queues
// exhausted writes for later redrain.
type Writer struct {
	store     Store
	schedule  []time.Duration
	logger    *slog.Logger
	validator Validator

	mu       sync.Mutex
	fallback []events.Event
	capacity int

	dropped int64
}

// New builds a Writer backed by store. schedule is the ordered list of
// delays between retries (e.g. 100ms, 200ms, 400ms per WRITER_RETRY_SCHEDULE_MS);
// capacity bounds the fallback queue (WRITER_FALLBACK_CAPACITY).
func New(store Store, schedule []time.Duration, capacity int, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 1024
	}
	return &Writer{
		store:    store,
		schedule: schedule,
		logger:   logger,
		capacity: capacity,
	}
}

// SetValidator installs a schema validator. A malformed event is rejected
// before it ever reaches the retry/fallback path — it's a programming error
// in the agent routine, not a transient store failure, so it is never
// retried and never queued.
func (w *Writer) SetValidator(v Validator) {
	w.validator = v
}

// isTransient classifies an error as worth retrying. sqlite busy/locked
// errors surface as plain strings from the driver rather than typed
// sentinels, so this mirrors the store's own isBusy heuristic plus
// context-deadline errors, which are transient by definition.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, needle := range []string{"database is locked", "SQLITE_BUSY", "busy"} {
		if contains(msg, needle) {
			return true
		}
	}
	return false
}

func contains(haystack, needle string) bool {
	return len(needle) > 0 && (len(haystack) >= len(needle)) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// Write appends event, retrying on transient failure per the backoff
// schedule. On exhaustion it spills into the fallback queue and returns nil
// unless that queue is also full, in which case it returns ErrFallbackFull
// and the event is lost. A non-transient error (e.g.
// ErrConflict) returns immediately without retrying or queuing.
func (w *Writer) Write(ctx context.Context, event events.Event) error {
	if w.validator != nil {
		if err := w.validator.Validate(event); err != nil {
			return fmt.Errorf("writer: rejecting malformed event: %w", err)
		}
	}

	err := w.store.Append(ctx, event)
	if err == nil {
		return nil
	}
	if !isTransient(err) {
		return err
	}

	for attempt, delay := range w.schedule {
		select {
		case <-ctx.Done():
			return w.enqueueFallback(event, ctx.Err())
		case <-time.After(delay):
		}
		err = w.store.Append(ctx, event)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		w.logger.Warn("event write retry failed", "message_id", event.MessageID, "seq", event.Seq, "attempt", attempt+1, "error", err)
	}

	return w.enqueueFallback(event, err)
}

func (w *Writer) enqueueFallback(event events.Event, cause error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.fallback) >= w.capacity {
		w.dropped++
		w.logger.Error("fallback queue full, dropping event", "message_id", event.MessageID, "seq", event.Seq, "cause", cause, "dropped_total", w.dropped)
		return fmt.Errorf("%w: message_id=%s seq=%d", ErrFallbackFull, event.MessageID, event.Seq)
	}
	w.fallback = append(w.fallback, event)
	w.logger.Warn("event spilled to fallback queue", "message_id", event.MessageID, "seq", event.Seq, "queue_depth", len(w.fallback), "cause", cause)
	return nil
}

// Redrain attempts to flush every event currently in the fallback queue
// back into the store, in FIFO order, stopping at the first failure and
// leaving the remainder queued. Intended to be called periodically by the
// sweep scheduler.
func (w *Writer) Redrain(ctx context.Context) (drained int, err error) {
	w.mu.Lock()
	pending := w.fallback
	w.fallback = nil
	w.mu.Unlock()

	for i, event := range pending {
		if werr := w.store.Append(ctx, event); werr != nil && !errors.Is(werr, events.ErrConflict) {
			w.mu.Lock()
			w.fallback = append(w.fallback, pending[i:]...)
			w.mu.Unlock()
			return drained, fmt.Errorf("redrain stopped at message_id=%s seq=%d: %w", event.MessageID, event.Seq, werr)
		}
		drained++
	}
	return drained, nil
}

// FallbackDepth reports how many events are currently queued, used by
// /healthz and operator tooling.
func (w *Writer) FallbackDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.fallback)
}

// Dropped reports the cumulative count of events lost to a full fallback
// queue, surfaced as an otel counter by the observability package.
func (w *Writer) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}
