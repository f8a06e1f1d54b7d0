// Package emitter implements the Event Emitter (C3): an in-process,
// unbounded, FIFO queue that an agent routine writes observable events into,
// and that the Agent Executor drains in order. It does not persist anything
// itself; that is the Writer's job.
package emitter

import (
	"context"
	"sync"
	"time"

	"github.com/agentcore/agentcore/internal/events"
)

// Emitter is a single-producer-many/single-consumer FIFO queue scoped to one
// agent execution. Emit is safe to call from multiple goroutines (an agent
// routine may fan out into subagents that each emit concurrently); Drain is
// intended for the Executor's single drain loop only.
type Emitter struct {
	mu     sync.Mutex
	queue  []events.Event
	closed bool
}

// New returns a ready-to-use Emitter.
func New() *Emitter {
	return &Emitter{}
}

// pollInterval is how often Drain rechecks the queue while waiting for an
// event to arrive, matching the executor's own "poll the emitter with a
// short timeout" loop.
const pollInterval = 2 * time.Millisecond

// Emit enqueues a partial event non-blockingly. Callers are expected to have
// filled in every payload field except V, ID, TS, Seq and MessageID, which
// the Writer stamps at persist time.
func (e *Emitter) Emit(event events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.queue = append(e.queue, event)
}

// Drain waits up to timeout for the next queued event, polling at
// pollInterval. It returns (event, true) if one became available, or
// (zero, false) on timeout. Intended to be called in a tight loop by the
// Executor's drain loop.
func (e *Emitter) Drain(timeout time.Duration) (events.Event, bool) {
	deadline := time.Now().Add(timeout)

	for {
		if ev, ok := e.tryDequeue(); ok {
			return ev, true
		}
		if time.Now().After(deadline) {
			return events.Event{}, false
		}
		time.Sleep(pollInterval)
	}
}

func (e *Emitter) tryDequeue() (events.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return events.Event{}, false
	}
	next := e.queue[0]
	e.queue = e.queue[1:]
	return next, true
}

// DrainAll removes and returns every currently queued event without
// blocking, used by the Executor once the agent routine has finished.
func (e *Emitter) DrainAll() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.queue
	e.queue = nil
	return out
}

// Close marks the emitter as no longer accepting events. Called once the
// Executor has finished draining.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

type ambientKey struct{}

// WithEmitter installs e as the current emitter for ctx, the mechanism by
// which agent-internal instrumentation (tool hooks, planning hooks, content
// streaming hooks) locates the active Emitter without explicit plumbing
// through every call.
func WithEmitter(ctx context.Context, e *Emitter) context.Context {
	return context.WithValue(ctx, ambientKey{}, e)
}

// Current returns the Emitter installed on ctx by WithEmitter, or nil if
// none is present.
func Current(ctx context.Context) *Emitter {
	e, _ := ctx.Value(ambientKey{}).(*Emitter)
	return e
}
