// Package registry implements the Task Registry (C5): a process-wide map
// from message_id to RunningTask, responsible for starting the Agent
// Executor under a cancellation shield, tracking which watchers are
// currently attached to a task, and garbage-collecting completed tasks.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/agentcore/internal/audit"
	"github.com/agentcore/agentcore/internal/events"
	"github.com/agentcore/agentcore/internal/executor"
	"github.com/agentcore/agentcore/internal/observability"
)

// RunningTask is the registry's record of one in-flight (or recently
// completed) agent execution. MessageID, ChatID, and StartedAt are set once
// at construction and never mutated afterward, so they are safe to read
// without a lock; completed/completedAt/result/watchers are mutated from the
// background goroutine Start spawns and read concurrently from List/Get
// callers, so every access to them goes through mu.
type RunningTask struct {
	MessageID string
	ChatID    string
	StartedAt time.Time

	mu          sync.Mutex
	completed   bool
	completedAt time.Time
	result      executor.Result
	watchers    map[string]struct{}

	abort context.CancelFunc
}

// Watchers returns a snapshot of the watcher ids currently registered
// against this task.
func (t *RunningTask) Watchers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.watchers))
	for id := range t.watchers {
		out = append(out, id)
	}
	return out
}

// Completed reports whether the task has reached a terminal state.
func (t *RunningTask) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// CompletedAt returns the time the task reached a terminal state. Zero if
// still running.
func (t *RunningTask) CompletedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completedAt
}

// Result returns the executor.Result recorded when the task completed. Zero
// value if still running.
func (t *RunningTask) Result() executor.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Snapshot returns completed/completedAt/result together under a single
// lock, for callers (GC, the gateway's active-agents handler) that need a
// consistent view rather than three independent reads.
func (t *RunningTask) Snapshot() (completed bool, completedAt time.Time, result executor.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.completedAt, t.result
}

func (t *RunningTask) markCompleted(result executor.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = true
	t.completedAt = time.Now()
	t.result = result
}

func (t *RunningTask) addWatcher(watcherID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watchers[watcherID] = struct{}{}
}

func (t *RunningTask) removeWatcher(watcherID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.watchers, watcherID)
}

// Writer is the subset of *writer.Writer the executor needs.
type Writer interface {
	Write(ctx context.Context, event events.Event) error
}

// SeqAllocator is the subset of *events.Store the executor needs.
type SeqAllocator interface {
	AllocateSeq(ctx context.Context, messageID string) (uint64, error)
}

// Notifier is implemented by *bus.Bus; the registry publishes a
// "task.completed" event so watchers using a notify-driven poll can wake
// immediately instead of waiting out their next tick (allowance
// for a pub/sub substitute for raw polling).
type Notifier interface {
	Publish(topic string, payload interface{})
}

const topicTaskCompleted = "task.completed"

// Registry owns the process-wide message_id -> RunningTask map.
type Registry struct {
	store             SeqAllocator
	writer            Writer
	notifier          Notifier
	logger            *slog.Logger
	heartbeatInterval time.Duration
	tracer            trace.Tracer
	metrics           *observability.Metrics

	mu    sync.Mutex
	tasks map[string]*RunningTask
}

// New builds a Registry. notifier may be nil, in which case watchers fall
// back to plain polling.
func New(store SeqAllocator, w Writer, notifier Notifier, heartbeatInterval time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:             store,
		writer:            w,
		notifier:          notifier,
		logger:            logger,
		heartbeatInterval: heartbeatInterval,
		tasks:             make(map[string]*RunningTask),
	}
}

// SetObservability wires a tracer and metrics into every Executor run the
// Registry subsequently starts. Optional: an unset Registry runs with no
// spans or instrument recording.
func (r *Registry) SetObservability(tracer trace.Tracer, metrics *observability.Metrics) {
	r.tracer = tracer
	r.metrics = metrics
}

// Start creates a RunningTask for messageID if none exists, spawns the
// Executor under a cancellation shield, and returns immediately. Idempotent
// on messageID: a second call while the task is running or already
// completed is a no-op.
func (r *Registry) Start(ctx context.Context, messageID, chatID string, invocation executor.Invocation) {
	r.mu.Lock()
	if _, exists := r.tasks[messageID]; exists {
		r.mu.Unlock()
		return
	}
	// Shield: derive from ctx's values but not its cancellation, so the
	// caller's HTTP handler returning (or its request context expiring)
	// never tears down the run. Only Abort may cancel shieldCtx.
	shieldCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	task := &RunningTask{
		MessageID: messageID,
		ChatID:    chatID,
		StartedAt: time.Now(),
		watchers:  make(map[string]struct{}),
		abort:     abort,
	}
	r.tasks[messageID] = task
	r.mu.Unlock()

	go func() {
		defer abort()
		result := executor.Run(shieldCtx, r.store, r.writer, messageID, chatID, invocation, executor.Options{
			HeartbeatInterval: r.heartbeatInterval,
			Logger:            r.logger,
			Tracer:            r.tracer,
			Metrics:           r.metrics,
		})

		task.markCompleted(result)

		if r.notifier != nil {
			r.notifier.Publish(topicTaskCompleted, map[string]any{"message_id": messageID})
		}
	}()
}

// IsRunning reports whether messageID has a RunningTask that has not yet
// completed.
func (r *Registry) IsRunning(messageID string) bool {
	r.mu.Lock()
	t, ok := r.tasks[messageID]
	r.mu.Unlock()
	return ok && !t.Completed()
}

// Get returns the RunningTask for messageID, or (nil, false) if none exists.
func (r *Registry) Get(messageID string) (*RunningTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[messageID]
	return t, ok
}

// Filter narrows List's results. A zero-value Filter matches every task.
type Filter struct {
	OnlyRunning bool
	ChatID      string
}

// List returns every RunningTask matching filter.
func (r *Registry) List(filter Filter) []*RunningTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*RunningTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		if filter.OnlyRunning && t.Completed() {
			continue
		}
		if filter.ChatID != "" && t.ChatID != filter.ChatID {
			continue
		}
		out = append(out, t)
	}
	return out
}

// RegisterWatcher records that watcherID is attached to messageID's stream.
// A no-op if the task is unknown (a watcher may race ahead of Start on a
// message that is still being created upstream).
func (r *Registry) RegisterWatcher(messageID, watcherID string) {
	r.mu.Lock()
	t, ok := r.tasks[messageID]
	r.mu.Unlock()
	if ok {
		t.addWatcher(watcherID)
	}
}

// UnregisterWatcher removes watcherID from messageID's watcher set. It never
// aborts the underlying task: a watcher disconnecting only unregisters, it
// does not abort the run.
func (r *Registry) UnregisterWatcher(messageID, watcherID string) {
	r.mu.Lock()
	t, ok := r.tasks[messageID]
	r.mu.Unlock()
	if ok {
		t.removeWatcher(watcherID)
	}
}

// Abort forcibly cancels a running task's shield context, reserved for
// administrative use. Even then the
// executor's own logic writes a terminal event before exiting; Abort merely
// unblocks whatever the agent routine is doing.
func (r *Registry) Abort(messageID string) error {
	r.mu.Lock()
	t, ok := r.tasks[messageID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("registry: no task for message_id=%s", messageID)
	}
	t.abort()
	r.logger.Warn("administrative abort issued", "message_id", messageID)
	audit.Record("abort", messageID, "administrative abort", "")
	return nil
}

// GC removes completed RunningTasks whose completion is older than maxAge.
// Returns how many were evicted. Intended to be invoked periodically by the
// sweep scheduler.
func (r *Registry) GC(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, t := range r.tasks {
		completed, completedAt, _ := t.Snapshot()
		if completed && completedAt.Before(cutoff) {
			delete(r.tasks, id)
			evicted++
			audit.Record("gc_evict", id, "completed task past max age", "")
		}
	}
	if evicted > 0 {
		r.logger.Info("registry gc evicted completed tasks", "count", evicted)
		if r.metrics != nil {
			r.metrics.RegistryGCEvicted.Add(context.Background(), int64(evicted))
		}
	}
	return evicted
}

// Len returns the number of tasks currently tracked, including completed
// ones not yet garbage-collected.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// runningCount returns the number of tasks that have not yet completed.
func (r *Registry) runningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks {
		if !t.Completed() {
			n++
		}
	}
	return n
}

// DrainAll waits for every currently-running task to reach a terminal state,
// up to timeout, for use during graceful shutdown: in-flight tasks are never
// aborted on shutdown, only waited out. Tasks still running when timeout
// elapses keep running in the background; the process exits without waiting
// further for them.
func (r *Registry) DrainAll(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		remaining := r.runningCount()
		if remaining == 0 {
			audit.Record("shutdown_drain", "", "all tasks completed before timeout", "")
			return
		}
		if time.Now().After(deadline) {
			r.logger.Warn("shutdown drain timed out", "still_running", remaining)
			audit.Record("shutdown_drain", "", fmt.Sprintf("timed out with %d task(s) still running", remaining), "")
			return
		}
		<-ticker.C
	}
}
