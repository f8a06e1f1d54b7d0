// Package executor implements the Agent Executor (C4): a single awaitable
// that runs one agent invocation to completion for a given message_id,
// capturing every observable event through the Emitter and persisting them
// in order through the Writer. It exposes no generator/yield interface —
// this is deliberate: a prior design that streamed events through a
// generator shared with the HTTP response let client disconnects propagate
// into the agent and kill work in progress.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/agentcore/internal/emitter"
	"github.com/agentcore/agentcore/internal/events"
	"github.com/agentcore/agentcore/internal/observability"
	"github.com/agentcore/agentcore/internal/shared"
	"github.com/agentcore/agentcore/internal/writer"
)

// drainPoll is how often the drain loop polls the Emitter.
const drainPoll = 10 * time.Millisecond

// heartbeatInterval is the default wall-clock gap after which a synthetic
// status heartbeat is written in the absence of agent-originated events.
// Overridable via Options.HeartbeatInterval (HEARTBEAT_INTERVAL_S).
const heartbeatInterval = 15 * time.Second

// Invocation is the external agent routine's shape: given a context (for
// best-effort cooperative cancellation inside the agent's own tool calls,
// not for terminating the executor itself) and an Emitter to write events
// into, run the agent for messageID and return. A non-nil error becomes the
// terminal `error` event.
type Invocation func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error

// Writer is the subset of *writer.Writer the executor depends on.
type Writer interface {
	Write(ctx context.Context, event events.Event) error
}

// SeqAllocator allocates the next seq for a message, implemented by
// *events.Store.
type SeqAllocator interface {
	AllocateSeq(ctx context.Context, messageID string) (uint64, error)
}

// Options configures one Run call.
type Options struct {
	HeartbeatInterval time.Duration
	Logger            *slog.Logger

	// Tracer and Metrics are optional; a nil Tracer skips span creation and a
	// nil Metrics skips instrument recording, so callers that don't wire
	// observability pay nothing beyond the nil checks.
	Tracer  trace.Tracer
	Metrics *observability.Metrics
}

// Result summarizes a finished run, used by the Registry to populate
// RunningTask.
type Result struct {
	Terminal  events.Type
	MSTotal   int64
	ToolCalls int
	Err       error
}

// Run executes invocation for messageID/chatID to completion: writes the
// start event, runs the agent routine and drain loop concurrently, and
// writes the terminal event before returning. Run
// itself performs no cancellation shielding — callers (the Registry) are
// responsible for invoking it with a context that outlives the caller's own
// request scope.
func Run(ctx context.Context, store SeqAllocator, w Writer, messageID, chatID string, invocation Invocation, opts Options) Result {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = heartbeatInterval
	}

	traceID := shared.NewTraceID()
	logger = logger.With("trace_id", traceID, "message_id", messageID)
	runCtx := shared.WithTraceID(ctx, traceID)

	var span trace.Span
	if opts.Tracer != nil {
		runCtx, span = observability.StartSpan(runCtx, opts.Tracer, "agentcore.executor.run",
			observability.AttrMessageID.String(messageID),
			observability.AttrChatID.String(chatID),
		)
		defer span.End()
	}
	if opts.Metrics != nil {
		opts.Metrics.TasksStarted.Add(ctx, 1)
		opts.Metrics.TasksActive.Add(ctx, 1)
		defer opts.Metrics.TasksActive.Add(ctx, -1)
	}

	em := emitter.New()
	runCtx = emitter.WithEmitter(runCtx, em)

	start := time.Now()
	writeEvent(ctx, store, w, messageID, chatID, events.Event{Type: events.TypeStart, Status: "processing"}, logger)

	agentDone := make(chan error, 1)
	go func() {
		agentDone <- runInvocationSafely(runCtx, invocation, messageID, chatID, em)
	}()

	toolCalls := 0
	lastActivity := time.Now()

	var agentErr error
	draining := true
	for draining {
		select {
		case agentErr = <-agentDone:
			draining = false
		default:
		}
		if !draining {
			break
		}

		ev, ok := em.Drain(drainPoll)
		if ok {
			if ev.Type == events.TypeToolEnd {
				toolCalls++
			}
			writeEvent(ctx, store, w, messageID, chatID, ev, logger)
			lastActivity = time.Now()
			continue
		}

		if time.Since(lastActivity) >= heartbeat {
			elapsed := int(time.Since(start).Seconds())
			writeEvent(ctx, store, w, messageID, chatID, events.Event{
				Type: events.TypeStatus,
				Text: fmt.Sprintf("Processing... (%ds elapsed)", elapsed),
			}, logger)
			lastActivity = time.Now()
		}
	}

	em.Close()
	for _, ev := range em.DrainAll() {
		if ev.Type == events.TypeToolEnd {
			toolCalls++
		}
		writeEvent(ctx, store, w, messageID, chatID, ev, logger)
	}

	msTotal := time.Since(start).Milliseconds()
	terminal := events.Event{
		Type:      events.TypeEnd,
		Status:    "completed",
		MSTotal:   msTotal,
		ToolCalls: toolCalls,
	}
	if agentErr != nil {
		terminal.Type = events.TypeError
		terminal.Error = agentErr.Error()
		if errors.Is(agentErr, context.Canceled) {
			terminal.Status = "interrupted"
		} else {
			terminal.Status = "error"
		}
	}
	if agentErr != nil && span != nil {
		span.RecordError(agentErr)
	}
	writeTerminalEvent(ctx, store, w, messageID, chatID, terminal, logger)

	if opts.Metrics != nil {
		opts.Metrics.TaskDuration.Record(ctx, float64(msTotal)/1000.0,
			metric.WithAttributes(observability.AttrMessageID.String(messageID)),
		)
	}

	return Result{Terminal: terminal.Type, MSTotal: msTotal, ToolCalls: toolCalls, Err: agentErr}
}

// runInvocationSafely converts a panic inside invocation into an error so
// a misbehaving agent routine can never take the executor down with it.
func runInvocationSafely(ctx context.Context, invocation Invocation, messageID, chatID string, em *emitter.Emitter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent routine panicked: %v", r)
		}
	}()
	return invocation(ctx, messageID, chatID, em)
}

func writeEvent(ctx context.Context, store SeqAllocator, w Writer, messageID, chatID string, ev events.Event, logger *slog.Logger) {
	stamped, err := stamp(ctx, store, messageID, chatID, ev)
	if err != nil {
		logger.Error("allocate seq failed, event dropped", "message_id", messageID, "type", ev.Type, "error", err)
		return
	}
	if err := w.Write(ctx, stamped); err != nil {
		logger.Error("event write failed", "message_id", messageID, "seq", stamped.Seq, "type", stamped.Type, "error", err)
	}
}

// writeTerminalEvent gives the terminal event an additional best-effort
// synchronous write attempt, failure semantics: persistence
// failure never interrupts the agent, but the terminal event gets one extra
// try before the executor returns.
func writeTerminalEvent(ctx context.Context, store SeqAllocator, w Writer, messageID, chatID string, ev events.Event, logger *slog.Logger) {
	stamped, err := stamp(ctx, store, messageID, chatID, ev)
	if err != nil {
		logger.Error("allocate seq for terminal event failed", "message_id", messageID, "error", err)
		return
	}
	if err := w.Write(ctx, stamped); err != nil {
		logger.Error("terminal event write failed, retrying synchronously", "message_id", messageID, "error", err)
		retryCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.Write(retryCtx, stamped); err != nil {
			logger.Error("terminal event write failed on retry", "message_id", messageID, "error", err)
		}
	}
}

func stamp(ctx context.Context, store SeqAllocator, messageID, chatID string, ev events.Event) (events.Event, error) {
	seq, err := store.AllocateSeq(ctx, messageID)
	if err != nil {
		return events.Event{}, fmt.Errorf("allocate seq: %w", err)
	}
	now := time.Now()
	id, err := events.NormalizeID(now, seq)
	if err != nil {
		return events.Event{}, fmt.Errorf("normalize id: %w", err)
	}
	ev.V = events.SchemaVersion
	ev.ID = id
	ev.TS = events.FormatTS(now)
	ev.MessageID = messageID
	ev.ChatID = chatID
	ev.Seq = seq
	return ev, nil
}
