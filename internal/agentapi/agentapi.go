// Package agentapi defines the boundary between agentcore's execution core
// and the external agent reasoning engine — the LLM-backed planning, tool
// execution, and subagent orchestration that actually decides what to do.
// agentcore treats that engine as a pluggable collaborator it never
// implements: this package only names the shape a concrete engine must
// conform to, plus a couple of deterministic stand-ins used by tests and
// local smoke-checks.
package agentapi

import (
	"context"
	"fmt"
	"time"

	"github.com/agentcore/agentcore/internal/emitter"
	"github.com/agentcore/agentcore/internal/events"
	"github.com/agentcore/agentcore/internal/executor"
)

// Invocation is an alias for executor.Invocation, re-exported here so
// callers wiring an agent implementation only need to import this package.
type Invocation = executor.Invocation

// Echo returns an Invocation that emits a single content event containing
// prompt, then a terminal end. Useful for exercising the full C1-C7 chain
// without a real reasoning engine attached — the default used by
// cmd/agentcored when no external agent is configured.
func Echo(prompt string) Invocation {
	return func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error {
		em.Emit(events.Event{Type: events.TypeContentStart})
		em.Emit(events.Event{Type: events.TypeContent, MD: prompt})
		em.Emit(events.Event{Type: events.TypeContentEnd})
		return nil
	}
}

// Scripted returns an Invocation that emits a fixed sequence of events with
// a small delay between each, then returns. Used by integration tests that
// need to exercise the drain loop's heartbeat and ordering guarantees
// without depending on wall-clock-sensitive real agent behavior.
func Scripted(step time.Duration, events_ []events.Event) Invocation {
	return func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error {
		for _, ev := range events_ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step):
			}
			em.Emit(ev)
		}
		return nil
	}
}

// Failing returns an Invocation that always fails with msg, used to
// exercise the executor's error-terminal path.
func Failing(msg string) Invocation {
	return func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error {
		return fmt.Errorf("agentapi: scripted failure: %s", msg)
	}
}
