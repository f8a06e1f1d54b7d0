package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/internal/emitter"
	"github.com/agentcore/agentcore/internal/events"
)

type fakeSeqAllocator struct {
	mu   sync.Mutex
	next map[string]uint64
}

func newFakeSeqAllocator() *fakeSeqAllocator {
	return &fakeSeqAllocator{next: make(map[string]uint64)}
}

func (f *fakeSeqAllocator) AllocateSeq(ctx context.Context, messageID string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next[messageID]++
	return f.next[messageID], nil
}

type fakeWriter struct {
	mu      sync.Mutex
	written []events.Event
}

func (f *fakeWriter) Write(ctx context.Context, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, event)
	return nil
}

func (f *fakeWriter) events() []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Event, len(f.written))
	copy(out, f.written)
	return out
}

func TestRun_HappyPathWritesStartAndEnd(t *testing.T) {
	store := newFakeSeqAllocator()
	w := &fakeWriter{}

	invocation := func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error {
		em.Emit(events.Event{Type: events.TypeThinking, Text: "working"})
		em.Emit(events.Event{Type: events.TypeContent, MD: "hello"})
		return nil
	}

	result := Run(context.Background(), store, w, "m1", "c1", invocation, Options{})
	require.NoError(t, result.Err)
	require.Equal(t, events.TypeEnd, result.Terminal)

	written := w.events()
	require.GreaterOrEqual(t, len(written), 4)
	require.Equal(t, events.TypeStart, written[0].Type)
	require.Equal(t, "processing", written[0].Status)
	require.Equal(t, events.TypeEnd, written[len(written)-1].Type)
	require.Equal(t, "completed", written[len(written)-1].Status)

	for i, ev := range written {
		require.Equal(t, uint64(i+1), ev.Seq)
		require.Equal(t, events.SchemaVersion, ev.V)
		require.Equal(t, "m1", ev.MessageID)
	}
}

func TestRun_AgentErrorBecomesTerminalErrorEvent(t *testing.T) {
	store := newFakeSeqAllocator()
	w := &fakeWriter{}

	invocation := func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error {
		return errors.New("boom")
	}

	result := Run(context.Background(), store, w, "m1", "c1", invocation, Options{})
	require.Error(t, result.Err)
	require.Equal(t, events.TypeError, result.Terminal)

	written := w.events()
	last := written[len(written)-1]
	require.Equal(t, events.TypeError, last.Type)
	require.Equal(t, "error", last.Status)
	require.Equal(t, "boom", last.Error)
}

func TestRun_CanceledInvocationErrorBecomesInterruptedStatus(t *testing.T) {
	store := newFakeSeqAllocator()
	w := &fakeWriter{}

	invocation := func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error {
		return context.Canceled
	}

	result := Run(context.Background(), store, w, "m1", "c1", invocation, Options{})
	require.Error(t, result.Err)
	require.Equal(t, events.TypeError, result.Terminal)

	last := w.events()[len(w.events())-1]
	require.Equal(t, "interrupted", last.Status)
}

func TestRun_PanicInsideInvocationBecomesErrorEvent(t *testing.T) {
	store := newFakeSeqAllocator()
	w := &fakeWriter{}

	invocation := func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error {
		panic("kaboom")
	}

	result := Run(context.Background(), store, w, "m1", "c1", invocation, Options{})
	require.Error(t, result.Err)
	require.Equal(t, events.TypeError, result.Terminal)
	require.Contains(t, result.Err.Error(), "kaboom")
}

func TestRun_ExactlyOneTerminalEvent(t *testing.T) {
	store := newFakeSeqAllocator()
	w := &fakeWriter{}

	invocation := func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error {
		for i := 0; i < 5; i++ {
			em.Emit(events.Event{Type: events.TypeThinking})
		}
		return nil
	}

	Run(context.Background(), store, w, "m1", "c1", invocation, Options{})

	terminals := 0
	for _, ev := range w.events() {
		if ev.Type.IsTerminal() {
			terminals++
		}
	}
	require.Equal(t, 1, terminals)
}

func TestRun_HeartbeatWrittenWhenAgentIsSlowAndIdle(t *testing.T) {
	store := newFakeSeqAllocator()
	w := &fakeWriter{}

	invocation := func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error {
		time.Sleep(60 * time.Millisecond)
		return nil
	}

	Run(context.Background(), store, w, "m1", "c1", invocation, Options{HeartbeatInterval: 20 * time.Millisecond})

	sawHeartbeat := false
	for _, ev := range w.events() {
		if ev.Type == events.TypeStatus {
			sawHeartbeat = true
		}
	}
	require.True(t, sawHeartbeat)
}

func TestRun_CancellationOfOuterContextDoesNotStopRun(t *testing.T) {
	store := newFakeSeqAllocator()
	w := &fakeWriter{}

	invocation := func(ctx context.Context, messageID, chatID string, em *emitter.Emitter) error {
		time.Sleep(30 * time.Millisecond)
		em.Emit(events.Event{Type: events.TypeContent, MD: "done"})
		return nil
	}

	// Run is given a context already detached from any caller deadline, as
	// the Registry is expected to do — Run itself applies no shielding.
	detached := context.Background()
	result := Run(detached, store, w, "m1", "c1", invocation, Options{})
	require.Equal(t, events.TypeEnd, result.Terminal)
}
