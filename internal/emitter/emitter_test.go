package emitter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/internal/events"
)

func TestEmitDrain_PreservesFIFOOrder(t *testing.T) {
	e := New()
	e.Emit(events.Event{Type: events.TypeThinking, Text: "a"})
	e.Emit(events.Event{Type: events.TypeThinking, Text: "b"})
	e.Emit(events.Event{Type: events.TypeThinking, Text: "c"})

	for _, want := range []string{"a", "b", "c"} {
		ev, ok := e.Drain(50 * time.Millisecond)
		require.True(t, ok)
		require.Equal(t, want, ev.Text)
	}
}

func TestDrain_TimesOutOnEmptyQueue(t *testing.T) {
	e := New()
	start := time.Now()
	_, ok := e.Drain(20 * time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDrain_ReturnsAsSoonAsEventArrives(t *testing.T) {
	e := New()
	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Emit(events.Event{Type: events.TypeStatus})
	}()

	ev, ok := e.Drain(500 * time.Millisecond)
	require.True(t, ok)
	require.Equal(t, events.TypeStatus, ev.Type)
}

func TestDrainAll_ReturnsEverythingQueued(t *testing.T) {
	e := New()
	e.Emit(events.Event{Type: events.TypeToolStart})
	e.Emit(events.Event{Type: events.TypeToolEnd})

	all := e.DrainAll()
	require.Len(t, all, 2)

	_, ok := e.Drain(5 * time.Millisecond)
	require.False(t, ok)
}

func TestEmit_ConcurrentProducersPreserveAllEvents(t *testing.T) {
	e := New()
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			e.Emit(events.Event{Type: events.TypeThinking})
		}(i)
	}
	wg.Wait()

	all := e.DrainAll()
	require.Len(t, all, n)
}

func TestEmit_NoopAfterClose(t *testing.T) {
	e := New()
	e.Close()
	e.Emit(events.Event{Type: events.TypeStatus})
	_, ok := e.Drain(5 * time.Millisecond)
	require.False(t, ok)
}

func TestAmbientContext_CurrentReturnsInstalledEmitter(t *testing.T) {
	e := New()
	ctx := WithEmitter(context.Background(), e)
	require.Same(t, e, Current(ctx))
}

func TestAmbientContext_CurrentNilWhenUnset(t *testing.T) {
	require.Nil(t, Current(context.Background()))
}
