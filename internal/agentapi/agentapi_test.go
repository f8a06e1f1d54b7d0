package agentapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/internal/emitter"
	"github.com/agentcore/agentcore/internal/events"
)

func TestEcho_EmitsContentThenReturns(t *testing.T) {
	em := emitter.New()
	err := Echo("hello")(context.Background(), "m1", "c1", em)
	require.NoError(t, err)

	all := em.DrainAll()
	require.Len(t, all, 3)
	require.Equal(t, events.TypeContentStart, all[0].Type)
	require.Equal(t, "hello", all[1].MD)
	require.Equal(t, events.TypeContentEnd, all[2].Type)
}

func TestScripted_EmitsEventsInOrder(t *testing.T) {
	em := emitter.New()
	script := []events.Event{
		{Type: events.TypeThinking, Text: "a"},
		{Type: events.TypeThinking, Text: "b"},
	}
	err := Scripted(5*time.Millisecond, script)(context.Background(), "m1", "c1", em)
	require.NoError(t, err)

	all := em.DrainAll()
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].Text)
	require.Equal(t, "b", all[1].Text)
}

func TestScripted_StopsOnCancellation(t *testing.T) {
	em := emitter.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	script := []events.Event{{Type: events.TypeThinking}}
	err := Scripted(time.Second, script)(ctx, "m1", "c1", em)
	require.Error(t, err)
}

func TestFailing_AlwaysReturnsError(t *testing.T) {
	em := emitter.New()
	err := Failing("boom")(context.Background(), "m1", "c1", em)
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}
