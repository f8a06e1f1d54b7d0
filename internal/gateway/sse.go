package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/agentcore/internal/events"
	"github.com/agentcore/agentcore/internal/observability"
	"github.com/agentcore/agentcore/internal/watcher"
)

// stream implements GET /api/chats/{chat_id}/messages/{message_id}/stream:
// parses the resume cursor, opens a Watcher, and writes one SSE frame per
// event until the stream ends.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("message_id")
	start := time.Now()

	since := parseSinceSeq(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	watcherID := uuid.NewString()
	if h.deps.Registry != nil {
		h.deps.Registry.RegisterWatcher(messageID, watcherID)
		defer h.deps.Registry.UnregisterWatcher(messageID, watcherID)
	}

	notify, sub := subscribeNotify(h.deps.Bus, messageID)
	if sub != nil {
		defer h.deps.Bus.Unsubscribe(sub)
	}
	// A nil *busNotify must not become a non-nil watcher.Subscription
	// interface value (the classic typed-nil gotcha), so only assign when
	// notify is genuinely present.
	var notifySub watcher.Subscription
	if notify != nil {
		notifySub = notify
	}

	ctx := r.Context()
	if h.deps.Tracer != nil {
		var span trace.Span
		ctx, span = observability.StartServerSpan(ctx, h.deps.Tracer, "agentcore.gateway.stream",
			observability.AttrMessageID.String(messageID),
			observability.AttrWatcherID.String(watcherID),
			observability.AttrSinceSeq.Int64(int64(since)),
		)
		defer span.End()
	}
	var tasks watcher.TaskLookup
	if h.deps.Registry != nil {
		tasks = h.deps.Registry
	}

	ch := watcher.Watch(ctx, h.deps.Store, tasks, messageID, since, watcher.Options{
		PollInterval: time.Duration(h.cfg.PollIntervalMS) * time.Millisecond,
		MaxWait:      time.Duration(h.cfg.WatcherMaxWaitS) * time.Second,
		Notify:       notifySub,
		Metrics:      h.deps.Metrics,
	})

	defer func() {
		if h.deps.Metrics != nil {
			h.deps.Metrics.SSEStreamDuration.Record(r.Context(), time.Since(start).Seconds(),
				metric.WithAttributes(observability.AttrMessageID.String(messageID)),
			)
		}
	}()

	for ev := range ch {
		if err := writeSSE(w, ev); err != nil {
			// Client gone; the deferred UnregisterWatcher above runs on
			// return, the underlying task is left running.
			return
		}
		flusher.Flush()
	}
}

// writeSSE renders one event in the wire format:
// "event: {type}\nid: {id}\ndata: {json}\n\n".
func writeSSE(w http.ResponseWriter, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", ev.Type, ev.ID, payload)
	return err
}

// parseSinceSeq resolves the resume cursor: Last-Event-ID wins over
// ?since=; either may be the event id form or a bare integer seq; a parse
// failure of either defaults to 0 rather than rejecting the request — a
// malformed Last-Event-ID should never turn into a 4xx.
func parseSinceSeq(r *http.Request) uint64 {
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		return parseCursor(v)
	}
	if v := r.URL.Query().Get("since"); v != "" {
		return parseCursor(v)
	}
	return 0
}

func parseCursor(raw string) uint64 {
	if seq, ok := events.ParseSeqFromID(raw); ok {
		return seq
	}
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return n
	}
	return 0
}
