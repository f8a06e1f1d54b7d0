package gateway

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/agentcore/agentcore/internal/watcher"
)

// ServeWS is an optional transport alongside SSE (naming only SSE,
// but the same Watcher can drive any duplex-capable protocol): GET
// /ws?message_id=...&since=... streams the same event sequence as the SSE
// endpoint, one JSON text frame per event, over a websocket connection.
func (h *handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	messageID := r.URL.Query().Get("message_id")
	if messageID == "" {
		http.Error(w, "message_id is required", http.StatusBadRequest)
		return
	}
	since := parseSinceSeq(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream ended")

	watcherID := uuid.NewString()
	if h.deps.Registry != nil {
		h.deps.Registry.RegisterWatcher(messageID, watcherID)
		defer h.deps.Registry.UnregisterWatcher(messageID, watcherID)
	}

	notify, sub := subscribeNotify(h.deps.Bus, messageID)
	if sub != nil {
		defer h.deps.Bus.Unsubscribe(sub)
	}
	var notifySub watcher.Subscription
	if notify != nil {
		notifySub = notify
	}

	ctx := r.Context()
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

	for ev := range ch {
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			return
		}
	}
}
