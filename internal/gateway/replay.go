package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/agentcore/agentcore/internal/events"
)

// replay implements GET /api/messages/{message_id}/events?since=<event_id>:
// a synchronous, one-shot read of the persisted log, used as a debug/polling
// fallback, and to inspect a message's log after every watcher has
// disconnected.
func (h *handlers) replay(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("message_id")
	since := uint64(0)
	if v := r.URL.Query().Get("since"); v != "" {
		since = parseCursor(v)
	}

	batch, err := h.deps.Store.ReadSince(r.Context(), messageID, since, 0)
	if err != nil {
		http.Error(w, "failed to read event log", http.StatusInternalServerError)
		return
	}
	if batch == nil {
		batch = []events.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		MessageID string         `json:"message_id"`
		Events    []events.Event `json:"events"`
	}{MessageID: messageID, Events: batch})
}
