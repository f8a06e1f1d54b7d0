package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/internal/agentapi"
)

type createMessageRequest struct {
	Content string `json:"content"`
}

type createMessageResponse struct {
	MessageID string `json:"message_id"`
	StreamURL string `json:"stream_url"`
}

// createMessage implements POST /api/chats/{chat_id}/messages:
// allocate a message_id, start the Executor under the Registry, and return
// immediately — before the agent has produced any event. Chat/message
// content persistence belongs to the product layer above this core; this
// handler only establishes the log's partition key and kicks off the run.
func (h *handlers) createMessage(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chat_id")

	var req createMessageRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	messageID := uuid.NewString()

	agentFn := h.deps.Agent
	if agentFn == nil {
		agentFn = func(prompt string) agentapi.Invocation { return agentapi.Echo(prompt) }
	}

	if h.deps.Registry != nil {
		h.deps.Registry.Start(r.Context(), messageID, chatID, agentFn(req.Content))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(createMessageResponse{
		MessageID: messageID,
		StreamURL: fmt.Sprintf("/api/chats/%s/messages/%s/stream", chatID, messageID),
	})
}
