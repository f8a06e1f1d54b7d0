package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentcore/agentcore/internal/registry"
)

// activeAgentEntry is one row of GET /api/agents/active's agents array.
type activeAgentEntry struct {
	MessageID   string     `json:"message_id"`
	ChatID      string     `json:"chat_id"`
	Watchers    int        `json:"watchers"`
	Completed   bool       `json:"completed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// activeAgents implements GET /api/agents/active: `{count, agents:[...]}`.
func (h *handlers) activeAgents(w http.ResponseWriter, r *http.Request) {
	var tasks []*registry.RunningTask
	if h.deps.Registry != nil {
		tasks = h.deps.Registry.List(registry.Filter{})
	}

	agents := make([]activeAgentEntry, 0, len(tasks))
	for _, t := range tasks {
		completed, completedAt, _ := t.Snapshot()
		entry := activeAgentEntry{
			MessageID: t.MessageID,
			ChatID:    t.ChatID,
			Watchers:  len(t.Watchers()),
			Completed: completed,
			StartedAt: t.StartedAt,
		}
		if completed {
			ca := completedAt
			entry.CompletedAt = &ca
		}
		agents = append(agents, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Count  int                `json:"count"`
		Agents []activeAgentEntry `json:"agents"`
	}{Count: len(agents), Agents: agents})
}
