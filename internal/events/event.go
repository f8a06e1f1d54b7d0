// Package events implements the per-message event log: the Event Store
// (C1) that durably persists an agent run's observable steps with atomic
// sequence allocation, and the Event type shared by every other component.
package events

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SchemaVersion is the current event envelope version.
const SchemaVersion = 2

// Type enumerates the event type discriminator.
type Type string

const (
	TypeStart          Type = "start"
	TypeThinking       Type = "thinking"
	TypePlan           Type = "plan"
	TypeToolStart      Type = "tool_start"
	TypeToolEnd        Type = "tool_end"
	TypeSubagentStart  Type = "subagent_start"
	TypeSubagentEnd    Type = "subagent_end"
	TypeContentStart   Type = "content_start"
	TypeContent        Type = "content"
	TypeContentEnd     Type = "content_end"
	TypeStatus         Type = "status"
	TypeEnd            Type = "end"
	TypeError          Type = "error"
)

// IsTerminal reports whether t is the terminal event type for a message.
func (t Type) IsTerminal() bool {
	return t == TypeEnd || t == TypeError
}

// PlanItem is one entry of a `plan` event's item list.
type PlanItem struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"` // pending|in_progress|completed|cancelled
}

// Event is the fundamental unit of the log.
//
// Payload fields are flattened onto the struct with `omitempty` rather than
// nested in a variant union: this keeps JSON encoding a single struct-tag
// affair and matches how the reference store represents typed rows with a
// wide nullable column set.
type Event struct {
	V         int    `json:"v"`
	Type      Type   `json:"type"`
	ID        string `json:"id"`
	TS        string `json:"ts"`
	MessageID string `json:"message_id,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
	Seq       uint64 `json:"-"`

	// start
	Status string `json:"status,omitempty"`

	// thinking / tool_start / content_start / content_end / subagent_*
	Text        string `json:"text,omitempty"`
	AgentType   string `json:"agent_type,omitempty"`
	AgentID     string `json:"agent_id,omitempty"`

	// plan
	Items []PlanItem `json:"items,omitempty"`

	// tool_start / tool_end
	CallID        string          `json:"call_id,omitempty"`
	Name          string          `json:"name,omitempty"`
	ArgsSummary   string          `json:"args_summary,omitempty"`
	ArgsDisplay   json.RawMessage `json:"args_display,omitempty"`
	MS            int64           `json:"ms,omitempty"`
	ResultSummary string          `json:"result_summary,omitempty"`

	// subagent_start / subagent_end
	ParentCallID        string `json:"parent_call_id,omitempty"`
	SubagentDescription string `json:"subagent_description,omitempty"`

	// content
	MD string `json:"md,omitempty"`

	// end
	MSTotal   int64 `json:"ms_total,omitempty"`
	ToolCalls int   `json:"tool_calls,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// NormalizeID derives the (ts, seq, random) event id in the form
// "{unix_ms_timestamp}_{seq:04d}_{random8hex}".
func NormalizeID(ts time.Time, seq uint64) (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate id suffix: %w", err)
	}
	return fmt.Sprintf("%d_%04d_%s", ts.UnixMilli(), seq, hex.EncodeToString(buf[:])), nil
}

// FormatTS renders t as ISO-8601 UTC with millisecond precision.
func FormatTS(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseSeqFromID extracts the `seq` component embedded in a normalized event
// id, used by the SSE endpoint to translate a Last-Event-ID header into a
// since_seq cursor. Splits on "_" rather than using fmt.Sscanf's "%04d",
// whose numeric width is a scan ceiling, not a zero-pad minimum: it silently
// truncates seq to 4 digits for any id at seq >= 10000.
func ParseSeqFromID(id string) (uint64, bool) {
	parts := strings.SplitN(id, "_", 3)
	if len(parts) != 3 {
		return 0, false
	}
	if _, err := strconv.ParseInt(parts[0], 10, 64); err != nil {
		return 0, false
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	if parts[2] == "" {
		return 0, false
	}
	return seq, true
}
