// Package audit records administrative actions against running tasks —
// aborts, registry GC evictions, and shutdown drains — to an append-only
// JSONL file, independent of the structured application log.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentcore/agentcore/internal/shared"
)

type entry struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"` // abort | gc_evict | shutdown_drain
	MessageID string `json:"message_id,omitempty"`
	Reason    string `json:"reason"`
	Subject   string `json:"subject,omitempty"`
}

var (
	mu         sync.Mutex
	file       *os.File
	abortCount atomic.Int64
)

// Init opens the audit log under homeDir/logs/audit.jsonl. Safe to call more
// than once; only the first call takes effect.
func Init(homeDir string) error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return nil
	}
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	return nil
}

// Close releases the underlying log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// AbortCount returns the total number of administrative aborts recorded
// since startup, surfaced by /healthz and the operator dashboard.
func AbortCount() int64 {
	return abortCount.Load()
}

// Record appends one audit entry. Reason and subject are passed through
// shared.Redact before persistence, matching the rest of agentcore's
// secret-handling discipline.
func Record(action, messageID, reason, subject string) {
	if action == "abort" {
		abortCount.Add(1)
	}

	reason = shared.Redact(reason)
	subject = shared.Redact(subject)

	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return
	}

	ev := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Action:    action,
		MessageID: messageID,
		Reason:    reason,
		Subject:   subject,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = file.Write(append(b, '\n'))
}
