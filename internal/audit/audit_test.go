package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordWritesAuditEntry(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, Init(home))
	t.Cleanup(func() { _ = Close() })

	Record("abort", "m1", "administrative abort", "operator@example.com")
	Record("gc_evict", "m2", "completed task past max age", "")

	path := filepath.Join(home, "logs", "audit.jsonl")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.GreaterOrEqual(t, len(lines), 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "abort", first["action"])
	require.Equal(t, "m1", first["message_id"])
	require.NotEmpty(t, first["reason"])
}

func TestRecord_IncrementsAbortCount(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, Init(home))
	t.Cleanup(func() { _ = Close() })

	before := AbortCount()
	Record("abort", "m1", "administrative abort", "")
	require.Equal(t, before+1, AbortCount())
}

func TestRecord_AppendOnly(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, Init(home))
	t.Cleanup(func() { _ = Close() })

	Record("abort", "m1", "first", "")
	path := filepath.Join(home, "logs", "audit.jsonl")
	info1, err := os.Stat(path)
	require.NoError(t, err)

	Record("gc_evict", "m2", "second", "")
	info2, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info2.Size(), info1.Size())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	for _, line := range lines {
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		require.Contains(t, e, "timestamp")
		require.Contains(t, e, "action")
	}
}
