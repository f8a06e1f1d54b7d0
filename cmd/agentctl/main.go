// Command agentctl is the operator's dashboard: it polls a running
// agentcored's /healthz and /api/agents/active over HTTP and renders the
// result with the bubbletea TUI in internal/tui.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agentcore/agentcore/internal/tui"
	"github.com/mattn/go-isatty"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8789", "agentcored base URL")
	once := flag.Bool("once", false, "print one snapshot as JSON and exit, instead of the live dashboard")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &httpStatusClient{
		base:    strings.TrimRight(*addr, "/"),
		http:    &http.Client{Timeout: 3 * time.Second},
		started: time.Now(),
	}

	// Non-interactive output (piped or -once) so agentctl is usable from cron
	// or scripts, not just an attached terminal.
	if *once || !isatty.IsTerminal(os.Stdout.Fd()) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(client.Snapshot()); err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := tui.Run(ctx, client.Snapshot); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
}

// httpStatusClient implements tui.StatusProvider by polling a live
// agentcored's HTTP surface. Every field is best-effort: a request failure
// degrades the snapshot rather than crashing the dashboard.
type httpStatusClient struct {
	base    string
	http    *http.Client
	started time.Time
}

type healthzResponse struct {
	Results []struct {
		Name    string `json:"name"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"results"`
}

type activeAgentsResponse struct {
	Agents []struct {
		MessageID string    `json:"message_id"`
		Completed bool      `json:"completed"`
		StartedAt time.Time `json:"started_at"`
	} `json:"agents"`
}

func (c *httpStatusClient) Snapshot() tui.Snapshot {
	snap := tui.Snapshot{Uptime: time.Since(c.started)}

	health, err := c.getHealthz()
	if err != nil {
		snap.LastError = err.Error()
		return snap
	}

	snap.DBOK = true
	for _, res := range health.Results {
		if res.Name == "Database" && res.Status == "FAIL" {
			snap.DBOK = false
		}
		if res.Status == "FAIL" && snap.LastError == "" {
			snap.LastError = fmt.Sprintf("%s: %s", res.Name, res.Message)
		}
		if res.Name == "Fallback Queue" {
			fmt.Sscanf(res.Message, "depth=%d dropped_total=%d", &snap.FallbackDepth, &snap.Dropped)
		}
	}

	active, err := c.getActiveAgents()
	if err != nil {
		if snap.LastError == "" {
			snap.LastError = err.Error()
		}
		return snap
	}
	snap.Tasks = make([]tui.TaskSnapshot, 0, len(active.Agents))
	for _, a := range active.Agents {
		if a.Completed {
			snap.CompletedTasks++
		} else {
			snap.ActiveTasks++
		}
		snap.Tasks = append(snap.Tasks, tui.TaskSnapshot{
			MessageID: a.MessageID,
			StartedAt: a.StartedAt,
			Done:      a.Completed,
		})
	}
	return snap
}

func (c *httpStatusClient) getHealthz() (*healthzResponse, error) {
	resp, err := c.http.Get(c.base + "/healthz")
	if err != nil {
		return nil, fmt.Errorf("healthz unreachable: %w", err)
	}
	defer resp.Body.Close()

	var body healthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("healthz decode: %w", err)
	}
	return &body, nil
}

func (c *httpStatusClient) getActiveAgents() (*activeAgentsResponse, error) {
	resp, err := c.http.Get(c.base + "/api/agents/active")
	if err != nil {
		return nil, fmt.Errorf("active agents unreachable: %w", err)
	}
	defer resp.Body.Close()

	var body activeAgentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("active agents decode: %w", err)
	}
	return &body, nil
}
