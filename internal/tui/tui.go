package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Snapshot is one tick's worth of operator-facing state, polled from the
// gateway's /api/agents/active, /healthz, and the locally-tailed SSE stream.
type Snapshot struct {
	DBOK           bool
	ActiveTasks    int
	CompletedTasks int
	FallbackDepth  int
	Dropped        int64
	LastError      string
	LastEvent      string
	Uptime         time.Duration
	Tasks          []TaskSnapshot
}

// TaskSnapshot is one row of Snapshot.Tasks, used to drive the activity feed.
type TaskSnapshot struct {
	MessageID string
	StartedAt time.Time
	Done      bool
}

type StatusProvider func() Snapshot

type model struct {
	provider StatusProvider
	snap     Snapshot
	feed     *ActivityFeed
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(1*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "ctrl+a":
			if m.feed != nil {
				m.feed.Toggle()
			}
		}
	case tickMsg:
		m.snap = m.provider()
		m.reconcileFeed()
		return m, tickCmd()
	}
	return m, nil
}

// reconcileFeed folds the latest poll's task list into the activity feed:
// newly seen tasks are added running, tasks now reported done are marked
// complete. The feed itself owns size capping and the collapsed/expanded
// toggle, so this only needs to report deltas.
func (m *model) reconcileFeed() {
	if m.feed == nil {
		m.feed = NewActivityFeed()
	}
	for _, t := range m.snap.Tasks {
		if !m.feed.Contains(t.MessageID) {
			if t.Done {
				continue // already finished by the time we first saw it
			}
			m.feed.Add(ActivityItem{ID: t.MessageID, Icon: "●", Message: t.MessageID, StartedAt: t.StartedAt})
			continue
		}
		if t.Done {
			m.feed.Complete(t.MessageID, "✓", 0)
		}
	}
	m.feed.CleanupOld(time.Minute)
}

func (m model) View() string {
	lastErr := m.snap.LastError
	if lastErr == "" {
		lastErr = "(none)"
	}
	lastEvent := m.snap.LastEvent
	if lastEvent == "" {
		lastEvent = "(none)"
	}
	header := fmt.Sprintf(
		"agentcore status\n\nDB OK: %t\nActive Tasks: %d\nCompleted Tasks: %d\nFallback Queue Depth: %d\nDropped Events: %d\nUptime: %s\nLast Error: %s\nLast Event: %s\n\n",
		m.snap.DBOK,
		m.snap.ActiveTasks,
		m.snap.CompletedTasks,
		m.snap.FallbackDepth,
		m.snap.Dropped,
		m.snap.Uptime.Truncate(time.Second),
		lastErr,
		lastEvent,
	)
	feedView := ""
	if m.feed != nil {
		feedView = m.feed.View()
	}
	return header + feedView + "Press q to quit, Ctrl+A to toggle activity feed.\n"
}

func Run(ctx context.Context, provider StatusProvider) error {
	defer bestEffortResetTTY()

	m := model{provider: provider, snap: provider()}
	p := tea.NewProgram(m)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	select {
	case <-ctx.Done():
		p.Quit()
		return ctx.Err()
	case err := <-done:
		return err
	}
}
