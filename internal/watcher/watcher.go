// Package watcher implements the Stream Watcher (C6): a per-client,
// poll-based reader that tails the Event Store for one message_id starting
// from a given sequence cursor, terminating on the terminal event, a
// max-wait timeout, or consumer cancellation.
package watcher

import (
	"context"
	"time"

	"github.com/agentcore/agentcore/internal/events"
	"github.com/agentcore/agentcore/internal/observability"
)

// defaultPollInterval is POLL_INTERVAL_MS's default.
const defaultPollInterval = 500 * time.Millisecond

// defaultMaxWait is WATCHER_MAX_WAIT_S's default.
const defaultMaxWait = 3600 * time.Second

// Reader is the subset of *events.Store the watcher needs.
type Reader interface {
	ReadSince(ctx context.Context, messageID string, sinceSeq uint64, limit int) ([]events.Event, error)
}

// TaskLookup reports whether a RunningTask is currently tracked for a
// message_id, used for the "target may still be initializing" grace period.
type TaskLookup interface {
	IsRunning(messageID string) bool
}

// Subscription is the minimal shape of a *bus.Subscription: a channel the
// watcher can select on to wake early instead of waiting out a full poll
// tick (allowance for a notification mechanism in place of
// plain polling). Nil is a valid Options field meaning "poll only".
type Subscription interface {
	Ch() <-chan struct{}
}

// Options configures one Watch call.
type Options struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	Notify       Subscription

	// Metrics is optional; when set, agentcore.watcher.active is incremented
	// for the lifetime of this Watch call.
	Metrics *observability.Metrics
}

// Watch returns a channel of events for messageID with seq > sinceSeq: it
// first emits every already-persisted matching event (catch-up), then polls
// for new ones until a terminal event is emitted, max_wait elapses without
// new events, or ctx is canceled by the consumer. The channel is
// always eventually closed; Watch is not restartable — call it again to
// resume after it returns.
func Watch(ctx context.Context, reader Reader, tasks TaskLookup, messageID string, sinceSeq uint64, opts Options) <-chan events.Event {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}

	out := make(chan events.Event)
	go runWatch(ctx, reader, tasks, messageID, sinceSeq, pollInterval, maxWait, opts.Notify, opts.Metrics, out)
	return out
}

func runWatch(ctx context.Context, reader Reader, tasks TaskLookup, messageID string, cursor uint64, pollInterval, maxWait time.Duration, notify Subscription, metrics *observability.Metrics, out chan<- events.Event) {
	defer close(out)

	if metrics != nil {
		metrics.WatchersActive.Add(ctx, 1)
		defer metrics.WatchersActive.Add(context.Background(), -1)
	}

	lastActivity := time.Now()
	sawAnything := cursor > 0

	for {
		batch, err := reader.ReadSince(ctx, messageID, cursor, 0)
		if err != nil {
			return
		}

		if len(batch) > 0 {
			sawAnything = true
			lastActivity = time.Now()
		}

		for _, ev := range batch {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			cursor = ev.Seq
			if ev.Type.IsTerminal() {
				return
			}
		}

		if !sawAnything && tasks != nil && !tasks.IsRunning(messageID) {
			// Neither a running task nor any persisted events: the target
			// may still be initializing upstream. Give it a short grace
			// period rather than the full max_wait.
			if time.Since(lastActivity) >= maxWait/60 {
				return
			}
		} else if time.Since(lastActivity) >= maxWait {
			return
		}

		if !waitForTick(ctx, pollInterval, notify) {
			return
		}
	}
}

// waitForTick blocks until the poll interval elapses, the notify
// subscription fires, or ctx is canceled. Returns false if the caller should
// stop (ctx canceled).
func waitForTick(ctx context.Context, pollInterval time.Duration, notify Subscription) bool {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	var notifyCh <-chan struct{}
	if notify != nil {
		notifyCh = notify.Ch()
	}

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-notifyCh:
		return true
	}
}
