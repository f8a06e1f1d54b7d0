package gateway

import (
	"github.com/agentcore/agentcore/internal/bus"
)

// busNotify adapts a *bus.Subscription onto watcher.Subscription (Ch() <-chan
// struct{}): the watcher only needs to know "something happened", not what —
// it re-reads the Store for the actual events on every wake. A background
// goroutine forwards matching bus.Events as signals and exits when src is
// unsubscribed (its channel closes).
type busNotify struct {
	sig chan struct{}
}

// subscribeNotify subscribes to b for topicTaskCompleted and filters to the
// given message_id, returning an adapter plus its matching *bus.Subscription
// so the caller can Unsubscribe when the stream ends. b may be nil, in which
// case both return values are nil and the watcher falls back to plain
// polling.
func subscribeNotify(b *bus.Bus, messageID string) (*busNotify, *bus.Subscription) {
	if b == nil {
		return nil, nil
	}
	sub := b.Subscribe(bus.TopicTaskCompleted)
	n := &busNotify{sig: make(chan struct{}, 1)}
	go func() {
		for ev := range sub.Ch() {
			payload, ok := ev.Payload.(map[string]any)
			if !ok {
				continue
			}
			if mid, _ := payload["message_id"].(string); mid != messageID {
				continue
			}
			select {
			case n.sig <- struct{}{}:
			default:
			}
		}
	}()
	return n, sub
}

// Ch implements watcher.Subscription.
func (n *busNotify) Ch() <-chan struct{} {
	return n.sig
}
