package mcpservice

import (
	"context"
	"sync"
)

// ChangeNotifier provides a simple in-process pub-sub for change events. The
// resources container owns one; state stores notify it on every write and the
// engine forwards each signal as a list_changed notification.
//
// The zero value is ready to use. Signals coalesce: a subscriber that has not
// drained its channel sees one pending signal, not one per Notify.
type ChangeNotifier struct {
	subscribers   []chan struct{}
	subscribersMu sync.RWMutex
	closed        bool
}

// Notify signals every subscriber that the resource set changed. It never
// blocks and always returns nil.
func (cn *ChangeNotifier) Notify(ctx context.Context) error {
	cn.subscribersMu.RLock()
	defer cn.subscribersMu.RUnlock()

	if cn.closed {
		return nil
	}

	for _, ch := range cn.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// a signal is already pending
		}
	}
	return nil
}

// Close closes every subscriber channel. Later Notify calls are no-ops.
func (cn *ChangeNotifier) Close() {
	cn.subscribersMu.Lock()
	if cn.closed {
		cn.subscribersMu.Unlock()
		return
	}
	cn.closed = true
	subs := cn.subscribers
	cn.subscribers = nil
	cn.subscribersMu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// ChangeSubscriber is implemented by capabilities whose lists can change
// after initialize.
type ChangeSubscriber interface {
	Subscriber() <-chan struct{}
}

// Subscriber returns a channel that receives a signal whenever Notify is called.
// The returned channel is buffered with capacity 1 to avoid blocking callers.
func (cn *ChangeNotifier) Subscriber() <-chan struct{} {
	cn.subscribersMu.Lock()
	defer cn.subscribersMu.Unlock()

	if cn.closed {
		// Return a closed channel to indicate no further notifications.
		ch := make(chan struct{})
		close(ch)
		return ch
	}

	ch := make(chan struct{}, 1)
	cn.subscribers = append(cn.subscribers, ch)

	return ch
}

// Unsubscribe stops delivery to a channel returned by Subscriber and closes
// it. Unknown channels are ignored.
func (cn *ChangeNotifier) Unsubscribe(sub <-chan struct{}) {
	cn.subscribersMu.Lock()
	defer cn.subscribersMu.Unlock()
	for i, ch := range cn.subscribers {
		if (<-chan struct{})(ch) == sub {
			cn.subscribers = append(cn.subscribers[:i], cn.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}
