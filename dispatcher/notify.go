package dispatcher

import (
	"sync"
	"time"

	"github.com/ebusd-go/ebusd/catalog"
	"github.com/ebusd-go/ebusd/internal/metrics"
)

// UpdateEvent is sent to a registered listener whenever a tracked
// message's cached value changes (spec.md §4.5 "Listeners registered
// with (since, until) windows can enumerate all messages whose
// last_change_time falls in-range"). Listeners observe updates as they
// happen rather than only polling ChangedSince.
type UpdateEvent struct {
	Message *catalog.Message
	At      time.Time
}

// Notifier broadcasts UpdateEvents to every registered listener channel,
// grounded on eventsocket.Server's mutex-guarded client-set broadcast
// (sendToAllListeners), adapted from a JSON-over-socket fanout to an
// in-process channel fanout.
type Notifier struct {
	mu        sync.Mutex
	listeners map[chan *UpdateEvent]struct{}
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[chan *UpdateEvent]struct{})}
}

// Subscribe registers a new listener channel with the given buffer
// depth. The caller must call Unsubscribe when done listening.
func (n *Notifier) Subscribe(buffer int) chan *UpdateEvent {
	ch := make(chan *UpdateEvent, buffer)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	count := len(n.listeners)
	n.mu.Unlock()
	metrics.NotifySubscriberGauge.Set(float64(count))
	return ch
}

// Unsubscribe removes and closes a listener channel.
func (n *Notifier) Unsubscribe(ch chan *UpdateEvent) {
	n.mu.Lock()
	if _, ok := n.listeners[ch]; ok {
		delete(n.listeners, ch)
		close(ch)
	}
	count := len(n.listeners)
	n.mu.Unlock()
	metrics.NotifySubscriberGauge.Set(float64(count))
}

// Notify fans an UpdateEvent out to every registered listener. A
// listener whose buffer is full has the event dropped for it rather
// than blocking the protocol thread (spec.md §5 "Suspension points"
// excludes notification delivery).
func (n *Notifier) Notify(m *catalog.Message, at time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	event := &UpdateEvent{Message: m, At: at}
	for ch := range n.listeners {
		select {
		case ch <- event:
		default:
		}
	}
}
