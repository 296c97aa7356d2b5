package dispatcher

import (
	"testing"
	"time"

	"github.com/ebusd-go/ebusd/catalog"
)

func TestNotifierDeliversToSubscriber(t *testing.T) {
	n := NewNotifier()
	ch := n.Subscribe(1)
	m := &catalog.Message{Circuit: "heating", Name: "temp"}
	now := time.Now()

	n.Notify(m, now)

	select {
	case ev := <-ch:
		if ev.Message != m {
			t.Error("event references the wrong message")
		}
	default:
		t.Fatal("expected a buffered event to be immediately available")
	}
}

func TestNotifierDropsWhenBufferFull(t *testing.T) {
	n := NewNotifier()
	ch := n.Subscribe(1)
	m := &catalog.Message{}
	now := time.Now()

	n.Notify(m, now) // fills the buffer of 1
	n.Notify(m, now) // must not block

	if len(ch) != 1 {
		t.Errorf("buffer len = %d, want 1 (second event dropped)", len(ch))
	}
}

func TestNotifierUnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier()
	ch := n.Subscribe(1)
	n.Unsubscribe(ch)

	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
}
