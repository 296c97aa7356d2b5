package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/ebusd-go/ebusd/catalog"
	"github.com/ebusd-go/ebusd/protocol"
	"github.com/ebusd-go/ebusd/symbol"
)

func buildMasterFor(t *testing.T, qq, zz symbol.Symbol, pb, sb byte, data []byte) *symbol.MasterSymbols {
	t.Helper()
	m := symbol.NewMasterSymbols()
	m.Append(byte(qq), byte(zz), pb, sb, 0)
	m.Append(data...)
	if err := m.AdjustHeader(); err != nil {
		t.Fatalf("AdjustHeader: %v", err)
	}
	return m
}

// popWhenQueued waits (up to a second) for a Submit goroutine to enqueue
// its request, then pops it.
func popWhenQueued(t *testing.T, d *Dispatcher) (*protocol.Request, bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		d.mu.Lock()
		queued := len(d.next) > 0
		d.mu.Unlock()
		if queued || time.Now().After(deadline) {
			return d.Pop()
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitBlocksUntilComplete(t *testing.T) {
	d := New(catalog.NewCatalog(), time.Second)
	req := &protocol.Request{Master: buildMasterFor(t, 0x03, 0x52, 0xB5, 0x09, nil)}

	done := make(chan struct{})
	var res *protocol.Result
	var err error
	go func() {
		res, err = d.Submit(context.Background(), req, nil)
		close(done)
	}()

	popped, ok := popWhenQueued(t, d)
	if !ok || popped != req {
		t.Fatalf("Pop = %v, %v, want the submitted request", popped, ok)
	}

	want := &protocol.Result{Master: req.Master}
	d.Complete(req, want, nil)

	<-done
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if res != want {
		t.Error("Submit did not return the completed result")
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	d := New(catalog.NewCatalog(), time.Second)
	req := &protocol.Request{Master: buildMasterFor(t, 0x03, 0x52, 0xB5, 0x09, nil)}

	done := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), req, nil)
		done <- err
	}()

	popWhenQueued(t, d)
	wantErr := &protocol.Error{Kind: protocol.ErrNak}
	d.Complete(req, nil, wantErr)

	select {
	case err := <-done:
		if err != wantErr {
			t.Errorf("Submit error = %v, want %v", err, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit never returned")
	}
}

func TestCompleteIgnoresStaleRequest(t *testing.T) {
	d := New(catalog.NewCatalog(), time.Second)
	req := &protocol.Request{Master: buildMasterFor(t, 0x03, 0x52, 0xB5, 0x09, nil)}
	other := &protocol.Request{Master: buildMasterFor(t, 0x03, 0x52, 0xB5, 0x0A, nil)}

	d.mu.Lock()
	d.inFlight = &pendingRequest{req: req, resultCh: make(chan *protocol.Result, 1)}
	d.mu.Unlock()

	// Complete for a request that isn't the tracked in-flight one must
	// be a no-op, not a panic or a misdelivered result.
	d.Complete(other, &protocol.Result{}, nil)

	d.mu.Lock()
	stillPending := d.inFlight != nil
	d.mu.Unlock()
	if !stillPending {
		t.Error("expected the real in-flight request to remain pending")
	}
}

func TestPopPrefersNextOverPoll(t *testing.T) {
	cat := catalog.NewCatalog()
	pollable := &catalog.Message{Circuit: "c", Name: "poll", IDBytes: []byte{0xB5, 0x09}, PollPriority: 1}
	cat.Add(pollable)

	d := New(cat, time.Millisecond)
	d.RegisterPollable(pollable)

	req := &protocol.Request{Master: buildMasterFor(t, 0x03, 0x52, 0xB5, 0x0A, nil)}
	d.mu.Lock()
	d.next = append(d.next, &pendingRequest{req: req, resultCh: make(chan *protocol.Result, 1)})
	d.mu.Unlock()

	popped, ok := d.Pop()
	if !ok || popped != req {
		t.Error("expected Pop to prefer the Next queue over Poll")
	}
}

func TestPopReturnsPollRequestWhenDue(t *testing.T) {
	cat := catalog.NewCatalog()
	pollable := &catalog.Message{Circuit: "c", Name: "poll", IDBytes: []byte{0xB5, 0x09}, DstAddress: 0x52, PollPriority: 1}
	cat.Add(pollable)

	d := New(cat, 0) // pollEvery defaults but message has zero LastPollTime, so it's immediately due
	d.RegisterPollable(pollable)

	_, ok := d.Pop()
	if !ok {
		t.Fatal("expected a poll-generated request when nothing else is queued")
	}
}

func TestObservedResolvesPassiveTelegramAgainstCatalog(t *testing.T) {
	cat := catalog.NewCatalog()
	m := &catalog.Message{Circuit: "c", Name: "passive", DstAddress: 0x52, IDBytes: []byte{0xB5, 0x09}, IsPassive: true}
	cat.Add(m)

	d := New(cat, time.Second)
	ch := d.Notifier().Subscribe(1)

	master := buildMasterFor(t, 0x15, 0x52, 0xB5, 0x09, []byte{0x2A})
	d.Observed(master, nil, false)

	if d.Cache().Len() != 1 {
		t.Errorf("Cache().Len() = %d, want 1", d.Cache().Len())
	}
	select {
	case ev := <-ch:
		if ev.Message != m {
			t.Error("notified the wrong message")
		}
	default:
		t.Error("expected a notification for the first passive observation")
	}
}

func TestCompleteStoresCacheAndNotifies(t *testing.T) {
	cat := catalog.NewCatalog()
	m := &catalog.Message{Circuit: "c", Name: "status", IDBytes: []byte{0xB5, 0x09}}
	cat.Add(m)

	d := New(cat, time.Second)
	ch := d.Notifier().Subscribe(1)

	req := &protocol.Request{Master: buildMasterFor(t, 0x03, 0x52, 0xB5, 0x09, []byte{0x01})}
	d.mu.Lock()
	d.inFlight = &pendingRequest{req: req, message: m, resultCh: make(chan *protocol.Result, 1)}
	d.mu.Unlock()

	res := &protocol.Result{Master: req.Master}
	d.Complete(req, res, nil)

	if d.Cache().Len() != 1 {
		t.Errorf("Cache().Len() = %d, want 1", d.Cache().Len())
	}
	select {
	case ev := <-ch:
		if ev.Message != m {
			t.Error("notified the wrong message")
		}
	default:
		t.Error("expected a notification for the first observation of m")
	}
}
