// Package dispatcher implements the L5 request scheduler of spec.md §4.5:
// the Next/Poll/Finished queues, the weighted round-robin poll scheduler,
// the last-value cache, the write-once answer map, and update-notification
// listeners. It is the sole client-facing owner of the protocol engine's
// request channel (spec.md §5 "Scheduling model").
package dispatcher

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/ebusd-go/ebusd/catalog"
	"github.com/ebusd-go/ebusd/internal/metrics"
	"github.com/ebusd-go/ebusd/protocol"
	"github.com/ebusd-go/ebusd/symbol"
	"github.com/prometheus/client_golang/prometheus"
)

// StatusListener is notified of conditions the daemon logs once per
// occurrence, per spec.md §7 and the original's own-address-conflict
// handling in src/ebusd/busloop.cpp.
type StatusListener interface {
	OnAddressConflict(addr symbol.Symbol)
	OnError(kind protocol.ErrorKind)
}

// nullStatusListener discards everything; used when the caller doesn't
// register one.
type nullStatusListener struct{}

func (nullStatusListener) OnAddressConflict(symbol.Symbol) {}
func (nullStatusListener) OnError(protocol.ErrorKind)      {}

// pendingRequest pairs a protocol.Request with the completion slot a
// client task blocks on (spec.md §5 "per-request completion waits").
type pendingRequest struct {
	req         *protocol.Request
	message     *catalog.Message // nil for a poll-generated request
	resultCh    chan *protocol.Result
	poll        bool
	submittedAt time.Time
}

func (p *pendingRequest) direction() string {
	if p.poll {
		return "poll"
	}
	return "submit"
}

// Dispatcher owns the Next (FIFO), Poll (priority queue), and Finished
// bookkeeping described in spec.md §4.5. It is safe for concurrent use
// from any number of client goroutines plus the one protocol-thread
// goroutine running BusLoop.Run.
type Dispatcher struct {
	mu        sync.Mutex
	cat       *catalog.Catalog
	next      []*pendingRequest
	poll      pollQueue
	inFlight  *pendingRequest
	cache     *Cache
	notifier  *Notifier
	answers   *AnswerMap
	status    StatusListener
	pollEvery time.Duration
	ownMaster symbol.Symbol
	ownSlave  symbol.Symbol
}

// SetOwnAddress records the engine's own master/slave addresses so
// Observed can detect another device using them (spec.md §7 "conflicts
// with the daemon's own master/slave address").
func (d *Dispatcher) SetOwnAddress(master, slave symbol.Symbol) {
	d.mu.Lock()
	d.ownMaster, d.ownSlave = master, slave
	d.mu.Unlock()
}

// New builds a Dispatcher backed by cat for poll scheduling and
// condition resolution. pollEvery is the interval between two polls of
// the same message when only one pollable message exists (spec.md §4.5
// "default 5s between two polls").
func New(cat *catalog.Catalog, pollEvery time.Duration) *Dispatcher {
	if pollEvery <= 0 {
		pollEvery = 5 * time.Second
	}
	return &Dispatcher{
		cat:       cat,
		cache:     NewCache(),
		notifier:  NewNotifier(),
		answers:   NewAnswerMap(),
		status:    nullStatusListener{},
		pollEvery: pollEvery,
	}
}

// SetStatusListener installs the listener invoked for address conflicts
// and protocol errors. Must be called before Run.
func (d *Dispatcher) SetStatusListener(l StatusListener) {
	if l == nil {
		l = nullStatusListener{}
	}
	d.mu.Lock()
	d.status = l
	d.mu.Unlock()
}

// RegisterPollable adds m to the poll rotation with the given
// poll_order seed, per spec.md §4.5 "Poll" queue.
func (d *Dispatcher) RegisterPollable(m *catalog.Message) {
	if m.PollPriority <= 0 {
		return
	}
	d.mu.Lock()
	heap.Push(&d.poll, &pollEntry{message: m, order: m.PollOrder, priority: m.PollPriority})
	d.mu.Unlock()
}

// Submit enqueues an active request to the tail of Next and blocks until
// BusLoop.Run reports its completion or ctx is cancelled (spec.md §5
// "a request submitted before another is handed to L3 first (FIFO)").
func (d *Dispatcher) Submit(ctx context.Context, req *protocol.Request, msg *catalog.Message) (*protocol.Result, error) {
	p := &pendingRequest{req: req, message: msg, resultCh: make(chan *protocol.Result, 1), submittedAt: time.Now()}
	d.mu.Lock()
	d.next = append(d.next, p)
	d.mu.Unlock()

	select {
	case res := <-p.resultCh:
		if res == nil {
			return nil, ctx.Err()
		}
		return res, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pop implements protocol.PopRequest: Next has absolute priority over
// Poll (spec.md §4.5 "On each engine idle... peeks next, else peeks
// poll").
func (d *Dispatcher) Pop() (*protocol.Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.next) > 0 {
		p := d.next[0]
		d.next = d.next[1:]
		d.inFlight = p
		return p.req, true
	}

	if d.poll.Len() == 0 {
		return nil, false
	}
	top := d.poll[0]
	if time.Since(top.message.LastPollTime) < d.pollEvery {
		return nil, false
	}
	entry := heap.Pop(&d.poll).(*pollEntry)
	entry.order += entry.priority
	entry.message.PollOrder = entry.order
	heap.Push(&d.poll, entry)

	if !top.message.LastPollTime.IsZero() {
		metrics.PollIntervalHistogram.Observe(time.Since(top.message.LastPollTime).Seconds())
	}

	req := &protocol.Request{Master: pollMaster(entry.message, d.ownMaster)}
	d.inFlight = &pendingRequest{req: req, message: entry.message, poll: true, submittedAt: time.Now()}
	return req, true
}

// Complete implements protocol.Complete: it is invoked by BusLoop.Run
// whenever the in-flight request reaches a final outcome.
func (d *Dispatcher) Complete(req *protocol.Request, res *protocol.Result, err error) {
	d.mu.Lock()
	p := d.inFlight
	if p == nil || p.req != req {
		d.mu.Unlock()
		return
	}
	d.inFlight = nil
	d.mu.Unlock()

	if res == nil {
		res = &protocol.Result{Err: err}
	} else if res.Err == nil {
		res.Err = err
	}

	now := time.Now()
	if !p.submittedAt.IsZero() {
		metrics.TelegramLatencyHistogram.With(prometheus.Labels{"direction": p.direction()}).Observe(now.Sub(p.submittedAt).Seconds())
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.TelegramCount.With(prometheus.Labels{"direction": p.direction(), "outcome": outcome}).Inc()

	if p.message != nil && res.Master != nil {
		p.message.LastPollTime = now
		if p.message.StoreLastData(now, res.Master, res.Slave) {
			d.notifier.Notify(p.message, now)
		}
		d.cache.Touch(p.message)
	}
	if err != nil {
		metrics.ErrorCount.With(prometheus.Labels{"kind": protocol.KindOf(err).String()}).Inc()
		d.mu.Lock()
		st := d.status
		d.mu.Unlock()
		st.OnError(protocol.KindOf(err))
	}
	if !p.poll && p.resultCh != nil {
		p.resultCh <- res
	}
}

// Observed implements protocol.Observer. For self-originated telegrams
// it is a no-op, since Complete already updates the cache for those; for
// passively-seen telegrams it both checks for another device answering
// on this engine's own address (spec.md §7) and resolves the telegram
// against the catalog to keep the last-value cache current for messages
// this engine never actively requested (spec.md §4.5 "every complete
// telegram updates the cache, not only ones this engine requested").
func (d *Dispatcher) Observed(master *symbol.MasterSymbols, slave *symbol.SlaveSymbols, self bool) {
	if self {
		return
	}
	src, ok := master.Source()
	if !ok {
		return
	}
	d.mu.Lock()
	own, st, cat := d.ownMaster, d.status, d.cat
	d.mu.Unlock()
	if own != 0 && src == own {
		metrics.AddressConflictCount.Inc()
		st.OnAddressConflict(src)
	}
	if cat == nil {
		return
	}
	m, ok := d.resolve(cat, master)
	if !ok {
		return
	}
	now := time.Now()
	if m.StoreLastData(now, master, slave) {
		d.notifier.Notify(m, now)
	}
	d.cache.Touch(m)
}

// resolve looks up the catalog.Message matching a passively-observed
// master telegram, trying every source class ShortenedKeys doesn't
// already cover on its own, since a passive observer can't tell from the
// wire bytes alone whether the originating message was a catalog read or
// write entry.
func (d *Dispatcher) resolve(cat *catalog.Catalog, master *symbol.MasterSymbols) (*catalog.Message, bool) {
	dst, ok := master.Dest()
	if !ok {
		return nil, false
	}
	pb, sb, ok := master.PBSB()
	if !ok {
		return nil, false
	}
	idBytes := []byte{pb, sb}
	for i := 0; i < 4; i++ {
		b, ok := master.DataAt(i)
		if !ok {
			break
		}
		idBytes = append(idBytes, b)
	}
	for _, class := range []catalog.SourceClass{catalog.SourceAny, catalog.SourceActiveRead, catalog.SourceActiveWrite} {
		if m, ok := cat.ByWireBytes(class, byte(dst), idBytes); ok {
			return m, true
		}
	}
	return nil, false
}

// Answer implements protocol.AnswerSource by delegating to the
// write-once answer map (spec.md §4.5 "Answering mode").
func (d *Dispatcher) Answer(qq symbol.Symbol, pb, sb byte, idPrefix []byte) ([]byte, bool) {
	return d.answers.Lookup(pb, sb, idPrefix)
}

// RegisterAnswer installs a write-once answer template, per spec.md
// §4.5.
func (d *Dispatcher) RegisterAnswer(pb, sb byte, idPrefix []byte, data []byte) bool {
	return d.answers.Register(pb, sb, idPrefix, data)
}

// Cache exposes the last-value cache for change-time range queries.
func (d *Dispatcher) Cache() *Cache { return d.cache }

// Notifier exposes the update-notification listener registry.
func (d *Dispatcher) Notifier() *Notifier { return d.notifier }

// pollMaster builds the master part of a poll-generated telegram. own is
// the engine's own master address: every telegram the engine transmits,
// poll-generated or not, must carry it as QQ (protocol.Request.Master
// doc, spec.md §7 own-address-conflict detection).
func pollMaster(m *catalog.Message, own symbol.Symbol) *symbol.MasterSymbols {
	ms := symbol.NewMasterSymbols()
	ms.Append(byte(own), byte(m.DstAddress), m.IDBytes[0], m.IDBytes[1], 0)
	if len(m.IDBytes) > 2 {
		ms.Append(m.IDBytes[2:]...)
	}
	ms.AdjustHeader()
	return ms
}
