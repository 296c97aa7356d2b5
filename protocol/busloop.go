// Package protocol implements the eBUS L3 bus state machine: arbitration,
// telegram framing, escape, CRC, ACK/NAK retry, auto-SYN idle detection,
// and passive observation (spec.md §4.3). It is the "busloop" semantics
// named in spec.md §9(a); no "ebusloop" variant is implemented.
package protocol

import (
	"context"
	"time"

	"github.com/ebusd-go/ebusd/device"
	"github.com/ebusd-go/ebusd/symbol"
)

// State is one node of the bus state machine described in spec.md §4.3.
type State int

const (
	StateNoSignal State = iota
	StateSkip
	StateReady
	StateRecvCmd
	StateRecvCmdCRC
	StateRecvCmdAck
	StateRecvRes
	StateRecvResCRC
	StateRecvResAck
	StateSendCmd
	StateSendCmdCRC
	StateSendRes
	StateSendResCRC
	StateSendSyn
	StateDone
)

func (s State) String() string {
	names := [...]string{
		"noSignal", "skip", "ready", "recvCmd", "recvCmdCrc", "recvCmdAck",
		"recvRes", "recvResCrc", "recvResAck", "sendCmd", "sendCmdCrc",
		"sendRes", "sendResCrc", "sendSyn", "done",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Config holds the bus timing constants from spec.md §4.3.
type Config struct {
	SynTimeout        time.Duration // idle period before we may emit our own SYN
	SynInterval       time.Duration // fallback generator's SYN cadence
	NoSignalTimeout   time.Duration // loss of signal threshold
	SendTimeout       time.Duration // echo-wait per sent byte
	BusLostRetries    int           // arbitration retry budget per request
	FailedSendRetries int
	KnownMasters      int // used to derive the default lock_count
}

// DefaultConfig returns the constants named in spec.md §4.3.
func DefaultConfig() Config {
	return Config{
		SynTimeout:        51 * time.Millisecond,
		SynInterval:       40 * time.Millisecond,
		NoSignalTimeout:   250 * time.Millisecond,
		SendTimeout:       10 * time.Millisecond,
		BusLostRetries:    2,
		FailedSendRetries: 1,
		KnownMasters:      1,
	}
}

// lockCount returns max(3, number_of_known_masters) per spec.md §4.3.
func (c Config) lockCount() int {
	if c.KnownMasters > 3 {
		return c.KnownMasters
	}
	return 3
}

// Request is one master telegram the dispatcher wants transmitted. Master
// must already carry the engine's own address as QQ.
type Request struct {
	Master *symbol.MasterSymbols
	// RetryCount is bumped by the engine on arbitration loss; Run keeps
	// the request pending for the next SYN until RetryCount exceeds
	// Cfg.BusLostRetries.
	RetryCount int
}

// Result is the outcome of one telegram exchange.
type Result struct {
	Master *symbol.MasterSymbols
	Slave  *symbol.SlaveSymbols // nil for broadcast or passive-without-slave-part
	Err    error
}

// Observer receives every complete telegram the engine sees, active or
// passive, so the dispatcher can maintain its last-value cache
// (spec.md §4.5 "storeLastData"). self reports whether master originated
// from this engine's own OwnMaster address, distinguishing our own
// transmissions from telegrams actually observed on the bus (needed to
// detect another device answering to our own address, spec.md §7).
type Observer interface {
	Observed(master *symbol.MasterSymbols, slave *symbol.SlaveSymbols, self bool)
}

// AnswerSource supplies the slave response bytes for a passive query
// addressed to the engine's own slave address (spec.md §4.5 "Answering
// mode"). It is consulted only for telegrams whose ZZ equals OwnSlave.
type AnswerSource interface {
	Answer(qq symbol.Symbol, pb, sb byte, idPrefix []byte) (data []byte, ok bool)
}

// nullAnswers never answers; used when the dispatcher has not registered
// an AnswerSource.
type nullAnswers struct{}

func (nullAnswers) Answer(symbol.Symbol, byte, byte, []byte) ([]byte, bool) { return nil, false }

// BusLoop drives device byte-by-byte through the states above. One
// BusLoop instance owns exactly one Device, per spec.md §5's single
// protocol-thread rule.
type BusLoop struct {
	Dev       device.Device
	OwnMaster symbol.Symbol
	OwnSlave  symbol.Symbol
	Cfg       Config

	Measurements Measurements

	state            State
	lastSymbolAt     time.Time
	isFallbackSynGen bool
	awaitingSynEcho  bool
	lastOwnSynAt     time.Time
	remainLockCount  int
}

// NewBusLoop creates an idle engine for dev, using ownMaster as QQ for
// telegrams we originate and its derived slave address for passive
// answering.
func NewBusLoop(dev device.Device, ownMaster symbol.Symbol, cfg Config) *BusLoop {
	return &BusLoop{
		Dev:       dev,
		OwnMaster: ownMaster,
		OwnSlave:  symbol.SlaveOf(ownMaster),
		Cfg:       cfg,
		state:     StateNoSignal,
	}
}

func (b *BusLoop) State() State { return b.state }

// PopRequest is implemented by the dispatcher's Next/Poll queues: the
// engine calls it whenever it is in StateReady with nothing in flight.
// It must return immediately (ok=false) if nothing is ready to send.
type PopRequest func() (*Request, bool)

// Complete is called exactly once for every Request that reaches a
// final outcome (delivered, or failed with any error other than a lost
// arbitration still within Cfg.BusLostRetries or a timeout before
// arbitration, both of which Run retries), so the dispatcher
// can wake the client task blocked on that request's completion slot
// (spec.md §5 "Condition variables or equivalent completion primitives
// wake clients when their request transitions to finished").
type Complete func(req *Request, res *Result, err error)

// Run drives the engine until ctx is cancelled. obs receives every
// completed telegram; answers supplies passive-answer bytes; pop supplies
// the next request to attempt once the bus is free; complete reports the
// final outcome of every request pop handed back. This is the single
// long-running "protocol thread" of spec.md §5.
func (b *BusLoop) Run(ctx context.Context, pop PopRequest, obs Observer, answers AnswerSource, complete Complete) error {
	if answers == nil {
		answers = nullAnswers{}
	}
	var pending *Request
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if pending == nil && b.state == StateReady && b.remainLockCount == 0 {
			if req, ok := pop(); ok {
				pending = req
			}
		}
		res, err := b.runOneTelegram(ctx, pending, obs, answers)
		if pending != nil {
			retryable := KindOf(err) == ErrTimeout ||
				(KindOf(err) == ErrBusLost && pending.RetryCount <= b.Cfg.BusLostRetries)
			if err != nil && retryable && res == nil {
				// Arbitration didn't happen this pass and the retry budget
				// is not spent; keep the request pending for the next SYN.
				continue
			}
			if complete != nil {
				complete(pending, res, err)
			}
			pending = nil
		}
	}
}

// runOneTelegram executes states ready..done (or ready..skip on error)
// once. If req is non-nil it attempts to win arbitration and transmit;
// otherwise it only observes passive traffic.
func (b *BusLoop) runOneTelegram(ctx context.Context, req *Request, obs Observer, answers AnswerSource) (*Result, error) {
	readTimeout := b.Cfg.SynTimeout
	if b.isFallbackSynGen {
		readTimeout = b.Cfg.SynInterval
	}

	if req != nil && b.state == StateReady && b.remainLockCount == 0 {
		b.Dev.StartArbitration(req.Master.Bytes()[0])
	}

	sym, arb, err := b.Dev.Recv(readTimeout)
	now := time.Now()

	if err != nil {
		if time.Since(b.lastSymbolAt) > b.Cfg.NoSignalTimeout && !b.lastSymbolAt.IsZero() {
			b.state = StateNoSignal
			return nil, newErr(ErrNoSignal)
		}
		if b.maybeGenerateSyn(now) {
			return nil, nil
		}
		return nil, newErr(ErrTimeout)
	}
	b.lastSymbolAt = now

	if b.awaitingSynEcho {
		b.awaitingSynEcho = false
		if sym == symbol.SYN && arb == device.ArbNone {
			b.isFallbackSynGen = true
		}
	}

	switch arb {
	case device.ArbWon:
		if b.remainLockCount > 0 {
			b.remainLockCount--
		}
		return b.sendOwnTelegram(req, obs)
	case device.ArbLost:
		b.remainLockCount = b.Cfg.lockCount()
		if req != nil {
			req.RetryCount++
		}
		b.state = StateReady
		return nil, newErr(ErrBusLost)
	case device.ArbRetry:
		b.remainLockCount = 1
		if req != nil {
			req.RetryCount++
		}
		b.state = StateReady
		return nil, newErr(ErrBusLost)
	}

	if sym == symbol.SYN {
		if b.remainLockCount > 0 {
			b.remainLockCount--
		}
		b.state = StateReady
		return nil, nil
	}

	// A non-SYN byte with no arbitration in progress is the start of
	// someone else's telegram: observe it passively.
	return b.receivePassive(sym, obs, answers)
}

// maybeGenerateSyn implements the auto-SYN generator of spec.md §4.3: if
// no bus symbol has arrived for SynTimeout, emit one ourselves; if we
// then observe our own SYN echoed back, become the fallback generator
// and keep emitting every SynInterval thereafter.
func (b *BusLoop) maybeGenerateSyn(now time.Time) bool {
	idle := b.lastSymbolAt.IsZero() || now.Sub(b.lastSymbolAt) >= b.Cfg.SynTimeout
	if !idle {
		return false
	}
	if b.state == StateNoSignal {
		b.state = StateReady
	}
	if err := b.Dev.Send(symbol.SYN); err != nil {
		return false
	}
	b.lastOwnSynAt = now
	b.awaitingSynEcho = true
	b.lastSymbolAt = now
	return true
}

// sendOwnTelegram transmits req.Master byte-by-byte, verifying echo after
// each byte, then handles the BROADCAST/MM/MS completion paths of
// spec.md §4.3's "Send loop".
func (b *BusLoop) sendOwnTelegram(req *Request, obs Observer) (*Result, error) {
	b.state = StateSendCmd
	m := req.Master
	if err := m.AdjustHeader(); err != nil {
		b.state = StateReady
		return nil, err
	}
	crc := m.CalcCRC()
	wire := append(append([]byte{}, m.Bytes()...), crc)
	escaped := symbol.Escape(wire)

	for _, raw := range escaped {
		if err := b.sendByteAndVerifyEcho(raw); err != nil {
			b.state = StateSkip
			return nil, err
		}
	}
	b.state = StateSendCmdCRC

	dst, _ := m.Dest()
	switch {
	case dst == symbol.BROADCAST:
		b.sendByteAndVerifyEcho(byte(symbol.SYN))
		b.state = StateReady
		res := &Result{Master: m}
		if obs != nil {
			obs.Observed(m, nil, true)
		}
		return res, nil
	case symbol.IsMaster(dst):
		return b.finishMasterDestined(m, obs)
	default:
		return b.finishSlaveDestined(m, obs)
	}
}

func (b *BusLoop) finishMasterDestined(m *symbol.MasterSymbols, obs Observer) (*Result, error) {
	ack, _, err := b.Dev.Recv(b.Cfg.SendTimeout)
	if err != nil {
		b.state = StateReady
		return nil, newErr(ErrTimeout)
	}
	if ack == symbol.NAK {
		// Retry the master part exactly once (spec.md §4.3).
		crc := m.CalcCRC()
		wire := append(append([]byte{}, m.Bytes()...), crc)
		for _, raw := range symbol.Escape(wire) {
			if err := b.sendByteAndVerifyEcho(raw); err != nil {
				b.state = StateSkip
				return nil, err
			}
		}
		ack2, _, err := b.Dev.Recv(b.Cfg.SendTimeout)
		if err != nil || ack2 == symbol.NAK {
			b.state = StateReady
			return nil, newErr(ErrNak)
		}
	} else if ack != symbol.ACK {
		b.state = StateReady
		return nil, newErr(ErrAck)
	}
	b.sendByteAndVerifyEcho(byte(symbol.SYN))
	b.state = StateReady
	if obs != nil {
		obs.Observed(m, nil, true)
	}
	return &Result{Master: m}, nil
}

func (b *BusLoop) finishSlaveDestined(m *symbol.MasterSymbols, obs Observer) (*Result, error) {
	ack, _, err := b.Dev.Recv(b.Cfg.SendTimeout)
	if err != nil {
		b.state = StateReady
		return nil, newErr(ErrTimeout)
	}
	if ack != symbol.ACK {
		b.state = StateReady
		return nil, newErr(ErrAck)
	}
	b.state = StateRecvRes
	slave, err := b.recvSlavePart()
	if err != nil {
		// One retry from the slave on bad CRC (spec.md §4.3).
		if KindOf(err) == ErrCrc {
			b.Dev.Send(symbol.NAK)
			slave, err = b.recvSlavePart()
			if err != nil {
				b.state = StateReady
				return nil, newErr(ErrCrc)
			}
		} else {
			b.state = StateReady
			return nil, err
		}
	}
	b.Dev.Send(symbol.ACK)
	b.sendByteAndVerifyEcho(byte(symbol.SYN))
	b.state = StateReady
	if obs != nil {
		obs.Observed(m, slave, true)
	}
	return &Result{Master: m, Slave: slave}, nil
}

// recvLogicalByte reads one unescaped logical byte from the bus,
// transparently consuming a two-raw-byte ESC sequence when one appears
// (spec.md §3 "Escape is transparent above L2"). Symbol strings store
// only the unescaped sequence, so every receive path funnels through
// this instead of appending raw wire bytes directly.
func (b *BusLoop) recvLogicalByte(timeout time.Duration) (byte, error) {
	s, _, err := b.Dev.Recv(timeout)
	if err != nil {
		return 0, newErr(ErrTimeout)
	}
	if s != symbol.ESC {
		return byte(s), nil
	}
	s2, _, err := b.Dev.Recv(timeout)
	if err != nil {
		return 0, newErr(ErrTimeout)
	}
	switch s2 {
	case 0x01:
		return byte(symbol.SYN), nil
	case 0x00:
		return byte(symbol.ESC), nil
	default:
		return 0, newErr(ErrEsc)
	}
}

func (b *BusLoop) recvSlavePart() (*symbol.SlaveSymbols, error) {
	s := symbol.NewSlaveSymbols()
	nnByte, err := b.recvLogicalByte(b.Cfg.SendTimeout)
	if err != nil {
		return nil, err
	}
	s.Append(nnByte)
	nn := int(nnByte)
	if nn > symbol.MaxData {
		return nil, newErr(ErrExtraData)
	}
	for i := 0; i < nn; i++ {
		d, err := b.recvLogicalByte(b.Cfg.SendTimeout)
		if err != nil {
			return nil, err
		}
		s.Append(d)
	}
	crc, err := b.recvLogicalByte(b.Cfg.SendTimeout)
	if err != nil {
		return nil, err
	}
	if symbol.CalcCRC(symbol.Escape(s.Bytes())) != crc {
		return nil, newErr(ErrCrc)
	}
	return s, nil
}

// sendByteAndVerifyEcho writes raw and requires the bus to echo it back
// within SendTimeout (half-duplex wiring, spec.md §4.3).
func (b *BusLoop) sendByteAndVerifyEcho(raw byte) error {
	sendAt := time.Now()
	if err := b.Dev.Send(symbol.Symbol(raw)); err != nil {
		return newErr(ErrSend)
	}
	echoed, _, err := b.Dev.Recv(b.Cfg.SendTimeout)
	if err != nil {
		return newErr(ErrTimeout)
	}
	b.Measurements.observeSymbolLatency(time.Since(sendAt))
	if byte(echoed) != raw {
		return newErr(ErrSend)
	}
	return nil
}

// receivePassive collects someone else's telegram for observation. If
// the destination is our own slave address and answers has a registered
// response, the engine answers arbitration-free as described in
// spec.md §4.5 "Answering mode".
func (b *BusLoop) receivePassive(first symbol.Symbol, obs Observer, answers AnswerSource) (*Result, error) {
	b.state = StateRecvCmd
	m := symbol.NewMasterSymbols()
	m.Append(byte(first))
	for i := 0; i < 3; i++ { // ZZ PB SB
		s, err := b.recvLogicalByte(b.Cfg.SendTimeout)
		if err != nil {
			b.state = StateReady
			return nil, err
		}
		m.Append(s)
	}
	nnByte, err := b.recvLogicalByte(b.Cfg.SendTimeout)
	if err != nil {
		b.state = StateReady
		return nil, err
	}
	m.Append(nnByte)
	nn := int(nnByte)
	if nn > symbol.MaxData {
		b.state = StateReady
		return nil, newErr(ErrExtraData)
	}
	for i := 0; i < nn; i++ {
		s, err := b.recvLogicalByte(b.Cfg.SendTimeout)
		if err != nil {
			b.state = StateReady
			return nil, err
		}
		m.Append(s)
	}
	crc, err := b.recvLogicalByte(b.Cfg.SendTimeout)
	if err != nil {
		b.state = StateReady
		return nil, err
	}
	if symbol.CalcCRC(symbol.Escape(m.Bytes())) != crc {
		b.state = StateReady
		return nil, newErr(ErrCrc)
	}

	dst, _ := m.Dest()
	if dst == b.OwnSlave {
		return b.answerAsSlave(m, answers, obs)
	}

	b.state = StateReady
	if obs != nil {
		obs.Observed(m, nil, false)
	}
	return &Result{Master: m}, nil
}

// answerAsSlave sends ACK, the registered answer bytes (if any) plus
// CRC, and consumes the requester's final ACK/NAK, per spec.md §4.5.
func (b *BusLoop) answerAsSlave(m *symbol.MasterSymbols, answers AnswerSource, obs Observer) (*Result, error) {
	pb, sb, _ := m.PBSB()
	data, ok := answers.Answer(symbol.Symbol(m.Bytes()[0]), pb, sb, nil)
	if !ok {
		b.state = StateReady
		if obs != nil {
			obs.Observed(m, nil, false)
		}
		return &Result{Master: m}, nil
	}
	b.Dev.Send(symbol.ACK)
	slave := symbol.NewSlaveSymbols()
	slave.Append(0) // NN placeholder, filled in by AdjustHeader
	slave.Append(data...)
	if err := slave.AdjustHeader(); err != nil {
		b.state = StateReady
		return nil, err
	}
	crc := slave.CalcCRC()
	wire := append(append([]byte{}, slave.Bytes()...), crc)
	for _, raw := range symbol.Escape(wire) {
		b.Dev.Send(symbol.Symbol(raw))
	}
	b.Dev.Recv(b.Cfg.SendTimeout) // consume requester's ACK/NAK
	b.state = StateReady
	if obs != nil {
		obs.Observed(m, slave, false)
	}
	return &Result{Master: m, Slave: slave}, nil
}
