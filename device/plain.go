package device

import (
	"time"

	"github.com/ebusd-go/ebusd/symbol"
	"github.com/ebusd-go/ebusd/transport"
)

// PlainDevice performs arbitration itself: it remembers a candidate
// master address, writes it the instant a SYN is observed, and compares
// the echoed byte to decide won/lost/retry (spec.md §4.2).
type PlainDevice struct {
	t transport.Transport

	pending     bool
	masterAddr  symbol.Symbol
	lastSynAt   time.Time
	arbDelayMin time.Duration
	arbDelayMax time.Duration
}

// NewPlainDevice wraps t as a plain (self-arbitrating) device.
func NewPlainDevice(t transport.Transport) *PlainDevice {
	return &PlainDevice{t: t}
}

func (d *PlainDevice) Open() error  { return d.t.Open() }
func (d *PlainDevice) Close() error { return d.t.Close() }

func (d *PlainDevice) Send(b symbol.Symbol) error {
	_, err := d.t.Write([]byte{byte(b)})
	return err
}

func (d *PlainDevice) StartArbitration(masterAddr symbol.Symbol) {
	d.pending = true
	d.masterAddr = masterAddr
}

func (d *PlainDevice) CancelArbitration() {
	d.pending = false
}

// ArbDelayBounds reports the observed min/max delay between the last SYN
// and our own QQ write, per spec.md §4.3 "Measurements".
func (d *PlainDevice) ArbDelayBounds() (min, max time.Duration) {
	return d.arbDelayMin, d.arbDelayMax
}

func (d *PlainDevice) recordArbDelay(delay time.Duration) {
	if d.arbDelayMin == 0 || delay < d.arbDelayMin {
		d.arbDelayMin = delay
	}
	if delay > d.arbDelayMax {
		d.arbDelayMax = delay
	}
}

// Recv reads the next bus byte. If arbitration is pending and the byte
// read is a SYN, the candidate master address is written immediately and
// the echoed reply classifies the outcome: equal means we won; a
// different byte sharing the low nibble means a same-priority collision
// (retry); otherwise we lost to a genuinely different/lower priority
// master (spec.md §4.2, §9(b)).
func (d *PlainDevice) Recv(timeout time.Duration) (symbol.Symbol, ArbitrationState, error) {
	raw, err := d.t.Read(timeout)
	if err != nil {
		return 0, ArbNone, err
	}
	if len(raw) == 0 {
		return 0, ArbNone, transport.ErrTimeout
	}
	b := symbol.Symbol(raw[0])
	d.t.ReadConsumed(1)

	if b != symbol.SYN {
		d.lastSynAt = time.Time{}
		return b, ArbNone, nil
	}

	now := time.Now()
	if !d.pending {
		d.lastSynAt = now
		return b, ArbNone, nil
	}

	d.lastSynAt = now

	if _, err := d.t.Write([]byte{byte(d.masterAddr)}); err != nil {
		d.pending = false
		return b, ArbError, err
	}
	d.recordArbDelay(time.Since(d.lastSynAt))
	echoRaw, err := d.t.Read(echoTimeout)
	if err != nil || len(echoRaw) == 0 {
		d.pending = false
		return b, ArbTimeout, err
	}
	echoed := symbol.Symbol(echoRaw[0])
	d.t.ReadConsumed(1)

	candidate := d.masterAddr
	d.pending = false

	if echoed == candidate {
		return echoed, ArbWon, nil
	}
	if symbol.SameLowNibble(echoed, candidate) {
		return echoed, ArbRetry, nil
	}
	return echoed, ArbLost, nil
}

// echoTimeout is SEND_TIMEOUT from spec.md §4.3: 2x symbol duration at
// 2400bps (~10ms).
const echoTimeout = 10 * time.Millisecond
