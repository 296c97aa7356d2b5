// Package device implements the eBUS L2 layer: a byte-oriented view of the
// bus with arbitration primitives, in plain (local-echo) and enhanced
// (adapter-framed) variants (spec.md §4.2).
package device

import (
	"errors"
	"time"

	"github.com/ebusd-go/ebusd/symbol"
	"github.com/ebusd-go/ebusd/transport"
)

// ArbitrationState mirrors spec.md §4.2's enumeration.
type ArbitrationState int

const (
	ArbNone ArbitrationState = iota
	ArbStart
	ArbRunning
	ArbWon
	ArbLost
	ArbRetry
	ArbTimeout
	ArbError
)

func (s ArbitrationState) String() string {
	switch s {
	case ArbNone:
		return "none"
	case ArbStart:
		return "start"
	case ArbRunning:
		return "running"
	case ArbWon:
		return "won"
	case ArbLost:
		return "lost"
	case ArbRetry:
		return "retry"
	case ArbTimeout:
		return "timeout"
	case ArbError:
		return "error"
	default:
		return "unknown"
	}
}

// Errors surfaced by the device layer.
var (
	ErrNotArbitrating = errors.New("device: no arbitration in progress")
	ErrSelfReset       = errors.New("device: adapter self-reset detected")
)

// Device is the shared contract for plain and enhanced eBUS devices.
type Device interface {
	// Open opens the underlying transport.
	Open() error
	// Close closes the underlying transport.
	Close() error
	// Send writes a single byte to the bus.
	Send(b symbol.Symbol) error
	// Recv reads the next bus byte within timeout, along with the
	// current arbitration state (ArbNone if no arbitration is pending).
	Recv(timeout time.Duration) (symbol.Symbol, ArbitrationState, error)
	// StartArbitration remembers masterAddr as the candidate to write the
	// next time a SYN is observed on the wire.
	StartArbitration(masterAddr symbol.Symbol)
	// CancelArbitration abandons a pending arbitration attempt.
	CancelArbitration()
}

// selfResetGrace is how long after Open an unsolicited adapter reset is
// tolerated before it is treated as a fault requiring reconnect
// (spec.md §4.2).
const selfResetGrace = 3 * time.Second
