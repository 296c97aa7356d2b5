// Package transport implements the eBUS L1 byte-level transport: serial,
// TCP, and UDP endpoints sharing one contract, plus the ring buffer that
// absorbs arrival jitter between reads (spec.md §4.1).
package transport

import (
	"errors"
	"time"
)

// Errors surfaced by the transport layer.
var (
	ErrClosed    = errors.New("transport: closed")
	ErrOverflow  = errors.New("transport: ring buffer overflow")
	ErrTimeout   = errors.New("transport: read timeout")
)

// Transport is the shared contract for serial/TCP/UDP endpoints. write is
// fire-and-forget: the transport never distinguishes its own echo from
// peer bytes, and read never discards unread bytes (spec.md §4.1).
type Transport interface {
	// Open establishes the underlying connection.
	Open() error
	// Close releases the underlying connection. Idempotent.
	Close() error
	// IsValid reports whether the transport is open and usable.
	IsValid() bool
	// Read blocks up to timeout for new bytes and returns a view into the
	// internal ring buffer. The caller must call ReadConsumed once it has
	// processed some prefix of the returned slice.
	Read(timeout time.Duration) ([]byte, error)
	// ReadConsumed tells the transport how many of the most recently
	// returned bytes have been processed and may be reused by the ring
	// buffer.
	ReadConsumed(n int)
	// Write sends b verbatim onto the wire.
	Write(b []byte) (int, error)
	// LatencyMS returns the additive host/network latency budget applied
	// on top of caller-supplied read timeouts.
	LatencyMS() int
}

// Default additive latency budgets (spec.md §4.1).
const (
	DefaultHostLatencyMS    = 10
	DefaultNetworkLatencyMS = 30
)
