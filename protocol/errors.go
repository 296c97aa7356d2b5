package protocol

import "errors"

// ErrorKind is the error taxonomy surfaced by the protocol engine
// (spec.md §4.3, §7). All are retryable by the caller except NoSignal and
// InvalidAddress.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrBusLost
	ErrSend
	ErrTimeout
	ErrSyn
	ErrEsc
	ErrCrc
	ErrAck
	ErrNak
	ErrNoSignal
	ErrInvalidAddr
	ErrExtraData
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrBusLost:
		return "BUS_LOST"
	case ErrSend:
		return "SEND"
	case ErrTimeout:
		return "TIMEOUT"
	case ErrSyn:
		return "SYN"
	case ErrEsc:
		return "ESC"
	case ErrCrc:
		return "CRC"
	case ErrAck:
		return "ACK"
	case ErrNak:
		return "NAK"
	case ErrNoSignal:
		return "NO_SIGNAL"
	case ErrInvalidAddr:
		return "INVALID_ADDR"
	case ErrExtraData:
		return "EXTRA_DATA"
	default:
		return "UNKNOWN"
	}
}

// Retryable reports whether the caller (the dispatcher) should retry a
// request that failed with this error kind (spec.md §7).
func (k ErrorKind) Retryable() bool {
	return k != ErrNoSignal && k != ErrInvalidAddr && k != ErrNone
}

// Error wraps an ErrorKind as a Go error.
type Error struct {
	Kind ErrorKind
}

func (e *Error) Error() string {
	return "protocol: " + e.Kind.String()
}

func newErr(k ErrorKind) error {
	return &Error{Kind: k}
}

// KindOf extracts the ErrorKind from err, returning ErrNone if err is nil
// or not a *Error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrNone
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrNone
}
