// Package symbol defines the eBUS wire-level byte types: reserved symbols,
// master/slave address arithmetic, escaping, CRC, and the unescaped
// in-memory symbol strings that sit above the escape layer.
package symbol

import "fmt"

// Symbol is a single byte on the eBUS wire.
type Symbol byte

// Reserved bus symbols (spec.md §3).
const (
	SYN       Symbol = 0xAA // idle / separator
	ESC       Symbol = 0xA9 // escape prefix
	ACK       Symbol = 0x00
	NAK       Symbol = 0xFF
	BROADCAST Symbol = 0xFE
)

// Escape replacement bytes, sent after ESC.
const (
	escSYN byte = 0x01 // replaces an escaped SYN
	escESC byte = 0x00 // replaces an escaped ESC
)

// MaxData is the largest permitted NN (data length) in a single telegram
// part (spec.md §9 open question (c)).
const MaxData = 16

// masterNibbles enumerates the five nibble values that, paired, form a
// valid master address (5x5 = 25 masters).
var masterNibbles = [5]byte{0x0, 0x1, 0x3, 0x7, 0xF}

func isMasterNibble(n byte) bool {
	for _, m := range masterNibbles {
		if m == n {
			return true
		}
	}
	return false
}

// IsMaster reports whether b is a valid master address: both nibbles must
// be members of the 5-element nibble set.
func IsMaster(b Symbol) bool {
	hi := byte(b) >> 4
	lo := byte(b) & 0x0F
	return isMasterNibble(hi) && isMasterNibble(lo)
}

// SlaveOf returns the slave address answering for master m: m+5 mod 256.
func SlaveOf(m Symbol) Symbol {
	return Symbol(byte(m) + 5)
}

// MasterOf returns the master address whose slave address is s: s-5 mod 256.
// The caller must already know s is a derived slave address.
func MasterOf(s Symbol) Symbol {
	return Symbol(byte(s) - 5)
}

// IsValidSlaveAddress reports whether addr can be used as a destination
// slave address. allowBroadcast controls whether BROADCAST itself passes.
func IsValidSlaveAddress(addr Symbol, allowBroadcast bool) bool {
	if addr == SYN || addr == ESC {
		return false
	}
	if addr == BROADCAST && !allowBroadcast {
		return false
	}
	return true
}

// SameLowNibble reports whether a and b share their low nibble — the
// eBUS arbitration tie-break normalized per spec.md §4.3 and §9(b): only
// the low nibble distinguishes "same priority, retry" from "lower
// priority, wait out lock_count".
func SameLowNibble(a, b Symbol) bool {
	return byte(a)&0x0F == byte(b)&0x0F
}

func (s Symbol) String() string {
	return fmt.Sprintf("%02X", byte(s))
}
