package device

import (
	"time"

	"github.com/ebusd-go/ebusd/symbol"
	"github.com/ebusd-go/ebusd/transport"
)

// Enhanced-protocol command/response nibbles (spec.md §4.2). Each framed
// message is 2 bytes: C = 11ccccdd, D = 10dddddd, carrying an 8-bit
// payload (dd<<6)|dddddd split across the two bytes. Bytes with their top
// bit clear pass through as raw received data.
const (
	frameCByte byte = 0xC0 // 11xxxxxx, top 2 bits of the 2-byte frame marker
	frameDByte byte = 0x80 // 10xxxxxx

	cmdInit  byte = 0x0 // host -> adapter
	cmdSend  byte = 0x1
	cmdStart byte = 0x2
	cmdInfo  byte = 0x3

	rspResetted byte = 0x0 // adapter -> host
	rspReceived byte = 0x1
	rspStarted  byte = 0x2
	rspFailed   byte = 0x3
	rspInfo     byte = 0x4
	rspErrEbus  byte = 0x5
	rspErrHost  byte = 0x6
)

// EnhancedDevice talks the 2-byte framed protocol to a smart adapter that
// performs arbitration itself and reports the outcome via STARTED/FAILED
// frames instead of local echo comparison (spec.md §4.2).
type EnhancedDevice struct {
	t transport.Transport

	openedAt    time.Time
	resetSeen   bool
	infoLen     int
	infoBuf     []byte
	wantInfoLen bool
}

// NewEnhancedDevice wraps t as an enhanced (adapter-arbitrating) device.
func NewEnhancedDevice(t transport.Transport) *EnhancedDevice {
	return &EnhancedDevice{t: t}
}

func (d *EnhancedDevice) Open() error {
	if err := d.t.Open(); err != nil {
		return err
	}
	d.openedAt = time.Now()
	d.resetSeen = false
	return d.sendCommand(cmdInit, 0)
}

func (d *EnhancedDevice) Close() error {
	return d.t.Close()
}

func (d *EnhancedDevice) sendCommand(cmd byte, payload byte) error {
	c := frameCByte | (cmd << 2) | (payload >> 6)
	dByte := frameDByte | (payload & 0x3F)
	_, err := d.t.Write([]byte{c, dByte})
	return err
}

func (d *EnhancedDevice) Send(b symbol.Symbol) error {
	return d.sendCommand(cmdSend, byte(b))
}

func (d *EnhancedDevice) StartArbitration(masterAddr symbol.Symbol) {
	d.sendCommand(cmdStart, byte(masterAddr))
}

func (d *EnhancedDevice) CancelArbitration() {
	// The adapter itself owns arbitration timing; there is no local
	// candidate to cancel, matching spec.md §4.2's division of labor.
}

// decodeFrame classifies a 2-byte-or-raw chunk from the adapter. It
// returns (command, payload, frameLen) where frameLen is 2 for a framed
// response and 1 for a pass-through raw byte.
func decodeFrame(raw []byte) (cmd byte, payload byte, frameLen int, ok bool) {
	if len(raw) == 0 {
		return 0, 0, 0, false
	}
	c := raw[0]
	if c&0x80 == 0 {
		// Raw pass-through byte (0xxxxxxx).
		return 0, c, 1, true
	}
	if len(raw) < 2 {
		return 0, 0, 0, false
	}
	cmd = (c >> 2) & 0x0F
	dByte := raw[1]
	payload = ((c & 0x03) << 6) | (dByte & 0x3F)
	return cmd, payload, 2, true
}

// Recv reads the next framed or raw byte from the adapter. It translates
// RESETTED/RECEIVED/STARTED/FAILED/INFO/ERROR frames into the Device
// contract, and treats an unsolicited RESETTED arriving more than
// selfResetGrace after Open as a self-reset fault (spec.md §4.2).
func (d *EnhancedDevice) Recv(timeout time.Duration) (symbol.Symbol, ArbitrationState, error) {
	raw, err := d.t.Read(timeout)
	if err != nil {
		return 0, ArbNone, err
	}
	if len(raw) == 0 {
		return 0, ArbNone, transport.ErrTimeout
	}
	cmd, payload, frameLen, ok := decodeFrame(raw)
	if !ok {
		// Need another byte for the second half of a 2-byte frame; leave
		// it in the buffer for the next Recv call.
		return 0, ArbNone, transport.ErrTimeout
	}
	d.t.ReadConsumed(frameLen)

	if frameLen == 1 {
		return symbol.Symbol(payload), ArbNone, nil
	}

	switch cmd {
	case rspResetted:
		if d.resetSeen && time.Since(d.openedAt) > selfResetGrace {
			return 0, ArbError, ErrSelfReset
		}
		d.resetSeen = true
		return 0, ArbNone, nil
	case rspReceived:
		return symbol.Symbol(payload), ArbNone, nil
	case rspStarted:
		return symbol.Symbol(payload), ArbWon, nil
	case rspFailed:
		return symbol.Symbol(payload), ArbLost, nil
	case rspInfo:
		return symbol.Symbol(payload), ArbNone, nil
	case rspErrEbus, rspErrHost:
		return symbol.Symbol(payload), ArbError, nil
	default:
		return symbol.Symbol(payload), ArbNone, nil
	}
}
