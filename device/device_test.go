package device

import "testing"

func TestDecodeFrameRawByte(t *testing.T) {
	cmd, payload, n, ok := decodeFrame([]byte{0x12})
	if !ok || n != 1 || cmd != 0 || payload != 0x12 {
		t.Fatalf("decodeFrame raw = %v %v %v %v", cmd, payload, n, ok)
	}
}

func TestDecodeFrameFramed(t *testing.T) {
	// C = 11ccccdd, D = 10dddddd; encode cmdStart (0x2) with payload 0x15.
	payload := byte(0x15)
	cmd := cmdStart
	c := frameCByte | (cmd << 2) | (payload >> 6)
	dByte := frameDByte | (payload & 0x3F)
	gotCmd, gotPayload, n, ok := decodeFrame([]byte{c, dByte})
	if !ok || n != 2 || gotCmd != cmd || gotPayload != payload {
		t.Fatalf("decodeFrame framed = %v %v %v %v, want %v %v 2 true", gotCmd, gotPayload, n, ok, cmd, payload)
	}
}

func TestDecodeFrameIncomplete(t *testing.T) {
	c := frameCByte | (cmdStart << 2)
	_, _, _, ok := decodeFrame([]byte{c})
	if ok {
		t.Fatal("expected decodeFrame to report incomplete for a dangling C byte")
	}
}
