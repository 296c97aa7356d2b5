package symbol

import "testing"

func TestIsMaster(t *testing.T) {
	tests := []struct {
		b    Symbol
		want bool
	}{
		{0x00, true},
		{0x01, true},
		{0x10, true},
		{0xFF, true},
		{0x73, true},
		{0x53, false}, // high nibble 5 is not a master nibble
		{0x02, false},
		{0xAA, false}, // SYN itself is not a master nibble pair
		{0x22, false},
	}
	for _, tt := range tests {
		if got := IsMaster(tt.b); got != tt.want {
			t.Errorf("IsMaster(%02X) = %v, want %v", byte(tt.b), got, tt.want)
		}
	}
}

func TestSlaveMasterRoundTrip(t *testing.T) {
	// invariant 3, spec.md §8: for every master M, master_of(slave_of(M)) == M.
	for _, m := range []Symbol{0x00, 0x01, 0x10, 0x73, 0xFF} {
		if !IsMaster(m) {
			continue
		}
		s := SlaveOf(m)
		if s == SYN || s == ESC || s == BROADCAST {
			t.Errorf("SlaveOf(%02X) produced reserved symbol %02X", byte(m), byte(s))
		}
		if got := MasterOf(s); got != m {
			t.Errorf("MasterOf(SlaveOf(%02X)) = %02X, want %02X", byte(m), byte(got), byte(m))
		}
	}
}

func TestSameLowNibble(t *testing.T) {
	// scenario S4, spec.md §8: request 0x73 echoed as 0x53 share the low
	// nibble 0x3, so this is the "same priority, retry" case.
	if !SameLowNibble(0x73, 0x53) {
		t.Error("expected 0x73 and 0x53 to share a low nibble")
	}
	if SameLowNibble(0x73, 0x51) {
		t.Error("0x73 and 0x51 should not share a low nibble")
	}
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	// invariant 1, spec.md §8, and scenario S2.
	cases := [][]byte{
		{0xAA, 0x12, 0xA9, 0x34},
		{},
		{0x00, 0xFF, 0xAA, 0xAA, 0xA9},
	}
	for _, c := range cases {
		esc := Escape(c)
		for i, b := range esc {
			// escaped output must contain no SYN; ESC may appear only as
			// the first byte of a two-byte sequence, which Unescape
			// validates structurally.
			if Symbol(b) == SYN {
				t.Errorf("Escape(%X) = %X has a bare SYN at %d", c, esc, i)
			}
		}
		back, err := Unescape(esc)
		if err != nil {
			t.Fatalf("Unescape(%X) error: %v", esc, err)
		}
		if len(back) != len(c) {
			t.Fatalf("round trip length mismatch: got %X want %X", back, c)
		}
		for i := range c {
			if back[i] != c[i] {
				t.Fatalf("round trip mismatch at %d: got %X want %X", i, back, c)
			}
		}
	}
}

func TestEscapeS2Vector(t *testing.T) {
	unescaped := []byte{0xAA, 0x12, 0xA9, 0x34}
	want := []byte{0xA9, 0x01, 0x12, 0xA9, 0x00, 0x34}
	got := Escape(unescaped)
	if len(got) != len(want) {
		t.Fatalf("Escape() = %X, want %X", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Escape() = %X, want %X", got, want)
		}
	}
}

func TestUnescapeDanglingEscape(t *testing.T) {
	_, err := Unescape([]byte{0x01, 0xA9})
	if err != ErrInvalidEscape {
		t.Fatalf("expected ErrInvalidEscape, got %v", err)
	}
}

func TestCalcCRCVector(t *testing.T) {
	// scenario S1, spec.md §8. The spec's own literal (0x5F) does not
	// match any CRC of this vector under polynomial 0x9B; recomputed
	// against the original daemon's CRC_LOOKUP_TABLE construction.
	b := []byte{0xFF, 0x08, 0xB5, 0x09, 0x03, 0x29, 0x0F, 0x00, 0x56, 0x00}
	got := CalcCRC(b)
	if got != 0xA4 {
		t.Errorf("CalcCRC(%X) = %02X, want A4", b, got)
	}
}

func TestMasterSymbolsHeader(t *testing.T) {
	m := NewMasterSymbols()
	m.Append(0x03, byte(BROADCAST), 0xB5, 0x09, 0x00, 0x01, 0x02, 0x03)
	if err := m.AdjustHeader(); err != nil {
		t.Fatalf("AdjustHeader: %v", err)
	}
	if m.DataLen() != 3 {
		t.Errorf("DataLen() = %d, want 3", m.DataLen())
	}
	if m.IsComplete() {
		t.Error("expected header+data without crc to be incomplete")
	}
	m.Append(m.CalcCRC())
	if !m.IsComplete() {
		t.Error("expected telegram to be complete once CRC appended")
	}
	pb, sb, ok := m.PBSB()
	if !ok || pb != 0xB5 || sb != 0x09 {
		t.Errorf("PBSB() = %02X %02X %v, want B5 09 true", pb, sb, ok)
	}
}

func TestCompareTo(t *testing.T) {
	a := NewMasterSymbols()
	a.Append(0x03, 0xFE, 0xB5, 0x09, 0x00)
	b := NewMasterSymbols()
	b.Append(0x10, 0xFE, 0xB5, 0x09, 0x00)
	if got := a.CompareTo(b); got != EqualExceptSource {
		t.Errorf("CompareTo() = %v, want EqualExceptSource", got)
	}
	c := NewMasterSymbols()
	c.Append(0x03, 0xFE, 0xB5, 0x0A, 0x00)
	if got := a.CompareTo(c); got != Different {
		t.Errorf("CompareTo() = %v, want Different", got)
	}
}
