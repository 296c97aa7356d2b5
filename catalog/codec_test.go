package catalog

import (
	"errors"
	"testing"

	"github.com/go-test/deep"
)

func TestDecodeBCD(t *testing.T) {
	v, err := Decode(BCD, []byte{0x42}, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := deep.Equal(v, numVal(42)); diff != nil {
		t.Error(diff)
	}
}

func TestDecodeBCDReserved(t *testing.T) {
	_, err := Decode(BCD, []byte{0xFF}, 1)
	if !errors.Is(err, ErrReserved) {
		t.Fatalf("err = %v, want ErrReserved", err)
	}
}

func TestDecodeD1BNegative(t *testing.T) {
	v, err := Decode(D1B, []byte{0xFF}, 1) // -1 as int8
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Num != -1 {
		t.Errorf("D1B(0xFF) = %v, want -1", v.Num)
	}
}

func TestDecodeD2BScaled(t *testing.T) {
	// 0x0100 little-endian = 256 raw, /256 = 1.0
	v, err := Decode(D2B, []byte{0x00, 0x01}, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Num != 1.0 {
		t.Errorf("D2B = %v, want 1.0", v.Num)
	}
}

func TestDecodeHDY(t *testing.T) {
	v, err := Decode(HDY, []byte{3}, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Str != "Wed" {
		t.Errorf("HDY(3) = %q, want Wed", v.Str)
	}
}

func TestDecodeBDY(t *testing.T) {
	v, err := Decode(BDY, []byte{0x07}, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Str != "Sun" {
		t.Errorf("BDY(0x07) = %q, want Sun", v.Str)
	}
}

func TestEncodeDecodeRoundTripBCD(t *testing.T) {
	b, err := Encode(BCD, numVal(77), 1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v, err := Decode(BCD, b, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Num != 77 {
		t.Errorf("round trip = %v, want 77", v.Num)
	}
}

func TestEncodeDecodeRoundTripD2C(t *testing.T) {
	b, err := Encode(D2C, numVal(12.5), 1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v, err := Decode(D2C, b, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Num != 12.5 {
		t.Errorf("round trip = %v, want 12.5", v.Num)
	}
}

func TestHexCodec(t *testing.T) {
	v, err := Decode(HEX, []byte{0xDE, 0xAD}, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Str != "DE AD" {
		t.Errorf("HEX = %q, want %q", v.Str, "DE AD")
	}
	b, err := Encode(HEX, v, 1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if diff := deep.Equal(b, []byte{0xDE, 0xAD}); diff != nil {
		t.Error(diff)
	}
}

func TestASCTrimsNulPadding(t *testing.T) {
	v, err := Decode(ASC, []byte("hi\x00\x00"), 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Str != "hi" {
		t.Errorf("ASC = %q, want %q", v.Str, "hi")
	}
}

func TestParseCodecType(t *testing.T) {
	c, err := ParseCodecType("d2b")
	if err != nil || c != D2B {
		t.Errorf("ParseCodecType(d2b) = %v, %v", c, err)
	}
	if _, err := ParseCodecType("nope"); err == nil {
		t.Error("expected error for unknown codec type")
	}
}
