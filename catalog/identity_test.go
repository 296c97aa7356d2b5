package catalog

import "testing"

func TestMakeKeyRoundTripsIDLen(t *testing.T) {
	k := MakeKey(SourceActiveRead, 0x52, []byte{0xB5, 0x09, 0x01, 0x02})
	if k.IDLen() != 4 {
		t.Errorf("IDLen = %d, want 4", k.IDLen())
	}
}

func TestMakeKeyDiffersOnDst(t *testing.T) {
	a := MakeKey(SourceActiveRead, 0x52, []byte{0xB5, 0x09})
	b := MakeKey(SourceActiveRead, 0x53, []byte{0xB5, 0x09})
	if a == b {
		t.Error("keys with different dst addresses must differ")
	}
}

func TestMakeKeyFoldIsOrderIndependent(t *testing.T) {
	// The XOR-fold of further id bytes is order-independent by
	// construction, so these two id_bytes sequences collide on key.
	a := MakeKey(SourceActiveRead, 0x52, []byte{0xB5, 0x09, 0x01, 0x02})
	b := MakeKey(SourceActiveRead, 0x52, []byte{0xB5, 0x09, 0x02, 0x01})
	if a != b {
		t.Error("expected XOR-fold to be order-independent for these id bytes")
	}
}

func TestShortenedKeysIncludesFullAndSourceAny(t *testing.T) {
	idBytes := []byte{0xB5, 0x09, 0x01}
	keys := ShortenedKeys(SourceActiveRead, 0x52, idBytes)
	full := MakeKey(SourceActiveRead, 0x52, idBytes)
	found := false
	for _, k := range keys {
		if k == full {
			found = true
		}
	}
	if !found {
		t.Error("expected the full-length key to be among the shortened candidates")
	}
	shortest := MakeKey(SourceAny, 0x52, idBytes[:2])
	found = false
	for _, k := range keys {
		if k == shortest {
			found = true
		}
	}
	if !found {
		t.Error("expected a SourceAny, minimal-length key among the candidates")
	}
}
