package catalog

import (
	"testing"
	"time"

	"github.com/ebusd-go/ebusd/symbol"
)

func buildMasterSymbols(t *testing.T, qq, zz symbol.Symbol, pb, sb byte, data []byte) *symbol.MasterSymbols {
	t.Helper()
	m := symbol.NewMasterSymbols()
	m.Append(byte(qq), byte(zz), pb, sb, 0)
	m.Append(data...)
	if err := m.AdjustHeader(); err != nil {
		t.Fatalf("AdjustHeader: %v", err)
	}
	return m
}

func TestMessageKey(t *testing.T) {
	m := &Message{DstAddress: 0x52, IDBytes: []byte{0xB5, 0x09}}
	if m.Key(SourceActiveRead) != MakeKey(SourceActiveRead, 0x52, []byte{0xB5, 0x09}) {
		t.Error("Message.Key must match MakeKey with the message's own dst/id_bytes")
	}
}

func TestMessageAvailableNoCondition(t *testing.T) {
	m := &Message{}
	if !m.Available(time.Now(), nil) {
		t.Error("a message without a condition must always be available")
	}
}

func TestStoreLastDataDetectsChange(t *testing.T) {
	m := &Message{}
	now := time.Now()
	master1 := buildMasterSymbols(t, 0x03, 0x52, 0xB5, 0x09, []byte{0x01})
	changed := m.StoreLastData(now, master1, nil)
	if !changed {
		t.Error("first store must count as a change")
	}
	if !m.LastChangeTime.Equal(now) {
		t.Error("LastChangeTime must be set on first observation")
	}

	later := now.Add(time.Second)
	master2 := buildMasterSymbols(t, 0x03, 0x52, 0xB5, 0x09, []byte{0x01})
	changed = m.StoreLastData(later, master2, nil)
	if changed {
		t.Error("identical data must not count as a change")
	}
	if !m.LastChangeTime.Equal(now) {
		t.Error("LastChangeTime must not advance when data is unchanged")
	}
	if !m.LastUpdateTime.Equal(later) {
		t.Error("LastUpdateTime must always advance")
	}
}

func TestMessageDeriveIsIndependent(t *testing.T) {
	tmpl := &Message{Circuit: "scan", Name: "id", DstAddress: symbol.SYN, IDBytes: []byte{0xB5, 0x09}}
	d := tmpl.derive(0x52)
	if d.DstAddress != 0x52 {
		t.Errorf("derived DstAddress = %v, want 0x52", d.DstAddress)
	}
	if tmpl.DstAddress != symbol.SYN {
		t.Error("deriving must not mutate the template")
	}
	master := buildMasterSymbols(t, 0x03, 0x52, 0xB5, 0x09, []byte{0x01})
	d.StoreLastData(time.Now(), master, nil)
	if tmpl.LastMaster != nil {
		t.Error("storing on a derived message must not affect the template's last-value state")
	}
}

func TestChainedMessageAssemblesAllParts(t *testing.T) {
	base := Message{Circuit: "c", Name: "chained"}
	cm := NewChainedMessage(base, [][]byte{{0xB5, 0x09}, {0xB5, 0x0A}}, []int{1, 1})
	now := time.Now()

	m0 := buildMasterSymbols(t, 0x03, 0x52, 0xB5, 0x09, []byte{0x01})
	if cm.StorePart(now, 0, m0, nil) {
		t.Fatal("must not assemble with only one of two parts present")
	}
	m1 := buildMasterSymbols(t, 0x03, 0x52, 0xB5, 0x0A, []byte{0x02})
	if !cm.StorePart(now, 1, m1, nil) {
		t.Fatal("expected assembly once both parts have arrived")
	}
	if cm.LastMaster == nil {
		t.Error("expected a combined LastMaster to be stored")
	}
}

func TestChainedMessageDropsStalePartsOutsideWindow(t *testing.T) {
	base := Message{Circuit: "c", Name: "chained"}
	cm := NewChainedMessage(base, [][]byte{{0xB5, 0x09}, {0xB5, 0x0A}}, []int{1, 1})
	t0 := time.Now()

	m0 := buildMasterSymbols(t, 0x03, 0x52, 0xB5, 0x09, []byte{0x01})
	cm.StorePart(t0, 0, m0, nil)

	// Past the 15s*2=30s freshness window: part 0 must be dropped before
	// part 1 alone is evaluated for completeness.
	late := t0.Add(31 * time.Second)
	m1 := buildMasterSymbols(t, 0x03, 0x52, 0xB5, 0x0A, []byte{0x02})
	if cm.StorePart(late, 1, m1, nil) {
		t.Error("expected stale part 0 to be dropped, leaving assembly incomplete")
	}
}
