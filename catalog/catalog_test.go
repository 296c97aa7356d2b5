package catalog

import (
	"testing"
	"time"

	"github.com/ebusd-go/ebusd/symbol"
)

func TestCatalogByNameRespectsLevel(t *testing.T) {
	c := NewCatalog()
	c.Add(&Message{Circuit: "heating", Name: "temp", Level: "expert", IDBytes: []byte{0xB5, 0x09}})

	allowNone := func(level string) bool { return level == "" }
	if _, ok := c.ByName("heating", "temp", false, time.Now, allowNone); ok {
		t.Error("expected lookup to be denied for a level the caller does not hold")
	}
	allowExpert := func(level string) bool { return true }
	if _, ok := c.ByName("heating", "temp", false, time.Now, allowExpert); !ok {
		t.Error("expected lookup to succeed when level is allowed")
	}
}

func TestCatalogAllReturnsEveryMessage(t *testing.T) {
	c := NewCatalog()
	c.Add(&Message{Circuit: "c", Name: "a", IDBytes: []byte{0xB5, 0x09}})
	c.Add(&Message{Circuit: "c", Name: "b", IDBytes: []byte{0xB5, 0x0A}})

	all := c.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d messages, want 2", len(all))
	}
}

func TestCatalogByWireBytesShortensID(t *testing.T) {
	c := NewCatalog()
	short := &Message{Circuit: "c", Name: "short", DstAddress: 0x52, IDBytes: []byte{0xB5, 0x09}}
	c.Add(short)

	m, ok := c.ByWireBytes(SourceActiveRead, 0x52, []byte{0xB5, 0x09, 0x01, 0x02})
	if !ok {
		t.Fatal("expected ByWireBytes to find the shorter-id message via iterative shortening")
	}
	if m != short {
		t.Error("matched the wrong message")
	}
}

func TestCatalogDeriveTemplate(t *testing.T) {
	c := NewCatalog()
	tmpl := &Message{Circuit: "scan", Name: "id", DstAddress: symbol.SYN, IDBytes: []byte{0xB5, 0x09}}
	c.Add(tmpl)

	derived, err := c.Derive(0x52, 0xB5, 0x09)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if derived.DstAddress != 0x52 {
		t.Errorf("derived dst = %v, want 0x52", derived.DstAddress)
	}
	if _, err := c.Derive(0x52, 0xFF, 0xFF); err == nil {
		t.Error("expected Derive to fail for a PB/SB with no matching template")
	}
}

func TestCatalogResolveConditionReadsLastObservedField(t *testing.T) {
	c := NewCatalog()
	m := &Message{
		Circuit: "heating", Name: "mode",
		Fields: FieldSet{{Name: "value", Part: PartMasterData, Pos: 0, Codec: BCD, Scale: 1}},
	}
	c.Add(m)

	master := buildMasterSymbols(t, 0x03, 0x52, 0xB5, 0x09, []byte{0x42})
	now := time.Now()
	m.StoreLastData(now, master, nil)

	v, changeTime, err := c.resolveCondition("heating", "mode", "value")
	if err != nil {
		t.Fatalf("resolveCondition: %v", err)
	}
	if v.Num != 42 {
		t.Errorf("resolved value = %v, want 42", v.Num)
	}
	if !changeTime.Equal(now) {
		t.Error("expected resolved change time to match the stored observation")
	}
}
