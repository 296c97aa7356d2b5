package dispatcher

import (
	"testing"
	"time"

	"github.com/ebusd-go/ebusd/catalog"
)

func TestCacheChangedSinceWindow(t *testing.T) {
	c := NewCache()
	t0 := time.Now()

	m1 := &catalog.Message{Circuit: "heating", Name: "a", IDBytes: []byte{0xB5, 0x09}}
	m1.LastChangeTime = t0
	m2 := &catalog.Message{Circuit: "heating", Name: "b", IDBytes: []byte{0xB5, 0x0A}}
	m2.LastChangeTime = t0.Add(time.Hour)

	c.Touch(m1)
	c.Touch(m2)

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	in := c.ChangedSince(t0.Add(-time.Minute), t0.Add(time.Minute))
	if len(in) != 1 || in[0] != m1 {
		t.Errorf("ChangedSince window = %v, want only m1", in)
	}
}
