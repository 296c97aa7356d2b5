package catalog

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebusd-go/ebusd/symbol"
)

// Loader is the interface a CSV catalog directory scanner or any other
// out-of-tree catalog source would implement; CSV file discovery and
// parsing mechanics beyond csv.go's row decoding are out of scope
// (spec.md §9 Non-goals).
type Loader interface {
	Load() ([]*Message, error)
}

// Catalog is the immutable-after-load message store of spec.md §4.4,
// §5 "the message catalog is immutable after load except for per-message
// last-value fields".
type Catalog struct {
	mu sync.RWMutex

	byNameKey map[nameKey]*Message
	byKey     map[Key]*Message
	templates []*Message // dst_address == SYN, eligible for derivation

	conditionsByName map[string]Condition
}

type nameKey struct {
	circuit, name string
	isWrite       bool
}

// NewCatalog builds an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byNameKey:        make(map[nameKey]*Message),
		byKey:            make(map[Key]*Message),
		conditionsByName: make(map[string]Condition),
	}
}

// Add registers a loaded Message, indexing it by name and by identity
// key, and as a derivation template when its destination is SYN.
func (c *Catalog) Add(m *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nk := nameKey{circuit: m.Circuit, name: m.Name, isWrite: m.IsWrite}
	c.byNameKey[nk] = m
	c.byKey[m.Key(classOf(m))] = m
	if m.DstAddress == symbol.SYN {
		c.templates = append(c.templates, m)
	}
}

// All returns every loaded message, in no particular order, for callers
// that need to enumerate the whole catalog (registering pollable
// messages with the dispatcher, dumping a catalog directory).
func (c *Catalog) All() []*Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Message, 0, len(c.byNameKey))
	for _, m := range c.byNameKey {
		out = append(out, m)
	}
	return out
}

// AddCondition registers a named condition so CheckAcyclic can resolve
// references by name at load time.
func (c *Catalog) AddCondition(name string, cond Condition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conditionsByName[name] = cond
	return CheckAcyclic(name, c.conditionsByName)
}

func classOf(m *Message) SourceClass {
	switch {
	case m.IsPassive:
		return SourceAny
	case m.IsWrite:
		return SourceActiveWrite
	default:
		return SourceActiveRead
	}
}

// ByName returns the first available message matching
// (circuit, name, direction, level), respecting access level (spec.md
// §4.4 "Message lookup and derivation").
func (c *Catalog) ByName(circuit, name string, isWrite bool, now timeNow, allowedLevel func(level string) bool) (*Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.byNameKey[nameKey{circuit: circuit, name: name, isWrite: isWrite}]
	if !ok {
		return nil, false
	}
	if allowedLevel != nil && !allowedLevel(m.Level) {
		return nil, false
	}
	if !m.Available(now(), c.resolveCondition) {
		return nil, false
	}
	return m, true
}

// timeNow lets callers inject the current time (tests pass a fixed
// clock) without importing "time" into every call site's signature.
type timeNow func() time.Time

// ByWireBytes looks up a received telegram by iteratively shortening
// the id length and dropping the source class (spec.md §4.4).
func (c *Catalog) ByWireBytes(class SourceClass, dst byte, idBytes []byte) (*Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, k := range ShortenedKeys(class, dst, idBytes) {
		if m, ok := c.byKey[k]; ok {
			return m, true
		}
	}
	return nil, false
}

// Derive clones the first dst_address=SYN template matching PB/SB to a
// concrete destination, caching the result independently of the
// template (spec.md §4.4 "Derivation").
func (c *Catalog) Derive(dst symbol.Symbol, pb, sb byte) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tmpl := range c.templates {
		if len(tmpl.IDBytes) >= 2 && tmpl.IDBytes[0] == pb && tmpl.IDBytes[1] == sb {
			d := tmpl.derive(dst)
			c.byKey[d.Key(classOf(d))] = d
			return d, nil
		}
	}
	return nil, fmt.Errorf("catalog: no dst_address=SYN template for PB=0x%02X SB=0x%02X", pb, sb)
}

// resolveCondition implements ConditionResolver against this catalog's
// own stored messages, used when a condition's Evaluate call needs a
// referenced field's current value.
func (c *Catalog) resolveCondition(circuit, name, field string) (Value, time.Time, error) {
	m, ok := c.byNameKey[nameKey{circuit: circuit, name: name}]
	if !ok {
		return Value{}, time.Time{}, fmt.Errorf("catalog: condition refers to unknown message %s.%s", circuit, name)
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.LastSlave == nil && m.LastMaster == nil {
		return Value{}, time.Time{}, fmt.Errorf("catalog: %s.%s has no observed value yet", circuit, name)
	}
	for _, f := range m.Fields {
		if f.Name != field {
			continue
		}
		b, ok := fieldBytes(m, f)
		if !ok {
			return Value{}, time.Time{}, fmt.Errorf("catalog: field %q not present in last observation", field)
		}
		v, err := Decode(f.Codec, b, f.Scale)
		return v, m.LastChangeTime, err
	}
	return Value{}, time.Time{}, fmt.Errorf("catalog: %s.%s has no field %q", circuit, name, field)
}

func fieldBytes(m *Message, f Field) ([]byte, bool) {
	width := f.Codec.Width()
	switch f.Part {
	case PartMasterData:
		return dataSlice(m.LastMaster, f.Pos, width)
	case PartSlaveData:
		return dataSlice(m.LastSlave, f.Pos, width)
	default:
		return nil, false
	}
}

// symbolData is the subset of symbol.MasterSymbols/SlaveSymbols needed
// to slice out a field's raw bytes.
type symbolData interface {
	DataAt(i int) (byte, bool)
}

func dataSlice(s symbolData, pos, width int) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	if width < 0 {
		width = 0
		for {
			_, ok := s.DataAt(pos + width)
			if !ok {
				break
			}
			width++
		}
	}
	out := make([]byte, 0, width)
	for i := 0; i < width; i++ {
		b, ok := s.DataAt(pos + i)
		if !ok {
			return nil, false
		}
		out = append(out, b)
	}
	return out, true
}
