package catalog

import (
	"sync"
	"time"

	"github.com/ebusd-go/ebusd/symbol"
)

// Part names where a field's bytes live within a telegram, per spec.md
// §3 "Message definition".
type Part int

const (
	PartMasterData Part = iota
	PartSlaveAck
	PartSlaveData
	PartMasterAck
)

// Field describes one decoded value within a Message's data, per
// spec.md §3.
type Field struct {
	Name    string
	Part    Part
	Pos     int
	Codec   CodecType
	Scale   float64
	Unit    string
	Comment string
}

// FieldSet is the ordered list of a Message's fields.
type FieldSet []Field

// Message is an immutable definition of one eBUS telegram shape, plus
// mutable last-observed state written only by the protocol thread and
// read by clients under Mu (spec.md §5 "Shared state").
type Message struct {
	Circuit string
	Name    string
	Level   string
	Comment string

	IsWrite   bool
	IsPassive bool
	IsScan    bool

	SrcAddress symbol.Symbol // SYN = any
	DstAddress symbol.Symbol // SYN = derive later
	IDBytes    []byte        // PB, SB, + 0..4 further id bytes

	Fields FieldSet

	PollPriority int
	Condition    Condition

	Mu             sync.Mutex
	LastMaster     *symbol.MasterSymbols
	LastSlave      *symbol.SlaveSymbols
	LastUpdateTime time.Time
	LastChangeTime time.Time
	LastPollTime   time.Time
	PollOrder      int64
}

// Key computes the message's identity key under the given source
// class, per spec.md §4.4.
func (m *Message) Key(class SourceClass) Key {
	return MakeKey(class, byte(m.DstAddress), m.IDBytes)
}

// Available reports whether the message is currently visible to
// resolution: its condition is absent or currently evaluates true
// (spec.md §3 "Condition").
func (m *Message) Available(now time.Time, resolve ConditionResolver) bool {
	if m.Condition == nil {
		return true
	}
	return m.Condition.Evaluate(now, resolve)
}

// StoreLastData records a completed telegram's master/slave parts
// against the message, advancing LastUpdateTime always and
// LastChangeTime only when the decoded bytes actually differ from the
// previous observation (spec.md §4.5 "Cache and notifications").
func (m *Message) StoreLastData(now time.Time, master *symbol.MasterSymbols, slave *symbol.SlaveSymbols) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	changed := m.LastMaster == nil || master.CompareTo(m.LastMaster) != symbol.Equal
	if !changed && slave != nil && m.LastSlave != nil {
		changed = slave.CompareTo(m.LastSlave) != symbol.Equal
	}

	m.LastMaster = master
	m.LastSlave = slave
	m.LastUpdateTime = now
	if changed {
		m.LastChangeTime = now
	}
	return changed
}

// derive clones a dst_address=SYN template Message to a concrete
// destination, per spec.md §4.4 "Derivation". The derived Message is a
// fresh value with its own last-value state and is keyed independently
// of the template.
func (m *Message) derive(dst symbol.Symbol) *Message {
	d := *m
	d.DstAddress = dst
	d.Mu = sync.Mutex{}
	d.LastMaster = nil
	d.LastSlave = nil
	d.LastUpdateTime = time.Time{}
	d.LastChangeTime = time.Time{}
	return &d
}

// ChainedMessage spans multiple telegrams sharing a circuit/name and an
// identity prefix, one id_bytes/length pair per part (spec.md §3
// "Chained message").
type ChainedMessage struct {
	Message
	PartIDBytes  [][]byte
	PartLengths  []int

	mu         sync.Mutex
	parts      map[int]chainedPart
	windowSecs float64
}

type chainedPart struct {
	master *symbol.MasterSymbols
	slave  *symbol.SlaveSymbols
	seenAt time.Time
}

// NewChainedMessage builds a ChainedMessage with the freshness window
// of spec.md §3: "15s × part count".
func NewChainedMessage(base Message, partIDBytes [][]byte, partLengths []int) *ChainedMessage {
	return &ChainedMessage{
		Message:     base,
		PartIDBytes: partIDBytes,
		PartLengths: partLengths,
		parts:       make(map[int]chainedPart),
		windowSecs:  15 * float64(len(partIDBytes)),
	}
}

// StorePart records one part's reception. Once every part has arrived
// within the freshness window, it assembles and stores the combined
// master/slave strings on the embedded Message and returns true. If the
// window has expired, previously stored parts are dropped first.
func (c *ChainedMessage) StorePart(now time.Time, partIndex int, master *symbol.MasterSymbols, slave *symbol.SlaveSymbols) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	windowStart := now.Add(-time.Duration(c.windowSecs * float64(time.Second)))
	for idx, p := range c.parts {
		if p.seenAt.Before(windowStart) {
			delete(c.parts, idx)
		}
	}

	c.parts[partIndex] = chainedPart{master: master, slave: slave, seenAt: now}
	if len(c.parts) != len(c.PartIDBytes) {
		return false
	}

	var masterBytes, slaveBytes []byte
	for i := 0; i < len(c.PartIDBytes); i++ {
		p, ok := c.parts[i]
		if !ok {
			return false
		}
		masterBytes = append(masterBytes, p.master.Bytes()...)
		if p.slave != nil {
			slaveBytes = append(slaveBytes, p.slave.Bytes()...)
		}
	}
	combinedMaster := symbol.NewMasterSymbols()
	combinedMaster.Append(masterBytes...)
	var combinedSlave *symbol.SlaveSymbols
	if len(slaveBytes) > 0 {
		cs := symbol.NewSlaveSymbols()
		cs.Append(slaveBytes...)
		combinedSlave = cs
	}
	c.Message.StoreLastData(now, combinedMaster, combinedSlave)
	c.parts = make(map[int]chainedPart)
	return true
}
