package symbol

// Part identifies which segment of a telegram a field belongs to.
type Part int

const (
	MasterData Part = iota
	SlaveAck
	SlaveData
	MasterAck
)

// CompareResult is the outcome of comparing two symbol strings for cache
// de-duplication (spec.md §3: "compare_to").
type CompareResult int

const (
	Equal CompareResult = iota
	EqualExceptSource
	Different
)

// masterHeaderLen is the data offset for a master part: QQ ZZ PB SB NN.
const masterHeaderLen = 5

// slaveHeaderLen is the data offset for a slave part: NN.
const slaveHeaderLen = 1

// symbolString is the shared unescaped-byte-buffer implementation backing
// MasterSymbols and SlaveSymbols, grounded on inetdiag/structs.go's
// struct-with-methods-over-a-byte-buffer style.
type symbolString struct {
	b          []byte
	dataOffset int
}

func (s *symbolString) Append(b ...byte) {
	s.b = append(s.b, b...)
}

func (s *symbolString) Len() int {
	return len(s.b)
}

// DataLen returns NN, the declared data length, or -1 if the header
// hasn't arrived yet.
func (s *symbolString) DataLen() int {
	if len(s.b) < s.dataOffset {
		return -1
	}
	return int(s.b[s.dataOffset-1])
}

// DataAt returns the i'th data byte (0-indexed past the header).
func (s *symbolString) DataAt(i int) (byte, bool) {
	idx := s.dataOffset + i
	if idx >= len(s.b) {
		return 0, false
	}
	return s.b[idx], true
}

// IsComplete reports whether enough bytes have arrived to cover the
// header plus NN plus one trailing CRC byte.
func (s *symbolString) IsComplete() bool {
	if len(s.b) < s.dataOffset {
		return false
	}
	nn := int(s.b[s.dataOffset-1])
	return len(s.b) >= s.dataOffset+nn+1
}

// AdjustHeader sets NN to the current data size (total length minus
// header minus the not-yet-appended CRC byte).
func (s *symbolString) AdjustHeader() error {
	size := len(s.b) - s.dataOffset
	if size < 0 {
		return ErrTooShort
	}
	if size > 255 {
		return ErrHeaderOverflow
	}
	if size > MaxData {
		return ErrDataTooLong
	}
	s.b[s.dataOffset-1] = byte(size)
	return nil
}

// CalcCRC computes the CRC over this string's escaped form, excluding any
// trailing CRC byte already appended (callers append it themselves).
func (s *symbolString) CalcCRC() byte {
	return CalcCRC(Escape(s.b))
}

func (s *symbolString) Bytes() []byte {
	return s.b
}

func compare(a, b []byte, sourceIdx int) CompareResult {
	if len(a) != len(b) {
		return Different
	}
	sourceDiffers := false
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if i == sourceIdx {
			sourceDiffers = true
			continue
		}
		return Different
	}
	if sourceDiffers {
		return EqualExceptSource
	}
	return Equal
}

// MasterSymbols is the unescaped master part of a telegram: QQ ZZ PB SB NN
// D1..DN CRC.
type MasterSymbols struct {
	symbolString
}

// NewMasterSymbols creates an empty master symbol string.
func NewMasterSymbols() *MasterSymbols {
	return &MasterSymbols{symbolString{dataOffset: masterHeaderLen}}
}

// Source returns QQ, the sending master's address.
func (m *MasterSymbols) Source() (Symbol, bool) {
	if len(m.b) < 1 {
		return 0, false
	}
	return Symbol(m.b[0]), true
}

// Dest returns ZZ, the destination address.
func (m *MasterSymbols) Dest() (Symbol, bool) {
	if len(m.b) < 2 {
		return 0, false
	}
	return Symbol(m.b[1]), true
}

// PBSB returns the primary/secondary command bytes.
func (m *MasterSymbols) PBSB() (pb, sb byte, ok bool) {
	if len(m.b) < 4 {
		return 0, 0, false
	}
	return m.b[2], m.b[3], true
}

// CompareTo compares two master symbol strings, treating index 0 (QQ) as
// the "source" position that may legitimately differ between otherwise
// identical telegrams from different masters (spec.md §3).
func (m *MasterSymbols) CompareTo(other *MasterSymbols) CompareResult {
	return compare(m.b, other.b, 0)
}

// SlaveSymbols is the unescaped slave part of a telegram: NN D1..DN CRC.
type SlaveSymbols struct {
	symbolString
}

// NewSlaveSymbols creates an empty slave symbol string.
func NewSlaveSymbols() *SlaveSymbols {
	return &SlaveSymbols{symbolString{dataOffset: slaveHeaderLen}}
}

// CompareTo compares two slave symbol strings. Slave parts carry no
// source byte, so there is no "equal except source" case.
func (s *SlaveSymbols) CompareTo(other *SlaveSymbols) CompareResult {
	r := compare(s.b, other.b, -1)
	if r == EqualExceptSource {
		return Different
	}
	return r
}
