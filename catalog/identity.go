package catalog

// SourceClass distinguishes who may send a message matching a given
// identity key, per spec.md §4.4.
type SourceClass int

const (
	SourceAny            SourceClass = 0 // passive, any master
	SourceActiveRead     SourceClass = 0x1E
	SourceActiveReadToMaster SourceClass = 0x1E
	SourceActiveWrite    SourceClass = 0x1F
	SourceActiveWriteToMaster SourceClass = 0x1F
)

// Key is the 64-bit identity key of spec.md §4.4: id length (3 bits),
// source class (5 bits), dst address (8 bits), PB (8 bits), SB (8 bits),
// and a 32-bit XOR-fold of any further id bytes.
type Key uint64

// MakeKey packs the identity key fields. idBytes is PB, SB followed by
// zero to four further id bytes (spec.md §3 "id_bytes").
func MakeKey(class SourceClass, dst byte, idBytes []byte) Key {
	if len(idBytes) < 2 {
		panic("catalog: id_bytes must have at least PB, SB")
	}
	pb, sb := idBytes[0], idBytes[1]
	rest := idBytes[2:]
	idLen := uint64(len(idBytes))

	var fold uint32
	for _, b := range rest {
		fold ^= uint32(b)
	}

	var k uint64
	k |= (idLen & 0x7) << 61
	k |= (uint64(class) & 0x1F) << 56
	k |= uint64(dst) << 48
	k |= uint64(pb) << 40
	k |= uint64(sb) << 32
	k |= uint64(fold)
	return Key(k)
}

// IDLen extracts the id length field packed by MakeKey.
func (k Key) IDLen() int { return int((uint64(k) >> 61) & 0x7) }

// ShortenedKeys returns the sequence of keys to probe on lookup,
// iteratively shortening id length and dropping the source class, per
// spec.md §4.4 "Lookup of a received telegram iteratively shortens the
// id length and drops the source class until a match is found."
func ShortenedKeys(class SourceClass, dst byte, idBytes []byte) []Key {
	var keys []Key
	for n := len(idBytes); n >= 2; n-- {
		keys = append(keys, MakeKey(class, dst, idBytes[:n]))
		keys = append(keys, MakeKey(SourceAny, dst, idBytes[:n]))
	}
	return keys
}
