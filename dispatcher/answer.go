package dispatcher

import (
	"bytes"
	"sync"
)

// answerKey identifies a registered answer template: PB, SB, and an
// optional id-byte prefix further disambiguating it (spec.md §4.5
// "templates (src|ANY, dst, pb, sb, id_prefix)").
type answerKey struct {
	pb, sb byte
}

type answerEntry struct {
	idPrefix []byte
	data     []byte
}

// AnswerMap is the write-once-per-key answer registry of spec.md §5:
// "The answer map is write-once per key from client threads, read by
// the protocol thread." Grounded on cache/cache.go's single-writer map
// discipline, specialized to reject overwrites instead of swapping
// generations.
type AnswerMap struct {
	mu      sync.RWMutex
	entries map[answerKey][]answerEntry
}

// NewAnswerMap creates an empty AnswerMap.
func NewAnswerMap() *AnswerMap {
	return &AnswerMap{entries: make(map[answerKey][]answerEntry)}
}

// Register installs an answer template. It returns false without
// modifying the map if an entry with the same (pb, sb, idPrefix) already
// exists, enforcing the write-once rule.
func (a *AnswerMap) Register(pb, sb byte, idPrefix, data []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := answerKey{pb, sb}
	for _, e := range a.entries[k] {
		if bytes.Equal(e.idPrefix, idPrefix) {
			return false
		}
	}
	a.entries[k] = append(a.entries[k], answerEntry{idPrefix: append([]byte{}, idPrefix...), data: append([]byte{}, data...)})
	return true
}

// Lookup finds the longest matching id-prefix entry for (pb, sb),
// called from the protocol thread when answering a passive query
// addressed to the engine's own slave address.
func (a *AnswerMap) Lookup(pb, sb byte, idPrefix []byte) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var best answerEntry
	found := false
	for _, e := range a.entries[answerKey{pb, sb}] {
		if !bytes.HasPrefix(idPrefix, e.idPrefix) {
			continue
		}
		if !found || len(e.idPrefix) > len(best.idPrefix) {
			best = e
			found = true
		}
	}
	if !found {
		return nil, false
	}
	return append([]byte{}, best.data...), true
}
