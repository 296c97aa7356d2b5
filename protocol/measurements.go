package protocol

import "time"

// Measurements holds the running min/max symbol latency (send->echo) and
// arbitration delay (last-SYN->own-QQ), per spec.md §4.3. BusLoop updates
// only the symbol latency fields; ArbDelayMin and ArbDelayMax are not
// filled and stay zero.
type Measurements struct {
	SymbolLatencyMin, SymbolLatencyMax time.Duration
	ArbDelayMin, ArbDelayMax           time.Duration
}

func (m *Measurements) observeSymbolLatency(d time.Duration) {
	if m.SymbolLatencyMin == 0 || d < m.SymbolLatencyMin {
		m.SymbolLatencyMin = d
	}
	if d > m.SymbolLatencyMax {
		m.SymbolLatencyMax = d
	}
}

func (m *Measurements) observeArbDelay(d time.Duration) {
	if m.ArbDelayMin == 0 || d < m.ArbDelayMin {
		m.ArbDelayMin = d
	}
	if d > m.ArbDelayMax {
		m.ArbDelayMax = d
	}
}
