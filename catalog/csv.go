package catalog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/ebusd-go/ebusd/symbol"
)

// csvRow is the fixed-width prefix of a catalog data row (spec.md §6
// "CSV catalog"), decoded with gocarina/gocsv the way the teacher's
// cmd/csvtool uses it for tabular (un)marshalling. The variable number
// of trailing field-group columns is not a fixed struct shape, so
// those are parsed separately from the raw record (see DESIGN.md).
type csvRow struct {
	Type    string `csv:"type"`
	Circuit string `csv:"circuit"`
	Name    string `csv:"name"`
	Comment string `csv:"comment"`
	Src     string `csv:"src"`
	Dst     string `csv:"dst"`
	PBSB    string `csv:"pbsb"`
	ID      string `csv:"id"`
}

// csvRowHeader matches the canonical column prefix that gocsv maps into
// csvRow; any columns after ID are the repeating field groups
// (name, part, position, type, divisor, unit, comment) and are parsed
// directly off the raw CSV record, one 7-column group per field (see
// parseFields).
var csvRowHeader = []string{"type", "circuit", "name", "comment", "src", "dst", "pbsb", "id"}

// dumpRow is a normalized, fixed-shape view of a loaded Message, used by
// cmd/catalogtool's -dump mode. Because it has one row per field (not
// per message), it is a clean fit for gocsv.Marshal, unlike the raw
// catalog row format above.
type dumpRow struct {
	Circuit string `csv:"circuit"`
	Name    string `csv:"name"`
	Key     string `csv:"key"`
	Field   string `csv:"field"`
	Codec   string `csv:"codec"`
	Part    string `csv:"part"`
	Pos     int    `csv:"pos"`
}

// MarshalDump writes the catalog's messages as dumpRow records via
// gocsv, one row per field, for inspection by cmd/catalogtool.
func MarshalDump(msgs []*Message, w io.Writer) error {
	var rows []dumpRow
	for _, m := range msgs {
		key := fmt.Sprintf("%016X", uint64(m.Key(classOf(m))))
		if len(m.Fields) == 0 {
			rows = append(rows, dumpRow{Circuit: m.Circuit, Name: m.Name, Key: key})
			continue
		}
		for _, f := range m.Fields {
			rows = append(rows, dumpRow{
				Circuit: m.Circuit,
				Name:    m.Name,
				Key:     key,
				Field:   f.Name,
				Codec:   f.Codec.String(),
				Part:    partName(f.Part),
				Pos:     f.Pos,
			})
		}
	}
	return gocsv.Marshal(rows, w)
}

func partName(p Part) string {
	switch p {
	case PartMasterData:
		return "master_data"
	case PartSlaveAck:
		return "slave_ack"
	case PartSlaveData:
		return "slave_data"
	case PartMasterAck:
		return "master_ack"
	default:
		return "unknown"
	}
}

// LoadCSV parses one catalog file's contents per spec.md §6: instruction
// lines starting with "!" and condition-definition lines "[name]" are
// recognized but not themselves file-discovery mechanics (that scanning
// is out of scope, spec.md §9); ordinary rows are decoded through
// csvRow's gocsv-mapped prefix plus hand-parsed field groups. Rows
// following a condition line are skipped without being parsed, so the
// returned condition map is always empty.
func LoadCSV(r io.Reader) ([]*Message, map[string]Condition, error) {
	scanner := bufio.NewScanner(r)
	var dataLines []string
	conditions := make(map[string]Condition)
	var currentCondition string

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "!"):
			continue // include/load-file instruction: file-discovery mechanics are out of scope
		case strings.HasPrefix(line, "["):
			if end := strings.Index(line, "]"); end > 0 {
				currentCondition = line[1:end]
			}
			continue
		default:
			if currentCondition != "" {
				// Condition body rows are skipped; they are not parsed.
				continue
			}
			dataLines = append(dataLines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	var msgs []*Message
	for _, line := range dataLines {
		fields := strings.Split(line, ",")
		if len(fields) < len(csvRowHeader) {
			return nil, nil, fmt.Errorf("catalog: row has too few columns: %q", line)
		}
		var row csvRow
		header := append([]string{}, csvRowHeader...)
		if err := gocsv.UnmarshalBytesToCallback(
			[]byte(strings.Join(header, ",")+"\n"+strings.Join(fields[:len(csvRowHeader)], ",")+"\n"),
			func(r csvRow) error { row = r; return nil },
		); err != nil {
			return nil, nil, fmt.Errorf("catalog: decoding row prefix: %w", err)
		}

		m, err := rowToMessage(row, fields[len(csvRowHeader):])
		if err != nil {
			return nil, nil, fmt.Errorf("catalog: row %q: %w", line, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, conditions, nil
}

func rowToMessage(row csvRow, fieldCols []string) (*Message, error) {
	isWrite := strings.HasPrefix(row.Type, "w")
	isPassive := strings.HasPrefix(row.Type, "u")
	pollPriority := 0
	if strings.HasPrefix(row.Type, "r") && len(row.Type) > 1 {
		p, err := strconv.Atoi(row.Type[1:])
		if err == nil {
			pollPriority = p
		}
	}

	src, err := parseAddress(row.Src)
	if err != nil {
		return nil, err
	}
	dst, err := parseAddress(row.Dst)
	if err != nil {
		return nil, err
	}

	pbsbBytes, err := hexPairs(strings.ReplaceAll(row.PBSB, " ", ""))
	if err != nil || len(pbsbBytes) < 2 {
		return nil, fmt.Errorf("invalid pbsb %q: %w", row.PBSB, err)
	}
	idBytes := append([]byte{}, pbsbBytes...)
	if row.ID != "" {
		extra, err := hexPairs(row.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", row.ID, err)
		}
		idBytes = append(idBytes, extra...)
	}
	if len(idBytes) < 2 {
		return nil, fmt.Errorf("id_bytes must have at least PB, SB")
	}

	fs, err := parseFields(fieldCols)
	if err != nil {
		return nil, err
	}

	return &Message{
		Circuit:      row.Circuit,
		Name:         row.Name,
		Comment:      row.Comment,
		IsWrite:      isWrite,
		IsPassive:    isPassive,
		SrcAddress:   src,
		DstAddress:   dst,
		IDBytes:      idBytes,
		Fields:       fs,
		PollPriority: pollPriority,
	}, nil
}

// parseFields decodes the repeating field-group tail of a row: each
// field occupies a group of 7 columns (name, part, position, type,
// divisor, unit, comment); the last group may end after type.
func parseFields(cols []string) (FieldSet, error) {
	const groupWidth = 7
	var fs FieldSet
	for i := 0; i+4 <= len(cols); i += groupWidth {
		name := cols[i]
		part, err := parsePart(cols[i+1])
		if err != nil {
			return nil, err
		}
		pos, err := strconv.Atoi(cols[i+2])
		if err != nil {
			return nil, fmt.Errorf("invalid field position %q: %w", cols[i+2], err)
		}
		codec, err := ParseCodecType(cols[i+3])
		if err != nil {
			return nil, err
		}
		scale := 1.0
		unit, comment := "", ""
		if i+4 < len(cols) && cols[i+4] != "" {
			if s, err := strconv.ParseFloat(cols[i+4], 64); err == nil {
				scale = s
			}
		}
		if i+5 < len(cols) {
			unit = cols[i+5]
		}
		if i+6 < len(cols) {
			comment = cols[i+6]
		}
		fs = append(fs, Field{Name: name, Part: part, Pos: pos, Codec: codec, Scale: scale, Unit: unit, Comment: comment})
	}
	return fs, nil
}

func parsePart(s string) (Part, error) {
	switch strings.ToLower(s) {
	case "m", "master_data":
		return PartMasterData, nil
	case "s", "slave_data":
		return PartSlaveData, nil
	case "slave_ack":
		return PartSlaveAck, nil
	case "master_ack":
		return PartMasterAck, nil
	default:
		return 0, fmt.Errorf("catalog: unknown field part %q", s)
	}
}

func parseAddress(s string) (symbol.Symbol, error) {
	if s == "" {
		return symbol.SYN, nil
	}
	b, err := hexPairs(s)
	if err != nil || len(b) != 1 {
		return 0, fmt.Errorf("catalog: invalid address %q", s)
	}
	return symbol.Symbol(b[0]), nil
}

func hexPairs(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex %q", s)
	}
	out := make([]byte, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		n, err := strconv.ParseUint(s[i:i+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out = append(out, byte(n))
	}
	return out, nil
}
