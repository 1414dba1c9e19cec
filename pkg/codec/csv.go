package codec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

func decodeCSV(data []byte, shape Shape, s settings) (any, error) {
	if shape == ShapeMapping {
		return nil, &ShapeError{Shape: shape, Ext: ExtCSV}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = s.delimiter
	r.ReuseRecord = false

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		if shape == ShapeTable {
			return &Table{Rows: [][]any{}}, nil
		}
		return []map[string]any{}, nil
	}
	if err != nil {
		return nil, newDecodeError(ExtCSV, data, err)
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	t := &Table{Columns: header, Rows: [][]any{}}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, newDecodeError(ExtCSV, data, err)
		}
		row := make([]any, len(rec))
		for j, cell := range rec {
			if s.inferTypes {
				row[j] = inferCell(cell)
			} else {
				row[j] = cell
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := t.validate(); err != nil {
		return nil, newDecodeError(ExtCSV, data, err)
	}

	if shape == ShapeTable {
		return t, nil
	}
	return t.Records(), nil
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}

// inferCell parses a cell as int64, float64 or bool, in that order.
func inferCell(cell string) any {
	if cell == "" {
		return nil
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	if b, err := strconv.ParseBool(cell); err == nil {
		return b
	}
	return cell
}

func encodeCSV(value any, delimiter rune) ([]byte, error) {
	t, ok := asTable(value)
	if !ok {
		return nil, fmt.Errorf("cannot encode %T as csv", value)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delimiter

	if len(t.Columns) > 0 {
		if err := writeRecord(w, &buf, t.Columns); err != nil {
			return nil, err
		}
	}
	rec := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		for j := range t.Columns {
			var cell any
			if j < len(row) {
				cell = row[j]
			}
			s, err := formatCell(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, t.Columns[j], err)
			}
			rec[j] = s
		}
		if err := writeRecord(w, &buf, rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeRecord writes rec through w. A record made of one empty field would
// come out as a blank line, which readers skip, so it is written quoted.
func writeRecord(w *csv.Writer, buf *bytes.Buffer, rec []string) error {
	if len(rec) != 1 || rec[0] != "" {
		return w.Write(rec)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	buf.WriteString("\"\"\n")
	return nil
}

func formatCell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.FormatInt(int64(t), 10), nil
	case int8:
		return strconv.FormatInt(int64(t), 10), nil
	case int16:
		return strconv.FormatInt(int64(t), 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return formatFloat(float64(t), 32), nil
	case float64:
		return formatFloat(t, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	case map[string]any, []any:
		return "", fmt.Errorf("nested value %T is not representable in csv", v)
	}
	return fmt.Sprint(v), nil
}

// formatFloat keeps a fractional part on integral values so typed decoding
// reads them back as float64.
func formatFloat(f float64, bitSize int) string {
	s := strconv.FormatFloat(f, 'f', -1, bitSize)
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		s += ".0"
	}
	return s
}
