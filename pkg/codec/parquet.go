package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// ColumnsMetadataKey is the file key-value metadata entry that records the
// original column order. Parquet groups store leaves sorted by name.
const ColumnsMetadataKey = "storagekit.columns"

const parquetReadBatch = 128

type columnKind int

const (
	kindNull columnKind = iota
	kindInt
	kindFloat
	kindBool
	kindString
)

func encodeParquet(value any) ([]byte, error) {
	t, ok := asTable(value)
	if !ok {
		return nil, fmt.Errorf("cannot encode %T as parquet", value)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	if len(t.Columns) == 0 {
		return nil, errors.New("parquet requires at least one column")
	}

	kinds := make([]columnKind, len(t.Columns))
	for j := range t.Columns {
		kinds[j] = inferColumnKind(t, j)
	}

	group := parquet.Group{}
	for j, col := range t.Columns {
		group[col] = parquet.Optional(parquetNode(kinds[j]))
	}
	schema := parquet.NewSchema("storagekit", group)

	// Leaf column indexes follow the group's sorted field order.
	sorted := append([]string(nil), t.Columns...)
	sort.Strings(sorted)
	leaf := make(map[string]int, len(sorted))
	for i, col := range sorted {
		leaf[col] = i
	}

	order, err := json.Marshal(t.Columns)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := parquet.NewWriter(&buf, schema, parquet.KeyValueMetadata(ColumnsMetadataKey, string(order)))

	rows := make([]parquet.Row, 0, len(t.Rows))
	for i, src := range t.Rows {
		row := make(parquet.Row, len(t.Columns))
		for j, col := range t.Columns {
			var cell any
			if j < len(src) {
				cell = src[j]
			}
			v, err := parquetValue(cell, kinds[j])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, col, err)
			}
			idx := leaf[col]
			if v.IsNull() {
				row[idx] = v.Level(0, 0, idx)
			} else {
				row[idx] = v.Level(0, 1, idx)
			}
		}
		rows = append(rows, row)
	}

	if _, err := w.WriteRows(rows); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parquetNode(kind columnKind) parquet.Node {
	switch kind {
	case kindInt:
		return parquet.Int(64)
	case kindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case kindBool:
		return parquet.Leaf(parquet.BooleanType)
	}
	return parquet.String()
}

// inferColumnKind picks the narrowest type holding every non-nil value.
// Ints widen to float when mixed with floats; other mixes fall back to string.
func inferColumnKind(t *Table, j int) columnKind {
	kind := kindNull
	for _, row := range t.Rows {
		if j >= len(row) || row[j] == nil {
			continue
		}
		k := valueKind(row[j])
		switch {
		case kind == kindNull:
			kind = k
		case kind == k:
		case (kind == kindInt && k == kindFloat) || (kind == kindFloat && k == kindInt):
			kind = kindFloat
		default:
			return kindString
		}
	}
	if kind == kindNull {
		return kindString
	}
	return kind
}

func valueKind(v any) columnKind {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return kindInt
	case float32, float64:
		return kindFloat
	case bool:
		return kindBool
	}
	return kindString
}

func parquetValue(v any, kind columnKind) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}
	switch kind {
	case kindInt:
		i, ok := toInt64(v)
		if !ok {
			return parquet.Value{}, fmt.Errorf("value %v (%T) does not fit INT64", v, v)
		}
		return parquet.Int64Value(i), nil
	case kindFloat:
		if f, ok := v.(float64); ok {
			return parquet.DoubleValue(f), nil
		}
		if f, ok := v.(float32); ok {
			return parquet.DoubleValue(float64(f)), nil
		}
		if u, ok := v.(uint64); ok {
			return parquet.DoubleValue(float64(u)), nil
		}
		i, ok := toInt64(v)
		if !ok {
			return parquet.Value{}, fmt.Errorf("value %v is not numeric", v)
		}
		return parquet.DoubleValue(float64(i)), nil
	case kindBool:
		return parquet.BooleanValue(v.(bool)), nil
	}
	s, err := formatCell(v)
	if err != nil {
		return parquet.Value{}, err
	}
	return parquet.ByteArrayValue([]byte(s)), nil
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		if uint64(t) > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	}
	return 0, false
}

func decodeParquet(data []byte, shape Shape) (any, error) {
	if shape == ShapeMapping {
		return nil, &ShapeError{Shape: shape, Ext: ExtParquet}
	}

	t, err := readParquet(data)
	if err != nil {
		return nil, newDecodeError(ExtParquet, data, err)
	}
	if shape == ShapeTable {
		return t, nil
	}
	return t.Records(), nil
}

func readParquet(data []byte) (*Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	fields := f.Schema().Fields()
	leafNames := make([]string, len(fields))
	for i, field := range fields {
		if !field.Leaf() {
			return nil, fmt.Errorf("column %q: nested columns are not supported", field.Name())
		}
		leafNames[i] = field.Name()
	}

	columns := leafNames
	if raw, ok := f.Lookup(ColumnsMetadataKey); ok {
		var stored []string
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", ColumnsMetadataKey, err)
		}
		if !sameSet(stored, leafNames) {
			return nil, fmt.Errorf("metadata %s does not match schema", ColumnsMetadataKey)
		}
		columns = stored
	}

	// position maps a leaf column index to its output position.
	position := make(map[int]int, len(leafNames))
	outIndex := make(map[string]int, len(columns))
	for j, col := range columns {
		outIndex[col] = j
	}
	for i, name := range leafNames {
		position[i] = outIndex[name]
	}

	t := &Table{Columns: columns, Rows: [][]any{}}
	buf := make([]parquet.Row, parquetReadBatch)
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, r := range buf[:n] {
				out := make([]any, len(columns))
				for _, v := range r {
					pos, ok := position[v.Column()]
					if !ok {
						continue
					}
					out[pos] = goValue(v)
				}
				t.Rows = append(t.Rows, out)
			}
			if errors.Is(err, io.EOF) || (err == nil && n == 0) {
				break
			}
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func goValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	}
	return v.String()
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			return false
		}
	}
	return len(seen) == len(b)
}
