package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// object is a decoded JSON object that remembers key order.
type object struct {
	keys []string
	vals map[string]any
}

func decodeJSON(data []byte, shape Shape) (any, error) {
	root, err := parseJSON(data)
	if err != nil {
		return nil, newDecodeError(ExtJSON, data, err)
	}

	switch shape {
	case ShapeMapping:
		obj, ok := root.(*object)
		if !ok {
			return nil, newDecodeError(ExtJSON, data, fmt.Errorf("expected object, got %s", jsonKind(root)))
		}
		return plain(obj), nil

	case ShapeRecords, ShapeTable:
		rows, err := objectRows(root)
		if err != nil {
			return nil, newDecodeError(ExtJSON, data, err)
		}
		if shape == ShapeTable {
			return orderedTable(rows), nil
		}
		records := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			records = append(records, plain(row).(map[string]any))
		}
		return records, nil
	}
	return nil, &ShapeError{Shape: shape, Ext: ExtJSON}
}

// parseJSON decodes one JSON document, keeping object key order.
func parseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &object{vals: make(map[string]any)}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("invalid object key %v", kt)
				}
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				if _, dup := obj.vals[key]; !dup {
					obj.keys = append(obj.keys, key)
				}
				obj.vals[key] = val
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		return number(t), nil
	}
	// string, bool or nil
	return tok, nil
}

// number decodes integral values as int64 and everything else as float64.
func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// plain strips key order, producing map[string]any and []any.
func plain(v any) any {
	switch t := v.(type) {
	case *object:
		m := make(map[string]any, len(t.vals))
		for k, val := range t.vals {
			m[k] = plain(val)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	}
	return v
}

// objectRows accepts an array of objects or a single object.
func objectRows(root any) ([]*object, error) {
	switch t := root.(type) {
	case *object:
		return []*object{t}, nil
	case []any:
		rows := make([]*object, 0, len(t))
		for i, item := range t {
			obj, ok := item.(*object)
			if !ok {
				return nil, fmt.Errorf("element %d: expected object, got %s", i, jsonKind(item))
			}
			rows = append(rows, obj)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("expected array of objects, got %s", jsonKind(root))
}

// orderedTable builds a table whose columns follow first-seen key order.
func orderedTable(rows []*object) *Table {
	t := &Table{Rows: make([][]any, 0, len(rows))}
	index := make(map[string]int)
	for _, row := range rows {
		for _, k := range row.keys {
			if _, ok := index[k]; !ok {
				index[k] = len(t.Columns)
				t.Columns = append(t.Columns, k)
			}
		}
	}
	for _, row := range rows {
		values := make([]any, len(t.Columns))
		for k, v := range row.vals {
			values[index[k]] = plain(v)
		}
		t.Rows = append(t.Rows, values)
	}
	return t
}

func jsonKind(v any) string {
	switch v.(type) {
	case *object:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case nil:
		return "null"
	}
	return "number"
}

func encodeJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case *Table:
		if v == nil {
			return []byte("[]"), nil
		}
		return encodeJSONTable(v)
	case Table:
		return encodeJSONTable(&v)
	}
	return json.Marshal(value)
}

// encodeJSONTable writes an array of objects with keys in column order.
func encodeJSONTable(t *Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range t.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return nil, err
			}
			var cell any
			if j < len(row) {
				cell = row[j]
			}
			val, err := json.Marshal(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, col, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
