package codec

import (
	"fmt"
	"sort"
)

// Table is tabular content with an explicit column order.
//
// Rows are positional: Rows[i][j] is the value of Columns[j]. Missing values
// are nil.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewTable builds a table from columns and rows.
func NewTable(columns []string, rows ...[]any) *Table {
	return &Table{Columns: columns, Rows: rows}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Records converts the table into one map per row.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for j, col := range t.Columns {
			if j < len(row) {
				rec[col] = row[j]
			} else {
				rec[col] = nil
			}
		}
		out = append(out, rec)
	}
	return out
}

// Column returns the values of one column, or false if it does not exist.
func (t *Table) Column(name string) ([]any, bool) {
	idx := -1
	for j, col := range t.Columns {
		if col == name {
			idx = j
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values, true
}

func (t *Table) validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	for _, col := range t.Columns {
		if _, dup := seen[col]; dup {
			return fmt.Errorf("duplicate column %q", col)
		}
		seen[col] = struct{}{}
	}
	for i, row := range t.Rows {
		if len(row) > len(t.Columns) {
			return fmt.Errorf("row %d has %d values for %d columns", i, len(row), len(t.Columns))
		}
	}
	return nil
}

// TableFromRecords builds a table from maps.
//
// Maps carry no key order, so columns are the first record's keys sorted,
// followed by keys first seen in later records (sorted within each record).
func TableFromRecords(records []map[string]any) *Table {
	t := &Table{}
	index := make(map[string]int)
	for _, rec := range records {
		var fresh []string
		for k := range rec {
			if _, ok := index[k]; !ok {
				fresh = append(fresh, k)
			}
		}
		sort.Strings(fresh)
		for _, k := range fresh {
			index[k] = len(t.Columns)
			t.Columns = append(t.Columns, k)
		}
	}

	t.Rows = make([][]any, 0, len(records))
	for _, rec := range records {
		row := make([]any, len(t.Columns))
		for k, v := range rec {
			row[index[k]] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// asTable converts any tabular content into a *Table.
func asTable(value any) (*Table, bool) {
	switch v := value.(type) {
	case *Table:
		if v == nil {
			return &Table{}, true
		}
		return v, true
	case Table:
		return &v, true
	case []map[string]any:
		return TableFromRecords(v), true
	case map[string]any:
		return TableFromRecords([]map[string]any{v}), true
	case []any:
		records := make([]map[string]any, 0, len(v))
		for _, item := range v {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			records = append(records, rec)
		}
		return TableFromRecords(records), true
	}
	return nil, false
}
