package codec

import (
	"fmt"
	"strings"
)

// Shape selects the in-memory representation produced by Decode.
type Shape string

const (
	// ShapeBytes returns the raw payload as []byte.
	ShapeBytes Shape = "bytes"

	// ShapeText returns the raw payload as a string.
	ShapeText Shape = "text"

	// ShapeMapping returns a map[string]any. JSON objects only.
	ShapeMapping Shape = "mapping"

	// ShapeRecords returns []map[string]any, one map per row.
	ShapeRecords Shape = "records"

	// ShapeTable returns a *Table with ordered columns.
	ShapeTable Shape = "table"
)

// Shapes lists every shape in display order.
var Shapes = []Shape{ShapeTable, ShapeRecords, ShapeMapping, ShapeText, ShapeBytes}

// String returns the shape name.
func (s Shape) String() string { return string(s) }

// Valid reports whether s is a known shape.
func (s Shape) Valid() bool {
	for _, known := range Shapes {
		if s == known {
			return true
		}
	}
	return false
}

// ParseShape parses a shape name, case-insensitively.
func ParseShape(name string) (Shape, error) {
	s := Shape(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedShape, name)
	}
	return s, nil
}
