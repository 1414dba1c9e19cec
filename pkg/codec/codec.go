// Package codec converts object payloads to and from in-memory values.
//
// The wire format is chosen by the object's file extension: .json, .csv and
// .parquet are structured; anything else is opaque and only available as
// bytes or text. Decoding is driven by a requested Shape.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Extensions with structured codecs.
const (
	ExtJSON    = "json"
	ExtCSV     = "csv"
	ExtParquet = "parquet"
)

// DefaultDelimiter is the CSV field separator.
const DefaultDelimiter = ','

// DecodeOption adjusts decoding. Options passed to New become defaults.
type DecodeOption func(*settings)

type settings struct {
	delimiter  rune
	inferTypes bool
}

// InferTypes makes CSV decoding parse cells as int64, float64 or bool where
// possible. Empty cells decode as nil.
func InferTypes() DecodeOption {
	return func(s *settings) { s.inferTypes = true }
}

// WithInferTypes sets CSV type inference explicitly.
func WithInferTypes(on bool) DecodeOption {
	return func(s *settings) { s.inferTypes = on }
}

// WithDelimiter sets the CSV field separator. Zero keeps the current one.
func WithDelimiter(r rune) DecodeOption {
	return func(s *settings) {
		if r != 0 {
			s.delimiter = r
		}
	}
}

// Codec encodes and decodes payloads. The zero value is not usable; use New.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	defaults settings
}

// New returns a Codec with the given defaults.
func New(opts ...DecodeOption) *Codec {
	s := settings{delimiter: DefaultDelimiter}
	for _, opt := range opts {
		opt(&s)
	}
	return &Codec{defaults: s}
}

// Ext returns the lowercased extension of p without the dot, or "" when
// the last path segment has none.
func Ext(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

// ContentType returns the MIME type used when uploading content with ext.
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ExtJSON:
		return "application/json"
	case ExtCSV:
		return "text/csv"
	case ExtParquet:
		return "application/vnd.apache.parquet"
	case "txt", "log", "md":
		return "text/plain; charset=utf-8"
	case "yaml", "yml":
		return "application/yaml"
	case "xml":
		return "application/xml"
	case "html", "htm":
		return "text/html; charset=utf-8"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gz":
		return "application/gzip"
	case "zip":
		return "application/zip"
	}
	return "application/octet-stream"
}

// Structured reports whether ext has a structured codec.
func Structured(ext string) bool {
	switch strings.ToLower(ext) {
	case ExtJSON, ExtCSV, ExtParquet:
		return true
	}
	return false
}

// CheckShape reports whether shape can be produced for ext without looking
// at a payload. It returns a *ShapeError when it cannot.
func CheckShape(ext string, shape Shape) error {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch shape {
	case ShapeBytes, ShapeText:
		return nil
	case ShapeRecords, ShapeTable:
		if Structured(ext) {
			return nil
		}
	case ShapeMapping:
		if ext == ExtJSON {
			return nil
		}
	}
	return &ShapeError{Shape: shape, Ext: ext}
}

// Decode converts data into the requested shape using the codec for ext.
//
// ShapeBytes and ShapeText return the payload untouched for every
// extension. Other shapes require a structured extension.
func (c *Codec) Decode(data []byte, ext string, shape Shape, opts ...DecodeOption) (any, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	s := c.defaults
	for _, opt := range opts {
		opt(&s)
	}

	switch shape {
	case ShapeBytes:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case ShapeText:
		return string(data), nil
	case ShapeMapping, ShapeRecords, ShapeTable:
	default:
		return nil, &ShapeError{Shape: shape, Ext: ext}
	}

	switch ext {
	case ExtJSON:
		return decodeJSON(data, shape)
	case ExtCSV:
		return decodeCSV(data, shape, s)
	case ExtParquet:
		return decodeParquet(data, shape)
	}
	return nil, &ShapeError{Shape: shape, Ext: ext}
}

// Encode serializes value for ext.
//
// []byte, string and json.RawMessage are written as-is for every extension;
// for .json they must hold a valid JSON document. Structured values
// (map[string]any, []map[string]any, Table, *Table) require a structured
// extension.
func (c *Codec) Encode(value any, ext string) ([]byte, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	var (
		raw      []byte
		verbatim = true
	)
	switch v := value.(type) {
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	case string:
		raw = []byte(v)
	default:
		verbatim = false
	}
	if verbatim {
		if ext == ExtJSON && !json.Valid(raw) {
			return nil, &EncodeError{Ext: ext, Err: errors.New("payload is not valid JSON")}
		}
		return raw, nil
	}

	var (
		out []byte
		err error
	)
	switch ext {
	case ExtJSON:
		out, err = encodeJSON(value)
	case ExtCSV:
		out, err = encodeCSV(value, c.defaults.delimiter)
	case ExtParquet:
		out, err = encodeParquet(value)
	default:
		err = fmt.Errorf("cannot encode %T as opaque content", value)
	}
	if err != nil {
		return nil, &EncodeError{Ext: ext, Err: err}
	}
	return out, nil
}
