package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors, reachable through errors.Is on the typed errors below.
var (
	// ErrUnsupportedShape indicates the requested shape cannot be produced
	// for the extension.
	ErrUnsupportedShape = errors.New("unsupported shape")

	// ErrDecode indicates the payload is malformed for its extension.
	ErrDecode = errors.New("decode failed")

	// ErrEncode indicates the value cannot be serialized for the extension.
	ErrEncode = errors.New("encode failed")
)

// PreviewLen is the number of payload bytes carried by a DecodeError.
const PreviewLen = 64

// DecodeError reports a payload that could not be decoded.
type DecodeError struct {
	// Ext is the lowercased extension that selected the decoder.
	Ext string

	// Preview holds at most PreviewLen leading bytes of the payload.
	Preview []byte

	Err error
}

func newDecodeError(ext string, data []byte, err error) *DecodeError {
	n := len(data)
	if n > PreviewLen {
		n = PreviewLen
	}
	preview := make([]byte, n)
	copy(preview, data[:n])
	return &DecodeError{Ext: ext, Preview: preview, Err: err}
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v (preview %q)", extLabel(e.Ext), e.Err, e.Preview)
}

// Unwrap returns the cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// EncodeError reports a value that could not be encoded.
type EncodeError struct {
	Ext string
	Err error
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", extLabel(e.Ext), e.Err)
}

// Unwrap returns the cause.
func (e *EncodeError) Unwrap() error { return e.Err }

// Is matches ErrEncode.
func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

// ShapeError reports a shape that the extension's codec cannot produce.
type ShapeError struct {
	Shape Shape
	Ext   string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape %q not supported for %s", e.Shape, extLabel(e.Ext))
}

// Is matches ErrUnsupportedShape.
func (e *ShapeError) Is(target error) bool { return target == ErrUnsupportedShape }

func extLabel(ext string) string {
	if ext == "" {
		return "(no extension)"
	}
	return "." + ext
}
