package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/storagekit/pkg/codec"
	"github.com/3leaps/storagekit/pkg/output"
	"github.com/3leaps/storagekit/pkg/provider"
)

var (
	// ErrExtensionMismatch indicates source and target extensions differ.
	ErrExtensionMismatch = errors.New("extension mismatch")

	// ErrPartialFailure indicates at least one item of a batch failed.
	ErrPartialFailure = errors.New("partial batch failure")
)

// ExtensionMismatchError is returned before any network call when a copy or
// move would change the object's file extension.
type ExtensionMismatchError struct {
	Source string
	Target string
}

func (e *ExtensionMismatchError) Error() string {
	return fmt.Sprintf("extension mismatch: %q (%s) -> %q (%s)",
		e.Source, extLabel(e.Source), e.Target, extLabel(e.Target))
}

// Is reports ErrExtensionMismatch.
func (e *ExtensionMismatchError) Is(target error) bool {
	return target == ErrExtensionMismatch
}

func extLabel(p string) string {
	if ext := codec.Ext(p); ext != "" {
		return "." + ext
	}
	return "no extension"
}

// BatchError reports a batch in which some items failed. Items that
// succeeded stay applied; Result enumerates both sides.
type BatchError struct {
	Op     string
	Result *BatchResult
}

func (e *BatchError) Error() string {
	failed := len(e.Result.Failed)
	total := failed + len(e.Result.Succeeded)
	msg := fmt.Sprintf("%s: %d of %d objects failed", e.Op, failed, total)
	if failed > 0 {
		first := e.Result.Failed[0]
		msg += fmt.Sprintf(" (first: %s: %v)", first.Source, first.Err)
	}
	return msg
}

// Is reports ErrPartialFailure.
func (e *BatchError) Is(target error) bool {
	return target == ErrPartialFailure
}

// Errors returns the per-item failures in batch order.
func (e *BatchError) Errors() []error {
	errs := make([]error, 0, len(e.Result.Failed))
	for _, item := range e.Result.Failed {
		errs = append(errs, item.Err)
	}
	return errs
}

// IsExtensionMismatch returns true if the error is an extension mismatch.
func IsExtensionMismatch(err error) bool {
	return errors.Is(err, ErrExtensionMismatch)
}

// IsPartialFailure returns true if the error reports a partial batch.
func IsPartialFailure(err error) bool {
	return errors.Is(err, ErrPartialFailure)
}

// ErrorCode maps an item error to a JSONL error code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case IsExtensionMismatch(err):
		return output.ErrCodeExtensionMismatch
	case provider.IsPreconditionFailed(err):
		return output.ErrCodePreconditionFailed
	case provider.IsNotFound(err):
		return output.ErrCodeNotFound
	case provider.IsRepositoryNotFound(err):
		return output.ErrCodeRepositoryNotFound
	case provider.IsAccessDenied(err):
		return output.ErrCodeAccessDenied
	case provider.IsInvalidCredentials(err):
		return output.ErrCodeInvalidCredentials
	case provider.IsThrottled(err):
		return output.ErrCodeThrottled
	case provider.IsProviderUnavailable(err):
		return output.ErrCodeProviderUnavailable
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return output.ErrCodeTimeout
	default:
		return output.ErrCodeInternal
	}
}

// checkExtensions fails when src and dst extensions differ, ignoring case.
func checkExtensions(src, dst string) error {
	if codec.Ext(src) != codec.Ext(dst) {
		return &ExtensionMismatchError{Source: src, Target: dst}
	}
	return nil
}
