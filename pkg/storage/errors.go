package storage

import (
	"errors"
	"fmt"

	"github.com/3leaps/storagekit/pkg/codec"
	"github.com/3leaps/storagekit/pkg/provider"
	"github.com/3leaps/storagekit/pkg/transfer"
)

// ErrRepositoryNotSet indicates an object operation without an active
// repository.
var ErrRepositoryNotSet = errors.New("no repository set")

// ErrorKind classifies any error returned by this module.
type ErrorKind string

// Error kinds. The empty kind means no error.
const (
	KindRepositoryNotSet        ErrorKind = "RepositoryNotSet"
	KindRepositoryNotFound      ErrorKind = "RepositoryNotFound"
	KindRepositoryAlreadyExists ErrorKind = "RepositoryAlreadyExists"
	KindObjectNotFound          ErrorKind = "ObjectNotFound"
	KindExtensionMismatch       ErrorKind = "ExtensionMismatch"
	KindDecodeError             ErrorKind = "DecodeError"
	KindEncodeError             ErrorKind = "EncodeError"
	KindUnsupportedShape        ErrorKind = "UnsupportedShape"
	KindCredentialsInvalid      ErrorKind = "CredentialsInvalid"
	KindUnsupportedProvider     ErrorKind = "UnsupportedProvider"
	KindTransportFailure        ErrorKind = "TransportFailure"
	KindPartialBatchFailure     ErrorKind = "PartialBatchFailure"
	KindPreconditionFailed      ErrorKind = "PreconditionFailed"
)

// KindOf maps err to its kind. Unclassified errors are TransportFailure.
//
// Access denied maps to CredentialsInvalid: the credentials were accepted
// but do not grant the operation.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case transfer.IsPartialFailure(err):
		return KindPartialBatchFailure
	case errors.Is(err, ErrRepositoryNotSet):
		return KindRepositoryNotSet
	case transfer.IsExtensionMismatch(err):
		return KindExtensionMismatch
	case errors.Is(err, codec.ErrUnsupportedShape):
		return KindUnsupportedShape
	case errors.Is(err, codec.ErrDecode):
		return KindDecodeError
	case errors.Is(err, codec.ErrEncode):
		return KindEncodeError
	case errors.Is(err, provider.ErrUnsupportedProvider):
		return KindUnsupportedProvider
	case provider.IsInvalidCredentials(err), provider.IsAccessDenied(err):
		return KindCredentialsInvalid
	case provider.IsRepositoryNotFound(err):
		return KindRepositoryNotFound
	case provider.IsRepositoryExists(err):
		return KindRepositoryAlreadyExists
	case provider.IsNotFound(err):
		return KindObjectNotFound
	case provider.IsPreconditionFailed(err):
		return KindPreconditionFailed
	}
	return KindTransportFailure
}

// OpError wraps a failure with the operation and the object it concerned.
type OpError struct {
	Op         string
	Repository string
	Path       string
	Err        error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	switch {
	case e.Path != "":
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Repository, e.Path, e.Err)
	case e.Repository != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Repository, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op, repo, path string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Repository: repo, Path: path, Err: err}
}
