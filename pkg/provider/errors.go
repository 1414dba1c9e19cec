package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrRepositoryNotFound indicates the bucket/container does not exist.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrRepositoryExists indicates a repository with that name already exists.
	ErrRepositoryExists = errors.New("repository already exists")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderUnavailable indicates the provider service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThrottled indicates the request was rate limited by the provider.
	ErrThrottled = errors.New("request throttled")

	// ErrPreconditionFailed indicates a generation/ETag condition did not hold.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrUnsupportedProvider indicates an unknown provider tag.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// ProviderError wraps provider-specific errors with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "ListObjects", "HeadObject").
	Op string

	// Provider is the provider type (e.g., "s3").
	Provider ProviderType

	// Repository is the bucket/container name, if applicable.
	Repository string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying error. When the provider error could be
	// classified it matches one of the sentinels above through errors.Is and
	// still carries the SDK error; otherwise it is the raw SDK error.
	Err error
}

// Classify tags cause with sentinel. The result matches both through
// errors.Is and its message keeps the cause's detail.
func Classify(sentinel, cause error) error {
	switch {
	case sentinel == nil:
		return cause
	case cause == nil, errors.Is(cause, sentinel):
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Repository, e.Key, e.Err)
	}
	if e.Repository != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Repository, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsRepositoryNotFound returns true if the error indicates the repository does not exist.
func IsRepositoryNotFound(err error) bool {
	return errors.Is(err, ErrRepositoryNotFound)
}

// IsRepositoryExists returns true if the error indicates a repository name conflict.
func IsRepositoryExists(err error) bool {
	return errors.Is(err, ErrRepositoryExists)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsProviderUnavailable returns true if the error indicates the provider service is unavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsPreconditionFailed returns true if the error indicates a write condition did not hold.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrPreconditionFailed)
}
