package transfer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/3leaps/storagekit/pkg/output"
	"github.com/3leaps/storagekit/pkg/provider"
)

func TestErrorCode(t *testing.T) {
	providerErr := func(sentinel error) error {
		return &provider.ProviderError{
			Op:         "GetObject",
			Provider:   provider.ProviderS3,
			Repository: "test",
			Key:        "k.csv",
			Err:        sentinel,
		}
	}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"extension mismatch", &ExtensionMismatchError{Source: "a.csv", Target: "b.json"}, output.ErrCodeExtensionMismatch},
		{"precondition", providerErr(provider.ErrPreconditionFailed), output.ErrCodePreconditionFailed},
		{"not found", providerErr(provider.ErrNotFound), output.ErrCodeNotFound},
		{"repository not found", providerErr(provider.ErrRepositoryNotFound), output.ErrCodeRepositoryNotFound},
		{"access denied", providerErr(provider.ErrAccessDenied), output.ErrCodeAccessDenied},
		{"invalid credentials", providerErr(provider.ErrInvalidCredentials), output.ErrCodeInvalidCredentials},
		{"throttled", providerErr(provider.ErrThrottled), output.ErrCodeThrottled},
		{"unavailable", providerErr(provider.ErrProviderUnavailable), output.ErrCodeProviderUnavailable},
		{"canceled", context.Canceled, output.ErrCodeTimeout},
		{"wrapped deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), output.ErrCodeTimeout},
		{"unknown", errors.New("some random error"), output.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestExtensionMismatchError(t *testing.T) {
	err := checkExtensions("folder/a.csv", "folder/b.json")
	var mismatch *ExtensionMismatchError
	assert.True(t, errors.As(err, &mismatch))
	assert.True(t, IsExtensionMismatch(err))
	assert.Equal(t, `extension mismatch: "folder/a.csv" (.csv) -> "folder/b.json" (.json)`, err.Error())

	err = checkExtensions("a.csv", "b")
	assert.Contains(t, err.Error(), "(no extension)")

	assert.NoError(t, checkExtensions("a.CSV", "b.csv"))
	assert.NoError(t, checkExtensions("a", "b"))
}

func TestBatchError(t *testing.T) {
	cause := &provider.ProviderError{Op: "PutObject", Err: provider.ErrAccessDenied}
	err := &BatchError{Op: "sync", Result: &BatchResult{
		Succeeded: []ItemResult{{Source: "a/1.csv", Target: "b/1.csv"}},
		Failed:    []ItemResult{{Source: "a/2.csv", Target: "b/2.csv", Err: cause}},
	}}

	assert.True(t, IsPartialFailure(err))
	assert.Contains(t, err.Error(), "sync: 1 of 2 objects failed")
	assert.Contains(t, err.Error(), "a/2.csv")
	assert.Equal(t, []error{cause}, err.Errors())

	// Item causes are not reachable through the batch error.
	assert.False(t, provider.IsAccessDenied(err))
}
