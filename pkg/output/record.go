// Package output provides JSONL output for storagekit commands.
//
// Output is structured as typed record envelopes containing repositories,
// objects, transfers, errors and summaries. Each line is a self-contained
// JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: storagekit.<type>.v<version>
const (
	// TypeRepository identifies repository listing records.
	TypeRepository = "storagekit.repository.v1"

	// TypeObject identifies object listing and metadata records.
	TypeObject = "storagekit.object.v1"

	// TypeTransfer identifies copy/move/sync item records.
	TypeTransfer = "storagekit.transfer.v1"

	// TypeURL identifies signed URL records.
	TypeURL = "storagekit.url.v1"

	// TypeCheck identifies credential and connectivity check records.
	TypeCheck = "storagekit.check.v1"

	// TypeError identifies error records.
	TypeError = "storagekit.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "storagekit.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "storagekit.object.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this invocation.
	JobID string `json:"job_id"`

	// Provider identifies the storage provider (e.g., "s3", "gcs").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// RepositoryRecord is the data payload for repository listings.
type RepositoryRecord struct {
	Name      string    `json:"repository"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// ObjectRecord is the data payload for object entries and metadata.
//
// Listings fill Path and Kind; stat fills the remaining fields.
type ObjectRecord struct {
	Repository string `json:"repository,omitempty"`

	// Path is the object path; folders end with "/".
	Path string `json:"object"`

	// Kind is "file" or "folder".
	Kind string `json:"kind"`

	Size         int64     `json:"size,omitempty"`
	Version      string    `json:"version,omitempty"`
	LastModified time.Time `json:"last_modified,omitzero"`
	ContentType  string    `json:"content_type,omitempty"`
}

// TransferRecord is the data payload for one copied or planned object.
type TransferRecord struct {
	// Op is "copy", "move" or "sync".
	Op string `json:"op"`

	// Source and Target are repository/path references.
	Source string `json:"source"`
	Target string `json:"target"`

	// Size is the source size in bytes, when known.
	Size int64 `json:"size,omitempty"`

	// DryRun marks a planned transfer that was not performed.
	DryRun bool `json:"dry_run,omitempty"`
}

// URLRecord is the data payload for a signed read URL.
type URLRecord struct {
	Repository string    `json:"repository"`
	Path       string    `json:"object"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CheckRecord is the data payload for one doctor check.
type CheckRecord struct {
	// Check names what was verified (e.g., "credentials", "list_repositories").
	Check string `json:"check"`

	Passed    bool   `json:"passed"`
	ErrorCode string `json:"error_code,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ErrorRecord is the data payload for errors.
//
// Batch operations emit one error record per failed item rather than
// aborting, so partial results stay visible.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Path is the object path related to this error, if applicable.
	Path string `json:"object,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeAccessDenied indicates permission failure.
	ErrCodeAccessDenied = "ACCESS_DENIED"

	// ErrCodeInvalidCredentials indicates the provider rejected the credentials.
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"

	// ErrCodeNotFound indicates the object was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeRepositoryNotFound indicates the bucket/container was not found.
	ErrCodeRepositoryNotFound = "REPOSITORY_NOT_FOUND"

	// ErrCodePreconditionFailed indicates an ETag/generation condition did not hold.
	ErrCodePreconditionFailed = "PRECONDITION_FAILED"

	// ErrCodeExtensionMismatch indicates source and target extensions differ.
	ErrCodeExtensionMismatch = "EXTENSION_MISMATCH"

	// ErrCodeTimeout indicates an operation timed out or was canceled.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeThrottled indicates rate limiting.
	ErrCodeThrottled = "THROTTLED"

	// ErrCodeProviderUnavailable indicates the provider service is unavailable.
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Op is the command that produced the summary.
	Op string `json:"op"`

	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Bytes     int64 `json:"bytes"`

	// DryRun is set when nothing was written.
	DryRun bool `json:"dry_run,omitempty"`

	// Duration is the total operation duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
