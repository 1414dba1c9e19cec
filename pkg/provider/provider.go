// Package provider defines the backend capability contract for cloud object
// storage.
//
// A Backend is the narrow, stateless surface every provider adapter
// implements. The repository (bucket/container) is an explicit argument on
// every call; session state such as the active repository lives above this
// layer in pkg/storage. Content is materialized in memory.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend abstracts primitive object storage operations for one provider.
//
// Implementations should:
//   - Map provider errors to the sentinels in errors.go, wrapped in *ProviderError
//   - Exhaust pagination internally (ListRepositories, ListObjects)
//   - Be safe for concurrent use
type Backend interface {
	// Type identifies the provider behind this backend.
	Type() ProviderType

	// ListRepositories enumerates every repository visible to the credentials.
	// Order is provider-defined.
	ListRepositories(ctx context.Context) ([]Repository, error)

	// CreateRepository creates a repository.
	// Returns ErrRepositoryExists if the provider reports a name conflict.
	CreateRepository(ctx context.Context, name string) error

	// ListObjects returns every object whose key starts with prefix.
	// The listing is recursive (no delimiter) and covers all pages.
	ListObjects(ctx context.Context, repo, prefix string) ([]ObjectSummary, error)

	// GetObject downloads the full object body.
	// Returns ErrNotFound if the object does not exist.
	GetObject(ctx context.Context, repo, key string) ([]byte, error)

	// PutObject uploads data, overwriting any existing object unless
	// opts.Precondition says otherwise.
	PutObject(ctx context.Context, repo, key string, data []byte, opts PutOptions) error

	// DeleteObject removes an object.
	// Adapters whose provider treats deletes of absent keys as success may
	// return nil in that case; callers needing strict semantics check first.
	DeleteObject(ctx context.Context, repo, key string) error

	// HeadObject returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	HeadObject(ctx context.Context, repo, key string) (*ObjectMeta, error)

	// SignURL issues a time-limited URL granting anonymous read access.
	SignURL(ctx context.Context, repo, key string, ttl time.Duration) (string, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Repository is a provider-level bucket or container.
type Repository struct {
	// Name is unique within the provider account/project.
	Name string `json:"repository"`

	// CreatedAt is when the repository was created (or last modified, for
	// providers that only report that). Zero if unknown.
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ObjectRef addresses one object in one repository.
type ObjectRef struct {
	Repository string
	Key        string
}

// String returns repository/key.
func (r ObjectRef) String() string {
	return r.Repository + "/" + r.Key
}

// ObjectSummary contains basic metadata returned from ListObjects.
type ObjectSummary struct {
	// Key is the full object key (path) in the repository.
	Key string

	// Size is the object size in bytes.
	Size int64

	// Version is the provider's change token: the ETag for S3 and Azure,
	// the object generation for GCS. Used for preconditions.
	Version string

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// ObjectMeta contains full metadata for a single object.
// Returned by HeadObject.
type ObjectMeta struct {
	ObjectSummary

	// ContentType is the MIME type of the object.
	ContentType string

	// Metadata contains user-defined metadata key-value pairs.
	Metadata map[string]string
}

// EntryKind distinguishes leaf objects from folder prefixes in a listing.
type EntryKind string

const (
	// EntryFile is a leaf object.
	EntryFile EntryKind = "file"

	// EntryFolder is an intermediate prefix (path ends with "/").
	EntryFolder EntryKind = "folder"
)

// ObjectEntry is one immediate child in a directory-style listing.
type ObjectEntry struct {
	Path string    `json:"object"`
	Kind EntryKind `json:"type"`
}

// Precondition guards a write against concurrent modification.
//
// The zero value means no precondition: writes overwrite unconditionally.
type Precondition struct {
	// IfMatch requires the version of the guarded object to equal this
	// token. For PutObject the guarded object is the destination; for
	// CopyObject it is the source.
	IfMatch string

	// IfNoneMatch requires the destination not to exist.
	IfNoneMatch bool
}

// IsZero reports whether no condition is set.
func (p Precondition) IsZero() bool {
	return p.IfMatch == "" && !p.IfNoneMatch
}

// PutOptions configures PutObject.
type PutOptions struct {
	ContentType  string
	Precondition Precondition
}

// CopyOptions configures CopyObject.
type CopyOptions struct {
	Precondition Precondition
}

// ProviderType identifies a cloud storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderAzure represents Azure Blob Storage.
	ProviderAzure ProviderType = "azure"

	// ProviderGCS represents Google Cloud Storage.
	ProviderGCS ProviderType = "gcs"

	// ProviderFile represents a local filesystem tree.
	ProviderFile ProviderType = "file"
)

// ProviderTypes lists every supported provider in display order.
var ProviderTypes = []ProviderType{ProviderS3, ProviderAzure, ProviderGCS, ProviderFile}

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// ParseProviderType maps a user-facing provider tag ("S3", "Azure", "GCS",
// "GCP", "File") to a ProviderType. Matching is case-insensitive.
func ParseProviderType(tag string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "s3":
		return ProviderS3, nil
	case "azure":
		return ProviderAzure, nil
	case "gcs", "gcp":
		return ProviderGCS, nil
	case "file", "local":
		return ProviderFile, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, tag)
}
