package azure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/3leaps/storagekit/pkg/provider"
)

// Provider implements provider.Backend for Azure Blob Storage.
type Provider struct {
	client       *azblob.Client
	pollInterval time.Duration
}

// Ensure Provider implements the interfaces.
var (
	_ provider.Backend      = (*Provider)(nil)
	_ provider.ObjectCopier = (*Provider)(nil)
)

// New creates a new Azure Blob backend from a connection string.
// No network call is made until the first operation.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderAzure,
			Err:      errors.Join(provider.ErrInvalidCredentials, err),
		}
	}

	poll := cfg.CopyPollInterval
	if poll <= 0 {
		poll = DefaultCopyPollInterval
	}

	return &Provider{client: client, pollInterval: poll}, nil
}

// Type returns provider.ProviderAzure.
func (p *Provider) Type() provider.ProviderType {
	return provider.ProviderAzure
}

// ListRepositories returns every container in the account.
// CreatedAt carries the container's last-modified time.
func (p *Provider) ListRepositories(ctx context.Context) ([]provider.Repository, error) {
	var repos []provider.Repository

	pager := p.client.NewListContainersPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, p.wrapError("ListRepositories", "", "", err)
		}
		for _, c := range page.ContainerItems {
			if c == nil || c.Name == nil {
				continue
			}
			repo := provider.Repository{Name: *c.Name}
			if c.Properties != nil && c.Properties.LastModified != nil {
				repo.CreatedAt = c.Properties.LastModified.UTC()
			}
			repos = append(repos, repo)
		}
	}
	return repos, nil
}

// CreateRepository creates a private container.
func (p *Provider) CreateRepository(ctx context.Context, name string) error {
	if _, err := p.client.CreateContainer(ctx, name, nil); err != nil {
		return p.wrapError("CreateRepository", name, "", err)
	}
	return nil
}

// ListObjects returns every blob whose name starts with prefix (flat listing).
func (p *Provider) ListObjects(ctx context.Context, repo, prefix string) ([]provider.ObjectSummary, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}

	var objects []provider.ObjectSummary
	pager := p.client.NewListBlobsFlatPager(repo, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, p.wrapError("ListObjects", repo, "", err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			obj := provider.ObjectSummary{Key: *item.Name}
			if props := item.Properties; props != nil {
				if props.ContentLength != nil {
					obj.Size = *props.ContentLength
				}
				if props.ETag != nil {
					obj.Version = string(*props.ETag)
				}
				if props.LastModified != nil {
					obj.LastModified = props.LastModified.UTC()
				}
			}
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

// GetObject downloads a blob into memory.
func (p *Provider) GetObject(ctx context.Context, repo, key string) ([]byte, error) {
	resp, err := p.client.DownloadStream(ctx, repo, key, nil)
	if err != nil {
		return nil, p.wrapError("GetObject", repo, key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.wrapError("GetObject", repo, key, err)
	}
	return data, nil
}

// PutObject uploads a block blob.
//
// Precondition.IfMatch maps to If-Match on the destination ETag;
// IfNoneMatch maps to If-None-Match: *.
func (p *Provider) PutObject(ctx context.Context, repo, key string, data []byte, opts provider.PutOptions) error {
	upload := &azblob.UploadBufferOptions{}
	if opts.ContentType != "" {
		upload.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(opts.ContentType)}
	}
	if cond := modifiedConditions(opts.Precondition); cond != nil {
		upload.AccessConditions = &blob.AccessConditions{ModifiedAccessConditions: cond}
	}

	if _, err := p.client.UploadBuffer(ctx, repo, key, data, upload); err != nil {
		return p.wrapError("PutObject", repo, key, err)
	}
	return nil
}

// DeleteObject deletes a blob. Absent blobs yield provider.ErrNotFound.
func (p *Provider) DeleteObject(ctx context.Context, repo, key string) error {
	if _, err := p.client.DeleteBlob(ctx, repo, key, nil); err != nil {
		return p.wrapError("DeleteObject", repo, key, err)
	}
	return nil
}

// HeadObject returns blob properties.
func (p *Provider) HeadObject(ctx context.Context, repo, key string) (*provider.ObjectMeta, error) {
	props, err := p.blobClient(repo, key).GetProperties(ctx, nil)
	if err != nil {
		return nil, p.wrapError("HeadObject", repo, key, err)
	}

	meta := &provider.ObjectMeta{ObjectSummary: provider.ObjectSummary{Key: key}}
	if props.ContentLength != nil {
		meta.Size = *props.ContentLength
	}
	if props.ETag != nil {
		meta.Version = string(*props.ETag)
	}
	if props.LastModified != nil {
		meta.LastModified = props.LastModified.UTC()
	}
	if props.ContentType != nil {
		meta.ContentType = *props.ContentType
	}
	if len(props.Metadata) > 0 {
		meta.Metadata = make(map[string]string, len(props.Metadata))
		for k, v := range props.Metadata {
			if v != nil {
				meta.Metadata[k] = *v
			}
		}
	}
	return meta, nil
}

// CopyObject starts a server-side copy and waits for it to finish.
//
// The source is addressed by URL and authorized by the account key, so both
// containers must live in the same storage account. Precondition.IfMatch
// guards the source ETag; IfNoneMatch guards the destination.
func (p *Provider) CopyObject(ctx context.Context, src, dst provider.ObjectRef, opts provider.CopyOptions) error {
	dstClient := p.blobClient(dst.Repository, dst.Key)

	start := &blob.StartCopyFromURLOptions{}
	if opts.Precondition.IfMatch != "" {
		start.SourceModifiedAccessConditions = &blob.SourceModifiedAccessConditions{
			SourceIfMatch: to.Ptr(azcore.ETag(opts.Precondition.IfMatch)),
		}
	}
	if opts.Precondition.IfNoneMatch {
		start.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: to.Ptr(azcore.ETagAny)},
		}
	}

	resp, err := dstClient.StartCopyFromURL(ctx, p.blobClient(src.Repository, src.Key).URL(), start)
	if err != nil {
		return p.wrapError("CopyObject", dst.Repository, dst.Key, err)
	}

	status := resp.CopyStatus
	for status != nil && *status == blob.CopyStatusTypePending {
		select {
		case <-ctx.Done():
			return p.wrapError("CopyObject", dst.Repository, dst.Key, ctx.Err())
		case <-time.After(p.pollInterval):
		}
		props, err := dstClient.GetProperties(ctx, nil)
		if err != nil {
			return p.wrapError("CopyObject", dst.Repository, dst.Key, err)
		}
		status = props.CopyStatus
	}

	if status != nil && *status != blob.CopyStatusTypeSuccess {
		return p.wrapError("CopyObject", dst.Repository, dst.Key, &copyStatusError{status: *status})
	}
	return nil
}

// SignURL issues a read-only blob SAS URL valid for ttl.
// Requires the connection string to carry an AccountKey.
func (p *Provider) SignURL(ctx context.Context, repo, key string, ttl time.Duration) (string, error) {
	_ = ctx
	u, err := p.blobClient(repo, key).GetSASURL(sas.BlobPermissions{Read: true}, time.Now().UTC().Add(ttl), nil)
	if err != nil {
		return "", p.wrapError("SignURL", repo, key, err)
	}
	return u, nil
}

// Close releases any resources held by the backend.
func (p *Provider) Close() error {
	return nil
}

func (p *Provider) blobClient(repo, key string) *blob.Client {
	return p.client.ServiceClient().NewContainerClient(repo).NewBlobClient(key)
}

func modifiedConditions(pre provider.Precondition) *blob.ModifiedAccessConditions {
	if pre.IsZero() {
		return nil
	}
	cond := &blob.ModifiedAccessConditions{}
	if pre.IfMatch != "" {
		cond.IfMatch = to.Ptr(azcore.ETag(pre.IfMatch))
	}
	if pre.IfNoneMatch {
		cond.IfNoneMatch = to.Ptr(azcore.ETagAny)
	}
	return cond
}

type copyStatusError struct {
	status blob.CopyStatusType
}

func (e *copyStatusError) Error() string {
	return "copy finished with status " + string(e.status)
}

// wrapError converts Azure errors to provider errors with appropriate sentinel errors.
func (p *Provider) wrapError(op, repo, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:         op,
		Provider:   provider.ProviderAzure,
		Repository: repo,
		Key:        key,
		Err:        err,
	}
	if sentinel := classify(err, key != ""); sentinel != nil {
		wrapped.Err = provider.Classify(sentinel, err)
	}
	return wrapped
}

// classify maps an Azure error to a provider sentinel, or nil when unknown.
// objectScoped distinguishes a bare 404 on a blob from one on a container.
func classify(err error, objectScoped bool) error {
	switch {
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return provider.ErrRepositoryNotFound
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return provider.ErrNotFound
	case bloberror.HasCode(err, bloberror.ContainerAlreadyExists, bloberror.ContainerBeingDeleted):
		return provider.ErrRepositoryExists
	case bloberror.HasCode(err, bloberror.ConditionNotMet, bloberror.SourceConditionNotMet,
		bloberror.TargetConditionNotMet, bloberror.BlobAlreadyExists):
		return provider.ErrPreconditionFailed
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.InvalidAuthenticationInfo):
		return provider.ErrInvalidCredentials
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthorizationPermissionMismatch,
		bloberror.InsufficientAccountPermissions):
		return provider.ErrAccessDenied
	case bloberror.HasCode(err, bloberror.ServerBusy):
		return provider.ErrThrottled
	case bloberror.HasCode(err, bloberror.InternalError, bloberror.OperationTimedOut):
		return provider.ErrProviderUnavailable
	}

	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return nil
	}
	switch respErr.StatusCode {
	case http.StatusNotFound:
		if objectScoped {
			return provider.ErrNotFound
		}
		return provider.ErrRepositoryNotFound
	case http.StatusPreconditionFailed:
		return provider.ErrPreconditionFailed
	case http.StatusUnauthorized:
		return provider.ErrInvalidCredentials
	case http.StatusForbidden:
		return provider.ErrAccessDenied
	case http.StatusTooManyRequests:
		return provider.ErrThrottled
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return provider.ErrProviderUnavailable
	}
	return nil
}
