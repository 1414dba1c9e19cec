package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/3leaps/storagekit/pkg/provider"
)

// Provider implements provider.Backend for Google Cloud Storage.
type Provider struct {
	client     *storage.Client
	projectID  string
	signer     string
	privateKey []byte
}

// Ensure Provider implements the interfaces.
var (
	_ provider.Backend      = (*Provider)(nil)
	_ provider.ObjectCopier = (*Provider)(nil)
)

// New creates a new GCS backend.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Anonymous() {
		opts = append(opts, option.WithoutAuthentication())
	} else {
		keyJSON, err := cfg.ServiceAccountJSON()
		if err != nil {
			return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderGCS, Err: err}
		}
		opts = append(opts, option.WithCredentialsJSON(keyJSON))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderGCS,
			Err:      errors.Join(provider.ErrInvalidCredentials, err),
		}
	}

	return &Provider{
		client:     client,
		projectID:  cfg.ProjectID,
		signer:     cfg.ClientEmail,
		privateKey: []byte(normalizeKey(cfg.PrivateKey)),
	}, nil
}

// Type returns provider.ProviderGCS.
func (p *Provider) Type() provider.ProviderType {
	return provider.ProviderGCS
}

// ListRepositories returns every bucket in the project.
func (p *Provider) ListRepositories(ctx context.Context) ([]provider.Repository, error) {
	var repos []provider.Repository

	it := p.client.Buckets(ctx, p.projectID)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, p.wrapError("ListRepositories", "", "", err)
		}
		repos = append(repos, provider.Repository{Name: attrs.Name, CreatedAt: attrs.Created.UTC()})
	}
	return repos, nil
}

// CreateRepository creates a bucket in the project with default attributes.
func (p *Provider) CreateRepository(ctx context.Context, name string) error {
	if err := p.client.Bucket(name).Create(ctx, p.projectID, nil); err != nil {
		return p.wrapError("CreateRepository", name, "", err)
	}
	return nil
}

// ListObjects returns every object whose name starts with prefix.
func (p *Provider) ListObjects(ctx context.Context, repo, prefix string) ([]provider.ObjectSummary, error) {
	query := &storage.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name", "Size", "Generation", "Updated"}); err != nil {
		return nil, p.wrapError("ListObjects", repo, "", err)
	}

	var objects []provider.ObjectSummary
	it := p.client.Bucket(repo).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, p.wrapError("ListObjects", repo, "", err)
		}
		objects = append(objects, provider.ObjectSummary{
			Key:          attrs.Name,
			Size:         attrs.Size,
			Version:      formatGeneration(attrs.Generation),
			LastModified: attrs.Updated.UTC(),
		})
	}
	return objects, nil
}

// GetObject downloads an object into memory.
func (p *Provider) GetObject(ctx context.Context, repo, key string) ([]byte, error) {
	r, err := p.client.Bucket(repo).Object(key).NewReader(ctx)
	if err != nil {
		return nil, p.wrapError("GetObject", repo, key, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, p.wrapError("GetObject", repo, key, err)
	}
	return data, nil
}

// PutObject uploads an object.
//
// Precondition.IfMatch is a generation number; IfNoneMatch maps to
// DoesNotExist.
func (p *Provider) PutObject(ctx context.Context, repo, key string, data []byte, opts provider.PutOptions) error {
	obj := p.client.Bucket(repo).Object(key)
	cond, err := conditions(opts.Precondition)
	if err != nil {
		return p.wrapError("PutObject", repo, key, err)
	}
	if cond != nil {
		obj = obj.If(*cond)
	}

	w := obj.NewWriter(ctx)
	if opts.ContentType != "" {
		w.ContentType = opts.ContentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return p.wrapError("PutObject", repo, key, err)
	}
	if err := w.Close(); err != nil {
		return p.wrapError("PutObject", repo, key, err)
	}
	return nil
}

// DeleteObject deletes an object. Absent objects yield provider.ErrNotFound.
func (p *Provider) DeleteObject(ctx context.Context, repo, key string) error {
	if err := p.client.Bucket(repo).Object(key).Delete(ctx); err != nil {
		return p.wrapError("DeleteObject", repo, key, err)
	}
	return nil
}

// HeadObject returns object attributes.
func (p *Provider) HeadObject(ctx context.Context, repo, key string) (*provider.ObjectMeta, error) {
	attrs, err := p.client.Bucket(repo).Object(key).Attrs(ctx)
	if err != nil {
		return nil, p.wrapError("HeadObject", repo, key, err)
	}

	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         attrs.Size,
			Version:      formatGeneration(attrs.Generation),
			LastModified: attrs.Updated.UTC(),
		},
		ContentType: attrs.ContentType,
		Metadata:    attrs.Metadata,
	}, nil
}

// CopyObject performs a server-side rewrite, across buckets if needed.
//
// Precondition.IfMatch guards the source generation; IfNoneMatch guards
// the destination.
func (p *Provider) CopyObject(ctx context.Context, src, dst provider.ObjectRef, opts provider.CopyOptions) error {
	srcObj := p.client.Bucket(src.Repository).Object(src.Key)
	dstObj := p.client.Bucket(dst.Repository).Object(dst.Key)

	if opts.Precondition.IfMatch != "" {
		gen, err := parseGeneration(opts.Precondition.IfMatch)
		if err != nil {
			return p.wrapError("CopyObject", src.Repository, src.Key, err)
		}
		srcObj = srcObj.If(storage.Conditions{GenerationMatch: gen})
	}
	if opts.Precondition.IfNoneMatch {
		dstObj = dstObj.If(storage.Conditions{DoesNotExist: true})
	}

	if _, err := dstObj.CopierFrom(srcObj).Run(ctx); err != nil {
		return p.wrapError("CopyObject", dst.Repository, dst.Key, err)
	}
	return nil
}

// SignURL issues a V4 signed GET URL valid for ttl.
func (p *Provider) SignURL(ctx context.Context, repo, key string, ttl time.Duration) (string, error) {
	_ = ctx
	opts := &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
		Scheme:  storage.SigningSchemeV4,
	}
	if len(p.privateKey) > 0 {
		opts.GoogleAccessID = p.signer
		opts.PrivateKey = p.privateKey
	}

	u, err := p.client.Bucket(repo).SignedURL(key, opts)
	if err != nil {
		return "", p.wrapError("SignURL", repo, key, err)
	}
	return u, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

func conditions(pre provider.Precondition) (*storage.Conditions, error) {
	if pre.IsZero() {
		return nil, nil
	}
	if pre.IfNoneMatch {
		return &storage.Conditions{DoesNotExist: true}, nil
	}
	gen, err := parseGeneration(pre.IfMatch)
	if err != nil {
		return nil, err
	}
	return &storage.Conditions{GenerationMatch: gen}, nil
}

// parseGeneration reads a version token. A token that is not a generation
// number can never match.
func parseGeneration(version string) (int64, error) {
	gen, err := strconv.ParseInt(version, 10, 64)
	if err != nil || gen <= 0 {
		return 0, provider.ErrPreconditionFailed
	}
	return gen, nil
}

func formatGeneration(gen int64) string {
	if gen == 0 {
		return ""
	}
	return strconv.FormatInt(gen, 10)
}

// wrapError converts GCS errors to provider errors with appropriate sentinel errors.
func (p *Provider) wrapError(op, repo, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:         op,
		Provider:   provider.ProviderGCS,
		Repository: repo,
		Key:        key,
		Err:        err,
	}

	switch {
	case errors.Is(err, storage.ErrBucketNotExist):
		wrapped.Err = provider.Classify(provider.ErrRepositoryNotFound, err)
		return wrapped
	case errors.Is(err, storage.ErrObjectNotExist):
		wrapped.Err = provider.Classify(provider.ErrNotFound, err)
		return wrapped
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return wrapped
	}
	switch apiErr.Code {
	case http.StatusNotFound:
		if key != "" {
			wrapped.Err = provider.Classify(provider.ErrNotFound, err)
		} else {
			wrapped.Err = provider.Classify(provider.ErrRepositoryNotFound, err)
		}
	case http.StatusConflict:
		if key == "" {
			wrapped.Err = provider.Classify(provider.ErrRepositoryExists, err)
		} else {
			wrapped.Err = provider.Classify(provider.ErrPreconditionFailed, err)
		}
	case http.StatusPreconditionFailed:
		wrapped.Err = provider.Classify(provider.ErrPreconditionFailed, err)
	case http.StatusUnauthorized:
		wrapped.Err = provider.Classify(provider.ErrInvalidCredentials, err)
	case http.StatusForbidden:
		wrapped.Err = provider.Classify(provider.ErrAccessDenied, err)
	case http.StatusTooManyRequests:
		wrapped.Err = provider.Classify(provider.ErrThrottled, err)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		wrapped.Err = provider.Classify(provider.ErrProviderUnavailable, err)
	}
	return wrapped
}
