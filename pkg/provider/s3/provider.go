package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/storagekit/pkg/provider"
)

// Provider implements provider.Backend for AWS S3 and S3-compatible storage.
type Provider struct {
	client  *s3.Client
	presign *s3.PresignClient
	region  string
	maxKeys int
}

// Ensure Provider implements the interfaces.
var (
	_ provider.Backend      = (*Provider)(nil)
	_ provider.ObjectCopier = (*Provider)(nil)
)

// New creates a new S3 backend with the given configuration.
//
// The backend uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Err:      err,
		}
	}

	// Build S3 client options
	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}

	// Custom endpoint for S3-compatible stores
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	return &Provider{
		client:  client,
		presign: s3.NewPresignClient(client),
		region:  awsCfg.Region,
		maxKeys: maxKeys,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, awsCfg.Region)

	return awsCfg, nil
}

// Type returns provider.ProviderS3.
func (p *Provider) Type() provider.ProviderType {
	return provider.ProviderS3
}

// ListRepositories returns all buckets owned by the caller.
func (p *Provider) ListRepositories(ctx context.Context) ([]provider.Repository, error) {
	out, err := p.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, p.wrapError("ListRepositories", "", "", err)
	}

	repos := make([]provider.Repository, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		repos = append(repos, provider.Repository{
			Name:      aws.ToString(b.Name),
			CreatedAt: aws.ToTime(b.CreationDate),
		})
	}
	return repos, nil
}

// CreateRepository creates a bucket in the configured region.
func (p *Provider) CreateRepository(ctx context.Context, name string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}

	// us-east-1 rejects an explicit location constraint.
	if p.region != "" && p.region != DefaultAWSRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.region),
		}
	}

	if _, err := p.client.CreateBucket(ctx, input); err != nil {
		return p.wrapError("CreateRepository", name, "", err)
	}
	return nil
}

// ListObjects returns every object under prefix, following continuation tokens.
func (p *Provider) ListObjects(ctx context.Context, repo, prefix string) ([]provider.ObjectSummary, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(repo),
		MaxKeys: aws.Int32(int32(clampMaxKeys(0, p.maxKeys))),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []provider.ObjectSummary
	paginator := s3.NewListObjectsV2Paginator(p.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, p.wrapError("ListObjects", repo, "", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, provider.ObjectSummary{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				Version:      cleanETag(aws.ToString(obj.ETag)),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

// GetObject downloads an object body into memory.
func (p *Provider) GetObject(ctx context.Context, repo, key string) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(repo),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, p.wrapError("GetObject", repo, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, p.wrapError("GetObject", repo, key, err)
	}
	return data, nil
}

// PutObject uploads an object.
//
// Precondition.IfMatch and IfNoneMatch map to S3 conditional writes.
func (p *Provider) PutObject(ctx context.Context, repo, key string, data []byte, opts provider.PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(repo),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.Precondition.IfMatch != "" {
		input.IfMatch = aws.String(quoteETag(opts.Precondition.IfMatch))
	}
	if opts.Precondition.IfNoneMatch {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := p.client.PutObject(ctx, input); err != nil {
		return p.wrapError("PutObject", repo, key, err)
	}
	return nil
}

// DeleteObject deletes an object.
//
// S3 reports success for absent keys.
func (p *Provider) DeleteObject(ctx context.Context, repo, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(repo), Key: aws.String(key)})
	if err != nil {
		return p.wrapError("DeleteObject", repo, key, err)
	}
	return nil
}

// HeadObject returns metadata for a single object.
func (p *Provider) HeadObject(ctx context.Context, repo, key string) (*provider.ObjectMeta, error) {
	output, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(repo),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, p.wrapError("HeadObject", repo, key, err)
	}

	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         aws.ToInt64(output.ContentLength),
			Version:      cleanETag(aws.ToString(output.ETag)),
			LastModified: aws.ToTime(output.LastModified),
		},
		ContentType: aws.ToString(output.ContentType),
		Metadata:    output.Metadata,
	}, nil
}

// CopyObject performs a server-side copy, across buckets if needed.
//
// Precondition.IfMatch guards the source ETag. S3 CopyObject has no
// destination-side condition, so IfNoneMatch is checked with a HEAD first;
// that check is not atomic with the copy.
func (p *Provider) CopyObject(ctx context.Context, src, dst provider.ObjectRef, opts provider.CopyOptions) error {
	if opts.Precondition.IfNoneMatch {
		_, err := p.HeadObject(ctx, dst.Repository, dst.Key)
		switch {
		case err == nil:
			return p.wrapError("CopyObject", dst.Repository, dst.Key, provider.ErrPreconditionFailed)
		case !provider.IsNotFound(err):
			return err
		}
	}

	input := &s3.CopyObjectInput{
		Bucket:     aws.String(dst.Repository),
		Key:        aws.String(dst.Key),
		CopySource: aws.String(copySource(src)),
	}
	if opts.Precondition.IfMatch != "" {
		input.CopySourceIfMatch = aws.String(quoteETag(opts.Precondition.IfMatch))
	}

	if _, err := p.client.CopyObject(ctx, input); err != nil {
		return p.wrapError("CopyObject", dst.Repository, dst.Key, err)
	}
	return nil
}

// SignURL presigns a GET request valid for ttl.
func (p *Provider) SignURL(ctx context.Context, repo, key string, ttl time.Duration) (string, error) {
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(repo),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", p.wrapError("SignURL", repo, key, err)
	}
	return req.URL, nil
}

// Close releases any resources held by the backend.
// The S3 client doesn't require explicit cleanup, but this satisfies the interface.
func (p *Provider) Close() error {
	return nil
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
func (p *Provider) wrapError(op, repo, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:         op,
		Provider:   provider.ProviderS3,
		Repository: repo,
		Key:        key,
		Err:        err,
	}
	if isSentinel(err) {
		return wrapped
	}

	// Check for specific S3 error types first
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	var alreadyOwned *types.BucketAlreadyOwnedByYou
	var alreadyExists *types.BucketAlreadyExists

	switch {
	case errors.As(err, &noSuchBucket):
		wrapped.Err = provider.Classify(provider.ErrRepositoryNotFound, err)
		return wrapped
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = provider.Classify(provider.ErrNotFound, err)
		return wrapped
	case errors.As(err, &alreadyOwned), errors.As(err, &alreadyExists):
		wrapped.Err = provider.Classify(provider.ErrRepositoryExists, err)
		return wrapped
	}

	// Check smithy API errors for error codes
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch code {
		case "NoSuchKey", "NotFound":
			wrapped.Err = provider.Classify(provider.ErrNotFound, err)
		case "NoSuchBucket":
			wrapped.Err = provider.Classify(provider.ErrRepositoryNotFound, err)
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			wrapped.Err = provider.Classify(provider.ErrRepositoryExists, err)
		case "AccessDenied", "Forbidden":
			wrapped.Err = provider.Classify(provider.ErrAccessDenied, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidToken", "ExpiredToken":
			wrapped.Err = provider.Classify(provider.ErrInvalidCredentials, err)
		case "PreconditionFailed", "ConditionalRequestConflict":
			wrapped.Err = provider.Classify(provider.ErrPreconditionFailed, err)
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = provider.Classify(provider.ErrThrottled, err)
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = provider.Classify(provider.ErrProviderUnavailable, err)
		}
		return wrapped
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchBucket"):
		wrapped.Err = provider.Classify(provider.ErrRepositoryNotFound, err)
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		wrapped.Err = provider.Classify(provider.ErrNotFound, err)
	case strings.Contains(errMsg, "PreconditionFailed") || strings.Contains(errMsg, "412"):
		wrapped.Err = provider.Classify(provider.ErrPreconditionFailed, err)
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		wrapped.Err = provider.Classify(provider.ErrAccessDenied, err)
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		wrapped.Err = provider.Classify(provider.ErrInvalidCredentials, err)
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || strings.Contains(errMsg, "429"):
		wrapped.Err = provider.Classify(provider.ErrThrottled, err)
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		wrapped.Err = provider.Classify(provider.ErrProviderUnavailable, err)
	}

	return wrapped
}

func isSentinel(err error) bool {
	switch err {
	case provider.ErrNotFound, provider.ErrRepositoryNotFound, provider.ErrRepositoryExists,
		provider.ErrPreconditionFailed, provider.ErrAccessDenied, provider.ErrInvalidCredentials:
		return true
	}
	return false
}

// copySource builds the URL-encoded "bucket/key" value for CopyObject.
func copySource(src provider.ObjectRef) string {
	return url.PathEscape(src.Repository) + "/" + escapeKey(src.Key)
}

// escapeKey percent-encodes each path segment, keeping "/" separators.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// cleanETag removes surrounding quotes from an ETag value.
// S3 returns ETags with quotes, e.g., "d41d8cd98f00b204e9800998ecf8427e".
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// quoteETag restores the quotes S3 expects in conditional headers.
func quoteETag(etag string) string {
	if etag == "*" || strings.HasPrefix(etag, "\"") {
		return etag
	}
	return "\"" + etag + "\""
}

// clampMaxKeys applies defaults and limits to maxKeys values.
// If requested is <= 0, uses providerDefault. Result is clamped to MaxAllowedKeys.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion determines the final region to use after SDK config loading.
//
// The sdkRegion parameter already incorporates explicit cfgRegion (if set) or
// env/profile resolution. This function only applies the fallback default:
//   - If sdkRegion is still empty AND no custom endpoint, default to us-east-1
//   - For S3-compatible stores (endpoint set), no defaulting occurs
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}

	if endpoint == "" {
		return DefaultAWSRegion
	}

	return ""
}
