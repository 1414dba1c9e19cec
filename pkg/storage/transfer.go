package storage

import (
	"context"
	"time"

	"github.com/3leaps/storagekit/pkg/match"
	"github.com/3leaps/storagekit/pkg/provider"
	"github.com/3leaps/storagekit/pkg/transfer"
)

// SyncOption configures Sync and SyncBetweenRepositories.
type SyncOption func(*transfer.SyncRequest)

// WithMatch restricts the batch to keys selected by include/exclude globs.
func WithMatch(cfg match.Config) SyncOption {
	return func(r *transfer.SyncRequest) { r.Match = cfg }
}

// WithFilter restricts the batch by size, modification time or key regex.
func WithFilter(cfg match.FilterConfig) SyncOption {
	return func(r *transfer.SyncRequest) { r.Filter = cfg }
}

// DryRun plans targets without copying.
func DryRun() SyncOption {
	return func(r *transfer.SyncRequest) { r.DryRun = true }
}

// NoOverwrite fails items whose target already exists with
// PreconditionFailed instead of overwriting them.
func NoOverwrite() SyncOption {
	return func(r *transfer.SyncRequest) { r.NoOverwrite = true }
}

// Move copies srcPath to dstPath in the active repository, then deletes
// srcPath.
func (s *Storage) Move(ctx context.Context, srcPath, dstPath string, opts ...WriteOption) error {
	return s.transferActive(ctx, "move", srcPath, dstPath, true, opts)
}

// Copy copies srcPath to dstPath in the active repository.
func (s *Storage) Copy(ctx context.Context, srcPath, dstPath string, opts ...WriteOption) error {
	return s.transferActive(ctx, "copy", srcPath, dstPath, false, opts)
}

func (s *Storage) transferActive(ctx context.Context, op, srcPath, dstPath string, deleteSource bool, opts []WriteOption) (err error) {
	defer s.observe(op, time.Now(), &err)

	repo, err := s.active(op, srcPath)
	if err != nil {
		return err
	}
	return s.transfer(ctx, op, repo, srcPath, repo, dstPath, deleteSource, opts)
}

// MoveBetweenRepositories copies an object across repositories using the
// provider's server-side copy when available, then deletes the source when
// deleteSource is set. Extensions must match.
func (s *Storage) MoveBetweenRepositories(ctx context.Context, srcRepo, srcPath, dstRepo, dstPath string, deleteSource bool, opts ...WriteOption) (err error) {
	op := "copy_between_repositories"
	if deleteSource {
		op = "move_between_repositories"
	}
	defer s.observe(op, time.Now(), &err)

	return s.transfer(ctx, op, srcRepo, srcPath, dstRepo, dstPath, deleteSource, opts)
}

// CopyBetweenRepositories is MoveBetweenRepositories without deleting the
// source.
func (s *Storage) CopyBetweenRepositories(ctx context.Context, srcRepo, srcPath, dstRepo, dstPath string, opts ...WriteOption) error {
	return s.MoveBetweenRepositories(ctx, srcRepo, srcPath, dstRepo, dstPath, false, opts...)
}

func (s *Storage) transfer(ctx context.Context, op, srcRepo, srcPath, dstRepo, dstPath string, deleteSource bool, opts []WriteOption) error {
	srcPath, dstPath = cleanPath(srcPath), cleanPath(dstPath)
	if srcRepo == "" || dstRepo == "" {
		return opError(op, srcRepo, srcPath, ErrRepositoryNotSet)
	}

	o := applyWriteOptions(opts)
	src := provider.ObjectRef{Repository: srcRepo, Key: srcPath}
	dst := provider.ObjectRef{Repository: dstRepo, Key: dstPath}
	if err := s.engine.Transfer(ctx, src, dst, deleteSource, provider.CopyOptions{Precondition: o.precondition}); err != nil {
		return opError(op, srcRepo, srcPath, err)
	}
	return nil
}

// Sync copies every object under srcPrefix in the active repository to
// dstPrefix. Targets follow the engine's path mode: flattened to the base
// name by default.
//
// Objects are copied one at a time in listing order. When some fail, the
// result lists both outcomes and the error is a *transfer.BatchError.
func (s *Storage) Sync(ctx context.Context, srcPrefix, dstPrefix string, opts ...SyncOption) (res *transfer.BatchResult, err error) {
	defer s.observe("sync", time.Now(), &err)

	repo, err := s.active("sync", srcPrefix)
	if err != nil {
		return nil, err
	}
	return s.sync(ctx, "sync", repo, srcPrefix, repo, dstPrefix, opts)
}

// SyncBetweenRepositories is Sync across repositories.
func (s *Storage) SyncBetweenRepositories(ctx context.Context, srcRepo, srcPrefix, dstRepo, dstPrefix string, opts ...SyncOption) (res *transfer.BatchResult, err error) {
	defer s.observe("sync_between_repositories", time.Now(), &err)

	return s.sync(ctx, "sync_between_repositories", srcRepo, srcPrefix, dstRepo, dstPrefix, opts)
}

func (s *Storage) sync(ctx context.Context, op, srcRepo, srcPrefix, dstRepo, dstPrefix string, opts []SyncOption) (*transfer.BatchResult, error) {
	srcPrefix, dstPrefix = cleanPath(srcPrefix), cleanPath(dstPrefix)
	if srcRepo == "" || dstRepo == "" {
		return nil, opError(op, srcRepo, srcPrefix, ErrRepositoryNotSet)
	}

	req := transfer.SyncRequest{
		SrcRepo:   srcRepo,
		SrcPrefix: srcPrefix,
		DstRepo:   dstRepo,
		DstPrefix: dstPrefix,
	}
	for _, opt := range opts {
		opt(&req)
	}

	res, err := s.engine.Sync(ctx, req)
	if err != nil {
		if transfer.IsPartialFailure(err) {
			return res, err
		}
		return nil, opError(op, srcRepo, srcPrefix, err)
	}
	return res, nil
}
