package transfer

import (
	"context"

	"github.com/3leaps/storagekit/pkg/codec"
	"github.com/3leaps/storagekit/pkg/provider"
)

// CopyObject copies one object, server-side when the backend implements
// provider.ObjectCopier, otherwise by download and re-upload.
//
// opts.Precondition.IfMatch guards the source version and IfNoneMatch
// requires the target to be absent.
func CopyObject(ctx context.Context, backend provider.Backend, src, dst provider.ObjectRef, opts provider.CopyOptions) error {
	if copier, ok := backend.(provider.ObjectCopier); ok {
		return copier.CopyObject(ctx, src, dst, opts)
	}

	if opts.Precondition.IfMatch != "" {
		meta, err := backend.HeadObject(ctx, src.Repository, src.Key)
		if err != nil {
			return err
		}
		if meta.Version != opts.Precondition.IfMatch {
			return &provider.ProviderError{
				Op:         "CopyObject",
				Provider:   backend.Type(),
				Repository: src.Repository,
				Key:        src.Key,
				Err:        provider.ErrPreconditionFailed,
			}
		}
	}

	data, err := backend.GetObject(ctx, src.Repository, src.Key)
	if err != nil {
		return err
	}

	return backend.PutObject(ctx, dst.Repository, dst.Key, data, provider.PutOptions{
		ContentType:  codec.ContentType(codec.Ext(dst.Key)),
		Precondition: provider.Precondition{IfNoneMatch: opts.Precondition.IfNoneMatch},
	})
}
