package storage

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/storagekit/pkg/codec"
	"github.com/3leaps/storagekit/pkg/provider"
)

// Metadata describes one object.
type Metadata struct {
	Name         string    `json:"name"`
	Repository   string    `json:"repository"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type,omitempty"`
	Version      string    `json:"version,omitempty"`
}

// WriteOption configures Put and transfers.
type WriteOption func(*writeOptions)

type writeOptions struct {
	precondition provider.Precondition
	contentType  string
}

// WithPrecondition guards the write. For Put the condition applies to the
// target; for copies IfMatch applies to the source.
func WithPrecondition(p provider.Precondition) WriteOption {
	return func(o *writeOptions) { o.precondition = p }
}

// IfAbsent fails the write with PreconditionFailed when the target exists.
func IfAbsent() WriteOption {
	return func(o *writeOptions) { o.precondition.IfNoneMatch = true }
}

// WithContentType overrides the content type Put derives from the extension.
func WithContentType(ct string) WriteOption {
	return func(o *writeOptions) { o.contentType = ct }
}

func applyWriteOptions(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// cleanPath strips leading slashes from an object path.
func cleanPath(p string) string {
	return strings.TrimLeft(p, "/")
}

// normalizePrefix strips leading slashes and ensures a non-empty prefix
// ends with "/".
func normalizePrefix(prefix string) string {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// List returns the immediate children of prefix in the active repository.
//
// Deeper keys collapse into one folder entry per child segment; folder
// paths end with "/". Entries are unique and sorted by path.
func (s *Storage) List(ctx context.Context, prefix string) (entries []provider.ObjectEntry, err error) {
	defer s.observe("list", time.Now(), &err)

	prefix = normalizePrefix(prefix)
	repo, err := s.active("list", prefix)
	if err != nil {
		return nil, err
	}

	objects, err := s.backend.ListObjects(ctx, repo, prefix)
	if err != nil {
		return nil, opError("list", repo, prefix, err)
	}
	return collapse(prefix, objects), nil
}

func collapse(prefix string, objects []provider.ObjectSummary) []provider.ObjectEntry {
	seen := make(map[provider.ObjectEntry]struct{}, len(objects))
	entries := make([]provider.ObjectEntry, 0, len(objects))
	for _, obj := range objects {
		rest, ok := strings.CutPrefix(obj.Key, prefix)
		if !ok || rest == "" {
			continue
		}

		entry := provider.ObjectEntry{Path: obj.Key, Kind: provider.EntryFile}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			entry = provider.ObjectEntry{Path: prefix + rest[:i+1], Kind: provider.EntryFolder}
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Path != entries[j].Path {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].Kind < entries[j].Kind
	})
	return entries
}

// Read downloads path and decodes it into shape.
//
// An empty shape selects the default shape (table) for .json, .csv and
// .parquet, and bytes for anything else. Shapes the extension cannot
// produce fail before any backend call.
func (s *Storage) Read(ctx context.Context, path string, shape codec.Shape, opts ...codec.DecodeOption) (value any, err error) {
	defer s.observe("read", time.Now(), &err)

	path = cleanPath(path)
	repo, err := s.active("read", path)
	if err != nil {
		return nil, err
	}

	ext := codec.Ext(path)
	if shape == "" {
		shape = codec.ShapeBytes
		if codec.Structured(ext) {
			shape = s.defaultShape
		}
	}
	if err := codec.CheckShape(ext, shape); err != nil {
		return nil, opError("read", repo, path, err)
	}

	data, err := s.backend.GetObject(ctx, repo, path)
	if err != nil {
		return nil, opError("read", repo, path, err)
	}
	value, err = s.codec.Decode(data, ext, shape, opts...)
	if err != nil {
		return nil, opError("read", repo, path, err)
	}
	return value, nil
}

// Put encodes content for the extension of path and uploads it, silently
// overwriting unless a precondition is given.
func (s *Storage) Put(ctx context.Context, path string, content any, opts ...WriteOption) (err error) {
	defer s.observe("put", time.Now(), &err)

	path = cleanPath(path)
	repo, err := s.active("put", path)
	if err != nil {
		return err
	}

	o := applyWriteOptions(opts)
	ext := codec.Ext(path)
	data, err := s.codec.Encode(content, ext)
	if err != nil {
		return opError("put", repo, path, err)
	}
	if o.contentType == "" {
		o.contentType = codec.ContentType(ext)
	}

	err = s.backend.PutObject(ctx, repo, path, data, provider.PutOptions{
		ContentType:  o.contentType,
		Precondition: o.precondition,
	})
	if err != nil {
		return opError("put", repo, path, err)
	}
	s.logger.Debug("Put object",
		zap.String("repository", repo),
		zap.String("path", path),
		zap.Int("bytes", len(data)))
	return nil
}

// Delete removes path. It fails with ObjectNotFound when path is absent,
// including on providers whose delete is idempotent.
func (s *Storage) Delete(ctx context.Context, path string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	path = cleanPath(path)
	repo, err := s.active("delete", path)
	if err != nil {
		return err
	}

	if _, err := s.backend.HeadObject(ctx, repo, path); err != nil {
		return opError("delete", repo, path, err)
	}
	if err := s.backend.DeleteObject(ctx, repo, path); err != nil {
		return opError("delete", repo, path, err)
	}
	s.logger.Debug("Deleted object", zap.String("repository", repo), zap.String("path", path))
	return nil
}

// Exists reports whether path exists. Absence is not an error.
func (s *Storage) Exists(ctx context.Context, path string) (ok bool, err error) {
	defer s.observe("exists", time.Now(), &err)

	path = cleanPath(path)
	repo, err := s.active("exists", path)
	if err != nil {
		return false, err
	}

	_, err = s.backend.HeadObject(ctx, repo, path)
	switch {
	case err == nil:
		return true, nil
	case provider.IsNotFound(err):
		return false, nil
	}
	return false, opError("exists", repo, path, err)
}

// GetMetadata returns metadata for path.
func (s *Storage) GetMetadata(ctx context.Context, path string) (meta *Metadata, err error) {
	defer s.observe("get_metadata", time.Now(), &err)

	path = cleanPath(path)
	repo, err := s.active("get_metadata", path)
	if err != nil {
		return nil, err
	}

	head, err := s.backend.HeadObject(ctx, repo, path)
	if err != nil {
		return nil, opError("get_metadata", repo, path, err)
	}
	return &Metadata{
		Name:         path,
		Repository:   repo,
		Size:         head.Size,
		LastModified: head.LastModified,
		ContentType:  head.ContentType,
		Version:      head.Version,
	}, nil
}

// FileURL issues a signed read URL for path. A ttl <= 0 uses the configured
// default (DefaultURLTTL unless overridden).
func (s *Storage) FileURL(ctx context.Context, path string, ttl time.Duration) (u string, err error) {
	defer s.observe("file_url", time.Now(), &err)

	path = cleanPath(path)
	repo, err := s.active("file_url", path)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = s.urlTTL
	}

	u, err = s.backend.SignURL(ctx, repo, path, ttl)
	if err != nil {
		return "", opError("file_url", repo, path, err)
	}
	return u, nil
}
