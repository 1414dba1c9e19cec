// Package file implements the provider backend over a local directory tree.
//
// Each top-level directory under BaseDir is a repository; keys are
// slash-separated paths below it. The backend is used for offline work and
// as the reference backend in tests.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/storagekit/pkg/provider"
)

// ErrInvalidKey is returned for keys that cannot be stored verbatim.
var ErrInvalidKey = errors.New("invalid key path")

// Provider implements provider.Backend for local filesystem paths.
type Provider struct {
	baseDir string
}

// Ensure Provider implements provider capability interfaces.
var (
	_ provider.Backend      = (*Provider)(nil)
	_ provider.ObjectCopier = (*Provider)(nil)
)

// Config configures a file backend.
type Config struct {
	// BaseDir holds one directory per repository. Created if missing.
	BaseDir string
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

// New creates a file backend rooted at cfg.BaseDir.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderFile, Err: err}
	}
	return &Provider{baseDir: base}, nil
}

// Type returns provider.ProviderFile.
func (p *Provider) Type() provider.ProviderType { return provider.ProviderFile }

// Close is a no-op.
func (p *Provider) Close() error { return nil }

// ListRepositories returns the directories directly under BaseDir.
func (p *Provider) ListRepositories(ctx context.Context) ([]provider.Repository, error) {
	_ = ctx
	entries, err := os.ReadDir(p.baseDir)
	if err != nil {
		return nil, p.wrapError("ListRepositories", "", "", err)
	}

	repos := make([]provider.Repository, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		repos = append(repos, provider.Repository{Name: e.Name(), CreatedAt: info.ModTime().UTC()})
	}
	return repos, nil
}

// CreateRepository creates a repository directory.
func (p *Provider) CreateRepository(ctx context.Context, name string) error {
	_ = ctx
	dir, err := p.repoPath(name)
	if err != nil {
		return p.wrapError("CreateRepository", name, "", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return p.wrapError("CreateRepository", name, "", provider.ErrRepositoryExists)
		}
		return p.wrapError("CreateRepository", name, "", err)
	}
	return nil
}

// ListObjects walks the repository and returns every file whose key starts
// with prefix, sorted by key.
func (p *Provider) ListObjects(ctx context.Context, repo, prefix string) ([]provider.ObjectSummary, error) {
	root, err := p.existingRepo(repo)
	if err != nil {
		return nil, p.wrapError("ListObjects", repo, "", err)
	}

	var objects []provider.ObjectSummary
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || isTempFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, summary(key, info))
		return nil
	})
	if walkErr != nil {
		return nil, p.wrapError("ListObjects", repo, "", walkErr)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// GetObject reads a file into memory.
func (p *Provider) GetObject(ctx context.Context, repo, key string) ([]byte, error) {
	_ = ctx
	full, err := p.objectPath(repo, key)
	if err != nil {
		return nil, p.wrapError("GetObject", repo, key, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, p.wrapError("GetObject", repo, key, err)
	}
	return data, nil
}

// PutObject writes data atomically via a temp file and rename.
//
// Preconditions are checked against the current file before the rename;
// the check and the write are not atomic with respect to other processes.
func (p *Provider) PutObject(ctx context.Context, repo, key string, data []byte, opts provider.PutOptions) error {
	_ = ctx
	full, err := p.objectPath(repo, key)
	if err != nil {
		return p.wrapError("PutObject", repo, key, err)
	}
	if err := p.checkPrecondition(full, opts.Precondition); err != nil {
		return p.wrapError("PutObject", repo, key, err)
	}
	if err := writeAtomic(full, data); err != nil {
		return p.wrapError("PutObject", repo, key, err)
	}
	return nil
}

// CopyObject copies a file, across repositories if needed.
//
// Precondition.IfMatch guards the source version; IfNoneMatch requires the
// destination to be absent.
func (p *Provider) CopyObject(ctx context.Context, src, dst provider.ObjectRef, opts provider.CopyOptions) error {
	_ = ctx
	srcPath, err := p.objectPath(src.Repository, src.Key)
	if err != nil {
		return p.wrapError("CopyObject", src.Repository, src.Key, err)
	}
	dstPath, err := p.objectPath(dst.Repository, dst.Key)
	if err != nil {
		return p.wrapError("CopyObject", dst.Repository, dst.Key, err)
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return p.wrapError("CopyObject", src.Repository, src.Key, err)
	}
	if opts.Precondition.IfMatch != "" && opts.Precondition.IfMatch != version(info) {
		return p.wrapError("CopyObject", src.Repository, src.Key, provider.ErrPreconditionFailed)
	}
	if opts.Precondition.IfNoneMatch {
		if err := p.checkPrecondition(dstPath, provider.Precondition{IfNoneMatch: true}); err != nil {
			return p.wrapError("CopyObject", dst.Repository, dst.Key, err)
		}
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return p.wrapError("CopyObject", src.Repository, src.Key, err)
	}
	if err := writeAtomic(dstPath, data); err != nil {
		return p.wrapError("CopyObject", dst.Repository, dst.Key, err)
	}
	return nil
}

// DeleteObject removes a file. A missing file yields provider.ErrNotFound.
// Directories left empty are not pruned.
func (p *Provider) DeleteObject(ctx context.Context, repo, key string) error {
	_ = ctx
	full, err := p.objectPath(repo, key)
	if err != nil {
		return p.wrapError("DeleteObject", repo, key, err)
	}
	if err := os.Remove(full); err != nil {
		return p.wrapError("DeleteObject", repo, key, err)
	}
	return nil
}

// HeadObject stats a file.
func (p *Provider) HeadObject(ctx context.Context, repo, key string) (*provider.ObjectMeta, error) {
	_ = ctx
	full, err := p.objectPath(repo, key)
	if err != nil {
		return nil, p.wrapError("HeadObject", repo, key, err)
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, p.wrapError("HeadObject", repo, key, err)
	}
	if info.IsDir() {
		return nil, p.wrapError("HeadObject", repo, key, provider.ErrNotFound)
	}

	return &provider.ObjectMeta{
		ObjectSummary: summary(key, info),
		ContentType:   mime.TypeByExtension(filepath.Ext(key)),
	}, nil
}

// SignURL returns a file:// URL. Local paths carry no expiry, so ttl is
// ignored.
func (p *Provider) SignURL(ctx context.Context, repo, key string, ttl time.Duration) (string, error) {
	if _, err := p.HeadObject(ctx, repo, key); err != nil {
		return "", err
	}
	full, _ := p.objectPath(repo, key)
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", p.wrapError("SignURL", repo, key, err)
	}
	_ = ttl
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

func (p *Provider) checkPrecondition(full string, pre provider.Precondition) error {
	if pre.IsZero() {
		return nil
	}
	info, err := os.Stat(full)
	exists := err == nil && !info.IsDir()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if pre.IfNoneMatch && exists {
		return provider.ErrPreconditionFailed
	}
	if pre.IfMatch != "" && (!exists || version(info) != pre.IfMatch) {
		return provider.ErrPreconditionFailed
	}
	return nil
}

func (p *Provider) repoPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid repository name %q", name)
	}
	return filepath.Join(p.baseDir, name), nil
}

func (p *Provider) existingRepo(name string) (string, error) {
	dir, err := p.repoPath(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", provider.ErrRepositoryNotFound
	}
	return dir, nil
}

func (p *Provider) objectPath(repo, key string) (string, error) {
	dir, err := p.existingRepo(repo)
	if err != nil {
		return "", err
	}
	if err := checkKey(key); err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(key, "/"))), nil
}

// checkKey rejects keys that do not name themselves: dot segments, empty
// segments and anything path.Clean would rewrite. Such keys would be stored
// under a different name than the one listed back.
func checkKey(key string) error {
	rel := strings.TrimPrefix(key, "/")
	if rel == "" || path.Clean(rel) != rel {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func (p *Provider) wrapError(op, repo, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Repository: repo, Key: key, Err: err}
	// Normalize common filesystem errors to provider sentinels.
	switch {
	case errors.Is(err, fs.ErrNotExist):
		wrapped.Err = provider.Classify(provider.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		wrapped.Err = provider.Classify(provider.ErrAccessDenied, err)
	}
	return wrapped
}

const tempPrefix = ".storagekit-put-"

func isTempFile(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

func writeAtomic(full string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := bytes.NewReader(data).WriteTo(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, full)
}

func summary(key string, info fs.FileInfo) provider.ObjectSummary {
	return provider.ObjectSummary{
		Key:          key,
		Size:         info.Size(),
		Version:      version(info),
		LastModified: info.ModTime().UTC(),
	}
}

// version derives a change token from modification time and size.
func version(info fs.FileInfo) string {
	return strconv.FormatInt(info.ModTime().UnixNano(), 36) + "-" + strconv.FormatInt(info.Size(), 36)
}
