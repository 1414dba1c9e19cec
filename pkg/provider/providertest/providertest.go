// Package providertest provides Backend test doubles: a fault-injecting,
// call-recording decorator and a helper that builds a filesystem backend.
package providertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/3leaps/storagekit/pkg/provider"
	"github.com/3leaps/storagekit/pkg/provider/file"
)

// Backend operation names, as recorded in Call.Op.
const (
	OpListRepositories = "ListRepositories"
	OpCreateRepository = "CreateRepository"
	OpListObjects      = "ListObjects"
	OpGetObject        = "GetObject"
	OpPutObject        = "PutObject"
	OpDeleteObject     = "DeleteObject"
	OpHeadObject       = "HeadObject"
	OpSignURL          = "SignURL"
	OpCopyObject       = "CopyObject"
)

// Call is one recorded backend call. For CopyObject, Repository and Key
// describe the destination.
type Call struct {
	Op         string
	Repository string
	Key        string
}

type fault struct {
	op, repo, key string
}

// Faulty wraps a Backend, records every call and returns injected errors.
//
// Faulty does not implement provider.ObjectCopier, so copies through it use
// the download/upload path. Use Copier for native copies.
type Faulty struct {
	inner provider.Backend

	mu     sync.Mutex
	calls  []Call
	faults map[fault]error
}

// Wrap returns a Faulty decorator around b.
func Wrap(b provider.Backend) *Faulty {
	return &Faulty{inner: b, faults: make(map[fault]error)}
}

// Fail makes op on repo/key return err. Empty repo or key match any value.
// Injected errors are wrapped in *provider.ProviderError like adapter errors.
func (f *Faulty) Fail(op, repo, key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[fault{op: op, repo: repo, key: key}] = err
}

// Reset clears recorded calls and injected faults.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.faults = make(map[fault]error)
}

// Calls returns a copy of the recorded calls.
func (f *Faulty) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many times op was called. An empty op counts every call.
func (f *Faulty) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			n++
		}
	}
	return n
}

func (f *Faulty) record(op, repo, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Repository: repo, Key: key})

	for _, k := range []fault{{op, repo, key}, {op, repo, ""}, {op, "", key}, {op, "", ""}} {
		if err, ok := f.faults[k]; ok {
			return &provider.ProviderError{Op: op, Provider: f.inner.Type(), Repository: repo, Key: key, Err: err}
		}
	}
	return nil
}

func (f *Faulty) Type() provider.ProviderType { return f.inner.Type() }

func (f *Faulty) ListRepositories(ctx context.Context) ([]provider.Repository, error) {
	if err := f.record(OpListRepositories, "", ""); err != nil {
		return nil, err
	}
	return f.inner.ListRepositories(ctx)
}

func (f *Faulty) CreateRepository(ctx context.Context, name string) error {
	if err := f.record(OpCreateRepository, name, ""); err != nil {
		return err
	}
	return f.inner.CreateRepository(ctx, name)
}

func (f *Faulty) ListObjects(ctx context.Context, repo, prefix string) ([]provider.ObjectSummary, error) {
	if err := f.record(OpListObjects, repo, prefix); err != nil {
		return nil, err
	}
	return f.inner.ListObjects(ctx, repo, prefix)
}

func (f *Faulty) GetObject(ctx context.Context, repo, key string) ([]byte, error) {
	if err := f.record(OpGetObject, repo, key); err != nil {
		return nil, err
	}
	return f.inner.GetObject(ctx, repo, key)
}

func (f *Faulty) PutObject(ctx context.Context, repo, key string, data []byte, opts provider.PutOptions) error {
	if err := f.record(OpPutObject, repo, key); err != nil {
		return err
	}
	return f.inner.PutObject(ctx, repo, key, data, opts)
}

func (f *Faulty) DeleteObject(ctx context.Context, repo, key string) error {
	if err := f.record(OpDeleteObject, repo, key); err != nil {
		return err
	}
	return f.inner.DeleteObject(ctx, repo, key)
}

func (f *Faulty) HeadObject(ctx context.Context, repo, key string) (*provider.ObjectMeta, error) {
	if err := f.record(OpHeadObject, repo, key); err != nil {
		return nil, err
	}
	return f.inner.HeadObject(ctx, repo, key)
}

func (f *Faulty) SignURL(ctx context.Context, repo, key string, ttl time.Duration) (string, error) {
	if err := f.record(OpSignURL, repo, key); err != nil {
		return "", err
	}
	return f.inner.SignURL(ctx, repo, key, ttl)
}

func (f *Faulty) Close() error { return f.inner.Close() }

// Copier is a Faulty that also exposes the inner backend's native copy.
type Copier struct {
	*Faulty
	copier provider.ObjectCopier
}

// WrapCopier returns a decorator implementing provider.ObjectCopier.
// b must implement provider.ObjectCopier.
func WrapCopier(b provider.Backend) *Copier {
	return &Copier{Faulty: Wrap(b), copier: b.(provider.ObjectCopier)}
}

func (c *Copier) CopyObject(ctx context.Context, src, dst provider.ObjectRef, opts provider.CopyOptions) error {
	if err := c.record(OpCopyObject, dst.Repository, dst.Key); err != nil {
		return err
	}
	return c.copier.CopyObject(ctx, src, dst, opts)
}

// NewFileBackend returns a filesystem backend rooted in a temp dir with the
// given repositories created.
func NewFileBackend(t testing.TB, repos ...string) *file.Provider {
	t.Helper()
	p, err := file.New(file.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	for _, r := range repos {
		require.NoError(t, p.CreateRepository(context.Background(), r))
	}
	return p
}

var (
	_ provider.Backend      = (*Faulty)(nil)
	_ provider.ObjectCopier = (*Copier)(nil)
)
