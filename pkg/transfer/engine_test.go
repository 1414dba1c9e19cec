package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/storagekit/pkg/match"
	"github.com/3leaps/storagekit/pkg/output"
	"github.com/3leaps/storagekit/pkg/provider"
	"github.com/3leaps/storagekit/pkg/provider/providertest"
)

func ref(repo, key string) provider.ObjectRef {
	return provider.ObjectRef{Repository: repo, Key: key}
}

func put(t *testing.T, b provider.Backend, repo, key, body string) {
	t.Helper()
	require.NoError(t, b.PutObject(context.Background(), repo, key, []byte(body), provider.PutOptions{}))
}

func get(t *testing.T, b provider.Backend, repo, key string) string {
	t.Helper()
	data, err := b.GetObject(context.Background(), repo, key)
	require.NoError(t, err)
	return string(data)
}

func exists(t *testing.T, b provider.Backend, repo, key string) bool {
	t.Helper()
	_, err := b.HeadObject(context.Background(), repo, key)
	if provider.IsNotFound(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func newEngine(t *testing.T, b provider.Backend, cfg Config) *Engine {
	t.Helper()
	e, err := New(b, cfg)
	require.NoError(t, err)
	return e
}

func TestNew(t *testing.T) {
	fs := providertest.NewFileBackend(t)

	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)

	_, err = New(fs, Config{PathMode: "mirror"})
	assert.Error(t, err)

	_, err = New(fs, Config{PathTemplate: "{nope}"})
	assert.Error(t, err)

	_, err = New(fs, Config{RateLimit: -1})
	assert.Error(t, err)

	e, err := New(fs, Config{RateLimit: 50})
	require.NoError(t, err)
	assert.NotNil(t, e.limiter)
	assert.Equal(t, "{filename}", e.template.String())
}

func TestEngine_Copy_Native(t *testing.T) {
	ctx := context.Background()
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "src", "dst"))
	put(t, b, "src", "folder_a/file001.csv", "col1,col2\n1,2\n")

	e := newEngine(t, b, DefaultConfig())
	require.NoError(t, e.Copy(ctx, ref("src", "folder_a/file001.csv"), ref("dst", "copy/file001.csv"), provider.CopyOptions{}))

	assert.Equal(t, "col1,col2\n1,2\n", get(t, b, "dst", "copy/file001.csv"))
	assert.True(t, exists(t, b, "src", "folder_a/file001.csv"))
	assert.Equal(t, 1, b.Count(providertest.OpCopyObject))
	assert.Equal(t, 1, b.Count(providertest.OpGetObject))
}

func TestEngine_Copy_Fallback(t *testing.T) {
	ctx := context.Background()
	b := providertest.Wrap(providertest.NewFileBackend(t, "src", "dst"))
	put(t, b, "src", "a.json", `{"k":1}`)
	b.Reset()

	e := newEngine(t, b, DefaultConfig())
	require.NoError(t, e.Copy(ctx, ref("src", "a.json"), ref("dst", "b.json"), provider.CopyOptions{}))

	assert.Equal(t, `{"k":1}`, get(t, b, "dst", "b.json"))
	assert.Equal(t, []providertest.Call{
		{Op: providertest.OpGetObject, Repository: "src", Key: "a.json"},
		{Op: providertest.OpPutObject, Repository: "dst", Key: "b.json"},
		{Op: providertest.OpGetObject, Repository: "dst", Key: "b.json"},
	}, b.Calls())
}

func TestEngine_Copy_Preconditions(t *testing.T) {
	ctx := context.Background()

	backends := map[string]func(t *testing.T) provider.Backend{
		"native": func(t *testing.T) provider.Backend {
			return providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
		},
		"fallback": func(t *testing.T) provider.Backend {
			return providertest.Wrap(providertest.NewFileBackend(t, "lab"))
		},
	}

	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			b := mk(t)
			put(t, b, "lab", "a.csv", "new")
			put(t, b, "lab", "b.csv", "old")
			e := newEngine(t, b, DefaultConfig())

			err := e.Copy(ctx, ref("lab", "a.csv"), ref("lab", "b.csv"),
				provider.CopyOptions{Precondition: provider.Precondition{IfNoneMatch: true}})
			assert.True(t, provider.IsPreconditionFailed(err), "got %v", err)
			assert.Equal(t, "old", get(t, b, "lab", "b.csv"))

			err = e.Copy(ctx, ref("lab", "a.csv"), ref("lab", "b.csv"),
				provider.CopyOptions{Precondition: provider.Precondition{IfMatch: "stale"}})
			assert.True(t, provider.IsPreconditionFailed(err), "got %v", err)
			assert.Equal(t, "old", get(t, b, "lab", "b.csv"))

			meta, err := b.HeadObject(ctx, "lab", "a.csv")
			require.NoError(t, err)
			err = e.Copy(ctx, ref("lab", "a.csv"), ref("lab", "b.csv"),
				provider.CopyOptions{Precondition: provider.Precondition{IfMatch: meta.Version}})
			require.NoError(t, err)
			assert.Equal(t, "new", get(t, b, "lab", "b.csv"))
		})
	}
}

func TestEngine_Move(t *testing.T) {
	ctx := context.Background()
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "src", "dst"))
	put(t, b, "src", "a.CSV", "x")

	e := newEngine(t, b, DefaultConfig())
	require.NoError(t, e.Move(ctx, ref("src", "a.CSV"), ref("dst", "moved/a.csv"), provider.CopyOptions{}))

	assert.False(t, exists(t, b, "src", "a.CSV"))
	assert.Equal(t, "x", get(t, b, "dst", "moved/a.csv"))
}

func TestEngine_Move_ExtensionMismatch(t *testing.T) {
	ctx := context.Background()
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
	put(t, b, "lab", "a.csv", "x")
	b.Reset()

	e := newEngine(t, b, DefaultConfig())
	err := e.Move(ctx, ref("lab", "a.csv"), ref("lab", "a.json"), provider.CopyOptions{})

	var mismatch *ExtensionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "a.csv", mismatch.Source)
	assert.Equal(t, "a.json", mismatch.Target)
	assert.Equal(t, 0, b.Count(""), "no backend call before validation")

	assert.True(t, exists(t, b, "lab", "a.csv"))
	assert.False(t, exists(t, b, "lab", "a.json"))
}

func TestEngine_Move_CopyFailureKeepsSource(t *testing.T) {
	ctx := context.Background()
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
	put(t, b, "lab", "a.csv", "x")
	b.Fail(providertest.OpCopyObject, "lab", "b.csv", provider.ErrAccessDenied)

	e := newEngine(t, b, DefaultConfig())
	err := e.Move(ctx, ref("lab", "a.csv"), ref("lab", "b.csv"), provider.CopyOptions{})
	assert.True(t, provider.IsAccessDenied(err))
	assert.Equal(t, 0, b.Count(providertest.OpDeleteObject))
	assert.True(t, exists(t, b, "lab", "a.csv"))
}

func TestEngine_Copy_OntoItself(t *testing.T) {
	ctx := context.Background()
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
	put(t, b, "lab", "a.csv", "x")

	e := newEngine(t, b, DefaultConfig())
	require.NoError(t, e.Move(ctx, ref("lab", "a.csv"), ref("lab", "a.csv"), provider.CopyOptions{}))
	assert.Equal(t, "x", get(t, b, "lab", "a.csv"))
	assert.Equal(t, 0, b.Count(providertest.OpCopyObject))

	err := e.Copy(ctx, ref("lab", "missing.csv"), ref("lab", "missing.csv"), provider.CopyOptions{})
	assert.True(t, provider.IsNotFound(err))
}

func TestEngine_Sync_Flatten(t *testing.T) {
	ctx := context.Background()
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
	put(t, b, "lab", "folder_a/file001.csv", "1")
	put(t, b, "lab", "folder_a/sub/file002.csv", "22")
	put(t, b, "lab", "folder_c/other.csv", "3")

	e := newEngine(t, b, DefaultConfig())
	res, err := e.Sync(ctx, SyncRequest{SrcRepo: "lab", SrcPrefix: "folder_a", DstRepo: "lab", DstPrefix: "folder_b"})
	require.NoError(t, err)

	assert.Empty(t, res.Failed)
	assert.Equal(t, []ItemResult{
		{Source: "folder_a/file001.csv", Target: "folder_b/file001.csv", Size: 1},
		{Source: "folder_a/sub/file002.csv", Target: "folder_b/file002.csv", Size: 2},
	}, res.Succeeded)
	assert.Equal(t, 2, res.Total())
	assert.Equal(t, int64(3), res.Bytes())

	assert.Equal(t, "1", get(t, b, "lab", "folder_b/file001.csv"))
	assert.Equal(t, "22", get(t, b, "lab", "folder_b/file002.csv"))
	assert.False(t, exists(t, b, "lab", "folder_b/other.csv"))
}

func TestEngine_Sync_Preserve(t *testing.T) {
	ctx := context.Background()
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "src", "dst"))
	put(t, b, "src", "folder_a/file001.csv", "1")
	put(t, b, "src", "folder_a/sub/file002.csv", "2")

	e := newEngine(t, b, Config{PathMode: PathPreserve})
	res, err := e.Sync(ctx, SyncRequest{SrcRepo: "src", SrcPrefix: "folder_a/", DstRepo: "dst", DstPrefix: "mirror"})
	require.NoError(t, err)
	require.Len(t, res.Succeeded, 2)

	assert.True(t, exists(t, b, "dst", "mirror/file001.csv"))
	assert.True(t, exists(t, b, "dst", "mirror/sub/file002.csv"))
}

func TestEngine_Sync_PartialFailure(t *testing.T) {
	ctx := context.Background()
	b := providertest.Wrap(providertest.NewFileBackend(t, "lab"))
	for _, k := range []string{"in/1.csv", "in/2.csv", "in/3.csv"} {
		put(t, b, "lab", k, k)
	}
	b.Fail(providertest.OpPutObject, "lab", "out/2.csv", provider.ErrAccessDenied)

	e := newEngine(t, b, DefaultConfig())
	res, err := e.Sync(ctx, SyncRequest{SrcRepo: "lab", SrcPrefix: "in", DstRepo: "lab", DstPrefix: "out"})
	require.Error(t, err)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Same(t, res, batchErr.Result)
	assert.True(t, IsPartialFailure(err))

	require.Len(t, res.Failed, 1)
	assert.Equal(t, "in/2.csv", res.Failed[0].Source)
	assert.Equal(t, "out/2.csv", res.Failed[0].Target)
	assert.Equal(t, output.ErrCodeAccessDenied, res.Failed[0].Code)
	assert.True(t, provider.IsAccessDenied(res.Failed[0].Err))

	require.Len(t, res.Succeeded, 2)
	assert.Equal(t, "in/1.csv", res.Succeeded[0].Source)
	assert.Equal(t, "in/3.csv", res.Succeeded[1].Source)
	assert.True(t, exists(t, b, "lab", "out/1.csv"))
	assert.False(t, exists(t, b, "lab", "out/2.csv"))
	assert.True(t, exists(t, b, "lab", "out/3.csv"))
}

func TestEngine_Sync_ListFailure(t *testing.T) {
	b := providertest.Wrap(providertest.NewFileBackend(t, "lab"))
	b.Fail(providertest.OpListObjects, "", "", provider.ErrProviderUnavailable)

	e := newEngine(t, b, DefaultConfig())
	res, err := e.Sync(context.Background(), SyncRequest{SrcRepo: "lab", DstRepo: "lab", DstPrefix: "x"})
	assert.Nil(t, res)
	assert.True(t, provider.IsProviderUnavailable(err))
	assert.False(t, IsPartialFailure(err))
}

// markerBackend adds a folder marker key to every listing.
type markerBackend struct {
	provider.Backend
}

func (m markerBackend) ListObjects(ctx context.Context, repo, prefix string) ([]provider.ObjectSummary, error) {
	objs, err := m.Backend.ListObjects(ctx, repo, prefix)
	if err != nil {
		return nil, err
	}
	return append([]provider.ObjectSummary{{Key: prefix + "/"}}, objs...), nil
}

func TestEngine_Sync_SkipsFolderMarkers(t *testing.T) {
	fs := providertest.NewFileBackend(t, "lab")
	put(t, fs, "lab", "folder_a/x.csv", "x")

	e := newEngine(t, markerBackend{fs}, DefaultConfig())
	res, err := e.Sync(context.Background(), SyncRequest{SrcRepo: "lab", SrcPrefix: "folder_a", DstRepo: "lab", DstPrefix: "folder_b"})
	require.NoError(t, err)
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, "folder_a/x.csv", res.Succeeded[0].Source)
}

func TestEngine_Sync_CollisionWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
	put(t, b, "lab", "in/x/a.csv", "first")
	put(t, b, "lab", "in/y/a.csv", "second")

	e := newEngine(t, b, Config{Logger: zap.New(core)})
	res, err := e.Sync(context.Background(), SyncRequest{SrcRepo: "lab", SrcPrefix: "in", DstRepo: "lab", DstPrefix: "out"})
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 2)
	assert.Equal(t, "second", get(t, b, "lab", "out/a.csv"))

	warnings := logs.FilterMessage("Sync targets collide; later source wins").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "in/y/a.csv", warnings[0].ContextMap()["src"])
	assert.Equal(t, "in/x/a.csv", warnings[0].ContextMap()["previous"])
}

func TestEngine_Sync_DryRun(t *testing.T) {
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
	put(t, b, "lab", "in/a.csv", "a")
	b.Reset()

	e := newEngine(t, b, DefaultConfig())
	res, err := e.Sync(context.Background(), SyncRequest{SrcRepo: "lab", SrcPrefix: "in", DstRepo: "lab", DstPrefix: "out", DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, "out/a.csv", res.Succeeded[0].Target)

	assert.Equal(t, 1, b.Count(""), "only the listing call")
	assert.False(t, exists(t, b, "lab", "out/a.csv"))
}

func TestEngine_Sync_Selection(t *testing.T) {
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
	put(t, b, "lab", "in/a.csv", "a")
	put(t, b, "lab", "in/b.json", "{}")
	put(t, b, "lab", "in/tmp/c.csv", "c")
	put(t, b, "lab", "in/big.csv", "0123456789")

	e := newEngine(t, b, DefaultConfig())
	res, err := e.Sync(context.Background(), SyncRequest{
		SrcRepo: "lab", SrcPrefix: "in", DstRepo: "lab", DstPrefix: "out",
		Match:  match.Config{Includes: []string{"**/*.csv"}, Excludes: []string{"in/tmp/**"}},
		Filter: match.FilterConfig{MaxSize: "5"},
	})
	require.NoError(t, err)
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, "in/a.csv", res.Succeeded[0].Source)

	_, err = e.Sync(context.Background(), SyncRequest{SrcRepo: "lab", Match: match.Config{Includes: []string{"[bad"}}})
	assert.ErrorIs(t, err, match.ErrInvalidPattern)
}

func TestEngine_Sync_NoOverwrite(t *testing.T) {
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
	put(t, b, "lab", "in/a.csv", "new")
	put(t, b, "lab", "in/b.csv", "new")
	put(t, b, "lab", "out/a.csv", "old")

	e := newEngine(t, b, DefaultConfig())
	res, err := e.Sync(context.Background(), SyncRequest{SrcRepo: "lab", SrcPrefix: "in", DstRepo: "lab", DstPrefix: "out", NoOverwrite: true})
	require.Error(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, output.ErrCodePreconditionFailed, res.Failed[0].Code)
	assert.Equal(t, "old", get(t, b, "lab", "out/a.csv"))
	assert.Equal(t, "new", get(t, b, "lab", "out/b.csv"))
}

func TestEngine_Sync_TemplateExtensionChange(t *testing.T) {
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
	put(t, b, "lab", "in/a.csv", "a")

	e := newEngine(t, b, Config{PathTemplate: "{filename}.bak"})
	res, err := e.Sync(context.Background(), SyncRequest{SrcRepo: "lab", SrcPrefix: "in", DstRepo: "lab", DstPrefix: "out"})
	require.Error(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, output.ErrCodeExtensionMismatch, res.Failed[0].Code)
	assert.Equal(t, 0, b.Count(providertest.OpCopyObject))
}

func TestEngine_Sync_Canceled(t *testing.T) {
	b := providertest.WrapCopier(providertest.NewFileBackend(t, "lab"))
	put(t, b, "lab", "in/a.csv", "a")
	put(t, b, "lab", "in/b.csv", "b")

	ctx, cancel := context.WithCancel(context.Background())
	e := newEngine(t, cancelAfterList{Backend: b, cancel: cancel}, DefaultConfig())

	res, err := e.Sync(ctx, SyncRequest{SrcRepo: "lab", SrcPrefix: "in", DstRepo: "lab", DstPrefix: "out"})
	require.Error(t, err)
	assert.Empty(t, res.Succeeded)
	require.Len(t, res.Failed, 2)
	for _, item := range res.Failed {
		assert.Equal(t, output.ErrCodeTimeout, item.Code)
	}
}

// cancelAfterList cancels the sync context once the listing returns.
type cancelAfterList struct {
	provider.Backend
	cancel context.CancelFunc
}

func (m cancelAfterList) ListObjects(ctx context.Context, repo, prefix string) ([]provider.ObjectSummary, error) {
	defer m.cancel()
	return m.Backend.ListObjects(ctx, repo, prefix)
}
