package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/storagekit/pkg/codec"
	"github.com/3leaps/storagekit/pkg/match"
	"github.com/3leaps/storagekit/pkg/provider"
	"github.com/3leaps/storagekit/pkg/provider/providertest"
	"github.com/3leaps/storagekit/pkg/transfer"
)

func newStorage(t *testing.T, b provider.Backend, opts ...Option) *Storage {
	t.Helper()
	s, err := New(b, opts...)
	require.NoError(t, err)
	return s
}

// newActive returns a Storage over a filesystem backend with repo active,
// plus the recording decorator around the backend.
func newActive(t *testing.T, repo string, opts ...Option) (*Storage, *providertest.Faulty) {
	t.Helper()
	fb := providertest.Wrap(providertest.NewFileBackend(t, repo))
	s := newStorage(t, fb, opts...)
	require.NoError(t, s.SetRepository(context.Background(), repo))
	fb.Reset()
	return s, fb
}

func matchCSV() match.Config {
	return match.Config{Includes: []string{"**/*.csv"}}
}

func filterSmall() match.FilterConfig {
	return match.FilterConfig{MaxSize: "1KB"}
}

type recorder struct {
	mu   sync.Mutex
	seen []string
	kind map[string]ErrorKind
}

func (r *recorder) Observe(op string, kind ErrorKind, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kind == nil {
		r.kind = make(map[string]ErrorKind)
	}
	r.seen = append(r.seen, op)
	r.kind[op] = kind
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	fs := providertest.NewFileBackend(t)
	_, err = New(fs, WithDefaultShape("frame"))
	assert.ErrorIs(t, err, codec.ErrUnsupportedShape)

	_, err = New(fs, WithEngineConfig(transfer.Config{PathMode: "mirror"}))
	assert.Error(t, err)

	s := newStorage(t, fs, WithURLTTL(-time.Second))
	assert.Equal(t, provider.ProviderFile, s.Provider())
	assert.Empty(t, s.Repository())
	assert.Equal(t, DefaultURLTTL, s.urlTTL)
	assert.NoError(t, s.Close())
}

func TestCreateRepository_Twice(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t, providertest.NewFileBackend(t))

	require.NoError(t, s.CreateRepository(ctx, "lab-xpto"))
	err := s.CreateRepository(ctx, "lab-xpto")
	require.Error(t, err)
	assert.Equal(t, KindRepositoryAlreadyExists, KindOf(err))
	assert.True(t, provider.IsRepositoryExists(err))

	err = s.CreateRepository(ctx, "")
	assert.Equal(t, KindRepositoryNotSet, KindOf(err))
}

func TestSetRepository(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t, providertest.NewFileBackend(t, "alpha", "beta"))

	repos, err := s.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 2)

	for _, r := range repos {
		require.NoError(t, s.SetRepository(ctx, r.Name))
		require.NoError(t, s.SetRepository(ctx, r.Name), "re-selecting is allowed")
		assert.Equal(t, r.Name, s.Repository())
	}

	err = s.SetRepository(ctx, "gamma")
	require.Error(t, err)
	assert.Equal(t, KindRepositoryNotFound, KindOf(err))
	assert.Equal(t, "beta", s.Repository(), "failed selection keeps the active repository")
}

func TestSetOrCreateRepository(t *testing.T) {
	ctx := context.Background()
	fb := providertest.Wrap(providertest.NewFileBackend(t, "existing"))
	s := newStorage(t, fb)

	require.NoError(t, s.SetOrCreateRepository(ctx, "existing"))
	assert.Equal(t, 0, fb.Count(providertest.OpCreateRepository))

	require.NoError(t, s.SetOrCreateRepository(ctx, "fresh"))
	assert.Equal(t, 1, fb.Count(providertest.OpCreateRepository))
	assert.Equal(t, "fresh", s.Repository())

	require.NoError(t, s.SetOrCreateRepository(ctx, "fresh"))
	assert.Equal(t, 1, fb.Count(providertest.OpCreateRepository))
}

func TestObjectOps_RequireRepository(t *testing.T) {
	ctx := context.Background()
	fb := providertest.Wrap(providertest.NewFileBackend(t, "data"))
	s := newStorage(t, fb)

	ops := map[string]func() error{
		"list":   func() error { _, err := s.List(ctx, ""); return err },
		"read":   func() error { _, err := s.Read(ctx, "a.csv", ""); return err },
		"put":    func() error { return s.Put(ctx, "a.txt", "x") },
		"delete": func() error { return s.Delete(ctx, "a.txt") },
		"exists": func() error { _, err := s.Exists(ctx, "a.txt"); return err },
		"meta":   func() error { _, err := s.GetMetadata(ctx, "a.txt"); return err },
		"url":    func() error { _, err := s.FileURL(ctx, "a.txt", 0); return err },
		"move":   func() error { return s.Move(ctx, "a.txt", "b.txt") },
		"copy":   func() error { return s.Copy(ctx, "a.txt", "b.txt") },
		"sync":   func() error { _, err := s.Sync(ctx, "a/", "b/"); return err },
		"cross": func() error {
			return s.CopyBetweenRepositories(ctx, "", "a.txt", "data", "a.txt")
		},
		"cross-sync": func() error {
			_, err := s.SyncBetweenRepositories(ctx, "data", "a/", "", "b/")
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRepositoryNotSet)
			assert.Equal(t, KindRepositoryNotSet, KindOf(err))
		})
	}
	assert.Equal(t, 0, fb.Count(""), "validation fails before any backend call")
}

func TestPutRead_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data")

	table := codec.NewTable([]string{"name", "score"},
		[]any{"ada", int64(3)},
		[]any{"bob", int64(5)},
	)

	tests := []struct {
		name    string
		path    string
		content any
		shape   codec.Shape
		opts    []codec.DecodeOption
		want    any
	}{
		{
			name:    "json mapping",
			path:    "conf/settings.json",
			content: map[string]any{"enabled": true, "retries": int64(3)},
			shape:   codec.ShapeMapping,
			want:    map[string]any{"enabled": true, "retries": int64(3)},
		},
		{
			name:    "json table keeps column order",
			path:    "t.json",
			content: table,
			shape:   codec.ShapeTable,
			want:    table,
		},
		{
			name:    "csv typed records",
			path:    "t.csv",
			content: table,
			shape:   codec.ShapeRecords,
			opts:    []codec.DecodeOption{codec.InferTypes()},
			want: []map[string]any{
				{"name": "ada", "score": int64(3)},
				{"name": "bob", "score": int64(5)},
			},
		},
		{
			name:    "csv untyped by default",
			path:    "plain.csv",
			content: table,
			shape:   codec.ShapeTable,
			want: codec.NewTable([]string{"name", "score"},
				[]any{"ada", "3"},
				[]any{"bob", "5"},
			),
		},
		{
			name:    "parquet table",
			path:    "t.parquet",
			content: table,
			shape:   codec.ShapeTable,
			want:    table,
		},
		{
			name:    "text",
			path:    "notes/readme.txt",
			content: "hello",
			shape:   codec.ShapeText,
			want:    "hello",
		},
		{
			name:    "bytes",
			path:    "blob.bin",
			content: []byte{0, 1, 2},
			shape:   codec.ShapeBytes,
			want:    []byte{0, 1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, tt.path, tt.content))

			ok, err := s.Exists(ctx, tt.path)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := s.Read(ctx, tt.path, tt.shape, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRead_DefaultShape(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data")

	require.NoError(t, s.Put(ctx, "a.csv", codec.NewTable([]string{"x"}, []any{"1"})))
	require.NoError(t, s.Put(ctx, "a.bin", []byte("raw")))

	got, err := s.Read(ctx, "a.csv", "")
	require.NoError(t, err)
	assert.IsType(t, &codec.Table{}, got)

	got, err = s.Read(ctx, "a.bin", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), got)

	rs, _ := newActive(t, "data", WithDefaultShape(codec.ShapeRecords))
	require.NoError(t, rs.Put(ctx, "a.csv", codec.NewTable([]string{"x"}, []any{"1"})))
	got, err = rs.Read(ctx, "a.csv", "")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"x": "1"}}, got)
}

func TestRead_Failures(t *testing.T) {
	ctx := context.Background()
	s, fb := newActive(t, "data")

	_, err := s.Read(ctx, "image.png", codec.ShapeTable)
	assert.Equal(t, KindUnsupportedShape, KindOf(err))
	_, err = s.Read(ctx, "rows.csv", codec.ShapeMapping)
	assert.Equal(t, KindUnsupportedShape, KindOf(err))
	assert.Equal(t, 0, fb.Count(""), "shape check precedes the download")

	_, err = s.Read(ctx, "missing.json", codec.ShapeMapping)
	assert.Equal(t, KindObjectNotFound, KindOf(err))
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "read", opErr.Op)
	assert.Equal(t, "data", opErr.Repository)
	assert.Equal(t, "missing.json", opErr.Path)

	err = s.Put(ctx, "broken.json", "{not json")
	assert.Equal(t, KindEncodeError, KindOf(err))
	require.NoError(t, fb.PutObject(ctx, "data", "broken.json", []byte("{not json"), provider.PutOptions{}))
	_, err = s.Read(ctx, "broken.json", codec.ShapeMapping)
	assert.Equal(t, KindDecodeError, KindOf(err))
	var decErr *codec.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, codec.ExtJSON, decErr.Ext)
}

func TestPut(t *testing.T) {
	ctx := context.Background()
	s, fb := newActive(t, "data")

	require.NoError(t, s.Put(ctx, "/lead/slash.txt", "v1"))
	ok, err := s.Exists(ctx, "lead/slash.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Put(ctx, "lead/slash.txt", "v2"), "overwrite is silent by default")
	got, err := s.Read(ctx, "lead/slash.txt", codec.ShapeText)
	require.NoError(t, err)
	assert.Equal(t, "v2", got)

	err = s.Put(ctx, "lead/slash.txt", "v3", IfAbsent())
	assert.Equal(t, KindPreconditionFailed, KindOf(err))

	fb.Reset()
	err = s.Put(ctx, "rows.txt", []map[string]any{{"a": 1}})
	assert.Equal(t, KindEncodeError, KindOf(err))
	assert.Equal(t, 0, fb.Count(""), "encoding precedes the upload")
}

func TestPut_PreconditionIfMatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data")

	require.NoError(t, s.Put(ctx, "doc.json", map[string]any{"v": 1}))
	meta, err := s.GetMetadata(ctx, "doc.json")
	require.NoError(t, err)

	err = s.Put(ctx, "doc.json", map[string]any{"v": 2},
		WithPrecondition(provider.Precondition{IfMatch: "stale"}))
	assert.Equal(t, KindPreconditionFailed, KindOf(err))

	err = s.Put(ctx, "doc.json", map[string]any{"v": 2},
		WithPrecondition(provider.Precondition{IfMatch: meta.Version}))
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data")

	require.NoError(t, s.Put(ctx, "a.txt", "x"))
	require.NoError(t, s.Delete(ctx, "a.txt"))

	ok, err := s.Exists(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.Delete(ctx, "a.txt")
	assert.Equal(t, KindObjectNotFound, KindOf(err))
}

func TestExists_TransportFailure(t *testing.T) {
	ctx := context.Background()
	s, fb := newActive(t, "data")

	fb.Fail(providertest.OpHeadObject, "", "", errors.New("connection reset"))
	ok, err := s.Exists(ctx, "a.txt")
	assert.False(t, ok)
	assert.Equal(t, KindTransportFailure, KindOf(err))

	fb.Fail(providertest.OpHeadObject, "", "", provider.ErrAccessDenied)
	_, err = s.Exists(ctx, "a.txt")
	assert.Equal(t, KindCredentialsInvalid, KindOf(err))
}

func TestGetMetadata(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data")

	require.NoError(t, s.Put(ctx, "dir/a.json", map[string]any{"k": "v"}))
	meta, err := s.GetMetadata(ctx, "dir/a.json")
	require.NoError(t, err)
	assert.Equal(t, "dir/a.json", meta.Name)
	assert.Equal(t, "data", meta.Repository)
	assert.Equal(t, int64(len(`{"k":"v"}`)), meta.Size)
	assert.False(t, meta.LastModified.IsZero())
	assert.NotEmpty(t, meta.Version)

	_, err = s.GetMetadata(ctx, "dir/missing.json")
	assert.Equal(t, KindObjectNotFound, KindOf(err))
}

func TestFileURL(t *testing.T) {
	ctx := context.Background()
	s, fb := newActive(t, "data")

	require.NoError(t, s.Put(ctx, "a.txt", "x"))
	u, err := s.FileURL(ctx, "a.txt", 0)
	require.NoError(t, err)
	assert.Contains(t, u, "file://")
	assert.Contains(t, u, "data/a.txt")
	assert.Equal(t, 1, fb.Count(providertest.OpSignURL))

	_, err = s.FileURL(ctx, "missing.txt", time.Minute)
	assert.Equal(t, KindObjectNotFound, KindOf(err))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data")

	for _, p := range []string{
		"top.txt",
		"folder_a/file001.csv",
		"folder_a/file002.csv",
		"folder_a/deep/x.json",
		"folder_b/y.txt",
	} {
		require.NoError(t, s.Put(ctx, p, "x"))
	}

	tests := []struct {
		prefix string
		want   []provider.ObjectEntry
	}{
		{"", []provider.ObjectEntry{
			{Path: "folder_a/", Kind: provider.EntryFolder},
			{Path: "folder_b/", Kind: provider.EntryFolder},
			{Path: "top.txt", Kind: provider.EntryFile},
		}},
		{"folder_a", []provider.ObjectEntry{
			{Path: "folder_a/deep/", Kind: provider.EntryFolder},
			{Path: "folder_a/file001.csv", Kind: provider.EntryFile},
			{Path: "folder_a/file002.csv", Kind: provider.EntryFile},
		}},
		{"/folder_a/deep/", []provider.ObjectEntry{
			{Path: "folder_a/deep/x.json", Kind: provider.EntryFile},
		}},
		{"nothing", []provider.ObjectEntry{}},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got, err := s.List(ctx, tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollapse_SkipsPrefixMarker(t *testing.T) {
	got := collapse("a/", []provider.ObjectSummary{
		{Key: "a/"},
		{Key: "a/b/"},
		{Key: "a/b/c"},
		{Key: "a/d"},
	})
	assert.Equal(t, []provider.ObjectEntry{
		{Path: "a/b/", Kind: provider.EntryFolder},
		{Path: "a/d", Kind: provider.EntryFile},
	}, got)
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data")

	require.NoError(t, s.Put(ctx, "a.csv", "h\n1\n"))
	require.NoError(t, s.Move(ctx, "a.csv", "archive/A.CSV"))

	ok, err := s.Exists(ctx, "a.csv")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Exists(ctx, "archive/A.CSV")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMove_ExtensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, fb := newActive(t, "data")

	require.NoError(t, s.Put(ctx, "a.csv", "h\n1\n"))
	fb.Reset()

	err := s.Move(ctx, "a.csv", "a.json")
	require.Error(t, err)
	assert.Equal(t, KindExtensionMismatch, KindOf(err))
	assert.Equal(t, 0, fb.Count(""), "mismatch fails before any backend call")

	ok, err := s.Exists(ctx, "a.csv")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, "a.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data")

	require.NoError(t, s.Put(ctx, "a.txt", "x"))
	require.NoError(t, s.Copy(ctx, "a.txt", "b.txt"))

	for _, p := range []string{"a.txt", "b.txt"} {
		got, err := s.Read(ctx, p, codec.ShapeText)
		require.NoError(t, err)
		assert.Equal(t, "x", got)
	}

	err := s.Copy(ctx, "a.txt", "b.txt", IfAbsent())
	assert.Equal(t, KindPreconditionFailed, KindOf(err))

	err = s.Copy(ctx, "missing.txt", "c.txt")
	assert.Equal(t, KindObjectNotFound, KindOf(err))
}

func TestMoveBetweenRepositories(t *testing.T) {
	ctx := context.Background()
	cb := providertest.WrapCopier(providertest.NewFileBackend(t, "src", "dst"))
	s := newStorage(t, cb)
	require.NoError(t, s.SetRepository(ctx, "src"))
	require.NoError(t, s.Put(ctx, "in/report.parquet", codec.NewTable([]string{"n"}, []any{int64(1)})))

	require.NoError(t, s.CopyBetweenRepositories(ctx, "src", "in/report.parquet", "dst", "out/report.parquet"))
	assert.Equal(t, 1, cb.Count(providertest.OpCopyObject), "native copy is used")
	assert.Equal(t, 0, cb.Count(providertest.OpGetObject))

	require.NoError(t, s.MoveBetweenRepositories(ctx, "src", "in/report.parquet", "dst", "moved/report.parquet", true))
	ok, err := s.Exists(ctx, "in/report.parquet")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetRepository(ctx, "dst"))
	for _, p := range []string{"out/report.parquet", "moved/report.parquet"} {
		got, err := s.Read(ctx, p, codec.ShapeTable)
		require.NoError(t, err)
		assert.Equal(t, codec.NewTable([]string{"n"}, []any{int64(1)}), got)
	}

	err = s.MoveBetweenRepositories(ctx, "src", "a.txt", "nope", "a.txt", true)
	assert.Error(t, err)
}

func TestSync_FolderScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data")

	content := []map[string]any{
		{"col1": 1, "col2": 2},
		{"col1": 1, "col2": 2},
	}
	require.NoError(t, s.Put(ctx, "folder_a/file001.csv", content))

	res, err := s.Sync(ctx, "folder_a", "folder_b")
	require.NoError(t, err)
	require.Len(t, res.Succeeded, 1)
	assert.Empty(t, res.Failed)

	ok, err := s.Exists(ctx, "folder_b/file001.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Read(ctx, "folder_b/file001.csv", codec.ShapeRecords, codec.InferTypes())
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"col1": int64(1), "col2": int64(2)},
		{"col1": int64(1), "col2": int64(2)},
	}, got)
}

func TestSync_Flattens(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data")

	for _, p := range []string{"src/a.txt", "src/nested/b.txt", "src/nested/deeper/c.txt"} {
		require.NoError(t, s.Put(ctx, p, p))
	}

	res, err := s.Sync(ctx, "src/", "dst/")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total())

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		ok, err := s.Exists(ctx, "dst/"+name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestSync_PreservePathMode(t *testing.T) {
	ctx := context.Background()
	s, _ := newActive(t, "data", WithEngineConfig(transfer.Config{PathMode: transfer.PathPreserve}))

	require.NoError(t, s.Put(ctx, "src/nested/b.txt", "b"))
	_, err := s.Sync(ctx, "src/", "dst/")
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "dst/nested/b.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSync_PartialFailure(t *testing.T) {
	ctx := context.Background()
	s, fb := newActive(t, "data")

	for _, p := range []string{"src/1.txt", "src/2.txt", "src/3.txt"} {
		require.NoError(t, s.Put(ctx, p, p))
	}
	fb.Fail(providertest.OpPutObject, "data", "dst/2.txt", errors.New("boom"))

	res, err := s.Sync(ctx, "src", "dst")
	require.Error(t, err)
	assert.Equal(t, KindPartialBatchFailure, KindOf(err))
	require.NotNil(t, res)

	var batch *transfer.BatchError
	require.ErrorAs(t, err, &batch)
	assert.Same(t, res, batch.Result)

	require.Len(t, res.Succeeded, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "src/2.txt", res.Failed[0].Source)
	assert.Equal(t, "dst/2.txt", res.Failed[0].Target)

	for _, item := range res.Succeeded {
		ok, err := s.Exists(ctx, item.Target)
		require.NoError(t, err)
		assert.True(t, ok, item.Target)
	}
}

func TestSync_ListFailure(t *testing.T) {
	ctx := context.Background()
	s, fb := newActive(t, "data")

	fb.Fail(providertest.OpListObjects, "", "", errors.New("timeout"))
	res, err := s.Sync(ctx, "src", "dst")
	assert.Nil(t, res)
	assert.Equal(t, KindTransportFailure, KindOf(err))
}

func TestSync_Options(t *testing.T) {
	ctx := context.Background()
	s, fb := newActive(t, "data")

	for _, p := range []string{"src/a.csv", "src/b.json", "src/c.csv"} {
		require.NoError(t, s.Put(ctx, p, "x"))
	}
	require.NoError(t, s.Put(ctx, "dst/c.csv", "old"))
	fb.Reset()

	res, err := s.Sync(ctx, "src", "dst", DryRun())
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 3, res.Total())
	assert.Equal(t, 0, fb.Count(providertest.OpPutObject))

	res, err = s.Sync(ctx, "src", "dst", NoOverwrite(), WithMatch(matchCSV()))
	require.Error(t, err)
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, "dst/a.csv", res.Succeeded[0].Target)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, KindPreconditionFailed, KindOf(res.Failed[0].Err))

	got, err := s.Read(ctx, "dst/c.csv", codec.ShapeText)
	require.NoError(t, err)
	assert.Equal(t, "old", got)
}

func TestSyncBetweenRepositories(t *testing.T) {
	ctx := context.Background()
	fs := providertest.NewFileBackend(t, "raw", "curated")
	s := newStorage(t, fs, WithRepository("raw"))

	require.NoError(t, s.Put(ctx, "in/a.json", map[string]any{"a": 1}))
	require.NoError(t, s.Put(ctx, "in/b.json", map[string]any{"b": 2}))

	res, err := s.SyncBetweenRepositories(ctx, "raw", "in/", "curated", "landing/", WithFilter(filterSmall()))
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 2)
	assert.Equal(t, int64(len(`{"a":1}`)+len(`{"b":2}`)), res.Bytes())

	require.NoError(t, s.SetRepository(ctx, "curated"))
	entries, err := s.List(ctx, "landing")
	require.NoError(t, err)
	assert.Equal(t, []provider.ObjectEntry{
		{Path: "landing/a.json", Kind: provider.EntryFile},
		{Path: "landing/b.json", Kind: provider.EntryFile},
	}, entries)
}

func TestObserver(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s, _ := newActive(t, "data", WithObserver(rec))

	require.NoError(t, s.Put(ctx, "a.txt", "x"))
	_, err := s.Read(ctx, "missing.txt", codec.ShapeText)
	require.Error(t, err)
	_ = s.Move(ctx, "a.txt", "a.csv")

	assert.Equal(t, []string{"set_repository", "put", "read", "move"}, rec.seen)
	assert.Equal(t, ErrorKind(""), rec.kind["put"])
	assert.Equal(t, KindObjectNotFound, rec.kind["read"])
	assert.Equal(t, KindExtensionMismatch, rec.kind["move"])
}

func TestObserverFunc(t *testing.T) {
	var got []string
	obs := ObserverFunc(func(op string, kind ErrorKind, _ time.Duration) {
		got = append(got, op+":"+string(kind))
	})
	s := newStorage(t, providertest.NewFileBackend(t), WithObserver(obs))
	_ = s.SetRepository(context.Background(), "nope")
	assert.Equal(t, []string{"set_repository:RepositoryNotFound"}, got)
}
