package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/storagekit/pkg/output"
)

func TestRepoCreateAndList(t *testing.T) {
	base := fileEnv(t)

	out := mustExecute(t, "", "repo", "create", "lab-xpto")
	repos := recordsOfType(t, out, output.TypeRepository)
	require.Len(t, repos, 1)
	assert.Equal(t, "lab-xpto", decode[output.RepositoryRecord](t, repos[0]).Name)
	assert.DirExists(t, filepath.Join(base, "lab-xpto"))

	_, err := execute(t, "", "repo", "create", "lab-xpto")
	assertExitCode(t, err, exitFileWriteError)

	mustExecute(t, "", "repo", "create", "lab-xpto", "--exist-ok")
	mustExecute(t, "", "repo", "create", "archive")

	out = mustExecute(t, "", "repo", "ls")
	var names []string
	for _, raw := range recordsOfType(t, out, output.TypeRepository) {
		names = append(names, decode[output.RepositoryRecord](t, raw).Name)
	}
	assert.ElementsMatch(t, []string{"lab-xpto", "archive"}, names)

	sums := recordsOfType(t, out, output.TypeSummary)
	require.Len(t, sums, 1)
	assert.EqualValues(t, 2, decode[output.SummaryRecord](t, sums[0]).Succeeded)
}

func TestUnknownRepository(t *testing.T) {
	fileEnv(t)
	_, err := execute(t, "", "ls", "-r", "missing")
	assertExitCode(t, err, exitFileNotFound)
}

func TestPutCatStat(t *testing.T) {
	fileEnv(t)
	mustExecute(t, "", "repo", "create", "lab-xpto")

	out := mustExecute(t, "id,name\n1,ana\n2,bo\n", "put", "folder_a/file001.csv", "-r", "lab-xpto")
	objs := recordsOfType(t, out, output.TypeObject)
	require.Len(t, objs, 1)
	obj := decode[output.ObjectRecord](t, objs[0])
	assert.Equal(t, "folder_a/file001.csv", obj.Path)
	assert.Equal(t, "lab-xpto", obj.Repository)
	assert.EqualValues(t, 19, obj.Size)

	out = mustExecute(t, "", "cat", "folder_a/file001.csv", "-r", "lab-xpto")
	assert.Equal(t, "id  name\n1   ana\n2   bo\n", out)

	out = mustExecute(t, "", "cat", "file://lab-xpto/folder_a/file001.csv", "--shape", "records")
	assert.JSONEq(t, `[{"id":"1","name":"ana"},{"id":"2","name":"bo"}]`, out)

	out = mustExecute(t, "", "cat", "folder_a/file001.csv", "-r", "lab-xpto", "--shape", "text")
	assert.Equal(t, "id,name\n1,ana\n2,bo\n", out)

	out = mustExecute(t, "", "stat", "folder_a/file001.csv", "-r", "lab-xpto")
	obj = decode[output.ObjectRecord](t, recordsOfType(t, out, output.TypeObject)[0])
	assert.Equal(t, "file", obj.Kind)
	assert.Contains(t, obj.ContentType, "text/csv")
	assert.NotEmpty(t, obj.Version)

	_, err := execute(t, "", "cat", "folder_a/file001.csv", "-r", "lab-xpto", "--shape", "mapping")
	assertExitCode(t, err, exitInvalidArgument)

	_, err = execute(t, "", "cat", "folder_a/file001.csv", "-r", "lab-xpto", "--shape", "cube")
	assertExitCode(t, err, exitInvalidArgument)
}

func TestPut_InferTypesFromConfig(t *testing.T) {
	fileEnv(t)
	t.Setenv("STORAGEKIT_CSV_INFER_TYPES", "true")
	mustExecute(t, "", "repo", "create", "lab")
	mustExecute(t, "a,b\n1,x\n", "put", "t.csv", "-r", "lab")

	out := mustExecute(t, "", "cat", "t.csv", "-r", "lab", "--shape", "records")
	assert.JSONEq(t, `[{"a":1,"b":"x"}]`, out)
}

func TestPut_ConvertsLocalFile(t *testing.T) {
	fileEnv(t)
	mustExecute(t, "", "repo", "create", "lab")

	local := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(local, []byte(`[{"id":1,"total":9.5},{"id":2,"total":3.25}]`), 0o600))

	mustExecute(t, "", "put", "orders.csv", local, "-r", "lab")
	out := mustExecute(t, "", "cat", "orders.csv", "-r", "lab", "--shape", "text")
	assert.Equal(t, "id,total\n1,9.5\n2,3.25\n", out)

	mustExecute(t, "", "put", "orders.parquet", local, "-r", "lab")
	out = mustExecute(t, "", "cat", "orders.parquet", "-r", "lab", "--shape", "records")
	assert.JSONEq(t, `[{"id":1,"total":9.5},{"id":2,"total":3.25}]`, out)

	_, err := execute(t, "", "put", "x.csv", filepath.Join(t.TempDir(), "missing.csv"), "-r", "lab")
	assertExitCode(t, err, exitFileNotFound)
}

func TestPut_IfAbsent(t *testing.T) {
	fileEnv(t)
	mustExecute(t, "", "repo", "create", "lab")
	mustExecute(t, `{"a":1}`, "put", "c.json", "-r", "lab", "--if-absent")

	_, err := execute(t, `{"a":2}`, "put", "c.json", "-r", "lab", "--if-absent")
	assertExitCode(t, err, exitInvalidArgument)

	out := mustExecute(t, "", "cat", "c.json", "-r", "lab", "--shape", "mapping")
	assert.JSONEq(t, `{"a":1}`, out)

	_, err = execute(t, "", "put", "c.json", "-r", "lab", "--if-absent", "--if-match", "v1")
	assertExitCode(t, err, exitInvalidArgument)
}

func TestLs(t *testing.T) {
	fileEnv(t)
	mustExecute(t, "", "repo", "create", "lab")
	mustExecute(t, "x", "put", "folder_a/file001.csv", "-r", "lab")
	mustExecute(t, "x", "put", "folder_a/sub/file002.csv", "-r", "lab")
	mustExecute(t, "x", "put", "top.txt", "-r", "lab")

	out := mustExecute(t, "", "ls", "-r", "lab")
	var got []output.ObjectRecord
	for _, raw := range recordsOfType(t, out, output.TypeObject) {
		got = append(got, decode[output.ObjectRecord](t, raw))
	}
	assert.Equal(t, []output.ObjectRecord{
		{Repository: "lab", Path: "folder_a/", Kind: "folder"},
		{Repository: "lab", Path: "top.txt", Kind: "file"},
	}, got)

	out = mustExecute(t, "", "ls", "file://lab/folder_a/")
	got = nil
	for _, raw := range recordsOfType(t, out, output.TypeObject) {
		got = append(got, decode[output.ObjectRecord](t, raw))
	}
	assert.Equal(t, []output.ObjectRecord{
		{Repository: "lab", Path: "folder_a/file001.csv", Kind: "file"},
		{Repository: "lab", Path: "folder_a/sub/", Kind: "folder"},
	}, got)

	_, err := execute(t, "", "ls")
	assertExitCode(t, err, exitInvalidArgument)
}

func TestRm(t *testing.T) {
	fileEnv(t)
	mustExecute(t, "", "repo", "create", "lab")
	mustExecute(t, "x", "put", "a.txt", "-r", "lab")

	mustExecute(t, "", "rm", "a.txt", "-r", "lab")

	_, err := execute(t, "", "stat", "a.txt", "-r", "lab")
	assertExitCode(t, err, exitFileNotFound)
	_, err = execute(t, "", "rm", "a.txt", "-r", "lab")
	assertExitCode(t, err, exitFileNotFound)
}

func TestURL(t *testing.T) {
	fileEnv(t)
	mustExecute(t, "", "repo", "create", "lab")
	mustExecute(t, "x", "put", "a.txt", "-r", "lab")

	out := mustExecute(t, "", "url", "a.txt", "-r", "lab", "--ttl", "5m")
	urls := recordsOfType(t, out, output.TypeURL)
	require.Len(t, urls, 1)
	rec := decode[output.URLRecord](t, urls[0])
	assert.Equal(t, "a.txt", rec.Path)
	assert.Contains(t, rec.URL, "file://")
	assert.False(t, rec.ExpiresAt.IsZero())

	_, err := execute(t, "", "url", "missing.txt", "-r", "lab")
	assertExitCode(t, err, exitFileNotFound)
}

func TestCpMv(t *testing.T) {
	fileEnv(t)
	mustExecute(t, "", "repo", "create", "inbox")
	mustExecute(t, "", "repo", "create", "archive")
	mustExecute(t, `{"k":"v"}`, "put", "a.json", "-r", "inbox")

	out := mustExecute(t, "", "cp", "a.json", "copy/a.json", "-r", "inbox")
	tr := decode[output.TransferRecord](t, recordsOfType(t, out, output.TypeTransfer)[0])
	assert.Equal(t, output.TransferRecord{Op: "copy", Source: "inbox/a.json", Target: "inbox/copy/a.json", Size: 9}, tr)

	out = mustExecute(t, "", "mv", "file://inbox/a.json", "file://archive/2024/a.json")
	tr = decode[output.TransferRecord](t, recordsOfType(t, out, output.TypeTransfer)[0])
	assert.Equal(t, "move", tr.Op)
	assert.Equal(t, "archive/2024/a.json", tr.Target)

	_, err := execute(t, "", "stat", "a.json", "-r", "inbox")
	assertExitCode(t, err, exitFileNotFound)
	out = mustExecute(t, "", "cat", "2024/a.json", "-r", "archive", "--shape", "mapping")
	assert.JSONEq(t, `{"k":"v"}`, out)

	_, err = execute(t, "", "cp", "copy/a.json", "copy/a.csv", "-r", "inbox")
	assertExitCode(t, err, exitInvalidArgument)

	mustExecute(t, `{"k":"w"}`, "put", "b.json", "-r", "inbox")
	_, err = execute(t, "", "cp", "b.json", "copy/a.json", "-r", "inbox", "--if-absent")
	assertExitCode(t, err, exitInvalidArgument)

	_, err = execute(t, "", "mv", "copy/", "other/", "-r", "inbox")
	assertExitCode(t, err, exitInvalidArgument)

	_, err = execute(t, "", "cp", "s3://inbox/a.json", "b.json", "-r", "inbox")
	assertExitCode(t, err, exitInvalidArgument)
}
