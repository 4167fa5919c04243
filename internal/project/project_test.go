package project

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_Valid(t *testing.T) {
	dir := t.TempDir()
	_, err := Scaffold(dir, ScaffoldOptions{Conf: true, Index: true})
	require.NoError(t, err)

	assert.NoError(t, Check(dir))
}

func TestCheck_MissingSource(t *testing.T) {
	err := Check("/nonexistent/docs/12345")
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestCheck_SourceIsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))

	assert.ErrorIs(t, Check(f), ErrMissingSource)
}

func TestCheck_MissingIndex(t *testing.T) {
	dir := t.TempDir()
	_, err := Scaffold(dir, ScaffoldOptions{Conf: true})
	require.NoError(t, err)

	err = Check(dir)
	assert.ErrorIs(t, err, ErrMissingIndex)
	assert.Contains(t, err.Error(), "init --index")
}

func TestCheck_MissingConf(t *testing.T) {
	dir := t.TempDir()
	_, err := Scaffold(dir, ScaffoldOptions{Index: true})
	require.NoError(t, err)

	err = Check(dir)
	assert.ErrorIs(t, err, ErrMissingConf)
	assert.Contains(t, err.Error(), "init --conf")
}

func TestScaffold_CreatesDirAndFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs", "nested")

	written, err := Scaffold(dir, ScaffoldOptions{Conf: true, Index: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, ConfFile),
		filepath.Join(dir, IndexFile),
	}, written)

	conf, err := os.ReadFile(filepath.Join(dir, ConfFile))
	require.NoError(t, err)
	assert.Equal(t, DefaultConf, string(conf))

	index, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(index), "Index rst file")
}

func TestScaffold_KeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, IndexFile)
	require.NoError(t, os.WriteFile(index, []byte("My docs\n"), 0o644))

	written, err := Scaffold(dir, ScaffoldOptions{Conf: true, Index: true})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, ConfFile)}, written)

	data, err := os.ReadFile(index)
	require.NoError(t, err)
	assert.Equal(t, "My docs\n", string(data))
}

func TestScaffold_Force(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, IndexFile)
	require.NoError(t, os.WriteFile(index, []byte("My docs\n"), 0o644))

	written, err := Scaffold(dir, ScaffoldOptions{Index: true, Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{index}, written)

	data, err := os.ReadFile(index)
	require.NoError(t, err)
	assert.Equal(t, DefaultIndex, string(data))
}

func TestScaffold_NothingSelected(t *testing.T) {
	written, err := Scaffold(t.TempDir(), ScaffoldOptions{})
	require.NoError(t, err)
	assert.Empty(t, written)
}

func TestFileWriter_CreatesParentDirs(t *testing.T) {
	p := filepath.Join(t.TempDir(), "deep", "nested", ConfFile)

	w := NewFileWriter(p)
	require.NoError(t, w.Write([]byte(DefaultConf)))
	assert.Equal(t, p, w.Path())

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, DefaultConf, string(got))
}

func TestFileWriter_CustomPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}

	p := filepath.Join(t.TempDir(), "private.yaml")

	require.NoError(t, NewFileWriter(p, WithPermissions(0o600)).Write([]byte("x")))

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileWriter_WarnsOnOverwrite(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := filepath.Join(t.TempDir(), IndexFile)

	require.NoError(t, NewFileWriter(p, WithLogger(logger)).Write([]byte("a")))
	assert.NotContains(t, buf.String(), "overwriting")

	require.NoError(t, NewFileWriter(p, WithLogger(logger)).Write([]byte("b")))
	assert.Contains(t, buf.String(), "overwriting existing file")
}
