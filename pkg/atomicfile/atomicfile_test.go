package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterCommit(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "app.py")

	w, err := NewWriter(target)
	require.NoError(t, err)

	_, err = w.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = w.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	// No temp file left behind
	_, err = os.Stat(target + TmpSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestWriterAbort(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app.py")

	w, err := NewWriter(target)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	w.Abort()

	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(target + TmpSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestWriterReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0644))

	w, err := NewWriter(target)
	require.NoError(t, err)
	_, err = w.Write([]byte("new"))
	require.NoError(t, err)

	// Target still holds old content until Commit
	data, _ := os.ReadFile(target)
	assert.Equal(t, "old", string(data))

	require.NoError(t, w.Commit())
	data, _ = os.ReadFile(target)
	assert.Equal(t, "new", string(data))
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "version.json")

	require.NoError(t, WriteJSON(target, map[string]string{"ref": "v1", "commit": "abc"}))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ref":"v1","commit":"abc"}`, string(data))
}

func TestRemoveStrayTmp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py.tmp"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "b.py.tmp"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.py"), []byte("x"), 0644))

	removed := RemoveStrayTmp(dir)
	assert.Equal(t, 2, removed)

	_, err := os.Stat(filepath.Join(dir, "keep.py"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "a.py.tmp"))
	assert.True(t, os.IsNotExist(err))
}
