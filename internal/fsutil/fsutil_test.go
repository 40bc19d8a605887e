package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "usage.bcf")

	require.NoError(t, WriteFileAtomic(path, []byte("v1"), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte("v2"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteAtomicFailureKeepsOldContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.csv")
	require.NoError(t, WriteFileAtomic(path, []byte("old"), 0644))

	err := WriteAtomic(path, failingReader{}, 0644)
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCopyFilePreservesModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.wav")
	dst := filepath.Join(dir, "out", "a.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF"), 0644))
	when := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, when, when))

	require.NoError(t, CopyFile(src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(when))
}

func TestExistsAndReplaceExt(t *testing.T) {
	dir := t.TempDir()
	exists, isDir := Exists(dir)
	assert.True(t, exists)
	assert.True(t, isDir)

	exists, _ = Exists(filepath.Join(dir, "nope"))
	assert.False(t, exists)

	assert.Equal(t, "1A2B3C4D.bcf", ReplaceExt("1A2B3C4D.WAV", "bcf"))
	assert.Equal(t, "song.bcf", ReplaceExt("dir/song", "bcf"))
}
