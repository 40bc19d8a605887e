package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanhut/fxstore/internal/tree"
)

func fixture(t *testing.T) *tree.Node {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "SONGS"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SONGS", "S1.mid"), []byte("MThd song"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("notes"), 0644))

	root := tree.NewRoot(dir)
	songs := tree.NewFolder("SONGS", "SONGS")
	root.AppendChild(songs)
	songs.AppendChild(tree.NewFile("S1", "S1.mid"))
	root.AppendChild(tree.NewFile("notes", "notes.txt"))
	root.ComputeDigest(true)
	return root
}

func TestRoundTrip(t *testing.T) {
	root := fixture(t)

	var buf bytes.Buffer
	st, err := Write(context.Background(), root, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Dirs)
	// two files, two leaf sidecars, two folder sidecars
	assert.Equal(t, 6, st.Files)

	out := t.TempDir()
	xst, err := Extract(context.Background(), &buf, out)
	require.NoError(t, err)
	assert.Equal(t, st, xst)

	data, err := os.ReadFile(filepath.Join(out, "SONGS", "S1.mid"))
	require.NoError(t, err)
	assert.Equal(t, "MThd song", string(data))
	assert.True(t, root.CompareDigest(out), "restored tree carries the same digest")
	assert.True(t, root.FindChild("SONGS").CompareDigest(filepath.Join(out, "SONGS")))
}

func TestWriteSkipsMissingFiles(t *testing.T) {
	root := fixture(t)
	require.NoError(t, os.Remove(root.FindChild("notes").Path()))

	var buf bytes.Buffer
	st, err := Write(context.Background(), root, &buf)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Files)
}

func TestWriteRejectsMemoryTree(t *testing.T) {
	_, err := Write(context.Background(), tree.NewRoot(""), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestWriteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Write(ctx, fixture(t), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	for _, name := range []string{"../evil", "/etc/evil", "a/../../evil", "a\\..\\evil"} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			zw, err := zstd.NewWriter(&buf)
			require.NoError(t, err)
			tw := tar.NewWriter(zw)
			require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: name, Mode: 0644, Size: 1}))
			_, err = tw.Write([]byte("x"))
			require.NoError(t, err)
			require.NoError(t, tw.Close())
			require.NoError(t, zw.Close())

			_, err = Extract(context.Background(), &buf, t.TempDir())
			assert.ErrorIs(t, err, ErrUnsafePath)
		})
	}
}
