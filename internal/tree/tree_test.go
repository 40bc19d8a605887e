package tree

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanhut/fxstore/internal/cas"
	"github.com/javanhut/fxstore/internal/sidecar"
)

func blobOf(data *[]byte) Blob {
	return func() ([]byte, error) { return *data, nil }
}

// memTree builds root -> {a -> {a1, a2}, b -> {b1}} with in-memory leaf bytes.
func memTree(t *testing.T) (map[string]*Node, map[string]*[]byte) {
	t.Helper()
	nodes := map[string]*Node{}
	data := map[string]*[]byte{}

	root := NewRoot("")
	nodes["root"] = root
	for _, f := range []string{"a", "b"} {
		folder := NewFolder(f, f)
		nodes[f] = folder
		root.AppendChild(folder)
	}
	for _, leaf := range []struct{ parent, name string }{{"a", "a1"}, {"a", "a2"}, {"b", "b1"}} {
		b := []byte("content of " + leaf.name)
		data[leaf.name] = &b
		n := NewFile(leaf.name, leaf.name)
		n.SetSources(blobOf(data[leaf.name]))
		nodes[leaf.name] = n
		nodes[leaf.parent].AppendChild(n)
	}
	root.ComputeDigest(true)
	return nodes, data
}

func snapshot(nodes map[string]*Node) map[string]cas.Hash {
	out := map[string]cas.Hash{}
	for k, n := range nodes {
		h, _ := n.Cached()
		out[k] = h
	}
	return out
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "folder", KindFolder.String())
	assert.Equal(t, "asset", KindAsset.String())
	assert.Equal(t, "file", KindFile.String())
	assert.Equal(t, "unknown(9)", Kind(9).String())
	assert.True(t, KindAsset.IsLeaf())
	assert.False(t, KindFolder.IsLeaf())
}

func TestDigestFormula(t *testing.T) {
	nodes, data := memTree(t)

	a1 := cas.Sum(*data["a1"])
	a2 := cas.Sum(*data["a2"])
	assert.Equal(t, a1, nodes["a1"].Digest())

	h := cas.NewHasher()
	h.WriteHash(a1)
	h.WriteHash(a2)
	assert.Equal(t, h.Sum(), nodes["a"].Digest())
}

func TestChildOrderMatters(t *testing.T) {
	nodes, _ := memTree(t)
	before := nodes["a"].Digest()

	a2 := nodes["a2"]
	nodes["a"].InsertChild(0, a2)
	nodes["a"].ComputeDigest(false)

	assert.Equal(t, []*Node{a2, nodes["a1"]}, nodes["a"].Children())
	assert.NotEqual(t, before, nodes["a"].Digest())
}

func TestPropagationLocality(t *testing.T) {
	nodes, data := memTree(t)
	before := snapshot(nodes)

	*data["a2"] = []byte("edited")
	nodes["a2"].PropagateHashChange()
	after := snapshot(nodes)

	changed := map[string]bool{"a2": true, "a": true, "root": true}
	for name := range nodes {
		if changed[name] {
			assert.NotEqual(t, before[name], after[name], "%s should change", name)
		} else {
			assert.Equal(t, before[name], after[name], "%s should not change", name)
		}
	}
}

func TestMissingSourceYieldsEmptyDigest(t *testing.T) {
	leaf := NewAsset("Kick", "0000CAFE.WAV")
	root := NewRoot("")
	root.AppendChild(leaf)

	leaf.ComputeDigest(false)
	assert.True(t, leaf.Digest().IsZero())

	dir := t.TempDir()
	disk := NewRoot(dir)
	gone := NewFile("gone", "gone.mid")
	disk.AppendChild(gone)
	gone.ComputeDigest(false)
	assert.True(t, gone.Digest().IsZero())
	assert.False(t, gone.CompareDigest(filepath.Join(dir, "gone.mid")))
}

func TestRemoveChildClearsParent(t *testing.T) {
	nodes, _ := memTree(t)
	a1 := nodes["a1"]

	require.NoError(t, nodes["a"].RemoveChild(a1))
	assert.Nil(t, a1.Parent())
	assert.Equal(t, 1, nodes["a"].Len())
	assert.ErrorIs(t, nodes["a"].RemoveChild(a1), ErrNotChild)

	nodes["b"].AppendChild(nodes["a2"])
	assert.Equal(t, nodes["b"], nodes["a2"].Parent())
	assert.Equal(t, 0, nodes["a"].Len())
	assert.Equal(t, -1, nodes["a"].IndexOf(nodes["a2"]))
}

func TestWalkAndFind(t *testing.T) {
	nodes, _ := memTree(t)
	var names []string
	require.NoError(t, nodes["root"].Walk(func(n *Node) error {
		names = append(names, n.Name())
		return nil
	}))
	assert.Equal(t, []string{"", "a", "a1", "a2", "b", "b1"}, names)
	assert.Equal(t, nodes["b1"], nodes["b"].FindChild("b1"))
	assert.Nil(t, nodes["b"].FindChild("zz"))
	assert.Equal(t, nodes["root"], nodes["b1"].Root())
}

func TestDiskBackedSidecars(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "SONGS"), 0755))
	songPath := filepath.Join(dir, "SONGS", "S1.mid")
	require.NoError(t, os.WriteFile(songPath, []byte("MThd"), 0644))

	root := NewRoot(dir)
	songs := NewFolder("SONGS", "SONGS")
	root.AppendChild(songs)
	song := NewFile("S1", "S1.mid")
	songs.AppendChild(song)
	root.ComputeDigest(true)

	assert.Equal(t, songPath, song.Path())
	assert.Equal(t, filepath.Join(dir, "SONGS", "S1.mid.bcf"), song.SidecarPath())
	assert.Equal(t, []string{"S1.mid.bcf"}, song.AuxFiles())
	assert.Equal(t, []string{"hash.bcf"}, songs.AuxFiles())

	got, err := sidecar.ReadDigest(song.SidecarPath())
	require.NoError(t, err)
	assert.Equal(t, cas.Sum([]byte("MThd")), got)

	folderDigest, err := sidecar.ReadDigest(filepath.Join(dir, "SONGS", "hash.bcf"))
	require.NoError(t, err)
	assert.Equal(t, songs.Digest(), folderDigest)

	assert.True(t, song.CompareDigest(songPath))
	assert.True(t, songs.CompareDigest(filepath.Join(dir, "SONGS")))
}

func TestLazySidecarLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "A.WAV")
	require.NoError(t, os.WriteFile(path, []byte("real bytes"), 0644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	planted := cas.Sum([]byte("planted"))
	require.NoError(t, sidecar.Write(sidecar.LeafPath(path), sidecar.Record{
		Hash: planted.String(), Size: info.Size(), ModTime: info.ModTime(),
	}))

	root := NewRoot(dir)
	leaf := NewAsset("A", "A.WAV")
	root.AppendChild(leaf)
	assert.Equal(t, planted, leaf.Digest(), "matching stat trusts the sidecar")

	later := info.ModTime().Add(time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	leaf.Invalidate()
	assert.Equal(t, cas.Sum([]byte("real bytes")), leaf.Digest(), "stale sidecar is ignored")
}

func TestFolderFileSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.csv"), []byte("x"), 0644))

	root := NewRoot(dir)
	root.SetSources(FolderFile{Name: "config.csv"}, FolderFile{Name: "missing.csv"})
	root.ComputeDigest(true)

	assert.Equal(t, cas.Sum([]byte("x")), root.Digest())
}
