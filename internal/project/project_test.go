package project

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanhut/fxstore/internal/assetstore"
	"github.com/javanhut/fxstore/internal/config"
	"github.com/javanhut/fxstore/internal/ledger"
	"github.com/javanhut/fxstore/internal/logging"
	"github.com/javanhut/fxstore/internal/sidecar"
	"github.com/javanhut/fxstore/internal/tree"
)

func open(t *testing.T, dir string, cfg *config.Config) *Project {
	t.Helper()
	p, err := Open(dir, cfg, Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func seed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "SONGS"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SONGS", "S1.mid"), []byte("MThd one"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0644))
	return dir
}

func TestOpenBuildsTree(t *testing.T) {
	dir := seed(t)
	p := open(t, dir, nil)

	var keys []string
	for _, c := range p.Root().Children() {
		keys = append(keys, c.StorageKey())
	}
	assert.Equal(t, []string{"EFFECTS", "SONGS"}, keys)
	assert.Equal(t, tree.KindFile, p.Root().FindChild("SONGS").FindChild("S1.mid").Kind())
	assert.False(t, p.Root().Digest().IsZero())

	_, err := os.Stat(filepath.Join(dir, "EFFECTS", "config.csv"))
	assert.NoError(t, err, "skeleton is created")
	_, err = os.Stat(filepath.Join(dir, sidecar.FolderName))
	assert.NoError(t, err, "root digest is persisted")
}

func TestOpenSkipsReservedFileName(t *testing.T) {
	dir := seed(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SONGS", "hash"), []byte("x"), 0644))
	p := open(t, dir, nil)

	songs := p.Root().FindChild("SONGS")
	assert.Nil(t, songs.FindChild("hash"))
	assert.True(t, songs.CompareDigest(filepath.Join(dir, "SONGS")), "folder record stays intact")
}

func TestReopenKeepsDigest(t *testing.T) {
	dir := seed(t)
	p := open(t, dir, nil)
	song := uuid.New()
	_, err := p.Store().AddUse(assetstore.MemorySource("kick"), "Kick", song, true, 2)
	require.NoError(t, err)
	want := p.Root().Digest()
	require.NoError(t, p.Close())

	again := open(t, dir, nil)
	assert.Equal(t, want, again.Root().Digest())
	assert.Equal(t, 1, again.Store().Folder().Len())
	assert.Equal(t, 2, again.Store().Ledger().Total(again.Store().Folder().Children()[0].StorageKey()))
}

func TestBoltBackend(t *testing.T) {
	dir := seed(t)
	cfg := config.Default()
	cfg.Store.LedgerBackend = config.BackendBolt

	p := open(t, dir, cfg)
	song := uuid.New()
	node, err := p.Store().AddUse(assetstore.MemorySource("snare"), "Snare", song, true, 1)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = os.Stat(filepath.Join(dir, BoltFile))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "EFFECTS", ledger.FileName))
	assert.True(t, os.IsNotExist(err), "no ledger file next to the assets")

	again := open(t, dir, cfg)
	assert.Equal(t, 1, again.Store().Ledger().Count(node.StorageKey(), song))
	assert.Nil(t, again.Root().FindChild(BoltFile))
}

func TestUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.LedgerBackend = "etcd"
	_, err := Open(t.TempDir(), cfg, Options{Logger: logging.Discard()})
	assert.Error(t, err)
}

func TestSync(t *testing.T) {
	dir := seed(t)
	p := open(t, dir, nil)
	song := uuid.New()
	_, err := p.Store().AddUse(assetstore.MemorySource("kick"), "Kick", song, true, 1)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "sd")
	plan, res, err := p.Sync(context.Background(), dst, false, nil)
	require.NoError(t, err)
	assert.False(t, plan.Empty())
	assert.Equal(t, 3, res.Created)

	for _, name := range []string{"config.csv", ledger.FileName, sidecar.FolderName} {
		_, err := os.Stat(filepath.Join(dst, "EFFECTS", name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(dst, ".hidden"))
	assert.True(t, os.IsNotExist(err))

	again, err := p.PlanSync(context.Background(), dst)
	require.NoError(t, err)
	assert.True(t, again.Empty())

	_, err = p.Store().AddUse(assetstore.MemorySource("hat"), "Hat", song, true, 1)
	require.NoError(t, err)
	delta, err := p.PlanSync(context.Background(), dst)
	require.NoError(t, err)
	assert.Empty(t, delta.Cleanup)
	for _, d := range delta.CopyDst {
		rel, err := filepath.Rel(dst, d)
		require.NoError(t, err)
		assert.NotContains(t, rel, "SONGS", "untouched folder is skipped")
	}
}

func TestSyncDryRun(t *testing.T) {
	p := open(t, seed(t), nil)
	dst := filepath.Join(t.TempDir(), "sd")
	_, _, err := p.Sync(context.Background(), dst, true, nil)
	require.NoError(t, err)
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

func TestSyncIntoProjectRejected(t *testing.T) {
	dir := seed(t)
	p := open(t, dir, nil)
	_, err := p.PlanSync(context.Background(), filepath.Join(dir, "SONGS"))
	assert.Error(t, err)
}

func TestExportImport(t *testing.T) {
	dir := seed(t)
	p := open(t, dir, nil)
	_, err := p.Store().AddUse(assetstore.MemorySource("kick"), "Kick", uuid.New(), true, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	st, err := p.Export(context.Background(), &buf)
	require.NoError(t, err)
	assert.Positive(t, st.Files)

	out := filepath.Join(t.TempDir(), "restored")
	_, err = Import(context.Background(), &buf, out)
	require.NoError(t, err)

	restored := open(t, out, nil)
	assert.Equal(t, p.Root().Digest(), restored.Root().Digest())
}
