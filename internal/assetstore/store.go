// Package assetstore implements the deduplicating store of shared audio assets.
//
// Every asset is a file in the store folder, catalogued in config.csv under a unique long
// name, and used by any number of consumers (songs). Uses are counted in a ledger. An
// asset is created by the first use of content not already present and deleted when its
// last use is removed.
//
// Uses can be applied immediately or as part of a consumer's editing session. Session adds
// hit the ledger at once and are remembered so DiscardUseChanges can revert them; session
// removes are only remembered and applied by SaveUseChanges.
package assetstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/javanhut/fxstore/internal/catalogue"
	"github.com/javanhut/fxstore/internal/ledger"
	"github.com/javanhut/fxstore/internal/metrics"
	"github.com/javanhut/fxstore/internal/tree"
)

var (
	// ErrRead reports an unreadable or rejected source. Nothing was changed.
	ErrRead = errors.New("read failure")
	// ErrWrite reports that the store or the ledger could not be written. Nothing was changed.
	ErrWrite = errors.New("write failure")
	// ErrConsistency reports a request that contradicts recorded usage. Nothing was changed.
	ErrConsistency = errors.New("consistency violation")
)

// ByteSource supplies the bytes of an asset to add.
type ByteSource interface {
	Open() (io.ReadCloser, error)
}

// FileSource reads a file on disk.
type FileSource string

func (f FileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

// MemorySource serves bytes held in memory.
type MemorySource []byte

func (m MemorySource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m)), nil
}

// Validator inspects source bytes before they are stored. A non-nil error rejects the
// source as unreadable.
type Validator func(r io.Reader) error

// Options configures a Store.
type Options struct {
	// Extension of generated asset file names, without dot. Defaults to WAV.
	Extension string
	// LedgerFile names the ledger file kept inside the store folder, if any. It travels
	// with the folder when synced.
	LedgerFile string
	Validator  Validator
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
}

// Store is the asset catalogue bound to one folder of a content tree.
type Store struct {
	folder   *tree.Node
	cat      *catalogue.Catalogue
	ledger   *ledger.Ledger
	validate Validator
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// Open binds a store to folder, loading its catalogue and creating one asset node per
// entry. folder must belong to a disk-backed tree and have no children yet.
func Open(folder *tree.Node, l *ledger.Ledger, opts Options) (*Store, error) {
	if folder.Kind() != tree.KindFolder || !folder.DiskBacked() {
		return nil, fmt.Errorf("asset store needs a folder on disk, got %s %q", folder.Kind(), folder.Path())
	}
	if folder.Len() != 0 {
		return nil, fmt.Errorf("asset store folder %q is already populated", folder.Path())
	}
	if opts.Extension == "" {
		opts.Extension = "WAV"
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	dir := folder.Path()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store folder: %w", err)
	}
	cat, err := catalogue.Load(filepath.Join(dir, catalogue.FileName), opts.Extension)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cat.Path()); os.IsNotExist(err) {
		if err := cat.Save(); err != nil {
			return nil, err
		}
	}

	s := &Store{
		folder:   folder,
		cat:      cat,
		ledger:   l,
		validate: opts.Validator,
		log:      opts.Logger.WithField("component", "assetstore"),
		metrics:  opts.Metrics,
	}

	folder.SetSources(tree.FolderFile{Name: catalogue.FileName}, tree.Blob(l.Encode))
	aux := []string{catalogue.FileName}
	if opts.LedgerFile != "" {
		aux = append(aux, opts.LedgerFile)
	}
	folder.SetAux(aux...)

	for _, e := range cat.Entries() {
		folder.AppendChild(tree.NewAsset(e.LongName, e.FileName()))
	}
	return s, nil
}

// Folder returns the tree node of the store folder.
func (s *Store) Folder() *tree.Node { return s.folder }

// Ledger returns the usage ledger.
func (s *Store) Ledger() *ledger.Ledger { return s.ledger }

// Close releases the ledger.
func (s *Store) Close() error { return s.ledger.Close() }

func (s *Store) assetPath(key string) string {
	return filepath.Join(s.folder.Path(), key)
}
