package assetstore

import (
	"errors"
	"os"

	"github.com/google/uuid"

	"github.com/javanhut/fxstore/internal/tree"
)

// Asset describes one catalogued asset.
type Asset struct {
	Key      string
	LongName string
	Size     int64
	Uses     int
	Node     *tree.Node
}

// AssetByKey returns the asset node stored as key, compared case-insensitively.
func (s *Store) AssetByKey(key string) *tree.Node {
	i := s.cat.IndexOfFile(key)
	if i < 0 {
		return nil
	}
	return s.folder.FindChild(s.cat.At(i).FileName())
}

// AssetByName returns the asset catalogued under longName, compared case-insensitively.
func (s *Store) AssetByName(longName string) *tree.Node {
	i := s.cat.IndexOfName(longName)
	if i < 0 {
		return nil
	}
	return s.folder.FindChild(s.cat.At(i).FileName())
}

// Assets lists every catalogued asset in catalogue order.
func (s *Store) Assets() []Asset {
	entries := s.cat.Entries()
	out := make([]Asset, 0, len(entries))
	for _, e := range entries {
		a := Asset{
			Key:      e.FileName(),
			LongName: e.LongName,
			Size:     -1,
			Uses:     s.ledger.Total(e.FileName()),
			Node:     s.folder.FindChild(e.FileName()),
		}
		if info, err := os.Stat(s.assetPath(a.Key)); err == nil {
			a.Size = info.Size()
		}
		out = append(out, a)
	}
	return out
}

// AssetsForConsumer returns the asset nodes used by consumer, sorted by key.
func (s *Store) AssetsForConsumer(consumer uuid.UUID) []*tree.Node {
	var out []*tree.Node
	for _, key := range s.ledger.KeysFor(consumer) {
		if n := s.folder.FindChild(key); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Usage returns the use count of every consumer of key.
func (s *Store) Usage(key string) map[uuid.UUID]int {
	if i := s.cat.IndexOfFile(key); i >= 0 {
		key = s.cat.At(i).FileName()
	}
	return s.ledger.Consumers(key)
}

// Report lists the inconsistencies found by Verify.
type Report struct {
	MissingFiles []string // catalogued, but no file on disk
	OrphanUsage  []string // used, but not catalogued
	Unused       []string // catalogued, but not used by anyone
}

// Clean reports whether nothing was found.
func (r Report) Clean() bool {
	return len(r.MissingFiles) == 0 && len(r.OrphanUsage) == 0 && len(r.Unused) == 0
}

// Verify cross-checks the catalogue, the files on disk and the ledger.
func (s *Store) Verify() Report {
	var r Report
	catalogued := map[string]bool{}
	for _, e := range s.cat.Entries() {
		key := e.FileName()
		catalogued[key] = true
		if _, err := os.Stat(s.assetPath(key)); err != nil {
			r.MissingFiles = append(r.MissingFiles, key)
		}
		if !s.ledger.Has(key) && !s.ledger.HasPendingAdd(key) {
			r.Unused = append(r.Unused, key)
		}
	}
	for _, key := range s.ledger.Keys() {
		if !catalogued[key] {
			r.OrphanUsage = append(r.OrphanUsage, key)
		}
	}
	return r
}

// Collect deletes every asset that no consumer uses and no open session added, and
// returns the keys removed.
func (s *Store) Collect() ([]string, error) {
	var removed []string
	var errs []error
	for _, key := range s.Verify().Unused {
		node := s.folder.FindChild(key)
		if node == nil {
			continue
		}
		if err := s.destroy(node); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("unable to collect asset")
			errs = append(errs, err)
			continue
		}
		s.metrics.AssetCollected()
		removed = append(removed, key)
	}
	return removed, errors.Join(errs...)
}
