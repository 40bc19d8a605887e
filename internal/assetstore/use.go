package assetstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javanhut/fxstore/internal/cas"
	"github.com/javanhut/fxstore/internal/fsutil"
	"github.com/javanhut/fxstore/internal/ledger"
	"github.com/javanhut/fxstore/internal/tree"
)

// AddUse records count uses of the asset holding the bytes of src under longName.
//
// If longName is catalogued with identical bytes that asset is reused. If it is catalogued
// with other bytes the name "longName(n)" is tried for n = 1, 2, ... until a free or an
// identical entry is found. A new asset is copied into the store and appended to the
// catalogue. The ledger is updated last, so failures never leave usage for a missing file.
// Without immediate the uses are also remembered in the consumer's session.
func (s *Store) AddUse(src ByteSource, longName string, consumer uuid.UUID, immediate bool, count int) (*tree.Node, error) {
	log := s.log.WithFields(logrus.Fields{"name": longName, "consumer": consumer})
	if count <= 0 {
		s.metrics.Failure("consistency")
		return nil, fmt.Errorf("%w: add of %d uses", ErrConsistency, count)
	}

	digest, err := digestOf(src)
	if err != nil {
		s.metrics.Failure("read")
		log.WithError(err).Warn("unable to read asset source")
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	node, resolved := s.resolve(longName, digest)
	created := false
	if node == nil {
		if node, err = s.create(src, resolved); err != nil {
			log.WithError(err).Warn("unable to store asset")
			return nil, err
		}
		created = true
	}
	key := node.StorageKey()

	if err := s.ledger.Increment(key, consumer, count); err != nil {
		s.metrics.Failure("write")
		if created {
			if rbErr := s.destroy(node); rbErr != nil {
				log.WithError(rbErr).Warn("unable to roll back new asset")
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if !immediate {
		s.ledger.RecordPendingAdd(consumer, key, count)
	}

	if created {
		s.metrics.AssetCreated()
		log.WithField("key", key).Info("asset created")
	} else {
		s.metrics.AssetReused()
		log.WithField("key", key).Debug("asset reused")
	}
	s.metrics.UsesChanged("add", immediate, count)

	node.Invalidate()
	node.PropagateHashChange()
	return node, nil
}

// resolve walks longName, longName(1), longName(2), ... and returns the first catalogued
// asset with digest, or nil and the first free name.
func (s *Store) resolve(longName string, digest cas.Hash) (*tree.Node, string) {
	resolved := longName
	for n := 1; ; n++ {
		i := s.cat.IndexOfName(resolved)
		if i < 0 {
			return nil, resolved
		}
		if node := s.folder.FindChild(s.cat.At(i).FileName()); node != nil && node.Digest() == digest {
			return node, s.cat.At(i).LongName
		}
		resolved = fmt.Sprintf("%s(%d)", longName, n)
	}
}

// create validates src, copies it into the store under a new catalogue entry and appends
// the asset node. Every step is undone if a later one fails.
func (s *Store) create(src ByteSource, longName string) (*tree.Node, error) {
	if s.validate != nil {
		if err := s.validateSource(src); err != nil {
			s.metrics.Failure("read")
			return nil, fmt.Errorf("%w: %v", ErrRead, err)
		}
	}

	entry, err := s.cat.Append(longName)
	if err != nil {
		s.metrics.Failure("consistency")
		return nil, fmt.Errorf("%w: %v", ErrConsistency, err)
	}
	undoEntry := func() { s.cat.RemoveAt(s.cat.Len() - 1) }

	path := s.assetPath(entry.FileName())
	if err := s.copyIn(src, path); err != nil {
		undoEntry()
		s.metrics.Failure("write")
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := s.cat.Save(); err != nil {
		undoEntry()
		os.Remove(path)
		s.metrics.Failure("write")
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	node := tree.NewAsset(longName, entry.FileName())
	s.folder.AppendChild(node)
	node.ComputeDigest(false)
	return node, nil
}

func (s *Store) validateSource(src ByteSource) error {
	rc, err := src.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return s.validate(rc)
}

func (s *Store) copyIn(src ByteSource, path string) error {
	rc, err := src.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return fsutil.WriteAtomic(path, rc, 0644)
}

func digestOf(src ByteSource) (cas.Hash, error) {
	rc, err := src.Open()
	if err != nil {
		return cas.Empty, err
	}
	defer rc.Close()
	h, _, err := cas.SumReader(rc)
	return h, err
}

// RemoveUse removes count uses of the asset stored as key by consumer.
//
// The request must not exceed the recorded uses minus the removes already pending in the
// consumer's session; otherwise it is logged and refused with ErrConsistency. Keys are
// matched case-insensitively. Immediate removals update the ledger at once and delete the
// asset when no consumer uses it anymore. Deferred removals are only remembered until the
// session is saved.
func (s *Store) RemoveUse(key string, consumer uuid.UUID, immediate bool, count int) error {
	log := s.log.WithFields(logrus.Fields{"key": key, "consumer": consumer})
	i := s.cat.IndexOfFile(key)
	if i < 0 {
		s.metrics.Failure("consistency")
		log.Warn("remove of uncatalogued asset")
		return fmt.Errorf("%w: %s is not catalogued", ErrConsistency, key)
	}
	key = s.cat.At(i).FileName()
	if count <= 0 {
		s.metrics.Failure("consistency")
		return fmt.Errorf("%w: remove of %d uses", ErrConsistency, count)
	}
	// Removes already waiting in the session are spoken for.
	if err := s.ledger.CheckDecrement(key, consumer, count+s.ledger.PendingRemove(consumer, key)); err != nil {
		s.metrics.Failure("consistency")
		log.WithError(err).Warn("remove refused")
		return fmt.Errorf("%w: %v", ErrConsistency, err)
	}

	if !immediate {
		s.ledger.RecordPendingRemove(consumer, key, count)
		s.metrics.UsesChanged("remove", false, count)
		return nil
	}
	return s.removeNow(key, consumer, count)
}

func (s *Store) removeNow(key string, consumer uuid.UUID, count int) error {
	unused, err := s.ledger.Decrement(key, consumer, count)
	if err != nil {
		if isRefusal(err) {
			s.metrics.Failure("consistency")
			return fmt.Errorf("%w: %v", ErrConsistency, err)
		}
		s.metrics.Failure("write")
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	s.metrics.UsesChanged("remove", true, count)

	if unused {
		if node := s.folder.FindChild(key); node != nil {
			if err := s.destroy(node); err != nil {
				s.log.WithError(err).WithField("key", key).Warn("unable to collect asset")
			} else {
				s.metrics.AssetCollected()
				s.log.WithField("key", key).Info("asset collected")
			}
		}
	}
	s.folder.PropagateHashChange()
	return nil
}

func isRefusal(err error) bool {
	return errors.Is(err, ledger.ErrUnknownAsset) ||
		errors.Is(err, ledger.ErrUnknownConsumer) ||
		errors.Is(err, ledger.ErrInsufficientUses) ||
		errors.Is(err, ledger.ErrInvalidCount)
}

// destroy deletes an asset: node, file, sidecar and catalogue entry.
func (s *Store) destroy(node *tree.Node) error {
	key := node.StorageKey()
	path := s.assetPath(key)
	sidecarPath := node.SidecarPath()

	if err := s.folder.RemoveChild(node); err != nil {
		return err
	}
	var errs []error
	if _, ok := s.cat.RemoveFile(key); ok {
		if err := s.cat.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := os.Remove(sidecarPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	s.folder.PropagateHashChange()
	return errors.Join(errs...)
}
