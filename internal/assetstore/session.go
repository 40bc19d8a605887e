package assetstore

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SaveUseChanges commits the editing session of consumer. Pending adds are already live
// and are simply forgotten; pending removes are applied now. Every remove is attempted and
// the failures are returned together.
func (s *Store) SaveUseChanges(consumer uuid.UUID) error {
	s.ledger.TakePendingAdds(consumer)
	var errs []error
	for _, e := range s.ledger.TakePendingRemoves(consumer) {
		if err := s.removeNow(e.Key, consumer, e.Count); err != nil {
			s.log.WithError(err).WithField("key", e.Key).Warn("unable to commit pending remove")
			errs = append(errs, fmt.Errorf("commit remove of %s: %w", e.Key, err))
		}
	}
	s.metrics.SessionClosed("saved")
	return errors.Join(errs...)
}

// DiscardUseChanges rolls back the editing session of consumer. Pending removes were never
// applied and are forgotten; pending adds are reverted now.
func (s *Store) DiscardUseChanges(consumer uuid.UUID) error {
	s.ledger.TakePendingRemoves(consumer)
	var errs []error
	for _, e := range s.ledger.TakePendingAdds(consumer) {
		if err := s.removeNow(e.Key, consumer, e.Count); err != nil {
			s.log.WithError(err).WithField("key", e.Key).Warn("unable to revert pending add")
			errs = append(errs, fmt.Errorf("revert add of %s: %w", e.Key, err))
		}
	}
	s.metrics.SessionClosed("discarded")
	return errors.Join(errs...)
}

// SaveAllUseChanges commits every open session.
func (s *Store) SaveAllUseChanges() error {
	var errs []error
	for _, id := range s.ledger.PendingConsumers() {
		errs = append(errs, s.SaveUseChanges(id))
	}
	return errors.Join(errs...)
}

// DiscardAllUseChanges rolls back every open session.
func (s *Store) DiscardAllUseChanges() error {
	var errs []error
	for _, id := range s.ledger.PendingConsumers() {
		errs = append(errs, s.DiscardUseChanges(id))
	}
	return errors.Join(errs...)
}

// RemoveAllUse removes every use held by consumer, typically because the consumer itself
// is being deleted.
func (s *Store) RemoveAllUse(consumer uuid.UUID, immediate bool) error {
	var errs []error
	for _, key := range s.ledger.KeysFor(consumer) {
		left := s.ledger.Count(key, consumer) - s.ledger.PendingRemove(consumer, key)
		if left <= 0 {
			continue
		}
		if err := s.RemoveUse(key, consumer, immediate, left); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
