package ledger

import (
	"encoding/json"
	"fmt"
	"os"

	"go.etcd.io/bbolt"

	"github.com/javanhut/fxstore/internal/fsutil"
)

// FileName is the usage file kept in the effects folder.
const FileName = "usage.bcf"

// FileStore keeps the table as one JSON document, replaced atomically on every save.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (Table, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Table{}, nil
		}
		return nil, err
	}
	return decode(data)
}

func (s *FileStore) Save(t Table) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode usage: %w", err)
	}
	return fsutil.WriteFileAtomic(s.Path, data, 0644)
}

// Bucket and key holding the table in a BoltStore.
var (
	BucketUsage = []byte("usage")
	keyTable    = []byte("table")
)

// BoltStore keeps the table under a single key of a bbolt database. Each save is one
// bbolt transaction.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0666, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(BucketUsage)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Load() (Table, error) {
	var t Table
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(BucketUsage).Get(keyTable)
		if raw == nil {
			t = Table{}
			return nil
		}
		var err error
		t, err = decode(raw)
		return err
	})
	return t, err
}

func (s *BoltStore) Save(t Table) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode usage: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(BucketUsage).Put(keyTable, data)
	})
}

func decode(data []byte) (Table, error) {
	t := Table{}
	if len(data) == 0 {
		return t, nil
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse usage: %w", err)
	}
	for key, users := range t {
		for id, n := range users {
			if n <= 0 {
				delete(users, id)
			}
		}
		if len(users) == 0 {
			delete(t, key)
		}
	}
	return t, nil
}
