// Package sidecar reads and writes the small ".bcf" records that sit next to stored files
// and folders and remember their last computed digest.
package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/javanhut/fxstore/internal/cas"
	"github.com/javanhut/fxstore/internal/fsutil"
)

// Ext is the extension of every sidecar file.
const Ext = "bcf"

// FolderName is the sidecar file kept inside each folder.
const FolderName = "hash." + Ext

// ErrNotFound is returned by Read when no sidecar exists.
var ErrNotFound = errors.New("sidecar not found")

// Record is the persisted form of a digest.
type Record struct {
	Hash    string    `json:"hash"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Digest decodes the stored hash.
func (r Record) Digest() (cas.Hash, error) {
	return cas.ParseHash(r.Hash)
}

// Matches reports whether the record still describes a file with the given stat.
func (r Record) Matches(info os.FileInfo) bool {
	return info != nil && r.Size == info.Size() && r.ModTime.Equal(info.ModTime())
}

// LeafPath returns the sidecar path of a stored asset: same directory, extension
// replaced. Asset keys are unique stems, so replacing the extension cannot collide.
func LeafPath(path string) string {
	return filepath.Join(filepath.Dir(path), fsutil.ReplaceExt(path, Ext))
}

// FilePath returns the sidecar path of any other file: its full name with Ext appended,
// so files sharing a stem keep separate records.
func FilePath(path string) string {
	return path + "." + Ext
}

// FolderPath returns the sidecar path for the folder at dir.
func FolderPath(dir string) string {
	return filepath.Join(dir, FolderName)
}

// Reserved reports whether a file called name would have its record at the folder
// sidecar of its directory.
func Reserved(name string) bool {
	return filepath.Base(FilePath(name)) == FolderName
}

// IsSidecar reports whether name is a sidecar file name.
func IsSidecar(name string) bool {
	return filepath.Ext(name) == "."+Ext
}

// Read loads the record stored at path.
func Read(path string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rec, ErrNotFound
		}
		return rec, fmt.Errorf("failed to read sidecar: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to parse sidecar %s: %w", path, err)
	}
	return rec, nil
}

// ReadDigest loads only the digest stored at path.
func ReadDigest(path string) (cas.Hash, error) {
	rec, err := Read(path)
	if err != nil {
		return cas.Empty, err
	}
	return rec.Digest()
}

// Write atomically stores rec at path.
func Write(path string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sidecar: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data, 0644)
}
