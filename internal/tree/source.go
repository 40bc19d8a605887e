package tree

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// Source supplies part of a node's own bytes. A source whose backing data does not exist
// returns an error satisfying os.IsNotExist and contributes nothing to the digest.
type Source interface {
	Open(n *Node) (io.ReadCloser, error)
}

// SelfFile reads the file at the node's own path.
type SelfFile struct{}

func (SelfFile) Open(n *Node) (io.ReadCloser, error) {
	if !n.DiskBacked() {
		return nil, os.ErrNotExist
	}
	return os.Open(n.Path())
}

// FolderFile reads a metadata file stored inside a folder node.
type FolderFile struct {
	Name string
}

func (f FolderFile) Open(n *Node) (io.ReadCloser, error) {
	if !n.DiskBacked() {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(n.Path(), f.Name))
}

// Blob provides in-memory bytes, typically a serialized metadata table.
type Blob func() ([]byte, error)

func (b Blob) Open(*Node) (io.ReadCloser, error) {
	data, err := b()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
