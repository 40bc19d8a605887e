// Package tree implements the content tree of a project: folders, stored assets and plain
// files, each carrying a cached BLAKE3 digest.
//
// A node's digest is the hash of its own bytes followed by the digests of its children in
// order. Digests are computed bottom-up and propagated upward after an edit, so a change
// to one leaf costs O(depth): the leaf and its ancestors are rehashed, siblings are not.
//
// A tree rooted at a directory on disk is "disk-backed": every computed digest is also
// written to the node's .bcf sidecar so later runs and the sync planner can read it
// without rehashing file contents.
package tree

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/javanhut/fxstore/internal/cas"
)

// Kind represents the type of a tree node.
type Kind uint8

const (
	KindFolder Kind = 1 // Directory with ordered children
	KindAsset  Kind = 2 // Deduplicated audio asset in the store
	KindFile   Kind = 3 // Any other file of the project
)

// String returns a human-readable representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindAsset:
		return "asset"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// IsLeaf reports whether nodes of this kind are backed by a single file.
func (k Kind) IsLeaf() bool {
	return k == KindAsset || k == KindFile
}

var logger logrus.FieldLogger = logrus.WithField("component", "tree")

// SetLogger replaces the logger used for digest diagnostics.
func SetLogger(l logrus.FieldLogger) {
	logger = l.WithField("component", "tree")
}

// ErrNotChild is returned when a node is not a child of the receiver.
var ErrNotChild = errors.New("node is not a child")

// Node is one entry of the content tree. The parent owns its children; the parent pointer
// is a back-reference that is cleared whenever the node is detached.
type Node struct {
	kind     Kind
	name     string
	key      string
	dir      string // absolute directory, root only
	parent   *Node
	children []*Node

	sources []Source
	aux     []string

	digest cas.Hash
	valid  bool
}

// NewRoot creates the root folder of a tree. A non-empty dir makes the tree disk-backed.
func NewRoot(dir string) *Node {
	name := filepath.Base(dir)
	if dir == "" {
		name = ""
	}
	return &Node{kind: KindFolder, name: name, key: name, dir: dir}
}

// NewFolder creates a detached folder node.
func NewFolder(name, key string) *Node {
	return &Node{kind: KindFolder, name: name, key: key}
}

// NewAsset creates a detached asset node whose own bytes are its file on disk.
func NewAsset(name, key string) *Node {
	return &Node{kind: KindAsset, name: name, key: key, sources: []Source{SelfFile{}}}
}

// NewFile creates a detached plain file node whose own bytes are its file on disk.
func NewFile(name, key string) *Node {
	return &Node{kind: KindFile, name: name, key: key, sources: []Source{SelfFile{}}}
}

func (n *Node) Kind() Kind         { return n.kind }
func (n *Node) Name() string       { return n.name }
func (n *Node) StorageKey() string { return n.key }
func (n *Node) Parent() *Node      { return n.parent }

// SetName changes the display name. The storage key is unaffected.
func (n *Node) SetName(name string) { n.name = name }

// SetSources replaces the byte sources hashed as the node's own bytes, in order.
func (n *Node) SetSources(srcs ...Source) { n.sources = srcs }

// SetAux names the auxiliary files that travel with the node when it is synced. For a
// folder they live inside it; the folder sidecar is always implied.
func (n *Node) SetAux(names ...string) { n.aux = names }

// Children returns the ordered children. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// Len returns the number of children.
func (n *Node) Len() int { return len(n.children) }

// IndexOf returns the position of child, or -1.
func (n *Node) IndexOf(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// FindChild returns the child with the given storage key.
func (n *Node) FindChild(key string) *Node {
	for _, c := range n.children {
		if c.key == key {
			return c
		}
	}
	return nil
}

// AppendChild adds child at the end, detaching it from any previous parent.
func (n *Node) AppendChild(child *Node) {
	n.InsertChild(len(n.children), child)
}

// InsertChild adds child at position i, detaching it from any previous parent.
func (n *Node) InsertChild(i int, child *Node) {
	if child.parent != nil {
		_ = child.parent.RemoveChild(child)
	}
	if i < 0 || i > len(n.children) {
		i = len(n.children)
	}
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
	child.parent = n
	n.valid = false
}

// RemoveChild detaches child from n.
func (n *Node) RemoveChild(child *Node) error {
	i := n.IndexOf(child)
	if i < 0 {
		return ErrNotChild
	}
	n.children = append(n.children[:i], n.children[i+1:]...)
	child.parent = nil
	n.valid = false
	return nil
}

// Root returns the top of the tree n belongs to.
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Walk visits n and its descendants depth-first, parents before children.
func (n *Node) Walk(fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// DiskBacked reports whether the tree is rooted at a directory on disk.
func (n *Node) DiskBacked() bool {
	return n.Root().dir != ""
}

// Path returns the node location: the root directory joined with every storage key below it.
func (n *Node) Path() string {
	if n.parent == nil {
		return n.dir
	}
	return filepath.Join(n.parent.Path(), n.key)
}

// AuxFiles returns the names of the files that accompany the node. For folders the names
// are relative to the folder itself, for leaves to the directory holding the leaf.
func (n *Node) AuxFiles() []string {
	if n.kind == KindFolder {
		out := make([]string, 0, len(n.aux)+1)
		out = append(out, n.aux...)
		return append(out, sidecarName)
	}
	return append([]string{filepath.Base(n.SidecarPath())}, n.aux...)
}
