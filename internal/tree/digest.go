package tree

import (
	"errors"
	"io"
	"os"

	"github.com/javanhut/fxstore/internal/cas"
	"github.com/javanhut/fxstore/internal/sidecar"
)

const sidecarName = sidecar.FolderName

// SidecarPath returns where the node's digest record is kept.
func (n *Node) SidecarPath() string {
	return sidecarFor(n.Path(), n.kind)
}

// sidecarFor names the record of a node of kind at path. Assets replace their extension;
// plain files append to their full name.
func sidecarFor(path string, kind Kind) string {
	switch kind {
	case KindFolder:
		return sidecar.FolderPath(path)
	case KindAsset:
		return sidecar.LeafPath(path)
	default:
		return sidecar.FilePath(path)
	}
}

// Cached returns the last computed digest and whether it is still current.
func (n *Node) Cached() (cas.Hash, bool) {
	return n.digest, n.valid
}

// Invalidate marks the cached digest stale without discarding it.
func (n *Node) Invalidate() {
	n.valid = false
}

// Digest returns the node digest, computing it if it is not current. A leaf of a
// disk-backed tree first tries its sidecar, trusted only while the size and modification
// time of its file are unchanged.
func (n *Node) Digest() cas.Hash {
	if n.valid {
		return n.digest
	}
	if n.kind.IsLeaf() && n.loadSidecar() {
		return n.digest
	}
	n.ComputeDigest(false)
	return n.digest
}

// DigestBytes returns the digest as an opaque byte string for equality checks.
func (n *Node) DigestBytes() []byte {
	return n.Digest().Bytes()
}

// ComputeDigest hashes the node's own bytes followed by its children's digests. When
// recursive is set every descendant is recomputed first; otherwise children that are
// already current are reused as they are.
func (n *Node) ComputeDigest(recursive bool) {
	if recursive {
		for _, c := range n.children {
			c.ComputeDigest(true)
		}
	}

	h := cas.NewHasher()
	readable := false
	for _, src := range n.sources {
		ok, err := hashSource(h, n, src)
		if err != nil {
			logger.WithError(err).WithField("path", n.Path()).Warn("failed to read node bytes")
			if n.kind.IsLeaf() {
				readable = false
				break
			}
		}
		readable = readable || ok
	}

	if n.kind.IsLeaf() && !readable {
		n.setDigest(cas.Empty)
		return
	}
	for _, c := range n.children {
		h.WriteHash(c.Digest())
	}
	n.setDigest(h.Sum())
}

func hashSource(w io.Writer, n *Node, src Source) (bool, error) {
	rc, err := src.Open(n)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return false, err
	}
	return true, nil
}

// PropagateHashChange recomputes this node non-recursively, then every ancestor up to the
// root. Sibling subtrees are never visited.
func (n *Node) PropagateHashChange() {
	for cur := n; cur != nil; cur = cur.parent {
		cur.ComputeDigest(false)
	}
}

// CompareDigest reports whether the digest recorded for the same kind of node at path
// equals this node's digest. An empty digest on either side never compares equal.
func (n *Node) CompareDigest(path string) bool {
	own := n.Digest()
	if own.IsZero() {
		return false
	}
	other, err := sidecar.ReadDigest(sidecarFor(path, n.kind))
	if err != nil || other.IsZero() {
		return false
	}
	return own == other
}

func (n *Node) setDigest(h cas.Hash) {
	n.digest = h
	n.valid = true
	if n.DiskBacked() {
		n.persist()
	}
}

func (n *Node) persist() {
	rec := sidecar.Record{Hash: n.digest.String()}
	if n.kind.IsLeaf() {
		if n.digest.IsZero() {
			return
		}
		info, err := os.Stat(n.Path())
		if err != nil {
			return
		}
		rec.Size = info.Size()
		rec.ModTime = info.ModTime()
	}
	if err := sidecar.Write(n.SidecarPath(), rec); err != nil {
		logger.WithError(err).WithField("path", n.SidecarPath()).Warn("failed to write digest sidecar")
	}
}

func (n *Node) loadSidecar() bool {
	if !n.DiskBacked() {
		return false
	}
	info, err := os.Stat(n.Path())
	if err != nil {
		return false
	}
	rec, err := sidecar.Read(n.SidecarPath())
	if err != nil || !rec.Matches(info) {
		return false
	}
	h, err := rec.Digest()
	if err != nil || h.IsZero() {
		return false
	}
	n.digest = h
	n.valid = true
	return true
}
