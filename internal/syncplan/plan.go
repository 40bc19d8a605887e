// Package syncplan computes the file operations that make a destination directory mirror
// a content tree.
//
// Planning is source driven and relies on digests only: a subtree whose digest equals the
// digest recorded at the destination is skipped without being visited. The planner never
// modifies the filesystem; it reads destination directories and sidecars and returns a
// Plan for an executor to apply.
package syncplan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/javanhut/fxstore/internal/cas"
	"github.com/javanhut/fxstore/internal/metrics"
	"github.com/javanhut/fxstore/internal/sidecar"
	"github.com/javanhut/fxstore/internal/tree"
)

// Plan lists destination paths to remove and position-correlated copy pairs. Cleanup is
// ordered children first; copies are ordered parents first. A path is both cleaned up and
// copied only when a folder replaces a file or the reverse.
type Plan struct {
	Cleanup []string
	CopySrc []string
	CopyDst []string
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool {
	return len(p.Cleanup) == 0 && len(p.CopySrc) == 0
}

// Len returns the number of operations.
func (p *Plan) Len() int {
	return len(p.Cleanup) + len(p.CopySrc)
}

func (p *Plan) cleanup(path string) {
	p.Cleanup = append(p.Cleanup, path)
}

func (p *Plan) scheduled(path string) bool {
	for _, c := range p.Cleanup {
		if c == path {
			return true
		}
	}
	return false
}

func (p *Plan) copy(src, dst string) {
	p.CopySrc = append(p.CopySrc, src)
	p.CopyDst = append(p.CopyDst, dst)
}

// Planner builds plans.
type Planner struct {
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// New creates a planner. Both arguments may be nil.
func New(log logrus.FieldLogger, m *metrics.Metrics) *Planner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Planner{log: log.WithField("component", "syncplan"), metrics: m}
}

// Prepare plans the mirroring of src into dst, where dst is the destination path of src
// itself. The source tree must be disk-backed with current digests. Cancellation between
// nodes returns ctx.Err() and no plan.
func (p *Planner) Prepare(ctx context.Context, src *tree.Node, dst string) (*Plan, error) {
	if !src.DiskBacked() {
		return nil, errors.New("sync source must be a tree on disk")
	}
	plan := &Plan{}
	if err := p.prepare(ctx, src, dst, plan); err != nil {
		return nil, err
	}
	p.metrics.PlanProduced(len(plan.Cleanup), len(plan.CopySrc))
	p.log.WithFields(logrus.Fields{
		"cleanup": len(plan.Cleanup),
		"copy":    len(plan.CopySrc),
	}).Debug("sync plan ready")
	return plan, nil
}

func (p *Planner) prepare(ctx context.Context, n *tree.Node, dst string, plan *Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := p.log.WithField("path", n.Path())

	info, err := os.Stat(n.Path())
	if err != nil || info.IsDir() != (n.Kind() == tree.KindFolder) {
		log.WithError(err).Warn("skipping unreadable source node")
		return nil
	}
	if n.CompareDigest(dst) {
		log.Debug("in sync")
		return nil
	}

	dstInfo, err := os.Stat(dst)
	exists := err == nil

	switch n.Kind() {
	case tree.KindFolder:
		if exists && !dstInfo.IsDir() {
			p.cleanupTree(dst, plan)
			p.cleanupIfExists(sidecar.FilePath(dst), plan)
			exists = false
		} else if exists && !digestReadable(sidecar.FolderPath(dst)) {
			log.Debug("destination digest unreadable, replacing folder")
			p.cleanupTree(dst, plan)
			exists = false
		}
		if !exists {
			return p.copyFolder(ctx, n, dst, plan)
		}
		return p.reconcileFolder(ctx, n, dst, plan)

	case tree.KindAsset, tree.KindFile:
		if exists && dstInfo.IsDir() {
			p.cleanupTree(dst, plan)
		}
		p.copyLeaf(n, dst, plan)
		return nil

	default:
		log.Warnf("unsupported node kind %s", n.Kind())
		return nil
	}
}

// reconcileFolder handles a destination folder that exists with a different digest: extra
// entries are removed, changed auxiliary files replaced and every child reconciled on its
// own.
func (p *Planner) reconcileFolder(ctx context.Context, n *tree.Node, dst string, plan *Plan) error {
	expected := map[string]bool{}
	for _, name := range n.AuxFiles() {
		expected[name] = true
	}
	for _, c := range n.Children() {
		expected[c.StorageKey()] = true
		if c.Kind().IsLeaf() {
			for _, name := range c.AuxFiles() {
				expected[name] = true
			}
		}
	}

	entries, err := os.ReadDir(dst)
	if err != nil {
		p.log.WithError(err).WithField("path", dst).Warn("unable to list destination folder")
	}
	for _, e := range entries {
		if !expected[e.Name()] {
			p.cleanupTree(filepath.Join(dst, e.Name()), plan)
		}
	}

	for _, name := range n.AuxFiles() {
		src := filepath.Join(n.Path(), name)
		to := filepath.Join(dst, name)
		if !fileExists(src) {
			p.cleanupIfExists(to, plan)
			continue
		}
		if name == sidecar.FolderName || !sameBytes(src, to) {
			plan.copy(src, to)
		}
	}

	for _, c := range n.Children() {
		if err := p.prepare(ctx, c, filepath.Join(dst, c.StorageKey()), plan); err != nil {
			return err
		}
	}
	return nil
}

// copyFolder copies a whole subtree: the folder, its auxiliary files, then its children.
func (p *Planner) copyFolder(ctx context.Context, n *tree.Node, dst string, plan *Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	plan.copy(n.Path(), dst)
	for _, name := range n.AuxFiles() {
		src := filepath.Join(n.Path(), name)
		if fileExists(src) {
			plan.copy(src, filepath.Join(dst, name))
		}
	}
	for _, c := range n.Children() {
		to := filepath.Join(dst, c.StorageKey())
		switch c.Kind() {
		case tree.KindFolder:
			if !dirExists(c.Path()) {
				p.log.WithField("path", c.Path()).Warn("skipping unreadable source node")
				continue
			}
			if err := p.copyFolder(ctx, c, to, plan); err != nil {
				return err
			}
		default:
			if !fileExists(c.Path()) {
				p.log.WithField("path", c.Path()).Warn("skipping unreadable source node")
				continue
			}
			p.copyLeaf(c, to, plan)
		}
	}
	return nil
}

// copyLeaf copies a file together with its sidecar. A destination sidecar without a
// source counterpart is removed so it cannot vouch for the new bytes.
func (p *Planner) copyLeaf(n *tree.Node, dst string, plan *Plan) {
	plan.copy(n.Path(), dst)
	dstDir := filepath.Dir(dst)
	for _, name := range n.AuxFiles() {
		src := filepath.Join(filepath.Dir(n.Path()), name)
		to := filepath.Join(dstDir, name)
		if fileExists(src) {
			plan.copy(src, to)
		} else {
			p.cleanupIfExists(to, plan)
		}
	}
}

// cleanupTree schedules path for removal, children first when it is a directory.
func (p *Planner) cleanupTree(path string, plan *Plan) {
	entries, err := os.ReadDir(path)
	if err == nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			p.cleanupTree(filepath.Join(path, name), plan)
		}
	}
	plan.cleanup(path)
}

func (p *Planner) cleanupIfExists(path string, plan *Plan) {
	if plan.scheduled(path) {
		return
	}
	if _, err := os.Lstat(path); err == nil {
		p.cleanupTree(path, plan)
	}
}

func digestReadable(path string) bool {
	_, err := sidecar.ReadDigest(path)
	return err == nil || errors.Is(err, sidecar.ErrNotFound)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func sameBytes(a, b string) bool {
	ha, _, err := cas.SumFile(a)
	if err != nil {
		return false
	}
	hb, _, err := cas.SumFile(b)
	return err == nil && ha == hb
}
