// Package project ties a project directory on disk to its content tree, asset store and
// sync machinery.
package project

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/javanhut/fxstore/internal/archive"
	"github.com/javanhut/fxstore/internal/assetstore"
	"github.com/javanhut/fxstore/internal/config"
	"github.com/javanhut/fxstore/internal/ledger"
	"github.com/javanhut/fxstore/internal/metrics"
	"github.com/javanhut/fxstore/internal/sidecar"
	"github.com/javanhut/fxstore/internal/syncexec"
	"github.com/javanhut/fxstore/internal/syncplan"
	"github.com/javanhut/fxstore/internal/tree"
)

// BoltFile is the ledger database used by the bolt backend. As a dotfile it is never part
// of the content tree and never synced.
const BoltFile = ".fxstore.db"

// Options carries the collaborators of a project. All fields are optional.
type Options struct {
	Logger    logrus.FieldLogger
	Metrics   *metrics.Metrics
	Validator assetstore.Validator
}

// Project is an open project directory.
type Project struct {
	dir     string
	cfg     *config.Config
	root    *tree.Node
	store   *assetstore.Store
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// Open loads the project at dir, creating the skeleton when it does not exist yet. Every
// directory and file below dir becomes a node of the content tree, except dotfiles and
// sidecars; the effects folder is handed to the asset store. All digests are brought up
// to date before Open returns.
func Open(dir string, cfg *config.Config, opts Options) (*Project, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	effectsDir := filepath.Join(abs, cfg.Store.EffectsFolder)
	if err := os.MkdirAll(effectsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create project skeleton: %w", err)
	}

	p := &Project{
		dir:     abs,
		cfg:     cfg,
		root:    tree.NewRoot(abs),
		log:     opts.Logger.WithField("component", "project"),
		metrics: opts.Metrics,
	}

	l, ledgerFile, err := openLedger(abs, effectsDir, cfg.Store.LedgerBackend)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to read project directory: %w", err)
	}
	for _, e := range entries {
		if skip(e.Name()) {
			continue
		}
		if e.IsDir() && e.Name() == cfg.Store.EffectsFolder {
			effects := tree.NewFolder(e.Name(), e.Name())
			p.root.AppendChild(effects)
			p.store, err = assetstore.Open(effects, l, assetstore.Options{
				Extension:  cfg.Store.AssetExtension,
				LedgerFile: ledgerFile,
				Validator:  opts.Validator,
				Logger:     opts.Logger,
				Metrics:    opts.Metrics,
			})
			if err != nil {
				l.Close()
				return nil, err
			}
			continue
		}
		if err := p.load(p.root, filepath.Join(abs, e.Name()), e); err != nil {
			l.Close()
			return nil, err
		}
	}

	p.root.ComputeDigest(true)
	p.log.WithFields(logrus.Fields{
		"dir":    abs,
		"assets": p.store.Folder().Len(),
		"digest": p.root.Digest().Short(),
	}).Debug("project opened")
	return p, nil
}

func openLedger(dir, effectsDir, backend string) (*ledger.Ledger, string, error) {
	switch backend {
	case config.BackendBolt:
		st, err := ledger.OpenBoltStore(filepath.Join(dir, BoltFile))
		if err != nil {
			return nil, "", err
		}
		l, err := ledger.Open(st)
		if err != nil {
			st.Close()
			return nil, "", err
		}
		return l, "", nil
	case config.BackendFile, "":
		l, err := ledger.Open(ledger.NewFileStore(filepath.Join(effectsDir, ledger.FileName)))
		return l, ledger.FileName, err
	default:
		return nil, "", fmt.Errorf("unknown ledger backend %q", backend)
	}
}

// skip reports whether a directory entry stays out of the content tree.
func skip(name string) bool {
	return strings.HasPrefix(name, ".") || sidecar.IsSidecar(name)
}

func (p *Project) load(parent *tree.Node, path string, e os.DirEntry) error {
	name := e.Name()
	if !e.IsDir() {
		if sidecar.Reserved(name) {
			p.log.WithField("path", path).Warn("skipping file whose digest record would replace the folder's")
			return nil
		}
		parent.AppendChild(tree.NewFile(name, name))
		return nil
	}
	folder := tree.NewFolder(name, name)
	parent.AppendChild(folder)
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for _, c := range entries {
		if skip(c.Name()) {
			continue
		}
		if err := p.load(folder, filepath.Join(path, c.Name()), c); err != nil {
			return err
		}
	}
	return nil
}

// Dir returns the absolute project directory.
func (p *Project) Dir() string { return p.dir }

// Root returns the root of the content tree.
func (p *Project) Root() *tree.Node { return p.root }

// Store returns the asset store.
func (p *Project) Store() *assetstore.Store { return p.store }

// Config returns the configuration the project was opened with.
func (p *Project) Config() *config.Config { return p.cfg }

// Close releases the ledger.
func (p *Project) Close() error { return p.store.Close() }

// PlanSync computes the operations that make dst a mirror of the project.
func (p *Project) PlanSync(ctx context.Context, dst string) (*syncplan.Plan, error) {
	abs, err := filepath.Abs(dst)
	if err != nil {
		return nil, err
	}
	if abs == p.dir || strings.HasPrefix(abs, p.dir+string(filepath.Separator)) {
		return nil, fmt.Errorf("sync destination %s lies inside the project", abs)
	}
	return syncplan.New(p.log, p.metrics).Prepare(ctx, p.root, abs)
}

// Sync plans and applies the mirroring of the project into dst.
func (p *Project) Sync(ctx context.Context, dst string, dryRun bool, progress syncexec.Progress) (*syncplan.Plan, syncexec.Result, error) {
	plan, err := p.PlanSync(ctx, dst)
	if err != nil {
		return nil, syncexec.Result{}, err
	}
	res, err := syncexec.New(p.log, p.metrics, dryRun).Apply(ctx, plan, progress)
	if err != nil {
		p.metrics.Failure("sync")
	}
	return plan, res, err
}

// Export writes the whole project as a compressed archive.
func (p *Project) Export(ctx context.Context, w io.Writer) (archive.Stats, error) {
	return archive.Write(ctx, p.root, w)
}

// Import restores an exported archive into dir, which should not hold a project yet.
func Import(ctx context.Context, r io.Reader, dir string) (archive.Stats, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return archive.Stats{}, err
	}
	return archive.Extract(ctx, r, dir)
}
