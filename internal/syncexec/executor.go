// Package syncexec applies sync plans to the filesystem.
package syncexec

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/javanhut/fxstore/internal/fsutil"
	"github.com/javanhut/fxstore/internal/metrics"
	"github.com/javanhut/fxstore/internal/syncplan"
)

// OpKind names a plan operation.
type OpKind string

const (
	OpRemove OpKind = "remove"
	OpMkdir  OpKind = "mkdir"
	OpCopy   OpKind = "copy"
)

// Op is one filesystem operation of a plan.
type Op struct {
	Kind OpKind
	Src  string
	Dst  string
}

// Ops flattens a plan in execution order: every cleanup, then every copy.
func Ops(plan *syncplan.Plan) []Op {
	ops := make([]Op, 0, plan.Len())
	for _, p := range plan.Cleanup {
		ops = append(ops, Op{Kind: OpRemove, Dst: p})
	}
	for i, src := range plan.CopySrc {
		kind := OpCopy
		if info, err := os.Stat(src); err == nil && info.IsDir() {
			kind = OpMkdir
		}
		ops = append(ops, Op{Kind: kind, Src: src, Dst: plan.CopyDst[i]})
	}
	return ops
}

// Progress is called after each operation.
type Progress func(done, total int, op Op)

// Result counts the operations performed.
type Result struct {
	Removed int
	Created int
	Copied  int
}

// Executor applies plans.
type Executor struct {
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	dryRun  bool
}

// New creates an executor. In dry-run mode operations are reported but not performed.
func New(log logrus.FieldLogger, m *metrics.Metrics, dryRun bool) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{log: log.WithField("component", "syncexec"), metrics: m, dryRun: dryRun}
}

// Apply removes every cleanup path, then performs every copy. It stops at the first
// failure or when ctx is cancelled between operations.
func (e *Executor) Apply(ctx context.Context, plan *syncplan.Plan, progress Progress) (Result, error) {
	var res Result
	if len(plan.CopySrc) != len(plan.CopyDst) {
		return res, fmt.Errorf("malformed plan: %d copy sources for %d destinations", len(plan.CopySrc), len(plan.CopyDst))
	}

	ops := Ops(plan)
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log := e.log.WithFields(logrus.Fields{"op": op.Kind, "dst": op.Dst})
		if e.dryRun {
			log.Info("would apply")
		} else {
			if err := apply(op); err != nil {
				return res, err
			}
			log.Debug("applied")
			e.metrics.OperationApplied(string(op.Kind))
		}

		switch op.Kind {
		case OpRemove:
			res.Removed++
		case OpMkdir:
			res.Created++
		case OpCopy:
			res.Copied++
		}
		if progress != nil {
			progress(i+1, len(ops), op)
		}
	}
	return res, nil
}

func apply(op Op) error {
	switch op.Kind {
	case OpRemove:
		if err := os.RemoveAll(op.Dst); err != nil {
			return fmt.Errorf("failed to remove %s: %w", op.Dst, err)
		}
	case OpMkdir:
		if err := os.MkdirAll(op.Dst, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", op.Dst, err)
		}
	case OpCopy:
		if err := fsutil.CopyFile(op.Src, op.Dst); err != nil {
			return fmt.Errorf("failed to copy %s: %w", op.Src, err)
		}
	default:
		return fmt.Errorf("unknown operation %q", op.Kind)
	}
	return nil
}
