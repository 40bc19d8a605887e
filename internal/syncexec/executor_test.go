package syncexec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanhut/fxstore/internal/logging"
	"github.com/javanhut/fxstore/internal/metrics"
	"github.com/javanhut/fxstore/internal/syncplan"
)

func fixturePlan(t *testing.T) (*syncplan.Plan, string, string) {
	t.Helper()
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "SONGS"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "SONGS", "S1.mid"), []byte("MThd"), 0644))
	require.NoError(t, os.MkdirAll(dst, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale.txt"), []byte("old"), 0644))

	plan := &syncplan.Plan{
		Cleanup: []string{filepath.Join(dst, "stale.txt")},
		CopySrc: []string{filepath.Join(src, "SONGS"), filepath.Join(src, "SONGS", "S1.mid")},
		CopyDst: []string{filepath.Join(dst, "SONGS"), filepath.Join(dst, "SONGS", "S1.mid")},
	}
	return plan, src, dst
}

func TestOps(t *testing.T) {
	plan, _, dst := fixturePlan(t)
	ops := Ops(plan)
	require.Len(t, ops, 3)
	assert.Equal(t, OpRemove, ops[0].Kind)
	assert.Equal(t, OpMkdir, ops[1].Kind)
	assert.Equal(t, OpCopy, ops[2].Kind)
	assert.Equal(t, filepath.Join(dst, "SONGS", "S1.mid"), ops[2].Dst)
}

func TestApply(t *testing.T) {
	plan, _, dst := fixturePlan(t)
	reg := prometheus.NewRegistry()
	x := New(logging.Discard(), metrics.New(reg), false)

	var seen []int
	res, err := x.Apply(context.Background(), plan, func(done, total int, op Op) {
		assert.Equal(t, 3, total)
		seen = append(seen, done)
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Removed: 1, Created: 1, Copied: 1}, res)
	assert.Equal(t, []int{1, 2, 3}, seen)

	data, err := os.ReadFile(filepath.Join(dst, "SONGS", "S1.mid"))
	require.NoError(t, err)
	assert.Equal(t, "MThd", string(data))
	_, err = os.Stat(filepath.Join(dst, "stale.txt"))
	assert.True(t, os.IsNotExist(err))

	samples, err := metrics.Collect(reg)
	require.NoError(t, err)
	assert.NotEmpty(t, samples)
}

func TestDryRunTouchesNothing(t *testing.T) {
	plan, _, dst := fixturePlan(t)
	res, err := New(logging.Discard(), nil, true).Apply(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Copied)

	_, err = os.Stat(filepath.Join(dst, "stale.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "SONGS"))
	assert.True(t, os.IsNotExist(err))
}

func TestApplyStopsOnCancel(t *testing.T) {
	plan, _, dst := fixturePlan(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := New(logging.Discard(), nil, false).Apply(ctx, plan, func(done, total int, op Op) {
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = os.Stat(filepath.Join(dst, "SONGS"))
	assert.True(t, os.IsNotExist(err), "no operation runs after cancellation")
}

func TestApplyRejectsMalformedPlan(t *testing.T) {
	plan := &syncplan.Plan{CopySrc: []string{"a"}}
	_, err := New(nil, nil, false).Apply(context.Background(), plan, nil)
	assert.Error(t, err)
}

func TestApplyReportsCopyFailure(t *testing.T) {
	dir := t.TempDir()
	plan := &syncplan.Plan{
		CopySrc: []string{filepath.Join(dir, "missing")},
		CopyDst: []string{filepath.Join(dir, "out")},
	}
	res, err := New(logging.Discard(), nil, false).Apply(context.Background(), plan, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, res.Copied)
}
