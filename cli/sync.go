package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/javanhut/fxstore/internal/archive"
	"github.com/javanhut/fxstore/internal/colors"
	"github.com/javanhut/fxstore/internal/project"
	"github.com/javanhut/fxstore/internal/syncexec"
)

var planCmd = &cobra.Command{
	Use:   "plan <destination>",
	Short: "Show the operations a sync would perform",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

var syncCmd = &cobra.Command{
	Use:   "sync <destination>",
	Short: "Mirror the project into a destination directory",
	Long: `Mirrors the project into <destination>, typically the root of an SD card.

Folders whose digest matches the destination are skipped entirely, so only
changed files are copied. Entries at the destination that do not belong to
the project are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the project to a compressed archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file> <directory>",
	Short: "Restore an exported project into a directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runImport,
}

var (
	syncDryRun bool
	syncQuiet  bool
)

func init() {
	syncCmd.Flags().BoolVarP(&syncDryRun, "dry-run", "n", false, "Report operations without performing them")
	syncCmd.Flags().BoolVarP(&syncQuiet, "quiet", "q", false, "Do not print each operation")
}

// signalContext is cancelled on interrupt so long operations stop between steps.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	return withProject(func(p *project.Project) error {
		plan, err := p.PlanSync(ctx, args[0])
		if err != nil {
			return err
		}
		if plan.Empty() {
			fmt.Println(colors.Success("Destination is up to date"))
			return nil
		}
		t := newTable("OP", "PATH")
		for _, op := range syncexec.Ops(plan) {
			t.AddRow(colors.Op(string(op.Kind)), op.Dst)
		}
		if err := t.Print(os.Stdout); err != nil {
			return err
		}
		fmt.Printf("\n%d to remove, %d to copy\n", len(plan.Cleanup), len(plan.CopySrc))
		return nil
	})
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	dryRun := syncDryRun || cfg.Sync.DryRun
	return withProject(func(p *project.Project) error {
		progress := func(done, total int, op syncexec.Op) {
			if !syncQuiet {
				fmt.Printf("[%d/%d] %s %s\n", done, total, colors.Op(string(op.Kind)), op.Dst)
			}
		}
		plan, res, err := p.Sync(ctx, args[0], dryRun, progress)
		if err != nil {
			return err
		}
		if plan.Empty() {
			fmt.Println(colors.Success("Destination is up to date"))
			return nil
		}
		verb := "Synced"
		if dryRun {
			verb = "Would sync"
		}
		fmt.Printf("%s: %d removed, %d directories created, %d files copied\n",
			verb, res.Removed, res.Created, res.Copied)
		return nil
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	out := args[0]
	if filepath.Ext(out) == "" {
		out += archive.Ext
	}
	return withProject(func(p *project.Project) error {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		st, err := p.Export(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return fmt.Errorf("export failed: %w", err)
		}
		info, err := os.Stat(out)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d files (%s) to %s, %s compressed\n",
			st.Files, humanize.Bytes(uint64(st.Bytes)), out, humanize.Bytes(uint64(info.Size())))
		return nil
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := project.Import(ctx, f, args[1])
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Printf("Restored %d files (%s) into %s\n", st.Files, humanize.Bytes(uint64(st.Bytes)), args[1])
	return nil
}
