package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/javanhut/fxstore/internal/colors"
	"github.com/javanhut/fxstore/internal/config"
	"github.com/javanhut/fxstore/internal/logging"
	"github.com/javanhut/fxstore/internal/metrics"
	"github.com/javanhut/fxstore/internal/project"
	"github.com/javanhut/fxstore/internal/tree"
)

var rootCmd = &cobra.Command{
	Use:   "fxstore",
	Short: "Shared effect store for drum machine projects",
	Long: `fxstore manages the shared effects of a drum machine project.

Songs reference effects by use count. Identical audio is stored once, unused
audio is deleted, and a project can be mirrored onto an SD card with the
minimal set of file operations.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

var (
	projectDir string
	configPath string
	logLevel   string
	noColor    bool
)

// Per-invocation state, set up by setup.
var (
	cfg      *config.Config
	log      *logrus.Logger
	registry *prometheus.Registry
	recorder *metrics.Metrics
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "Project directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <project>/"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	// Project
	rootCmd.AddCommand(initCmd, configCmd)

	// Assets
	rootCmd.AddCommand(addCmd, removeCmd, dropSongCmd, listCmd, usageCmd)

	// Maintenance
	rootCmd.AddCommand(verifyCmd, gcCmd)

	// Transfer
	rootCmd.AddCommand(planCmd, syncCmd, exportCmd, importCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	if noColor {
		colors.SetEnabled(false)
	}
	if configPath == "" {
		configPath = config.PathFor(projectDir)
	}
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log = logging.New(cfg.Log, os.Stderr)
	tree.SetLogger(log)

	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		recorder = metrics.New(registry)
	}
	return nil
}

// teardown prints the counters collected during the command when metrics are enabled.
func teardown(cmd *cobra.Command, args []string) error {
	if registry == nil {
		return nil
	}
	samples, err := metrics.Collect(registry)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	t := newTable("METRIC", "LABELS", "VALUE")
	for _, s := range samples {
		t.AddRow(s.Name, s.Labels, fmt.Sprintf("%g", s.Value))
	}
	fmt.Fprintln(os.Stderr)
	return t.Print(os.Stderr)
}

// openProject opens the project selected by --project with the loaded configuration.
func openProject() (*project.Project, error) {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, err
	}
	p, err := project.Open(dir, cfg, project.Options{Logger: log, Metrics: recorder})
	if err != nil {
		return nil, fmt.Errorf("failed to open project %s: %w", dir, err)
	}
	return p, nil
}

// withProject runs fn on the open project and closes it afterwards.
func withProject(fn func(p *project.Project) error) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.WithError(err).Warn("failed to close project")
		}
	}()
	return fn(p)
}
