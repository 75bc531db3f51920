package main

import (
	"github.com/spf13/cobra"

	"prism/internal/analyze"
	"prism/internal/build"
	"prism/internal/config"
	"prism/internal/jsoncache"
	"prism/internal/logging"
	"prism/internal/version"
)

var (
	// projectDirFlag is the CLI --dir flag value
	projectDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "Prism - incremental definition build engine",
	Long: `Prism extracts named definitions from a tree of source files, resolves their
dependencies, classifies them into typed artifact records, and maintains an
incremental build cache so downstream consumers (dev servers, editors,
bundlers) only see what actually changed.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("Prism version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&projectDirFlag, "dir", ".", "Project directory containing prism.toml")
}

// engine bundles everything a command needs for one project.
type engine struct {
	cfg     *config.Config
	logger  *logging.Logger
	db      *jsoncache.DB
	builder *build.Builder
}

// newEngine loads the project configuration and wires the build pipeline
// with the reference manifest analyzer.
func newEngine(dir string) (*engine, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.LogLevel(cfg.Logging.Level),
	})

	db, err := jsoncache.Open(cfg.CacheDir, logger)
	if err != nil {
		return nil, err
	}

	builder := build.NewBuilder(db, build.Config{
		Roots:       cfg.Sources.Roots,
		Include:     cfg.Sources.Include,
		Excludes:    cfg.Sources.Excludes,
		ContentHash: cfg.Tracker.ContentHash,
	}, analyze.NewManifestAnalyzer(), analyze.NewManifestEvaluator(), logger)

	return &engine{cfg: cfg, logger: logger, db: db, builder: builder}, nil
}

func (e *engine) close() {
	if err := e.db.Close(); err != nil {
		e.logger.Warn("Failed to close cache database", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
