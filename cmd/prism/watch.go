package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"prism/internal/filetrack"
	"prism/internal/session"
	"prism/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build once, then rebuild incrementally as source files change",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	eng, err := newEngine(projectDirFlag)
	if err != nil {
		return err
	}
	defer eng.close()

	sess := session.New(eng.builder, eng.db, eng.logger)

	unsubscribe := sess.Subscribe(func(ev session.Event) {
		switch ev.Type {
		case session.EventArtifact:
			fmt.Fprintf(os.Stderr, "[%s] +%d ~%d -%d =%d\n", ev.Source,
				len(ev.Diff.Added), len(ev.Diff.Updated), len(ev.Diff.Removed), len(ev.Diff.Unchanged))
		case session.EventError:
			fmt.Fprintf(os.Stderr, "[%s] build failed: %v\n", ev.Source, ev.Err)
		}
	})
	defer unsubscribe()

	if err := sess.EnsureInitialBuild(cmd.Context()); err != nil {
		// The session keeps running; the watcher retries on the next change.
		eng.logger.Warn("Initial build failed, watching for fixes", map[string]interface{}{
			"error": err.Error(),
		})
	}

	w := watcher.New(watcher.Config{
		Enabled:      eng.cfg.Watcher.Enabled,
		Debounce:     time.Duration(eng.cfg.Watcher.DebounceMs) * time.Millisecond,
		PollInterval: time.Duration(eng.cfg.Watcher.PollIntervalMs) * time.Millisecond,
	}, func() (filetrack.Scan, error) {
		return eng.builder.Tracker().ScanRoots(eng.cfg.Sources.Roots, eng.cfg.Sources.Include)
	}, func(batch watcher.ChangeBatch) {
		if err := sess.ApplyFileChanges(cmd.Context(), batch.Modified, batch.Removed); err != nil {
			eng.logger.Debug("Incremental build failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}, eng.logger)

	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-cmd.Context().Done():
	}
	return nil
}
