package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prism/internal/export"
	"prism/internal/session"
)

var (
	buildOutputFlag string
	buildFormatFlag string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run one full build and print the artifact",
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutputFlag, "output", "o", "", "Write the artifact to a file instead of stdout")
	buildCmd.Flags().StringVar(&buildFormatFlag, "format", "json", "Artifact output format: json or yaml")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	format, err := export.ParseFormat(buildFormatFlag)
	if err != nil {
		return err
	}

	eng, err := newEngine(projectDirFlag)
	if err != nil {
		return err
	}
	defer eng.close()

	// Seeding from the persisted snapshot makes repeated `prism build`
	// invocations report incremental change sets instead of all-added.
	sess := session.New(eng.builder, eng.db, eng.logger,
		session.WithSeedSnapshot(session.LoadPersistedSnapshot(eng.db)))

	var lastEvent session.Event
	unsubscribe := sess.Subscribe(func(ev session.Event) { lastEvent = ev })
	defer unsubscribe()

	if err := sess.EnsureInitialBuild(cmd.Context()); err != nil {
		return err
	}

	a := sess.LatestArtifact()
	diff := lastEvent.Diff
	fmt.Fprintf(os.Stderr, "build complete: %d operations, %d slices, %d models (+%d ~%d -%d =%d)\n",
		a.Report.Operations, a.Report.Slices, a.Report.Models,
		len(diff.Added), len(diff.Updated), len(diff.Removed), len(diff.Unchanged))
	for _, warning := range a.Report.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}

	if buildOutputFlag == "" {
		return export.Write(os.Stdout, a, format)
	}
	return export.WriteFile(buildOutputFlag, a, format)
}
