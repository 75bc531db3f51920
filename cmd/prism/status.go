package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"prism/internal/version"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracker and cache state for the project",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	eng, err := newEngine(projectDirFlag)
	if err != nil {
		return err
	}
	defer eng.close()

	state := eng.builder.Tracker().LoadState()
	fmt.Fprintf(os.Stdout, "prism %s\n", version.Info())
	fmt.Fprintf(os.Stdout, "cache: %s\n", eng.db.Path())
	fmt.Fprintf(os.Stdout, "tracked files: %d\n", len(state.Files))

	stats, err := eng.db.Stats()
	if err != nil {
		return err
	}
	namespaces := make([]string, 0, len(stats))
	for ns := range stats {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		s := stats[ns]
		fmt.Fprintf(os.Stdout, "namespace %-12s %5d entries, %d bytes\n", ns, s.Entries, s.SizeBytes)
	}
	return nil
}
