// Package filetrack detects source file changes between builds by comparing
// cheap file metadata snapshots. It deliberately fingerprints files by
// (mtime, size) instead of hashing content: a touch-without-edit shows up as
// a spurious update and a same-size edit within the same millisecond is
// missed, but scans stay proportional to stat() cost. An optional
// content-hash mode trades that speed for precision.
package filetrack

// Metadata is the cheap fingerprint recorded per file.
type Metadata struct {
	MtimeMillis int64 `json:"mtimeMillis"`
	SizeBytes   int64 `json:"sizeBytes"`
	// Hash is only populated in content-hash mode.
	Hash string `json:"hash,omitempty"`
}

// StateVersion is the current shape of the persisted tracker state.
const StateVersion = 1

// State is the persisted snapshot of all tracked files.
type State struct {
	Version int                 `json:"version"`
	Files   map[string]Metadata `json:"files"`
}

// EmptyState returns a fresh state with no tracked files.
func EmptyState() State {
	return State{Version: StateVersion, Files: map[string]Metadata{}}
}

// Scan is the result of stat'ing a set of paths at one point in time.
type Scan struct {
	Files map[string]Metadata
}

// Diff partitions paths by how they changed between two scans. Unchanged
// paths are not reported.
type Diff struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
}

// IsEmptyDiff reports whether the diff carries no changes at all.
func IsEmptyDiff(d Diff) bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}
