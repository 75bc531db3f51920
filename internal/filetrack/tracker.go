package filetrack

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"prism/internal/jsoncache"
	"prism/internal/logging"
	"prism/internal/paths"
)

const (
	stateNamespace = "filetracker"
	stateKey       = "state"
	// stateSchemaVersion is bumped whenever the persisted State shape or the
	// fingerprinting logic changes; old snapshots then read as empty.
	stateSchemaVersion = 1
)

// Config configures a Tracker.
type Config struct {
	// Excludes are doublestar glob patterns matched against normalized paths.
	Excludes []string
	// ContentHash switches change detection from (mtime, size) to content
	// hashing. Slower, but immune to touch-without-edit noise.
	ContentHash bool
}

// Tracker scans file metadata and diffs it against the previous persisted
// snapshot.
type Tracker struct {
	store  *jsoncache.Store[State]
	config Config
	logger *logging.Logger
}

// NewTracker creates a tracker persisting its state through db.
func NewTracker(db *jsoncache.DB, config Config, logger *logging.Logger) *Tracker {
	return &Tracker{
		store:  jsoncache.NewStore[State](db, stateNamespace, stateSchemaVersion),
		config: config,
		logger: logger,
	}
}

// LoadState returns the persisted tracker state. Any miss or validation
// failure yields an empty state; loading never fails the caller. The result
// is the caller's own copy: the cache layer shares loaded values, so the
// file map is cloned before it is handed out.
func (t *Tracker) LoadState() State {
	state, ok := t.store.Load(stateKey)
	if !ok || state.Version != StateVersion || state.Files == nil {
		return EmptyState()
	}
	files := make(map[string]Metadata, len(state.Files))
	for path, md := range state.Files {
		files[path] = md
	}
	return State{Version: state.Version, Files: files}
}

// Persist writes the given state back through the cache.
func (t *Tracker) Persist(state State) error {
	return t.store.Store(stateKey, state)
}

// ScanPaths stats each path and records its metadata. Paths that cannot be
// stat'd (deleted, permission error) are skipped silently; excluded paths
// are not recorded. All keys in the result are normalized.
func (t *Tracker) ScanPaths(pathList []string) Scan {
	scan := Scan{Files: make(map[string]Metadata, len(pathList))}

	for _, p := range pathList {
		normalized, err := paths.Normalize(p)
		if err != nil {
			continue
		}
		if t.isExcluded(normalized) {
			continue
		}

		info, err := os.Stat(paths.FromSlash(normalized))
		if err != nil || info.IsDir() {
			if err != nil {
				t.logger.Debug("Skipping unreadable path", map[string]interface{}{
					"path":  normalized,
					"error": err.Error(),
				})
			}
			continue
		}

		md := Metadata{
			MtimeMillis: info.ModTime().UnixMilli(),
			SizeBytes:   info.Size(),
		}
		if t.config.ContentHash {
			if h, err := hashFile(paths.FromSlash(normalized)); err == nil {
				md.Hash = h
			}
		}
		scan.Files[normalized] = md
	}

	return scan
}

// ScanRoots walks the given root directories and scans every regular file
// matched by the include globs (all files when include is empty).
func (t *Tracker) ScanRoots(roots []string, include []string) (Scan, error) {
	var discovered []string

	for _, root := range roots {
		normalizedRoot, err := paths.Normalize(root)
		if err != nil {
			continue
		}
		err = filepath.WalkDir(paths.FromSlash(normalizedRoot), func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // Skip inaccessible entries, continue walking
			}
			if d.IsDir() {
				name := d.Name()
				if name != "." && t.isExcluded(paths.ToSlash(p)) {
					return filepath.SkipDir
				}
				return nil
			}
			slashed := paths.ToSlash(p)
			if len(include) > 0 && !matchAny(include, relTo(normalizedRoot, slashed)) {
				return nil
			}
			discovered = append(discovered, p)
			return nil
		})
		if err != nil {
			return Scan{}, err
		}
	}

	return t.ScanPaths(discovered), nil
}

// DetectChanges compares two scans. A path is added when only the current
// scan has it, removed when only the previous state has it, and updated when
// both have it but the fingerprint differs. The result slices are sorted for
// deterministic output.
func DetectChanges(previous State, current Scan) Diff {
	var diff Diff

	for path, cur := range current.Files {
		prev, exists := previous.Files[path]
		switch {
		case !exists:
			diff.Added = append(diff.Added, path)
		case changed(prev, cur):
			diff.Updated = append(diff.Updated, path)
		}
	}

	for path := range previous.Files {
		if _, exists := current.Files[path]; !exists {
			diff.Removed = append(diff.Removed, path)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Updated)
	sort.Strings(diff.Removed)
	return diff
}

// StateFromScan converts a scan into the persistable snapshot form.
func StateFromScan(scan Scan) State {
	state := EmptyState()
	for path, md := range scan.Files {
		state.Files[path] = md
	}
	return state
}

func changed(prev, cur Metadata) bool {
	// Content hashes win when both sides carry one.
	if prev.Hash != "" && cur.Hash != "" {
		return prev.Hash != cur.Hash
	}
	return prev.MtimeMillis != cur.MtimeMillis || prev.SizeBytes != cur.SizeBytes
}

func (t *Tracker) isExcluded(normalized string) bool {
	return matchAny(t.config.Excludes, normalized)
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
		// Bare directory patterns exclude everything beneath them.
		if ok, _ := doublestar.Match(pattern+"/**", path); ok {
			return true
		}
	}
	return false
}

func relTo(root, path string) string {
	rel, err := filepath.Rel(paths.FromSlash(root), paths.FromSlash(path))
	if err != nil {
		return path
	}
	return paths.ToSlash(rel)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // Best effort cleanup

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
