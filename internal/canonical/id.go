// Package canonical assigns stable, collision-resistant identifiers to
// definitions. An ID has the shape
//
//	<normalizedFilePath>::<export.path[$occurrence]>
//
// and is the join key between the dependency graph, the cache, and the
// compiled artifact. Resolution is a pure function of its inputs so the same
// logical definition maps to the same ID across builds.
package canonical

import (
	"fmt"
	"strconv"
	"strings"
)

// Separator splits the file segment from the export path. Export paths may
// not contain it.
const Separator = "::"

// ID is the canonical identifier of a single definition.
type ID string

// Resolve builds the ID for a definition. filePath must already be
// normalized (see the paths package). exportPath is the dot-delimited name
// chain of the definition, innermost last. occurrence disambiguates
// definitions that would otherwise collide on the same export path within
// one file: 0 means first (no suffix), n > 0 appends "$n". Producers must
// assign occurrences in document order so IDs stay stable across re-analysis
// of an unchanged file.
func Resolve(filePath string, exportPath []string, occurrence int) ID {
	export := strings.Join(exportPath, ".")
	if occurrence > 0 {
		export += "$" + strconv.Itoa(occurrence)
	}
	return ID(filePath + Separator + export)
}

// Split parses an ID back into its file and export segments, splitting on
// the first occurrence of the separator.
func Split(id ID) (filePath, exportPath string, err error) {
	s := string(id)
	i := strings.Index(s, Separator)
	if i < 0 {
		return "", "", fmt.Errorf("malformed canonical id %q: missing separator", s)
	}
	filePath = s[:i]
	exportPath = s[i+len(Separator):]
	if filePath == "" || exportPath == "" {
		return "", "", fmt.Errorf("malformed canonical id %q: empty segment", s)
	}
	return filePath, exportPath, nil
}

// MustSplit is Split for IDs that are known to be well formed. A malformed
// ID here is a contract violation, so it panics.
func MustSplit(id ID) (filePath, exportPath string) {
	filePath, exportPath, err := Split(id)
	if err != nil {
		panic(err)
	}
	return filePath, exportPath
}

// File returns the file segment of the ID, or "" if the ID is malformed.
func (id ID) File() string {
	f, _, err := Split(id)
	if err != nil {
		return ""
	}
	return f
}

// Export returns the export-path segment of the ID, or "" if malformed.
func (id ID) Export() string {
	_, e, err := Split(id)
	if err != nil {
		return ""
	}
	return e
}

// ExportSegments returns the dot-separated name segments of the export path
// with any occurrence suffix stripped from the last segment.
func (id ID) ExportSegments() []string {
	export := id.Export()
	if export == "" {
		return nil
	}
	segs := strings.Split(export, ".")
	last := segs[len(segs)-1]
	if j := strings.LastIndexByte(last, '$'); j > 0 {
		if _, err := strconv.Atoi(last[j+1:]); err == nil {
			segs[len(segs)-1] = last[:j]
		}
	}
	return segs
}

// SameFile reports whether two IDs address definitions in the same file.
func SameFile(a, b ID) bool {
	return a.File() == b.File()
}
