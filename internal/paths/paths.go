// Package paths normalizes file paths into the canonical form used as keys
// throughout the build engine.
package paths

import (
	"path/filepath"
	"strings"
)

// Normalize converts a path to an absolute, forward-slash form. Relative
// paths are resolved against the current working directory. The result is
// the only form a path may take when used as a key.
func Normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Clean(abs)), nil
}

// NormalizeAll normalizes a list of paths, dropping any that fail.
func NormalizeAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		n, err := Normalize(p)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// ToSlash converts backslashes to forward slashes without resolving the path.
// Useful for paths that are already relative but need normalization.
func ToSlash(path string) string {
	return filepath.ToSlash(path)
}

// FromSlash converts a normalized path back to the OS-specific separator for
// file system access.
func FromSlash(path string) string {
	return filepath.FromSlash(path)
}

// IsWithin reports whether path is inside root. Both paths must already be
// normalized.
func IsWithin(path, root string) bool {
	rel, err := filepath.Rel(FromSlash(root), FromSlash(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(filepath.ToSlash(rel), "../")
}
