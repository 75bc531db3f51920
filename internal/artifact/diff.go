package artifact

import (
	"sort"

	"prism/internal/canonical"
)

// HashSnapshot maps every element ID of one artifact generation to its
// content hash. It is the baseline ComputeDiff compares against.
type HashSnapshot map[canonical.ID]string

// Diff partitions element IDs by how they changed between two artifact
// generations. The four categories together cover exactly the union of both
// generations' IDs, with no overlap.
type Diff struct {
	Added     []canonical.ID `json:"added"`
	Updated   []canonical.ID `json:"updated"`
	Removed   []canonical.ID `json:"removed"`
	Unchanged []canonical.ID `json:"unchanged"`
}

// HasChanges reports whether anything was added, updated, or removed.
func (d Diff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Updated) > 0 || len(d.Removed) > 0
}

// Snapshot computes the hash snapshot of an artifact.
func Snapshot(a *Artifact) HashSnapshot {
	snap := make(HashSnapshot, a.Len())
	for _, el := range a.Elements() {
		snap[el.ID] = HashElement(el)
	}
	return snap
}

// ComputeDiff compares the new artifact against the previous generation's
// hash snapshot and returns both the categorized diff and the new snapshot.
// Callers must carry the returned snapshot forward to the next call; reusing
// a stale one mis-categorizes every element.
func ComputeDiff(previous HashSnapshot, a *Artifact) (Diff, HashSnapshot) {
	next := make(HashSnapshot, a.Len())
	var diff Diff

	for _, el := range a.Elements() {
		hash := HashElement(el)
		next[el.ID] = hash

		prevHash, existed := previous[el.ID]
		switch {
		case !existed:
			diff.Added = append(diff.Added, el.ID)
		case prevHash != hash:
			diff.Updated = append(diff.Updated, el.ID)
		default:
			diff.Unchanged = append(diff.Unchanged, el.ID)
		}
	}

	for id := range previous {
		if _, stillPresent := next[id]; !stillPresent {
			diff.Removed = append(diff.Removed, id)
		}
	}

	sortIDs(diff.Added)
	sortIDs(diff.Updated)
	sortIDs(diff.Removed)
	sortIDs(diff.Unchanged)
	return diff, next
}

func sortIDs(ids []canonical.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
