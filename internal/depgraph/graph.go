// Package depgraph holds the in-memory graph of definitions keyed by
// canonical ID. Cross-file references are resolved lazily by ID lookup, not
// by object reference, so forward and mutually-referencing definitions need
// no special cycle handling.
package depgraph

import (
	"sort"

	"prism/internal/canonical"
)

// Definition is one named, addressable unit extracted from a source file.
// Expression is the serialized build-time value; it is opaque here except
// that a blank expression is invalid and fails classification. References
// maps every free symbol the expression depends on to the canonical ID it
// resolves to.
type Definition struct {
	ID         canonical.ID            `json:"id"`
	Expression string                  `json:"expression"`
	References map[string]canonical.ID `json:"references,omitempty"`
}

// Graph maps canonical IDs to definitions. Individual nodes can be inserted
// and removed in isolation to support incremental re-analysis.
type Graph struct {
	nodes map[canonical.ID]Definition
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[canonical.ID]Definition)}
}

// Insert adds or replaces a definition.
func (g *Graph) Insert(def Definition) {
	g.nodes[def.ID] = def
}

// Remove deletes the definition with the given ID, if present.
func (g *Graph) Remove(id canonical.ID) {
	delete(g.nodes, id)
}

// RemoveFile deletes every definition belonging to the given normalized
// file path. Used when a source file disappears.
func (g *Graph) RemoveFile(filePath string) int {
	removed := 0
	for id := range g.nodes {
		if id.File() == filePath {
			delete(g.nodes, id)
			removed++
		}
	}
	return removed
}

// Lookup returns the definition for id.
func (g *Graph) Lookup(id canonical.ID) (Definition, bool) {
	def, ok := g.nodes[id]
	return def, ok
}

// Len returns the number of definitions in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// IDs returns all canonical IDs in sorted order.
func (g *Graph) IDs() []canonical.ID {
	ids := make([]canonical.ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FileGroup is the set of definitions in one file, ordered by ID.
type FileGroup struct {
	File        string
	Definitions []Definition
}

// ByFile groups definitions by file, sorted lexicographically by file path.
// The ordering is what makes generated artifacts reproducible and diffs
// stable across runs.
func (g *Graph) ByFile() []FileGroup {
	byFile := make(map[string][]Definition)
	for _, def := range g.nodes {
		file := def.ID.File()
		byFile[file] = append(byFile[file], def)
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	groups := make([]FileGroup, 0, len(files))
	for _, file := range files {
		defs := byFile[file]
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		groups = append(groups, FileGroup{File: file, Definitions: defs})
	}
	return groups
}

// Bindings is the result of partitioning a definition's references.
// Unresolved references (targets absent from the graph) are dropped; they
// represent external or runtime-only symbols and are legal.
type Bindings struct {
	SameFile  map[string]canonical.ID
	CrossFile map[string]canonical.ID
}

// PartitionRefs splits a definition's resolved references into same-file and
// cross-file bindings by comparing the referenced ID's file segment with the
// definition's own file.
func (g *Graph) PartitionRefs(def Definition) Bindings {
	b := Bindings{
		SameFile:  make(map[string]canonical.ID),
		CrossFile: make(map[string]canonical.ID),
	}

	file := def.ID.File()
	for symbol, target := range def.References {
		if _, ok := g.nodes[target]; !ok {
			continue
		}
		if target.File() == file {
			b.SameFile[symbol] = target
		} else {
			b.CrossFile[symbol] = target
		}
	}
	return b
}

// ResolvedDependencies returns the sorted, deduplicated IDs a definition
// depends on, restricted to targets present in the graph.
func (g *Graph) ResolvedDependencies(def Definition) []canonical.ID {
	seen := make(map[canonical.ID]struct{})
	for _, target := range def.References {
		if _, ok := g.nodes[target]; ok {
			seen[target] = struct{}{}
		}
	}
	deps := make([]canonical.ID, 0, len(seen))
	for id := range seen {
		deps = append(deps, id)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}
