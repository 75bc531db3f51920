// Package artifact defines the compiled output of one classification pass
// and the structural diff between two artifact generations.
package artifact

import (
	"encoding/json"
	"sort"

	"prism/internal/canonical"
)

// Kind is the closed set of artifact element kinds.
type Kind string

const (
	KindOperation Kind = "operation"
	KindSlice     Kind = "slice"
	KindModel     Kind = "model"
)

// Kinds lists all element kinds in canonical order.
var Kinds = []Kind{KindOperation, KindSlice, KindModel}

// Element is one classified definition in the artifact.
type Element struct {
	Kind         Kind            `json:"kind"`
	ID           canonical.ID    `json:"id"`
	Prebuild     json.RawMessage `json:"prebuild"`
	Dependencies []canonical.ID  `json:"dependencies,omitempty"`
}

// Report summarizes one classification pass.
type Report struct {
	Operations int      `json:"operations"`
	Slices     int      `json:"slices"`
	Models     int      `json:"models"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Artifact is the compiled output bundle. It is created fresh on every
// classification pass and never mutated in place; a new artifact replaces
// the previous one atomically.
type Artifact struct {
	Operations map[canonical.ID]Element `json:"operations"`
	Slices     map[canonical.ID]Element `json:"slices"`
	Models     map[canonical.ID]Element `json:"models"`
	Report     Report                   `json:"report"`
}

// New returns an empty artifact with all collections allocated.
func New() *Artifact {
	return &Artifact{
		Operations: map[canonical.ID]Element{},
		Slices:     map[canonical.ID]Element{},
		Models:     map[canonical.ID]Element{},
	}
}

// Collection returns the keyed collection for kind.
func (a *Artifact) Collection(kind Kind) map[canonical.ID]Element {
	switch kind {
	case KindOperation:
		return a.Operations
	case KindSlice:
		return a.Slices
	case KindModel:
		return a.Models
	}
	return nil
}

// Elements returns every element across all collections, sorted by ID.
func (a *Artifact) Elements() []Element {
	var out []Element
	for _, kind := range Kinds {
		for _, el := range a.Collection(kind) {
			out = append(out, el)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the total element count.
func (a *Artifact) Len() int {
	return len(a.Operations) + len(a.Slices) + len(a.Models)
}

// MarshalJSONStable encodes the artifact deterministically. encoding/json
// already sorts map keys, so the same logical artifact always produces
// byte-identical output.
func (a *Artifact) MarshalJSONStable() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}
