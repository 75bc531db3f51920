package classify

import (
	"fmt"

	"prism/internal/artifact"
	"prism/internal/canonical"
)

// Registry accumulates classified elements into per-kind collections.
// Registration is append-only within one classification pass; a new pass
// starts from a fresh Registry.
type Registry struct {
	elements map[artifact.Kind]map[canonical.ID]artifact.Element
	warnings []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	elements := make(map[artifact.Kind]map[canonical.ID]artifact.Element, len(artifact.Kinds))
	for _, kind := range artifact.Kinds {
		elements[kind] = make(map[canonical.ID]artifact.Element)
	}
	return &Registry{elements: elements}
}

// Register adds a classified element to its kind collection.
func (r *Registry) Register(el artifact.Element) error {
	collection, ok := r.elements[el.Kind]
	if !ok {
		return fmt.Errorf("unknown artifact kind %q", el.Kind)
	}
	collection[el.ID] = el
	return nil
}

// Warn records a classification warning surfaced in the artifact report.
func (r *Registry) Warn(message string) {
	r.warnings = append(r.warnings, message)
}

// Snapshot produces an immutable artifact from the current registry
// contents. The registry can keep accumulating afterwards; the snapshot does
// not alias its maps.
func (r *Registry) Snapshot() *artifact.Artifact {
	a := artifact.New()
	for kind, collection := range r.elements {
		dst := a.Collection(kind)
		for id, el := range collection {
			dst[id] = el
		}
	}
	a.Report = artifact.Report{
		Operations: len(r.elements[artifact.KindOperation]),
		Slices:     len(r.elements[artifact.KindSlice]),
		Models:     len(r.elements[artifact.KindModel]),
		Warnings:   append([]string(nil), r.warnings...),
	}
	return a
}
