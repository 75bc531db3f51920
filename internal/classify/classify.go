// Package classify walks the dependency graph, validates each definition's
// evaluated form, and buckets it into one of the closed set of artifact
// kinds. A pass either produces a complete artifact or fails; partial
// artifacts are never returned.
package classify

import (
	"encoding/json"

	"prism/internal/artifact"
	"prism/internal/canonical"
	"prism/internal/depgraph"
	"prism/internal/errors"
)

// Tag is the kind marker carried by an evaluated definition.
type Tag string

const (
	TagOperation Tag = "operation"
	TagSlice     Tag = "slice"
	TagModel     Tag = "model"
)

// Evaluated is the already-executed form of a definition's expression, as
// produced by the external evaluator.
type Evaluated struct {
	Tag      Tag             `json:"tag"`
	Prebuild json.RawMessage `json:"prebuild"`
}

// ClassifyAndRegister validates the graph, dispatches every evaluated node
// into its kind, and registers it. Nodes are visited in sorted ID order so
// repeated runs over the same input produce byte-identical artifacts.
//
// Failure modes, all MODULE_EVALUATION_FAILED and all aborting the pass:
// a blank expression, a fatal issue recorded during evaluation, a node the
// evaluator produced no value for, and an unrecognized tag.
func ClassifyAndRegister(g *depgraph.Graph, evaluated map[canonical.ID]Evaluated, reg *Registry, issues *IssueRegistry) error {
	// Validation runs over the whole graph before anything is registered.
	for _, id := range g.IDs() {
		def, _ := g.Lookup(id)
		if isBlank(def.Expression) {
			file, export := canonical.MustSplit(id)
			return errors.New(errors.ModuleEvaluationFailed, "definition has an empty expression", nil).
				WithDetail("file", file).
				WithDetail("export", export)
		}
	}

	if issues.HasFatal() {
		fatal := issues.Fatal()
		err := errors.Newf(errors.ModuleEvaluationFailed, "evaluation reported %d fatal issue(s)", len(fatal))
		return err.WithDetail("issues", fatal)
	}

	for _, id := range g.IDs() {
		def, _ := g.Lookup(id)

		ev, ok := evaluated[id]
		if !ok {
			file, export := canonical.MustSplit(id)
			return errors.New(errors.ModuleEvaluationFailed, "definition was not evaluated", nil).
				WithDetail("file", file).
				WithDetail("export", export)
		}

		kind, err := kindForTag(ev.Tag)
		if err != nil {
			file, export := canonical.MustSplit(id)
			return errors.New(errors.ModuleEvaluationFailed, "unrecognized definition tag", err).
				WithDetail("file", file).
				WithDetail("export", export).
				WithDetail("tag", string(ev.Tag))
		}

		el := artifact.Element{
			Kind:         kind,
			ID:           id,
			Prebuild:     ev.Prebuild,
			Dependencies: g.ResolvedDependencies(def),
		}
		if err := reg.Register(el); err != nil {
			return errors.New(errors.InternalError, "failed to register element", err)
		}
	}

	for _, issue := range issues.All() {
		if issue.Severity == SeverityWarning {
			reg.Warn(issue.Message)
		}
	}

	return nil
}

// kindForTag maps an evaluated tag onto its artifact kind. The tag set is
// closed; anything else is a contract violation by the evaluator.
func kindForTag(tag Tag) (artifact.Kind, error) {
	switch tag {
	case TagOperation:
		return artifact.KindOperation, nil
	case TagSlice:
		return artifact.KindSlice, nil
	case TagModel:
		return artifact.KindModel, nil
	default:
		return "", errors.Newf(errors.ModuleEvaluationFailed, "no artifact kind for tag %q", tag)
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
