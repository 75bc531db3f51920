// Package analyze provides the reference Analyzer and Evaluator over
// definition manifests: JSON files declaring exports, their build-time
// expressions, and their symbol references. Language frontends replace this
// package behind the same interfaces; the engine itself never parses source.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"prism/internal/canonical"
	"prism/internal/classify"
	"prism/internal/depgraph"
)

// ManifestSuffix is the file suffix the reference analyzer understands.
const ManifestSuffix = ".def.json"

// manifest is the on-disk shape of a definition manifest.
type manifest struct {
	Exports []manifestExport `json:"exports"`
}

// manifestExport declares one definition. Either Expression is given
// verbatim, or it is synthesized from Tag and Prebuild.
type manifestExport struct {
	Path       []string               `json:"path"`
	Tag        string                 `json:"tag,omitempty"`
	Prebuild   json.RawMessage        `json:"prebuild,omitempty"`
	Expression *string                `json:"expression,omitempty"`
	References map[string]manifestRef `json:"references,omitempty"`
}

// manifestRef points a local symbol at another definition. File is relative
// to the declaring manifest; an empty File means the same file.
type manifestRef struct {
	File   string `json:"file,omitempty"`
	Export string `json:"export"`
}

// expressionPayload is the serialized build-time value stored in
// Definition.Expression and decoded again by the Evaluator.
type expressionPayload struct {
	Tag      string          `json:"tag"`
	Prebuild json.RawMessage `json:"prebuild,omitempty"`
}

// ManifestAnalyzer implements build.Analyzer for definition manifests.
type ManifestAnalyzer struct{}

// NewManifestAnalyzer creates the reference analyzer.
func NewManifestAnalyzer() *ManifestAnalyzer {
	return &ManifestAnalyzer{}
}

// Analyze parses one manifest into definitions. Export paths that collide
// within the file get occurrence suffixes in document order, which keeps
// their IDs stable across re-analysis of an unchanged file.
func (a *ManifestAnalyzer) Analyze(_ context.Context, filePath string, source []byte) ([]depgraph.Definition, error) {
	var m manifest
	if err := json.Unmarshal(source, &m); err != nil {
		return nil, fmt.Errorf("invalid definition manifest %s: %w", filePath, err)
	}

	occurrences := make(map[string]int)
	defs := make([]depgraph.Definition, 0, len(m.Exports))

	for i, export := range m.Exports {
		if len(export.Path) == 0 {
			return nil, fmt.Errorf("manifest %s: export %d has no path", filePath, i)
		}

		// The occurrence key must use the same serialization as the canonical
		// ID, or distinct paths that flatten to the same dotted form (["a","b"]
		// vs ["a.b"]) would collide without a suffix.
		exportKey := strings.Join(export.Path, ".")
		occurrence := occurrences[exportKey]
		occurrences[exportKey]++

		id := canonical.Resolve(filePath, export.Path, occurrence)

		expression, err := export.expression()
		if err != nil {
			return nil, fmt.Errorf("manifest %s, export %s: %w", filePath, exportKey, err)
		}

		refs := make(map[string]canonical.ID, len(export.References))
		for symbol, ref := range export.References {
			refs[symbol] = resolveRef(filePath, ref)
		}

		defs = append(defs, depgraph.Definition{
			ID:         id,
			Expression: expression,
			References: refs,
		})
	}

	return defs, nil
}

// expression returns the export's serialized build-time value. An explicit
// Expression field wins, even when blank: manifests can deliberately declare
// an invalid definition and the classifier rejects it downstream.
func (e manifestExport) expression() (string, error) {
	if e.Expression != nil {
		return *e.Expression, nil
	}
	raw, err := json.Marshal(expressionPayload{Tag: e.Tag, Prebuild: e.Prebuild})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// resolveRef turns a manifest reference into a canonical ID. Relative file
// references resolve against the declaring manifest's directory.
func resolveRef(declaringFile string, ref manifestRef) canonical.ID {
	file := declaringFile
	if ref.File != "" {
		file = path.Join(path.Dir(declaringFile), ref.File)
	}
	return canonical.ID(file + canonical.Separator + ref.Export)
}

// ManifestEvaluator implements build.Evaluator by decoding the serialized
// expression payload the analyzer produced.
type ManifestEvaluator struct{}

// NewManifestEvaluator creates the reference evaluator.
func NewManifestEvaluator() *ManifestEvaluator {
	return &ManifestEvaluator{}
}

// Evaluate decodes every definition's expression into its evaluated form.
// Expressions that fail to decode are recorded as fatal issues rather than
// returned as errors, so the classifier reports all of them at once.
func (e *ManifestEvaluator) Evaluate(_ context.Context, g *depgraph.Graph, issues *classify.IssueRegistry) (map[canonical.ID]classify.Evaluated, error) {
	evaluated := make(map[canonical.ID]classify.Evaluated, g.Len())

	for _, id := range g.IDs() {
		def, _ := g.Lookup(id)
		if def.Expression == "" {
			// Left for the classifier's blank-expression validation.
			evaluated[id] = classify.Evaluated{}
			continue
		}

		var payload expressionPayload
		if err := json.Unmarshal([]byte(def.Expression), &payload); err != nil {
			issues.Report(classify.Issue{
				Severity: classify.SeverityFatal,
				ID:       id,
				Message:  fmt.Sprintf("expression does not decode: %v", err),
			})
			continue
		}

		evaluated[id] = classify.Evaluated{
			Tag:      classify.Tag(payload.Tag),
			Prebuild: payload.Prebuild,
		}
	}

	return evaluated, nil
}
