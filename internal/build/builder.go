// Package build orchestrates one build generation: file tracking, analysis,
// graph maintenance, evaluation, and classification. The expensive step is
// analysis, so it is the one that runs incrementally and is cached per file;
// classification always re-runs over the whole graph.
package build

import (
	"context"
	"fmt"
	"os"

	"prism/internal/artifact"
	"prism/internal/canonical"
	"prism/internal/classify"
	"prism/internal/depgraph"
	"prism/internal/errors"
	"prism/internal/filetrack"
	"prism/internal/jsoncache"
	"prism/internal/logging"
	"prism/internal/paths"
)

const (
	analysisNamespace = "analysis"
	// analysisSchemaVersion invalidates cached per-file definitions whenever
	// the Definition shape or analyzer contract changes.
	analysisSchemaVersion = 1
)

// Analyzer turns one source file into its definitions. Implementations live
// outside this engine (language frontends); the engine only requires that
// the produced IDs are canonical and stable for unchanged input.
type Analyzer interface {
	Analyze(ctx context.Context, filePath string, source []byte) ([]depgraph.Definition, error)
}

// Evaluator produces the executed form of every definition in the graph,
// recording build-time issues into the supplied registry. A non-empty fatal
// issue set aborts classification.
type Evaluator interface {
	Evaluate(ctx context.Context, g *depgraph.Graph, issues *classify.IssueRegistry) (map[canonical.ID]classify.Evaluated, error)
}

// Config configures a Builder.
type Config struct {
	// Roots are the directories scanned for source files.
	Roots []string
	// Include globs select source files beneath the roots (relative match).
	Include []string
	// Excludes are forwarded to the file tracker.
	Excludes []string
	// ContentHash switches the tracker to content-based change detection.
	ContentHash bool
}

// fileDefinitions is the cached analysis result for one file.
type fileDefinitions struct {
	Definitions []depgraph.Definition `json:"definitions"`
}

// Builder runs full and incremental build generations. It retains the
// dependency graph between generations so an incremental build only
// re-analyzes the changed files.
type Builder struct {
	config    Config
	tracker   *filetrack.Tracker
	analyzer  Analyzer
	evaluator Evaluator
	defsStore *jsoncache.Store[fileDefinitions]
	logger    *logging.Logger

	graph *depgraph.Graph
}

// NewBuilder creates a builder persisting through db.
func NewBuilder(db *jsoncache.DB, config Config, analyzer Analyzer, evaluator Evaluator, logger *logging.Logger) *Builder {
	return &Builder{
		config: config,
		tracker: filetrack.NewTracker(db, filetrack.Config{
			Excludes:    config.Excludes,
			ContentHash: config.ContentHash,
		}, logger),
		analyzer:  analyzer,
		evaluator: evaluator,
		defsStore: jsoncache.NewStore[fileDefinitions](db, analysisNamespace, analysisSchemaVersion),
		logger:    logger,
	}
}

// Tracker exposes the underlying file tracker.
func (b *Builder) Tracker() *filetrack.Tracker {
	return b.tracker
}

// Graph returns the currently retained dependency graph.
func (b *Builder) Graph() *depgraph.Graph {
	if b.graph == nil {
		b.graph = depgraph.New()
	}
	return b.graph
}

// Reset discards the retained in-memory graph. On-disk cache entries are
// kept; the next full build reuses them per file.
func (b *Builder) Reset() {
	b.graph = nil
}

// Full scans every source file, rebuilds the graph from scratch, and
// classifies it into a fresh artifact.
func (b *Builder) Full(ctx context.Context) (*artifact.Artifact, error) {
	scan, err := b.tracker.ScanRoots(b.config.Roots, b.config.Include)
	if err != nil {
		return nil, errors.New(errors.InternalError, "source scan failed", err)
	}

	g := depgraph.New()
	for path, md := range scan.Files {
		defs, err := b.analyzeFile(ctx, path, md)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			g.Insert(def)
		}
	}

	a, err := b.classifyGraph(ctx, g)
	if err != nil {
		return nil, err
	}

	b.graph = g
	b.persistState(filetrack.StateFromScan(scan))
	return a, nil
}

// Changes resolves the reported file lists against the persisted tracker
// state. Only the reported paths are re-stat'd; everything else keeps its
// previous fingerprint. The returned scan is the merged current view and
// becomes the next persisted state after a successful incremental build.
func (b *Builder) Changes(modified, removed []string) (filetrack.Diff, filetrack.Scan) {
	previous := b.tracker.LoadState()

	reported := append(append([]string(nil), modified...), removed...)
	fresh := b.tracker.ScanPaths(reported)

	merged := filetrack.Scan{Files: make(map[string]filetrack.Metadata, len(previous.Files))}
	for path, md := range previous.Files {
		merged.Files[path] = md
	}
	for _, p := range paths.NormalizeAll(reported) {
		if md, ok := fresh.Files[p]; ok {
			merged.Files[p] = md
		} else {
			delete(merged.Files, p)
		}
	}

	return filetrack.DetectChanges(previous, merged), merged
}

// Incremental re-analyzes only the files named in diff, merges the results
// into the retained graph, and re-classifies. The caller must pass the scan
// returned by Changes alongside its diff.
func (b *Builder) Incremental(ctx context.Context, diff filetrack.Diff, scan filetrack.Scan) (*artifact.Artifact, error) {
	g := b.Graph()

	for _, path := range diff.Removed {
		g.RemoveFile(path)
	}

	for _, path := range append(append([]string(nil), diff.Added...), diff.Updated...) {
		md, ok := scan.Files[path]
		if !ok {
			continue
		}
		defs, err := b.analyzeFile(ctx, path, md)
		if err != nil {
			return nil, err
		}
		// Replace the file's definitions wholesale so renamed or deleted
		// exports do not linger.
		g.RemoveFile(path)
		for _, def := range defs {
			g.Insert(def)
		}
	}

	a, err := b.classifyGraph(ctx, g)
	if err != nil {
		return nil, err
	}

	b.persistState(filetrack.StateFromScan(scan))
	return a, nil
}

// analyzeFile returns the definitions of one file, consulting the per-file
// analysis cache first. The cache key embeds the file's fingerprint, so a
// changed file naturally misses.
func (b *Builder) analyzeFile(ctx context.Context, path string, md filetrack.Metadata) ([]depgraph.Definition, error) {
	key := analysisKey(path, md)
	if cached, ok := b.defsStore.Load(key); ok {
		return cached.Definitions, nil
	}

	source, err := os.ReadFile(paths.FromSlash(path))
	if err != nil {
		// The file vanished between scan and read; skip it like a failed stat.
		b.logger.Debug("Source unreadable, skipping", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return nil, nil
	}

	defs, err := b.analyzer.Analyze(ctx, path, source)
	if err != nil {
		return nil, errors.New(errors.ModuleEvaluationFailed, "analysis failed", err).
			WithDetail("file", path)
	}

	if storeErr := b.defsStore.Store(key, fileDefinitions{Definitions: defs}); storeErr != nil {
		// A write failure only costs a re-analysis next time.
		b.logger.Warn("Failed to cache analysis result", map[string]interface{}{
			"path":  path,
			"error": storeErr.Error(),
		})
	}
	return defs, nil
}

// classifyGraph evaluates the graph and runs one classification pass.
func (b *Builder) classifyGraph(ctx context.Context, g *depgraph.Graph) (*artifact.Artifact, error) {
	issues := classify.NewIssueRegistry()
	evaluated, err := b.evaluator.Evaluate(ctx, g, issues)
	if err != nil {
		return nil, errors.New(errors.ModuleEvaluationFailed, "evaluation failed", err)
	}

	reg := classify.NewRegistry()
	if err := classify.ClassifyAndRegister(g, evaluated, reg, issues); err != nil {
		return nil, err
	}
	return reg.Snapshot(), nil
}

// persistState writes the tracker snapshot. A failure here is logged, not
// fatal: the only cost is a broader change set on the next build.
func (b *Builder) persistState(state filetrack.State) {
	if err := b.tracker.Persist(state); err != nil {
		b.logger.Warn("Failed to persist file tracker state", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func analysisKey(path string, md filetrack.Metadata) string {
	if md.Hash != "" {
		return fmt.Sprintf("%s|h:%s", path, md.Hash)
	}
	return fmt.Sprintf("%s|%d|%d", path, md.MtimeMillis, md.SizeBytes)
}
