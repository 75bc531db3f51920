// Package session wraps the builder in an event-driven incremental loop for
// dev servers and editors. One session owns one baseline artifact; every
// build diffs against that baseline and emits the result to subscribers.
package session

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"prism/internal/artifact"
	"prism/internal/filetrack"
	"prism/internal/jsoncache"
	"prism/internal/logging"
)

const (
	snapshotNamespace = "artifact"
	snapshotKey       = "hashes"
	// snapshotSchemaVersion invalidates persisted hash snapshots when the
	// element hashing scheme changes.
	snapshotSchemaVersion = 1
)

// Source tags which operation produced an event.
type Source string

const (
	SourceInitial     Source = "initial"
	SourceManual      Source = "manual"
	SourceIncremental Source = "incremental"
)

// EventType discriminates session events.
type EventType string

const (
	EventArtifact EventType = "artifact"
	EventError    EventType = "error"
)

// Event is one emission on the session stream. Artifact events carry the new
// baseline and its diff against the previous one; error events carry the
// build error while the previous baseline stays intact.
type Event struct {
	ID       string
	Type     EventType
	Source   Source
	Artifact *artifact.Artifact
	Diff     artifact.Diff
	Err      error
}

// Listener receives session events synchronously, in subscription order.
// Listeners run after the session lock is released, so they may call back
// into the session (LatestArtifact, Rebuild, unsubscribe).
type Listener func(Event)

// Runner is the build backend the session drives.
type Runner interface {
	Full(ctx context.Context) (*artifact.Artifact, error)
	Incremental(ctx context.Context, diff filetrack.Diff, scan filetrack.Scan) (*artifact.Artifact, error)
	Changes(modified, removed []string) (filetrack.Diff, filetrack.Scan)
	Reset()
}

type state int

const (
	stateIdle state = iota
	stateReady
)

// Session is the incremental build session. Mutating operations
// (EnsureInitialBuild, Rebuild, ApplyFileChanges, Reset) are serialized by a
// single in-flight guard; overlapping calls block rather than race on the
// baseline.
type Session struct {
	runner    Runner
	logger    *logging.Logger
	snapStore *jsoncache.Store[artifact.HashSnapshot]
	seed      *artifact.Artifact
	seedSnap  artifact.HashSnapshot

	mu       sync.Mutex // guards everything below and serializes builds
	state    state
	baseline *artifact.Artifact
	hashes   artifact.HashSnapshot

	listenersMu  sync.Mutex
	listeners    map[int]Listener
	nextListener int
}

// Option customizes a session.
type Option func(*Session)

// WithSeed supplies a baseline artifact for the first build to diff against
// instead of the empty one.
func WithSeed(seed *artifact.Artifact) Option {
	return func(s *Session) { s.seed = seed }
}

// WithSeedSnapshot supplies a baseline hash snapshot for the first build to
// diff against, typically the one persisted by a previous process (see
// LoadPersistedSnapshot). A seed artifact takes precedence.
func WithSeedSnapshot(snap artifact.HashSnapshot) Option {
	return func(s *Session) { s.seedSnap = snap }
}

// New creates an idle session. db may be nil, in which case hash snapshots
// are not persisted between processes.
func New(runner Runner, db *jsoncache.DB, logger *logging.Logger, opts ...Option) *Session {
	s := &Session{
		runner:    runner,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
	if db != nil {
		s.snapStore = jsoncache.NewStore[artifact.HashSnapshot](db, snapshotNamespace, snapshotSchemaVersion)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener for every subsequent event. The returned
// function removes it; it is safe to call multiple times and from within a
// listener callback.
func (s *Session) Subscribe(listener Listener) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// LatestArtifact returns the current baseline, or nil if nothing has been
// built yet.
func (s *Session) LatestArtifact() *artifact.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline
}

// EnsureInitialBuild runs a full build if the session is idle. The result is
// diffed against an empty baseline, or against the seed artifact when one
// was supplied. Already-ready sessions return immediately.
func (s *Session) EnsureInitialBuild(ctx context.Context) error {
	s.mu.Lock()
	if s.state == stateReady {
		s.mu.Unlock()
		return nil
	}

	previous := artifact.HashSnapshot{}
	switch {
	case s.seed != nil:
		previous = artifact.Snapshot(s.seed)
	case s.seedSnap != nil:
		previous = s.seedSnap
	}
	event, err := s.buildLocked(ctx, SourceInitial, previous, func(ctx context.Context) (*artifact.Artifact, error) {
		return s.runner.Full(ctx)
	})
	s.mu.Unlock()

	s.emit(event)
	return err
}

// Rebuild re-runs a full build unconditionally and diffs against the current
// baseline. Called before EnsureInitialBuild it diffs against the empty
// baseline, so everything reports as added.
func (s *Session) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	event, err := s.buildLocked(ctx, SourceManual, s.currentHashesLocked(), func(ctx context.Context) (*artifact.Artifact, error) {
		return s.runner.Full(ctx)
	})
	s.mu.Unlock()

	s.emit(event)
	return err
}

// ApplyFileChanges forwards the reported file lists to the tracker and, if
// anything actually changed, runs an incremental build restricted to the
// change set. An empty change set is a no-op: no build, no event.
func (s *Session) ApplyFileChanges(ctx context.Context, modified, removed []string) error {
	s.mu.Lock()
	diff, scan := s.runner.Changes(modified, removed)
	if filetrack.IsEmptyDiff(diff) {
		s.mu.Unlock()
		return nil
	}

	event, err := s.buildLocked(ctx, SourceIncremental, s.currentHashesLocked(), func(ctx context.Context) (*artifact.Artifact, error) {
		return s.runner.Incremental(ctx, diff, scan)
	})
	s.mu.Unlock()

	s.emit(event)
	return err
}

// Reset discards the in-memory baseline and retained build state, returning
// the session to idle. On-disk cache entries survive; only the in-memory
// pointer is forgotten, so the next build starts from a cold diff.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = stateIdle
	s.baseline = nil
	s.hashes = nil
	s.runner.Reset()
}

// LoadPersistedSnapshot loads the hash snapshot of the last successful build
// in any prior process, or nil when absent.
func LoadPersistedSnapshot(db *jsoncache.DB) artifact.HashSnapshot {
	store := jsoncache.NewStore[artifact.HashSnapshot](db, snapshotNamespace, snapshotSchemaVersion)
	snap, ok := store.Load(snapshotKey)
	if !ok {
		return nil
	}
	return snap
}

// currentHashesLocked returns the baseline hash snapshot, or an empty one
// when nothing was built yet.
func (s *Session) currentHashesLocked() artifact.HashSnapshot {
	if s.hashes == nil {
		return artifact.HashSnapshot{}
	}
	return s.hashes
}

// buildLocked runs one build generation under the session lock and returns
// the event to emit once the lock is released. On failure the stored baseline
// and hashes are left untouched; the previous artifact stays queryable.
// Listeners must never be invoked while the lock is held, or a listener
// calling back into the session would deadlock.
func (s *Session) buildLocked(ctx context.Context, source Source, previous artifact.HashSnapshot, run func(context.Context) (*artifact.Artifact, error)) (Event, error) {
	a, err := run(ctx)
	if err != nil {
		s.logger.Error("Build failed", map[string]interface{}{
			"source": string(source),
			"error":  err.Error(),
		})
		return Event{
			ID:     uuid.New().String(),
			Type:   EventError,
			Source: source,
			Err:    err,
		}, err
	}

	diff, next := artifact.ComputeDiff(previous, a)

	s.baseline = a
	s.hashes = next
	s.state = stateReady

	if s.snapStore != nil {
		if err := s.snapStore.Store(snapshotKey, next); err != nil {
			s.logger.Warn("Failed to persist artifact hash snapshot", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	s.logger.Info("Build complete", map[string]interface{}{
		"source":    string(source),
		"elements":  a.Len(),
		"added":     len(diff.Added),
		"updated":   len(diff.Updated),
		"removed":   len(diff.Removed),
		"unchanged": len(diff.Unchanged),
	})

	return Event{
		ID:       uuid.New().String(),
		Type:     EventArtifact,
		Source:   source,
		Artifact: a,
		Diff:     diff,
	}, nil
}

// emit invokes every listener synchronously in subscription order. The loop
// iterates over a snapshot of the listener set, so unsubscribing from within
// a callback is safe. A panicking listener does not stop the rest.
func (s *Session) emit(event Event) {
	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	// Map iteration order is random; subscription ids restore it.
	sort.Ints(ids)
	snapshot := make([]Listener, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, listener := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Session listener panicked", map[string]interface{}{
						"panic": r,
					})
				}
			}()
			listener(event)
		}()
	}
}
