package session

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"prism/internal/artifact"
	"prism/internal/canonical"
	"prism/internal/filetrack"
	"prism/internal/jsoncache"
	"prism/internal/logging"
)

// fakeRunner scripts build results one generation at a time.
type fakeRunner struct {
	artifacts []*artifact.Artifact
	errs      []error
	calls     int

	changesDiff filetrack.Diff
	resets      int
}

func (f *fakeRunner) next() (*artifact.Artifact, error) {
	i := f.calls
	f.calls++
	var a *artifact.Artifact
	var err error
	if i < len(f.artifacts) {
		a = f.artifacts[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return a, err
}

func (f *fakeRunner) Full(context.Context) (*artifact.Artifact, error) { return f.next() }

func (f *fakeRunner) Incremental(context.Context, filetrack.Diff, filetrack.Scan) (*artifact.Artifact, error) {
	return f.next()
}

func (f *fakeRunner) Changes(modified, removed []string) (filetrack.Diff, filetrack.Scan) {
	return f.changesDiff, filetrack.Scan{}
}

func (f *fakeRunner) Reset() { f.resets++ }

func artifactWith(ids ...string) *artifact.Artifact {
	a := artifact.New()
	for _, id := range ids {
		cid := canonical.ID(id)
		a.Operations[cid] = artifact.Element{
			Kind:     artifact.KindOperation,
			ID:       cid,
			Prebuild: json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)),
		}
	}
	return a
}

func collect(s *Session) *[]Event {
	events := &[]Event{}
	s.Subscribe(func(ev Event) { *events = append(*events, ev) })
	return events
}

func TestInitialBuildReportsEverythingAdded(t *testing.T) {
	runner := &fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x", "/a::y")}}
	s := New(runner, nil, logging.Discard())
	events := collect(s)

	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}

	if len(*events) != 1 {
		t.Fatalf("got %d events, want 1", len(*events))
	}
	ev := (*events)[0]
	if ev.Type != EventArtifact || ev.Source != SourceInitial {
		t.Errorf("event = %s/%s, want artifact/initial", ev.Type, ev.Source)
	}
	if ev.ID == "" {
		t.Error("event has no id")
	}
	if len(ev.Diff.Added) != 2 || ev.Diff.HasChanges() == false {
		t.Errorf("Diff = %+v, want two additions", ev.Diff)
	}
	if s.LatestArtifact() == nil {
		t.Error("LatestArtifact() is nil after a successful build")
	}
}

func TestEnsureInitialBuildIsIdempotent(t *testing.T) {
	runner := &fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x")}}
	s := New(runner, nil, logging.Discard())

	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("second EnsureInitialBuild() failed: %v", err)
	}
	if runner.calls != 1 {
		t.Errorf("runner ran %d times, want 1", runner.calls)
	}
}

func TestSeedArtifactSuppressesSpuriousAdds(t *testing.T) {
	seed := artifactWith("/a::x")
	runner := &fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x")}}
	s := New(runner, nil, logging.Discard(), WithSeed(seed))
	events := collect(s)

	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}

	ev := (*events)[0]
	if len(ev.Diff.Added) != 0 {
		t.Errorf("Added = %v, want none against an identical seed", ev.Diff.Added)
	}
	if len(ev.Diff.Unchanged) != 1 {
		t.Errorf("Unchanged = %v, want the seeded element", ev.Diff.Unchanged)
	}
}

func TestFailedBuildKeepsBaseline(t *testing.T) {
	runner := &fakeRunner{
		artifacts: []*artifact.Artifact{artifactWith("/a::x"), nil},
		errs:      []error{nil, fmt.Errorf("evaluation exploded")},
	}
	s := New(runner, nil, logging.Discard())
	events := collect(s)

	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	baseline := s.LatestArtifact()

	if err := s.Rebuild(context.Background()); err == nil {
		t.Fatal("Rebuild() succeeded, want scripted failure")
	}

	if s.LatestArtifact() != baseline {
		t.Error("failed build replaced the baseline")
	}
	last := (*events)[len(*events)-1]
	if last.Type != EventError || last.Err == nil {
		t.Errorf("last event = %s, want an error event", last.Type)
	}
}

func TestApplyFileChangesEmptyDiffIsNoOp(t *testing.T) {
	runner := &fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x")}}
	s := New(runner, nil, logging.Discard())
	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	events := collect(s)

	// changesDiff stays zero: the tracker saw nothing actually change.
	if err := s.ApplyFileChanges(context.Background(), []string{"/a.def.json"}, nil); err != nil {
		t.Fatalf("ApplyFileChanges() failed: %v", err)
	}

	if runner.calls != 1 {
		t.Errorf("runner ran %d times, want 1 (no incremental build)", runner.calls)
	}
	if len(*events) != 0 {
		t.Errorf("got %d events for an empty change set, want 0", len(*events))
	}
}

func TestApplyFileChangesRunsIncremental(t *testing.T) {
	runner := &fakeRunner{
		artifacts:   []*artifact.Artifact{artifactWith("/a::x"), artifactWith("/a::x", "/a::y")},
		changesDiff: filetrack.Diff{Added: []string{"/b.def.json"}},
	}
	s := New(runner, nil, logging.Discard())
	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	events := collect(s)

	if err := s.ApplyFileChanges(context.Background(), nil, nil); err != nil {
		t.Fatalf("ApplyFileChanges() failed: %v", err)
	}

	ev := (*events)[0]
	if ev.Source != SourceIncremental {
		t.Errorf("source = %s, want incremental", ev.Source)
	}
	if len(ev.Diff.Added) != 1 || ev.Diff.Added[0] != "/a::y" {
		t.Errorf("Added = %v, want only /a::y", ev.Diff.Added)
	}
	if len(ev.Diff.Unchanged) != 1 {
		t.Errorf("Unchanged = %v, want the untouched element", ev.Diff.Unchanged)
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	runner := &fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x"), artifactWith("/a::x")}}
	s := New(runner, nil, logging.Discard())

	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	s.Reset()

	if runner.resets != 1 {
		t.Errorf("runner saw %d resets, want 1", runner.resets)
	}
	if s.LatestArtifact() != nil {
		t.Error("LatestArtifact() still set after Reset()")
	}

	// Idle again, so the next ensure runs a fresh full build.
	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() after Reset() failed: %v", err)
	}
	if runner.calls != 2 {
		t.Errorf("runner ran %d times, want 2", runner.calls)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	runner := &fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x"), artifactWith("/a::x")}}
	s := New(runner, nil, logging.Discard())

	calls := 0
	unsubscribe := s.Subscribe(func(Event) { calls++ })

	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	unsubscribe()
	unsubscribe() // second call is a no-op
	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("listener called %d times, want 1", calls)
	}
}

func TestUnsubscribeFromWithinListener(t *testing.T) {
	runner := &fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x"), artifactWith("/a::x")}}
	s := New(runner, nil, logging.Discard())

	calls := 0
	var unsubscribe func()
	unsubscribe = s.Subscribe(func(Event) {
		calls++
		unsubscribe()
	})

	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("listener called %d times after self-unsubscribe, want 1", calls)
	}
}

func TestListenerCanQueryLatestArtifact(t *testing.T) {
	runner := &fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x")}}
	s := New(runner, nil, logging.Discard())

	var seen *artifact.Artifact
	s.Subscribe(func(ev Event) {
		// Events fire after the baseline is committed, so the session is
		// queryable from inside a listener.
		seen = s.LatestArtifact()
	})

	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	if seen == nil {
		t.Fatal("listener saw a nil baseline")
	}
	if seen != s.LatestArtifact() {
		t.Error("listener saw a different baseline than the session reports")
	}
}

func TestListenerCanTriggerFollowupBuild(t *testing.T) {
	runner := &fakeRunner{
		artifacts:   []*artifact.Artifact{artifactWith("/a::x"), artifactWith("/a::x", "/a::y")},
		changesDiff: filetrack.Diff{Added: []string{"/b.def.json"}},
	}
	s := New(runner, nil, logging.Discard())

	applied := false
	s.Subscribe(func(ev Event) {
		if ev.Source != SourceInitial || applied {
			return
		}
		applied = true
		if err := s.ApplyFileChanges(context.Background(), []string{"/b.def.json"}, nil); err != nil {
			t.Errorf("ApplyFileChanges() from listener failed: %v", err)
		}
	})

	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	if runner.calls != 2 {
		t.Errorf("runner ran %d times, want 2 (initial + listener-triggered)", runner.calls)
	}
	if s.LatestArtifact().Len() != 2 {
		t.Errorf("baseline has %d elements, want 2", s.LatestArtifact().Len())
	}
}

func TestPanickingListenerDoesNotStopOthers(t *testing.T) {
	runner := &fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x")}}
	s := New(runner, nil, logging.Discard())

	s.Subscribe(func(Event) { panic("listener bug") })
	reached := false
	s.Subscribe(func(Event) { reached = true })

	if err := s.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	if !reached {
		t.Error("panic in an earlier listener prevented delivery to a later one")
	}
}

func TestSnapshotPersistsAcrossSessions(t *testing.T) {
	db, err := jsoncache.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	defer db.Close()

	first := New(&fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x")}}, db, logging.Discard())
	if err := first.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}

	snap := LoadPersistedSnapshot(db)
	if snap == nil {
		t.Fatal("LoadPersistedSnapshot() returned nil after a successful build")
	}

	// A second session seeded with the snapshot sees an unchanged world.
	second := New(&fakeRunner{artifacts: []*artifact.Artifact{artifactWith("/a::x")}}, db, logging.Discard(), WithSeedSnapshot(snap))
	events := collect(second)
	if err := second.EnsureInitialBuild(context.Background()); err != nil {
		t.Fatalf("EnsureInitialBuild() failed: %v", err)
	}
	if ev := (*events)[0]; len(ev.Diff.Added) != 0 || len(ev.Diff.Unchanged) != 1 {
		t.Errorf("diff against persisted snapshot = %+v, want everything unchanged", ev.Diff)
	}
}
