package artifact

import (
	"encoding/json"
	"reflect"
	"testing"

	"prism/internal/canonical"
)

func el(kind Kind, id canonical.ID, prebuild string) Element {
	return Element{Kind: kind, ID: id, Prebuild: json.RawMessage(prebuild)}
}

func buildArtifact(elements ...Element) *Artifact {
	a := New()
	for _, e := range elements {
		a.Collection(e.Kind)[e.ID] = e
	}
	return a
}

func TestHashElementStable(t *testing.T) {
	a := el(KindOperation, "/src/a.def.json::send", `{"args":{"x":1},"body":"..."}`)
	if HashElement(a) != HashElement(a) {
		t.Error("HashElement is not deterministic")
	}
}

func TestHashElementIgnoresJSONFormatting(t *testing.T) {
	compact := el(KindOperation, "/src/a.def.json::send", `{"b":2,"a":1}`)
	pretty := el(KindOperation, "/src/a.def.json::send", "{\n  \"a\": 1,\n  \"b\": 2\n}")
	if HashElement(compact) != HashElement(pretty) {
		t.Error("semantically equal payloads hashed differently")
	}
}

func TestHashElementSensitivity(t *testing.T) {
	base := el(KindOperation, "/src/a.def.json::send", `{"a":1}`)

	tests := []struct {
		name  string
		other Element
	}{
		{"payload change", el(KindOperation, "/src/a.def.json::send", `{"a":2}`)},
		{"kind change", el(KindSlice, "/src/a.def.json::send", `{"a":1}`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if HashElement(base) == HashElement(tc.other) {
				t.Error("hash did not change")
			}
		})
	}
}

func TestHashElementIgnoresDependencies(t *testing.T) {
	a := el(KindOperation, "/src/a.def.json::send", `{"a":1}`)
	b := a
	b.Dependencies = []canonical.ID{"/src/b.def.json::helper"}
	if HashElement(a) != HashElement(b) {
		t.Error("dependency list leaked into the content hash")
	}
}

func TestComputeDiffInitialGeneration(t *testing.T) {
	a := buildArtifact(
		el(KindOperation, "/src/a.def.json::send", `{"n":1}`),
		el(KindModel, "/src/a.def.json::user", `{"n":2}`),
	)

	diff, snap := ComputeDiff(nil, a)

	wantAdded := []canonical.ID{"/src/a.def.json::send", "/src/a.def.json::user"}
	if !reflect.DeepEqual(diff.Added, wantAdded) {
		t.Errorf("Added = %v, want %v", diff.Added, wantAdded)
	}
	if len(diff.Updated) != 0 || len(diff.Removed) != 0 || len(diff.Unchanged) != 0 {
		t.Errorf("initial diff has non-added categories: %+v", diff)
	}
	if len(snap) != 2 {
		t.Errorf("snapshot has %d entries, want 2", len(snap))
	}
}

func TestComputeDiffCategorizes(t *testing.T) {
	gen1 := buildArtifact(
		el(KindOperation, "/a::A", `{"v":1}`),
		el(KindOperation, "/a::B", `{"v":1}`),
	)
	_, snap1 := ComputeDiff(nil, gen1)

	gen2 := buildArtifact(
		el(KindOperation, "/a::A", `{"v":1}`), // unchanged
		el(KindOperation, "/a::B", `{"v":2}`), // updated
		el(KindOperation, "/a::C", `{"v":1}`), // added
	)
	diff, snap2 := ComputeDiff(snap1, gen2)

	want := Diff{
		Added:     []canonical.ID{"/a::C"},
		Updated:   []canonical.ID{"/a::B"},
		Unchanged: []canonical.ID{"/a::A"},
	}
	if !reflect.DeepEqual(diff, want) {
		t.Errorf("diff = %+v, want %+v", diff, want)
	}

	// Removing an element shows up against the carried-forward snapshot.
	gen3 := buildArtifact(el(KindOperation, "/a::A", `{"v":1}`))
	diff3, _ := ComputeDiff(snap2, gen3)
	wantRemoved := []canonical.ID{"/a::B", "/a::C"}
	if !reflect.DeepEqual(diff3.Removed, wantRemoved) {
		t.Errorf("Removed = %v, want %v", diff3.Removed, wantRemoved)
	}
}

func TestComputeDiffIdempotentOnSameInput(t *testing.T) {
	a := buildArtifact(el(KindSlice, "/a::S", `{"v":1}`))
	_, snap := ComputeDiff(nil, a)

	diff, _ := ComputeDiff(snap, a)
	if diff.HasChanges() {
		t.Errorf("re-diffing an identical artifact reported changes: %+v", diff)
	}
	if want := []canonical.ID{"/a::S"}; !reflect.DeepEqual(diff.Unchanged, want) {
		t.Errorf("Unchanged = %v, want %v", diff.Unchanged, want)
	}
}

func TestComputeDiffPartitionProperty(t *testing.T) {
	gen1 := buildArtifact(
		el(KindOperation, "/a::A", `{"v":1}`),
		el(KindModel, "/a::M", `{"v":1}`),
	)
	_, snap := ComputeDiff(nil, gen1)

	gen2 := buildArtifact(
		el(KindOperation, "/a::A", `{"v":2}`),
		el(KindSlice, "/a::S", `{"v":1}`),
	)
	diff, _ := ComputeDiff(snap, gen2)

	seen := map[canonical.ID]int{}
	for _, ids := range [][]canonical.ID{diff.Added, diff.Updated, diff.Removed, diff.Unchanged} {
		for _, id := range ids {
			seen[id]++
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("id %q appears in %d categories", id, n)
		}
	}
	// Union must be exactly both generations' IDs.
	for _, id := range []canonical.ID{"/a::A", "/a::M", "/a::S"} {
		if seen[id] != 1 {
			t.Errorf("id %q missing from the partition", id)
		}
	}
}

func TestMarshalJSONStable(t *testing.T) {
	a := buildArtifact(
		el(KindOperation, "/a::B", `{"v":1}`),
		el(KindOperation, "/a::A", `{"v":1}`),
	)
	first, err := a.MarshalJSONStable()
	if err != nil {
		t.Fatalf("MarshalJSONStable() failed: %v", err)
	}
	second, err := a.MarshalJSONStable()
	if err != nil {
		t.Fatalf("MarshalJSONStable() failed: %v", err)
	}
	if string(first) != string(second) {
		t.Error("stable marshal produced different bytes for the same artifact")
	}
}

func TestElementsSorted(t *testing.T) {
	a := buildArtifact(
		el(KindModel, "/b::m", `{}`),
		el(KindOperation, "/a::op", `{}`),
		el(KindSlice, "/a::sl", `{}`),
	)
	els := a.Elements()
	for i := 1; i < len(els); i++ {
		if els[i-1].ID >= els[i].ID {
			t.Fatalf("Elements() not sorted: %q before %q", els[i-1].ID, els[i].ID)
		}
	}
}
