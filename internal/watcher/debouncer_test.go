package watcher

import (
	"sync"
	"testing"
	"time"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches []ChangeBatch
}

func (r *batchRecorder) record(b ChangeBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *batchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *batchRecorder) last() ChangeBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[len(r.batches)-1]
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	rec := &batchRecorder{}
	d := NewBatchDebouncer(20*time.Millisecond, rec.record)

	d.Add([]string{"/a"}, nil)
	d.Add([]string{"/b"}, nil)
	d.Add(nil, []string{"/c"})

	deadline := time.After(2 * time.Second)
	for rec.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("debouncer never emitted")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if rec.count() != 1 {
		t.Fatalf("got %d batches, want 1", rec.count())
	}
	batch := rec.last()
	if len(batch.Modified) != 2 || len(batch.Removed) != 1 {
		t.Errorf("batch = %+v, want 2 modified + 1 removed", batch)
	}
}

func TestDebouncerFlush(t *testing.T) {
	rec := &batchRecorder{}
	d := NewBatchDebouncer(time.Hour, rec.record)

	d.Add([]string{"/a"}, nil)
	d.Flush()

	if rec.count() != 1 {
		t.Fatalf("Flush() emitted %d batches, want 1", rec.count())
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d after flush, want 0", d.Pending())
	}
}

func TestDebouncerFlushWithoutPendingIsSilent(t *testing.T) {
	rec := &batchRecorder{}
	d := NewBatchDebouncer(time.Hour, rec.record)

	d.Flush()
	if rec.count() != 0 {
		t.Errorf("empty Flush() emitted %d batches, want 0", rec.count())
	}
}

func TestDebouncerCancel(t *testing.T) {
	rec := &batchRecorder{}
	d := NewBatchDebouncer(10*time.Millisecond, rec.record)

	d.Add([]string{"/a"}, nil)
	d.Cancel()

	time.Sleep(50 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("Cancel() still emitted %d batches", rec.count())
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d after cancel, want 0", d.Pending())
	}
}
