package watcher

import (
	"sync"
	"time"
)

// ChangeBatch is the accumulated set of paths reported by the watcher within
// one debounce window.
type ChangeBatch struct {
	Modified []string
	Removed  []string
}

func (b *ChangeBatch) empty() bool {
	return len(b.Modified) == 0 && len(b.Removed) == 0
}

// BatchDebouncer collects file changes and emits them as one batch after a
// quiet period. A burst of saves from an editor becomes a single rebuild.
type BatchDebouncer struct {
	delay time.Duration
	emit  func(ChangeBatch)

	mu    sync.Mutex
	timer *time.Timer
	batch ChangeBatch
}

// NewBatchDebouncer creates a debouncer emitting through emit.
func NewBatchDebouncer(delay time.Duration, emit func(ChangeBatch)) *BatchDebouncer {
	return &BatchDebouncer{delay: delay, emit: emit}
}

// Add records changed paths and resets the quiet-period timer.
func (b *BatchDebouncer) Add(modified, removed []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.batch.Modified = append(b.batch.Modified, modified...)
	b.batch.Removed = append(b.batch.Removed, removed...)

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.flush)
}

func (b *BatchDebouncer) flush() {
	b.mu.Lock()
	batch := b.batch
	b.batch = ChangeBatch{}
	b.timer = nil
	b.mu.Unlock()

	if !batch.empty() && b.emit != nil {
		b.emit(batch)
	}
}

// Flush immediately emits any pending batch.
func (b *BatchDebouncer) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	b.flush()
}

// Cancel drops any pending batch without emitting.
func (b *BatchDebouncer) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.batch = ChangeBatch{}
}

// Pending returns the number of paths waiting in the current batch.
func (b *BatchDebouncer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batch.Modified) + len(b.batch.Removed)
}
