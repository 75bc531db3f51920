// Package watcher polls source roots for metadata changes and feeds the
// debounced change batches to a handler. Polling instead of OS file
// notifications keeps behavior identical across platforms and network file
// systems.
package watcher

import (
	"context"
	"sync"
	"time"

	"prism/internal/filetrack"
	"prism/internal/logging"
)

// Config contains watcher configuration.
type Config struct {
	Enabled      bool
	Debounce     time.Duration
	PollInterval time.Duration
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Debounce:     250 * time.Millisecond,
		PollInterval: time.Second,
	}
}

// ScanFunc produces the current metadata scan of the watched sources.
type ScanFunc func() (filetrack.Scan, error)

// Handler receives one debounced change batch.
type Handler func(batch ChangeBatch)

// Watcher polls a scan function and reports paths whose fingerprint changed
// since the previous poll.
type Watcher struct {
	config    Config
	logger    *logging.Logger
	scan      ScanFunc
	debouncer *BatchDebouncer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	lastScan filetrack.Scan
}

// New creates a watcher. handler is invoked after each debounce window with
// the batch of changed paths.
func New(config Config, scan ScanFunc, handler Handler, logger *logging.Logger) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		config: config,
		logger: logger,
		scan:   scan,
		ctx:    ctx,
		cancel: cancel,
	}
	w.debouncer = NewBatchDebouncer(config.Debounce, func(batch ChangeBatch) {
		handler(batch)
	})
	return w
}

// Start begins polling. The initial scan establishes the baseline; only
// subsequent changes are reported.
func (w *Watcher) Start() error {
	if !w.config.Enabled {
		w.logger.Info("File watcher is disabled", nil)
		return nil
	}

	initial, err := w.scan()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.lastScan = initial
	w.mu.Unlock()

	w.logger.Info("Starting file watcher", map[string]interface{}{
		"pollInterval": w.config.PollInterval.String(),
		"debounce":     w.config.Debounce.String(),
		"files":        len(initial.Files),
	})

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop stops polling and drops any pending batch.
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
	w.debouncer.Cancel()
	w.logger.Info("File watcher stopped", nil)
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	interval := w.config.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) poll() {
	current, err := w.scan()
	if err != nil {
		w.logger.Warn("Watcher scan failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	w.mu.Lock()
	previous := w.lastScan
	w.lastScan = current
	w.mu.Unlock()

	diff := filetrack.DetectChanges(filetrack.StateFromScan(previous), current)
	if filetrack.IsEmptyDiff(diff) {
		return
	}

	modified := append(append([]string(nil), diff.Added...), diff.Updated...)
	w.logger.Debug("Watcher detected changes", map[string]interface{}{
		"modified": len(modified),
		"removed":  len(diff.Removed),
	})
	w.debouncer.Add(modified, diff.Removed)
}
