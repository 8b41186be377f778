// Package syncer pushes unsynced transactions to a remote target and flags
// the rows the target accepted.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/core"
)

// Publisher delivers transactions to a remote target. It returns the ids the
// target accepted; the rest stay unsynced and are retried on the next pass.
type Publisher interface {
	Publish(ctx context.Context, list []core.Transaction) ([]string, error)
}

// Source is the slice of the repository the processor reads and updates.
type Source interface {
	GetUnsynced(ctx context.Context, userID string, limit int) ([]core.Transaction, error)
	MarkSyncedVersions(ctx context.Context, list []core.Transaction) (int64, error)
}

// Reloader is notified after rows changed state, typically the view cache.
type Reloader interface {
	Load(ctx context.Context)
}

type Config struct {
	// Interval between polls (default: 30s)
	Interval time.Duration

	// BatchSize is the max number of rows per pass (default: 50)
	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		Interval:  30 * time.Second,
		BatchSize: 50,
	}
}

// Result summarizes one pass.
type Result struct {
	Pending  int
	Accepted int
	Marked   int64
}

type Processor struct {
	source    Source
	publisher Publisher
	reloader  Reloader
	userID    string
	config    Config

	// passMu keeps SyncOnce calls from overlapping.
	passMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewProcessor wires a processor. reloader may be nil.
func NewProcessor(source Source, publisher Publisher, reloader Reloader, userID string, config Config) *Processor {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	return &Processor{
		source:    source,
		publisher: publisher,
		reloader:  reloader,
		userID:    userID,
		config:    config,
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"interval", p.config.Interval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}
}

func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.pass(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pass(ctx)
		}
	}
}

func (p *Processor) pass(ctx context.Context) {
	if _, err := p.SyncOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Sync pass failed", "error", err)
	}
}

// SyncOnce publishes one batch of unsynced rows and marks what the target
// accepted. Rows edited while the batch was in flight stay unsynced.
func (p *Processor) SyncOnce(ctx context.Context) (Result, error) {
	p.passMu.Lock()
	defer p.passMu.Unlock()

	pending, err := p.source.GetUnsynced(ctx, p.userID, p.config.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("get unsynced: %w", err)
	}
	res := Result{Pending: len(pending)}
	if len(pending) == 0 {
		return res, nil
	}

	accepted, pubErr := p.publisher.Publish(ctx, pending)
	res.Accepted = len(accepted)
	if pubErr != nil {
		slog.WarnContext(ctx, "Publish incomplete",
			"pending", len(pending),
			"accepted", len(accepted),
			"error", pubErr)
	}
	if len(accepted) == 0 {
		return res, pubErr
	}

	byID := make(map[string]core.Transaction, len(pending))
	for _, t := range pending {
		byID[t.ID] = t
	}
	batch := make([]core.Transaction, 0, len(accepted))
	for _, id := range accepted {
		if t, ok := byID[id]; ok {
			batch = append(batch, t)
		}
	}

	marked, markErr := p.source.MarkSyncedVersions(ctx, batch)
	res.Marked = marked
	if markErr != nil {
		slog.ErrorContext(ctx, "Failed to mark transactions as synced", "error", markErr)
	}
	if marked > 0 && p.reloader != nil {
		p.reloader.Load(ctx)
	}

	slog.InfoContext(ctx, "Sync pass completed",
		"pending", res.Pending,
		"accepted", res.Accepted,
		"marked", res.Marked)

	if pubErr != nil {
		return res, pubErr
	}
	if markErr != nil {
		return res, fmt.Errorf("mark synced: %w", markErr)
	}
	return res, nil
}
