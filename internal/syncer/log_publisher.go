package syncer

import (
	"context"
	"log/slog"

	"fintrack/internal/core"
)

// LogPublisher is used when no remote target is configured. It logs the
// batch and accepts nothing, so rows stay unsynced until a real target runs.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, list []core.Transaction) ([]string, error) {
	slog.DebugContext(ctx, "No sync target configured, leaving transactions unsynced", "count", len(list))
	return nil, nil
}
