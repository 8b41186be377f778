// Package worker consumes transaction sync messages and forwards them to a
// downstream publisher, usually the spreadsheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/syncer"
)

type SyncWorker struct {
	target syncer.Publisher
}

func NewSyncWorker(target syncer.Publisher) *SyncWorker {
	return &SyncWorker{target: target}
}

// HandleSyncMessage decodes one message and publishes it. An error makes the
// consumer requeue the delivery.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	t, err := msg.Transaction()
	if err != nil {
		// Requeueing would loop forever on a bad payload.
		slog.ErrorContext(ctx, "Dropping invalid sync message", "id", msg.ID, "error", err)
		return nil
	}

	accepted, err := w.target.Publish(ctx, []core.Transaction{t})
	if err != nil {
		return fmt.Errorf("forward transaction %s: %w", t.ID, err)
	}
	if len(accepted) == 0 {
		return fmt.Errorf("forward transaction %s: not accepted by target", t.ID)
	}

	slog.InfoContext(ctx, "Forwarded transaction",
		"id", t.ID,
		"user_id", t.UserID,
		"timestamp", msg.Timestamp)
	return nil
}
