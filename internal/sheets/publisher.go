// Package sheets mirrors transactions into a spreadsheet, one row each.
package sheets

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
)

// Publisher appends transactions the sheet does not hold yet. Rows already
// present count as accepted, so a retried batch never duplicates a row.
type Publisher struct {
	sheet Sheet
}

func NewPublisher(sheet Sheet) *Publisher {
	return &Publisher{sheet: sheet}
}

func (p *Publisher) Publish(ctx context.Context, list []core.Transaction) ([]string, error) {
	if len(list) == 0 {
		return nil, nil
	}
	existing, err := p.sheet.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sheet ids: %w", err)
	}
	present := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		present[id] = struct{}{}
	}

	accepted := make([]string, 0, len(list))
	fresh := make([]core.Transaction, 0, len(list))
	for _, t := range list {
		if _, ok := present[t.ID]; ok {
			accepted = append(accepted, t.ID)
			continue
		}
		present[t.ID] = struct{}{}
		fresh = append(fresh, t)
	}
	if len(fresh) == 0 {
		return accepted, nil
	}

	ref, err := p.sheet.AppendTransactions(ctx, fresh)
	if err != nil {
		return accepted, fmt.Errorf("append rows: %w", err)
	}
	for _, t := range fresh {
		accepted = append(accepted, t.ID)
	}

	slog.InfoContext(ctx, "Appended transactions to sheet",
		"count", len(fresh),
		"already_present", len(list)-len(fresh),
		"range", ref)
	return accepted, nil
}
