package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for the spreadsheet adapter.
type (
	// RowWriter appends one row per transaction and returns the written range.
	RowWriter interface {
		AppendTransactions(ctx context.Context, list []core.Transaction) (rowRef string, err error)
	}

	// IDLister returns the transaction ids already present in the sheet.
	IDLister interface {
		ListIDs(ctx context.Context) ([]string, error)
	}

	Sheet interface {
		RowWriter
		IDLister
	}
)
