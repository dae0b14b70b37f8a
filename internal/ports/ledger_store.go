package ports

import (
	"context"

	"github.com/bnema/order-intake-bot/internal/domain"
)

// LedgerStore is the shared, externally owned ledger. FetchAllRows always
// returns a fresh snapshot in ledger row order. UpdateRow fails with
// domain.ErrRowNotFound, domain.ErrRevisionConflict, or an error matching
// domain.ErrLedgerIO.
type LedgerStore interface {
	FetchAllRows(ctx context.Context) ([]domain.LedgerRow, error)
	UpdateRow(ctx context.Context, key domain.NaturalKey, update domain.RowUpdate) error
}

// LedgerSeeder is implemented by backends that can be provisioned from the CLI.
type LedgerSeeder interface {
	Seed(ctx context.Context, rows []domain.LedgerRow) error
}
