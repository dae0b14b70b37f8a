package application

import (
	"context"
	"fmt"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
)

// LedgerQuery derives choice sets from a fresh ledger snapshot on every call.
type LedgerQuery struct {
	ledger ports.LedgerStore
}

func NewLedgerQuery(ledger ports.LedgerStore) *LedgerQuery {
	return &LedgerQuery{ledger: ledger}
}

// ListOpenOrders returns distinct orders with outstanding work, in first-seen
// ledger order.
func (q *LedgerQuery) ListOpenOrders(ctx context.Context) ([]string, error) {
	rows, err := q.fetch(ctx)
	if err != nil {
		return nil, err
	}

	orders := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if !row.Open() {
			continue
		}
		if _, ok := seen[row.Order]; ok {
			continue
		}
		seen[row.Order] = struct{}{}
		orders = append(orders, row.Order)
	}

	return orders, nil
}

func (q *LedgerQuery) ListOpenVariants(ctx context.Context, order string) ([]domain.Variant, error) {
	rows, err := q.fetch(ctx)
	if err != nil {
		return nil, err
	}

	variants := make([]domain.Variant, 0)
	for _, row := range rows {
		if row.Order != order || !row.Open() {
			continue
		}
		variants = append(variants, row.Variant())
	}

	return variants, nil
}

// OutstandingQuantity returns 0 when no row matches the key.
func (q *LedgerQuery) OutstandingQuantity(ctx context.Context, key domain.NaturalKey) (int, error) {
	rows, err := q.fetch(ctx)
	if err != nil {
		return 0, err
	}

	row, _, ok := domain.FindRow(rows, key)
	if !ok {
		return 0, nil
	}

	return row.Outstanding(), nil
}

// OrderProgress aggregates the rows of one order for reporting.
type OrderProgress struct {
	Order       string
	Required    int
	Done        int
	Outstanding int
	Rows        []domain.LedgerRow
}

func (p OrderProgress) Complete() bool {
	return p.Outstanding == 0
}

// Progress groups the ledger by order in first-seen order. A non-empty order
// restricts the report to that order.
func (q *LedgerQuery) Progress(ctx context.Context, order string) ([]OrderProgress, error) {
	rows, err := q.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var progress []OrderProgress
	index := map[string]int{}
	for _, row := range rows {
		if order != "" && row.Order != order {
			continue
		}

		i, ok := index[row.Order]
		if !ok {
			i = len(progress)
			index[row.Order] = i
			progress = append(progress, OrderProgress{Order: row.Order})
		}

		p := &progress[i]
		p.Required += row.Required
		p.Done += row.Done
		p.Outstanding += row.Outstanding()
		p.Rows = append(p.Rows, row)
	}

	return progress, nil
}

func (q *LedgerQuery) fetch(ctx context.Context) ([]domain.LedgerRow, error) {
	rows, err := q.ledger.FetchAllRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch ledger rows: %w", err)
	}

	return rows, nil
}
