// Package memory is a process-local ledger used by tests and demos.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
)

type Store struct {
	mu   sync.RWMutex
	rows []domain.LedgerRow
}

var (
	_ ports.LedgerStore  = (*Store)(nil)
	_ ports.LedgerSeeder = (*Store)(nil)
)

func NewStore(rows ...domain.LedgerRow) *Store {
	s := &Store{}
	for _, row := range rows {
		s.upsert(row)
	}

	return s
}

func (s *Store) FetchAllRows(ctx context.Context) ([]domain.LedgerRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.rows), nil
}

func (s *Store) UpdateRow(ctx context.Context, key domain.NaturalKey, update domain.RowUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, idx, ok := domain.FindRow(s.rows, key)
	if !ok {
		return domain.ErrRowNotFound
	}
	if row.Revision != update.ExpectedRevision {
		return domain.ErrRevisionConflict
	}

	row = update.Apply(row)
	row.Revision++
	s.rows[idx] = row

	return nil
}

// Seed upserts rows by natural key, keeping existing counters.
func (s *Store) Seed(ctx context.Context, rows []domain.LedgerRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		s.upsert(row)
	}

	return nil
}

func (s *Store) upsert(row domain.LedgerRow) {
	if existing, idx, ok := domain.FindRow(s.rows, row.Key()); ok {
		existing.Required = row.Required
		existing.Remaining = domain.RemainingFor(existing.Required, existing.Done)
		existing.Revision++
		s.rows[idx] = existing
		return
	}

	row.Remaining = domain.RemainingFor(row.Required, row.Done)
	row.Revision = 1
	s.rows = append(s.rows, row)
}
