package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
	"go.uber.org/zap"
)

const defaultReconcileAttempts = 3

type ReconcileRequest struct {
	Key      domain.NaturalKey
	Quantity int
	Operator string
}

type ReconcileResult struct {
	Required  int
	Done      int
	Remaining int
}

// Reconciler applies a completed quantity to a ledger row. Writes for the same
// natural key are serialized in-process and guarded by the row revision, so two
// operators completing the same row cannot overwrite each other's increment.
type Reconciler struct {
	ledger      ports.LedgerStore
	clock       ports.Clock
	logger      *zap.Logger
	locks       *keyedMutex[domain.NaturalKey]
	maxAttempts int
}

func NewReconciler(ledger ports.LedgerStore, clock ports.Clock, logger *zap.Logger) *Reconciler {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		ledger:      ledger,
		clock:       clock,
		logger:      logger.With(zap.String("component", "reconciler")),
		locks:       newKeyedMutex[domain.NaturalKey](),
		maxAttempts: defaultReconcileAttempts,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	if req.Quantity < 1 {
		return ReconcileResult{}, fmt.Errorf("%w: quantity %d must be positive", domain.ErrValidation, req.Quantity)
	}
	if strings.TrimSpace(req.Operator) == "" {
		return ReconcileResult{}, fmt.Errorf("%w: operator name is required", domain.ErrValidation)
	}

	unlock := r.locks.Lock(req.Key)
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, err := r.apply(ctx, req)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrRevisionConflict) {
			return ReconcileResult{}, err
		}

		lastErr = err
		r.logger.Warn("ledger row changed during reconcile, re-reading",
			zap.Stringer("key", req.Key),
			zap.Int("attempt", attempt),
		)
	}

	return ReconcileResult{}, fmt.Errorf("reconcile %s after %d attempts: %w", req.Key, r.maxAttempts, lastErr)
}

func (r *Reconciler) apply(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	rows, err := r.ledger.FetchAllRows(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("fetch ledger rows: %w", err)
	}

	row, _, ok := domain.FindRow(rows, req.Key)
	if !ok {
		return ReconcileResult{}, fmt.Errorf("reconcile %s: %w", req.Key, domain.ErrRowNotFound)
	}

	newDone := row.Done + req.Quantity
	update := domain.RowUpdate{
		Done:             newDone,
		Remaining:        domain.RemainingFor(row.Required, newDone),
		CompletedAt:      r.clock.Now(),
		CompletedBy:      req.Operator,
		ExpectedRevision: row.Revision,
	}

	if err := r.ledger.UpdateRow(ctx, req.Key, update); err != nil {
		return ReconcileResult{}, fmt.Errorf("update ledger row %s: %w", req.Key, err)
	}

	r.logger.Info("quantity reconciled",
		zap.Stringer("key", req.Key),
		zap.String("operator", req.Operator),
		zap.Int("quantity", req.Quantity),
		zap.Int("done", update.Done),
		zap.Int("remaining", update.Remaining),
	)

	return ReconcileResult{Required: row.Required, Done: update.Done, Remaining: update.Remaining}, nil
}
