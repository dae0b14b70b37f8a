package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("input not among offered choices")
	ErrEmptyChoiceSet   = errors.New("no choices available")
	ErrRowNotFound      = errors.New("ledger row not found")
	ErrLedgerIO         = errors.New("ledger io failure")
	ErrSessionTimeout   = errors.New("session timed out")
	ErrRevisionConflict = errors.New("ledger row changed concurrently")
)

// LedgerIOError wraps a transport or backend failure so callers can match it
// with errors.Is(err, ErrLedgerIO) while keeping the cause.
func LedgerIOError(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", op, ErrLedgerIO, err)
}
