package domain

import "time"

// VariantSeparator joins form and size in choice tokens ("Круг|10").
const VariantSeparator = "|"

type NaturalKey struct {
	Order string
	Form  string
	Size  string
}

func (k NaturalKey) String() string {
	return k.Order + "/" + k.Form + VariantSeparator + k.Size
}

type Variant struct {
	Form string
	Size string
}

func (v Variant) Token() string {
	return v.Form + VariantSeparator + v.Size
}

type LedgerRow struct {
	Order             string
	Form              string
	Size              string
	Required          int
	Done              int
	Remaining         int
	LastCompletedBy   string
	LastCompletedDate time.Time
	// Revision is assigned by the store and changes whenever the counters change.
	Revision uint64
}

func (r LedgerRow) Key() NaturalKey {
	return NaturalKey{Order: r.Order, Form: r.Form, Size: r.Size}
}

func (r LedgerRow) Variant() Variant {
	return Variant{Form: r.Form, Size: r.Size}
}

// Outstanding is max(Required-Done, 0). The stored Remaining is never trusted.
func (r LedgerRow) Outstanding() int {
	return RemainingFor(r.Required, r.Done)
}

func (r LedgerRow) Open() bool {
	return r.Outstanding() > 0
}

func RemainingFor(required, done int) int {
	if done >= required {
		return 0
	}

	return required - done
}

// RowUpdate is the single write the reconciler issues against a row.
type RowUpdate struct {
	Done             int
	Remaining        int
	CompletedAt      time.Time
	CompletedBy      string
	ExpectedRevision uint64
}

// Apply returns the row as it looks after the update. Revision is left to the store.
func (u RowUpdate) Apply(row LedgerRow) LedgerRow {
	row.Done = u.Done
	row.Remaining = u.Remaining
	row.LastCompletedDate = u.CompletedAt
	row.LastCompletedBy = u.CompletedBy
	return row
}

func FindRow(rows []LedgerRow, key NaturalKey) (LedgerRow, int, bool) {
	for i, row := range rows {
		if row.Key() == key {
			return row, i, true
		}
	}

	return LedgerRow{}, -1, false
}
