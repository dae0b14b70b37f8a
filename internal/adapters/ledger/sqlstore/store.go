// Package sqlstore keeps the ledger in a SQL table. SQLite (modernc) and
// Postgres (pgx) are supported through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", d)
	}
}

const schemaDDL = `CREATE TABLE IF NOT EXISTS ledger_rows (
	position          BIGINT NOT NULL,
	order_id          TEXT NOT NULL,
	form              TEXT NOT NULL,
	size              TEXT NOT NULL,
	required          BIGINT NOT NULL,
	done              BIGINT NOT NULL DEFAULT 0,
	remaining         BIGINT NOT NULL,
	last_completed_by TEXT NOT NULL DEFAULT '',
	last_completed_at TEXT NOT NULL DEFAULT '',
	revision          BIGINT NOT NULL DEFAULT 1,
	PRIMARY KEY (order_id, form, size)
)`

type Store struct {
	db      *sql.DB
	dialect Dialect
}

var (
	_ ports.LedgerStore  = (*Store)(nil)
	_ ports.LedgerSeeder = (*Store)(nil)
)

// Open connects to the database and makes sure the ledger table exists.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	driver, err := dialect.driverName()
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, errors.New("sql ledger dsn is empty")
	}

	if dialect == DialectSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	store, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// New wraps an open handle. The caller keeps ownership of db unless Close is
// called on the store.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if _, err := dialect.driverName(); err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("ensure ledger table: %w", err)
	}

	return &Store{db: db, dialect: dialect}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FetchAllRows(ctx context.Context) ([]domain.LedgerRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT order_id, form, size, required, done, remaining,
		last_completed_by, last_completed_at, revision
		FROM ledger_rows ORDER BY position`)
	if err != nil {
		return nil, domain.LedgerIOError("select ledger rows", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.LedgerRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, domain.LedgerIOError("scan ledger row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.LedgerIOError("iterate ledger rows", err)
	}

	return out, nil
}

// UpdateRow writes the new counters only if the stored revision still equals
// update.ExpectedRevision.
func (s *Store) UpdateRow(ctx context.Context, key domain.NaturalKey, update domain.RowUpdate) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`UPDATE ledger_rows
		SET done = ?, remaining = ?, last_completed_by = ?, last_completed_at = ?, revision = revision + 1
		WHERE order_id = ? AND form = ? AND size = ? AND revision = ?`),
		update.Done, update.Remaining, update.CompletedBy, formatTime(update.CompletedAt),
		key.Order, key.Form, key.Size, int64(update.ExpectedRevision),
	)
	if err != nil {
		return domain.LedgerIOError("update ledger row", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return domain.LedgerIOError("update ledger row", err)
	}
	if affected == 1 {
		return nil
	}

	var revision int64
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT revision FROM ledger_rows
		WHERE order_id = ? AND form = ? AND size = ?`), key.Order, key.Form, key.Size).Scan(&revision)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrRowNotFound
	case err != nil:
		return domain.LedgerIOError("select ledger row revision", err)
	default:
		return domain.ErrRevisionConflict
	}
}

// Seed upserts rows by natural key in one transaction. New rows are appended
// after the current last position.
func (s *Store) Seed(ctx context.Context, rows []domain.LedgerRow) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.LedgerIOError("begin seed", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	var position int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM ledger_rows`).Scan(&position); err != nil {
		return domain.LedgerIOError("select last position", err)
	}

	for _, row := range rows {
		var done int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT done FROM ledger_rows
			WHERE order_id = ? AND form = ? AND size = ?`), row.Order, row.Form, row.Size).Scan(&done)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			position++
			_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO ledger_rows
				(position, order_id, form, size, required, done, remaining, last_completed_by, last_completed_at, revision)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`),
				position, row.Order, row.Form, row.Size, row.Required, row.Done,
				domain.RemainingFor(row.Required, row.Done), row.LastCompletedBy, formatTime(row.LastCompletedDate),
			)
			if err != nil {
				return domain.LedgerIOError("insert ledger row", err)
			}
		case err != nil:
			return domain.LedgerIOError("select ledger row", err)
		default:
			_, err = tx.ExecContext(ctx, s.rebind(`UPDATE ledger_rows
				SET required = ?, remaining = ?, revision = revision + 1
				WHERE order_id = ? AND form = ? AND size = ?`),
				row.Required, domain.RemainingFor(row.Required, done), row.Order, row.Form, row.Size,
			)
			if err != nil {
				return domain.LedgerIOError("update ledger row", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.LedgerIOError("commit seed", err)
	}

	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(src scanner) (domain.LedgerRow, error) {
	var (
		row         domain.LedgerRow
		completedAt string
		revision    int64
	)
	if err := src.Scan(&row.Order, &row.Form, &row.Size, &row.Required, &row.Done, &row.Remaining,
		&row.LastCompletedBy, &completedAt, &revision); err != nil {
		return domain.LedgerRow{}, err
	}

	row.LastCompletedDate = parseTime(completedAt)
	row.Revision = uint64(revision)
	return row, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
