// Package toml keeps the ledger in a single TOML file for local runs and
// small deployments without a spreadsheet.
package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	PathKey = "ledger.toml.path"

	ledgerFileMode  = 0o600
	ledgerDirMode   = 0o700
	ledgerConfigDir = ".config/intake"
	ledgerFile      = "ledger.toml"
	tempFilePattern = ".ledger-*.toml.tmp"
)

type Store struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var (
	_ ports.LedgerStore  = (*Store)(nil)
	_ ports.LedgerSeeder = (*Store)(nil)
)

func NewStore(cfg *viper.Viper) (*Store, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	path := cfg.GetString(PathKey)
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(homeDir, ledgerConfigDir, ledgerFile)
	}

	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	return &Store{path: path, mu: lockForPath(path)}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) FetchAllRows(ctx context.Context) ([]domain.LedgerRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return nil, domain.LedgerIOError("read ledger file", err)
	}

	rows := make([]domain.LedgerRow, 0, len(file.Rows))
	for _, entry := range file.Rows {
		rows = append(rows, fromSchema(entry))
	}

	return rows, nil
}

func (s *Store) UpdateRow(ctx context.Context, key domain.NaturalKey, update domain.RowUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return domain.LedgerIOError("read ledger file", err)
	}

	idx := indexOf(file.Rows, key)
	if idx < 0 {
		return domain.ErrRowNotFound
	}

	row := fromSchema(file.Rows[idx])
	if row.Revision != update.ExpectedRevision {
		return domain.ErrRevisionConflict
	}

	row = update.Apply(row)
	row.Revision++
	file.Rows[idx] = toSchema(row)

	if err := ctx.Err(); err != nil {
		return err
	}

	return domain.LedgerIOError("write ledger file", s.writeSchema(file))
}

// Seed upserts rows by natural key. Existing rows keep their done count and
// completion stamp; required is replaced and remaining recomputed.
func (s *Store) Seed(ctx context.Context, rows []domain.LedgerRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return domain.LedgerIOError("read ledger file", err)
	}

	for _, row := range rows {
		idx := indexOf(file.Rows, row.Key())
		if idx >= 0 {
			existing := fromSchema(file.Rows[idx])
			existing.Required = row.Required
			existing.Remaining = domain.RemainingFor(existing.Required, existing.Done)
			existing.Revision++
			file.Rows[idx] = toSchema(existing)
			continue
		}

		row.Remaining = domain.RemainingFor(row.Required, row.Done)
		row.Revision = 1
		file.Rows = append(file.Rows, toSchema(row))
	}

	return domain.LedgerIOError("write ledger file", s.writeSchema(file))
}

func (s *Store) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read ledger file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode ledger file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (s *Store) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(s.path), ledgerDirMode); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode ledger file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp ledger file: %w", err)
	}
	if err := tempFile.Chmod(ledgerFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp ledger file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp ledger file: %w", err)
	}

	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	cleanup = false

	return nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve ledger path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

// lockForPath shares one lock between stores opened on the same file.
func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func indexOf(rows []rowSchema, key domain.NaturalKey) int {
	for i, row := range rows {
		if row.Order == key.Order && row.Form == key.Form && row.Size == key.Size {
			return i
		}
	}

	return -1
}

func toSchema(row domain.LedgerRow) rowSchema {
	return rowSchema{
		Order:             row.Order,
		Form:              row.Form,
		Size:              row.Size,
		Required:          row.Required,
		Done:              row.Done,
		Remaining:         row.Remaining,
		LastCompletedBy:   row.LastCompletedBy,
		LastCompletedDate: formatTime(row.LastCompletedDate),
		Revision:          row.Revision,
	}
}

func fromSchema(schema rowSchema) domain.LedgerRow {
	return domain.LedgerRow{
		Order:             schema.Order,
		Form:              schema.Form,
		Size:              schema.Size,
		Required:          schema.Required,
		Done:              schema.Done,
		Remaining:         schema.Remaining,
		LastCompletedBy:   schema.LastCompletedBy,
		LastCompletedDate: parseTime(schema.LastCompletedDate),
		Revision:          schema.Revision,
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.Format(time.RFC3339)
}
