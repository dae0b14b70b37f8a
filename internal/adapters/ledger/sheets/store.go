// Package sheets reads and writes the ledger in a Google Sheets tab. Columns
// are fixed: A order, B form, C size, D required, E remaining, F done,
// G completion date (dd/mm/yyyy), H operator. Row 1 is a header.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const (
	colOrder = iota
	colForm
	colSize
	colRequired
	colRemaining
	colDone
	colDate
	colOperator
)

const (
	dateLayout       = "02/01/2006"
	valueInputOption = "RAW"
)

type Config struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON is a service account key file. When empty, ClientEmail
	// and PrivateKey are used instead.
	CredentialsJSON []byte
	ClientEmail     string
	PrivateKey      string
	// Location is used for the completion date column. Defaults to time.Local.
	Location *time.Location
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		errs = append(errs, errors.New("spreadsheet id is required"))
	}
	if strings.TrimSpace(c.SheetName) == "" {
		errs = append(errs, errors.New("sheet name is required"))
	}
	if len(c.CredentialsJSON) == 0 && (c.ClientEmail == "" || c.PrivateKey == "") {
		errs = append(errs, errors.New("service account credentials or client email and private key are required"))
	}

	return errors.Join(errs...)
}

// valuesAPI is the part of the Sheets values resource the store needs.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, writeRange string, values [][]any) error
}

type Store struct {
	api           valuesAPI
	spreadsheetID string
	sheetName     string
	location      *time.Location
}

var _ ports.LedgerStore = (*Store)(nil)

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sheets config: %w", err)
	}

	credentials := cfg.CredentialsJSON
	if len(credentials) == 0 {
		var err error
		credentials, err = ServiceAccountJSON(cfg.ClientEmail, cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
	}

	service, err := gsheets.NewService(ctx,
		option.WithCredentialsJSON(credentials),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return newStore(serviceValues{values: service.Spreadsheets.Values}, cfg), nil
}

func newStore(api valuesAPI, cfg Config) *Store {
	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	return &Store{
		api:           api,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		location:      location,
	}
}

func (s *Store) FetchAllRows(ctx context.Context) ([]domain.LedgerRow, error) {
	rows, _, err := s.fetch(ctx)
	return rows, err
}

// UpdateRow re-reads the sheet and writes D:H of the matching row when its
// content still hashes to update.ExpectedRevision. Sheets has no conditional
// write, so a change landing between the read and the write is not detected.
func (s *Store) UpdateRow(ctx context.Context, key domain.NaturalKey, update domain.RowUpdate) error {
	rows, sheetRows, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	row, idx, ok := domain.FindRow(rows, key)
	if !ok {
		return domain.ErrRowNotFound
	}
	if row.Revision != update.ExpectedRevision {
		return domain.ErrRevisionConflict
	}

	n := sheetRows[idx]
	writeRange := fmt.Sprintf("%s!D%d:H%d", quoteSheetName(s.sheetName), n, n)
	values := [][]any{{
		row.Required,
		update.Remaining,
		update.Done,
		formatDate(update.CompletedAt, s.location),
		update.CompletedBy,
	}}

	if err := s.api.Update(ctx, s.spreadsheetID, writeRange, values); err != nil {
		return domain.LedgerIOError("update sheet values", err)
	}

	return nil
}

// fetch returns the data rows and, for each, its 1-based sheet row number.
func (s *Store) fetch(ctx context.Context) ([]domain.LedgerRow, []int, error) {
	values, err := s.api.Get(ctx, s.spreadsheetID, quoteSheetName(s.sheetName))
	if err != nil {
		return nil, nil, domain.LedgerIOError("get sheet values", err)
	}

	rows := make([]domain.LedgerRow, 0, len(values))
	sheetRows := make([]int, 0, len(values))
	for i := 1; i < len(values); i++ {
		cells := values[i]
		if cellString(cells, colOrder) == "" {
			continue
		}

		row := domain.LedgerRow{
			Order:             cellString(cells, colOrder),
			Form:              cellString(cells, colForm),
			Size:              cellString(cells, colSize),
			Required:          cellInt(cells, colRequired),
			Remaining:         cellInt(cells, colRemaining),
			Done:              cellInt(cells, colDone),
			LastCompletedDate: parseDate(cellString(cells, colDate), s.location),
			LastCompletedBy:   cellString(cells, colOperator),
		}
		row.Revision = revisionOf(row, cellString(cells, colDate))

		rows = append(rows, row)
		sheetRows = append(sheetRows, i+1)
	}

	return rows, sheetRows, nil
}

func revisionOf(row domain.LedgerRow, rawDate string) uint64 {
	h := fnv.New64a()
	for _, part := range []string{
		row.Order, row.Form, row.Size,
		strconv.Itoa(row.Required), strconv.Itoa(row.Remaining), strconv.Itoa(row.Done),
		rawDate, row.LastCompletedBy,
	} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}

	return h.Sum64()
}

func cellString(cells []any, col int) string {
	if col >= len(cells) || cells[col] == nil {
		return ""
	}

	switch v := cells[col].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// cellInt reads a leading integer the way a spreadsheet user would expect:
// blanks and text count as 0, "12.0" as 12.
func cellInt(cells []any, col int) int {
	if col < len(cells) {
		if v, ok := cells[col].(float64); ok {
			return int(v)
		}
	}

	raw := cellString(cells, col)
	end := 0
	for end < len(raw) && (raw[end] >= '0' && raw[end] <= '9' || end == 0 && raw[end] == '-') {
		end++
	}

	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		return 0
	}

	return n
}

func parseDate(raw string, location *time.Location) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.ParseInLocation(dateLayout, raw, location)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatDate(value time.Time, location *time.Location) string {
	if value.IsZero() {
		return ""
	}

	return value.In(location).Format(dateLayout)
}

func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
