package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	statusadapter "github.com/bnema/order-intake-bot/internal/adapters/render/status"
	"github.com/bnema/order-intake-bot/internal/application"
	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func newLedgerCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and provision the order ledger",
	}

	cmd.AddCommand(
		newLedgerStatusCmd(app),
		newLedgerSeedCmd(app),
	)

	return cmd
}

func newLedgerStatusCmd(app *app) *cobra.Command {
	var order string
	var asJSON bool
	var openOnly bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-order progress from the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, closeLedger, err := app.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLedgerQuietly(app, closeLedger)

			query := application.NewLedgerQuery(ledger)
			fetch := func(ctx context.Context) ([]application.OrderProgress, error) {
				return query.Progress(ctx, order)
			}

			var progress []application.OrderProgress
			if asJSON {
				progress, err = fetch(cmd.Context())
			} else {
				progress, err = fetchWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Fetching ledger...", fetch)
			}
			if err != nil {
				return err
			}

			if order != "" && len(progress) == 0 {
				return fmt.Errorf("order %q: %w", order, domain.ErrRowNotFound)
			}

			return writeLedgerOutput(cmd, app, progress, openOnly, asJSON)
		},
	}

	cmd.Flags().StringVar(&order, "order", "", "Only show this order")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&openOnly, "open", false, "Hide rows with nothing outstanding")

	return cmd
}

func writeLedgerOutput(cmd *cobra.Command, app *app, progress []application.OrderProgress, openOnly, asJSON bool) error {
	if asJSON {
		if openOnly {
			progress = openProgress(progress)
		}
		if progress == nil {
			progress = []application.OrderProgress{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(progress)
	}

	rendered, err := app.renderLedger(progress, statusadapter.RenderOptions{OpenOnly: openOnly})
	if err != nil {
		return fmt.Errorf("render ledger: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func openProgress(progress []application.OrderProgress) []application.OrderProgress {
	open := make([]application.OrderProgress, 0, len(progress))
	for _, order := range progress {
		if order.Complete() {
			continue
		}
		rows := make([]domain.LedgerRow, 0, len(order.Rows))
		for _, row := range order.Rows {
			if row.Open() {
				rows = append(rows, row)
			}
		}
		order.Rows = rows
		open = append(open, order)
	}

	return open
}

// seedFile is the YAML layout accepted by "ledger seed".
type seedFile struct {
	Rows []seedRow `yaml:"rows"`
}

type seedRow struct {
	Order    string `yaml:"order"`
	Form     string `yaml:"form"`
	Size     string `yaml:"size"`
	Required int    `yaml:"required"`
	Done     int    `yaml:"done"`
}

func newLedgerSeedCmd(app *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert ledger rows from a YAML file",
		Long:  "seed reads rows (order, form, size, required, done) from YAML and upserts them by order/form/size. Existing rows keep their done count.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := loadSeedRows(file)
			if err != nil {
				return err
			}

			ledger, closeLedger, err := app.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLedgerQuietly(app, closeLedger)

			seeder, ok := ledger.(ports.LedgerSeeder)
			if !ok {
				return fmt.Errorf("ledger backend %q cannot be seeded", app.cfg.Ledger.Backend)
			}

			if err := seeder.Seed(cmd.Context(), rows); err != nil {
				return fmt.Errorf("seed ledger: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rows into %s ledger\n", len(rows), app.cfg.Ledger.Backend)
			return err
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML file with ledger rows")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func loadSeedRows(path string) ([]domain.LedgerRow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if len(file.Rows) == 0 {
		return nil, fmt.Errorf("%w: seed file %s has no rows", domain.ErrValidation, path)
	}

	var errs []error
	seen := map[domain.NaturalKey]int{}
	rows := make([]domain.LedgerRow, 0, len(file.Rows))
	for i, r := range file.Rows {
		row := domain.LedgerRow{
			Order:    strings.TrimSpace(r.Order),
			Form:     strings.TrimSpace(r.Form),
			Size:     strings.TrimSpace(r.Size),
			Required: r.Required,
			Done:     r.Done,
		}

		switch {
		case row.Order == "" || row.Form == "" || row.Size == "":
			errs = append(errs, fmt.Errorf("row %d: order, form and size are required", i+1))
			continue
		case row.Required < 0 || row.Done < 0:
			errs = append(errs, fmt.Errorf("row %d: required and done must not be negative", i+1))
			continue
		}

		if first, dup := seen[row.Key()]; dup {
			errs = append(errs, fmt.Errorf("row %d: duplicate of row %d (%s)", i+1, first, row.Key()))
			continue
		}
		seen[row.Key()] = i + 1

		row.Remaining = domain.RemainingFor(row.Required, row.Done)
		rows = append(rows, row)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	return rows, nil
}

func closeLedgerQuietly(app *app, closeLedger func() error) {
	if err := closeLedger(); err != nil {
		app.logger.Warn("close ledger", zap.Error(err))
	}
}
