package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	ledgermemory "github.com/bnema/order-intake-bot/internal/adapters/ledger/memory"
	"github.com/bnema/order-intake-bot/internal/adapters/ledger/sheets"
	"github.com/bnema/order-intake-bot/internal/adapters/ledger/sqlstore"
	ledgertoml "github.com/bnema/order-intake-bot/internal/adapters/ledger/toml"
	"github.com/bnema/order-intake-bot/internal/adapters/metrics"
	statusadapter "github.com/bnema/order-intake-bot/internal/adapters/render/status"
	"github.com/bnema/order-intake-bot/internal/adapters/secrets/resolver"
	"github.com/bnema/order-intake-bot/internal/application"
	"github.com/bnema/order-intake-bot/internal/config"
	"github.com/bnema/order-intake-bot/internal/logging"
	"github.com/bnema/order-intake-bot/internal/ports"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type app struct {
	cfg          *config.Config
	settings     *viper.Viper
	logger       *zap.Logger
	secrets      ports.SecretStore
	metrics      *metrics.Recorder
	clock        ports.Clock
	renderLedger func([]application.OrderProgress, statusadapter.RenderOptions) (string, error)
}

func wireApp(configFile string, logOutput io.Writer) (*app, error) {
	cfg, settings, err := config.Load(config.LoadOptions{File: configFile})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: logOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	return &app{
		cfg:          cfg,
		settings:     settings,
		logger:       logger,
		secrets:      resolver.NewDefault(filepath.Join(homeDir, ".config", "intake", "secrets")),
		metrics:      metrics.NewRecorder(),
		clock:        ports.SystemClock{},
		renderLedger: statusadapter.Render,
	}, nil
}

// openLedger builds the configured ledger backend. The returned close func is
// never nil.
func (a *app) openLedger(ctx context.Context) (ports.LedgerStore, func() error, error) {
	noop := func() error { return nil }

	switch a.cfg.Ledger.Backend {
	case config.BackendSheets:
		sheetsCfg, err := a.sheetsConfig(ctx)
		if err != nil {
			return nil, noop, err
		}
		store, err := sheets.NewStore(ctx, sheetsCfg)
		if err != nil {
			return nil, noop, fmt.Errorf("wire sheets ledger: %w", err)
		}
		return store, noop, nil
	case config.BackendSQL:
		dsn, err := a.secrets.Get(ctx, a.cfg.Ledger.SQL.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("resolve sql dsn: %w", err)
		}
		store, err := sqlstore.Open(ctx, sqlstore.Dialect(a.cfg.Ledger.SQL.Dialect), dsn)
		if err != nil {
			return nil, noop, fmt.Errorf("wire sql ledger: %w", err)
		}
		return store, store.Close, nil
	case config.BackendTOML:
		store, err := ledgertoml.NewStore(a.settings)
		if err != nil {
			return nil, noop, fmt.Errorf("wire toml ledger: %w", err)
		}
		return store, noop, nil
	case config.BackendMemory:
		return ledgermemory.NewStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown ledger backend %q", a.cfg.Ledger.Backend)
	}
}

func (a *app) sheetsConfig(ctx context.Context) (sheets.Config, error) {
	src := a.cfg.Ledger.Sheets
	cfg := sheets.Config{
		SpreadsheetID: src.SpreadsheetID,
		SheetName:     src.SheetName,
		ClientEmail:   src.ClientEmail,
	}

	if src.CredentialsFile != "" {
		raw, err := os.ReadFile(expandHome(src.CredentialsFile))
		if err != nil {
			return sheets.Config{}, fmt.Errorf("read sheets credentials: %w", err)
		}
		cfg.CredentialsJSON = raw
	}

	if src.PrivateKey != "" {
		key, err := a.secrets.Get(ctx, src.PrivateKey)
		if err != nil {
			return sheets.Config{}, fmt.Errorf("resolve sheets private key: %w", err)
		}
		cfg.PrivateKey = key
	}

	if src.Timezone != "" {
		location, err := time.LoadLocation(src.Timezone)
		if err != nil {
			return sheets.Config{}, fmt.Errorf("load sheets timezone: %w", err)
		}
		cfg.Location = location
	}

	return cfg, nil
}

func (a *app) newIntakeService(ledger ports.LedgerStore, gateway ports.ChatGateway) *application.IntakeService {
	return application.NewIntakeService(
		application.NewLedgerQuery(ledger),
		application.NewReconciler(ledger, a.clock, a.logger),
		application.NewSessionStore(),
		gateway,
		a.clock,
		application.IntakeOptions{
			SessionTimeout:     a.cfg.Session.Timeout,
			MaxQuantityChoices: a.cfg.Session.MaxQuantityChoices,
			Logger:             a.logger,
			Metrics:            a.metrics,
		},
	)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
