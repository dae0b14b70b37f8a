package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/order-intake-bot/internal/adapters/chat/telegram"
	"github.com/bnema/order-intake-bot/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func newServeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot (webhook or long polling)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, app)
		},
	}
}

func runServe(ctx context.Context, app *app) error {
	cfg := app.cfg.Telegram
	if err := app.cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	defer func() { _ = app.logger.Sync() }()

	token, err := app.secrets.Get(ctx, cfg.Token)
	if err != nil {
		return fmt.Errorf("resolve telegram token: %w", err)
	}
	secretToken := cfg.SecretToken
	if secretToken != "" {
		secretToken, err = app.secrets.Get(ctx, secretToken)
		if err != nil {
			return fmt.Errorf("resolve webhook secret token: %w", err)
		}
	}

	ledger, closeLedger, err := app.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedgerQuietly(app, closeLedger)

	logger := app.logger.With(zap.String("component", "serve"))

	client, err := telegram.NewClient(ctx, telegram.ClientOptions{
		BaseURL:        cfg.BaseURL,
		Token:          token,
		RequestTimeout: cfg.RequestTimeout,
		Keyboard:       telegram.KeyboardMode(cfg.Keyboard),
		ButtonsPerRow:  cfg.ButtonsPerRow,
		Logger:         app.logger,
	})
	if err != nil {
		return fmt.Errorf("connect telegram: %w", err)
	}
	logger.Info("telegram bot ready", zap.String("bot", client.Username()))

	service := app.newIntakeService(ledger, client)
	defer service.Close()

	dispatcher := telegram.NewDispatcher(client, service, app.logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	switch cfg.Mode {
	case config.ModeWebhook:
		mux.Handle(cfg.WebhookPath, telegram.NewWebhookHandler(dispatcher, secretToken, app.logger))
		if cfg.WebhookURL != "" {
			if err := client.SetWebhook(ctx, cfg.WebhookURL, secretToken); err != nil {
				return fmt.Errorf("register webhook: %w", err)
			}
			logger.Info("webhook registered", zap.String("url", cfg.WebhookURL))
		}
	case config.ModePoll:
		// getUpdates is refused while a webhook is set.
		if err := client.DeleteWebhook(ctx); err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.Listen != "" {
		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		}

		group.Go(func() error {
			logger.Info("listening", zap.String("addr", cfg.Listen), zap.String("mode", cfg.Mode))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve http: %w", err)
			}
			return nil
		})

		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown http: %w", err)
			}
			return nil
		})
	}

	if cfg.Mode == config.ModePoll {
		poller := telegram.NewPoller(client, dispatcher, app.logger)
		if cfg.PollTimeout > 0 {
			poller.Timeout = cfg.PollTimeout
		}

		group.Go(func() error {
			logger.Info("polling telegram updates")
			return poller.Run(groupCtx)
		})
	}

	err = group.Wait()
	logger.Info("stopped")
	return err
}
