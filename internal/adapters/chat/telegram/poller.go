package telegram

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPollTimeout = 30 * time.Second
	DefaultRetryPause  = 3 * time.Second
)

// Poller is a context-aware stand-in for BotAPI.GetUpdatesChan.
type Poller struct {
	client     *Client
	dispatcher *Dispatcher
	logger     *zap.Logger

	Timeout    time.Duration
	RetryPause time.Duration
}

func NewPoller(client *Client, dispatcher *Dispatcher, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Poller{
		client:     client,
		dispatcher: dispatcher,
		logger:     logger,
		Timeout:    DefaultPollTimeout,
		RetryPause: DefaultRetryPause,
	}
}

// Run polls until ctx is cancelled. Updates are dispatched in order; a failed
// dispatch is logged and the update is still acknowledged.
func (p *Poller) Run(ctx context.Context) error {
	var offset int

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.Timeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			p.logger.Warn("poll telegram updates", zap.Error(err), zap.Duration("retry_in", p.RetryPause))
			if !sleep(ctx, p.RetryPause) {
				return nil
			}
			continue
		}

		for _, update := range updates {
			if err := p.dispatcher.Dispatch(ctx, update); err != nil {
				p.logger.Error("dispatch polled update", zap.Int("update_id", update.UpdateID), zap.Error(err))
			}
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
