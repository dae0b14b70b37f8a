package telegram

import (
	"context"
	"fmt"

	"github.com/bnema/order-intake-bot/internal/ports"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Dispatcher feeds updates to the event handler. The webhook and the poller
// share it.
type Dispatcher struct {
	client  *Client
	handler ports.EventHandler
	logger  *zap.Logger
}

func NewDispatcher(client *Client, handler ports.EventHandler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{client: client, handler: handler, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, update tgbotapi.Update) error {
	if cq := update.CallbackQuery; cq != nil && cq.ID != "" {
		if err := d.client.AnswerCallbackQuery(ctx, cq.ID); err != nil {
			d.logger.Warn("answer callback query", zap.Int("update_id", update.UpdateID), zap.Error(err))
		}
	}

	event, ok := inboundEvent(update)
	if !ok {
		d.logger.Debug("ignoring update", zap.Int("update_id", update.UpdateID))
		return nil
	}
	if update.Message != nil && d.client.keyboard == KeyboardReply {
		event.Data = d.client.ReplyValue(event.ChatID, event.Data)
	}

	if err := d.handler.HandleEvent(ctx, event); err != nil {
		return fmt.Errorf("handle update %d: %w", update.UpdateID, err)
	}

	return nil
}
