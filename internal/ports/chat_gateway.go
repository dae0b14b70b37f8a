package ports

import (
	"context"

	"github.com/bnema/order-intake-bot/internal/domain"
)

// Choice is one button. Value is an opaque token echoed back on press.
type Choice struct {
	Label string
	Value string
}

type ChatGateway interface {
	SendPrompt(ctx context.Context, chatID domain.ChatID, text string) error
	SendChoices(ctx context.Context, chatID domain.ChatID, text string, choices []Choice) error
}

// EventHandler receives inbound events regardless of how the transport delivers them.
type EventHandler interface {
	HandleEvent(ctx context.Context, event domain.InboundEvent) error
}
