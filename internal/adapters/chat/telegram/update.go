package telegram

import (
	"strings"

	"github.com/bnema/order-intake-bot/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// inboundEvent converts an update into an inbound event. Updates without text
// or callback data are ignored.
func inboundEvent(update tgbotapi.Update) (domain.InboundEvent, bool) {
	if cq := update.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil {
			return domain.InboundEvent{}, false
		}
		return domain.InboundEvent{
			ChatID: domain.ChatID(cq.Message.Chat.ID),
			Kind:   domain.EventButton,
			Data:   cq.Data,
			Sender: senderName(cq.From),
		}, true
	}

	if m := update.Message; m != nil && m.Chat != nil && m.Text != "" {
		return domain.InboundEvent{
			ChatID: domain.ChatID(m.Chat.ID),
			Kind:   domain.EventText,
			Data:   strings.TrimSpace(m.Text),
			Sender: senderName(m.From),
		}, true
	}

	return domain.InboundEvent{}, false
}

func senderName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return "@" + user.UserName
	}
	return user.FirstName
}
