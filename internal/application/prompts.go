package application

import (
	"fmt"
	"strings"

	"github.com/bnema/order-intake-bot/internal/ports"
)

const (
	CommandStart  = "/start"
	CommandCancel = "/cancel"

	ChoiceContinue = "continue"
	ChoiceExit     = "exit"
)

const (
	promptAskName           = "Привет! Как тебя зовут?"
	promptAskNameAgain      = "Пожалуйста, напишите своё имя."
	promptNoSession         = "Напишите /start чтобы начать."
	promptChooseOrder       = "Выберите номер заказа:"
	promptNoOrders          = "Нет доступных заказов."
	promptInvalidOrder      = "Пожалуйста, выберите заказ из списка."
	promptChooseVariant     = "Выберите форму и размер:"
	promptNoVariants        = "Нет доступных форм и размеров для этого заказа."
	promptInvalidVariant    = "Пожалуйста, выберите форму и размер из списка."
	promptChooseQuantity    = "Выберите количество:"
	promptInvalidQuantity   = "Пожалуйста, выберите количество от 1 до %d."
	promptContinue          = "Хотите продолжить?"
	promptInvalidContinue   = "Пожалуйста, выберите ✅ Да или ❌ Нет."
	promptGoodbye           = "Спасибо за работу!"
	promptCancelled         = "Сессия отменена. Напишите /start чтобы начать заново."
	promptLedgerUnavailable = "⚠️ Не удалось обработать запрос. Попробуйте ещё раз."
)

var continueChoices = []ports.Choice{
	{Label: "✅ Да", Value: ChoiceContinue},
	{Label: "❌ Нет", Value: ChoiceExit},
}

type confirmation struct {
	Operator  string
	Order     string
	Form      string
	Size      string
	Quantity  int
	Done      int
	Remaining int
}

func (c confirmation) String() string {
	lines := []string{
		"✅ Данные записаны!",
		"",
		fmt.Sprintf("👤 Исполнитель: %s", c.Operator),
		fmt.Sprintf("📦 Заказ: %s", c.Order),
		fmt.Sprintf("🪴 Форма: %s", c.Form),
		fmt.Sprintf("📏 Размер: %s", c.Size),
		fmt.Sprintf("➕ Количество: %d", c.Quantity),
		fmt.Sprintf("✔️ Сделано: %d", c.Done),
		fmt.Sprintf("⏳ Осталось: %d", c.Remaining),
	}

	return strings.Join(lines, "\n")
}

func timeoutNotice(operator string) string {
	if strings.TrimSpace(operator) == "" {
		return "⏰ Время сессии истекло. Напишите /start чтобы начать заново."
	}

	return fmt.Sprintf("⏰ %s, время сессии истекло. Напишите /start чтобы начать заново.", operator)
}

func tokenChoices(tokens []string) []ports.Choice {
	choices := make([]ports.Choice, 0, len(tokens))
	for _, token := range tokens {
		choices = append(choices, ports.Choice{Label: token, Value: token})
	}

	return choices
}
