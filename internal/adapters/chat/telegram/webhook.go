package telegram

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

	maxUpdateBytes = 1 << 20
)

type WebhookHandler struct {
	dispatcher  *Dispatcher
	secretToken string
	logger      *zap.Logger
}

func NewWebhookHandler(dispatcher *Dispatcher, secretToken string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookHandler{dispatcher: dispatcher, secretToken: secretToken, logger: logger}
}

// ServeHTTP answers 200 once the update was dispatched, even when handling it
// failed, so Telegram does not redeliver it.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.secretToken != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secretToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		h.logger.Warn("decode webhook update", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), update); err != nil {
		h.logger.Error("dispatch webhook update", zap.Int("update_id", update.UpdateID), zap.Error(err))
	}

	w.WriteHeader(http.StatusOK)
}
