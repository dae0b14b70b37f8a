// Package telegram connects the intake service to the Telegram Bot API, by
// webhook or by long polling, on top of go-telegram-bot-api.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	defaultRequestTimeout = 15 * time.Second
)

var allowedUpdates = []string{"message", "callback_query"}

type KeyboardMode string

const (
	KeyboardInline KeyboardMode = "inline"
	KeyboardReply  KeyboardMode = "reply"
)

func (m KeyboardMode) Valid() bool {
	return m == KeyboardInline || m == KeyboardReply
}

type ClientOptions struct {
	BaseURL        string
	Token          string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Keyboard       KeyboardMode
	ButtonsPerRow  int
	// Logger receives the library's own log lines.
	Logger *zap.Logger
}

type Client struct {
	bot            *tgbotapi.BotAPI
	token          string
	httpClient     *http.Client
	requestTimeout time.Duration
	keyboard       KeyboardMode
	buttonsPerRow  int

	// reply keyboards send the label back as text; labels are mapped back to
	// choice values per chat.
	replyMu     sync.Mutex
	replyLabels map[domain.ChatID]map[string]string
}

var _ ports.ChatGateway = (*Client)(nil)

// NewClient checks the token with getMe before returning.
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.Token == "" {
		return nil, errors.New("telegram bot token is required")
	}

	endpoint, err := apiEndpoint(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		token:          opts.Token,
		httpClient:     opts.HTTPClient,
		requestTimeout: opts.RequestTimeout,
		keyboard:       opts.Keyboard,
		buttonsPerRow:  opts.ButtonsPerRow,
		replyLabels:    map[domain.ChatID]map[string]string{},
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultRequestTimeout
	}
	if c.keyboard == "" {
		c.keyboard = KeyboardInline
	}
	if opts.Logger != nil {
		if err := tgbotapi.SetLogger(zap.NewStdLog(opts.Logger.Named("tgbotapi"))); err != nil {
			return nil, fmt.Errorf("set telegram library logger: %w", err)
		}
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, contextDoer{ctx: requestCtx, client: c.httpClient})
	if err != nil {
		return nil, c.wrap("getMe", err)
	}
	c.bot = bot

	return c, nil
}

// Username is the bot account reported by getMe.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

func (c *Client) SendPrompt(ctx context.Context, chatID domain.ChatID, text string) error {
	msg := tgbotapi.NewMessage(int64(chatID), text)
	if c.keyboard == KeyboardReply {
		c.forgetReplyLabels(chatID)
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}

	return c.request(ctx, "sendMessage", msg)
}

func (c *Client) SendChoices(ctx context.Context, chatID domain.ChatID, text string, choices []ports.Choice) error {
	if len(choices) == 0 {
		return fmt.Errorf("send choices to chat %d: %w", chatID, domain.ErrEmptyChoiceSet)
	}

	msg := tgbotapi.NewMessage(int64(chatID), text)
	switch c.keyboard {
	case KeyboardReply:
		c.rememberReplyLabels(chatID, choices)
		msg.ReplyMarkup = tgbotapi.NewOneTimeReplyKeyboard(layout(choices, c.buttonsPerRow, func(ch ports.Choice) tgbotapi.KeyboardButton {
			return tgbotapi.NewKeyboardButton(ch.Label)
		})...)
	default:
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(layout(choices, c.buttonsPerRow, func(ch ports.Choice) tgbotapi.InlineKeyboardButton {
			return tgbotapi.NewInlineKeyboardButtonData(ch.Label, ch.Value)
		})...)
	}

	return c.request(ctx, "sendMessage", msg)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	return c.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackQueryID, ""))
}

// GetUpdates long-polls for updates starting at offset. The HTTP deadline is
// extended by the poll timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = int(timeout / time.Second)
	cfg.AllowedUpdates = allowedUpdates

	requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout+timeout)
	defer cancel()

	updates, err := c.api(requestCtx).GetUpdates(cfg)
	if err != nil {
		return nil, c.wrap("getUpdates", err)
	}

	return updates, nil
}

// SetWebhook registers webhookURL. The library's WebhookConfig predates
// secret tokens, so the call is made with raw params.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secretToken string) error {
	params := tgbotapi.Params{"url": webhookURL}
	params.AddNonEmpty("secret_token", secretToken)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return fmt.Errorf("encode allowed updates: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	if _, err := c.api(requestCtx).MakeRequest("setWebhook", params); err != nil {
		return c.wrap("setWebhook", err)
	}

	return nil
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.request(ctx, "deleteWebhook", tgbotapi.DeleteWebhookConfig{})
}

// ReplyValue maps text typed by tapping a reply keyboard button back to the
// choice value. Other text is returned unchanged.
func (c *Client) ReplyValue(chatID domain.ChatID, text string) string {
	c.replyMu.Lock()
	defer c.replyMu.Unlock()

	if value, ok := c.replyLabels[chatID][text]; ok {
		return value
	}

	return text
}

func (c *Client) rememberReplyLabels(chatID domain.ChatID, choices []ports.Choice) {
	labels := make(map[string]string, len(choices))
	for _, choice := range choices {
		labels[choice.Label] = choice.Value
	}

	c.replyMu.Lock()
	defer c.replyMu.Unlock()
	c.replyLabels[chatID] = labels
}

func (c *Client) forgetReplyLabels(chatID domain.ChatID) {
	c.replyMu.Lock()
	defer c.replyMu.Unlock()
	delete(c.replyLabels, chatID)
}

func (c *Client) request(ctx context.Context, method string, chattable tgbotapi.Chattable) error {
	requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	if _, err := c.api(requestCtx).Request(chattable); err != nil {
		return c.wrap(method, err)
	}

	return nil
}

// api returns the bot bound to ctx. BotAPI methods take no context, so each
// call runs on a copy whose HTTP client attaches ctx to the request.
func (c *Client) api(ctx context.Context) *tgbotapi.BotAPI {
	bot := *c.bot
	bot.Client = contextDoer{ctx: ctx, client: c.httpClient}
	return &bot
}

// wrap keeps the bot token out of url.Error messages. API errors stay
// reachable as *tgbotapi.Error.
func (c *Client) wrap(method string, err error) error {
	if strings.Contains(err.Error(), c.token) {
		return fmt.Errorf("telegram %s: %s", method, strings.ReplaceAll(err.Error(), c.token, "<token>"))
	}

	return fmt.Errorf("telegram %s: %w", method, err)
}

type contextDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d contextDoer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(d.ctx))
}

// apiEndpoint turns a base URL into the library's "%s" endpoint template.
func apiEndpoint(base string) (string, error) {
	if base == "" {
		base = DefaultBaseURL
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse telegram base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("telegram base url must use http or https")
	}

	escaped := strings.ReplaceAll(strings.TrimSuffix(parsed.String(), "/"), "%", "%%")
	return escaped + "/bot%s/%s", nil
}

func layout[B any](choices []ports.Choice, perRow int, button func(ports.Choice) B) [][]B {
	if perRow <= 0 {
		perRow = 1
	}

	rows := make([][]B, 0, (len(choices)+perRow-1)/perRow)
	for start := 0; start < len(choices); start += perRow {
		end := min(start+perRow, len(choices))
		row := make([]B, 0, end-start)
		for _, choice := range choices[start:end] {
			row = append(row, button(choice))
		}
		rows = append(rows, row)
	}

	return rows
}
