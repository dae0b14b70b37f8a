package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultSessionTimeout     = 30 * time.Minute
	DefaultMaxQuantityChoices = 100

	timeoutNotifyDeadline = 10 * time.Second
)

type IntakeOptions struct {
	SessionTimeout     time.Duration
	MaxQuantityChoices int
	Logger             *zap.Logger
	Metrics            ports.IntakeMetrics
}

// IntakeService walks one chat at a time through name, order, variant and
// quantity selection. Events for the same chat are serialized; different chats
// run concurrently.
type IntakeService struct {
	query      *LedgerQuery
	reconciler *Reconciler
	sessions   *SessionStore
	gateway    ports.ChatGateway
	clock      ports.Clock
	logger     *zap.Logger
	metrics    ports.IntakeMetrics

	timeout            time.Duration
	maxQuantityChoices int

	chats    *keyedMutex[domain.ChatID]
	timersMu sync.Mutex
	timers   map[domain.ChatID]ports.Timer
}

var _ ports.EventHandler = (*IntakeService)(nil)

func NewIntakeService(query *LedgerQuery, reconciler *Reconciler, sessions *SessionStore, gateway ports.ChatGateway, clock ports.Clock, opts IntakeOptions) *IntakeService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if sessions == nil {
		sessions = NewSessionStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}
	if opts.MaxQuantityChoices <= 0 {
		opts.MaxQuantityChoices = DefaultMaxQuantityChoices
	}

	return &IntakeService{
		query:              query,
		reconciler:         reconciler,
		sessions:           sessions,
		gateway:            gateway,
		clock:              clock,
		logger:             opts.Logger.With(zap.String("component", "intake")),
		metrics:            opts.Metrics,
		timeout:            opts.SessionTimeout,
		maxQuantityChoices: opts.MaxQuantityChoices,
		chats:              newKeyedMutex[domain.ChatID](),
		timers:             map[domain.ChatID]ports.Timer{},
	}
}

// HandleEvent advances the chat's session by one step. Ledger failures are
// reported to the chat and never returned; the returned error is a gateway
// delivery failure.
func (s *IntakeService) HandleEvent(ctx context.Context, event domain.InboundEvent) error {
	unlock := s.chats.Lock(event.ChatID)
	defer unlock()

	input := normalizeInput(event.Data)

	switch input {
	case CommandStart:
		return s.start(ctx, event.ChatID)
	case CommandCancel:
		return s.cancel(ctx, event.ChatID)
	}

	session, ok := s.sessions.Get(event.ChatID)
	if !ok {
		return s.gateway.SendPrompt(ctx, event.ChatID, promptNoSession)
	}

	session.Turn++
	session.LastActivity = s.clock.Now()
	s.sessionLogger(session).Debug("event received",
		zap.String("kind", string(event.Kind)),
		zap.String("step", string(session.Step)),
		zap.String("sender", event.Sender),
	)

	var err error
	switch session.Step {
	case domain.StepAwaitingName:
		err = s.handleName(ctx, session, input)
	case domain.StepAwaitingOrder:
		err = s.handleOrder(ctx, session, input)
	case domain.StepAwaitingVariant:
		err = s.handleVariant(ctx, session, input)
	case domain.StepAwaitingQuantity:
		err = s.handleQuantity(ctx, session, input)
	case domain.StepCompleted:
		err = s.handleCompleted(ctx, session, input)
	default:
		err = fmt.Errorf("session %s in unknown step %q", session.ID, session.Step)
	}

	if s.isCurrent(session) {
		s.armTimer(session)
	}

	return err
}

// Close stops every pending inactivity timer.
func (s *IntakeService) Close() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	for chatID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, chatID)
	}
}

func (s *IntakeService) start(ctx context.Context, chatID domain.ChatID) error {
	if previous, ok := s.sessions.Get(chatID); ok {
		s.end(previous, domain.EndReasonRestarted)
	}

	session := s.sessions.Create(chatID, s.clock.Now())
	s.metrics.SessionStarted()
	s.sessionLogger(session).Info("session started")
	s.armTimer(session)

	return s.gateway.SendPrompt(ctx, chatID, promptAskName)
}

func (s *IntakeService) cancel(ctx context.Context, chatID domain.ChatID) error {
	session, ok := s.sessions.Get(chatID)
	if !ok {
		return s.gateway.SendPrompt(ctx, chatID, promptNoSession)
	}

	s.end(session, domain.EndReasonCancelled)
	return s.gateway.SendPrompt(ctx, chatID, promptCancelled)
}

func (s *IntakeService) handleName(ctx context.Context, session *domain.Session, input string) error {
	if input == "" {
		s.metrics.InputRejected(session.Step)
		return s.gateway.SendPrompt(ctx, session.ChatID, promptAskNameAgain)
	}

	orders, err := s.query.ListOpenOrders(ctx)
	if err != nil {
		return s.ledgerFailure(ctx, session, "list_orders", err)
	}

	session.OperatorName = input
	return s.presentOrders(ctx, session, orders)
}

func (s *IntakeService) handleOrder(ctx context.Context, session *domain.Session, input string) error {
	i, ok := matchChoice(session.AvailableChoices, input)
	if !ok {
		s.metrics.InputRejected(session.Step)
		orders, err := s.query.ListOpenOrders(ctx)
		if err != nil {
			return s.ledgerFailure(ctx, session, "list_orders", err)
		}
		if err := s.gateway.SendPrompt(ctx, session.ChatID, promptInvalidOrder); err != nil {
			return err
		}
		return s.presentOrders(ctx, session, orders)
	}

	order := session.AvailableChoices[i]
	variants, err := s.query.ListOpenVariants(ctx, order)
	if err != nil {
		return s.ledgerFailure(ctx, session, "list_variants", err)
	}
	if len(variants) == 0 {
		return s.fallbackToOrders(ctx, session)
	}

	session.SelectedOrder = order
	return s.presentVariants(ctx, session, variants)
}

func (s *IntakeService) handleVariant(ctx context.Context, session *domain.Session, input string) error {
	i, ok := matchChoice(session.AvailableChoices, input)
	if !ok || i >= len(session.OfferedVariants) {
		s.metrics.InputRejected(session.Step)
		variants, err := s.query.ListOpenVariants(ctx, session.SelectedOrder)
		if err != nil {
			return s.ledgerFailure(ctx, session, "list_variants", err)
		}
		if err := s.gateway.SendPrompt(ctx, session.ChatID, promptInvalidVariant); err != nil {
			return err
		}
		return s.presentVariants(ctx, session, variants)
	}

	variant := session.OfferedVariants[i]
	key := domain.NaturalKey{Order: session.SelectedOrder, Form: variant.Form, Size: variant.Size}
	outstanding, err := s.query.OutstandingQuantity(ctx, key)
	if err != nil {
		return s.ledgerFailure(ctx, session, "outstanding_quantity", err)
	}
	if outstanding <= 0 {
		return s.fallbackToOrders(ctx, session)
	}

	session.SelectedForm = variant.Form
	session.SelectedSize = variant.Size
	return s.presentQuantities(ctx, session, outstanding)
}

func (s *IntakeService) handleQuantity(ctx context.Context, session *domain.Session, input string) error {
	key := session.SelectedKey()
	outstanding, err := s.query.OutstandingQuantity(ctx, key)
	if err != nil {
		return s.ledgerFailure(ctx, session, "outstanding_quantity", err)
	}
	if outstanding <= 0 {
		return s.fallbackToOrders(ctx, session)
	}

	quantity, parseErr := strconv.Atoi(input)
	if parseErr != nil || quantity < 1 || quantity > outstanding {
		s.metrics.InputRejected(session.Step)
		if err := s.gateway.SendPrompt(ctx, session.ChatID, fmt.Sprintf(promptInvalidQuantity, outstanding)); err != nil {
			return err
		}
		return s.presentQuantities(ctx, session, outstanding)
	}

	result, err := s.reconciler.Reconcile(ctx, ReconcileRequest{
		Key:      key,
		Quantity: quantity,
		Operator: session.OperatorName,
	})
	if err != nil {
		return s.ledgerFailure(ctx, session, "reconcile", err)
	}

	session.ReportedQuantity = quantity
	session.Step = domain.StepCompleted
	session.AvailableChoices = []string{ChoiceContinue, ChoiceExit}
	s.metrics.QuantityReported(quantity)

	summary := confirmation{
		Operator:  session.OperatorName,
		Order:     key.Order,
		Form:      key.Form,
		Size:      key.Size,
		Quantity:  quantity,
		Done:      result.Done,
		Remaining: result.Remaining,
	}
	if err := s.gateway.SendPrompt(ctx, session.ChatID, summary.String()); err != nil {
		return err
	}

	return s.gateway.SendChoices(ctx, session.ChatID, promptContinue, continueChoices)
}

func (s *IntakeService) handleCompleted(ctx context.Context, session *domain.Session, input string) error {
	switch input {
	case ChoiceContinue:
		orders, err := s.query.ListOpenOrders(ctx)
		if err != nil {
			return s.ledgerFailure(ctx, session, "list_orders", err)
		}
		session.ResetRound()
		return s.presentOrders(ctx, session, orders)
	case ChoiceExit:
		s.end(session, domain.EndReasonExited)
		return s.gateway.SendPrompt(ctx, session.ChatID, promptGoodbye)
	default:
		s.metrics.InputRejected(session.Step)
		return s.gateway.SendChoices(ctx, session.ChatID, promptInvalidContinue, continueChoices)
	}
}

func (s *IntakeService) presentOrders(ctx context.Context, session *domain.Session, orders []string) error {
	if len(orders) == 0 {
		s.end(session, domain.EndReasonNoOrders)
		return s.gateway.SendPrompt(ctx, session.ChatID, promptNoOrders)
	}

	session.Step = domain.StepAwaitingOrder
	session.AvailableChoices = orders
	session.OfferedVariants = nil
	return s.gateway.SendChoices(ctx, session.ChatID, promptChooseOrder, tokenChoices(orders))
}

func (s *IntakeService) presentVariants(ctx context.Context, session *domain.Session, variants []domain.Variant) error {
	if len(variants) == 0 {
		return s.fallbackToOrders(ctx, session)
	}

	tokens := make([]string, 0, len(variants))
	for _, variant := range variants {
		tokens = append(tokens, variant.Token())
	}

	session.Step = domain.StepAwaitingVariant
	session.AvailableChoices = tokens
	session.OfferedVariants = variants
	return s.gateway.SendChoices(ctx, session.ChatID, promptChooseVariant, tokenChoices(tokens))
}

func (s *IntakeService) presentQuantities(ctx context.Context, session *domain.Session, outstanding int) error {
	shown := min(outstanding, s.maxQuantityChoices)
	tokens := make([]string, 0, shown)
	for i := 1; i <= shown; i++ {
		tokens = append(tokens, strconv.Itoa(i))
	}

	session.Step = domain.StepAwaitingQuantity
	session.AvailableChoices = tokens
	session.OfferedVariants = nil
	return s.gateway.SendChoices(ctx, session.ChatID, promptChooseQuantity, tokenChoices(tokens))
}

// fallbackToOrders handles an order whose variants were all completed between
// listing and selection: the operator picks an order again. The session is
// left untouched when the order list cannot be read.
func (s *IntakeService) fallbackToOrders(ctx context.Context, session *domain.Session) error {
	orders, err := s.query.ListOpenOrders(ctx)
	if err != nil {
		return s.ledgerFailure(ctx, session, "list_orders", err)
	}

	session.ResetRound()
	session.Step = domain.StepAwaitingOrder

	if err := s.gateway.SendPrompt(ctx, session.ChatID, promptNoVariants); err != nil {
		return err
	}

	return s.presentOrders(ctx, session, orders)
}

func (s *IntakeService) ledgerFailure(ctx context.Context, session *domain.Session, op string, err error) error {
	s.metrics.LedgerFailure(op)

	fields := []zap.Field{zap.String("op", op), zap.String("step", string(session.Step)), zap.Error(err)}
	switch {
	case errors.Is(err, domain.ErrRowNotFound):
		s.sessionLogger(session).Warn("ledger row vanished before reconcile", fields...)
	case errors.Is(err, domain.ErrRevisionConflict):
		s.sessionLogger(session).Warn("ledger row kept changing during reconcile", fields...)
	default:
		s.sessionLogger(session).Error("ledger request failed", fields...)
	}

	return s.gateway.SendPrompt(ctx, session.ChatID, promptLedgerUnavailable)
}

func (s *IntakeService) end(session *domain.Session, reason domain.EndReason) {
	s.sessions.Delete(session.ChatID)
	s.stopTimer(session.ChatID)
	s.metrics.SessionEnded(reason)
	s.sessionLogger(session).Info("session ended", zap.String("reason", string(reason)))
}

func (s *IntakeService) isCurrent(session *domain.Session) bool {
	current, ok := s.sessions.Get(session.ChatID)
	return ok && current == session
}

func (s *IntakeService) armTimer(session *domain.Session) {
	if s.timeout <= 0 {
		return
	}

	chatID, sessionID, turn := session.ChatID, session.ID, session.Turn
	timer := s.clock.AfterFunc(s.timeout, func() {
		s.expire(chatID, sessionID, turn)
	})

	s.timersMu.Lock()
	if previous, ok := s.timers[chatID]; ok {
		previous.Stop()
	}
	s.timers[chatID] = timer
	s.timersMu.Unlock()
}

func (s *IntakeService) stopTimer(chatID domain.ChatID) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if timer, ok := s.timers[chatID]; ok {
		timer.Stop()
		delete(s.timers, chatID)
	}
}

func (s *IntakeService) expire(chatID domain.ChatID, sessionID string, turn uint64) {
	unlock := s.chats.Lock(chatID)
	defer unlock()

	session, ok := s.sessions.Get(chatID)
	if !ok || session.ID != sessionID || session.Turn != turn {
		return
	}

	s.end(session, domain.EndReasonTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeoutNotifyDeadline)
	defer cancel()

	if err := s.gateway.SendPrompt(ctx, chatID, timeoutNotice(session.OperatorName)); err != nil {
		s.sessionLogger(session).Warn("send timeout notice", zap.Error(errors.Join(domain.ErrSessionTimeout, err)))
	}
}

func (s *IntakeService) sessionLogger(session *domain.Session) *zap.Logger {
	return s.logger.With(
		zap.Int64("chat_id", int64(session.ChatID)),
		zap.String("session_id", session.ID),
	)
}

func normalizeInput(raw string) string {
	return norm.NFC.String(strings.TrimSpace(raw))
}

// matchChoice returns the index of the offered token equal to input under NFC,
// so the ledger keeps seeing its own spelling of order, form and size.
func matchChoice(offered []string, input string) (int, bool) {
	for i, token := range offered {
		if norm.NFC.String(token) == input {
			return i, true
		}
	}

	return -1, false
}
