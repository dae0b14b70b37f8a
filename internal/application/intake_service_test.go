package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bnema/order-intake-bot/internal/adapters/ledger/memory"
	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
	"github.com/bnema/order-intake-bot/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testChat domain.ChatID = 42

type sentMessage struct {
	ChatID  domain.ChatID
	Text    string
	Choices []ports.Choice
}

type recordingGateway struct {
	mu       sync.Mutex
	messages []sentMessage
	err      error
}

func (g *recordingGateway) SendPrompt(_ context.Context, chatID domain.ChatID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = append(g.messages, sentMessage{ChatID: chatID, Text: text})
	return g.err
}

func (g *recordingGateway) SendChoices(_ context.Context, chatID domain.ChatID, text string, choices []ports.Choice) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = append(g.messages, sentMessage{ChatID: chatID, Text: text, Choices: choices})
	return g.err
}

func (g *recordingGateway) drain() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.messages
	g.messages = nil
	return out
}

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired && !timer.at.After(c.now) {
			timer.fired = true
			due = append(due, timer)
		}
	}
	c.mu.Unlock()

	for _, timer := range due {
		timer.f()
	}
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type countingMetrics struct {
	mu       sync.Mutex
	started  int
	ended    map[domain.EndReason]int
	rejected map[domain.Step]int
	reported int
	failures map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{ended: map[domain.EndReason]int{}, rejected: map[domain.Step]int{}, failures: map[string]int{}}
}

func (m *countingMetrics) SessionStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *countingMetrics) SessionEnded(reason domain.EndReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended[reason]++
}

func (m *countingMetrics) InputRejected(step domain.Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[step]++
}

func (m *countingMetrics) QuantityReported(quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reported += quantity
}

func (m *countingMetrics) LedgerFailure(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op]++
}

// flakyLedger fails on demand in front of a real store.
type flakyLedger struct {
	ports.LedgerStore
	mu        sync.Mutex
	fetchErr  error
	okFetches int
	updateErr error
}

func (l *flakyLedger) FetchAllRows(ctx context.Context) ([]domain.LedgerRow, error) {
	l.mu.Lock()
	err := l.fetchErr
	if err != nil && l.okFetches > 0 {
		l.okFetches--
		err = nil
	}
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return l.LedgerStore.FetchAllRows(ctx)
}

func (l *flakyLedger) UpdateRow(ctx context.Context, key domain.NaturalKey, update domain.RowUpdate) error {
	l.mu.Lock()
	err := l.updateErr
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.LedgerStore.UpdateRow(ctx, key, update)
}

func (l *flakyLedger) failFetch(err error) {
	l.failFetchAfter(0, err)
}

// failFetchAfter lets n reads through before every later read fails with err.
func (l *flakyLedger) failFetchAfter(n int, err error) {
	l.mu.Lock()
	l.fetchErr = err
	l.okFetches = n
	l.mu.Unlock()
}

func (l *flakyLedger) failUpdate(err error) {
	l.mu.Lock()
	l.updateErr = err
	l.mu.Unlock()
}

type intakeHarness struct {
	store    *memory.Store
	ledger   *flakyLedger
	gateway  *recordingGateway
	clock    *manualClock
	sessions *SessionStore
	metrics  *countingMetrics
	svc      *IntakeService
}

func newIntakeHarness(t *testing.T, opts IntakeOptions, rows ...domain.LedgerRow) *intakeHarness {
	t.Helper()

	h := &intakeHarness{
		store:    memory.NewStore(rows...),
		gateway:  &recordingGateway{},
		clock:    newManualClock(),
		sessions: NewSessionStore(),
		metrics:  newCountingMetrics(),
	}
	h.ledger = &flakyLedger{LedgerStore: h.store}
	if opts.SessionTimeout == 0 {
		opts.SessionTimeout = 30 * time.Minute
	}
	opts.Metrics = h.metrics

	h.svc = NewIntakeService(NewLedgerQuery(h.ledger), NewReconciler(h.ledger, h.clock, nil), h.sessions, h.gateway, h.clock, opts)
	t.Cleanup(h.svc.Close)

	return h
}

func (h *intakeHarness) send(t *testing.T, text string) []sentMessage {
	t.Helper()
	require.NoError(t, h.svc.HandleEvent(context.Background(), domain.InboundEvent{ChatID: testChat, Kind: domain.EventText, Data: text}))
	return h.gateway.drain()
}

func (h *intakeHarness) press(t *testing.T, value string) []sentMessage {
	t.Helper()
	require.NoError(t, h.svc.HandleEvent(context.Background(), domain.InboundEvent{ChatID: testChat, Kind: domain.EventButton, Data: value}))
	return h.gateway.drain()
}

func (h *intakeHarness) session(t *testing.T) *domain.Session {
	t.Helper()
	session, ok := h.sessions.Get(testChat)
	require.True(t, ok, "expected an active session")
	return session
}

func (h *intakeHarness) row(t *testing.T, key domain.NaturalKey) domain.LedgerRow {
	t.Helper()
	rows, err := h.store.FetchAllRows(context.Background())
	require.NoError(t, err)
	row, _, ok := domain.FindRow(rows, key)
	require.True(t, ok)
	return row
}

func choiceValues(msg sentMessage) []string {
	values := make([]string, 0, len(msg.Choices))
	for _, choice := range msg.Choices {
		values = append(values, choice.Value)
	}
	return values
}

func lastMessage(t *testing.T, messages []sentMessage) sentMessage {
	t.Helper()
	require.NotEmpty(t, messages)
	return messages[len(messages)-1]
}

func quantityTokens(n int) []string {
	tokens := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		tokens = append(tokens, strconv.Itoa(i))
	}
	return tokens
}

func TestIntakeFirstCompletionOfFreshRow(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	msgs := h.send(t, "/start")
	require.Len(t, msgs, 1)
	assert.Equal(t, promptAskName, msgs[0].Text)
	assert.Equal(t, domain.StepAwaitingName, h.session(t).Step)

	msgs = h.send(t, "Ann")
	assert.Equal(t, promptChooseOrder, lastMessage(t, msgs).Text)
	assert.Equal(t, []string{"O1"}, choiceValues(lastMessage(t, msgs)))
	assert.Equal(t, "Ann", h.session(t).OperatorName)

	msgs = h.press(t, "O1")
	assert.Equal(t, promptChooseVariant, lastMessage(t, msgs).Text)
	assert.Equal(t, []string{"Круг|10"}, choiceValues(lastMessage(t, msgs)))

	msgs = h.press(t, "Круг|10")
	assert.Equal(t, promptChooseQuantity, lastMessage(t, msgs).Text)
	assert.Equal(t, quantityTokens(5), choiceValues(lastMessage(t, msgs)))

	msgs = h.press(t, "3")
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Text, "Сделано: 3")
	assert.Contains(t, msgs[0].Text, "Исполнитель: Ann")
	assert.Contains(t, msgs[0].Text, "Осталось: 2")
	assert.Equal(t, promptContinue, msgs[1].Text)
	assert.Equal(t, []string{ChoiceContinue, ChoiceExit}, choiceValues(msgs[1]))

	row := h.row(t, scenarioKey)
	assert.Equal(t, 3, row.Done)
	assert.Equal(t, 2, row.Remaining)
	assert.Equal(t, "Ann", row.LastCompletedBy)
	assert.Equal(t, h.clock.Now(), row.LastCompletedDate)

	session := h.session(t)
	assert.Equal(t, domain.StepCompleted, session.Step)
	assert.Equal(t, 3, session.ReportedQuantity)
	assert.Equal(t, 3, h.metrics.reported)
}

func TestIntakeSecondSessionSeesOnlyRemainingQuantity(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5, Done: 3})

	h.send(t, "/start")
	h.send(t, "Bob")
	h.press(t, "O1")
	msgs := h.press(t, "Круг|10")
	assert.Equal(t, []string{"1", "2"}, choiceValues(lastMessage(t, msgs)))

	msgs = h.press(t, "2")
	assert.Contains(t, msgs[0].Text, "Сделано: 5")

	row := h.row(t, scenarioKey)
	assert.Equal(t, 5, row.Done)
	assert.Equal(t, 0, row.Remaining)

	orders, err := NewLedgerQuery(h.store).ListOpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)

	msgs = h.press(t, ChoiceContinue)
	assert.Equal(t, promptNoOrders, lastMessage(t, msgs).Text)
	_, ok := h.sessions.Get(testChat)
	assert.False(t, ok)
}

func TestIntakeExcludesCompletedVariantsAndOrders(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{},
		domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5, Done: 5},
		domain.LedgerRow{Order: "O1", Form: "Круг", Size: "12", Required: 5},
		domain.LedgerRow{Order: "O2", Form: "Квадрат", Size: "8", Required: 2, Done: 2},
	)

	h.send(t, "/start")
	msgs := h.send(t, "Ann")
	assert.Equal(t, []string{"O1"}, choiceValues(lastMessage(t, msgs)))

	msgs = h.press(t, "O1")
	assert.Equal(t, []string{"Круг|12"}, choiceValues(lastMessage(t, msgs)))

	msgs = h.press(t, "Круг|10")
	assert.Equal(t, promptInvalidVariant, msgs[0].Text)
	assert.Equal(t, []string{"Круг|12"}, choiceValues(lastMessage(t, msgs)))
	assert.Equal(t, domain.StepAwaitingVariant, h.session(t).Step)
}

func TestIntakeVariantCompletedElsewhereFallsBackToOrders(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{},
		domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5},
		domain.LedgerRow{Order: "O2", Form: "Квадрат", Size: "8", Required: 2},
	)

	h.send(t, "/start")
	h.send(t, "Ann")
	h.press(t, "O1")

	other := NewReconciler(h.store, nil, nil)
	_, err := other.Reconcile(context.Background(), ReconcileRequest{Key: scenarioKey, Quantity: 5, Operator: "Bob"})
	require.NoError(t, err)

	msgs := h.press(t, "Круг|10")
	require.Len(t, msgs, 2)
	assert.Equal(t, promptNoVariants, msgs[0].Text)
	assert.Equal(t, []string{"O2"}, choiceValues(msgs[1]))

	session := h.session(t)
	assert.Equal(t, domain.StepAwaitingOrder, session.Step)
	assert.Empty(t, session.SelectedOrder)
	assert.Equal(t, "Ann", session.OperatorName)
}

func TestIntakeFallbackKeepsSessionWhenOrderListFails(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{},
		domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5},
		domain.LedgerRow{Order: "O1", Form: "Квадрат", Size: "8", Required: 2},
		domain.LedgerRow{Order: "O2", Form: "Квадрат", Size: "8", Required: 2},
	)

	h.send(t, "/start")
	h.send(t, "Ann")
	h.press(t, "O1")

	_, err := NewReconciler(h.store, nil, nil).Reconcile(context.Background(), ReconcileRequest{Key: scenarioKey, Quantity: 5, Operator: "Bob"})
	require.NoError(t, err)

	// the outstanding check succeeds, the order list behind the fallback does not.
	h.ledger.failFetchAfter(1, domain.LedgerIOError("get values", errors.New("503 backend error")))
	msgs := h.press(t, "Круг|10")
	require.Len(t, msgs, 1)
	assert.Equal(t, promptLedgerUnavailable, msgs[0].Text)

	session := h.session(t)
	assert.Equal(t, domain.StepAwaitingVariant, session.Step)
	assert.Equal(t, "O1", session.SelectedOrder)
	assert.Equal(t, []string{"Круг|10", "Квадрат|8"}, session.AvailableChoices)

	h.ledger.failFetch(nil)
	msgs = h.press(t, "Квадрат|8")
	assert.Equal(t, []string{"1", "2"}, choiceValues(lastMessage(t, msgs)))
	assert.Equal(t, domain.StepAwaitingQuantity, h.session(t).Step)
	assert.Equal(t, domain.NaturalKey{Order: "O1", Form: "Квадрат", Size: "8"}, h.session(t).SelectedKey())
}

func TestIntakeVariantWithSeparatorInForm(t *testing.T) {
	key := domain.NaturalKey{Order: "O1", Form: "A|B", Size: "1"}
	h := newIntakeHarness(t, IntakeOptions{},
		domain.LedgerRow{Order: key.Order, Form: key.Form, Size: key.Size, Required: 5},
		domain.LedgerRow{Order: "O1", Form: "A", Size: "B|2", Required: 1},
	)

	h.send(t, "/start")
	h.send(t, "Ann")
	msgs := h.press(t, "O1")
	assert.Equal(t, []string{"A|B|1", "A|B|2"}, choiceValues(lastMessage(t, msgs)))

	msgs = h.press(t, "A|B|1")
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, choiceValues(lastMessage(t, msgs)))
	assert.Equal(t, key, h.session(t).SelectedKey())

	h.press(t, "2")
	assert.Equal(t, 2, h.row(t, key).Done)
	assert.Equal(t, domain.StepCompleted, h.session(t).Step)
}

func TestIntakeOrderWithoutOpenVariantsReturnsToOrderChoice(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{},
		domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5},
		domain.LedgerRow{Order: "O2", Form: "Квадрат", Size: "8", Required: 2},
	)

	h.send(t, "/start")
	h.send(t, "Ann")

	_, err := NewReconciler(h.store, nil, nil).Reconcile(context.Background(), ReconcileRequest{Key: scenarioKey, Quantity: 5, Operator: "Bob"})
	require.NoError(t, err)

	msgs := h.press(t, "O1")
	assert.Equal(t, promptNoVariants, msgs[0].Text)
	assert.Equal(t, []string{"O2"}, choiceValues(lastMessage(t, msgs)))
	assert.Equal(t, domain.StepAwaitingOrder, h.session(t).Step)
}

func TestIntakeRejectsOrderNotOfferedAndRecomputesChoices(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	h.send(t, "Ann")

	require.NoError(t, h.store.Seed(context.Background(), []domain.LedgerRow{{Order: "O7", Form: "Круг", Size: "20", Required: 1}}))

	msgs := h.send(t, "O7")
	require.Len(t, msgs, 2)
	assert.Equal(t, promptInvalidOrder, msgs[0].Text)
	assert.Equal(t, []string{"O1", "O7"}, choiceValues(msgs[1]))

	session := h.session(t)
	assert.Equal(t, domain.StepAwaitingOrder, session.Step)
	assert.Empty(t, session.SelectedOrder)
	assert.Equal(t, []string{"O1", "O7"}, session.AvailableChoices)
	assert.Equal(t, 1, h.metrics.rejected[domain.StepAwaitingOrder])

	msgs = h.press(t, "O7")
	assert.Equal(t, []string{"Круг|20"}, choiceValues(lastMessage(t, msgs)))
}

func TestIntakeRejectsQuantityOutsideFreshBounds(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	h.send(t, "Ann")
	h.press(t, "O1")
	h.press(t, "Круг|10")

	_, err := NewReconciler(h.store, nil, nil).Reconcile(context.Background(), ReconcileRequest{Key: scenarioKey, Quantity: 3, Operator: "Bob"})
	require.NoError(t, err)

	for _, input := range []string{"5", "0", "abc", "-1"} {
		msgs := h.send(t, input)
		require.Len(t, msgs, 2, "input %q", input)
		assert.Equal(t, fmt.Sprintf(promptInvalidQuantity, 2), msgs[0].Text)
		assert.Equal(t, []string{"1", "2"}, choiceValues(msgs[1]))
		assert.Equal(t, domain.StepAwaitingQuantity, h.session(t).Step)
	}

	assert.Equal(t, 3, h.row(t, scenarioKey).Done)
}

func TestIntakeAcceptsTypedQuantityBeyondShownButtons(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{MaxQuantityChoices: 3}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	h.send(t, "Ann")
	h.press(t, "O1")
	msgs := h.press(t, "Круг|10")
	assert.Equal(t, []string{"1", "2", "3"}, choiceValues(lastMessage(t, msgs)))

	msgs = h.send(t, "5")
	assert.Contains(t, msgs[0].Text, "Сделано: 5")
}

func TestIntakeMatchesChoicesUnderUnicodeNormalization(t *testing.T) {
	decomposed := "\u0418\u0306"
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: decomposed, Size: "10", Required: 2})

	h.send(t, "/start")
	h.send(t, "Ann")
	h.press(t, "O1")
	h.send(t, "\u0419|10")
	msgs := h.send(t, "1")
	assert.Contains(t, msgs[0].Text, "Сделано: 1")

	row := h.row(t, domain.NaturalKey{Order: "O1", Form: decomposed, Size: "10"})
	assert.Equal(t, 1, row.Done)
}

func TestIntakeEmptyNameIsReprompted(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	msgs := h.send(t, "   ")
	assert.Equal(t, promptAskNameAgain, lastMessage(t, msgs).Text)
	assert.Equal(t, domain.StepAwaitingName, h.session(t).Step)
}

func TestIntakeNoOpenOrdersEndsSession(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5, Done: 5})

	h.send(t, "/start")
	msgs := h.send(t, "Ann")
	assert.Equal(t, promptNoOrders, lastMessage(t, msgs).Text)

	_, ok := h.sessions.Get(testChat)
	assert.False(t, ok)
	assert.Equal(t, 1, h.metrics.ended[domain.EndReasonNoOrders])
}

func TestIntakeLedgerFailureKeepsSessionForRetry(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	h.ledger.failFetch(domain.LedgerIOError("get values", errors.New("503 backend error")))

	msgs := h.send(t, "Ann")
	assert.Equal(t, promptLedgerUnavailable, lastMessage(t, msgs).Text)
	session := h.session(t)
	assert.Equal(t, domain.StepAwaitingName, session.Step)
	assert.Empty(t, session.OperatorName)
	assert.Equal(t, 1, h.metrics.failures["list_orders"])

	h.ledger.failFetch(nil)
	msgs = h.send(t, "Ann")
	assert.Equal(t, []string{"O1"}, choiceValues(lastMessage(t, msgs)))
}

func TestIntakeRowVanishingDuringReconcileKeepsQuantityStep(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	h.send(t, "Ann")
	h.press(t, "O1")
	h.press(t, "Круг|10")

	h.ledger.failUpdate(domain.ErrRowNotFound)
	msgs := h.press(t, "2")
	assert.Equal(t, promptLedgerUnavailable, lastMessage(t, msgs).Text)
	assert.Equal(t, domain.StepAwaitingQuantity, h.session(t).Step)
	assert.Equal(t, 0, h.row(t, scenarioKey).Done)

	h.ledger.failUpdate(nil)
	msgs = h.press(t, "2")
	assert.Contains(t, msgs[0].Text, "Сделано: 2")
}

func TestIntakeContinueStartsNewRoundKeepingName(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{},
		domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5},
		domain.LedgerRow{Order: "O2", Form: "Квадрат", Size: "8", Required: 2},
	)

	h.send(t, "/start")
	h.send(t, "Ann")
	h.press(t, "O1")
	h.press(t, "Круг|10")
	h.press(t, "5")

	msgs := h.send(t, "maybe")
	assert.Equal(t, promptInvalidContinue, lastMessage(t, msgs).Text)

	msgs = h.press(t, ChoiceContinue)
	assert.Equal(t, []string{"O2"}, choiceValues(lastMessage(t, msgs)))

	session := h.session(t)
	assert.Equal(t, domain.StepAwaitingOrder, session.Step)
	assert.Equal(t, "Ann", session.OperatorName)
	assert.Empty(t, session.SelectedOrder)
	assert.Zero(t, session.ReportedQuantity)
}

func TestIntakeExitEndsSession(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	h.send(t, "Ann")
	h.press(t, "O1")
	h.press(t, "Круг|10")
	h.press(t, "1")

	msgs := h.press(t, ChoiceExit)
	assert.Equal(t, promptGoodbye, lastMessage(t, msgs).Text)
	_, ok := h.sessions.Get(testChat)
	assert.False(t, ok)

	msgs = h.send(t, "O1")
	assert.Equal(t, promptNoSession, lastMessage(t, msgs).Text)
}

func TestIntakeStartResetsExistingSession(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	h.send(t, "Ann")
	h.press(t, "O1")
	previous := h.session(t).ID

	msgs := h.send(t, "/start")
	assert.Equal(t, promptAskName, lastMessage(t, msgs).Text)

	session := h.session(t)
	assert.NotEqual(t, previous, session.ID)
	assert.Equal(t, domain.StepAwaitingName, session.Step)
	assert.Empty(t, session.SelectedOrder)
	assert.Equal(t, 1, h.metrics.ended[domain.EndReasonRestarted])
	assert.Equal(t, 0, h.row(t, scenarioKey).Done)
}

func TestIntakeCancel(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	msgs := h.send(t, "/cancel")
	assert.Equal(t, promptNoSession, lastMessage(t, msgs).Text)

	h.send(t, "/start")
	msgs = h.send(t, "/cancel")
	assert.Equal(t, promptCancelled, lastMessage(t, msgs).Text)
	_, ok := h.sessions.Get(testChat)
	assert.False(t, ok)
}

func TestIntakeInactivityTimeoutDestroysSessionAndNotifiesByName(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{SessionTimeout: 30 * time.Minute}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	h.send(t, "Ann")
	expired := h.session(t).ID

	h.clock.Advance(29 * time.Minute)
	assert.Equal(t, domain.StepAwaitingOrder, h.session(t).Step)
	assert.Empty(t, h.gateway.drain())

	h.clock.Advance(2 * time.Minute)
	_, ok := h.sessions.Get(testChat)
	assert.False(t, ok)

	msgs := h.gateway.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "⏰ Ann, время сессии истекло. Напишите /start чтобы начать заново.", msgs[0].Text)
	assert.Equal(t, 1, h.metrics.ended[domain.EndReasonTimeout])

	h.send(t, "/start")
	session := h.session(t)
	assert.NotEqual(t, expired, session.ID)
	assert.Equal(t, domain.StepAwaitingName, session.Step)
	assert.Empty(t, session.OperatorName)
	assert.Empty(t, session.AvailableChoices)
	assert.Equal(t, 0, h.row(t, scenarioKey).Done)
}

func TestIntakeActivityRearmsTimer(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{SessionTimeout: 30 * time.Minute}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	h.clock.Advance(20 * time.Minute)
	h.send(t, "Ann")
	h.clock.Advance(20 * time.Minute)

	assert.Equal(t, domain.StepAwaitingOrder, h.session(t).Step)
	assert.Empty(t, h.gateway.drain())

	h.clock.Advance(11 * time.Minute)
	_, ok := h.sessions.Get(testChat)
	assert.False(t, ok)
}

func TestIntakeTimeoutBeforeNameUsesGenericNotice(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{SessionTimeout: time.Minute})

	h.send(t, "/start")
	h.clock.Advance(time.Minute)

	msgs := h.gateway.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, timeoutNotice(""), msgs[0].Text)
}

func TestIntakeTimeoutWithSystemClock(t *testing.T) {
	store := memory.NewStore(domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})
	gateway := &recordingGateway{}
	sessions := NewSessionStore()
	svc := NewIntakeService(NewLedgerQuery(store), NewReconciler(store, nil, nil), sessions, gateway, ports.SystemClock{}, IntakeOptions{SessionTimeout: 20 * time.Millisecond})
	t.Cleanup(svc.Close)

	require.NoError(t, svc.HandleEvent(context.Background(), domain.InboundEvent{ChatID: testChat, Kind: domain.EventText, Data: "/start"}))

	assert.Eventually(t, func() bool {
		return sessions.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestIntakeGatewayFailureIsReturnedAndScopedToChat(t *testing.T) {
	h := newIntakeHarness(t, IntakeOptions{}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.gateway.err = errors.New("telegram: 502")
	err := h.svc.HandleEvent(context.Background(), domain.InboundEvent{ChatID: 1, Kind: domain.EventText, Data: "/start"})
	require.Error(t, err)
	h.gateway.err = nil

	h.send(t, "/start")
	msgs := h.send(t, "Ann")
	assert.Equal(t, []string{"O1"}, choiceValues(lastMessage(t, msgs)))

	_, ok := h.sessions.Get(1)
	assert.True(t, ok)
}

func TestIntakeDeliversThroughGatewayPort(t *testing.T) {
	ledger := memory.NewStore(domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})
	gateway := mocks.NewMockChatGateway(t)
	sessions := NewSessionStore()
	svc := NewIntakeService(NewLedgerQuery(ledger), NewReconciler(ledger, nil, nil), sessions, gateway, newManualClock(), IntakeOptions{SessionTimeout: time.Minute})
	t.Cleanup(svc.Close)

	delivery := errors.New("telegram: 502")
	gateway.EXPECT().SendPrompt(mock.Anything, testChat, promptAskName).Return(delivery).Once()
	gateway.EXPECT().SendChoices(mock.Anything, testChat, promptChooseOrder, []ports.Choice{{Label: "O1", Value: "O1"}}).Return(nil).Once()

	err := svc.HandleEvent(context.Background(), domain.InboundEvent{ChatID: testChat, Kind: domain.EventText, Data: "/start"})
	require.ErrorIs(t, err, delivery)

	// the session exists even though the greeting was lost.
	require.NoError(t, svc.HandleEvent(context.Background(), domain.InboundEvent{ChatID: testChat, Kind: domain.EventText, Data: "Ann"}))
	session, ok := sessions.Get(testChat)
	require.True(t, ok)
	assert.Equal(t, domain.StepAwaitingOrder, session.Step)
}

func TestIntakeLogsEventSender(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := newIntakeHarness(t, IntakeOptions{Logger: zap.New(core)}, domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 5})

	h.send(t, "/start")
	require.NoError(t, h.svc.HandleEvent(context.Background(), domain.InboundEvent{ChatID: testChat, Kind: domain.EventText, Data: "Ann", Sender: "@ann_w"}))

	received := logs.FilterMessage("event received").All()
	require.Len(t, received, 1)
	fields := received[0].ContextMap()
	assert.Equal(t, "@ann_w", fields["sender"])
	assert.Equal(t, string(domain.StepAwaitingName), fields["step"])
	assert.Equal(t, string(domain.EventText), fields["kind"])
}

func TestIntakeConcurrentChatsShareLedgerWithoutLosingCounts(t *testing.T) {
	const chats = 12

	store := memory.NewStore(domain.LedgerRow{Order: "O1", Form: "Круг", Size: "10", Required: 100})
	gateway := &recordingGateway{}
	svc := NewIntakeService(NewLedgerQuery(store), NewReconciler(store, nil, nil), NewSessionStore(), gateway, newManualClock(), IntakeOptions{SessionTimeout: time.Hour})
	t.Cleanup(svc.Close)

	var wg sync.WaitGroup
	for i := 0; i < chats; i++ {
		wg.Add(1)
		go func(chatID domain.ChatID) {
			defer wg.Done()
			for _, input := range []string{"/start", fmt.Sprintf("worker-%d", chatID), "O1", "Круг|10", "2", ChoiceExit} {
				assert.NoError(t, svc.HandleEvent(context.Background(), domain.InboundEvent{ChatID: chatID, Kind: domain.EventButton, Data: input}))
			}
		}(domain.ChatID(i + 1))
	}
	wg.Wait()

	rows, err := store.FetchAllRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2*chats, rows[0].Done)
	assert.Equal(t, 100-2*chats, rows[0].Remaining)

	operators := map[domain.ChatID]bool{}
	for _, msg := range gateway.drain() {
		if msg.Text == promptGoodbye {
			operators[msg.ChatID] = true
		}
	}
	assert.Len(t, operators, chats)
}
