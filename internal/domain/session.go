package domain

import "time"

type ChatID int64

type Step string

const (
	StepAwaitingName     Step = "awaiting_name"
	StepAwaitingOrder    Step = "awaiting_order"
	StepAwaitingVariant  Step = "awaiting_variant"
	StepAwaitingQuantity Step = "awaiting_quantity"
	StepCompleted        Step = "completed"
)

func (s Step) Valid() bool {
	switch s {
	case StepAwaitingName, StepAwaitingOrder, StepAwaitingVariant, StepAwaitingQuantity, StepCompleted:
		return true
	default:
		return false
	}
}

type EndReason string

const (
	EndReasonExited    EndReason = "exited"
	EndReasonCancelled EndReason = "cancelled"
	EndReasonRestarted EndReason = "restarted"
	EndReasonNoOrders  EndReason = "no_orders"
	EndReasonTimeout   EndReason = "timeout"
)

type Session struct {
	ID               string
	ChatID           ChatID
	Step             Step
	OperatorName     string
	SelectedOrder    string
	SelectedForm     string
	SelectedSize     string
	AvailableChoices []string
	// OfferedVariants holds the variants behind AvailableChoices, index for
	// index, while the session awaits a variant.
	OfferedVariants  []Variant
	ReportedQuantity int
	StartedAt        time.Time
	LastActivity     time.Time
	// Turn increments on every handled input; inactivity timers armed on an
	// older turn are ignored.
	Turn uint64
}

func (s *Session) SelectedKey() NaturalKey {
	return NaturalKey{Order: s.SelectedOrder, Form: s.SelectedForm, Size: s.SelectedSize}
}

// ResetRound clears everything chosen after the operator name.
func (s *Session) ResetRound() {
	s.SelectedOrder = ""
	s.SelectedForm = ""
	s.SelectedSize = ""
	s.AvailableChoices = nil
	s.OfferedVariants = nil
	s.ReportedQuantity = 0
}

type EventKind string

const (
	EventText   EventKind = "text"
	EventButton EventKind = "button"
)

type InboundEvent struct {
	ChatID ChatID
	Kind   EventKind
	Data   string
	Sender string
}
