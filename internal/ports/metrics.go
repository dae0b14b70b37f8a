package ports

import "github.com/bnema/order-intake-bot/internal/domain"

type IntakeMetrics interface {
	SessionStarted()
	SessionEnded(reason domain.EndReason)
	InputRejected(step domain.Step)
	QuantityReported(quantity int)
	LedgerFailure(op string)
}

type NopMetrics struct{}

func (NopMetrics) SessionStarted()               {}
func (NopMetrics) SessionEnded(domain.EndReason) {}
func (NopMetrics) InputRejected(domain.Step)     {}
func (NopMetrics) QuantityReported(int)          {}
func (NopMetrics) LedgerFailure(string)          {}
