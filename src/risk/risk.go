package risk

import (
	"github.com/shopspring/decimal"

	"signalcopier/src/model"
)

// ----- drawdown guard -----

// Accounts whose projected drawdown ratio (full / available after the debit)
// would cross this line are skipped during update fan-out. 1.04 keeps a 4%
// buffer against the evaluation firms' daily loss rules.
var DefaultMaxDrawdown = decimal.NewFromFloat(1.04)

type Verdict string

const (
	VerdictAllowed       Verdict = "allowed"
	VerdictOverDrawdown  Verdict = "over_drawdown"
	VerdictNoBalanceLeft Verdict = "no_balance_left"
)

// Guard decides whether an account can absorb another position.
type Guard struct {
	maxDrawdown decimal.Decimal
}

func NewGuard() *Guard {
	return &Guard{maxDrawdown: DefaultMaxDrawdown}
}

// WithMaxDrawdown overrides the threshold, mainly for tests.
func (g *Guard) WithMaxDrawdown(max decimal.Decimal) *Guard {
	return &Guard{maxDrawdown: max}
}

// CheckProjected simulates debiting the signal's position size from the firm
// and reports whether the resulting drawdown stays inside the threshold. The
// firm itself is never mutated here.
func (g *Guard) CheckProjected(firm *model.PropFirm, sig *model.Signal) Verdict {
	cost := decimal.NewFromFloat(sig.PositionSize).Abs()
	available := decimal.NewFromFloat(firm.AvailableBalance).Sub(cost)

	if available.LessThanOrEqual(decimal.Zero) {
		return VerdictNoBalanceLeft
	}

	projected := decimal.NewFromFloat(firm.FullBalance).Div(available)
	if projected.GreaterThan(g.maxDrawdown) {
		return VerdictOverDrawdown
	}

	return VerdictAllowed
}
