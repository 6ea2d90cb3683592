package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"signalcopier/src/model"
)

func firm(full, available float64) *model.PropFirm {
	return &model.PropFirm{FullBalance: full, AvailableBalance: available}
}

func sig(size float64) *model.Signal {
	return &model.Signal{PositionSize: size}
}

func TestCheckProjectedAllowsSmallDebit(t *testing.T) {
	g := NewGuard()

	// 100000 / (98000 - 1000) = 1.0309...
	assert.Equal(t, VerdictAllowed, g.CheckProjected(firm(100000, 98000), sig(1000)))
}

func TestCheckProjectedBlocksOverThreshold(t *testing.T) {
	g := NewGuard()

	// 100000 / (98000 - 2500) = 1.0471... crosses 1.04
	assert.Equal(t, VerdictOverDrawdown, g.CheckProjected(firm(100000, 98000), sig(2500)))
}

func TestCheckProjectedExactBoundaryAllowed(t *testing.T) {
	// 104 / (101 - 1) = 1.04 exactly, not over
	g := NewGuard()
	assert.Equal(t, VerdictAllowed, g.CheckProjected(firm(104, 101), sig(1)))
}

func TestCheckProjectedNoBalanceLeft(t *testing.T) {
	g := NewGuard()

	assert.Equal(t, VerdictNoBalanceLeft, g.CheckProjected(firm(100000, 1000), sig(1000)))
	assert.Equal(t, VerdictNoBalanceLeft, g.CheckProjected(firm(100000, 500), sig(1000)))
}

func TestCheckProjectedUsesAbsoluteSize(t *testing.T) {
	g := NewGuard()

	// short signals carry negative sizes, debit is the same
	assert.Equal(t, VerdictOverDrawdown, g.CheckProjected(firm(100000, 98000), sig(-2500)))
}

func TestWithMaxDrawdownOverride(t *testing.T) {
	g := NewGuard().WithMaxDrawdown(decimal.NewFromFloat(1.10))

	assert.Equal(t, VerdictAllowed, g.CheckProjected(firm(100000, 98000), sig(2500)))
}

func TestCheckProjectedNeverMutatesFirm(t *testing.T) {
	g := NewGuard()
	f := firm(100000, 98000)

	g.CheckProjected(f, sig(2500))
	assert.Equal(t, 98000.0, f.AvailableBalance)
	assert.Equal(t, 100000.0, f.FullBalance)
}
