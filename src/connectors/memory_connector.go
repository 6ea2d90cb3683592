package connectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signalcopier/src/model"
)

// MemoryConnector keeps positions in process memory instead of talking to a
// terminal. It backs the "paper" platform type and most of the test suite.
type MemoryConnector struct {
	mu        sync.Mutex
	connected bool
	nextID    int64
	positions map[string]BrokerPosition
	balance   float64

	// FailNextOrder forces the next PlaceOrder or CloseOrder to report a
	// broker rejection.
	FailNextOrder bool
}

func NewMemoryConnector() *MemoryConnector {
	return &MemoryConnector{
		positions: make(map[string]BrokerPosition),
		nextID:    1000,
		balance:   100000,
	}
}

func (c *MemoryConnector) Connect(_ context.Context, _ model.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *MemoryConnector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *MemoryConnector) PlaceOrder(_ context.Context, sig *model.Signal, label string) model.ExecutionOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return model.FailedOutcome("not connected", model.ErrAdapterConnection, nil)
	}
	if c.FailNextOrder {
		c.FailNextOrder = false
		return model.FailedOutcome("Order failed: rejected", model.ErrOrderRejected,
			map[string]any{"retcode": RetcodeReject})
	}

	c.nextID++
	ticket := fmt.Sprintf("%d", c.nextID)
	c.positions[ticket] = BrokerPosition{
		Ticket:    ticket,
		Symbol:    label,
		OrderType: sig.OrderType,
		Volume:    sig.Contracts,
		OpenedAt:  time.Now(),
	}

	return model.ExecutionOutcome{
		Success: true,
		Message: "Trade placed successfully",
		TradeID: ticket,
		Details: map[string]any{"retcode": RetcodeDone, "symbol": label},
	}
}

func (c *MemoryConnector) CloseOrder(_ context.Context, trade *model.Trade) model.ExecutionOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return model.FailedOutcome("not connected", model.ErrAdapterConnection, nil)
	}
	if c.FailNextOrder {
		c.FailNextOrder = false
		return model.FailedOutcome("Error closing position", model.ErrOrderRejected,
			map[string]any{"retcode": RetcodeReject})
	}
	if _, ok := c.positions[trade.PlatformID]; !ok {
		return model.FailedOutcome(
			fmt.Sprintf("position %s not found", trade.PlatformID),
			model.ErrOrderRejected,
			map[string]any{"ticket": trade.PlatformID},
		)
	}

	delete(c.positions, trade.PlatformID)
	return model.ExecutionOutcome{
		Success: true,
		Message: fmt.Sprintf("Position %s closed successfully", trade.PlatformID),
		TradeID: trade.PlatformID,
		Details: map[string]any{"retcode": RetcodeDone},
	}
}

func (c *MemoryConnector) ListOpenPositions(_ context.Context) ([]BrokerPosition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]BrokerPosition, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, p)
	}
	return out, nil
}

func (c *MemoryConnector) AccountSnapshot(_ context.Context) (*AccountSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &AccountSnapshot{
		Balance:    c.balance,
		Equity:     c.balance,
		FreeMargin: c.balance,
		Currency:   "USD",
	}, nil
}

// SetBalance adjusts what AccountSnapshot reports. Test hook.
func (c *MemoryConnector) SetBalance(balance float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = balance
}

// SeedPosition injects an already-open position, as if it was opened by hand
// in the terminal. Test hook.
func (c *MemoryConnector) SeedPosition(p BrokerPosition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[p.Ticket] = p
}
