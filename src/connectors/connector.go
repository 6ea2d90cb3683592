package connectors

import (
	"context"
	"time"

	"signalcopier/src/model"
)

// BrokerPosition is one open position as the trading terminal reports it.
type BrokerPosition struct {
	Ticket    string    `json:"ticket"`
	Symbol    string    `json:"symbol"`
	OrderType string    `json:"order_type"`
	Volume    float64   `json:"volume"`
	OpenPrice float64   `json:"open_price"`
	Profit    float64   `json:"profit"`
	Swap      float64   `json:"swap"`
	Comment   string    `json:"comment"`
	OpenedAt  time.Time `json:"opened_at"`
}

// AccountSnapshot is the terminal's view of the account. Reconciliation maps
// Balance to the full balance and FreeMargin to the available balance.
type AccountSnapshot struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}

// TradingConnector is the per-account broker capability surface. One
// connector serves one prop firm account.
//
// Connect is idempotent for an unchanged identity; calling it again with
// different credentials re-establishes the session. PlaceOrder and CloseOrder
// verify their position-count post-condition: a broker that reports success
// without the position set changing yields ErrGhostFill.
type TradingConnector interface {
	Connect(ctx context.Context, creds model.Credentials) error
	IsConnected() bool
	PlaceOrder(ctx context.Context, sig *model.Signal, label string) model.ExecutionOutcome
	CloseOrder(ctx context.Context, trade *model.Trade) model.ExecutionOutcome
	ListOpenPositions(ctx context.Context) ([]BrokerPosition, error)
	AccountSnapshot(ctx context.Context) (*AccountSnapshot, error)
}
