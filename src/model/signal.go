package model

import (
	"encoding/json"
	"time"
)

const (
	OrderTypeBuy  = "buy"
	OrderTypeSell = "sell"
)

// Signal is one parsed trading instruction received from the alert source.
// position_size keeps the sign it arrived with; balance math always works on
// its absolute value.
type Signal struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Strategy     string    `gorm:"size:100;not null;index" json:"strategy"`
	OrderType    string    `gorm:"size:10;not null" json:"order_type"`
	Contracts    float64   `gorm:"not null" json:"contracts"`
	Ticker       string    `gorm:"size:20;not null;index" json:"ticker"`
	PositionSize float64   `gorm:"not null" json:"position_size"`
	CreatedAt    time.Time `json:"created_at"`

	Trades []Trade `gorm:"foreignKey:SignalID" json:"trades,omitempty"`
}

func (Signal) TableName() string {
	return "signals"
}

// IsFlatten reports whether the signal asks for the matching open position to
// be closed instead of opening a new one.
func (s *Signal) IsFlatten() bool {
	return s.PositionSize == 0
}

// OppositeOrderType returns the order type a prior opposing trade would carry.
func (s *Signal) OppositeOrderType() string {
	if s.OrderType == OrderTypeSell {
		return OrderTypeBuy
	}
	return OrderTypeSell
}

func (s *Signal) ToString() string {
	out, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(out)
}
