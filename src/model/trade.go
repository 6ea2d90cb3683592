package model

import "time"

// Trade ties a Signal to a PropFirm once an order was actually placed (or
// adopted during reconciliation). Composite key: at most one trade per
// (prop firm, signal) pair. It is the unit of cancellation and
// reconciliation.
type Trade struct {
	PropFirmID uint `gorm:"primaryKey;autoIncrement:false" json:"prop_firm_id"`
	SignalID   uint `gorm:"primaryKey;autoIncrement:false" json:"signal_id"`
	// PlatformID is the broker-assigned ticket. Empty until the broker
	// confirms the order.
	PlatformID string `gorm:"size:60;index" json:"platform_id"`
	// BrokerResponse keeps the raw connector payload for audit and replay.
	BrokerResponse string    `gorm:"type:text" json:"broker_response,omitempty"`
	Label          string    `gorm:"size:60" json:"label"`
	CreatedAt      time.Time `json:"created_at"`

	PropFirm *PropFirm `gorm:"foreignKey:PropFirmID" json:"prop_firm,omitempty"`
	Signal   *Signal   `gorm:"foreignKey:SignalID" json:"signal,omitempty"`
}

func (Trade) TableName() string {
	return "trades"
}
