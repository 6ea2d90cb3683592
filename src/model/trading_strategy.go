package model

import "time"

// SyncStrategySentinel marks trades adopted from the broker whose originating
// strategy could not be matched against any stored strategy name.
const SyncStrategySentinel = "MT5_SYNC"

// TradingStrategy names a signal source. Reconciliation matches broker
// position comments against these names when adopting untracked positions.
type TradingStrategy struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TradingStrategy) TableName() string {
	return "trading_strategies"
}
