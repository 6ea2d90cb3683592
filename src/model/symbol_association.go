package model

import "time"

// SymbolAssociation maps a canonical ticker to the broker-specific label one
// prop firm uses for it. A missing row means the firm does not trade that
// instrument.
type SymbolAssociation struct {
	PropFirmID uint      `gorm:"primaryKey;autoIncrement:false" json:"prop_firm_id"`
	Ticker     string    `gorm:"primaryKey;size:20" json:"ticker"`
	Label      string    `gorm:"size:60;not null" json:"label"`
	CreatedAt  time.Time `json:"created_at"`
}

func (SymbolAssociation) TableName() string {
	return "symbol_associations"
}

// SymbolPair is the wire form used by the bulk replace endpoint.
type SymbolPair struct {
	Ticker string `json:"ticker"`
	Label  string `json:"label"`
}
