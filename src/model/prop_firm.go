package model

import (
	"math"
	"time"
)

// PropFirm is one tradable brokerage account. Balance fields are only ever
// mutated through the methods below so the drawdown recompute is never
// skipped; repositories persist these mutations in the same transaction as
// the trade write that triggered them.
type PropFirm struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"size:100;not null" json:"name"`
	FullBalance        float64   `gorm:"not null" json:"full_balance"`
	AvailableBalance   float64   `gorm:"not null" json:"available_balance"`
	DrawdownPercentage float64   `gorm:"not null" json:"drawdown_percentage"`
	IsActive           bool      `gorm:"not null;default:false" json:"is_active"`
	Username           string    `gorm:"size:100" json:"username"`
	Password           string    `gorm:"type:text" json:"-"`
	ServerAddress      string    `gorm:"size:100" json:"server_address"`
	Port               int       `json:"port"`
	PlatformType       string    `gorm:"size:100" json:"platform_type"`
	Description        string    `gorm:"type:text" json:"description,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Trades []Trade `gorm:"foreignKey:PropFirmID" json:"trades,omitempty"`
}

func (PropFirm) TableName() string {
	return "prop_firms"
}

// SetAvailableToFull resets the available balance to the full balance. Called
// on creation and whenever the full balance is edited.
func (p *PropFirm) SetAvailableToFull() error {
	p.AvailableBalance = p.FullBalance
	return p.RecomputeDrawdown()
}

// ApplyTradeCost deducts the signal's position size from the available
// balance. Called once per (prop firm, signal) when a trade is created.
func (p *PropFirm) ApplyTradeCost(sig *Signal) error {
	p.AvailableBalance -= math.Abs(sig.PositionSize)
	return p.RecomputeDrawdown()
}

// ReleaseTradeCost is the inverse of ApplyTradeCost, called when a trade is
// closed, canceled or reconciled away.
func (p *PropFirm) ReleaseTradeCost(sig *Signal) error {
	p.AvailableBalance += math.Abs(sig.PositionSize)
	return p.RecomputeDrawdown()
}

// SetFullBalance updates the full balance without touching the available
// balance. Callers that intend a full reset must also call SetAvailableToFull.
func (p *PropFirm) SetFullBalance(v float64) error {
	p.FullBalance = v
	return p.RecomputeDrawdown()
}

// RecomputeDrawdown refreshes drawdown = full / available. A zero available
// balance makes the ratio undefined and returns ErrDegenerateBalance instead
// of storing Inf.
func (p *PropFirm) RecomputeDrawdown() error {
	if p.AvailableBalance == 0 {
		return ErrDegenerateBalance
	}
	p.DrawdownPercentage = p.FullBalance / p.AvailableBalance
	return nil
}

// Credentials exposes the connection identity used by the broker connector.
// The password is handed over still encrypted; the connector receives the
// decrypted value from the caller that owns the security config.
type Credentials struct {
	Username      string
	Password      string
	ServerAddress string
	Port          int
}

func (p *PropFirm) Credentials() Credentials {
	return Credentials{
		Username:      p.Username,
		Password:      p.Password,
		ServerAddress: p.ServerAddress,
		Port:          p.Port,
	}
}
