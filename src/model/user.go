package model

import "time"

// User identifies an API caller by an opaque token. A user owns a subset of
// prop firms; fan-out triggered by an authenticated call is scoped to that
// subset, the anonymous webhook path fans out to every active firm.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Token     string    `gorm:"size:128;not null;uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PropFirms []PropFirm `gorm:"many2many:user_prop_firms" json:"prop_firms,omitempty"`
}

func (User) TableName() string {
	return "users"
}
