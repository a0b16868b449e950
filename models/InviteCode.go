package models

import (
	"time"

	"github.com/google/uuid"
)

// InviteCode gates admin self-registration.
type InviteCode struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Code      string     `json:"code" gorm:"size:64;uniqueIndex;not null"`
	MaxUses   int        `json:"max_uses" gorm:"not null;default:1"`
	Uses      int        `json:"uses" gorm:"not null;default:0"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedBy *uuid.UUID `json:"created_by" gorm:"type:uuid"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Usable reports whether the code can still be redeemed at now.
func (c *InviteCode) Usable(now time.Time) bool {
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return c.Uses < c.MaxUses
}
