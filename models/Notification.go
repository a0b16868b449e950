package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification tells a record owner that its review status changed.
type Notification struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	CustomerID uuid.UUID `json:"customer_id" gorm:"type:uuid;index"`
	Status     KycStatus `json:"status" gorm:"size:20"`
	Title      string    `json:"title" gorm:"size:128"`
	Body       string    `json:"body" gorm:"type:text"`
	Read       bool      `json:"read" gorm:"default:false"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}
