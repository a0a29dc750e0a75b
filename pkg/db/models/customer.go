package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a registered buyer account.
type Customer struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email             string    `gorm:"type:text;not null;uniqueIndex"`
	FirstName         string    `gorm:"column:first_name;not null"`
	LastName          string    `gorm:"column:last_name;not null"`
	OrderEmailsOptOut bool      `gorm:"column:order_emails_opt_out;not null;default:false"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
