package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/haleycommerce/storefront-backend/pkg/enums"
)

// EmailDelivery is the dedupe and retry ledger for outbound notification
// email. One row exists per dedupe key; repeated triggers for the same
// (type, order, recipient) tuple reuse the row. Rows are never deleted by
// normal operation.
type EmailDelivery struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DedupeKey         string                    `gorm:"column:dedupe_key;not null;uniqueIndex"`
	Type              enums.EmailType           `gorm:"column:type;type:text;not null"`
	Recipient         string                    `gorm:"column:recipient;not null"`
	OrderID           uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	Status            enums.EmailDeliveryStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Attempts          int                       `gorm:"column:attempts;not null;default:0"`
	LastAttemptAt     *time.Time                `gorm:"column:last_attempt_at"`
	LastError         *string                   `gorm:"column:last_error"`
	ProviderMessageID *string                   `gorm:"column:provider_message_id"`
	SentAt            *time.Time                `gorm:"column:sent_at"`
	Metadata          json.RawMessage           `gorm:"column:metadata;type:jsonb"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
