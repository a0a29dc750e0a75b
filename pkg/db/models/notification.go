package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/haleycommerce/storefront-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to shops. The
// (shop_id, type, order_id) uniqueness makes webhook redelivery unable to
// create a second row for the same order event.
type Notification struct {
	ID        uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID    uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:idx_notifications_shop_type_order"`
	Type      enums.NotificationType `gorm:"type:text;not null;uniqueIndex:idx_notifications_shop_type_order"`
	OrderID   *uuid.UUID             `gorm:"column:order_id;type:uuid;uniqueIndex:idx_notifications_shop_type_order"`
	Title     string                 `gorm:"type:text;not null"`
	Message   string                 `gorm:"type:text;not null"`
	Link      *string                `gorm:"type:text"`
	ReadAt    *time.Time             `gorm:"type:timestamptz"`
	CreatedAt time.Time              `gorm:"type:timestamptz;default:now()"`
}
