package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem captures the snapshot of each line within an order. Product
// name, sku and image are copied at order time so later catalog edits never
// change historical orders.
type OrderItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      *uuid.UUID `gorm:"column:product_id;type:uuid"`
	Name           string     `gorm:"column:name;not null"`
	SKU            string     `gorm:"column:sku;not null"`
	ImageURL       *string    `gorm:"column:image_url"`
	UnitPriceCents int64      `gorm:"column:unit_price_cents;not null"`
	Qty            int        `gorm:"column:qty;not null"`
	TotalCents     int64      `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
