package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/haleycommerce/storefront-backend/pkg/enums"
	"github.com/haleycommerce/storefront-backend/pkg/types"
)

// Order is one shop's share of a checkout. A checkout spanning shops
// produces multiple orders sharing one PaymentRef, never one order spanning
// shops.
type Order struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber   string                   `gorm:"column:order_number;not null;uniqueIndex"`
	ShopID        uuid.UUID                `gorm:"column:shop_id;type:uuid;not null;index"`
	CustomerID    *uuid.UUID               `gorm:"column:customer_id;type:uuid;index"`
	GuestEmail    *string                  `gorm:"column:guest_email"`
	Currency      enums.Currency           `gorm:"column:currency;type:text;not null;default:'usd'"`
	SubtotalCents int64                    `gorm:"column:subtotal_cents;not null"`
	TaxCents      int64                    `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents int64                    `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents int64                    `gorm:"column:discount_cents;not null;default:0"`
	TotalCents    int64                    `gorm:"column:total_cents;not null"`
	Status        enums.OrderStatus        `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentRef    *string                  `gorm:"column:payment_ref;index"`
	ShippingAddr  types.Address            `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddr   types.Address            `gorm:"column:billing_address;type:jsonb;serializer:json"`
	Items         []OrderItem              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments      []Payment                `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
