package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/haleycommerce/storefront-backend/pkg/enums"
)

// Payment records one provider charge attempt against exactly one order.
// The vendor's net amount is never stored; it is always derived from the
// amount and the application fee.
type Payment struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	StripeIntentID      string              `gorm:"column:stripe_intent_id;not null;uniqueIndex"`
	AmountCents         int64               `gorm:"column:amount_cents;not null"`
	Currency            enums.Currency      `gorm:"column:currency;type:text;not null;default:'usd'"`
	Status              enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ApplicationFeeCents int64               `gorm:"column:application_fee_cents;not null;default:0"`
	ConnectedAccountID  string              `gorm:"column:connected_account_id;not null"`
	TransactionID       *string             `gorm:"column:transaction_id"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// VendorAmountCents derives the net amount routed to the connected account.
func (p Payment) VendorAmountCents() int64 {
	net := p.AmountCents - p.ApplicationFeeCents
	if net < 0 {
		return 0
	}
	return net
}
