package checkout

import (
	"github.com/google/uuid"

	"github.com/haleycommerce/storefront-backend/pkg/enums"
	"github.com/haleycommerce/storefront-backend/pkg/types"
)

// LineInput is one cart line as submitted by the storefront.
type LineInput struct {
	ShopID         uuid.UUID
	ProductID      *uuid.UUID
	Name           string
	SKU            string
	ImageURL       *string
	UnitPriceCents int64
	Qty            int
}

// Input captures a full checkout submission. Either CustomerID or
// GuestEmail must be present so the confirmation email has a recipient.
type Input struct {
	CustomerID     *uuid.UUID
	GuestEmail     *string
	Currency       enums.Currency
	Lines          []LineInput
	ShippingAddr   types.Address
	BillingAddr    types.Address
	ShippingMethod string
	CouponCodes    map[uuid.UUID]string
}

// PartitionTotals is the priced breakdown for one shop partition.
type PartitionTotals struct {
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	ShippingCents int64
	TotalCents    int64
}

// ChargeResult pairs an order with the provider intent the client must
// confirm to complete payment.
type ChargeResult struct {
	OrderID      uuid.UUID
	ShopID       uuid.UUID
	IntentID     string
	ClientSecret string
}

// Result is the checkout outcome returned to the caller.
type Result struct {
	CorrelationID string
	OrderIDs      []uuid.UUID
	Charges       []ChargeResult
}
