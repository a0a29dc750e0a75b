package commission

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
)

var oneHundred = decimal.NewFromInt(100)

// Split is the result of applying a commission rate to a sale amount.
// VendorNetCents is always derived, never stored, so it can be recomputed
// later from the payment row's amount and fee alone.
type Split struct {
	PlatformFeeCents int64
	VendorNetCents   int64
}

// Compute applies ratePercent to amountCents and returns the platform fee
// and vendor net. The fee is rounded half-up to the nearest cent. The two
// parts always sum back to the input amount.
func Compute(amountCents int64, ratePercent decimal.Decimal) (Split, error) {
	if amountCents < 0 {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-negative")
	}
	if ratePercent.IsNegative() || ratePercent.GreaterThan(oneHundred) {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 100")
	}

	fee := decimal.NewFromInt(amountCents).
		Mul(ratePercent).
		Div(oneHundred).
		Round(0)

	feeCents := fee.IntPart()
	return Split{
		PlatformFeeCents: feeCents,
		VendorNetCents:   amountCents - feeCents,
	}, nil
}

// Recompute derives the vendor net from a stored amount and fee, flooring
// at zero. Used by reconciliation and reporting paths that only have the
// persisted payment row.
func Recompute(amountCents, feeCents int64) int64 {
	net := amountCents - feeCents
	if net < 0 {
		return 0
	}
	return net
}
