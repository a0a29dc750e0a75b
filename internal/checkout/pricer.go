package checkout

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
)

// Pricer computes one shop partition's monetary breakdown. Tax, shipping
// and coupon arithmetic live behind this interface; the fan-out only relies
// on the returned totals being internally consistent.
type Pricer interface {
	Quote(ctx context.Context, shopID uuid.UUID, lines []LineInput, couponCode string) (PartitionTotals, error)
}

// LinePricer is the default Pricer: line subtotals with no tax, shipping
// or discounts.
type LinePricer struct{}

func (LinePricer) Quote(_ context.Context, _ uuid.UUID, lines []LineInput, _ string) (PartitionTotals, error) {
	var subtotal int64
	for _, line := range lines {
		if line.UnitPriceCents < 0 {
			return PartitionTotals{}, pkgerrors.New(pkgerrors.CodeValidation, "line price must be non-negative")
		}
		if line.Qty <= 0 {
			return PartitionTotals{}, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
		subtotal += line.UnitPriceCents * int64(line.Qty)
	}
	return PartitionTotals{
		SubtotalCents: subtotal,
		TotalCents:    subtotal,
	}, nil
}
