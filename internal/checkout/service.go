package checkout

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/internal/commission"
	"github.com/haleycommerce/storefront-backend/internal/orders"
	"github.com/haleycommerce/storefront-backend/pkg/db/models"
	"github.com/haleycommerce/storefront-backend/pkg/enums"
	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
	"github.com/haleycommerce/storefront-backend/pkg/logger"
	pkgstripe "github.com/haleycommerce/storefront-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type shopLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Shop, error)
}

type chargeGateway interface {
	CreateDestinationCharge(ctx context.Context, p pkgstripe.DestinationChargeParams) (*pkgstripe.DestinationCharge, error)
}

// Service executes checkout orchestration: partition, persist, charge.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	tx         txRunner
	ordersRepo orders.Repository
	shops      shopLoader
	gateway    chargeGateway
	pricer     Pricer
	logg       *logger.Logger
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	ordersRepo orders.Repository,
	shops shopLoader,
	gateway chargeGateway,
	pricer Pricer,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if shops == nil {
		return nil, fmt.Errorf("shop loader required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("charge gateway required")
	}
	if pricer == nil {
		pricer = LinePricer{}
	}
	return &service{
		tx:         tx,
		ordersRepo: ordersRepo,
		shops:      shops,
		gateway:    gateway,
		pricer:     pricer,
		logg:       logg,
	}, nil
}

func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	if input.CustomerID == nil && (input.GuestEmail == nil || strings.TrimSpace(*input.GuestEmail) == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id or guest email required")
	}
	if missing := input.ShippingAddr.Validate(); missing != "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address missing "+missing)
	}
	currency := input.Currency
	if !currency.IsValid() {
		currency = enums.CurrencyUSD
	}

	partitions := partitionLines(input.Lines)
	shopIDs := make([]uuid.UUID, 0, len(partitions))
	for shopID := range partitions {
		shopIDs = append(shopIDs, shopID)
	}
	sort.Slice(shopIDs, func(i, j int) bool { return shopIDs[i].String() < shopIDs[j].String() })

	shopByID, err := s.loadChargeableShops(ctx, shopIDs)
	if err != nil {
		return nil, err
	}

	correlationID := "chk_" + uuid.NewString()

	type partitionPlan struct {
		shop   *models.Shop
		order  *models.Order
		totals PartitionTotals
		split  commission.Split
	}
	plans := make([]*partitionPlan, 0, len(shopIDs))

	// All orders and items commit together; no charge exists yet, so any
	// failure here aborts the checkout cleanly.
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)

		for _, shopID := range shopIDs {
			shop := shopByID[shopID]
			lines := partitions[shopID]

			totals, err := s.pricer.Quote(ctx, shopID, lines, input.CouponCodes[shopID])
			if err != nil {
				return err
			}

			split, err := commission.Compute(totals.TotalCents, shop.CommissionRatePercent)
			if err != nil {
				return err
			}

			order := &models.Order{
				OrderNumber:   newOrderNumber(),
				ShopID:        shopID,
				CustomerID:    input.CustomerID,
				GuestEmail:    input.GuestEmail,
				Currency:      currency,
				SubtotalCents: totals.SubtotalCents,
				TaxCents:      totals.TaxCents,
				ShippingCents: totals.ShippingCents,
				DiscountCents: totals.DiscountCents,
				TotalCents:    totals.TotalCents,
				Status:        enums.OrderStatusPending,
				PaymentStatus: enums.OrderPaymentStatusPending,
				PaymentRef:    &correlationID,
				ShippingAddr:  input.ShippingAddr,
				BillingAddr:   input.BillingAddr,
			}
			created, err := repo.CreateOrder(ctx, order)
			if err != nil {
				return err
			}

			items := make([]models.OrderItem, 0, len(lines))
			for _, line := range lines {
				items = append(items, models.OrderItem{
					OrderID:        created.ID,
					ProductID:      line.ProductID,
					Name:           line.Name,
					SKU:            line.SKU,
					ImageURL:       line.ImageURL,
					UnitPriceCents: line.UnitPriceCents,
					Qty:            line.Qty,
					TotalCents:     line.UnitPriceCents * int64(line.Qty),
				})
			}
			if err := repo.CreateOrderItems(ctx, items); err != nil {
				return err
			}

			plans = append(plans, &partitionPlan{
				shop:   shop,
				order:  created,
				totals: totals,
				split:  split,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Charges happen after the commit. A gateway failure leaves the orders
	// pending/unpaid for later reconciliation rather than rolling them back.
	result := &Result{CorrelationID: correlationID}
	receiptEmail := resolveReceiptEmail(input)
	for _, plan := range plans {
		result.OrderIDs = append(result.OrderIDs, plan.order.ID)

		charge, err := s.gateway.CreateDestinationCharge(ctx, pkgstripe.DestinationChargeParams{
			AmountCents:         plan.totals.TotalCents,
			Currency:            currency.String(),
			ApplicationFeeCents: plan.split.PlatformFeeCents,
			ConnectedAccountID:  *plan.shop.StripeAccountID,
			CorrelationID:       correlationID,
			OrderIDs:            []string{plan.order.ID.String()},
			ReceiptEmail:        receiptEmail,
		})
		if err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithOrderID(ctx, plan.order.ID.String())
				s.logg.Error(logCtx, "destination charge failed, orders remain pending", err)
			}
			return nil, err
		}

		payment := &models.Payment{
			OrderID:             plan.order.ID,
			StripeIntentID:      charge.IntentID,
			AmountCents:         plan.totals.TotalCents,
			Currency:            currency,
			Status:              enums.PaymentStatusPending,
			ApplicationFeeCents: plan.split.PlatformFeeCents,
			ConnectedAccountID:  *plan.shop.StripeAccountID,
		}
		if _, err := s.ordersRepo.CreatePayment(ctx, payment); err != nil {
			return nil, err
		}

		result.Charges = append(result.Charges, ChargeResult{
			OrderID:      plan.order.ID,
			ShopID:       plan.shop.ID,
			IntentID:     charge.IntentID,
			ClientSecret: charge.ClientSecret,
		})
	}

	return result, nil
}

func (s *service) loadChargeableShops(ctx context.Context, shopIDs []uuid.UUID) (map[uuid.UUID]*models.Shop, error) {
	shops, err := s.shops.FindByIDs(ctx, shopIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*models.Shop, len(shops))
	for i := range shops {
		byID[shops[i].ID] = &shops[i]
	}
	for _, shopID := range shopIDs {
		shop, ok := byID[shopID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found: "+shopID.String())
		}
		if shop.StripeAccountID == nil || !shop.ChargesEnabled {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop is not charge-capable: "+shop.Slug)
		}
	}
	return byID, nil
}

func partitionLines(lines []LineInput) map[uuid.UUID][]LineInput {
	partitions := make(map[uuid.UUID][]LineInput)
	for _, line := range lines {
		partitions[line.ShopID] = append(partitions[line.ShopID], line)
	}
	return partitions
}

func resolveReceiptEmail(input Input) string {
	if input.GuestEmail != nil {
		return strings.TrimSpace(*input.GuestEmail)
	}
	return strings.TrimSpace(input.ShippingAddr.Email)
}

func newOrderNumber() string {
	return "SO-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
