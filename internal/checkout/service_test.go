package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/internal/orders"
	"github.com/haleycommerce/storefront-backend/pkg/db/models"
	"github.com/haleycommerce/storefront-backend/pkg/enums"
	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
	pkgstripe "github.com/haleycommerce/storefront-backend/pkg/stripe"
	"github.com/haleycommerce/storefront-backend/pkg/types"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOrdersRepo struct {
	orders   []*models.Order
	items    []models.OrderItem
	payments []*models.Payment
}

func (r *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return r }

func (r *stubOrdersRepo) CreateOrder(_ context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	r.orders = append(r.orders, order)
	return order, nil
}

func (r *stubOrdersRepo) CreateOrderItems(_ context.Context, items []models.OrderItem) error {
	r.items = append(r.items, items...)
	return nil
}

func (r *stubOrdersRepo) CreatePayment(_ context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	r.payments = append(r.payments, payment)
	return payment, nil
}

func (r *stubOrdersRepo) FindOrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	for _, order := range r.orders {
		if order.ID == id {
			return order, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOrdersRepo) FindOrdersByIDs(_ context.Context, ids []uuid.UUID) ([]models.Order, error) {
	var out []models.Order
	for _, order := range r.orders {
		for _, id := range ids {
			if order.ID == id {
				out = append(out, *order)
			}
		}
	}
	return out, nil
}

func (r *stubOrdersRepo) FindOrdersByPaymentRef(_ context.Context, ref string) ([]models.Order, error) {
	var out []models.Order
	for _, order := range r.orders {
		if order.PaymentRef != nil && *order.PaymentRef == ref {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (r *stubOrdersRepo) FindPaymentsByIntentID(_ context.Context, intentID string) ([]models.Payment, error) {
	var out []models.Payment
	for _, payment := range r.payments {
		if payment.StripeIntentID == intentID {
			out = append(out, *payment)
		}
	}
	return out, nil
}

func (r *stubOrdersRepo) ConfirmOrders(_ context.Context, orderIDs []uuid.UUID) error {
	for _, order := range r.orders {
		for _, id := range orderIDs {
			if order.ID == id {
				order.Status = enums.OrderStatusConfirmed
				order.PaymentStatus = enums.OrderPaymentStatusPaid
			}
		}
	}
	return nil
}

func (r *stubOrdersRepo) MarkPaymentsSucceeded(_ context.Context, intentID string, transactionID *string) error {
	for _, payment := range r.payments {
		if payment.StripeIntentID == intentID {
			payment.Status = enums.PaymentStatusSucceeded
			payment.TransactionID = transactionID
		}
	}
	return nil
}

type stubShopLoader struct {
	shops map[uuid.UUID]models.Shop
}

func (l *stubShopLoader) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.Shop, error) {
	var out []models.Shop
	for _, id := range ids {
		if shop, ok := l.shops[id]; ok {
			out = append(out, shop)
		}
	}
	return out, nil
}

type stubGateway struct {
	calls   []pkgstripe.DestinationChargeParams
	failOn  int
	counter int
}

func (g *stubGateway) CreateDestinationCharge(_ context.Context, p pkgstripe.DestinationChargeParams) (*pkgstripe.DestinationCharge, error) {
	g.counter++
	if g.failOn > 0 && g.counter >= g.failOn {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("gateway down"), "create destination charge")
	}
	g.calls = append(g.calls, p)
	intentID := "pi_" + uuid.NewString()
	return &pkgstripe.DestinationCharge{
		IntentID:     intentID,
		ClientSecret: intentID + "_secret",
	}, nil
}

func chargeCapableShop(name string, ratePercent int64) models.Shop {
	acct := "acct_" + uuid.NewString()
	return models.Shop{
		ID:                    uuid.New(),
		Slug:                  name,
		Name:                  name,
		ContactEmail:          name + "@example.com",
		StripeAccountID:       &acct,
		OnboardingComplete:    true,
		ChargesEnabled:        true,
		PayoutsEnabled:        true,
		CommissionRatePercent: decimal.NewFromInt(ratePercent),
		OwnerID:               uuid.New(),
	}
}

func testAddress() types.Address {
	return types.Address{
		Name:       "Jordan Doe",
		Line1:      "123 Market St",
		City:       "Tulsa",
		State:      "OK",
		PostalCode: "74104",
		Country:    "US",
		Email:      "jordan@example.com",
	}
}

func TestExecuteFansOutPerShop(t *testing.T) {
	t.Parallel()

	shopX := chargeCapableShop("shop-x", 10)
	shopY := chargeCapableShop("shop-y", 10)

	repo := &stubOrdersRepo{}
	gateway := &stubGateway{}
	loader := &stubShopLoader{shops: map[uuid.UUID]models.Shop{shopX.ID: shopX, shopY.ID: shopY}}

	svc, err := NewService(stubTxRunner{}, repo, loader, gateway, nil, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	guest := "buyer@example.com"
	result, err := svc.Execute(context.Background(), Input{
		GuestEmail: &guest,
		Currency:   enums.CurrencyUSD,
		Lines: []LineInput{
			{ShopID: shopX.ID, Name: "Candle", SKU: "CNDL-1", UnitPriceCents: 2000, Qty: 2},
			{ShopID: shopY.ID, Name: "Soap", SKU: "SOAP-1", UnitPriceCents: 3000, Qty: 2},
		},
		ShippingAddr: testAddress(),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(result.OrderIDs) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(result.OrderIDs))
	}
	if len(repo.orders) != 2 {
		t.Fatalf("expected 2 persisted orders, got %d", len(repo.orders))
	}
	if len(gateway.calls) != 2 {
		t.Fatalf("expected 2 charges, got %d", len(gateway.calls))
	}

	var orderTotal, chargeTotal int64
	for _, order := range repo.orders {
		orderTotal += order.TotalCents
		if order.PaymentRef == nil || *order.PaymentRef != result.CorrelationID {
			t.Fatal("expected every order to share the correlation id")
		}
		if order.Status != enums.OrderStatusPending {
			t.Fatalf("expected pending order, got %s", order.Status)
		}
	}
	for _, call := range gateway.calls {
		chargeTotal += call.AmountCents
		if call.CorrelationID != result.CorrelationID {
			t.Fatal("expected charges to carry the shared correlation id")
		}
	}
	if orderTotal != chargeTotal {
		t.Fatalf("order total %d != charge total %d", orderTotal, chargeTotal)
	}

	// 10% commission on 4000 and 6000
	feesByAmount := map[int64]int64{4000: 400, 6000: 600}
	if len(repo.payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(repo.payments))
	}
	for _, payment := range repo.payments {
		wantFee, ok := feesByAmount[payment.AmountCents]
		if !ok {
			t.Fatalf("unexpected payment amount %d", payment.AmountCents)
		}
		if payment.ApplicationFeeCents != wantFee {
			t.Fatalf("amount %d: expected fee %d, got %d", payment.AmountCents, wantFee, payment.ApplicationFeeCents)
		}
		if payment.VendorAmountCents() != payment.AmountCents-wantFee {
			t.Fatalf("expected derived vendor net %d, got %d", payment.AmountCents-wantFee, payment.VendorAmountCents())
		}
		if payment.Status != enums.PaymentStatusPending {
			t.Fatalf("expected pending payment, got %s", payment.Status)
		}
	}
}

func TestExecuteRejectsEmptyCart(t *testing.T) {
	t.Parallel()

	repo := &stubOrdersRepo{}
	gateway := &stubGateway{}
	loader := &stubShopLoader{shops: map[uuid.UUID]models.Shop{}}

	svc, err := NewService(stubTxRunner{}, repo, loader, gateway, nil, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	guest := "buyer@example.com"
	_, err = svc.Execute(context.Background(), Input{GuestEmail: &guest, ShippingAddr: testAddress()})
	if err == nil {
		t.Fatal("expected error for empty cart")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.orders) != 0 || len(gateway.calls) != 0 {
		t.Fatal("expected no state mutation for rejected cart")
	}
}

func TestExecuteRejectsNonChargeCapableShop(t *testing.T) {
	t.Parallel()

	shop := chargeCapableShop("shop-off", 10)
	shop.ChargesEnabled = false

	repo := &stubOrdersRepo{}
	gateway := &stubGateway{}
	loader := &stubShopLoader{shops: map[uuid.UUID]models.Shop{shop.ID: shop}}

	svc, err := NewService(stubTxRunner{}, repo, loader, gateway, nil, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	guest := "buyer@example.com"
	_, err = svc.Execute(context.Background(), Input{
		GuestEmail:   &guest,
		Lines:        []LineInput{{ShopID: shop.ID, Name: "Candle", SKU: "CNDL-1", UnitPriceCents: 2000, Qty: 1}},
		ShippingAddr: testAddress(),
	})
	if err == nil {
		t.Fatal("expected error for non-charge-capable shop")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.orders) != 0 || len(gateway.calls) != 0 {
		t.Fatal("expected no orders or charges for rejected checkout")
	}
}

func TestExecuteGatewayFailureLeavesOrdersPending(t *testing.T) {
	t.Parallel()

	shop := chargeCapableShop("shop-z", 10)

	repo := &stubOrdersRepo{}
	gateway := &stubGateway{failOn: 1}
	loader := &stubShopLoader{shops: map[uuid.UUID]models.Shop{shop.ID: shop}}

	svc, err := NewService(stubTxRunner{}, repo, loader, gateway, nil, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	guest := "buyer@example.com"
	_, err = svc.Execute(context.Background(), Input{
		GuestEmail:   &guest,
		Lines:        []LineInput{{ShopID: shop.ID, Name: "Candle", SKU: "CNDL-1", UnitPriceCents: 2000, Qty: 1}},
		ShippingAddr: testAddress(),
	})
	if err == nil {
		t.Fatal("expected gateway error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}

	if len(repo.orders) != 1 {
		t.Fatalf("expected persisted order to remain, got %d", len(repo.orders))
	}
	if repo.orders[0].Status != enums.OrderStatusPending {
		t.Fatalf("expected order to stay pending, got %s", repo.orders[0].Status)
	}
	if len(repo.payments) != 0 {
		t.Fatal("expected no payment row for failed charge")
	}
}
