package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/pkg/db/models"
	"github.com/haleycommerce/storefront-backend/pkg/enums"
	"github.com/haleycommerce/storefront-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL,
  shop_id TEXT NOT NULL,
  customer_id TEXT,
  guest_email TEXT,
  currency TEXT NOT NULL DEFAULT 'usd',
  subtotal_cents INTEGER NOT NULL,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  payment_ref TEXT,
  shipping_address TEXT,
  billing_address TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	orderItems := `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT,
  name TEXT NOT NULL,
  sku TEXT NOT NULL,
  image_url TEXT,
  unit_price_cents INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	payments := `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  stripe_intent_id TEXT NOT NULL UNIQUE,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  status TEXT NOT NULL DEFAULT 'pending',
  application_fee_cents INTEGER NOT NULL DEFAULT 0,
  connected_account_id TEXT NOT NULL,
  transaction_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(orderItems).Error)
	require.NoError(t, db.Exec(payments).Error)
	return db
}

func createTestOrder(t *testing.T, db *gorm.DB, number string, ref string, totalCents int64) *models.Order {
	t.Helper()

	now := time.Now().UTC()
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   number,
		ShopID:        uuid.New(),
		Currency:      enums.CurrencyUSD,
		SubtotalCents: totalCents,
		TotalCents:    totalCents,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.OrderPaymentStatusPending,
		ShippingAddr: types.Address{
			Name:       "Jordan Doe",
			Line1:      "123 Test Ave",
			City:       "Norman",
			State:      "OK",
			PostalCode: "73072",
			Country:    "US",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ref != "" {
		order.PaymentRef = &ref
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func createTestPayment(t *testing.T, db *gorm.DB, order *models.Order, intentID string, amountCents, feeCents int64) *models.Payment {
	t.Helper()

	payment := &models.Payment{
		ID:                  uuid.New(),
		OrderID:             order.ID,
		StripeIntentID:      intentID,
		AmountCents:         amountCents,
		Currency:            enums.CurrencyUSD,
		Status:              enums.PaymentStatusPending,
		ApplicationFeeCents: feeCents,
		ConnectedAccountID:  "acct_test",
	}
	require.NoError(t, db.Create(payment).Error)
	return payment
}

func TestRepositoryFindOrdersByPaymentRef(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	ref := "corr_" + uuid.NewString()
	first := createTestOrder(t, db, "SO-1001-"+uuid.NewString(), ref, 4000)
	second := createTestOrder(t, db, "SO-1002-"+uuid.NewString(), ref, 6000)
	createTestOrder(t, db, "SO-1003-"+uuid.NewString(), "corr_other_"+uuid.NewString(), 500)

	got, err := repo.FindOrdersByPaymentRef(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []uuid.UUID{got[0].ID, got[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}

func TestRepositoryConfirmOrdersIsIdempotent(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	order := createTestOrder(t, db, "SO-2001-"+uuid.NewString(), "", 4000)
	intentID := "pi_" + uuid.NewString()
	createTestPayment(t, db, order, intentID, 4000, 400)

	txn := "txn_123"
	for i := 0; i < 2; i++ {
		require.NoError(t, repo.ConfirmOrders(context.Background(), []uuid.UUID{order.ID}))
		require.NoError(t, repo.MarkPaymentsSucceeded(context.Background(), intentID, &txn))
	}

	reloaded, err := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, reloaded.Status)
	assert.Equal(t, enums.OrderPaymentStatusPaid, reloaded.PaymentStatus)

	payments, err := repo.FindPaymentsByIntentID(context.Background(), intentID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, enums.PaymentStatusSucceeded, payments[0].Status)
	require.NotNil(t, payments[0].TransactionID)
	assert.Equal(t, txn, *payments[0].TransactionID)
}

func TestRepositoryFindPaymentsByIntentIDMissesCleanly(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	payments, err := repo.FindPaymentsByIntentID(context.Background(), "pi_unknown_"+uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestRepositoryCreateOrderWithItems(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	order := createTestOrder(t, db, "SO-3001-"+uuid.NewString(), "", 2000)
	items := []models.OrderItem{
		{
			ID:             uuid.New(),
			OrderID:        order.ID,
			Name:           "Ceramic Mug",
			SKU:            "MUG-01",
			UnitPriceCents: 1000,
			Qty:            2,
			TotalCents:     2000,
		},
	}
	require.NoError(t, repo.CreateOrderItems(context.Background(), items))

	reloaded, err := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, "Ceramic Mug", reloaded.Items[0].Name)
}
