package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/pkg/db/models"
	"github.com/haleycommerce/storefront-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *repository) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrdersByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Payments").
		Where("id IN ?", ids).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) FindOrdersByPaymentRef(ctx context.Context, ref string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Payments").
		Where("payment_ref = ?", ref).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) FindPaymentsByIntentID(ctx context.Context, intentID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("stripe_intent_id = ?", intentID).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// ConfirmOrders transitions the given orders to confirmed/paid. The update
// is a no-op for orders already confirmed, which keeps event redelivery
// idempotent.
func (r *repository) ConfirmOrders(ctx context.Context, orderIDs []uuid.UUID) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", orderIDs).
		Updates(map[string]any{
			"status":         enums.OrderStatusConfirmed,
			"payment_status": enums.OrderPaymentStatusPaid,
		}).Error
}

// MarkPaymentsSucceeded settles every payment row carrying the intent id.
func (r *repository) MarkPaymentsSucceeded(ctx context.Context, intentID string, transactionID *string) error {
	updates := map[string]any{
		"status": enums.PaymentStatusSucceeded,
	}
	if transactionID != nil {
		updates["transaction_id"] = *transactionID
	}
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("stripe_intent_id = ?", intentID).
		Updates(updates).Error
}
