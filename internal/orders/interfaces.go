package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/pkg/db/models"
)

// Repository defines persistence operations for order and payment tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrdersByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error)
	FindOrdersByPaymentRef(ctx context.Context, ref string) ([]models.Order, error)
	FindPaymentsByIntentID(ctx context.Context, intentID string) ([]models.Payment, error)
	ConfirmOrders(ctx context.Context, orderIDs []uuid.UUID) error
	MarkPaymentsSucceeded(ctx context.Context, intentID string, transactionID *string) error
}
