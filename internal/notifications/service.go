package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haleycommerce/storefront-backend/pkg/db/models"
	"github.com/haleycommerce/storefront-backend/pkg/enums"
	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
	"github.com/haleycommerce/storefront-backend/pkg/pagination"
)

// Service defines notification list/read operations plus the insert-once
// path used by the webhook fan-out.
type Service interface {
	NotifyOrderPaid(ctx context.Context, shopID, orderID uuid.UUID, orderNumber string, totalCents int64) (bool, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, shopID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, shopID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
}

// ListParams configures pagination for notifications.
type ListParams struct {
	ShopID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo}, nil
}

// NotifyOrderPaid records the in-app "order paid" alert for a shop. The
// uniqueness on (shop, type, order) makes repeated webhook deliveries a
// no-op; the boolean reports whether this call inserted the row.
func (s *service) NotifyOrderPaid(ctx context.Context, shopID, orderID uuid.UUID, orderNumber string, totalCents int64) (bool, error) {
	if shopID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}
	if orderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	link := "/dashboard/orders/" + orderID.String()
	notification := &models.Notification{
		ShopID:  shopID,
		Type:    enums.NotificationTypeOrderAlert,
		OrderID: &orderID,
		Title:   "Order paid",
		Message: fmt.Sprintf("Order %s was paid (%d.%02d). Time to fulfill it.", orderNumber, totalCents/100, totalCents%100),
		Link:    &link,
	}
	inserted, err := s.repo.CreateOnce(ctx, notification)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order notification")
	}
	return inserted, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ShopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}

	query := listNotificationsParams{
		ShopID:     params.ShopID,
		Limit:      pagination.LimitWithBuffer(params.Limit),
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, shopID, notificationID uuid.UUID) error {
	if shopID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, shopID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, shopID uuid.UUID) (int64, error) {
	if shopID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}

	count, err := s.repo.MarkAllRead(ctx, shopID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
