package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/internal/delivery"
	"github.com/haleycommerce/storefront-backend/internal/orders"
	"github.com/haleycommerce/storefront-backend/pkg/db/models"
	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
	"github.com/haleycommerce/storefront-backend/pkg/logger"
	"github.com/haleycommerce/storefront-backend/pkg/metrics"
)

type shopRepository interface {
	FindByStripeAccountIDWithTx(tx *gorm.DB, accountID string) (*models.Shop, error)
	UpdateWithTx(tx *gorm.DB, shop *models.Shop) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type mailEngine interface {
	SendOrderConfirmation(ctx context.Context, orderID uuid.UUID) (delivery.Outcome, error)
	SendVendorNewOrder(ctx context.Context, orderID uuid.UUID) (delivery.Outcome, error)
}

type notifier interface {
	NotifyOrderPaid(ctx context.Context, shopID, orderID uuid.UUID, orderNumber string, totalCents int64) (bool, error)
}

type ServiceParams struct {
	OrdersRepo        orders.Repository
	ShopRepo          shopRepository
	Mailer            mailEngine
	Notifier          notifier
	TransactionRunner txRunner
	Metrics           *metrics.PipelineMetrics
	Logger            *logger.Logger
}

// Service reconciles provider webhook events against local state. Settlement
// is transactional; the post-settlement fan-out is best effort and every
// failure in it is logged instead of bubbling back to the provider.
type Service struct {
	ordersRepo orders.Repository
	shopRepo   shopRepository
	mailer     mailEngine
	notifier   notifier
	txRunner   txRunner
	metrics    *metrics.PipelineMetrics
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.OrdersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.ShopRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shop repo required")
	}
	if params.Mailer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mail engine required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		ordersRepo: params.OrdersRepo,
		shopRepo:   params.ShopRepo,
		mailer:     params.Mailer,
		notifier:   params.Notifier,
		txRunner:   params.TransactionRunner,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode account event")
		}
		return s.syncAccount(ctx, string(event.Type), &acct)
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		return s.settleIntent(ctx, string(event.Type), &intent)
	default:
		s.metrics.IncWebhookEvent(string(event.Type), "ignored")
		return nil
	}
}

// syncAccount overwrites the shop's capability flags with whatever the
// provider reports. Events can arrive out of order; last write wins.
func (s *Service) syncAccount(ctx context.Context, eventType string, acct *stripe.Account) error {
	if acct == nil || acct.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		shop, err := s.shopRepo.FindByStripeAccountIDWithTx(tx, acct.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errUnknownSubject
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop by account")
		}
		shop.OnboardingComplete = acct.DetailsSubmitted
		shop.ChargesEnabled = acct.ChargesEnabled
		shop.PayoutsEnabled = acct.PayoutsEnabled
		if err := s.shopRepo.UpdateWithTx(tx, shop); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shop account state")
		}
		return nil
	})
	if errors.Is(err, errUnknownSubject) {
		s.warn(ctx, "account event matched no shop: "+acct.ID)
		s.metrics.IncWebhookDropped(eventType)
		s.metrics.IncWebhookEvent(eventType, "dropped")
		return nil
	}
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return err
	}
	s.metrics.IncWebhookEvent(eventType, "applied")
	return nil
}

// settleIntent confirms every order covered by the intent and marks its
// payments succeeded, then fans out confirmation mail and vendor alerts.
func (s *Service) settleIntent(ctx context.Context, eventType string, intent *stripe.PaymentIntent) error {
	if intent == nil || intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}

	orderIDs, err := s.resolveOrderIDs(ctx, intent)
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return err
	}
	if len(orderIDs) == 0 {
		// A retried event for a checkout we never recorded, or a
		// webhook that raced our insert and lost. Ack so the provider
		// stops resending; the retry with our rows present will land.
		s.warn(ctx, "payment intent matched no orders: "+intent.ID)
		s.metrics.IncWebhookDropped(eventType)
		s.metrics.IncWebhookEvent(eventType, "dropped")
		return nil
	}

	var transactionID *string
	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		transactionID = &intent.LatestCharge.ID
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		if err := repo.ConfirmOrders(ctx, orderIDs); err != nil {
			return err
		}
		return repo.MarkPaymentsSucceeded(ctx, intent.ID, transactionID)
	})
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return err
	}
	s.metrics.IncWebhookEvent(eventType, "applied")

	s.fanOut(ctx, orderIDs)
	return nil
}

// fanOut runs the post-settlement side effects. Each leg is isolated so one
// shop's broken contact email cannot block another shop's confirmation.
func (s *Service) fanOut(ctx context.Context, orderIDs []uuid.UUID) {
	settled, err := s.ordersRepo.FindOrdersByIDs(ctx, orderIDs)
	if err != nil {
		s.warn(ctx, "load settled orders for fan-out: "+err.Error())
		return
	}
	for i := range settled {
		order := &settled[i]
		logCtx := ctx
		if s.logg != nil {
			logCtx = s.logg.WithOrderID(ctx, order.ID.String())
		}
		if _, err := s.mailer.SendOrderConfirmation(logCtx, order.ID); err != nil {
			s.warn(logCtx, "order confirmation email: "+err.Error())
		}
		if _, err := s.mailer.SendVendorNewOrder(logCtx, order.ID); err != nil {
			s.warn(logCtx, "vendor new order email: "+err.Error())
		}
		if _, err := s.notifier.NotifyOrderPaid(logCtx, order.ShopID, order.ID, order.OrderNumber, order.TotalCents); err != nil {
			s.warn(logCtx, "order paid notification: "+err.Error())
		}
	}
}

// resolveOrderIDs prefers the metadata we stamped on the intent at checkout
// and falls back to the payments ledger when the metadata is missing.
func (s *Service) resolveOrderIDs(ctx context.Context, intent *stripe.PaymentIntent) ([]uuid.UUID, error) {
	if raw, ok := intent.Metadata["order_ids"]; ok && raw != "" {
		ids := make([]uuid.UUID, 0, 4)
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "malformed order id in intent metadata: "+part)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	payments, err := s.ordersRepo.FindPaymentsByIntentID(ctx, intent.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find payments by intent")
	}
	ids := make([]uuid.UUID, 0, len(payments))
	for _, payment := range payments {
		ids = append(ids, payment.OrderID)
	}
	return ids, nil
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(ctx, msg)
}

var errUnknownSubject = errors.New("event subject not found")
