package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/pkg/config"
	"github.com/haleycommerce/storefront-backend/pkg/db/models"
	"github.com/haleycommerce/storefront-backend/pkg/enums"
	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
	"github.com/haleycommerce/storefront-backend/pkg/logger"
	"github.com/haleycommerce/storefront-backend/pkg/mail"
	"github.com/haleycommerce/storefront-backend/pkg/metrics"
)

// Outcome is the terminal result of one delivery trigger.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeAlreadySent Outcome = "already_sent"
	OutcomeFailed      Outcome = "failed"
)

type orderLoader interface {
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type customerLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

type shopLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error)
}

// Engine guarantees at-most-once email delivery on top of at-least-once
// triggers. The ledger row's unique dedupe key is the serialization point;
// no in-process locking is involved, so the guarantee holds across
// restarts and multiple server instances.
type Engine struct {
	ledger    LedgerRepository
	orders    orderLoader
	customers customerLoader
	shops     shopLoader
	transport mail.Transport
	metrics   *metrics.PipelineMetrics
	logg      *logger.Logger

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewEngine builds the delivery engine.
func NewEngine(
	ledger LedgerRepository,
	orders orderLoader,
	customers customerLoader,
	shops shopLoader,
	transport mail.Transport,
	cfg config.MailConfig,
	pm *metrics.PipelineMetrics,
	logg *logger.Logger,
) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order loader required")
	}
	if customers == nil {
		return nil, fmt.Errorf("customer loader required")
	}
	if shops == nil {
		return nil, fmt.Errorf("shop loader required")
	}
	if transport == nil {
		return nil, fmt.Errorf("mail transport required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 250 * time.Millisecond
	}
	backoffCap := cfg.BackoffCap
	if backoffCap <= 0 {
		backoffCap = 2 * time.Second
	}
	return &Engine{
		ledger:      ledger,
		orders:      orders,
		customers:   customers,
		shops:       shops,
		transport:   transport,
		metrics:     pm,
		logg:        logg,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		sleep:       sleepWithContext,
	}, nil
}

// DedupeKey derives the deterministic ledger key for one logical email.
func DedupeKey(emailType enums.EmailType, orderID uuid.UUID, recipient string) string {
	return fmt.Sprintf("%s:%s:%s", emailType, orderID, strings.ToLower(strings.TrimSpace(recipient)))
}

// SendOrderConfirmation delivers the customer-facing confirmation for one
// order. Safe to call any number of times, concurrently, for the same
// order: at most one transport call succeeds.
func (e *Engine) SendOrderConfirmation(ctx context.Context, orderID uuid.UUID) (Outcome, error) {
	order, err := e.orders.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeFailed, pkgerrors.New(pkgerrors.CodeNotFound, "order not found: "+orderID.String())
		}
		return OutcomeFailed, err
	}

	var customer *models.Customer
	if order.CustomerID != nil {
		customer, err = e.customers.FindByID(ctx, *order.CustomerID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeFailed, err
		}
	}

	recipient := resolveCustomerRecipient(order, customer)
	if recipient == "" {
		return OutcomeFailed, pkgerrors.New(pkgerrors.CodeValidation, "no recipient resolvable for order "+orderID.String())
	}

	optedOut := customer != nil && customer.OrderEmailsOptOut
	msg := e.buildConfirmationMessage(order, customer, recipient)
	return e.deliver(ctx, enums.EmailTypeOrderConfirmation, order, recipient, optedOut, msg)
}

// SendVendorNewOrder delivers the vendor-facing "new order" email through
// the same ledger, so webhook redelivery cannot double-send it either.
func (e *Engine) SendVendorNewOrder(ctx context.Context, orderID uuid.UUID) (Outcome, error) {
	order, err := e.orders.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeFailed, pkgerrors.New(pkgerrors.CodeNotFound, "order not found: "+orderID.String())
		}
		return OutcomeFailed, err
	}

	shop, err := e.shops.FindByID(ctx, order.ShopID)
	if err != nil {
		return OutcomeFailed, err
	}
	recipient := strings.TrimSpace(shop.ContactEmail)
	if recipient == "" {
		return OutcomeFailed, pkgerrors.New(pkgerrors.CodeValidation, "shop has no contact email: "+shop.Slug)
	}

	msg := e.buildVendorMessage(order, shop, recipient)
	return e.deliver(ctx, enums.EmailTypeVendorNewOrder, order, recipient, false, msg)
}

func (e *Engine) deliver(ctx context.Context, emailType enums.EmailType, order *models.Order, recipient string, optedOut bool, msg mail.Message) (Outcome, error) {
	started := time.Now()
	outcome, err := e.deliverOnce(ctx, emailType, order, recipient, optedOut, msg)
	e.metrics.IncDeliveryOutcome(string(emailType), string(outcome))
	e.metrics.ObserveDeliveryDuration(string(emailType), time.Since(started))
	return outcome, err
}

func (e *Engine) deliverOnce(ctx context.Context, emailType enums.EmailType, order *models.Order, recipient string, optedOut bool, msg mail.Message) (Outcome, error) {
	row, err := e.findOrCreateRow(ctx, emailType, order, recipient)
	if err != nil {
		return OutcomeFailed, err
	}

	switch row.Status {
	case enums.EmailDeliveryStatusSent:
		return OutcomeAlreadySent, nil
	case enums.EmailDeliveryStatusSkipped:
		return OutcomeSkipped, nil
	case enums.EmailDeliveryStatusFailed:
		if row.Attempts >= e.maxAttempts {
			return OutcomeFailed, nil
		}
	}

	claimed, err := e.ledger.Claim(ctx, row.ID, e.maxAttempts)
	if err != nil {
		return OutcomeFailed, err
	}
	if !claimed {
		return e.outcomeAfterLostClaim(ctx, row.DedupeKey)
	}

	if optedOut {
		if err := e.ledger.MarkSkipped(ctx, row.ID); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeSkipped, nil
	}

	delay := time.Duration(0)
	for {
		if delay > 0 {
			if err := e.sleep(ctx, delay); err != nil {
				return OutcomeFailed, err
			}
		}

		attempts, err := e.ledger.RecordAttempt(ctx, row.ID)
		if err != nil {
			return OutcomeFailed, err
		}

		result, sendErr := e.transport.Send(ctx, msg)
		if sendErr == nil {
			providerID := ""
			if result != nil {
				providerID = result.ProviderMessageID
			}
			if err := e.ledger.MarkSent(ctx, row.ID, providerID); err != nil {
				return OutcomeFailed, err
			}
			return OutcomeSent, nil
		}

		terminal := attempts >= e.maxAttempts
		if err := e.ledger.MarkFailed(ctx, row.ID, sendErr.Error(), terminal); err != nil {
			return OutcomeFailed, err
		}
		if e.logg != nil {
			logCtx := e.logg.WithOrderID(ctx, order.ID.String())
			e.logg.Warn(logCtx, fmt.Sprintf("email attempt %d/%d failed: %v", attempts, e.maxAttempts, sendErr))
		}
		if terminal {
			return OutcomeFailed, nil
		}

		if delay == 0 {
			delay = e.backoffBase
		} else {
			delay *= 2
		}
		if delay > e.backoffCap {
			delay = e.backoffCap
		}
	}
}

func (e *Engine) findOrCreateRow(ctx context.Context, emailType enums.EmailType, order *models.Order, recipient string) (*models.EmailDelivery, error) {
	key := DedupeKey(emailType, order.ID, recipient)

	row, err := e.ledger.FindByDedupeKey(ctx, key)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &models.EmailDelivery{
		DedupeKey: key,
		Type:      emailType,
		Recipient: recipient,
		OrderID:   order.ID,
		Status:    enums.EmailDeliveryStatusPending,
	}
	if createErr := e.ledger.Create(ctx, fresh); createErr != nil {
		if pkgerrors.IsUniqueViolation(createErr) {
			// a concurrent trigger inserted first; use its row
			return e.ledger.FindByDedupeKey(ctx, key)
		}
		return nil, createErr
	}
	return fresh, nil
}

func (e *Engine) outcomeAfterLostClaim(ctx context.Context, key string) (Outcome, error) {
	row, err := e.ledger.FindByDedupeKey(ctx, key)
	if err != nil {
		return OutcomeFailed, err
	}
	switch row.Status {
	case enums.EmailDeliveryStatusSkipped:
		return OutcomeSkipped, nil
	case enums.EmailDeliveryStatusFailed:
		return OutcomeFailed, nil
	default:
		// sent, or a peer holds the in-flight claim
		return OutcomeAlreadySent, nil
	}
}

func resolveCustomerRecipient(order *models.Order, customer *models.Customer) string {
	if customer != nil && strings.TrimSpace(customer.Email) != "" {
		return strings.TrimSpace(customer.Email)
	}
	if order.GuestEmail != nil && strings.TrimSpace(*order.GuestEmail) != "" {
		return strings.TrimSpace(*order.GuestEmail)
	}
	return strings.TrimSpace(order.ShippingAddr.Email)
}

func (e *Engine) buildConfirmationMessage(order *models.Order, customer *models.Customer, recipient string) mail.Message {
	name := order.ShippingAddr.Name
	if customer != nil && customer.FirstName != "" {
		name = strings.TrimSpace(customer.FirstName + " " + customer.LastName)
	}
	total := formatCents(order.TotalCents, order.Currency)
	return mail.Message{
		To:      recipient,
		ToName:  name,
		Subject: fmt.Sprintf("Order %s confirmed", order.OrderNumber),
		TextBody: fmt.Sprintf(
			"Thanks for your order!\n\nOrder %s has been confirmed. Total: %s.\nWe'll let you know when it ships.\n",
			order.OrderNumber, total,
		),
		HTMLBody: fmt.Sprintf(
			"<p>Thanks for your order!</p><p>Order <strong>%s</strong> has been confirmed. Total: <strong>%s</strong>.</p><p>We'll let you know when it ships.</p>",
			order.OrderNumber, total,
		),
	}
}

func (e *Engine) buildVendorMessage(order *models.Order, shop *models.Shop, recipient string) mail.Message {
	total := formatCents(order.TotalCents, order.Currency)
	return mail.Message{
		To:      recipient,
		ToName:  shop.Name,
		Subject: fmt.Sprintf("New order %s", order.OrderNumber),
		TextBody: fmt.Sprintf(
			"You have a new paid order.\n\nOrder %s, total %s.\nLog in to your dashboard to fulfill it.\n",
			order.OrderNumber, total,
		),
		HTMLBody: fmt.Sprintf(
			"<p>You have a new paid order.</p><p>Order <strong>%s</strong>, total <strong>%s</strong>.</p><p>Log in to your dashboard to fulfill it.</p>",
			order.OrderNumber, total,
		),
	}
}

func formatCents(cents int64, currency enums.Currency) string {
	return fmt.Sprintf("%s %d.%02d", strings.ToUpper(currency.String()), cents/100, cents%100)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
