package stripe

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/loginlink"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
)

// DestinationChargeParams describes one per-shop charge within a checkout.
// The correlation id ties every charge of the same checkout together and is
// echoed back through intent metadata for reconciliation.
type DestinationChargeParams struct {
	AmountCents         int64
	Currency            string
	ApplicationFeeCents int64
	ConnectedAccountID  string
	CorrelationID       string
	OrderIDs            []string
	ReceiptEmail        string
}

// DestinationCharge is the subset of the provider intent the checkout flow
// needs to persist and return.
type DestinationCharge struct {
	IntentID     string
	ClientSecret string
}

// CreateDestinationCharge creates a payment intent routing funds to one
// connected account, retaining the application fee for the platform.
func (c *Client) CreateDestinationCharge(ctx context.Context, p DestinationChargeParams) (*DestinationCharge, error) {
	if p.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}
	if strings.TrimSpace(p.ConnectedAccountID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "connected account id is required")
	}
	if strings.TrimSpace(p.CorrelationID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation id is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(p.AmountCents),
		Currency:             stripe.String(p.Currency),
		ApplicationFeeAmount: stripe.Int64(p.ApplicationFeeCents),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(p.ConnectedAccountID),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("correlation_id", p.CorrelationID)
	if len(p.OrderIDs) > 0 {
		params.AddMetadata("order_ids", strings.Join(p.OrderIDs, ","))
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create destination charge")
	}
	return &DestinationCharge{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// CreateRefund refunds a payment intent, in full when amountCents is zero.
func (c *Client) CreateRefund(ctx context.Context, intentID string, amountCents int64) (*stripe.Refund, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	result, err := refund.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}
	return result, nil
}

// CreateAccount provisions an express connected account for a vendor.
func (c *Client) CreateAccount(ctx context.Context, email string) (*stripe.Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{
				Requested: stripe.Bool(true),
			},
			Transfers: &stripe.AccountCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	}
	params.Context = ctx
	acct, err := account.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create connected account")
	}
	return acct, nil
}

// GetAccount polls the provider for a connected account's current state.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*stripe.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch connected account")
	}
	return acct, nil
}

// CreateAccountLink builds a hosted onboarding link for the account.
func (c *Client) CreateAccountLink(ctx context.Context, accountID string) (*stripe.AccountLink, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		ReturnURL:  stripe.String(c.OnboardReturnURL()),
		RefreshURL: stripe.String(c.OnboardRefreshURL()),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := accountlink.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create onboarding link")
	}
	return link, nil
}

// CreateLoginLink builds an express dashboard login link for the account.
func (c *Client) CreateLoginLink(ctx context.Context, accountID string) (*stripe.LoginLink, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	params := &stripe.LoginLinkParams{
		Account: stripe.String(accountID),
	}
	params.Context = ctx
	link, err := loginlink.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create login link")
	}
	return link, nil
}

// DeleteAccount disconnects a vendor's connected account. Callers must
// ensure no payouts are pending before invoking this.
func (c *Client) DeleteAccount(ctx context.Context, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	params := &stripe.AccountParams{}
	params.Context = ctx
	if _, err := account.Del(accountID, params); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete connected account")
	}
	return nil
}
