package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/haleycommerce/storefront-backend/api/responses"
	"github.com/haleycommerce/storefront-backend/api/validators"
	checkoutsvc "github.com/haleycommerce/storefront-backend/internal/checkout"
	"github.com/haleycommerce/storefront-backend/pkg/enums"
	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
	"github.com/haleycommerce/storefront-backend/pkg/logger"
	"github.com/haleycommerce/storefront-backend/pkg/types"
)

// Checkout accepts a cart submission and fans it out into per-shop orders
// and charges.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

type checkoutRequest struct {
	CustomerID      *uuid.UUID         `json:"customer_id,omitempty" validate:"omitempty,uuid4"`
	GuestEmail      *string            `json:"guest_email,omitempty" validate:"omitempty,email"`
	Currency        string             `json:"currency" validate:"required,oneof=usd eur gbp"`
	Lines           []checkoutLine     `json:"lines" validate:"required,min=1,dive"`
	ShippingAddress checkoutAddress    `json:"shipping_address" validate:"required"`
	BillingAddress  *checkoutAddress   `json:"billing_address,omitempty"`
	ShippingMethod  string             `json:"shipping_method,omitempty"`
	CouponCodes     map[string]string  `json:"coupon_codes,omitempty"`
}

type checkoutLine struct {
	ShopID         uuid.UUID  `json:"shop_id" validate:"required,uuid4"`
	ProductID      *uuid.UUID `json:"product_id,omitempty" validate:"omitempty,uuid4"`
	Name           string     `json:"name" validate:"required"`
	SKU            string     `json:"sku,omitempty"`
	ImageURL       *string    `json:"image_url,omitempty"`
	UnitPriceCents int64      `json:"unit_price_cents" validate:"min=0"`
	Qty            int        `json:"qty" validate:"required,min=1"`
}

type checkoutAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty"`
}

func (a checkoutAddress) toAddress() types.Address {
	return types.Address{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Email:      a.Email,
		Phone:      a.Phone,
	}
}

func (p checkoutRequest) toInput() checkoutsvc.Input {
	lines := make([]checkoutsvc.LineInput, 0, len(p.Lines))
	for _, line := range p.Lines {
		lines = append(lines, checkoutsvc.LineInput{
			ShopID:         line.ShopID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			SKU:            line.SKU,
			ImageURL:       line.ImageURL,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            line.Qty,
		})
	}

	billing := p.ShippingAddress
	if p.BillingAddress != nil {
		billing = *p.BillingAddress
	}

	coupons := map[uuid.UUID]string{}
	for shopID, code := range p.CouponCodes {
		id, err := uuid.Parse(shopID)
		if err != nil {
			continue
		}
		coupons[id] = code
	}

	return checkoutsvc.Input{
		CustomerID:     p.CustomerID,
		GuestEmail:     p.GuestEmail,
		Currency:       enums.Currency(p.Currency),
		Lines:          lines,
		ShippingAddr:   p.ShippingAddress.toAddress(),
		BillingAddr:    billing.toAddress(),
		ShippingMethod: p.ShippingMethod,
		CouponCodes:    coupons,
	}
}

type checkoutResponse struct {
	CorrelationID string           `json:"correlation_id"`
	OrderIDs      []uuid.UUID      `json:"order_ids"`
	Charges       []chargeResponse `json:"charges"`
}

type chargeResponse struct {
	OrderID      uuid.UUID `json:"order_id"`
	ShopID       uuid.UUID `json:"shop_id"`
	IntentID     string    `json:"intent_id"`
	ClientSecret string    `json:"client_secret"`
}

func newCheckoutResponse(result *checkoutsvc.Result) checkoutResponse {
	if result == nil {
		return checkoutResponse{}
	}
	charges := make([]chargeResponse, 0, len(result.Charges))
	for _, charge := range result.Charges {
		charges = append(charges, chargeResponse{
			OrderID:      charge.OrderID,
			ShopID:       charge.ShopID,
			IntentID:     charge.IntentID,
			ClientSecret: charge.ClientSecret,
		})
	}
	return checkoutResponse{
		CorrelationID: result.CorrelationID,
		OrderIDs:      result.OrderIDs,
		Charges:       charges,
	}
}
