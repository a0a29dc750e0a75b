package connect

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/pkg/db/models"
	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
	"github.com/haleycommerce/storefront-backend/pkg/logger"
)

type shopRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error)
	Update(ctx context.Context, shop *models.Shop) error
}

type accountGateway interface {
	CreateAccount(ctx context.Context, email string) (*stripe.Account, error)
	GetAccount(ctx context.Context, accountID string) (*stripe.Account, error)
	CreateAccountLink(ctx context.Context, accountID string) (*stripe.AccountLink, error)
	CreateLoginLink(ctx context.Context, accountID string) (*stripe.LoginLink, error)
	DeleteAccount(ctx context.Context, accountID string) error
}

// AccountStatus is the local view of a shop's connected account after a
// provider poll.
type AccountStatus struct {
	AccountID          string `json:"account_id"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	ChargesEnabled     bool   `json:"charges_enabled"`
	PayoutsEnabled     bool   `json:"payouts_enabled"`
}

// Service manages the vendor connected-account lifecycle. The capability
// booleans are only ever copied from provider state, via the status poll
// here or the account.updated webhook, whichever lands last.
type Service struct {
	shops   shopRepository
	gateway accountGateway
	logg    *logger.Logger
}

// NewService builds the connect lifecycle service.
func NewService(shops shopRepository, gateway accountGateway, logg *logger.Logger) (*Service, error) {
	if shops == nil {
		return nil, fmt.Errorf("shop repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("account gateway required")
	}
	return &Service{shops: shops, gateway: gateway, logg: logg}, nil
}

// CreateConnectedAccount provisions a provider account for the shop and
// stores its id. Idempotent: a shop that already has an account keeps it.
func (s *Service) CreateConnectedAccount(ctx context.Context, shopID uuid.UUID) (*AccountStatus, error) {
	shop, err := s.loadShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if shop.StripeAccountID != nil {
		return s.statusFromShop(shop), nil
	}

	acct, err := s.gateway.CreateAccount(ctx, shop.ContactEmail)
	if err != nil {
		return nil, err
	}

	shop.StripeAccountID = &acct.ID
	applyAccountState(shop, acct)
	if err := s.shops.Update(ctx, shop); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store connected account id")
	}
	return s.statusFromShop(shop), nil
}

// CreateOnboardingLink returns the hosted onboarding URL for the shop.
func (s *Service) CreateOnboardingLink(ctx context.Context, shopID uuid.UUID) (string, error) {
	shop, err := s.loadShop(ctx, shopID)
	if err != nil {
		return "", err
	}
	if shop.StripeAccountID == nil {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "shop has no connected account")
	}
	link, err := s.gateway.CreateAccountLink(ctx, *shop.StripeAccountID)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// GetAccountStatus polls the provider and refreshes the local capability
// flags from what it reports.
func (s *Service) GetAccountStatus(ctx context.Context, shopID uuid.UUID) (*AccountStatus, error) {
	shop, err := s.loadShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if shop.StripeAccountID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "shop has no connected account")
	}

	acct, err := s.gateway.GetAccount(ctx, *shop.StripeAccountID)
	if err != nil {
		return nil, err
	}

	applyAccountState(shop, acct)
	if err := s.shops.Update(ctx, shop); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh connected account state")
	}
	return s.statusFromShop(shop), nil
}

// CreateLoginLink returns an express dashboard login URL for the shop.
func (s *Service) CreateLoginLink(ctx context.Context, shopID uuid.UUID) (string, error) {
	shop, err := s.loadShop(ctx, shopID)
	if err != nil {
		return "", err
	}
	if shop.StripeAccountID == nil {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "shop has no connected account")
	}
	link, err := s.gateway.CreateLoginLink(ctx, *shop.StripeAccountID)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// DeleteConnectedAccount disconnects the shop's provider account and
// resets the local capability flags. Callers are responsible for blocking
// disconnection while payouts are pending.
func (s *Service) DeleteConnectedAccount(ctx context.Context, shopID uuid.UUID) error {
	shop, err := s.loadShop(ctx, shopID)
	if err != nil {
		return err
	}
	if shop.StripeAccountID == nil {
		return nil
	}

	if err := s.gateway.DeleteAccount(ctx, *shop.StripeAccountID); err != nil {
		return err
	}

	shop.StripeAccountID = nil
	shop.OnboardingComplete = false
	shop.ChargesEnabled = false
	shop.PayoutsEnabled = false
	if err := s.shops.Update(ctx, shop); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear connected account state")
	}

	if s.logg != nil {
		logCtx := s.logg.WithShopID(ctx, shop.ID.String())
		s.logg.Info(logCtx, "connected account disconnected")
	}
	return nil
}

func (s *Service) loadShop(ctx context.Context, shopID uuid.UUID) (*models.Shop, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}
	shop, err := s.shops.FindByID(ctx, shopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found: "+shopID.String())
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	return shop, nil
}

func (s *Service) statusFromShop(shop *models.Shop) *AccountStatus {
	status := &AccountStatus{
		OnboardingComplete: shop.OnboardingComplete,
		ChargesEnabled:     shop.ChargesEnabled,
		PayoutsEnabled:     shop.PayoutsEnabled,
	}
	if shop.StripeAccountID != nil {
		status.AccountID = *shop.StripeAccountID
	}
	return status
}

// applyAccountState copies the provider's view onto the shop. The local
// flags are a cache, never a source of truth.
func applyAccountState(shop *models.Shop, acct *stripe.Account) {
	shop.OnboardingComplete = acct.DetailsSubmitted
	shop.ChargesEnabled = acct.ChargesEnabled
	shop.PayoutsEnabled = acct.PayoutsEnabled
}
