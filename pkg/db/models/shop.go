package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Shop represents the canonical tenant model. The Stripe connect fields are
// a local cache of provider state; the account.updated webhook and the
// status poll are the only writers and always copy what the provider
// reports.
type Shop struct {
	ID                    uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Slug                  string          `gorm:"column:slug;not null;uniqueIndex"`
	Name                  string          `gorm:"column:name;not null"`
	ContactEmail          string          `gorm:"column:contact_email;not null"`
	StripeAccountID       *string         `gorm:"column:stripe_account_id;uniqueIndex"`
	OnboardingComplete    bool            `gorm:"column:onboarding_complete;not null;default:false"`
	ChargesEnabled        bool            `gorm:"column:charges_enabled;not null;default:false"`
	PayoutsEnabled        bool            `gorm:"column:payouts_enabled;not null;default:false"`
	CommissionRatePercent decimal.Decimal `gorm:"column:commission_rate_percent;type:numeric(5,2);not null;default:0"`
	OwnerID               uuid.UUID       `gorm:"column:owner_id;type:uuid;not null"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
