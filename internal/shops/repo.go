package shops

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/pkg/db/models"
)

// Repository handles shop persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to shop operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new shop row.
func (r *Repository) Create(ctx context.Context, shop *models.Shop) (*models.Shop, error) {
	if shop == nil {
		return nil, fmt.Errorf("shop is required")
	}
	if err := r.db.WithContext(ctx).Create(shop).Error; err != nil {
		return nil, err
	}
	return shop, nil
}

// FindByID loads a shop by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

// FindBySlug loads a shop by its public slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

// FindByStripeAccountID resolves the shop owning a connected account.
func (r *Repository) FindByStripeAccountID(ctx context.Context, accountID string) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Where("stripe_account_id = ?", accountID).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

// FindByIDs loads the given shops in one query.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Shop, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var shops []models.Shop
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&shops).Error; err != nil {
		return nil, err
	}
	return shops, nil
}

// Update saves the provided shop.
func (r *Repository) Update(ctx context.Context, shop *models.Shop) error {
	if shop == nil {
		return fmt.Errorf("shop is required")
	}
	return r.db.WithContext(ctx).Save(shop).Error
}

// FindByIDWithTx loads a shop using the provided transaction.
func (r *Repository) FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Shop, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var shop models.Shop
	if err := tx.First(&shop, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

// FindByStripeAccountIDWithTx resolves a shop inside a transaction.
func (r *Repository) FindByStripeAccountIDWithTx(tx *gorm.DB, accountID string) (*models.Shop, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var shop models.Shop
	if err := tx.First(&shop, "stripe_account_id = ?", accountID).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

// UpdateWithTx persists the shop using the provided transaction.
func (r *Repository) UpdateWithTx(tx *gorm.DB, shop *models.Shop) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if shop == nil {
		return fmt.Errorf("shop is required")
	}
	return tx.Save(shop).Error
}
