package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/pkg/db/models"
	"github.com/haleycommerce/storefront-backend/pkg/enums"
)

// LedgerRepository defines persistence for the email delivery ledger. The
// unique dedupe key plus the claim update are what make concurrent triggers
// safe without application-level locks.
type LedgerRepository interface {
	FindByDedupeKey(ctx context.Context, key string) (*models.EmailDelivery, error)
	Create(ctx context.Context, row *models.EmailDelivery) error
	Claim(ctx context.Context, id uuid.UUID, maxAttempts int) (bool, error)
	RecordAttempt(ctx context.Context, id uuid.UUID) (int, error)
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string, terminal bool) error
	MarkSkipped(ctx context.Context, id uuid.UUID) error
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository builds the delivery ledger repository.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) FindByDedupeKey(ctx context.Context, key string) (*models.EmailDelivery, error) {
	var row models.EmailDelivery
	if err := r.db.WithContext(ctx).Where("dedupe_key = ?", key).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ledgerRepository) Create(ctx context.Context, row *models.EmailDelivery) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// Claim moves a pending or retryable row into processing. Exactly one of
// any set of concurrent callers wins; the rest see zero rows affected.
func (r *ledgerRepository) Claim(ctx context.Context, id uuid.UUID, maxAttempts int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EmailDelivery{}).
		Where("id = ? AND status IN ? AND attempts < ?",
			id,
			[]enums.EmailDeliveryStatus{enums.EmailDeliveryStatusPending, enums.EmailDeliveryStatusFailed},
			maxAttempts,
		).
		Update("status", enums.EmailDeliveryStatusProcessing)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RecordAttempt increments the attempt counter right before a transport
// call and clears the previous error. Returns the new attempt count.
func (r *ledgerRepository) RecordAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).
		Model(&models.EmailDelivery{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": now,
			"last_error":      nil,
		}).Error
	if err != nil {
		return 0, err
	}

	var row models.EmailDelivery
	if err := r.db.WithContext(ctx).Select("attempts").Where("id = ?", id).First(&row).Error; err != nil {
		return 0, err
	}
	return row.Attempts, nil
}

func (r *ledgerRepository) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":  enums.EmailDeliveryStatusSent,
		"sent_at": now,
	}
	if providerMessageID != "" {
		updates["provider_message_id"] = providerMessageID
	}
	return r.db.WithContext(ctx).
		Model(&models.EmailDelivery{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *ledgerRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string, terminal bool) error {
	updates := map[string]any{
		"last_error": message,
	}
	if terminal {
		updates["status"] = enums.EmailDeliveryStatusFailed
	}
	return r.db.WithContext(ctx).
		Model(&models.EmailDelivery{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *ledgerRepository) MarkSkipped(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.EmailDelivery{}).
		Where("id = ?", id).
		Update("status", enums.EmailDeliveryStatusSkipped).Error
}
