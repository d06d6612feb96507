package repository

import (
	"context"
	"time"

	"keepr-backend/internal/purchase/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseRepository holds the deadline query used by expiry checks and the upsert used by mailbox sync
type PurchaseRepository interface {
	// UpsertFromEmail stores an email-derived purchase keyed on (user_id, source_message_id)
	// and reports whether the row is new.
	UpsertFromEmail(ctx context.Context, p *domain.Purchase) (bool, error)
	// FindWithUpcomingDeadlines returns purchases whose return or warranty deadline is on or after since
	FindWithUpcomingDeadlines(ctx context.Context, userID string, since time.Time) ([]domain.Purchase, error)
}

type purchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) UpsertFromEmail(ctx context.Context, p *domain.Purchase) (bool, error) {
	db := r.db.WithContext(ctx)
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Source = domain.SourceEmail

	// INSERT ... ON CONFLICT (user_id, source_message_id) DO NOTHING; concurrent syncs of the same
	// message resolve to one insert and one update instead of a unique violation
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "source_message_id"}},
		DoNothing: true,
	}).Create(p)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	err := db.Model(&domain.Purchase{}).
		Where("user_id = ? AND source_message_id = ?", p.UserID, p.SourceMessageID).
		Updates(map[string]interface{}{
			"product_name":        p.ProductName,
			"merchant":            p.Merchant,
			"price":               p.Price,
			"currency":            p.Currency,
			"purchased_at":        p.PurchasedAt,
			"return_deadline":     p.ReturnDeadline,
			"warranty_expires_at": p.WarrantyExpiresAt,
			"updated_at":          time.Now(),
		}).Error
	if err != nil {
		return false, err
	}

	var existing domain.Purchase
	if err := db.Where("user_id = ? AND source_message_id = ?", p.UserID, p.SourceMessageID).First(&existing).Error; err != nil {
		return false, err
	}
	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	return false, nil
}

func (r *purchaseRepository) FindWithUpcomingDeadlines(ctx context.Context, userID string, since time.Time) ([]domain.Purchase, error) {
	var purchases []domain.Purchase
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("(return_deadline >= ? OR warranty_expires_at >= ?)", since, since).
		Find(&purchases).Error
	return purchases, err
}
