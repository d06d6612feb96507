package repository

import (
	"context"
	"errors"
	"time"

	"keepr-backend/internal/connection/domain"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConnectionRepository stores mailbox connections
type ConnectionRepository interface {
	// Upsert inserts or replaces the connection for (user_id, provider)
	Upsert(ctx context.Context, c *domain.Connection) error
	FindByUser(ctx context.Context, userID, provider string) (*domain.Connection, error)
	FindByEmailAddress(ctx context.Context, provider, email string) (*domain.Connection, error)
	ListSyncEnabled(ctx context.Context, provider string) ([]domain.Connection, error)
	UpdateTokens(ctx context.Context, id string, token *oauth2.Token) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
	// Delete removes the connection; a missing row is not an error
	Delete(ctx context.Context, userID, provider string) error
}

type connectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) Upsert(ctx context.Context, c *domain.Connection) error {
	now := time.Now()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	// INSERT ... ON CONFLICT (user_id, provider) DO UPDATE
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email_address", "access_token", "refresh_token", "token_expires_at",
			"sync_enabled", "last_sync_at", "updated_at",
		}),
	}).Create(c).Error
	if err != nil {
		return err
	}

	// Reload so the caller sees the id of the surviving row
	stored, err := r.FindByUser(ctx, c.UserID, c.Provider)
	if err != nil {
		return err
	}
	if stored != nil {
		*c = *stored
	}
	return nil
}

func (r *connectionRepository) FindByUser(ctx context.Context, userID, provider string) (*domain.Connection, error) {
	var c domain.Connection
	err := r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *connectionRepository) FindByEmailAddress(ctx context.Context, provider, email string) (*domain.Connection, error) {
	var c domain.Connection
	err := r.db.WithContext(ctx).
		Where("provider = ? AND LOWER(email_address) = LOWER(?)", provider, email).
		Order("updated_at DESC").
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *connectionRepository) ListSyncEnabled(ctx context.Context, provider string) ([]domain.Connection, error) {
	var connections []domain.Connection
	err := r.db.WithContext(ctx).
		Where("provider = ? AND sync_enabled = ?", provider, true).
		Find(&connections).Error
	return connections, err
}

func (r *connectionRepository) UpdateTokens(ctx context.Context, id string, token *oauth2.Token) error {
	fields := map[string]interface{}{
		"access_token": token.AccessToken,
		"updated_at":   time.Now(),
	}
	// Google omits the refresh token on refresh responses; keep the stored one
	if token.RefreshToken != "" {
		fields["refresh_token"] = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		fields["token_expires_at"] = token.Expiry
	}
	return r.db.WithContext(ctx).Model(&domain.Connection{}).Where("id = ?", id).Updates(fields).Error
}

func (r *connectionRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Connection{}).Where("id = ?", id).
		Updates(map[string]interface{}{"last_sync_at": at, "updated_at": time.Now()}).Error
}

func (r *connectionRepository) Delete(ctx context.Context, userID, provider string) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider).Delete(&domain.Connection{}).Error
}
