package usecase

import (
	"context"
	"fmt"
	"math"

	authrepo "keepr-backend/internal/auth/repository"
	"keepr-backend/internal/notification/domain"
	"keepr-backend/internal/notification/repository"
	"keepr-backend/pkg/apperror"
	"keepr-backend/pkg/fcm"
	"keepr-backend/pkg/worker"

	"go.uber.org/zap"
)

const maxThresholdDays = 365

// NotificationUsecase turns facts into alerts and serves the user's inbox and preferences
type NotificationUsecase interface {
	List(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Notification, int64, error)
	// MarkRead marks ids read, or every notification of the user when all is set
	MarkRead(ctx context.Context, userID string, ids []string, all bool) (int64, error)
	// Delete removes one notification, or all of the user's when all is set
	Delete(ctx context.Context, userID, id string, all bool) (int64, error)
	GetSettings(ctx context.Context, userID string) (*domain.NotificationSettings, error)
	UpdateSettings(ctx context.Context, userID string, partial map[string]interface{}) (*domain.NotificationSettings, error)
	// Raise stores a notification for fact if the user's settings allow it and the fact was not raised before.
	// It reports whether a notification was created.
	Raise(ctx context.Context, userID string, fact domain.Fact) (bool, error)
}

// Pusher delivers a notification to devices and returns the tokens that were rejected
type Pusher interface {
	SendToDevices(ctx context.Context, tokens []string, n fcm.NotificationData) ([]string, error)
}

// PushDelivery sends created notifications to the user's registered devices
type PushDelivery struct {
	Pusher Pusher
	Tokens authrepo.FCMTokenRepository
}

type notificationUsecase struct {
	notifications repository.NotificationRepository
	settings      repository.SettingsRepository
	runner        *worker.Runner
	push          *PushDelivery
	logger        *zap.Logger
}

// NewNotificationUsecase creates the engine. push may be nil when FCM is not configured.
func NewNotificationUsecase(
	notifications repository.NotificationRepository,
	settings repository.SettingsRepository,
	runner *worker.Runner,
	push *PushDelivery,
	logger *zap.Logger,
) NotificationUsecase {
	return &notificationUsecase{
		notifications: notifications,
		settings:      settings,
		runner:        runner,
		push:          push,
		logger:        logger.Named("notification"),
	}
}

func (u *notificationUsecase) List(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Notification, int64, error) {
	items, err := u.notifications.List(ctx, userID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := u.notifications.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("count unread: %w", err)
	}
	return items, unread, nil
}

func (u *notificationUsecase) MarkRead(ctx context.Context, userID string, ids []string, all bool) (int64, error) {
	if all {
		return u.notifications.MarkAllRead(ctx, userID)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: notification_ids or mark_all is required", apperror.ErrInvalidInput)
	}
	return u.notifications.MarkRead(ctx, userID, ids)
}

func (u *notificationUsecase) Delete(ctx context.Context, userID, id string, all bool) (int64, error) {
	if all {
		return u.notifications.DeleteAll(ctx, userID)
	}
	if id == "" {
		return 0, fmt.Errorf("%w: id or all is required", apperror.ErrInvalidInput)
	}
	return u.notifications.Delete(ctx, userID, id)
}

func (u *notificationUsecase) GetSettings(ctx context.Context, userID string) (*domain.NotificationSettings, error) {
	settings, err := u.settings.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings != nil {
		return settings, nil
	}

	if err := u.settings.CreateIfMissing(ctx, domain.DefaultSettings(userID)); err != nil {
		return nil, fmt.Errorf("create settings: %w", err)
	}
	// Re-read: a concurrent request may have created the row first
	settings, err = u.settings.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings == nil {
		return domain.DefaultSettings(userID), nil
	}
	return settings, nil
}

func (u *notificationUsecase) UpdateSettings(ctx context.Context, userID string, partial map[string]interface{}) (*domain.NotificationSettings, error) {
	fields, err := filterSettings(partial)
	if err != nil {
		return nil, err
	}

	if err := u.settings.CreateIfMissing(ctx, domain.DefaultSettings(userID)); err != nil {
		return nil, fmt.Errorf("create settings: %w", err)
	}
	if err := u.settings.Update(ctx, userID, fields); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return u.GetSettings(ctx, userID)
}

// filterSettings keeps the recognized keys and checks their types
func filterSettings(partial map[string]interface{}) (map[string]interface{}, error) {
	fields := make(map[string]interface{})
	for _, key := range domain.SettingsFields {
		value, ok := partial[key]
		if !ok {
			continue
		}

		switch key {
		case "warranty_expiring_days", "return_deadline_days":
			days, ok := toDays(value)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a whole number between 0 and %d", apperror.ErrInvalidInput, key, maxThresholdDays)
			}
			fields[key] = days
		default:
			flag, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a boolean", apperror.ErrInvalidInput, key)
			}
			fields[key] = flag
		}
	}

	if len(fields) == 0 {
		return nil, apperror.ErrNoValidFields
	}
	return fields, nil
}

func toDays(v interface{}) (int, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	default:
		return 0, false
	}
	if f != math.Trunc(f) || f < 0 || f > maxThresholdDays {
		return 0, false
	}
	return int(f), true
}

func (u *notificationUsecase) Raise(ctx context.Context, userID string, fact domain.Fact) (bool, error) {
	settings, err := u.GetSettings(ctx, userID)
	if err != nil {
		return false, err
	}
	if !settings.Allows(fact) {
		return false, nil
	}

	n := &domain.Notification{
		UserID:    userID,
		Type:      fact.Type,
		Title:     fact.Title,
		Message:   fact.Message,
		ActionURL: fact.ActionURL,
		EntityID:  fact.EntityID,
		DedupKey:  fact.DedupKey(),
	}
	created, err := u.notifications.Insert(ctx, n)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	if !created {
		return false, nil
	}

	u.logger.Debug("notification created",
		zap.String("user_id", userID),
		zap.String("type", string(fact.Type)),
		zap.String("notification_id", n.ID))
	u.deliver(userID, n)
	return true, nil
}

func (u *notificationUsecase) deliver(userID string, n *domain.Notification) {
	if u.push == nil || u.runner == nil {
		return
	}

	u.runner.Go("push:"+n.ID, func(ctx context.Context) error {
		devices, err := u.push.Tokens.GetTokensByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("load device tokens: %w", err)
		}
		if len(devices) == 0 {
			return nil
		}

		tokens := make([]string, 0, len(devices))
		for _, d := range devices {
			tokens = append(tokens, d.Token)
		}

		failed, err := u.push.Pusher.SendToDevices(ctx, tokens, fcm.NotificationData{
			Title:       n.Title,
			Body:        n.Message,
			ClickAction: n.ActionURL,
			Data: map[string]string{
				"notification_id": n.ID,
				"type":            string(n.Type),
			},
		})
		if len(failed) > 0 {
			if delErr := u.push.Tokens.DeleteTokens(ctx, failed); delErr != nil {
				u.logger.Warn("failed to prune device tokens", zap.String("user_id", userID), zap.Error(delErr))
			}
		}
		return err
	})
}
