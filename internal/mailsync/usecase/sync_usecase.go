package usecase

import (
	"context"
	"fmt"
	"time"

	conndomain "keepr-backend/internal/connection/domain"
	connrepo "keepr-backend/internal/connection/repository"
	notifdomain "keepr-backend/internal/notification/domain"
	purchasedomain "keepr-backend/internal/purchase/domain"
	purchaserepo "keepr-backend/internal/purchase/repository"
	"keepr-backend/pkg/ai"
	"keepr-backend/pkg/apperror"
	"keepr-backend/pkg/gmail"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	firstSyncLookback = 90 * 24 * time.Hour
	defaultBatchSize  = 50
)

// Mailbox is the slice of the Gmail API the sync needs
type Mailbox interface {
	// ListReceiptMessages returns the oldest limit receipts received after since, oldest first
	ListReceiptMessages(ctx context.Context, token *oauth2.Token, since time.Time, limit int, onTokenRefresh gmail.TokenUpdateFunc) (*gmail.MessageBatch, error)
	Watch(ctx context.Context, token *oauth2.Token, topicName string, onTokenRefresh gmail.TokenUpdateFunc) error
}

// Notifier receives new-purchase facts
type Notifier interface {
	Raise(ctx context.Context, userID string, fact notifdomain.Fact) (bool, error)
}

// SyncStats summarizes one SyncAccount call
type SyncStats struct {
	MessagesScanned  int `json:"messages_scanned"`
	PurchasesCreated int `json:"purchases_created"`
	// MessagesPending are newer receipts left for the next run
	MessagesPending int `json:"messages_pending"`
}

// Config tunes the sync
type Config struct {
	// WatchTopic is the full Pub/Sub topic path; empty disables mailbox watch registration
	WatchTopic string
	BatchSize  int
}

// SyncUsecase pulls receipts from a connected mailbox into purchases
type SyncUsecase struct {
	connections connrepo.ConnectionRepository
	purchases   purchaserepo.PurchaseRepository
	mailbox     Mailbox
	extractor   ai.Extractor
	notifier    Notifier
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
}

func NewSyncUsecase(
	connections connrepo.ConnectionRepository,
	purchases purchaserepo.PurchaseRepository,
	mailbox Mailbox,
	extractor ai.Extractor,
	notifier Notifier,
	cfg Config,
	logger *zap.Logger,
) *SyncUsecase {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &SyncUsecase{
		connections: connections,
		purchases:   purchases,
		mailbox:     mailbox,
		extractor:   extractor,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.Named("mailsync"),
		now:         time.Now,
	}
}

// SyncAccount scans receipts received since the last successful sync, oldest first and at most
// BatchSize per run. last_sync_at moves to the start of the run once the mailbox is drained, or just
// before the newest imported message when receipts remain. A failed run leaves it untouched.
func (s *SyncUsecase) SyncAccount(ctx context.Context, userID string) (*SyncStats, error) {
	conn, err := s.connections.FindByUser(ctx, userID, conndomain.ProviderGmail)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: no mailbox connected", apperror.ErrNotFound)
	}

	startedAt := s.now()
	onTokenRefresh := func(token *oauth2.Token) error {
		return s.connections.UpdateTokens(ctx, conn.ID, token)
	}

	if conn.LastSyncAt == nil && s.cfg.WatchTopic != "" {
		if err := s.mailbox.Watch(ctx, conn.Token(), s.cfg.WatchTopic, onTokenRefresh); err != nil {
			s.logger.Warn("failed to register mailbox watch", zap.String("user_id", userID), zap.Error(err))
		}
	}

	since := startedAt.Add(-firstSyncLookback)
	if conn.LastSyncAt != nil {
		since = *conn.LastSyncAt
	}

	batch, err := s.mailbox.ListReceiptMessages(ctx, conn.Token(), since, s.cfg.BatchSize, onTokenRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", apperror.ErrUpstream, err)
	}
	messages := batch.Messages

	stats := &SyncStats{MessagesScanned: len(messages), MessagesPending: batch.Remaining}
	var extractErrs error
	failed := 0
	for _, msg := range messages {
		created, err := s.importMessage(ctx, userID, msg)
		if err != nil {
			failed++
			extractErrs = multierr.Append(extractErrs, fmt.Errorf("message %s: %w", msg.ID, err))
			continue
		}
		stats.PurchasesCreated += created
	}

	// Every message failing points at the extractor being down; keep last_sync_at so the next run retries.
	if failed > 0 && failed == len(messages) {
		return stats, fmt.Errorf("%w: %v", apperror.ErrUpstream, extractErrs)
	}
	if extractErrs != nil {
		s.logger.Warn("skipped unreadable messages",
			zap.String("user_id", userID),
			zap.Int("failed", failed),
			zap.Error(extractErrs))
	}

	if err := s.connections.MarkSynced(ctx, conn.ID, nextCursor(since, startedAt, batch)); err != nil {
		return stats, fmt.Errorf("mark synced: %w", err)
	}

	s.logger.Info("mailbox synced",
		zap.String("user_id", userID),
		zap.Int("messages_scanned", stats.MessagesScanned),
		zap.Int("purchases_created", stats.PurchasesCreated),
		zap.Int("messages_pending", stats.MessagesPending))
	return stats, nil
}

// nextCursor is the last_sync_at after importing batch. With receipts pending it stops one second
// before the newest imported message: the mailbox query has second precision and re-importing that
// second is an idempotent upsert.
func nextCursor(since, startedAt time.Time, batch *gmail.MessageBatch) time.Time {
	if batch.Remaining == 0 {
		return startedAt
	}

	var newest time.Time
	for _, msg := range batch.Messages {
		if msg.ReceivedAt.After(newest) {
			newest = msg.ReceivedAt
		}
	}
	if newest.IsZero() {
		return since
	}
	if cursor := newest.Add(-time.Second); cursor.After(since) {
		return cursor
	}
	return newest
}

func (s *SyncUsecase) importMessage(ctx context.Context, userID string, msg *gmail.Message) (int, error) {
	extracted, err := s.extractor.ExtractPurchases(ctx, msg.Subject+"\n\n"+msg.Body)
	if err != nil {
		return 0, err
	}

	created := 0
	for i, e := range extracted {
		messageKey := fmt.Sprintf("%s#%d", msg.ID, i)
		p := &purchasedomain.Purchase{
			UserID:            userID,
			ProductName:       e.ProductName,
			Merchant:          e.Merchant,
			Price:             e.Price,
			Currency:          e.Currency,
			PurchasedAt:       e.PurchasedAt,
			ReturnDeadline:    e.ReturnDeadline,
			WarrantyExpiresAt: e.WarrantyExpiresAt,
			SourceMessageID:   &messageKey,
		}
		if p.PurchasedAt == nil && !msg.ReceivedAt.IsZero() {
			receivedAt := msg.ReceivedAt
			p.PurchasedAt = &receivedAt
		}

		isNew, err := s.purchases.UpsertFromEmail(ctx, p)
		if err != nil {
			return created, fmt.Errorf("store purchase: %w", err)
		}
		if !isNew {
			continue
		}
		created++

		if _, err := s.notifier.Raise(ctx, userID, newPurchaseFact(p)); err != nil {
			s.logger.Warn("failed to raise new purchase notification",
				zap.String("user_id", userID),
				zap.String("purchase_id", p.ID),
				zap.Error(err))
		}
	}
	return created, nil
}

func newPurchaseFact(p *purchasedomain.Purchase) notifdomain.Fact {
	message := fmt.Sprintf("%s was added from your email.", p.ProductName)
	if p.Merchant != "" {
		message = fmt.Sprintf("%s from %s was added from your email.", p.ProductName, p.Merchant)
	}
	return notifdomain.Fact{
		Type:      notifdomain.TypeNewPurchase,
		EntityID:  p.ID,
		Title:     "New purchase detected",
		Message:   message,
		ActionURL: "/purchases/" + p.ID,
	}
}
