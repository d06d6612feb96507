package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	conndomain "keepr-backend/internal/connection/domain"
	connrepo "keepr-backend/internal/connection/repository"
	notifdomain "keepr-backend/internal/notification/domain"
	purchasedomain "keepr-backend/internal/purchase/domain"
	purchaserepo "keepr-backend/internal/purchase/repository"
	"keepr-backend/pkg/ai"
	"keepr-backend/pkg/apperror"
	"keepr-backend/pkg/database"
	"keepr-backend/pkg/gmail"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeMailbox behaves like the Gmail listing: messages after since, oldest first, capped at limit.
// Messages without a receive time always match.
type fakeMailbox struct {
	messages  []*gmail.Message
	listErr   error
	since     time.Time
	watched   []string
	refreshed *oauth2.Token
}

func (m *fakeMailbox) ListReceiptMessages(_ context.Context, _ *oauth2.Token, since time.Time, limit int, onTokenRefresh gmail.TokenUpdateFunc) (*gmail.MessageBatch, error) {
	m.since = since
	if m.refreshed != nil {
		if err := onTokenRefresh(m.refreshed); err != nil {
			return nil, err
		}
	}
	if m.listErr != nil {
		return nil, m.listErr
	}

	var matching []*gmail.Message
	for _, msg := range m.messages {
		if msg.ReceivedAt.IsZero() || msg.ReceivedAt.After(since) {
			matching = append(matching, msg)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool { return matching[i].ReceivedAt.Before(matching[j].ReceivedAt) })

	batch := &gmail.MessageBatch{Messages: matching}
	if len(matching) > limit {
		batch.Messages = matching[:limit]
		batch.Remaining = len(matching) - limit
	}
	return batch, nil
}

func (m *fakeMailbox) Watch(_ context.Context, _ *oauth2.Token, topic string, _ gmail.TokenUpdateFunc) error {
	m.watched = append(m.watched, topic)
	return nil
}

type fakeExtractor struct {
	byBody map[string][]ai.PurchaseExtraction
	err    error
}

func (e *fakeExtractor) ExtractPurchases(_ context.Context, text string) ([]ai.PurchaseExtraction, error) {
	if e.err != nil {
		return nil, e.err
	}
	for marker, out := range e.byBody {
		if strings.Contains(text, marker) {
			return out, nil
		}
	}
	return nil, errors.New("unreadable")
}

type countingNotifier struct {
	facts []notifdomain.Fact
}

func (n *countingNotifier) Raise(_ context.Context, _ string, f notifdomain.Fact) (bool, error) {
	n.facts = append(n.facts, f)
	return true, nil
}

type syncFixture struct {
	uc          *SyncUsecase
	db          *gorm.DB
	connections connrepo.ConnectionRepository
	purchases   purchaserepo.PurchaseRepository
	mailbox     *fakeMailbox
	extractor   *fakeExtractor
	notifier    *countingNotifier
	now         time.Time
}

func newSyncFixture(t *testing.T, cfg Config) *syncFixture {
	t.Helper()
	db, err := database.NewSQLiteConnection(":memory:", gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&conndomain.Connection{}, &purchasedomain.Purchase{}))

	f := &syncFixture{
		db:          db,
		connections: connrepo.NewConnectionRepository(db),
		purchases:   purchaserepo.NewPurchaseRepository(db),
		mailbox:     &fakeMailbox{},
		extractor:   &fakeExtractor{byBody: map[string][]ai.PurchaseExtraction{}},
		notifier:    &countingNotifier{},
		now:         time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}
	f.uc = NewSyncUsecase(f.connections, f.purchases, f.mailbox, f.extractor, f.notifier, cfg, zap.NewNop())
	f.uc.now = func() time.Time { return f.now }
	return f
}

func (f *syncFixture) purchasesOf(t *testing.T, userID string) []purchasedomain.Purchase {
	t.Helper()
	var all []purchasedomain.Purchase
	require.NoError(t, f.db.Where("user_id = ?", userID).Find(&all).Error)
	return all
}

func (f *syncFixture) connect(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, f.connections.Upsert(context.Background(), &conndomain.Connection{
		UserID:       userID,
		Provider:     conndomain.ProviderGmail,
		EmailAddress: userID + "@gmail.com",
		AccessToken:  "access",
		RefreshToken: "refresh",
		SyncEnabled:  true,
	}))
}

func TestSyncAccountImportsPurchases(t *testing.T) {
	f := newSyncFixture(t, Config{WatchTopic: "projects/p/topics/gmail"})
	f.connect(t, "u1")
	ctx := context.Background()

	returnBy := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	f.mailbox.messages = []*gmail.Message{
		{ID: "m1", Subject: "Your order", Body: "ORDER-1"},
		{ID: "m2", Subject: "Newsletter", Body: "nothing here", ReceivedAt: f.now.Add(-time.Hour)},
	}
	f.extractor.byBody["ORDER-1"] = []ai.PurchaseExtraction{
		{ProductName: "Headphones", Merchant: "Sony", Price: 199, ReturnDeadline: &returnBy},
		{ProductName: "Case", Merchant: "Sony", Price: 19},
	}
	f.mailbox.refreshed = &oauth2.Token{AccessToken: "fresh"}

	stats, err := f.uc.SyncAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MessagesScanned)
	assert.Equal(t, 2, stats.PurchasesCreated)
	assert.Equal(t, f.now.Add(-firstSyncLookback), f.mailbox.since)
	assert.Equal(t, []string{"projects/p/topics/gmail"}, f.mailbox.watched)
	require.Len(t, f.notifier.facts, 2)
	assert.Equal(t, notifdomain.TypeNewPurchase, f.notifier.facts[0].Type)

	conn, err := f.connections.FindByUser(ctx, "u1", conndomain.ProviderGmail)
	require.NoError(t, err)
	require.NotNil(t, conn.LastSyncAt)
	assert.True(t, conn.LastSyncAt.Equal(f.now))
	assert.Equal(t, "fresh", conn.AccessToken)
	assert.Equal(t, "refresh", conn.RefreshToken)

	// a second run rescans from last_sync_at and upserts instead of duplicating
	f.now = f.now.Add(time.Hour)
	stats, err = f.uc.SyncAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, stats.PurchasesCreated)
	assert.Len(t, f.mailbox.watched, 1, "watch is only registered on the first sync")

	assert.Len(t, f.purchasesOf(t, "u1"), 2)
}

func TestSyncAccountDrainsBacklogAcrossRuns(t *testing.T) {
	f := newSyncFixture(t, Config{BatchSize: 2})
	f.connect(t, "u1")
	ctx := context.Background()

	for i, marker := range []string{"R1", "R2", "R3"} {
		f.mailbox.messages = append(f.mailbox.messages, &gmail.Message{
			ID:         marker,
			Body:       marker,
			ReceivedAt: f.now.AddDate(0, 0, i-3),
		})
		f.extractor.byBody[marker] = []ai.PurchaseExtraction{{ProductName: "item " + marker}}
	}

	stats, err := f.uc.SyncAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PurchasesCreated)
	assert.Equal(t, 1, stats.MessagesPending)

	conn, err := f.connections.FindByUser(ctx, "u1", conndomain.ProviderGmail)
	require.NoError(t, err)
	require.NotNil(t, conn.LastSyncAt)
	assert.True(t, conn.LastSyncAt.Before(f.now.AddDate(0, 0, -2)), "cursor stays behind the unread backlog")

	for run := 0; run < 3; run++ {
		f.now = f.now.Add(time.Hour)
		_, err = f.uc.SyncAccount(ctx, "u1")
		require.NoError(t, err)
	}

	assert.Len(t, f.purchasesOf(t, "u1"), 3)
	assert.Len(t, f.notifier.facts, 3, "re-listed messages do not notify twice")

	conn, err = f.connections.FindByUser(ctx, "u1", conndomain.ProviderGmail)
	require.NoError(t, err)
	assert.True(t, conn.LastSyncAt.Equal(f.now), "a drained mailbox moves the cursor to the run start")
}

func TestSyncAccountWithoutConnection(t *testing.T) {
	f := newSyncFixture(t, Config{})

	_, err := f.uc.SyncAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSyncAccountFailureKeepsLastSync(t *testing.T) {
	ctx := context.Background()

	t.Run("listing fails", func(t *testing.T) {
		f := newSyncFixture(t, Config{})
		f.connect(t, "u1")
		f.mailbox.listErr = errors.New("503")

		_, err := f.uc.SyncAccount(ctx, "u1")
		assert.ErrorIs(t, err, apperror.ErrUpstream)

		conn, _ := f.connections.FindByUser(ctx, "u1", conndomain.ProviderGmail)
		assert.Nil(t, conn.LastSyncAt)
	})

	t.Run("extractor down", func(t *testing.T) {
		f := newSyncFixture(t, Config{})
		f.connect(t, "u1")
		f.mailbox.messages = []*gmail.Message{{ID: "m1", Body: "ORDER"}}
		f.extractor.err = errors.New("quota exceeded")

		_, err := f.uc.SyncAccount(ctx, "u1")
		assert.ErrorIs(t, err, apperror.ErrUpstream)

		conn, _ := f.connections.FindByUser(ctx, "u1", conndomain.ProviderGmail)
		assert.Nil(t, conn.LastSyncAt)
	})
}
