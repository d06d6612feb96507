package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"keepr-backend/internal/purchase/domain"
	"keepr-backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) (PurchaseRepository, *gorm.DB) {
	t.Helper()
	db, err := database.NewSQLiteConnection(":memory:", gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Purchase{}))
	return NewPurchaseRepository(db), db
}

func purchasesOf(t *testing.T, db *gorm.DB, userID string) []domain.Purchase {
	t.Helper()
	var all []domain.Purchase
	require.NoError(t, db.Where("user_id = ?", userID).Order("created_at").Find(&all).Error)
	return all
}

func ptr[T any](v T) *T { return &v }

func TestUpsertFromEmail(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	p := &domain.Purchase{UserID: "u1", ProductName: "Kindle", Price: 99, SourceMessageID: ptr("msg-1#0")}
	created, err := repo.UpsertFromEmail(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)

	again := &domain.Purchase{UserID: "u1", ProductName: "Kindle Paperwhite", Price: 129, SourceMessageID: ptr("msg-1#0")}
	created, err = repo.UpsertFromEmail(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)

	all := purchasesOf(t, db, "u1")
	require.Len(t, all, 1)
	assert.Equal(t, "Kindle Paperwhite", all[0].ProductName)
	assert.Equal(t, domain.SourceEmail, all[0].Source)

	// same message id for another user is a different purchase
	created, err = repo.UpsertFromEmail(ctx, &domain.Purchase{UserID: "u2", ProductName: "Kindle", SourceMessageID: ptr("msg-1#0")})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestUpsertFromEmailConcurrentSameMessage(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]bool{}
	)
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &domain.Purchase{UserID: "u1", ProductName: "Kindle", SourceMessageID: ptr("msg-1#0")}
			isNew, err := repo.UpsertFromEmail(ctx, p)
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if isNew {
				created++
			}
			ids[p.ID] = true
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, created, "exactly one writer inserts the row")
	assert.Len(t, ids, 1, "every writer sees the stored id")
	assert.Len(t, purchasesOf(t, db, "u1"), 1)
}

func TestFindWithUpcomingDeadlines(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	_, err := repo.UpsertFromEmail(ctx, &domain.Purchase{UserID: "u1", ProductName: "past", SourceMessageID: ptr("a"),
		ReturnDeadline: ptr(today.AddDate(0, 0, -2)), WarrantyExpiresAt: ptr(today.AddDate(0, 0, -1))})
	require.NoError(t, err)
	_, err = repo.UpsertFromEmail(ctx, &domain.Purchase{UserID: "u1", ProductName: "return soon", SourceMessageID: ptr("b"),
		ReturnDeadline: ptr(today.AddDate(0, 0, 3))})
	require.NoError(t, err)
	_, err = repo.UpsertFromEmail(ctx, &domain.Purchase{UserID: "u1", ProductName: "warranty", SourceMessageID: ptr("c"),
		ReturnDeadline: ptr(today.AddDate(0, 0, -10)), WarrantyExpiresAt: ptr(today.AddDate(1, 0, 0))})
	require.NoError(t, err)
	_, err = repo.UpsertFromEmail(ctx, &domain.Purchase{UserID: "u2", ProductName: "other user", SourceMessageID: ptr("d"),
		ReturnDeadline: ptr(today.AddDate(0, 0, 1))})
	require.NoError(t, err)

	got, err := repo.FindWithUpcomingDeadlines(ctx, "u1", today)
	require.NoError(t, err)

	var names []string
	for _, p := range got {
		names = append(names, p.ProductName)
	}
	assert.ElementsMatch(t, []string{"return soon", "warranty"}, names)
}
