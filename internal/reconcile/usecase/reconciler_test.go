package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	conndomain "keepr-backend/internal/connection/domain"
	mailsync "keepr-backend/internal/mailsync/usecase"
	"keepr-backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSyncer struct {
	mu       sync.Mutex
	failFor  map[string]error
	delay    time.Duration
	lastSync map[string]time.Time
}

func (s *fakeSyncer) SyncAccount(ctx context.Context, userID string) (*mailsync.SyncStats, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.failFor[userID]; err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync[userID] = time.Now()
	return &mailsync.SyncStats{MessagesScanned: 2, PurchasesCreated: 1}, nil
}

type fakeExpiry struct {
	mu      sync.Mutex
	checked []string
	created int
	failFor map[string]bool
}

func (e *fakeExpiry) CheckExpiries(_ context.Context, userID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checked = append(e.checked, userID)
	if e.failFor[userID] {
		return 0, errors.New("store unavailable")
	}
	return e.created, nil
}

type fakeConnections []conndomain.Connection

func (c fakeConnections) ListSyncEnabled(context.Context, string) ([]conndomain.Connection, error) {
	return c, nil
}

type fakeUsers []string

func (u fakeUsers) ListIDs(context.Context) ([]string, error) { return u, nil }

func connectionsFor(ids ...string) fakeConnections {
	out := make(fakeConnections, 0, len(ids))
	for _, id := range ids {
		out = append(out, conndomain.Connection{UserID: id, Provider: conndomain.ProviderGmail, SyncEnabled: true})
	}
	return out
}

func TestRunIsolatesFailingUser(t *testing.T) {
	syncer := &fakeSyncer{
		failFor:  map[string]error{"u3": errors.New("invalid_grant")},
		lastSync: map[string]time.Time{},
	}
	expiry := &fakeExpiry{created: 1}
	users := fakeUsers{"u1", "u2", "u3", "u4", "u5"}
	r := NewReconciler(syncer, expiry, connectionsFor("u1", "u2", "u3", "u4", "u5"), users, Config{Workers: 2}, zap.NewNop())

	result, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 5, result.UsersProcessed)
	assert.Equal(t, 4, result.SyncsCompleted)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "u3")
	assert.Contains(t, result.Errors[0], "invalid_grant")
	assert.Len(t, syncer.lastSync, 4)
	assert.NotContains(t, syncer.lastSync, "u3")
	// the failed user's deadlines are still checked
	assert.Len(t, expiry.checked, 5)
	assert.Equal(t, 5, result.NotificationsCreated)
	assert.Error(t, result.Err())
}

func TestRunChecksExpiriesForUsersWithoutConnection(t *testing.T) {
	syncer := &fakeSyncer{lastSync: map[string]time.Time{}}
	expiry := &fakeExpiry{created: 2, failFor: map[string]bool{"manual-2": true}}
	users := fakeUsers{"u1", "manual-1", "manual-2"}
	r := NewReconciler(syncer, expiry, connectionsFor("u1"), users, Config{}, zap.NewNop())

	result, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.UsersProcessed)
	assert.Equal(t, 2, result.ExpiryOnlyUsers)
	assert.Equal(t, 1, result.ExpiryCheckFailures)
	assert.Empty(t, result.Errors, "connection-less failures are counted, not listed")
	assert.Equal(t, 4, result.NotificationsCreated)
	assert.ElementsMatch(t, []string{"u1", "manual-1", "manual-2"}, expiry.checked)
}

func TestRunRespectsBudget(t *testing.T) {
	syncer := &fakeSyncer{delay: time.Second, lastSync: map[string]time.Time{}}
	expiry := &fakeExpiry{}
	ids := []string{"u1", "u2", "u3", "u4"}
	r := NewReconciler(syncer, expiry, connectionsFor(ids...), fakeUsers(ids), Config{
		Workers: 1,
		Budget:  50 * time.Millisecond,
	}, zap.NewNop())

	start := time.Now()
	result, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, result.Success)
	assert.Zero(t, result.SyncsCompleted)
	assert.Len(t, result.Errors, 4)
}

func TestRunSurvivesPanics(t *testing.T) {
	r := NewReconciler(panickingSyncer{}, &fakeExpiry{}, connectionsFor("u1"), fakeUsers{"u1"}, Config{}, zap.NewNop())

	result, err := r.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "panic")
}

type panickingSyncer struct{}

func (panickingSyncer) SyncAccount(context.Context, string) (*mailsync.SyncStats, error) {
	panic("nil token")
}

func TestRunUnitWithoutConnection(t *testing.T) {
	syncer := &fakeSyncer{
		failFor:  map[string]error{"u1": fmt.Errorf("%w: no mailbox connected", apperror.ErrNotFound)},
		lastSync: map[string]time.Time{},
	}
	r := NewReconciler(syncer, &fakeExpiry{}, connectionsFor(), fakeUsers{}, Config{}, zap.NewNop())

	unit, err := r.RunUnit(context.Background(), "u1")

	require.Error(t, err)
	assert.False(t, unit.Synced)
	assert.Equal(t, http.StatusNotFound, apperror.HTTPStatus(err))
}
