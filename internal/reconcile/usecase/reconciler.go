package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	conndomain "keepr-backend/internal/connection/domain"
	mailsync "keepr-backend/internal/mailsync/usecase"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AccountSyncer pulls a user's mailbox into purchases
type AccountSyncer interface {
	SyncAccount(ctx context.Context, userID string) (*mailsync.SyncStats, error)
}

// ExpiryChecker raises deadline notifications for a user
type ExpiryChecker interface {
	CheckExpiries(ctx context.Context, userID string) (int, error)
}

// ConnectionLister supplies the connections a batch run walks
type ConnectionLister interface {
	ListSyncEnabled(ctx context.Context, provider string) ([]conndomain.Connection, error)
}

// UserLister supplies every user id
type UserLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// Config bounds a batch run
type Config struct {
	Workers     int
	UnitTimeout time.Duration
	// Budget is the wall-clock limit of one Run; units not started by then are reported as skipped
	Budget time.Duration
}

// Result is the aggregate of one batch run
type Result struct {
	Success              bool     `json:"success"`
	UsersProcessed       int      `json:"users_processed"`
	NotificationsCreated int      `json:"notifications_created"`
	SyncsCompleted       int      `json:"syncs_completed"`
	PurchasesCreated     int      `json:"purchases_created"`
	ExpiryOnlyUsers      int      `json:"expiry_only_users"`
	ExpiryCheckFailures  int      `json:"expiry_check_failures"`
	Errors               []string `json:"errors"`
	DurationMs           int64    `json:"duration_ms"`

	mu   sync.Mutex
	errs []error
}

// Err combines the per-user errors of the run
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return multierr.Combine(r.errs...)
}

func (r *Result) recordError(userID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, fmt.Errorf("user %s: %w", userID, err))
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", userID, err.Error()))
}

func (r *Result) add(fn func(r *Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// UnitResult is the outcome of one user's sync and expiry check
type UnitResult struct {
	Synced               bool `json:"synced"`
	MessagesScanned      int  `json:"messages_scanned"`
	PurchasesCreated     int  `json:"purchases_created"`
	NotificationsCreated int  `json:"notifications_created"`
}

// Reconciler walks all users, syncing connected mailboxes and checking deadlines.
// Each user is an independent unit: failures are recorded, never propagated.
type Reconciler struct {
	syncer      AccountSyncer
	expiry      ExpiryChecker
	connections ConnectionLister
	users       UserLister
	cfg         Config
	logger      *zap.Logger
}

func NewReconciler(
	syncer AccountSyncer,
	expiry ExpiryChecker,
	connections ConnectionLister,
	users UserLister,
	cfg Config,
	logger *zap.Logger,
) *Reconciler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.UnitTimeout <= 0 {
		cfg.UnitTimeout = time.Minute
	}
	return &Reconciler{
		syncer:      syncer,
		expiry:      expiry,
		connections: connections,
		users:       users,
		cfg:         cfg,
		logger:      logger.Named("reconcile"),
	}
}

// Run performs one batch. It returns an error only when the work list cannot be loaded.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	if r.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Budget)
		defer cancel()
	}

	connections, err := r.connections.ListSyncEnabled(ctx, conndomain.ProviderGmail)
	if err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}
	userIDs, err := r.users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	connected := make(map[string]struct{}, len(connections))
	for _, c := range connections {
		connected[c.UserID] = struct{}{}
	}

	result := &Result{Errors: []string{}}
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)

	for _, c := range connections {
		userID := c.UserID
		g.Go(func() error {
			if ctx.Err() != nil {
				result.recordError(userID, fmt.Errorf("skipped: %w", ctx.Err()))
				return nil
			}
			unit, err := r.runUnit(ctx, userID)
			result.add(func(res *Result) {
				res.UsersProcessed++
				res.NotificationsCreated += unit.NotificationsCreated
				res.PurchasesCreated += unit.PurchasesCreated
				if unit.Synced {
					res.SyncsCompleted++
				}
			})
			if err != nil {
				r.logger.Warn("reconciliation unit failed", zap.String("user_id", userID), zap.Error(err))
				result.recordError(userID, err)
			}
			return nil
		})
	}

	for _, userID := range userIDs {
		if _, ok := connected[userID]; ok {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				result.add(func(res *Result) { res.ExpiryCheckFailures++ })
				return nil
			}
			created, err := r.checkExpiries(ctx, userID)
			result.add(func(res *Result) {
				res.ExpiryOnlyUsers++
				res.NotificationsCreated += created
				if err != nil {
					res.ExpiryCheckFailures++
				}
			})
			if err != nil {
				r.logger.Debug("expiry check failed", zap.String("user_id", userID), zap.Error(err))
			}
			return nil
		})
	}

	// Units never return errors; Wait only joins them
	_ = g.Wait()

	result.Success = true
	result.DurationMs = time.Since(start).Milliseconds()
	r.logger.Info("reconciliation finished",
		zap.Int("users_processed", result.UsersProcessed),
		zap.Int("syncs_completed", result.SyncsCompleted),
		zap.Int("notifications_created", result.NotificationsCreated),
		zap.Int("expiry_only_users", result.ExpiryOnlyUsers),
		zap.Int("expiry_check_failures", result.ExpiryCheckFailures),
		zap.Int("errors", len(result.Errors)),
		zap.Int64("duration_ms", result.DurationMs))
	return result, nil
}

// RunUnit syncs one user and then checks their deadlines
func (r *Reconciler) RunUnit(ctx context.Context, userID string) (*UnitResult, error) {
	return r.runUnit(ctx, userID)
}

// SyncUser runs one unit and drops the counts, for background triggers
func (r *Reconciler) SyncUser(ctx context.Context, userID string) error {
	_, err := r.runUnit(ctx, userID)
	return err
}

// runUnit always runs the expiry check, even after a failed sync: facts already stored are still due.
func (r *Reconciler) runUnit(ctx context.Context, userID string) (*UnitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.UnitTimeout)
	defer cancel()

	unit := &UnitResult{}
	var errs error

	stats, err := r.safeSync(ctx, userID)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("sync: %w", err))
	} else {
		unit.Synced = true
		unit.MessagesScanned = stats.MessagesScanned
		unit.PurchasesCreated = stats.PurchasesCreated
	}

	created, err := r.checkExpiries(ctx, userID)
	unit.NotificationsCreated = created
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expiry check: %w", err))
	}
	return unit, errs
}

func (r *Reconciler) safeSync(ctx context.Context, userID string) (stats *mailsync.SyncStats, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	stats, err = r.syncer.SyncAccount(ctx, userID)
	if err == nil && stats == nil {
		stats = &mailsync.SyncStats{}
	}
	return stats, err
}

func (r *Reconciler) checkExpiries(ctx context.Context, userID string) (created int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.expiry.CheckExpiries(ctx, userID)
}
