package usecase

import (
	"context"
	"fmt"
	"time"

	"keepr-backend/internal/connection/domain"
	"keepr-backend/internal/connection/repository"
	notifdomain "keepr-backend/internal/notification/domain"
	"keepr-backend/pkg/apperror"
	"keepr-backend/pkg/worker"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// OAuthProvider is the mailbox provider's authorization flow
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	GetProfileEmail(ctx context.Context, token *oauth2.Token) (string, error)
}

// Notifier receives the connection-established fact
type Notifier interface {
	Raise(ctx context.Context, userID string, fact notifdomain.Fact) (bool, error)
}

// InitialSync runs in the background after a connection is stored
type InitialSync func(ctx context.Context, userID string) error

// ConnectionUsecase manages the OAuth lifecycle of a user's mailbox connection
type ConnectionUsecase interface {
	InitiateConnection(ctx context.Context, userID string) (string, error)
	CompleteConnection(ctx context.Context, code, state string) (*domain.Connection, error)
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*domain.Status, error)
}

type connectionUsecase struct {
	connections repository.ConnectionRepository
	provider    OAuthProvider
	notifier    Notifier
	initialSync InitialSync
	runner      *worker.Runner
	state       stateCodec
	logger      *zap.Logger
	now         func() time.Time
}

func NewConnectionUsecase(
	connections repository.ConnectionRepository,
	provider OAuthProvider,
	notifier Notifier,
	initialSync InitialSync,
	runner *worker.Runner,
	stateSecret string,
	logger *zap.Logger,
) ConnectionUsecase {
	return &connectionUsecase{
		connections: connections,
		provider:    provider,
		notifier:    notifier,
		initialSync: initialSync,
		runner:      runner,
		state:       stateCodec{secret: []byte(stateSecret)},
		logger:      logger.Named("connection"),
		now:         time.Now,
	}
}

func (u *connectionUsecase) InitiateConnection(ctx context.Context, userID string) (string, error) {
	state, err := u.state.encode(userID, u.now())
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return u.provider.AuthCodeURL(state), nil
}

func (u *connectionUsecase) CompleteConnection(ctx context.Context, code, state string) (*domain.Connection, error) {
	if code == "" || state == "" {
		return nil, fmt.Errorf("%w: missing code or state", apperror.ErrInvalidCallback)
	}

	userID, err := u.state.decode(state, u.now())
	if err != nil {
		return nil, err
	}

	token, err := u.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperror.ErrUpstreamAuth, err)
	}
	if token == nil || token.AccessToken == "" || token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: provider returned no access or refresh token", apperror.ErrUpstreamAuth)
	}

	email, err := u.provider.GetProfileEmail(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperror.ErrUpstreamLookup, err)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: empty mailbox address", apperror.ErrUpstreamLookup)
	}

	conn := &domain.Connection{
		UserID:       userID,
		Provider:     domain.ProviderGmail,
		EmailAddress: email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		SyncEnabled:  true,
		LastSyncAt:   nil,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		conn.TokenExpiresAt = &expiry
	}
	if err := u.connections.Upsert(ctx, conn); err != nil {
		return nil, fmt.Errorf("store connection: %w", err)
	}

	u.logger.Info("mailbox connected", zap.String("user_id", userID), zap.String("email", email))

	if _, err := u.notifier.Raise(ctx, userID, notifdomain.Fact{
		Type:      notifdomain.TypeConnectionEstablished,
		Title:     "Gmail connected",
		Message:   fmt.Sprintf("We'll scan %s for receipts and keep your purchases up to date.", email),
		ActionURL: "/settings",
	}); err != nil {
		u.logger.Warn("failed to create connection notification", zap.String("user_id", userID), zap.Error(err))
	}

	if u.initialSync != nil {
		u.runner.Go("initial-sync:"+userID, func(ctx context.Context) error {
			return u.initialSync(ctx, userID)
		})
	}

	return conn, nil
}

func (u *connectionUsecase) Disconnect(ctx context.Context, userID string) error {
	if err := u.connections.Delete(ctx, userID, domain.ProviderGmail); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	u.logger.Info("mailbox disconnected", zap.String("user_id", userID))
	return nil
}

func (u *connectionUsecase) Status(ctx context.Context, userID string) (*domain.Status, error) {
	conn, err := u.connections.FindByUser(ctx, userID, domain.ProviderGmail)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if conn == nil {
		return &domain.Status{Connected: false}, nil
	}

	syncEnabled := conn.SyncEnabled
	return &domain.Status{
		Connected:    true,
		EmailAddress: conn.EmailAddress,
		LastSyncAt:   conn.LastSyncAt,
		SyncEnabled:  &syncEnabled,
	}, nil
}
