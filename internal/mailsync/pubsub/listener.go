package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	conndomain "keepr-backend/internal/connection/domain"
	connrepo "keepr-backend/internal/connection/repository"

	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes on mailbox changes
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// UnitRunner runs one reconciliation unit for a user
type UnitRunner func(ctx context.Context, userID string) error

// Listener turns Gmail push notifications into reconciliation units
type Listener struct {
	client      *gpubsub.Client
	connections connrepo.ConnectionRepository
	run         UnitRunner
	topicName   string
	subName     string
	logger      *zap.Logger

	mu sync.Mutex
	// last historyId handled per user; Gmail may deliver the same change more than once
	lastHistoryID map[string]uint64
}

func NewListener(
	ctx context.Context,
	projectID, topic, credentialsFile string,
	connections connrepo.ConnectionRepository,
	run UnitRunner,
	logger *zap.Logger,
) (*Listener, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gpubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	l := newListener(connections, run, logger)
	l.client = client
	l.topicName = ShortTopicName(topic)
	l.subName = l.topicName + "-sub" // Convention: topic-sub
	return l, nil
}

func newListener(connections connrepo.ConnectionRepository, run UnitRunner, logger *zap.Logger) *Listener {
	return &Listener{
		connections:   connections,
		run:           run,
		logger:        logger.Named("pubsub"),
		lastHistoryID: make(map[string]uint64),
	}
}

// ShortTopicName extracts the topic id from a full resource name
func ShortTopicName(topic string) string {
	if parts := strings.Split(topic, "/"); len(parts) > 1 {
		topic = parts[len(parts)-1]
	}
	if topic == "" {
		topic = "gmail-updates"
	}
	return topic
}

// TopicPath is the resource name Gmail's watch call expects
func TopicPath(projectID, topic string) string {
	if strings.HasPrefix(topic, "projects/") {
		return topic
	}
	return fmt.Sprintf("projects/%s/topics/%s", projectID, ShortTopicName(topic))
}

// Start blocks receiving messages until ctx is cancelled
func (l *Listener) Start(ctx context.Context) error {
	l.logger.Info("starting listener", zap.String("topic", l.topicName), zap.String("subscription", l.subName))

	sub, err := l.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *gpubsub.Message) {
		if err := l.handle(ctx, msg.Data); err != nil {
			l.logger.Warn("failed to handle mailbox notification", zap.Error(err))
		}
		// A failed unit is picked up by the next batch run; redelivery would only repeat it
		msg.Ack()
	})
}

func (l *Listener) ensureSubscription(ctx context.Context) (*gpubsub.Subscription, error) {
	sub := l.client.Subscription(l.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription: %w", err)
	}
	if exists {
		return sub, nil
	}

	topic := l.client.Topic(l.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic: %w", err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist", l.topicName)
	}

	sub, err = l.client.CreateSubscription(ctx, l.subName, gpubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	l.logger.Info("created subscription", zap.String("subscription", l.subName))
	return sub, nil
}

// Close releases the Pub/Sub client
func (l *Listener) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

func (l *Listener) handle(ctx context.Context, data []byte) error {
	var n GmailNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}

	conn, err := l.connections.FindByEmailAddress(ctx, conndomain.ProviderGmail, n.EmailAddress)
	if err != nil {
		return fmt.Errorf("find connection for %s: %w", n.EmailAddress, err)
	}
	if conn == nil || !conn.SyncEnabled {
		l.logger.Debug("no active connection for mailbox", zap.String("email", n.EmailAddress))
		return nil
	}

	if !l.advance(conn.UserID, n.HistoryID) {
		l.logger.Debug("skipping stale notification",
			zap.String("user_id", conn.UserID),
			zap.Uint64("history_id", n.HistoryID))
		return nil
	}

	if err := l.run(ctx, conn.UserID); err != nil {
		return fmt.Errorf("user %s: %w", conn.UserID, err)
	}
	return nil
}

// advance records historyID for the user and reports whether it is newer than the last one seen
func (l *Listener) advance(userID string, historyID uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastHistoryID[userID]; ok && historyID <= last {
		return false
	}
	l.lastHistoryID[userID] = historyID
	return true
}
