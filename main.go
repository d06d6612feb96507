package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "keepr-backend/cmd/api"
	authDelivery "keepr-backend/internal/auth/delivery"
	authdomain "keepr-backend/internal/auth/domain"
	authRepo "keepr-backend/internal/auth/repository"
	authUsecase "keepr-backend/internal/auth/usecase"
	connectionDelivery "keepr-backend/internal/connection/delivery"
	connectiondomain "keepr-backend/internal/connection/domain"
	connectionRepo "keepr-backend/internal/connection/repository"
	connectionUsecase "keepr-backend/internal/connection/usecase"
	"keepr-backend/internal/mailsync/pubsub"
	mailsyncUsecase "keepr-backend/internal/mailsync/usecase"
	notificationDelivery "keepr-backend/internal/notification/delivery"
	notificationdomain "keepr-backend/internal/notification/domain"
	notificationRepo "keepr-backend/internal/notification/repository"
	notificationUsecase "keepr-backend/internal/notification/usecase"
	purchasedomain "keepr-backend/internal/purchase/domain"
	purchaseRepo "keepr-backend/internal/purchase/repository"
	purchaseUsecase "keepr-backend/internal/purchase/usecase"
	reconcileDelivery "keepr-backend/internal/reconcile/delivery"
	"keepr-backend/internal/reconcile/scheduler"
	reconcileUsecase "keepr-backend/internal/reconcile/usecase"
	serviceInfoDelivery "keepr-backend/internal/serviceinfo/delivery"
	serviceinfodomain "keepr-backend/internal/serviceinfo/domain"
	serviceInfoRepo "keepr-backend/internal/serviceinfo/repository"
	serviceInfoUsecase "keepr-backend/internal/serviceinfo/usecase"
	"keepr-backend/pkg/ai"
	"keepr-backend/pkg/config"
	"keepr-backend/pkg/database"
	"keepr-backend/pkg/fcm"
	"keepr-backend/pkg/gmail"
	"keepr-backend/pkg/logger"
	"keepr-backend/pkg/worker"

	"go.uber.org/zap"
)

// Background tasks (push delivery, initial syncs) get this long before their context is cancelled
const backgroundTaskTimeout = 2 * time.Minute

func main() {
	// Load configuration
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.FCMToken{},
		&connectiondomain.Connection{},
		&purchasedomain.Purchase{},
		&notificationdomain.Notification{},
		&notificationdomain.NotificationSettings{},
		&serviceinfodomain.CacheEntry{},
	); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	connRepo := connectionRepo.NewConnectionRepository(db)
	purchaseRepository := purchaseRepo.NewPurchaseRepository(db)
	notifRepo := notificationRepo.NewNotificationRepository(db)
	settingsRepo := notificationRepo.NewSettingsRepository(db)

	runner := worker.NewRunner(log, backgroundTaskTimeout)

	// FCM is optional, notifications are still stored without it
	var push *notificationUsecase.PushDelivery
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials, log)
		if err != nil {
			log.Warn("Failed to initialize FCM client, push notifications disabled", zap.Error(err))
		} else {
			push = &notificationUsecase.PushDelivery{Pusher: fcmClient, Tokens: fcmTokenRepo}
		}
	} else {
		log.Info("No Firebase credentials configured, FCM disabled")
	}

	notifications := notificationUsecase.NewNotificationUsecase(notifRepo, settingsRepo, runner, push, log)

	generator, err := ai.NewGenerator(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiApiKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize AI provider", zap.Error(err))
	}
	assistant := ai.NewAssistant(generator)

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI, log)

	// Service info cache: database, fronted by redis when configured
	var cache serviceInfoRepo.CacheRepository = serviceInfoRepo.NewGormCacheRepository(db)
	if cfg.RedisURL != "" {
		redisClient, err := serviceInfoRepo.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("Redis unavailable, using database cache only", zap.Error(err))
		} else {
			defer redisClient.Close()
			cache = serviceInfoRepo.NewTieredCacheRepository(serviceInfoRepo.NewRedisCacheRepository(redisClient), cache, log)
		}
	}
	lookup := serviceInfoUsecase.NewLookupUsecase(cache, assistant, cfg.ServiceInfoTTL, log)

	// Sync and reconciliation
	watchTopic := ""
	if cfg.GoogleProjectID != "" {
		watchTopic = pubsub.TopicPath(cfg.GoogleProjectID, cfg.GooglePubSubTopic)
	}
	syncer := mailsyncUsecase.NewSyncUsecase(connRepo, purchaseRepository, gmailService, assistant, notifications,
		mailsyncUsecase.Config{WatchTopic: watchTopic}, log)
	expiry := purchaseUsecase.NewExpiryChecker(purchaseRepository, notifications)
	reconciler := reconcileUsecase.NewReconciler(syncer, expiry, connRepo, userRepo, reconcileUsecase.Config{
		Workers:     cfg.SyncWorkers,
		UnitTimeout: cfg.SyncUnitTimeout,
		Budget:      cfg.CronBudget,
	}, log)

	connections := connectionUsecase.NewConnectionUsecase(connRepo, gmailService, notifications, reconciler.SyncUser, runner, cfg.StateSecret, log)

	// Gmail push notifications (Pub/Sub), only when a project is configured
	if cfg.GoogleProjectID != "" {
		listener, err := pubsub.NewListener(ctx, cfg.GoogleProjectID, cfg.GooglePubSubTopic, cfg.GoogleCredentials, connRepo, reconciler.SyncUser, log)
		if err != nil {
			log.Error("Failed to initialize Pub/Sub listener", zap.Error(err))
		} else {
			defer listener.Close()
			go func() {
				if err := listener.Start(ctx); err != nil {
					log.Error("Pub/Sub listener stopped", zap.Error(err))
				}
			}()
		}
	} else {
		log.Warn("GoogleProjectID not configured, Gmail push sync disabled")
	}

	sched := scheduler.NewScheduler(reconciler, cfg.CronInterval, log)
	sched.Start()

	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, cfg)

	handlers := api.Handlers{
		FCM:          authDelivery.NewFCMHandler(fcmTokenRepo, log),
		Connection:   connectionDelivery.NewConnectionHandler(connections, cfg.AppURL, cfg.SettingsPath, log),
		Notification: notificationDelivery.NewNotificationHandler(notifications, log),
		Reconcile:    reconcileDelivery.NewReconcileHandler(reconciler, cfg.CronSecret, log),
		ServiceInfo:  serviceInfoDelivery.NewServiceInfoHandler(lookup, log),
	}
	if cfg.Env == "development" {
		handlers.Auth = authDelivery.NewAuthHandler(authUsecaseInstance, log)
		log.Warn("Development sign-in enabled at POST /api/auth/dev-token")
	}

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, handlers, cfg, log)

	log.Info("Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
	if err := handler.Start(ctx, ":"+cfg.Port); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
	}

	sched.Stop()
	runner.Wait()
	log.Info("Shutdown complete")
}
