package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zarya-platform/zarya-backend/internal/analytics"
	"github.com/zarya-platform/zarya-backend/internal/booking"
	"github.com/zarya-platform/zarya-backend/internal/cron"
	"github.com/zarya-platform/zarya-backend/internal/expiry"
	"github.com/zarya-platform/zarya-backend/internal/handlers"
	"github.com/zarya-platform/zarya-backend/internal/maintenance"
	"github.com/zarya-platform/zarya-backend/internal/media"
	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/internal/notify"
	"github.com/zarya-platform/zarya-backend/internal/outbox"
	"github.com/zarya-platform/zarya-backend/internal/reminder"
	"github.com/zarya-platform/zarya-backend/internal/storage"
	"github.com/zarya-platform/zarya-backend/libs/auth"
	"github.com/zarya-platform/zarya-backend/libs/config"
	"github.com/zarya-platform/zarya-backend/libs/db"
	"github.com/zarya-platform/zarya-backend/libs/httpx"
	"github.com/zarya-platform/zarya-backend/libs/kafkax"
	otelx "github.com/zarya-platform/zarya-backend/libs/otel"
	"github.com/zarya-platform/zarya-backend/libs/runtime"
)

// expiryStore joins the two repositories the expiry sweep reads and writes.
type expiryStore struct {
	*storage.SubscriptionsRepository
	*storage.MerchantsRepository
}

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "zarya-backend")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	// Repositories. Merchant and subscription writers insert outbox events in
	// the same transaction as the state change.
	outboxRepo := outbox.NewRepository(pool)
	merchantsRepo := storage.NewMerchantsRepository(pool, outboxRepo)
	subscriptionsRepo := storage.NewSubscriptionsRepository(pool, outboxRepo)
	appointmentsRepo := storage.NewAppointmentsRepository(pool)
	slotsRepo := storage.NewTimeSlotsRepository(pool)
	remindersRepo := storage.NewRemindersRepository(pool)
	notificationsRepo := storage.NewNotificationsRepository(pool)
	adminsRepo := storage.NewAdminUsersRepository(pool)
	webhookEventsRepo := storage.NewWebhookEventsRepository(pool)
	reportsRepo := storage.NewReportsRepository(pool)

	// Delivery channels. Each falls back to a no-op when unconfigured so a
	// dev setup without provider credentials still boots.
	emailSender := notify.NewSMTPSender(
		config.String("SMTP_HOST", ""),
		config.String("SMTP_PORT", "587"),
		config.String("SMTP_USERNAME", ""),
		config.String("SMTP_PASSWORD", ""),
		config.String("SMTP_FROM", ""),
	)

	var smsSender notify.SMSSender = notify.NewNoopSMSSender()
	if sid := config.String("TWILIO_ACCOUNT_SID", ""); sid != "" {
		smsSender = notify.NewTwilioSender(sid,
			config.String("TWILIO_AUTH_TOKEN", ""),
			config.String("TWILIO_FROM_NUMBER", ""),
		)
		logger.Info("sms delivery enabled (twilio)")
	}

	var pushSender notify.PushSender = notify.NewNoopPushSender()
	if credFile := config.String("FIREBASE_CREDENTIALS_FILE", ""); credFile != "" {
		fcm, err := notify.NewFCMSender(ctx, credFile)
		if err != nil {
			logger.Error("fcm setup failed, falling back to noop", "err", err)
		} else {
			pushSender = fcm
			logger.Info("push delivery enabled (fcm)")
		}
	}

	var images *media.Store
	if cloudName := config.String("CLOUDINARY_CLOUD_NAME", ""); cloudName != "" {
		images, err = media.NewStore(cloudName,
			config.String("CLOUDINARY_API_KEY", ""),
			config.String("CLOUDINARY_API_SECRET", ""),
		)
		if err != nil {
			logger.Error("cloudinary setup failed", "err", err)
			images = nil
		} else {
			logger.Info("media storage enabled (cloudinary)")
		}
	}

	dispatcher := notify.NewDispatcher(emailSender, smsSender, pushSender, notificationsRepo, merchantsRepo, logger)

	// Bootstrap admin from env, idempotent across restarts.
	if email := config.String("ADMIN_EMAIL", ""); email != "" {
		if err := seedAdmin(ctx, adminsRepo, email, config.String("ADMIN_PASSWORD", ""), config.String("ADMIN_NAME", "Platform Admin")); err != nil {
			logger.Error("admin seed failed", "err", err)
		}
	}

	// The reminder lookback equals the sweep interval so consecutive sweeps
	// tile the timeline without gaps or overlap.
	sweepEvery := config.Duration("REMINDER_SWEEP_INTERVAL", 5*time.Minute)
	scheduler := reminder.NewScheduler(remindersRepo, dispatcher, logger, reminder.Config{
		Lookback: sweepEvery,
		Fanout:   config.Int("REMINDER_FANOUT", 8),
		Events:   outbox.NewReminderEvents(outboxRepo, logger),
	})

	expiryEngine := expiry.NewEngine(expiryStore{subscriptionsRepo, merchantsRepo}, dispatcher, logger)
	weeklyReports := analytics.NewGenerator(reportsRepo, adminsRepo, dispatcher, logger)
	maintenanceJobs := maintenance.NewJobs(reportsRepo, notificationsRepo, remindersRepo, slotsRepo, outboxRepo, logger)
	bookingService := booking.NewService(appointmentsRepo, slotsRepo, merchantsRepo, scheduler, dispatcher, outboxRepo, logger)

	runner := cron.NewRunner(logger)
	mustRegister := func(name, spec string, fn cron.JobFunc) {
		if err := runner.Register(name, spec, fn); err != nil {
			panic(err)
		}
	}
	mustRegister("reminder-sweep", "@every "+sweepEvery.String(), func(ctx context.Context) error {
		return scheduler.Sweep(ctx, time.Now().UTC())
	})
	mustRegister("subscription-expiry", config.String("EXPIRY_CRON", "0 9 * * *"), func(ctx context.Context) error {
		return expiryEngine.Sweep(ctx, time.Now().UTC())
	})
	mustRegister("weekly-analytics", config.String("ANALYTICS_CRON", "0 8 * * 1"), func(ctx context.Context) error {
		return weeklyReports.GenerateWeekly(ctx, time.Now().UTC())
	})
	mustRegister("daily-backup", config.String("BACKUP_CRON", "0 2 * * *"), maintenanceJobs.DailyBackup)
	mustRegister("cleanup-slots", config.String("CLEANUP_SLOTS_CRON", "30 2 * * *"), maintenanceJobs.CleanupExpiredSlots)
	mustRegister("cleanup", config.String("CLEANUP_CRON", "0 3 * * *"), maintenanceJobs.Cleanup)
	mustRegister("health-check", "@every 30m", func(ctx context.Context) error {
		if err := db.ReadyCheck(pool)(ctx); err != nil {
			return err
		}
		missed, err := remindersRepo.CountMissed(ctx, time.Now().UTC(), sweepEvery)
		if err != nil {
			return err
		}
		if missed > 0 {
			logger.Warn("reminders missed their delivery window", "count", missed)
		}
		return nil
	})
	runner.Start()
	defer runner.Stop()

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}

	// Outbox drain into Kafka; skipped when no brokers are configured.
	brokers := strings.TrimSpace(config.String("KAFKA_BROKERS", ""))
	if brokers != "" {
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		logger.Info("outbox publisher started", "brokers", brokers)
	} else {
		logger.Warn("KAFKA_BROKERS not set, outbox events will accumulate unpublished")
	}

	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	jwtSecret := config.String("JWT_SECRET", "dev-secret")

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.RegisterRoutes(mux, handlers.Deps{
		Auth: handlers.NewAuthHandler(merchantsRepo, adminsRepo, dispatcher, logger, jwtSecret,
			config.Duration("ACCESS_TOKEN_TTL", time.Hour),
			config.Duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		),
		Merchants:     handlers.NewMerchantHandler(merchantsRepo, images, logger),
		Subscriptions: handlers.NewSubscriptionHandler(subscriptionsRepo, logger),
		Appointments:  handlers.NewAppointmentHandler(bookingService, slotsRepo, logger),
		Webhooks: handlers.NewWebhookHandler(webhookEventsRepo, subscriptionsRepo, merchantsRepo,
			dispatcher, images, logger,
			config.String("STRIPE_WEBHOOK_SECRET", ""),
			config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
		),
		Admin:     handlers.NewAdminHandler(merchantsRepo, subscriptionsRepo, appointmentsRepo, notificationsRepo, adminsRepo, runner, logger),
		JWTSecret: jwtSecret,
	})

	middlewares := []httpx.Middleware{
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitList(config.String("CORS_ALLOWED_ORIGINS", "")),
			MaxAge:         config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
	}

	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 60),
			time.Minute,
			config.String("RATE_LIMIT_PREFIX", "rl"),
		)
		middlewares = append(middlewares, rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)))
		logger.Info("rate limiting enabled (redis)", "redis_addr", rdb.Options().Addr)
	}

	handler := httpx.Chain(mux, middlewares...)
	handler = otelhttp.NewHandler(handler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func seedAdmin(ctx context.Context, admins *storage.AdminUsersRepository, email, password, name string) error {
	if password == "" {
		return errors.New("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}
	if _, err := admins.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !storage.IsNotFound(err) {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return admins.Create(ctx, &model.AdminUser{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         "admin",
	})
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
