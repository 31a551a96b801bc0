package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/meetsync/meetsync/internal/booking"
	"github.com/meetsync/meetsync/internal/consumer"
	"github.com/meetsync/meetsync/internal/handlers"
	"github.com/meetsync/meetsync/internal/inbox"
	"github.com/meetsync/meetsync/internal/integration"
	"github.com/meetsync/meetsync/internal/migrate"
	"github.com/meetsync/meetsync/internal/notify"
	"github.com/meetsync/meetsync/internal/outbox"
	"github.com/meetsync/meetsync/internal/payments"
	"github.com/meetsync/meetsync/internal/sessions"
	"github.com/meetsync/meetsync/internal/storage"
	"github.com/meetsync/meetsync/libs/auth"
	"github.com/meetsync/meetsync/libs/config"
	"github.com/meetsync/meetsync/libs/db"
	"github.com/meetsync/meetsync/libs/httpx"
	"github.com/meetsync/meetsync/libs/kafkax"
	otelx "github.com/meetsync/meetsync/libs/otel"
	"github.com/meetsync/meetsync/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "meetsync")
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
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.OpenWithRetry(ctx, dbURL, db.DefaultConnectPolicy(), logger)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := migrate.Up(ctx, pool, logger); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	users := storage.NewUserRepository(pool)
	eventTypes := storage.NewEventTypeRepository(pool)
	rules := storage.NewAvailabilityRepository(pool)
	meetings := storage.NewMeetingRepository(pool)
	refreshRepo := sessions.NewRefreshRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)
	integrationRepo := integration.NewRepository(pool)

	signer := auth.NewSigner(jwtSecret, config.Seconds("ACCESS_TOKEN_TTL_SECONDS", time.Hour))
	refreshTTL := config.Seconds("REFRESH_TOKEN_TTL_SECONDS", 30*24*time.Hour)

	var paymentsProvider payments.Provider
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		paymentsProvider = payments.NewStripeProvider(key)
		logger.Info("stripe payments enabled")
	}

	googleCfg := integration.GoogleConfig{
		ClientID:     config.String("GOOGLE_CLIENT_ID", ""),
		ClientSecret: config.String("GOOGLE_CLIENT_SECRET", ""),
		RedirectURL:  config.String("GOOGLE_REDIRECT_URL", ""),
	}
	var googleCalendar *integration.GoogleCalendar
	if googleCfg.Enabled() {
		googleCalendar = integration.NewGoogleCalendar(googleCfg, integrationRepo, logger)
		logger.Info("google calendar integration enabled")
	}

	var calendarScheduler booking.CalendarScheduler
	if googleCalendar != nil {
		calendarScheduler = googleCalendar
	}
	bookingSvc := booking.NewService(meetings, eventTypes, users, rules, outboxRepo,
		paymentsProvider, calendarScheduler, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	publicURL := config.String("PUBLIC_URL", "http://localhost:"+port)
	emailSender := notify.NewSMTPSender(
		config.String("SMTP_HOST", "localhost"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@meetsync.local"),
	)
	notifier := notify.NewNotifier(emailSender, logger, publicURL)
	for _, topic := range []string{notify.TopicMeetingBooked, notify.TopicMeetingCancelled} {
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "meetsync-notify"),
			Topic:   topic,
		}, notifier.Handle)
		go eventConsumer.Run(ctx)
	}

	authHandler := handlers.NewAuthHandler(signer, users, refreshRepo, refreshTTL)
	eventTypeHandler := handlers.NewEventTypeHandler(eventTypes)
	availabilityHandler := handlers.NewAvailabilityHandler(rules)
	meetingHandler := handlers.NewMeetingHandler(meetings, bookingSvc)
	publicHandler := handlers.NewPublicHandler(users, eventTypes, rules, meetings, bookingSvc)
	integrationHandler := handlers.NewIntegrationHandler(integrationRepo, googleCalendar, jwtSecret)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	// Public endpoints take anonymous traffic and get their own rate limit.
	var rateLimitMW httpx.Middleware
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, true)
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}
	public := func(h http.HandlerFunc) http.Handler {
		return rateLimitMW(h)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	mux.HandleFunc("/api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("/api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", authHandler.Logout)
	mux.HandleFunc("/api/v1/auth/me", handlers.RequireAuth(signer, authHandler.Me))

	mux.HandleFunc("/api/v1/event-types", handlers.RequireAuth(signer, eventTypeHandler.Collection))
	mux.HandleFunc("/api/v1/event-types/{id}", handlers.RequireAuth(signer, eventTypeHandler.Item))

	mux.HandleFunc("/api/v1/availability", handlers.RequireAuth(signer, availabilityHandler.Weekly))
	mux.HandleFunc("/api/v1/availability/overrides", handlers.RequireAuth(signer, availabilityHandler.Overrides))

	mux.HandleFunc("/api/v1/meetings", handlers.RequireAuth(signer, meetingHandler.List))
	mux.HandleFunc("/api/v1/meetings/cancel", handlers.RequireAuth(signer, meetingHandler.Cancel))

	mux.HandleFunc("/api/v1/integrations", handlers.RequireAuth(signer, integrationHandler.List))
	mux.HandleFunc("/api/v1/integrations/google/connect", handlers.RequireAuth(signer, integrationHandler.GoogleConnect))
	mux.HandleFunc("/api/v1/integrations/google/callback", integrationHandler.GoogleCallback)

	if secret := config.String("STRIPE_WEBHOOK_SECRET", ""); secret != "" {
		paymentWebhook := handlers.NewPaymentWebhookHandler(meetings, inboxRepo, logger, secret)
		mux.HandleFunc("/api/v1/payments/webhooks/stripe", paymentWebhook.Stripe)
	}

	mux.Handle("/api/v1/public/event-types", public(publicHandler.EventTypes))
	mux.Handle("/api/v1/public/slots", public(publicHandler.Slots))
	mux.Handle("/api/v1/public/book", public(publicHandler.Book))
	mux.Handle("/api/v1/public/meetings/cancel", public(publicHandler.Cancel))

	bodyLimit := int64(config.Int("MAX_BODY_BYTES", 1<<20))
	requestTimeout := config.Seconds("REQUEST_TIMEOUT_SECONDS", 15*time.Second)
	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(requestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
