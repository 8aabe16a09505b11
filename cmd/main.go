/**
 * @description
 * This is the main entry point for the estate billing service. It loads configuration,
 * connects to PostgreSQL, Redis and RabbitMQ, wires the billing engine, starts the
 * generation scheduler and serves the HTTP API until a termination signal arrives.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: initiation lock and rate limiting (optional).
 * - github.com/robfig/cron/v3: location-aware scheduling.
 * - internal/api, internal/app, internal/config, internal/store: service packages.
 * - pkg/flutterwave, pkg/rabbitmq: gateway client and event producer.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/estatehub/billing-service/internal/api"
	"github.com/estatehub/billing-service/internal/app"
	"github.com/estatehub/billing-service/internal/config"
	"github.com/estatehub/billing-service/internal/store"
	"github.com/estatehub/billing-service/pkg/flutterwave"
	"github.com/estatehub/billing-service/pkg/rabbitmq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"No .env file found\"")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting billing-service\" port=%s timezone=%s", cfg.ServerPort, cfg.BusinessTimezone)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; events disabled\" env=RABBITMQ_URL")
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		publisher = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}
	defer publisher.Close()

	redisClient := connectRedis(cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	repository := store.NewRepository(dbpool)
	gateway := flutterwave.NewClient(cfg.FlutterwaveBaseURL, cfg.FlutterwaveSecretKey)

	billingService := app.NewService(repository, gateway, publisher, app.Options{
		Currency:              cfg.DefaultCurrency,
		RedirectURL:           cfg.PaymentRedirectURL,
		Timezone:              cfg.BusinessTimezone,
		GatewayTimeout:        cfg.GatewayTimeout(),
		GenerationConcurrency: cfg.GenerationConcurrency,
		InitiationLockTTL:     cfg.InitiationLockTTL(),
		JWTSecret:             cfg.JWTSecret,
		JWTIssuer:             cfg.JWTIssuer,
		TokenTTL:              cfg.TokenTTL(),
	})

	var limiter api.RateLimiter
	if redisClient != nil {
		billingService.SetInitiationLock(app.NewRedisInitiationLock(redisClient, cfg.RedisKeyPrefix))
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix)
	}

	jobs := app.NewJobs(billingService, logger)
	scheduler := app.NewScheduler(jobs, logger, app.Schedules{
		Monthly: cfg.MonthlyJobSchedule,
		Annual:  cfg.AnnualJobSchedule,
	}, cron.WithLocation(billingService.Location()))
	scheduler.Start()
	logger.Info("scheduler started")

	handler := api.NewHandler(billingService, cfg.FlutterwaveWebhookHash)
	router := api.NewRouter(handler, api.RouterConfig{
		InternalAPIKey:             cfg.InternalAPIKey,
		JWTSecret:                  cfg.JWTSecret,
		JWTIssuer:                  cfg.JWTIssuer,
		RateLimiter:                limiter,
		InitiateRateLimitPerMinute: cfg.InitiateRateLimitPerMinute,
		WebhookRateLimitPerMinute:  cfg.WebhookRateLimitPerMinute,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	logger.Info("stopping scheduler")
	select {
	case <-scheduler.Stop().Done():
		logger.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		logger.Warn("scheduler did not stop before the shutdown deadline")
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// connectRedis returns nil when Redis is not configured or unreachable; the service
// then runs without the initiation lock and rate limits.
func connectRedis(redisURL string) *redis.Client {
	if strings.TrimSpace(redisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; initiation lock and rate limiting disabled\" env=REDIS_URL")
		return nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; initiation lock and rate limiting disabled\" err=%v", err)
		return nil
	}

	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; initiation lock and rate limiting disabled\" err=%v", err)
		client.Close()
		return nil
	}

	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}
