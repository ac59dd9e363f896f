package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/kursadbilgin/order-relay/internal/config"
	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/handler"
	"github.com/kursadbilgin/order-relay/internal/infra/postgresql"
	"github.com/kursadbilgin/order-relay/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/order-relay/internal/infra/redis"
	"github.com/kursadbilgin/order-relay/internal/mailbox"
	"github.com/kursadbilgin/order-relay/internal/observability"
	"github.com/kursadbilgin/order-relay/internal/provider"
	"github.com/kursadbilgin/order-relay/internal/queue"
	"github.com/kursadbilgin/order-relay/internal/repository"
	"github.com/kursadbilgin/order-relay/internal/service"
	"github.com/kursadbilgin/order-relay/internal/transport"
)

const (
	imapDialTimeout  = 10 * time.Second
	shutdownTimeout  = 15 * time.Second
	settingsCacheTTL = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("order-relay exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer broker.Close()

	jobs := repository.NewGormJobRepo(db)
	attempts := repository.NewGormAttemptRepo(db)
	batches := repository.NewGormBatchRepo(db)
	messages := repository.NewGormMessageRepo(db)
	settings := repository.NewGormSettingsRepo(db)

	metrics := observability.NewMetrics()
	settingsCache := infraredis.NewSettingsCache(rdb, settingsCacheTTL)

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	registry, err := buildProviderRegistry(cfg)
	if err != nil {
		return fmt.Errorf("provider registry initialization failed: %w", err)
	}

	publisher := queue.NewRabbitMQPublisher(broker)
	consumer := queue.NewRabbitMQConsumer(broker, cfg.WorkerConcurrency, logger)

	dispatch, err := service.NewDispatchService(jobs, batches, attempts, settings, publisher, logger)
	if err != nil {
		return err
	}

	ingest, err := service.NewIngestService(messages, settings, settingsCache, dispatch, logger)
	if err != nil {
		return err
	}
	ingest.SetMetrics(metrics)

	worker, err := service.NewWorkerService(jobs, attempts, settings, consumer, registry, rateLimiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		return err
	}
	worker.SetMetrics(metrics)

	retryScanner, err := service.NewRetryScanner(jobs, publisher, cfg.RetryScanCron, 0, logger)
	if err != nil {
		return err
	}
	scheduler, err := service.NewScheduler(jobs, publisher, 0, 0, logger)
	if err != nil {
		return err
	}

	controller, err := service.NewQueueController(logger, worker, retryScanner, scheduler)
	if err != nil {
		return err
	}
	if err := controller.Start(ctx); err != nil {
		return err
	}
	defer controller.Stop()

	supervisor, err := service.NewMonitorSupervisor(
		settings,
		mailbox.NewIMAPClient(imapDialTimeout),
		ingest,
		logger,
		mailbox.WithPollInterval(time.Duration(cfg.MailboxPollSeconds)*time.Second),
		mailbox.WithMaxReconnects(cfg.MailboxMaxReconnects),
	)
	if err != nil {
		return err
	}
	supervisor.SetMetrics(metrics)

	go func() {
		if err := supervisor.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("mailbox supervision stopped with error", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterNotificationRoutes(app, dispatch); err != nil {
		return err
	}
	if err := handler.RegisterOpsRoutes(app, controller, dispatch, supervisor, registry); err != nil {
		return err
	}
	if err := handler.RegisterOrderRoutes(app, ingest); err != nil {
		return err
	}

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(metrics.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("order-relay api started", zap.Int("port", cfg.APIPort))

	select {
	case err := <-errCh:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildProviderRegistry(cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	sms, err := provider.NewSMSProvider(cfg.SMSGatewayURL, cfg.ProviderAPIKey, cfg.SMSSenderNumber)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(sms); err != nil {
		return nil, err
	}

	if cfg.ChatAGatewayURL != "" {
		chatA, err := provider.NewChatProvider("chat_a", domain.ChannelChatA, cfg.ChatAGatewayURL, cfg.ProviderAPIKey, "order-relay")
		if err != nil {
			return nil, err
		}
		if err := registry.Register(chatA); err != nil {
			return nil, err
		}
	}

	if cfg.ChatBGatewayURL != "" {
		chatB, err := provider.NewChatProvider("chat_b", domain.ChannelChatB, cfg.ChatBGatewayURL, cfg.ProviderAPIKey, "order-relay")
		if err != nil {
			return nil, err
		}
		if err := registry.Register(chatB); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
