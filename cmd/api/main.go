package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/flicky/farm-market-api/internal/config"
	"github.com/flicky/farm-market-api/internal/handler"
	"github.com/flicky/farm-market-api/internal/mail"
	"github.com/flicky/farm-market-api/internal/metrics"
	"github.com/flicky/farm-market-api/internal/middleware"
	"github.com/flicky/farm-market-api/internal/migrations"
	"github.com/flicky/farm-market-api/internal/notify"
	"github.com/flicky/farm-market-api/internal/repository"
	"github.com/flicky/farm-market-api/internal/service"
	"github.com/flicky/farm-market-api/internal/storage"
	"github.com/flicky/farm-market-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// Prices and totals are JSON numbers, as clients expect.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	if cfg.DB.AutoMigrate {
		if err := migrations.Up(ctx, dbPool); err != nil {
			log.Error("run migrations", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	publishCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ publish channel", "error", err)
		os.Exit(1)
	}
	defer publishCh.Close()

	consumeCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ consume channel", "error", err)
		os.Exit(1)
	}
	defer consumeCh.Close()

	if err := worker.SetupRabbitMQ(consumeCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// Blob storage
	store, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		log.Error("init storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	categoryRepo := repository.NewCategoryRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)

	// Services
	notifier := notify.NewNotifier(publishCh, log, m)
	authSvc := service.NewAuthService(userRepo, notifier, cfg.JWT.Secret, cfg.JWT.Expiration)
	userSvc := service.NewUserService(userRepo)
	categorySvc := service.NewCategoryService(categoryRepo)
	productSvc := service.NewProductService(productRepo, userRepo, categoryRepo, store, redisClient, log)
	orderSvc := service.NewOrderService(orderRepo, productRepo, userRepo, notifier, redisClient, m, log)

	if n, err := categorySvc.SeedDefaults(ctx); err != nil {
		log.Error("seed categories", "error", err)
		os.Exit(1)
	} else if n > 0 {
		log.Info("seeded default categories", "count", n)
	}

	// Handlers
	userH := handler.NewUserHandler(authSvc, userSvc)
	categoryH := handler.NewCategoryHandler(categorySvc)
	productH := handler.NewProductHandler(productSvc)
	uploadH := handler.NewUploadHandler(store)
	orderH := handler.NewOrderHandler(orderSvc)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn)

	// Worker
	var sender mail.Sender
	if cfg.Mail.Enabled {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	}
	notificationWorker := worker.NewNotificationWorker(consumeCh, worker.NewRedisSentLog(redisClient), sender, log, m)

	// Router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logging(log), m.Middleware())

	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	auth := middleware.Optional(cfg.JWT.Enforce, cfg.JWT.Secret)
	api := router.Group("/api")
	{
		api.GET("/health", healthH.Health)

		users := api.Group("/users")
		users.POST("/register", userH.Register)
		users.POST("/login", userH.Login)
		users.POST("/google-login", userH.GoogleLogin)
		users.GET("/:id", userH.Get)
		users.PUT("/:id", auth, userH.Update)

		categories := api.Group("/categories")
		categories.GET("", categoryH.List)
		categories.POST("", auth, categoryH.Create)

		products := api.Group("/products")
		products.GET("", productH.List)
		products.GET("/:id", productH.GetByID)
		products.POST("", auth, productH.Create)
		products.PUT("/:id", auth, productH.Update)
		products.DELETE("/:id", auth, productH.Delete)

		api.GET("/uploads/:filename", uploadH.Serve)

		orders := api.Group("/orders")
		orders.GET("", orderH.ListOrders)
		orders.GET("/:id", orderH.GetOrder)
		orders.POST("", auth, orderH.CreateOrder)
		orders.PUT("/:id", auth, orderH.UpdateOrder)
	}

	if err := notificationWorker.Start(ctx); err != nil {
		log.Error("start notification worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.CORS(cfg.Server.CORSOrigins)(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port, "auth_enforced", cfg.JWT.Enforce)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	notificationWorker.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, error) {
	if cfg.Driver == "s3" {
		return storage.NewS3Store(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			Key:       cfg.S3Key,
			Secret:    cfg.S3Secret,
			PublicURL: cfg.S3PublicURL,
			MaxBytes:  cfg.MaxBytes,
		})
	}
	return storage.NewLocalStore(cfg.LocalDir, "/api/uploads", cfg.MaxBytes)
}
