package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/shenikar/incident_reporting_system/internal/auth"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/geocode"
	v1 "github.com/shenikar/incident_reporting_system/internal/handler/http/v1"
	"github.com/shenikar/incident_reporting_system/internal/lock"
	"github.com/shenikar/incident_reporting_system/internal/metrics"
	"github.com/shenikar/incident_reporting_system/internal/repository"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/shenikar/incident_reporting_system/internal/storage"
	"github.com/shenikar/incident_reporting_system/internal/webhook"
	"github.com/shenikar/incident_reporting_system/pkg/logger"
	"github.com/shenikar/incident_reporting_system/pkg/postgres"
	redisclient "github.com/shenikar/incident_reporting_system/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/incident_reporting_system/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Incident Reporting System API
// @version 1.0
// @description Citizen incident reports with duplicate linking, verification and rewards.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New("file://migrations", migrationURL)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// newMediaStore выбирает MinIO, если задан MINIO_ENDPOINT, иначе локальный каталог,
// который раздается роутером по /uploads
func newMediaStore(ctx context.Context, cfg *config.Config, router *gin.Engine, log *logrus.Logger) (service.MediaStore, error) {
	if cfg.MinioEndpoint != "" {
		store, err := storage.NewMinioStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.WithField("bucket", cfg.MinioBucket).Info("Media is stored in MinIO")
		return store, nil
	}

	store, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	router.Static(strings.TrimSuffix(storage.LocalPrefix, "/"), store.Dir())
	log.WithField("dir", store.Dir()).Info("Media is stored on local disk")
	return store, nil
}

func newGeocoder(cfg *config.Config, m *metrics.Metrics) service.Geocoder {
	if cfg.GeocoderURL == "" {
		return geocode.Disabled{}
	}
	return geocode.NewNominatimClient(cfg, m)
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runMigrations(cfg, log); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	dbpool, err := postgres.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	redisClient, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPool,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	// Метрики в собственном реестре вместе со стандартными коллекторами процесса
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(reg)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), appMetrics.Middleware())

	mediaStore, err := newMediaStore(ctx, cfg, router, log)
	if err != nil {
		log.Fatalf("Failed to initialize media storage: %v", err)
	}

	// Вебхуки: издатель кладет события в очередь Redis, воркер доставляет
	webhookPublisher := webhook.NewRedisWebhookPublisher(redisClient)
	webhookWorker := webhook.NewWebhookWorker(redisClient, log, cfg)
	webhookWorker.Start(ctx)

	// Инициализация репозиториев
	incidentRepo := repository.NewIncidentRepository(dbpool, redisClient, cfg.IncidentCacheTTL)
	userRepo := repository.NewUserRepository(dbpool)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	locker := lock.NewRedisLocker(redisClient, cfg.DedupLockTTL)

	// Инициализация сервисов
	incidentService := service.NewIncidentService(
		incidentRepo, locker, mediaStore, newGeocoder(cfg, appMetrics),
		webhookPublisher, appMetrics, log, cfg,
	)
	userService := service.NewUserService(userRepo, incidentRepo, appMetrics, log, cfg)
	authService := service.NewAuthService(userRepo, tokens, log)

	handler := v1.NewHandler(incidentService, userService, authService, tokens, log, cfg)

	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	router.GET("/metrics", gin.WrapH(appMetrics.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	// Останавливаем воркер вебхуков вместе с сервером
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server gracefully stopped")
}
