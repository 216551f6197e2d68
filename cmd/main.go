package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cpa-distribution-system/internal/config"
	"cpa-distribution-system/internal/configcache"
	"cpa-distribution-system/internal/handler"
	"cpa-distribution-system/internal/repository"
	"cpa-distribution-system/internal/scheduler"
	"cpa-distribution-system/internal/service"
	"cpa-distribution-system/pkg/logger"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer closeDatabase(db)

	participantRepo := repository.NewParticipantRepository(db)
	eventRepo := repository.NewEventRepository(db)
	distributionRepo := repository.NewDistributionRepository(db)
	statisticsRepo := repository.NewStatisticsRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	pendingRepo := repository.NewPendingRepository(db)

	provider := configcache.NewProvider(cfg.ConfigSource.BaseURL, time.Duration(cfg.ConfigSource.FetchTimeout)*time.Second)
	cache := configcache.NewCache(provider, time.Duration(cfg.ConfigSource.CacheTTL)*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if redisClient := initRedis(cfg.Redis); redisClient != nil {
		defer redisClient.Close()
		subscriber := configcache.NewSubscriber(
			redisClient,
			cfg.Redis.InvalidateChannel,
			cache,
			time.Duration(cfg.ConfigSource.ResubscribeBaseWait)*time.Second,
			time.Duration(cfg.ConfigSource.ResubscribeMaxWait)*time.Second,
			cfg.ConfigSource.ResubscribeRetries,
		)
		defer subscriber.Stop()
		go subscriber.Start(ctx)
	}

	hierarchySvc := service.NewHierarchyService(participantRepo)
	statisticsSvc := service.NewStatisticsService(statisticsRepo, distributionRepo)
	orchestrator := service.NewDistributionOrchestrator(
		cache,
		hierarchySvc,
		eventRepo,
		statisticsSvc,
		auditRepo,
		pendingRepo,
		service.DistributionDefaults{
			MaxLevels:     cfg.Distribution.DefaultMaxLevels,
			Currency:      cfg.Distribution.DefaultCurrency,
			MinimumPayout: cfg.Distribution.DefaultMinimumPayout,
		},
	)

	batchScheduler := scheduler.NewBatchScheduler(orchestrator, cfg.Distribution.BatchCron, cfg.Distribution.BatchLimit)
	if err := batchScheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler:", err)
	}
	defer batchScheduler.Stop()

	router := setupHTTPRouter(routerDeps{
		db:            db,
		provider:      provider,
		orchestrator:  orchestrator,
		hierarchySvc:  hierarchySvc,
		statisticsSvc: statisticsSvc,
		scheduler:     batchScheduler,
		events:        eventRepo,
		distributions: distributionRepo,
		audits:        auditRepo,
		pending:       pendingRepo,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting on port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error:", err)
	}

	logger.Info("Server stopped")
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	return db, nil
}

func closeDatabase(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get database instance:", err)
		return
	}
	sqlDB.Close()
}

// initRedis Redis不可用时返回nil，配置推送失效降级为纯拉取模式
func initRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		logger.Warn("Redis address not configured, config push invalidation disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Warn("Redis connection failed, config push invalidation disabled:", err)
		client.Close()
		return nil
	}

	logger.Info("Connected to Redis")
	return client
}

type routerDeps struct {
	db            *gorm.DB
	provider      *configcache.Provider
	orchestrator  *service.DistributionOrchestrator
	hierarchySvc  *service.HierarchyService
	statisticsSvc *service.StatisticsService
	scheduler     *scheduler.BatchScheduler
	events        *repository.EventRepository
	distributions *repository.DistributionRepository
	audits        *repository.AuditRepository
	pending       *repository.PendingRepository
}

func setupHTTPRouter(deps routerDeps) http.Handler {
	router := http.NewServeMux()

	commissionHandler := handler.NewCommissionHandler(deps.orchestrator)
	queryHandler := handler.NewCommissionQueryHandler(deps.events, deps.distributions, deps.audits)
	hierarchyHandler := handler.NewHierarchyHandler(deps.hierarchySvc)
	statisticsHandler := handler.NewStatisticsHandler(deps.statisticsSvc)
	batchHandler := handler.NewBatchHandler(deps.scheduler, deps.pending)
	auditHandler := handler.NewAuditHandler(deps.audits)
	healthHandler := handler.NewHealthHandler(deps.db, deps.provider)

	router.HandleFunc("/api/commission/submit", commissionHandler.SubmitCommission)
	router.HandleFunc("/api/commission/", queryHandler.GetCommission)
	router.HandleFunc("/api/hierarchy/upsert", hierarchyHandler.UpsertParticipant)
	router.HandleFunc("/api/hierarchy/deactivate", hierarchyHandler.DeactivateParticipant)
	router.HandleFunc("/api/hierarchy/upline/", hierarchyHandler.GetUpline)
	router.HandleFunc("/api/hierarchy/", hierarchyHandler.GetHierarchy)
	router.HandleFunc("/api/statistics", statisticsHandler.GetStatistics)
	router.HandleFunc("/api/statistics/rebuild", statisticsHandler.RebuildStatistics)
	router.HandleFunc("/api/batch/trigger", batchHandler.TriggerBatch)
	router.HandleFunc("/api/batch/enqueue", batchHandler.EnqueueSource)
	router.HandleFunc("/api/batch/status", batchHandler.BatchStatus)
	router.HandleFunc("/api/audit", auditHandler.GetRecent)
	router.HandleFunc("/health", healthHandler.HandleHealth)

	return router
}
