package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gleamops/fieldops-api/internal/handler"
	"github.com/gleamops/fieldops-api/internal/repository"
	"github.com/gleamops/fieldops-api/internal/service"
	"github.com/gleamops/fieldops-api/pkg/cache"
	"github.com/gleamops/fieldops-api/pkg/config"
	"github.com/gleamops/fieldops-api/pkg/database"
	"github.com/gleamops/fieldops-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zapLogger, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		zapLogger.Fatal("connect postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The API runs without Redis; detector lookups just skip the cache.
		zapLogger.Warn("connect redis, continuing without cache", zap.Error(err))
		redisClient = nil
	}

	ticketRepo := repository.NewTicketRepository(db)
	planningRepo := repository.NewPlanningRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	conflictRepo := repository.NewConflictRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, zapLogger)
	defer func() { _ = cacheRepo.Close() }()

	gate := service.NewRoleGate()
	metrics := service.NewMetricsService()
	auditRecorder := service.NewAuditRecorder(auditRepo, zapLogger, cfg.Planning.DependentWriteRetries)

	detector := service.NewConflictDetector(ticketRepo, periodRepo, directoryRepo,
		service.WithDetectorCache(cacheRepo, cfg.Planning.DirectoryCacheTTL),
		service.WithTravelBuffer(cfg.Planning.TravelBuffer),
		service.WithDetectorTimeout(cfg.Planning.DetectorTimeout),
		service.WithDetectorLogger(zapLogger),
	)

	applyService := service.NewPlanningApplyService(planningRepo, ticketRepo, detector, gate, auditRecorder,
		service.WithApplyCache(cacheRepo),
		service.WithApplyMetrics(metrics),
		service.WithApplyLogger(zapLogger),
		service.WithDependentWriteRetries(cfg.Planning.DependentWriteRetries),
	)
	planningService := service.NewPlanningService(planningRepo, directoryRepo, gate, auditRecorder, zapLogger)
	periodService := service.NewSchedulePeriodService(periodRepo, ticketRepo, conflictRepo, detector, gate, auditRecorder, zapLogger,
		service.WithPeriodMetrics(metrics),
	)
	tradeService := service.NewShiftTradeService(tradeRepo, ticketRepo, directoryRepo, detector, gate, auditRecorder,
		service.WithTradeCache(cacheRepo),
		service.WithTradeMetrics(metrics),
		service.WithTradeLogger(zapLogger),
	)
	reportService := service.NewConflictReportService(conflictRepo, cfg.Reports.Enabled)
	authService := service.NewAuthService(cfg.JWT.Secret)

	router := handler.NewRouter(handler.RouterDeps{
		Config:   cfg,
		Logger:   zapLogger,
		Auth:     authService,
		Metrics:  metrics,
		Health:   handler.NewHealthHandler(db, redisClient),
		Planning: handler.NewPlanningHandler(planningService, applyService),
		Periods:  handler.NewSchedulePeriodHandler(periodService, reportService),
		Trades:   handler.NewShiftTradeHandler(tradeService),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zapLogger.Info("server listening", zap.Int("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("graceful shutdown", zap.Error(err))
	}
}
