package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/schoolhub/internal/ai"
	"github.com/suPer8Hu/schoolhub/internal/analytics"
	"github.com/suPer8Hu/schoolhub/internal/chat"
	"github.com/suPer8Hu/schoolhub/internal/config"
	"github.com/suPer8Hu/schoolhub/internal/db"
	"github.com/suPer8Hu/schoolhub/internal/httpapi"
	"github.com/suPer8Hu/schoolhub/internal/httpapi/handlers"
	"github.com/suPer8Hu/schoolhub/internal/jobs"
	"github.com/suPer8Hu/schoolhub/internal/logger"
	"github.com/suPer8Hu/schoolhub/internal/metrics"
	"github.com/suPer8Hu/schoolhub/internal/store/rabbitmq"
	"github.com/suPer8Hu/schoolhub/internal/store/redisstore"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN, db.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer func() { _ = db.Close(gdb) }()

	if err := db.Migrate(gdb); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	if sqlDB, err := gdb.DB(); err == nil {
		metrics.RegisterDBStats(sqlDB)
	}

	provider, err := ai.NewRegistryFromConfig(cfg).Get(context.Background(), cfg.AIProvider, cfg.AIModel)
	if err != nil {
		log.Fatal("ai provider", zap.Error(err))
	}

	var hot analytics.HotCache
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rds.Ping(context.Background()); err != nil {
		log.Warn("redis unavailable, hot cache disabled", zap.Error(err))
		_ = rds.Close()
	} else {
		hot = rds
		defer func() { _ = rds.Close() }()
	}

	var publisher handlers.JobPublisher
	if pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		log.Warn("rabbitmq unavailable, analytics refresh disabled", zap.Error(err))
	} else {
		publisher = pub
		defer func() { _ = pub.Close() }()
	}

	chatSvc := chat.NewService(chat.NewRepo(gdb), provider, log, chat.Options{
		SummaryMessageThreshold: cfg.SummaryMessageThreshold,
		SummaryTokenThreshold:   cfg.SummaryTokenThreshold,
	})
	engine := analytics.NewEngine(analytics.NewRepo(gdb), provider, hot, log, analytics.Options{
		CacheTTL:       cfg.AnalyticsCacheTTL,
		LookbackDays:   cfg.AnalyticsLookbackDays,
		CacheRetention: cfg.AnalyticsCacheRetention,
	})

	sched := jobs.NewScheduler(engine, cfg.AnalyticsPurgeSchedule, log)
	if err := sched.Start(); err != nil {
		log.Fatal("scheduler", zap.Error(err))
	}
	defer sched.Stop()

	h := handlers.NewHandler(gdb, cfg, log, chatSvc, engine, publisher)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("http server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("env", cfg.AppEnv),
			zap.String("ai_provider", cfg.AIProvider),
			zap.String("ai_model", cfg.AIModel),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}
