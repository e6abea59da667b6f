package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/schoolhub/internal/ai"
	"github.com/suPer8Hu/schoolhub/internal/analytics"
	"github.com/suPer8Hu/schoolhub/internal/config"
	"github.com/suPer8Hu/schoolhub/internal/db"
	"github.com/suPer8Hu/schoolhub/internal/logger"
	"github.com/suPer8Hu/schoolhub/internal/store/rabbitmq"
	"github.com/suPer8Hu/schoolhub/internal/store/redisstore"
	"go.uber.org/zap"
)

const (
	maxAttempts = 3
	baseBackoff = 5 * time.Second
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

	engine := analytics.NewEngine(analytics.NewRepo(gdb), provider, hot, log, analytics.Options{
		CacheTTL:       cfg.AnalyticsCacheTTL,
		LookbackDays:   cfg.AnalyticsLookbackDays,
		CacheRetention: cfg.AnalyticsCacheRetention,
	})

	// retries are published on their own channel
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbit publisher", zap.Error(err))
	}
	defer func() { _ = pub.Close() }()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	queues, err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("queue declare", zap.Error(err))
	}

	// strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(queues.Main, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started", zap.String("queue", queues.Main), zap.Int("concurrency", concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With(zap.Int("worker", workerID))
			for d := range jobs {
				handleDelivery(ctx, wlog, engine, pub, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, log *zap.Logger, engine *analytics.Engine, pub *rabbitmq.Publisher, d amqp.Delivery) {
	var m rabbitmq.JobMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
		log.Warn("bad message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	attempt := rabbitmq.Attempt(d.Headers)
	start := time.Now()
	err := engine.RunJob(ctx, m.JobID)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Error("ack failed", zap.String("job_id", m.JobID), zap.Error(err))
		}
		log.Info("job done", zap.String("job_id", m.JobID), zap.Duration("cost", time.Since(start)))
		return
	}

	log.Warn("job failed",
		zap.String("job_id", m.JobID),
		zap.Int("attempt", attempt),
		zap.Duration("cost", time.Since(start)),
		zap.Error(err),
	)

	if ctx.Err() != nil {
		// shutting down; let another consumer pick it up
		_ = d.Nack(false, true)
		return
	}

	// only upstream failures are worth another try
	if errors.Is(err, ai.ErrUpstream) && attempt+1 < maxAttempts {
		delay := baseBackoff << attempt
		perr := pub.PublishRetry(ctx, m.JobID, delay, attempt+1)
		if perr == nil {
			_ = d.Ack(false)
			return
		}
		log.Error("publish retry", zap.String("job_id", m.JobID), zap.Error(perr))
	}
	// dead-letter to DLQ
	_ = d.Nack(false, false)
}
