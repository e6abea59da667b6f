package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CachePurger deletes analytics cache rows past their retention.
type CachePurger interface {
	PurgeExpiredCache(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron    *cron.Cron
	purger  CachePurger
	spec    string
	timeout time.Duration
	log     *zap.Logger
}

// NewScheduler uses six-field cron specs (with seconds).
func NewScheduler(purger CachePurger, spec string, log *zap.Logger) *Scheduler {
	if spec == "" {
		spec = "0 0 * * * *"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		purger:  purger,
		spec:    spec,
		timeout: time.Minute,
		log:     log.Named("scheduler"),
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.PurgeOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("cron jobs started", zap.String("purge_schedule", s.spec))
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("cron jobs stopped")
}

func (s *Scheduler) PurgeOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.purger.PurgeExpiredCache(ctx)
	if err != nil {
		s.log.Error("purge expired analytics cache", zap.Error(err))
		return
	}
	s.log.Info("purged expired analytics cache",
		zap.Int64("rows", n),
		zap.Duration("cost", time.Since(start)),
	)
}
