// Package scheduler runs periodic maintenance jobs. Its one job today
// is the stuck-item watchdog: the pipeline imposes no timeout of its
// own, so an item parked in processing past the threshold is surfaced
// through logs and metrics for operators. The watchdog observes; it
// never transitions state.
package scheduler

import (
	"context"
	"time"

	"github.com/guidely/guidely/internal/clock"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/pkg/db/option"
	"github.com/guidely/guidely/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Config struct {
	Interval       time.Duration
	StuckThreshold time.Duration
	JobTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = 30 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	return c
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Config Config `optional:"true"`
}

type Scheduler struct {
	log   *zap.Logger
	cfg   Config
	clock clock.Clock
	items repository.Repository[itemdomain.Item]

	stop chan struct{}
	done chan struct{}
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:   p.Log.Named("scheduler"),
		cfg:   p.Config.withDefaults(),
		clock: p.Clock,
		items: repository.ProvideStore[itemdomain.Item](p.DB),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.loop()
}

func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runJob("stuck_item_watchdog", s.CheckStuckItems)
		}
	}
}

func (s *Scheduler) runJob(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	err := fn(ctx)
	fields := []zap.Field{
		zap.String("job", name),
		zap.Int64("duration_ms", s.clock.Now().Sub(start).Milliseconds()),
	}
	if err != nil {
		s.log.Error("job failed", append(fields, zap.Error(err))...)
		return
	}
	s.log.Debug("job finished", fields...)
}

// CheckStuckItems reports items sitting in processing longer than the
// threshold.
func (s *Scheduler) CheckStuckItems(ctx context.Context) error {
	stuck, err := s.findStuck(ctx)
	if err != nil {
		return err
	}

	for _, item := range stuck {
		s.log.Warn("item stuck in processing",
			zap.String("item_id", item.ID.String()),
			zap.String("code", item.Code),
			zap.String("company_id", item.CompanyID.String()),
			zap.Time("created_at", item.CreatedAt),
		)
	}
	return nil
}

func (s *Scheduler) findStuck(ctx context.Context) ([]*itemdomain.Item, error) {
	cutoff := s.clock.Now().Add(-s.cfg.StuckThreshold)
	return s.items.Find(ctx, &itemdomain.Item{Status: itemdomain.StatusProcessing},
		option.WithCondition("created_at < ?", cutoff),
		option.WithOrder("created_at ASC"),
	)
}

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				s.Stop()
				return nil
			},
		})
	}),
)
