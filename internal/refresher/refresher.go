// Package refresher runs the client's periodic background jobs: refetching the events keys and
// purging expired persisted snapshots.
package refresher

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jaemin-s/eventsync/pkg/logger"
)

const (
	defaultRefreshSpec = "@every 1m"
	defaultPurgeSpec   = "@hourly"
	jobTimeout         = 30 * time.Second
)

// Refreshable is refetched on every refresh tick. eventsync.Client satisfies it.
type Refreshable interface {
	Refresh(ctx context.Context) error
}

// Purger drops persisted values that expired before now. cache.DatabaseStore satisfies it.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Refresher schedules the jobs on a cron. Either dependency may be nil to skip its job.
type Refresher struct {
	target Refreshable
	purger Purger
	cron   *cron.Cron
	now    func() time.Time
	log    *zap.Logger

	refreshSchedule string
	purgeSchedule   string
}

// Option customises the Refresher.
type Option func(*Refresher)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(r *Refresher) {
		if c != nil {
			r.cron = c
		}
	}
}

// WithNow overrides the clock passed to the purger.
func WithNow(now func() time.Time) Option {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRefreshSchedule overrides the cron specification for refetching.
func WithRefreshSchedule(spec string) Option {
	return func(r *Refresher) {
		if spec != "" {
			r.refreshSchedule = spec
		}
	}
}

// WithPurgeSchedule overrides the cron specification for purging expired snapshots.
func WithPurgeSchedule(spec string) Option {
	return func(r *Refresher) {
		if spec != "" {
			r.purgeSchedule = spec
		}
	}
}

// New constructs a Refresher with default schedules.
func New(target Refreshable, purger Purger, opts ...Option) *Refresher {
	r := &Refresher{
		target:          target,
		purger:          purger,
		now:             time.Now,
		refreshSchedule: defaultRefreshSpec,
		purgeSchedule:   defaultPurgeSpec,
		log:             logger.WithModule("refresher"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cron == nil {
		r.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return r
}

// Start registers the jobs and launches the scheduler. It is a no-op when nothing is configured.
func (r *Refresher) Start() error {
	if r.target == nil && r.purger == nil {
		return nil
	}

	if r.target != nil {
		if _, err := r.cron.AddFunc(r.refreshSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if err := r.refresh(ctx); err != nil {
				r.log.Warn("background refresh failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if r.purger != nil {
		if _, err := r.cron.AddFunc(r.purgeSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if err := r.purge(ctx); err != nil {
				r.log.Warn("snapshot purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	r.cron.Start()
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs complete.
func (r *Refresher) Stop() context.Context {
	if r.cron == nil {
		return context.Background()
	}
	return r.cron.Stop()
}

// RunOnce executes every configured job once and aggregates their errors.
func (r *Refresher) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if r.target != nil {
		errs = multierr.Append(errs, r.refresh(ctx))
	}
	if r.purger != nil {
		errs = multierr.Append(errs, r.purge(ctx))
	}
	return errs
}

func (r *Refresher) refresh(ctx context.Context) error {
	return r.target.Refresh(ctx)
}

func (r *Refresher) purge(ctx context.Context) error {
	removed, err := r.purger.PurgeExpired(ctx, r.now())
	if err != nil {
		return err
	}
	if removed > 0 {
		r.log.Debug("purged expired snapshots", zap.Int64("removed", removed))
	}
	return nil
}
