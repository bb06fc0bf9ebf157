package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	billingdomain "github.com/smallbiznis/kost/internal/billing/domain"
	"github.com/smallbiznis/kost/internal/clock"
	"github.com/smallbiznis/kost/internal/config"
	obsmetrics "github.com/smallbiznis/kost/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobGenerateBills = "generate_bills"
	LockKeyGenerate  = "kost:billing:generate"

	TriggerCron   = "cron"
	TriggerManual = "manual"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrLockHeld      = errors.New("generation_already_running")
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	BillingSvc billingdomain.Service
	Config     *config.SchedulerConfigHolder
	Lock       RunLock                       `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingSvc billingdomain.Service
	cfg        *config.SchedulerConfigHolder
	lock       RunLock

	cron    *cron.Cron
	entryID cron.EntryID
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.BillingSvc == nil || p.Config == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		genID:      p.GenID,
		clock:      p.Clock,
		billingSvc: p.BillingSvc,
		cfg:        p.Config,
		lock:       p.Lock,
	}, nil
}

// Start registers the generation job on the configured cron spec. Fires are
// evaluated in loc. A fire that overlaps a running one is skipped.
func (s *Scheduler) Start(ctx context.Context, loc *time.Location) error {
	cfg := s.cfg.Get()
	clog := cronLogger{log: s.log.Sugar()}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	id, err := s.cron.AddFunc(cfg.Cron, func() {
		s.observeLag()
		if err := s.RunScheduled(ctx); err != nil {
			s.log.Warn("scheduled bill generation failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register cron %q: %w", cfg.Cron, err)
	}
	s.entryID = id
	s.cron.Start()

	s.log.Info("scheduler started",
		zap.String("cron", cfg.Cron),
		zap.String("timezone", loc.String()),
		zap.Time("next_run", s.cron.Entry(id).Next),
	)
	return nil
}

// Stop waits for a running job to return.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Scheduler) observeLag() {
	if s.cron == nil {
		return
	}
	entry := s.cron.Entry(s.entryID)
	if entry.Prev.IsZero() {
		return
	}
	obsmetrics.Scheduler().ObserveRunLoopLag(time.Since(entry.Prev))
}

// RunScheduled is one cron fire. It generates bills only when the scheduler
// is enabled, auto generation is on and today is the configured day.
func (s *Scheduler) RunScheduled(ctx context.Context) error {
	cfg := s.cfg.Get()
	schedMetrics := obsmetrics.Scheduler()
	if !cfg.Enabled {
		schedMetrics.IncJobSkipped(JobGenerateBills, obsmetrics.SchedulerSkipReasonDisabled)
		s.logJobSkipped(ctx, JobGenerateBills, obsmetrics.SchedulerSkipReasonDisabled)
		return nil
	}

	setting, err := s.billingSvc.GetSetting(ctx)
	if err != nil {
		return fmt.Errorf("load billing setting: %w", err)
	}
	today := s.clock.Now()
	if !setting.AutoGenerateEnabled {
		schedMetrics.IncJobSkipped(JobGenerateBills, obsmetrics.SchedulerSkipReasonAutoGenerateOff)
		s.logJobSkipped(ctx, JobGenerateBills, obsmetrics.SchedulerSkipReasonAutoGenerateOff)
		return nil
	}
	if !setting.DueOn(today) {
		schedMetrics.IncJobSkipped(JobGenerateBills, obsmetrics.SchedulerSkipReasonNotDue)
		s.logger(ctx).Debug("scheduler.job.skipped",
			zap.String("job", JobGenerateBills),
			zap.String("reason", obsmetrics.SchedulerSkipReasonNotDue),
			zap.Int("generation_day", setting.GenerationDay),
		)
		return nil
	}

	_, err = s.generate(ctx, TriggerCron)
	return err
}

// RunNow generates bills for the current month regardless of settings.
func (s *Scheduler) RunNow(ctx context.Context) (billingdomain.GenerateSummary, error) {
	return s.generate(ctx, TriggerManual)
}

func (s *Scheduler) generate(ctx context.Context, trigger string) (billingdomain.GenerateSummary, error) {
	cfg := s.cfg.Get()

	release, err := s.acquire(ctx, cfg.LockTTL)
	if err != nil {
		return billingdomain.GenerateSummary{}, err
	}
	defer release()

	var summary billingdomain.GenerateSummary
	err = s.runJob(ctx, JobGenerateBills, trigger, cfg.Timeout, func(ctx context.Context) error {
		var err error
		summary, err = s.billingSvc.GenerateMonthlyBills(ctx, s.clock.Now())
		if run := jobRunFromContext(ctx); run != nil {
			run.AddProcessed(summary.Generated)
			run.AddSkipped(summary.Skipped)
			run.AddErrors(summary.Failed)
		}
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%w: %d of %d tenants", obsmetrics.ErrPartialFailure, summary.Failed, summary.TenantsConsidered)
		}
		return nil
	})
	return summary, err
}

// acquire takes the cross-process lock when one is configured.
func (s *Scheduler) acquire(ctx context.Context, ttl time.Duration) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	token, ok, err := s.lock.TryLock(ctx, LockKeyGenerate, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire generation lock: %w", err)
	}
	if !ok {
		obsmetrics.Scheduler().IncJobSkipped(JobGenerateBills, obsmetrics.SchedulerSkipReasonLockHeld)
		s.logJobSkipped(ctx, JobGenerateBills, obsmetrics.SchedulerSkipReasonLockHeld)
		return nil, ErrLockHeld
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx, LockKeyGenerate, token); err != nil {
			s.log.Warn("release generation lock", zap.Error(err))
		}
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	trigger string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, trigger)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(zap.String("run_id", run.runID))
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.AddErrors(1)
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
	}
	return fmt.Errorf("%s: %w", name, err)
}
