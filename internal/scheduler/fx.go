package scheduler

import (
	"context"

	"github.com/smallbiznis/kost/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideRunLock),
	fx.Provide(New),
)

// Run starts the cron loop with the application lifecycle.
var Run = fx.Invoke(Register)

func Register(lc fx.Lifecycle, cfg config.Config, holder *config.SchedulerConfigHolder, sched *Scheduler, log *zap.Logger) {
	if !holder.Get().Enabled {
		log.Info("scheduler disabled by configuration")
		return
	}

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			return sched.Start(ctx, cfg.Location())
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			sched.Stop()
			return nil
		},
	})
}
