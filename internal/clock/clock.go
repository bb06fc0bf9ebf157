package clock

import (
	"time"

	"github.com/smallbiznis/kost/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("clock",
	fx.Provide(func(cfg config.Config) Clock {
		return NewSystemClock(cfg.Location())
	}),
)

// Clock supplies the current instant. Billing periods and due dates are
// computed from the wall clock in the property's timezone.
type Clock interface {
	Now() time.Time
}

type SystemClock struct {
	loc *time.Location
}

func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return SystemClock{loc: loc}
}

func (c SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}
