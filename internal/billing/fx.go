package billing

import (
	"github.com/smallbiznis/kost/internal/billing/notify"
	"github.com/smallbiznis/kost/internal/billing/repository"
	"github.com/smallbiznis/kost/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(notify.New),
	fx.Provide(service.New),
)
