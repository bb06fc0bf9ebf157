package tenancy

import (
	"github.com/smallbiznis/kost/internal/tenancy/repository"
	"github.com/smallbiznis/kost/internal/tenancy/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenancy.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
