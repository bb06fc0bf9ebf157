package providers

import (
	"github.com/smallbiznis/kost/internal/providers/email"
	"github.com/smallbiznis/kost/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
