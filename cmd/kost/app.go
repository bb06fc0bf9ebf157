package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kost/internal/billing"
	"github.com/smallbiznis/kost/internal/clock"
	"github.com/smallbiznis/kost/internal/config"
	"github.com/smallbiznis/kost/internal/migration"
	"github.com/smallbiznis/kost/internal/observability"
	"github.com/smallbiznis/kost/internal/payment"
	"github.com/smallbiznis/kost/internal/providers"
	"github.com/smallbiznis/kost/internal/scheduler"
	"github.com/smallbiznis/kost/internal/sequence"
	"github.com/smallbiznis/kost/internal/tenancy"
	"github.com/smallbiznis/kost/pkg/db"
	"go.uber.org/fx"
)

// infra is shared by every command that touches the database.
func infra() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
	)
}

// domains wires the billing workflow and its scheduler.
func domains() fx.Option {
	return fx.Options(
		sequence.Module,
		providers.Module,
		tenancy.Module,
		billing.Module,
		payment.Module,
		scheduler.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}
