package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/reliefops/disburse/internal/clock"
	"github.com/reliefops/disburse/internal/config"
	"github.com/reliefops/disburse/internal/fsp/integrations"
	"github.com/reliefops/disburse/internal/fsp/visa"
	"github.com/reliefops/disburse/internal/fsp/voucher"
	"github.com/reliefops/disburse/internal/migration"
	"github.com/reliefops/disburse/internal/notification"
	"github.com/reliefops/disburse/internal/observability"
	"github.com/reliefops/disburse/internal/program"
	"github.com/reliefops/disburse/internal/queue"
	"github.com/reliefops/disburse/internal/registration"
	"github.com/reliefops/disburse/internal/scheduler"
	"github.com/reliefops/disburse/internal/secrets"
	"github.com/reliefops/disburse/internal/transaction"
	"github.com/reliefops/disburse/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services required by the sweeps
		registration.Module,
		program.Module,
		secrets.Module,
		transaction.Module,
		notification.Module,
		visa.Module,
		voucher.Module,
		integrations.Module,
		queue.Module,

		// No server module!
		scheduler.Module,
		scheduler.RunModule,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
