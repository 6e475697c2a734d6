package transaction

import (
	"github.com/reliefops/disburse/internal/transaction/repository"
	"github.com/reliefops/disburse/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
