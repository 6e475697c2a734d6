package program

import (
	"github.com/reliefops/disburse/internal/program/repository"
	"github.com/reliefops/disburse/internal/program/service"
	"go.uber.org/fx"
)

var Module = fx.Module("program.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
