package registration

import (
	"github.com/reliefops/disburse/internal/registration/repository"
	"github.com/reliefops/disburse/internal/registration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("registration.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
