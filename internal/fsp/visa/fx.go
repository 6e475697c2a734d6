package visa

import (
	"github.com/reliefops/disburse/internal/config"
	"github.com/reliefops/disburse/internal/fsp/visa/api"
	"github.com/reliefops/disburse/internal/fsp/visa/repository"
	"github.com/reliefops/disburse/internal/fsp/visa/service"
	"go.uber.org/fx"
)

func provideClient(cfg config.Config) api.Client {
	if cfg.UseMockFsp {
		return api.NewMock()
	}
	return api.NewHTTPClient(cfg.VisaBaseURL)
}

var Module = fx.Module("visa.service",
	fx.Provide(provideClient),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
