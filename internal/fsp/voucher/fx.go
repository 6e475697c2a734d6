package voucher

import (
	"github.com/reliefops/disburse/internal/config"
	"github.com/reliefops/disburse/internal/fsp/voucher/api"
	"github.com/reliefops/disburse/internal/fsp/voucher/repository"
	"github.com/reliefops/disburse/internal/fsp/voucher/service"
	"go.uber.org/fx"
)

func provideClient(cfg config.Config) api.Client {
	if cfg.UseMockFsp {
		return api.NewMock()
	}
	return api.NewHTTPClient(cfg.VoucherBaseURL)
}

var Module = fx.Module("voucher.service",
	fx.Provide(provideClient),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
