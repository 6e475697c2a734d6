// Package integrations assembles the provider registry the queue workers
// dispatch against.
package integrations

import (
	"context"

	"github.com/reliefops/disburse/internal/fsp"
	visadomain "github.com/reliefops/disburse/internal/fsp/visa/domain"
	voucherdomain "github.com/reliefops/disburse/internal/fsp/voucher/domain"
	"go.uber.org/fx"
)

// voucherIntegration binds the shared voucher service to one provider name.
type voucherIntegration struct {
	svc  voucherdomain.Service
	name string
}

func (v *voucherIntegration) Provider() string { return v.name }

func (v *voucherIntegration) SendPayment(ctx context.Context, job fsp.PaymentJob) (fsp.Result, error) {
	return v.svc.SendPayment(ctx, job, v.name)
}

func NewRegistry(visa visadomain.Service, voucher voucherdomain.Service) *fsp.Registry {
	registry := fsp.NewRegistry()
	registry.Register(visa)
	registry.Register(&voucherIntegration{svc: voucher, name: fsp.ProviderVoucherWhatsapp})
	registry.Register(&voucherIntegration{svc: voucher, name: fsp.ProviderVoucherPaper})
	return registry
}

var Module = fx.Module("fsp.integrations",
	fx.Provide(NewRegistry),
)
