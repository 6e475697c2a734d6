package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/reliefops/disburse/internal/clock"
	"github.com/reliefops/disburse/internal/fsp"
	visadomain "github.com/reliefops/disburse/internal/fsp/visa/domain"
	voucherdomain "github.com/reliefops/disburse/internal/fsp/voucher/domain"
	obsmetrics "github.com/reliefops/disburse/internal/observability/metrics"
	regdomain "github.com/reliefops/disburse/internal/registration/domain"
	"github.com/reliefops/disburse/internal/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockVisaSvc struct {
	updateWalletDetails int
	updateErr           error
	stuck               []visadomain.Wallet
	stuckErr            error
}

func (m *mockVisaSvc) Provider() string { return fsp.ProviderVisa }

func (m *mockVisaSvc) SendPayment(ctx context.Context, job fsp.PaymentJob) (fsp.Result, error) {
	return fsp.Result{}, nil
}

func (m *mockVisaSvc) WalletsAndDetails(ctx context.Context, referenceID string, sc scope.Scope) ([]visadomain.WalletDetails, error) {
	return nil, nil
}

func (m *mockVisaSvc) ToggleBlockWallet(ctx context.Context, tokenCode string, block bool) error {
	return nil
}

func (m *mockVisaSvc) ReissueWalletAndCard(ctx context.Context, referenceID string, sc scope.Scope) error {
	return nil
}

func (m *mockVisaSvc) UpdateWalletDetails(ctx context.Context) error {
	m.updateWalletDetails++
	return m.updateErr
}

func (m *mockVisaSvc) StuckWallets(ctx context.Context, olderThan time.Duration) ([]visadomain.Wallet, error) {
	return m.stuck, m.stuckErr
}

type mockVoucherSvc struct {
	cancelRuns   int
	cancelErr    error
	balanceRuns  int
	reminderRuns int
}

func (m *mockVoucherSvc) SendPayment(ctx context.Context, job fsp.PaymentJob, provider string) (fsp.Result, error) {
	return fsp.Result{}, nil
}

func (m *mockVoucherSvc) ProcessDeliveryStatus(ctx context.Context, messageSID, status string) error {
	return nil
}

func (m *mockVoucherSvc) GetBalance(ctx context.Context, referenceID string, paymentNr int, sc scope.Scope) (int64, error) {
	return 0, nil
}

func (m *mockVoucherSvc) ExportVoucherImage(ctx context.Context, referenceID string, paymentNr int, sc scope.Scope) ([]byte, error) {
	return nil, nil
}

func (m *mockVoucherSvc) CancelPendingIssueRequests(ctx context.Context) error {
	m.cancelRuns++
	return m.cancelErr
}

func (m *mockVoucherSvc) UpdateUnusedVouchers(ctx context.Context) error {
	m.balanceRuns++
	return nil
}

func (m *mockVoucherSvc) SendWhatsappReminders(ctx context.Context) error {
	m.reminderRuns++
	return nil
}

func (m *mockVoucherSvc) UnusedVouchers(ctx context.Context) ([]voucherdomain.Voucher, error) {
	return nil, nil
}

type mockDispatcher struct {
	subjects []string
	bodies   []string
}

func (m *mockDispatcher) EnqueueMessage(ctx context.Context, registration *regdomain.Registration, templateKey string, dynamicParams []string) (string, error) {
	return "mock-sid", nil
}

func (m *mockDispatcher) MarkDelivery(ctx context.Context, messageSID, status string) error {
	return nil
}

func (m *mockDispatcher) OperatorAlert(ctx context.Context, subject, body string) error {
	m.subjects = append(m.subjects, subject)
	m.bodies = append(m.bodies, body)
	return nil
}

func newTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	obsmetrics.SetRegisterer(registry)
	obsmetrics.ResetSchedulerMetricsForTest()
	t.Cleanup(func() {
		obsmetrics.SetRegisterer(nil)
		obsmetrics.ResetSchedulerMetricsForTest()
	})
	return registry
}

// jobRunCount reads the run counter for a job and status from a gathered
// registry.
func jobRunCount(t *testing.T, registry *prometheus.Registry, job, status string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	return findJobRunCounter(families, job, status)
}

func findJobRunCounter(families []*dto.MetricFamily, job, status string) float64 {
	for _, family := range families {
		if family.GetName() != "disburse_scheduler_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["job"] == job && labels["status"] == status {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func newScheduler(t *testing.T, visa *mockVisaSvc, voucher *mockVoucherSvc, dispatcher *mockDispatcher, cfg Config) (*Scheduler, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	scheduler, err := New(Params{
		Log:        zap.NewNop(),
		Clock:      clk,
		VisaSvc:    visa,
		VoucherSvc: voucher,
		Dispatcher: dispatcher,
		Config:     cfg,
	})
	require.NoError(t, err)
	return scheduler, clk
}

func TestNew_RejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnce_RespectsPerJobCadence(t *testing.T) {
	newTestRegistry(t)
	visa := &mockVisaSvc{}
	voucher := &mockVoucherSvc{}
	scheduler, clk := newScheduler(t, visa, voucher, &mockDispatcher{}, Config{})
	ctx := context.Background()

	// First pass: everything is due.
	require.NoError(t, scheduler.RunOnce(ctx))
	assert.Equal(t, 1, voucher.cancelRuns)
	assert.Equal(t, 1, voucher.balanceRuns)
	assert.Equal(t, 1, voucher.reminderRuns)
	assert.Equal(t, 1, visa.updateWalletDetails)

	// Immediately after, nothing is due.
	require.NoError(t, scheduler.RunOnce(ctx))
	assert.Equal(t, 1, voucher.cancelRuns)
	assert.Equal(t, 1, visa.updateWalletDetails)

	// Ten minutes later only the cancellation sweep fires again.
	clk.Advance(10 * time.Minute)
	require.NoError(t, scheduler.RunOnce(ctx))
	assert.Equal(t, 2, voucher.cancelRuns)
	assert.Equal(t, 1, voucher.balanceRuns)
	assert.Equal(t, 1, visa.updateWalletDetails)

	// A day later everything is due again.
	clk.Advance(24 * time.Hour)
	require.NoError(t, scheduler.RunOnce(ctx))
	assert.Equal(t, 3, voucher.cancelRuns)
	assert.Equal(t, 2, voucher.balanceRuns)
	assert.Equal(t, 2, voucher.reminderRuns)
	assert.Equal(t, 2, visa.updateWalletDetails)
}

func TestRunOnce_EnabledJobsFilter(t *testing.T) {
	newTestRegistry(t)
	visa := &mockVisaSvc{}
	voucher := &mockVoucherSvc{}
	scheduler, _ := newScheduler(t, visa, voucher, &mockDispatcher{}, Config{
		EnabledJobs: []string{"cancel_vouchers"},
	})

	require.NoError(t, scheduler.RunOnce(context.Background()))
	assert.Equal(t, 1, voucher.cancelRuns)
	assert.Zero(t, voucher.balanceRuns)
	assert.Zero(t, voucher.reminderRuns)
	assert.Zero(t, visa.updateWalletDetails)
}

func TestRunOnce_DeadlineIsSoftTimeout(t *testing.T) {
	registry := newTestRegistry(t)
	visa := &mockVisaSvc{updateErr: context.DeadlineExceeded}
	voucher := &mockVoucherSvc{}
	scheduler, _ := newScheduler(t, visa, voucher, &mockDispatcher{}, Config{})

	// A job that ran out of time is not a failure; the next due run picks
	// the work up again.
	require.NoError(t, scheduler.RunOnce(context.Background()))
	assert.Equal(t, float64(1), jobRunCount(t, registry, "wallet_details", "timeout"))
	assert.Equal(t, float64(0), jobRunCount(t, registry, "wallet_details", "error"))
}

func TestRunOnce_JobErrorsAreCollected(t *testing.T) {
	registry := newTestRegistry(t)
	visa := &mockVisaSvc{}
	voucher := &mockVoucherSvc{cancelErr: errors.New("provider exploded")}
	scheduler, _ := newScheduler(t, visa, voucher, &mockDispatcher{}, Config{})

	err := scheduler.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancel_vouchers: provider exploded")

	// One failed job does not stop the others.
	assert.Equal(t, 1, voucher.balanceRuns)
	assert.Equal(t, 1, visa.updateWalletDetails)
	assert.Equal(t, float64(1), jobRunCount(t, registry, "cancel_vouchers", "error"))
	assert.Equal(t, float64(1), jobRunCount(t, registry, "voucher_balances", "success"))
}

func TestStuckWalletsJob_PagesOperator(t *testing.T) {
	newTestRegistry(t)
	visa := &mockVisaSvc{stuck: []visadomain.Wallet{
		{TokenCode: "token-a"},
		{TokenCode: "token-b"},
	}}
	dispatcher := &mockDispatcher{}
	scheduler, _ := newScheduler(t, visa, &mockVoucherSvc{}, dispatcher, Config{})

	require.NoError(t, scheduler.StuckWalletsJob(context.Background()))

	require.Len(t, dispatcher.subjects, 1)
	assert.Equal(t, "2 wallets stuck before customer link", dispatcher.subjects[0])
	assert.Equal(t, "token-a\ntoken-b", dispatcher.bodies[0])
}

func TestStuckWalletsJob_QuietWhenNothingStuck(t *testing.T) {
	newTestRegistry(t)
	dispatcher := &mockDispatcher{}
	scheduler, _ := newScheduler(t, &mockVisaSvc{}, &mockVoucherSvc{}, dispatcher, Config{})

	require.NoError(t, scheduler.StuckWalletsJob(context.Background()))
	assert.Empty(t, dispatcher.subjects)
}
