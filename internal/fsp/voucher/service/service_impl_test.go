package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/reliefops/disburse/internal/clock"
	"github.com/reliefops/disburse/internal/config"
	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/fsp/voucher/api"
	"github.com/reliefops/disburse/internal/fsp/voucher/domain"
	voucherrepo "github.com/reliefops/disburse/internal/fsp/voucher/repository"
	"github.com/reliefops/disburse/internal/notification"
	programdomain "github.com/reliefops/disburse/internal/program/domain"
	regdomain "github.com/reliefops/disburse/internal/registration/domain"
	regrepo "github.com/reliefops/disburse/internal/registration/repository"
	regservice "github.com/reliefops/disburse/internal/registration/service"
	"github.com/reliefops/disburse/internal/scope"
	"github.com/reliefops/disburse/internal/secrets"
	txdomain "github.com/reliefops/disburse/internal/transaction/domain"
	txrepo "github.com/reliefops/disburse/internal/transaction/repository"
	txservice "github.com/reliefops/disburse/internal/transaction/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeProgramSvc struct {
	configs map[string]string
}

func (f *fakeProgramSvc) Get(ctx context.Context, id int64) (*programdomain.Program, error) {
	return &programdomain.Program{ID: snowflake.ID(id), Title: "Test Program", Currency: "EUR"}, nil
}

func (f *fakeProgramSvc) Create(ctx context.Context, title, currency string, languages []string, defaultAmount float64) (*programdomain.Program, error) {
	return nil, nil
}

func (f *fakeProgramSvc) FspConfigurations(ctx context.Context, programID int64, provider string) (map[string]string, error) {
	return f.configs, nil
}

type fixture struct {
	db   *gorm.DB
	mock *api.Mock
	repo domain.Repository
	svc  domain.Service
	txs  txdomain.Service
	clk  *clock.FakeClock
	node *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(
		&regdomain.Registration{},
		&regdomain.RegistrationAttribute{},
		&domain.Voucher{},
		&domain.IssueRequest{},
		&txdomain.Transaction{},
		&notification.Message{},
		&notification.OperatorAlertRow{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	regs := regservice.New(regrepo.Provide(gdb), node, zap.NewNop())
	txs := txservice.New(txrepo.Provide(gdb), node, zap.NewNop())
	resolver := secrets.NewResolver(&fakeProgramSvc{configs: map[string]string{
		programdomain.ConfigUsername: "user",
		programdomain.ConfigPassword: "secret",
	}})
	payout := config.NewStaticPayoutConfigHolder(config.DefaultPayoutConfig())
	dispatcher := notification.NewDispatcher(gdb, node, zap.NewNop())

	mock := api.NewMock()
	repo := voucherrepo.Provide(gdb)
	svc := New(repo, mock, regs, txs, resolver, payout, dispatcher, node, clk, zap.NewNop())

	return &fixture{db: gdb, mock: mock, repo: repo, svc: svc, txs: txs, clk: clk, node: node}
}

func (f *fixture) seedRegistration(t *testing.T, referenceID string) *regdomain.Registration {
	t.Helper()
	now := f.clk.Now()
	reg := &regdomain.Registration{
		ID:                      f.node.Generate(),
		ReferenceID:             referenceID,
		ProgramID:               1,
		PhoneNumber:             "+31600000002",
		PreferredLanguage:       "en",
		PaymentAddress:          "+31600000002",
		FspProvider:             fsp.ProviderVoucherWhatsapp,
		Status:                  regdomain.StatusIncluded,
		PaymentAmountMultiplier: 1,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	require.NoError(t, f.db.Create(reg).Error)
	return reg
}

func (f *fixture) voucher(t *testing.T, referenceID string, paymentNr int) *domain.Voucher {
	t.Helper()
	voucher, err := f.repo.VoucherForPayment(context.Background(), referenceID, paymentNr, scope.All())
	require.NoError(t, err)
	return voucher
}

func TestSendPayment_PaperVoucherIssuedAndHandedOut(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1")

	result, err := f.svc.SendPayment(context.Background(), fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 22.5,
	}, fsp.ProviderVoucherPaper)
	require.NoError(t, err)
	assert.Equal(t, fsp.StatusSuccess, result.Status)
	assert.Empty(t, result.MessageSID)

	voucher := f.voucher(t, "PA-1", 1)
	assert.Equal(t, "mock-card-1", voucher.Barcode)
	assert.NotEmpty(t, voucher.Pin)
	assert.Equal(t, int64(2250), voucher.AmountCents)
	assert.True(t, voucher.Send, "paper vouchers are handed out at issue time")
}

func TestSendPayment_WhatsappVoucherWaitsForDelivery(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1")

	result, err := f.svc.SendPayment(context.Background(), fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 22.5,
	}, fsp.ProviderVoucherWhatsapp)
	require.NoError(t, err)
	assert.Equal(t, fsp.StatusWaiting, result.Status)
	assert.NotEmpty(t, result.MessageSID)

	voucher := f.voucher(t, "PA-1", 1)
	assert.False(t, voucher.Send, "delivery is confirmed by the gateway callback")

	var msg notification.Message
	require.NoError(t, f.db.Where("message_sid = ?", result.MessageSID).First(&msg).Error)
	assert.Equal(t, notification.TemplateVoucherPayment, msg.TemplateKey)
	assert.Equal(t, notification.StatusQueued, msg.Status)
}

func TestSendPayment_ReusesUnclaimedVoucher(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1")
	ctx := context.Background()
	job := fsp.PaymentJob{ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 22.5}

	_, err := f.svc.SendPayment(ctx, job, fsp.ProviderVoucherWhatsapp)
	require.NoError(t, err)

	// Redelivered job for the same payment: the unclaimed voucher is reused,
	// the provider must not issue a second one.
	result, err := f.svc.SendPayment(ctx, job, fsp.ProviderVoucherWhatsapp)
	require.NoError(t, err)
	assert.Equal(t, fsp.StatusWaiting, result.Status)

	var count int64
	require.NoError(t, f.db.Model(&domain.Voucher{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, "mock-card-1", f.voucher(t, "PA-1", 1).Barcode)
}

func TestSendPayment_AbortsWhenVoucherAlreadyDelivered(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1")
	ctx := context.Background()
	job := fsp.PaymentJob{ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 22.5}

	_, err := f.svc.SendPayment(ctx, job, fsp.ProviderVoucherPaper)
	require.NoError(t, err)

	_, err = f.svc.SendPayment(ctx, job, fsp.ProviderVoucherPaper)
	require.Error(t, err)
	var consistency *fsp.LocalConsistencyError
	require.ErrorAs(t, err, &consistency)
	assert.ErrorIs(t, err, domain.ErrAlreadySent, "the conflict sentinel drives the HTTP 409 mapping")
	assert.EqualError(t, err, "voucher already sent for payment 1 of PA-1")
	assert.False(t, fsp.Retryable(err))
}

func TestSendPayment_IssueRejectedMarksRequestForCancellation(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1")
	f.mock.RejectIssue = &api.IssueResponse{
		ResultCode:        12,
		ResultDescription: "Card pool exhausted",
		CardID:            "dead-card",
		TransactionID:     "dead-tx",
	}

	_, err := f.svc.SendPayment(context.Background(), fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 22.5,
	}, fsp.ProviderVoucherWhatsapp)
	require.Error(t, err)
	assert.EqualError(t, err, "Creating voucher failed. Status code: 12 message: Card pool exhausted")

	pending, err := f.repo.PendingCancellations(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "dead-card", pending[0].CardID)
	assert.Equal(t, "dead-tx", pending[0].TransactionID)
}

func TestCancelPendingIssueRequests_SettlesByCardOrRefPos(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1")
	f.seedRegistration(t, "PA-2")
	ctx := context.Background()

	// One attempt the provider answered with a rejection (card known).
	f.mock.RejectIssue = &api.IssueResponse{ResultCode: 12, ResultDescription: "rejected", CardID: "dead-card", TransactionID: "dead-tx"}
	_, err := f.svc.SendPayment(ctx, fsp.PaymentJob{ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 10}, fsp.ProviderVoucherWhatsapp)
	require.Error(t, err)
	f.mock.RejectIssue = nil

	// One attempt that died on the wire (only the refPos is known).
	f.mock.Unavailable = true
	_, err = f.svc.SendPayment(ctx, fsp.PaymentJob{ReferenceID: "PA-2", ProgramID: 1, PaymentNr: 1, Amount: 10}, fsp.ProviderVoucherWhatsapp)
	require.Error(t, err)
	assert.True(t, fsp.Retryable(err), "a provider outage must stay retryable")
	f.mock.Unavailable = false

	require.NoError(t, f.svc.CancelPendingIssueRequests(ctx))

	assert.True(t, f.mock.Canceled("dead-card"))
	assert.Len(t, f.mock.CanceledRefPositions(), 1)

	pending, err := f.repo.PendingCancellations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "settled requests must not be retried")
}

func TestUpdateUnusedVouchers_MarksSpentVouchers(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1")
	f.seedRegistration(t, "PA-2")
	ctx := context.Background()

	_, err := f.svc.SendPayment(ctx, fsp.PaymentJob{ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 20}, fsp.ProviderVoucherWhatsapp)
	require.NoError(t, err)
	_, err = f.svc.SendPayment(ctx, fsp.PaymentJob{ReferenceID: "PA-2", ProgramID: 1, PaymentNr: 1, Amount: 20}, fsp.ProviderVoucherWhatsapp)
	require.NoError(t, err)

	// The first voucher was spent at the till.
	spent := f.voucher(t, "PA-1", 1)
	f.mock.SetBalance(spent.Barcode, 500)

	require.NoError(t, f.svc.UpdateUnusedVouchers(ctx))

	spent = f.voucher(t, "PA-1", 1)
	assert.True(t, spent.BalanceUsed)
	assert.True(t, spent.Send, "a spent voucher was evidently received")
	require.NotNil(t, spent.LastRequestedBalance)
	assert.Equal(t, int64(500), *spent.LastRequestedBalance)

	untouched := f.voucher(t, "PA-2", 1)
	assert.False(t, untouched.BalanceUsed)
	require.NotNil(t, untouched.LastRequestedBalance)
	assert.Equal(t, int64(2000), *untouched.LastRequestedBalance)
}

func TestSendWhatsappReminders_BoundedPerVoucher(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1")
	ctx := context.Background()

	_, err := f.svc.SendPayment(ctx, fsp.PaymentJob{ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 20}, fsp.ProviderVoucherWhatsapp)
	require.NoError(t, err)

	// Not due yet.
	require.NoError(t, f.svc.SendWhatsappReminders(ctx))
	assert.Equal(t, 0, f.voucher(t, "PA-1", 1).ReminderCount)

	// One reminder per due sweep, capped at MaxReminders.
	for day := 0; day < 5; day++ {
		f.clk.Advance(25 * time.Hour)
		require.NoError(t, f.svc.SendWhatsappReminders(ctx))
	}
	assert.Equal(t, 3, f.voucher(t, "PA-1", 1).ReminderCount)

	var reminders int64
	require.NoError(t, f.db.Model(&notification.Message{}).
		Where("template_key = ?", notification.TemplateVoucherReminder).
		Count(&reminders).Error)
	assert.Equal(t, int64(3), reminders)
}

func TestProcessDeliveryStatus_DeliveredClosesPayment(t *testing.T) {
	f := newFixture(t)
	reg := f.seedRegistration(t, "PA-1")
	ctx := context.Background()

	result, err := f.svc.SendPayment(ctx, fsp.PaymentJob{ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 20}, fsp.ProviderVoucherWhatsapp)
	require.NoError(t, err)

	require.NoError(t, f.txs.Store(ctx, &txdomain.Transaction{
		ID:             f.node.Generate(),
		RegistrationID: reg.ID,
		ReferenceID:    "PA-1",
		ProgramID:      1,
		PaymentNr:      1,
		Provider:       fsp.ProviderVoucherWhatsapp,
		Status:         fsp.StatusWaiting,
		Amount:         20,
		Step:           txdomain.StepDelivery,
		MessageSID:     result.MessageSID,
	}))

	require.NoError(t, f.svc.ProcessDeliveryStatus(ctx, result.MessageSID, notification.StatusDelivered))

	tx, err := f.txs.LatestForPayment(ctx, "PA-1", 1)
	require.NoError(t, err)
	assert.Equal(t, fsp.StatusSuccess, tx.Status)
	assert.True(t, f.voucher(t, "PA-1", 1).Send)
}

func TestProcessDeliveryStatus_FailureKeepsVoucherUnsent(t *testing.T) {
	f := newFixture(t)
	reg := f.seedRegistration(t, "PA-1")
	ctx := context.Background()

	result, err := f.svc.SendPayment(ctx, fsp.PaymentJob{ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 20}, fsp.ProviderVoucherWhatsapp)
	require.NoError(t, err)

	require.NoError(t, f.txs.Store(ctx, &txdomain.Transaction{
		ID:             f.node.Generate(),
		RegistrationID: reg.ID,
		ReferenceID:    "PA-1",
		ProgramID:      1,
		PaymentNr:      1,
		Provider:       fsp.ProviderVoucherWhatsapp,
		Status:         fsp.StatusWaiting,
		Amount:         20,
		Step:           txdomain.StepDelivery,
		MessageSID:     result.MessageSID,
	}))

	require.NoError(t, f.svc.ProcessDeliveryStatus(ctx, result.MessageSID, notification.StatusFailed))

	tx, err := f.txs.LatestForPayment(ctx, "PA-1", 1)
	require.NoError(t, err)
	assert.Equal(t, fsp.StatusError, tx.Status)
	assert.Contains(t, tx.ErrorMessage, "failed")
	assert.False(t, f.voucher(t, "PA-1", 1).Send)
}

func TestGetBalance_RecordsLastRequestedBalance(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1")
	ctx := context.Background()

	_, err := f.svc.SendPayment(ctx, fsp.PaymentJob{ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 20}, fsp.ProviderVoucherPaper)
	require.NoError(t, err)

	cents, err := f.svc.GetBalance(ctx, "PA-1", 1, scope.All())
	require.NoError(t, err)
	assert.Equal(t, int64(2000), cents)

	voucher := f.voucher(t, "PA-1", 1)
	require.NotNil(t, voucher.LastRequestedBalance)
	assert.Equal(t, int64(2000), *voucher.LastRequestedBalance)
	require.NotNil(t, voucher.BalanceRequestedAt)
	assert.Equal(t, f.clk.Now(), voucher.BalanceRequestedAt.UTC())
}

func TestExportVoucherImage_RendersPNG(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1")
	ctx := context.Background()

	_, err := f.svc.SendPayment(ctx, fsp.PaymentJob{ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 20}, fsp.ProviderVoucherPaper)
	require.NoError(t, err)

	png, err := f.svc.ExportVoucherImage(ctx, "PA-1", 1, scope.All())
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
