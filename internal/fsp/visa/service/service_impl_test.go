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
	"github.com/reliefops/disburse/internal/fsp/visa/api"
	"github.com/reliefops/disburse/internal/fsp/visa/domain"
	visarepo "github.com/reliefops/disburse/internal/fsp/visa/repository"
	"github.com/reliefops/disburse/internal/notification"
	programdomain "github.com/reliefops/disburse/internal/program/domain"
	regdomain "github.com/reliefops/disburse/internal/registration/domain"
	regrepo "github.com/reliefops/disburse/internal/registration/repository"
	regservice "github.com/reliefops/disburse/internal/registration/service"
	"github.com/reliefops/disburse/internal/scope"
	"github.com/reliefops/disburse/internal/secrets"
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
		&regdomain.AttributeDefinition{},
		&regdomain.RegistrationAttribute{},
		&domain.Customer{},
		&domain.Wallet{},
		&notification.Message{},
		&notification.OperatorAlertRow{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	regs := regservice.New(regrepo.Provide(gdb), node, zap.NewNop())
	resolver := secrets.NewResolver(&fakeProgramSvc{configs: map[string]string{
		programdomain.ConfigUsername: "user",
		programdomain.ConfigPassword: "secret",
	}})
	payout := config.NewStaticPayoutConfigHolder(config.DefaultPayoutConfig())
	dispatcher := notification.NewDispatcher(gdb, node, zap.NewNop())

	mock := api.NewMock()
	repo := visarepo.Provide(gdb)
	svc := New(repo, mock, regs, resolver, payout, dispatcher, node, clk,
		config.Config{VisaAssetCode: "EUR"}, zap.NewNop())

	return &fixture{db: gdb, mock: mock, repo: repo, svc: svc, clk: clk, node: node}
}

func (f *fixture) seedRegistration(t *testing.T, referenceID, lastName string) *regdomain.Registration {
	t.Helper()
	now := f.clk.Now()
	reg := &regdomain.Registration{
		ID:                      f.node.Generate(),
		ReferenceID:             referenceID,
		ProgramID:               1,
		PhoneNumber:             "+31600000001",
		PreferredLanguage:       "en",
		PaymentAddress:          "+31600000001",
		FspProvider:             fsp.ProviderVisa,
		Status:                  regdomain.StatusIncluded,
		PaymentAmountMultiplier: 1,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	require.NoError(t, f.db.Create(reg).Error)

	attrs := map[string]string{
		regdomain.AttrFirstName:          "Test",
		regdomain.AttrLastName:           lastName,
		regdomain.AttrAddressStreet:      "Teststraat",
		regdomain.AttrAddressHouseNumber: "1",
		regdomain.AttrAddressPostalCode:  "1234AB",
		regdomain.AttrAddressCity:        "Amsterdam",
	}
	for key, value := range attrs {
		require.NoError(t, f.db.Create(&regdomain.RegistrationAttribute{
			ID:             f.node.Generate(),
			RegistrationID: reg.ID,
			Key:            key,
			Value:          value,
			UpdatedAt:      now,
		}).Error)
	}
	return reg
}

func (f *fixture) wallets(t *testing.T, reg *regdomain.Registration) []domain.Wallet {
	t.Helper()
	customer, err := f.repo.CustomerByRegistration(context.Background(), reg.ID)
	require.NoError(t, err)
	wallets, err := f.repo.WalletsForCustomer(context.Background(), customer.ID)
	require.NoError(t, err)
	return wallets
}

func TestSendPayment_FirstPaymentProvisionsEverything(t *testing.T) {
	f := newFixture(t)
	reg := f.seedRegistration(t, "PA-1", "Doe")

	result, err := f.svc.SendPayment(context.Background(), fsp.PaymentJob{
		ReferenceID: "PA-1",
		ProgramID:   1,
		PaymentNr:   1,
		Amount:      25,
	})
	require.NoError(t, err)
	assert.Equal(t, fsp.StatusSuccess, result.Status)
	assert.Equal(t, 25.0, result.CalculatedAmount)

	wallets := f.wallets(t, reg)
	require.Len(t, wallets, 1)
	wallet := wallets[0]
	assert.True(t, wallet.LinkedToCustomer)
	assert.True(t, wallet.DebitCardCreated)
	assert.False(t, wallet.TokenBlocked)

	// The provider preloads the first payment at wallet creation, so the
	// amount lands exactly once.
	assert.Equal(t, int64(2500), wallet.BalanceCents)
	assert.Equal(t, int64(2500), f.mock.Balance(wallet.TokenCode))

	require.Len(t, result.Notifications, 1)
	assert.Equal(t, notification.TemplateVisaDebitCardCreated, result.Notifications[0].TemplateKey)
}

func TestSendPayment_SecondPaymentLoadsExistingWallet(t *testing.T) {
	f := newFixture(t)
	reg := f.seedRegistration(t, "PA-1", "Doe")

	_, err := f.svc.SendPayment(context.Background(), fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 25,
	})
	require.NoError(t, err)

	result, err := f.svc.SendPayment(context.Background(), fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 2, Amount: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, fsp.StatusSuccess, result.Status)

	wallets := f.wallets(t, reg)
	require.Len(t, wallets, 1)
	assert.Equal(t, int64(3500), wallets[0].BalanceCents)
	assert.Equal(t, int64(3500), f.mock.Balance(wallets[0].TokenCode))

	// Card already exists, so the only follow-up is the load notification.
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, notification.TemplateVisaLoad, result.Notifications[0].TemplateKey)
}

func TestSendPayment_CreateCustomerRejected(t *testing.T) {
	f := newFixture(t)
	f.seedRegistration(t, "PA-1", api.TriggerFailCreateCustomer)

	_, err := f.svc.SendPayment(context.Background(), fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 25,
	})
	require.Error(t, err)
	assert.EqualError(t, err, "CREATE CUSTOMER ERROR: NOT_FOUND: Customer data could not be validated Field: lastName")
	assert.False(t, fsp.Retryable(err))

	var count int64
	require.NoError(t, f.db.Model(&domain.Customer{}).Count(&count).Error)
	assert.Zero(t, count, "rejected customer must not be persisted")
}

func TestSendPayment_ResumesAfterLinkFailure(t *testing.T) {
	f := newFixture(t)
	// The mock arms its failure trigger from the card holder's last name.
	reg := f.seedRegistration(t, "PA-1", api.TriggerFailLinkCustomer)

	_, err := f.svc.SendPayment(context.Background(), fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 25,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LINK CUSTOMER ERROR")

	wallets := f.wallets(t, reg)
	require.Len(t, wallets, 1, "the created wallet must be kept for the retry")
	assert.False(t, wallets[0].LinkedToCustomer)

	// Retry after the provider recovers: the job resumes at the link step
	// without creating a second wallet.
	f.mock.SetTrigger("")
	result, err := f.svc.SendPayment(context.Background(), fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, fsp.StatusSuccess, result.Status)

	wallets = f.wallets(t, reg)
	require.Len(t, wallets, 1)
	assert.True(t, wallets[0].LinkedToCustomer)
	assert.True(t, wallets[0].DebitCardCreated)
	assert.Equal(t, int64(2500), f.mock.Balance(wallets[0].TokenCode),
		"the preloaded amount must land exactly once across both attempts")
}

func TestReissueWalletAndCard_MovesBalanceAndBlocksOldWallet(t *testing.T) {
	f := newFixture(t)
	reg := f.seedRegistration(t, "PA-1", "Doe")
	ctx := context.Background()

	_, err := f.svc.SendPayment(ctx, fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 25,
	})
	require.NoError(t, err)
	oldToken := f.wallets(t, reg)[0].TokenCode

	f.clk.Advance(time.Hour)
	require.NoError(t, f.svc.ReissueWalletAndCard(ctx, "PA-1", scope.All()))

	wallets := f.wallets(t, reg)
	require.Len(t, wallets, 2)

	newWallet := wallets[0]
	assert.NotEqual(t, oldToken, newWallet.TokenCode)
	assert.True(t, newWallet.LinkedToCustomer)
	assert.True(t, newWallet.DebitCardCreated)
	assert.False(t, newWallet.TokenBlocked)
	assert.Equal(t, int64(2500), f.mock.Balance(newWallet.TokenCode))

	oldWallet := wallets[1]
	assert.Equal(t, oldToken, oldWallet.TokenCode)
	assert.True(t, oldWallet.TokenBlocked)
	assert.True(t, f.mock.Blocked(oldToken))
	assert.Equal(t, int64(0), f.mock.Balance(oldToken), "old wallet must be drained")
}

func TestReissueWalletAndCard_LinkFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	reg := f.seedRegistration(t, "PA-1", "Doe")
	ctx := context.Background()

	_, err := f.svc.SendPayment(ctx, fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 25,
	})
	require.NoError(t, err)
	oldToken := f.wallets(t, reg)[0].TokenCode

	f.mock.SetTrigger(api.TriggerFailLinkCustomer)
	err = f.svc.ReissueWalletAndCard(ctx, "PA-1", scope.All())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LINK CUSTOMER ERROR")

	// The half-provisioned wallet row is removed and the old wallet is
	// blocked so funds cannot leak through the lost card.
	wallets := f.wallets(t, reg)
	require.Len(t, wallets, 1)
	assert.Equal(t, oldToken, wallets[0].TokenCode)
	assert.True(t, wallets[0].TokenBlocked)
	assert.True(t, f.mock.Blocked(oldToken))
}

func TestUpdateWalletDetails_SyncsFromProvider(t *testing.T) {
	f := newFixture(t)
	reg := f.seedRegistration(t, "PA-1", "Doe")
	ctx := context.Background()

	_, err := f.svc.SendPayment(ctx, fsp.PaymentJob{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1, Amount: 25,
	})
	require.NoError(t, err)
	token := f.wallets(t, reg)[0].TokenCode

	// Simulate an out-of-band load at the provider.
	require.NoError(t, f.mock.LoadBalance(ctx, secrets.Credentials{}, token, 500, "ref", "sale"))

	require.NoError(t, f.svc.UpdateWalletDetails(ctx))

	wallet := f.wallets(t, reg)[0]
	assert.Equal(t, int64(3000), wallet.BalanceCents)
	require.NotNil(t, wallet.LastExternalSync)
	assert.Equal(t, f.clk.Now(), wallet.LastExternalSync.UTC())
}

func TestStuckWallets_ReportsUnlinkedOlderThanThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clk.Now()

	stale := &domain.Wallet{
		ID:        f.node.Generate(),
		TokenCode: "stale-token",
		CreatedAt: now.Add(-48 * time.Hour),
		UpdatedAt: now.Add(-48 * time.Hour),
	}
	fresh := &domain.Wallet{
		ID:        f.node.Generate(),
		TokenCode: "fresh-token",
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	}
	linked := &domain.Wallet{
		ID:               f.node.Generate(),
		TokenCode:        "linked-token",
		LinkedToCustomer: true,
		CreatedAt:        now.Add(-72 * time.Hour),
		UpdatedAt:        now.Add(-72 * time.Hour),
	}
	require.NoError(t, f.repo.InsertWallet(ctx, stale))
	require.NoError(t, f.repo.InsertWallet(ctx, fresh))
	require.NoError(t, f.repo.InsertWallet(ctx, linked))

	stuck, err := f.svc.StuckWallets(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "stale-token", stuck[0].TokenCode)
}
