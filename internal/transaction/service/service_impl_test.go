package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/scope"
	"github.com/reliefops/disburse/internal/transaction/domain"
	"github.com/reliefops/disburse/internal/transaction/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&domain.Transaction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(repository.Provide(gdb), node, zap.NewNop()), gdb
}

func TestStore_FillsDefaults(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Store(ctx, &domain.Transaction{
		ReferenceID: "PA-1",
		ProgramID:   1,
		PaymentNr:   1,
		Provider:    fsp.ProviderVisa,
		Status:      fsp.StatusSuccess,
		Amount:      25,
	}))

	var tx domain.Transaction
	require.NoError(t, db.First(&tx).Error)
	assert.NotZero(t, tx.ID)
	assert.Equal(t, domain.StepPayout, tx.Step)
	assert.False(t, tx.CreatedAt.IsZero())
}

func TestUpdateBySID_ClosesWaitingRow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Store(ctx, &domain.Transaction{
		ReferenceID: "PA-1",
		ProgramID:   1,
		PaymentNr:   1,
		Provider:    fsp.ProviderVoucherWhatsapp,
		Status:      fsp.StatusWaiting,
		Amount:      20,
		Step:        domain.StepDelivery,
		MessageSID:  "sid-1",
	}))

	tx, err := svc.UpdateBySID(ctx, "sid-1", fsp.StatusSuccess, "")
	require.NoError(t, err)
	assert.Equal(t, "PA-1", tx.ReferenceID)
	assert.Equal(t, 1, tx.PaymentNr)
	assert.Equal(t, fsp.StatusSuccess, tx.Status)

	stored, err := svc.LatestForPayment(ctx, "PA-1", 1)
	require.NoError(t, err)
	assert.Equal(t, fsp.StatusSuccess, stored.Status)

	_, err = svc.UpdateBySID(ctx, "unknown-sid", fsp.StatusSuccess, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLatestForPayment_PicksNewestAttempt(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first := &domain.Transaction{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1,
		Provider: fsp.ProviderVisa, Status: fsp.StatusError,
		ErrorMessage: "LOAD BALANCE ERROR: provider unavailable: status 503",
		CreatedAt:    time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, svc.Store(ctx, first))
	require.NoError(t, svc.Store(ctx, &domain.Transaction{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1,
		Provider: fsp.ProviderVisa, Status: fsp.StatusSuccess,
	}))

	latest, err := svc.LatestForPayment(ctx, "PA-1", 1)
	require.NoError(t, err)
	assert.Equal(t, fsp.StatusSuccess, latest.Status)

	_, err = svc.LatestForPayment(ctx, "PA-1", 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListForRegistration_AppliesScope(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Store(ctx, &domain.Transaction{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 1,
		Provider: fsp.ProviderVisa, Status: fsp.StatusSuccess, Scope: "amsterdam",
	}))
	require.NoError(t, svc.Store(ctx, &domain.Transaction{
		ReferenceID: "PA-1", ProgramID: 1, PaymentNr: 2,
		Provider: fsp.ProviderVisa, Status: fsp.StatusSuccess, Scope: "utrecht",
	}))

	all, err := svc.ListForRegistration(ctx, "PA-1", scope.All())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := svc.ListForRegistration(ctx, "PA-1", scope.New("amsterdam"))
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, 1, scoped[0].PaymentNr)
}
