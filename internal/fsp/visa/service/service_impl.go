package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/reliefops/disburse/internal/clock"
	"github.com/reliefops/disburse/internal/config"
	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/fsp/visa/api"
	"github.com/reliefops/disburse/internal/fsp/visa/domain"
	"github.com/reliefops/disburse/internal/notification"
	"github.com/reliefops/disburse/internal/observability/metrics"
	regdomain "github.com/reliefops/disburse/internal/registration/domain"
	"github.com/reliefops/disburse/internal/scope"
	"github.com/reliefops/disburse/internal/secrets"
	"github.com/reliefops/disburse/pkg/db"
	"go.uber.org/zap"
)

type service struct {
	repo          domain.Repository
	client        api.Client
	registrations regdomain.Service
	secrets       *secrets.Resolver
	payout        *config.PayoutConfigHolder
	dispatcher    notification.Dispatcher
	node          *snowflake.Node
	clock         clock.Clock
	assetCode     string
	log           *zap.Logger
}

func New(
	repo domain.Repository,
	client api.Client,
	registrations regdomain.Service,
	resolver *secrets.Resolver,
	payout *config.PayoutConfigHolder,
	dispatcher notification.Dispatcher,
	node *snowflake.Node,
	clk clock.Clock,
	cfg config.Config,
	log *zap.Logger,
) domain.Service {
	return &service{
		repo:          repo,
		client:        client,
		registrations: registrations,
		secrets:       resolver,
		payout:        payout,
		dispatcher:    dispatcher,
		node:          node,
		clock:         clk,
		assetCode:     cfg.VisaAssetCode,
		log:           log.Named("visa.service"),
	}
}

func (s *service) Provider() string { return fsp.ProviderVisa }

// SendPayment walks a beneficiary through the provisioning ladder:
// customer, wallet, link, debit card, then balance loads on every later
// payment. Each milestone is persisted, so a redelivered job resumes at the
// first step not yet done.
func (s *service) SendPayment(ctx context.Context, job fsp.PaymentJob) (fsp.Result, error) {
	registration, err := s.registrations.Get(ctx, job.ReferenceID, scope.All())
	if err != nil {
		return fsp.Result{}, &fsp.LocalConsistencyError{
			Message: fmt.Sprintf("registration %s not found for payment job", job.ReferenceID),
		}
	}
	details, err := s.registrations.PaymentDetails(ctx, job.ReferenceID, scope.All())
	if err != nil {
		return fsp.Result{}, &fsp.LocalConsistencyError{
			Message: fmt.Sprintf("payment details unavailable for %s: %v", job.ReferenceID, err),
		}
	}
	creds, err := s.secrets.Credentials(ctx, job.ProgramID, fsp.ProviderVisa)
	if err != nil {
		return fsp.Result{}, err
	}

	caps := s.payout.Get().Provider(fsp.ProviderVisa)
	amountCents := toCents(job.Amount)

	customer, err := s.ensureCustomer(ctx, registration, details, creds)
	if err != nil {
		return fsp.Result{}, fmt.Errorf("CREATE CUSTOMER ERROR: %w", err)
	}

	wallets, err := s.repo.WalletsForCustomer(ctx, customer.ID)
	if err != nil {
		return fsp.Result{}, fmt.Errorf("load wallets: %w", err)
	}

	// The load branch is decided from persisted state before any provider
	// call: during a provisioning run the funds ride along with wallet
	// creation when the provider preloads, and a redelivered job whose
	// earlier attempt already created that preloaded wallet must not load
	// the same amount again. Only a wallet whose card exists takes the
	// plain-load path.
	var wallet *domain.Wallet
	loadRequired := !caps.PreloadOnWalletCreate
	if len(wallets) == 0 {
		var initial int64
		if caps.PreloadOnWalletCreate {
			initial = amountCents
		}
		created, err := s.client.CreateWallet(ctx, creds, s.assetCode, initial)
		if err != nil {
			return fsp.Result{}, fmt.Errorf("CREATE WALLET ERROR: %w", err)
		}
		now := s.clock.Now().UTC()
		wallet = &domain.Wallet{
			ID:           s.node.Generate(),
			CustomerID:   customer.ID,
			TokenCode:    created.TokenCode,
			BalanceCents: created.BalanceCents,
			Status:       "ACTIVE",
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.InsertWallet(ctx, wallet); err != nil {
			return fsp.Result{}, fmt.Errorf("save wallet: %w", err)
		}
	} else {
		wallet = &wallets[0]
		if wallet.DebitCardCreated {
			loadRequired = true
		}
	}

	if !wallet.LinkedToCustomer {
		if err := s.client.LinkCustomerToWallet(ctx, creds, wallet.TokenCode, customer.HolderID); err != nil {
			return fsp.Result{}, fmt.Errorf("LINK CUSTOMER ERROR: %w", err)
		}
		wallet.LinkedToCustomer = true
		if err := s.repo.UpdateWallet(ctx, wallet); err != nil {
			return fsp.Result{}, fmt.Errorf("save wallet: %w", err)
		}
	}

	var notifications []fsp.Notification
	if !wallet.DebitCardCreated {
		if err := s.client.CreateDebitCard(ctx, creds, wallet.TokenCode, cardData(details)); err != nil {
			return fsp.Result{}, fmt.Errorf("CREATE DEBIT CARD ERROR: %w", err)
		}
		wallet.DebitCardCreated = true
		if err := s.repo.UpdateWallet(ctx, wallet); err != nil {
			return fsp.Result{}, fmt.Errorf("save wallet: %w", err)
		}
		notifications = append(notifications, fsp.Notification{
			TemplateKey: notification.TemplateVisaDebitCardCreated,
		})
	}

	if loadRequired {
		// saleID repeats on redelivery so the issuer can dedupe; the uuid
		// reference is unique per attempt.
		saleID := fmt.Sprintf("%s-%d", job.ReferenceID, job.PaymentNr)
		if err := s.client.LoadBalance(ctx, creds, wallet.TokenCode, amountCents, uuid.NewString(), saleID); err != nil {
			return fsp.Result{}, fmt.Errorf("LOAD BALANCE ERROR: %w", err)
		}
		wallet.BalanceCents += amountCents
		if err := s.repo.UpdateWallet(ctx, wallet); err != nil {
			return fsp.Result{}, fmt.Errorf("save wallet: %w", err)
		}
		notifications = append(notifications, fsp.Notification{
			TemplateKey: notification.TemplateVisaLoad,
		})
	}

	return fsp.Result{
		Status:           fsp.StatusSuccess,
		CalculatedAmount: job.Amount,
		Notifications:    notifications,
	}, nil
}

// ensureCustomer returns the provider customer for a registration, creating
// it on first contact. The unique registration ID column absorbs races
// between concurrent jobs for the same beneficiary.
func (s *service) ensureCustomer(ctx context.Context, registration *regdomain.Registration, details regdomain.PaymentDetails, creds secrets.Credentials) (*domain.Customer, error) {
	customer, err := s.repo.CustomerByRegistration(ctx, registration.ID)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, domain.ErrCustomerNotFound) {
		return nil, err
	}

	created, err := s.client.CreateCustomer(ctx, creds, api.CreateCustomerRequest{
		ExternalReference:   registration.ReferenceID,
		FirstName:           details.FirstName,
		LastName:            details.LastName,
		Street:              details.AddressStreet,
		HouseNumber:         details.AddressHouseNumber,
		HouseNumberAddition: details.AddressHouseNumberAddition,
		PostalCode:          details.AddressPostalCode,
		City:                details.AddressCity,
		PhoneNumber:         details.PhoneNumber,
	})
	if err != nil {
		return nil, err
	}

	customer = &domain.Customer{
		ID:             s.node.Generate(),
		RegistrationID: registration.ID,
		ReferenceID:    registration.ReferenceID,
		HolderID:       created.HolderID,
		CreatedAt:      s.clock.Now().UTC(),
	}
	if insertErr := s.repo.InsertCustomer(ctx, customer); insertErr != nil {
		if db.IsDuplicateKeyErr(insertErr) {
			return s.repo.CustomerByRegistration(ctx, registration.ID)
		}
		return nil, insertErr
	}
	return customer, nil
}

func (s *service) WalletsAndDetails(ctx context.Context, referenceID string, sc scope.Scope) ([]domain.WalletDetails, error) {
	registration, err := s.registrations.Get(ctx, referenceID, sc)
	if err != nil {
		return nil, err
	}
	customer, err := s.repo.CustomerByRegistration(ctx, registration.ID)
	if err != nil {
		return nil, err
	}
	creds, err := s.secrets.Credentials(ctx, registration.ProgramID, fsp.ProviderVisa)
	if err != nil {
		return nil, err
	}
	wallets, err := s.repo.WalletsForCustomer(ctx, customer.ID)
	if err != nil {
		return nil, err
	}

	details := make([]domain.WalletDetails, 0, len(wallets))
	for i := range wallets {
		wallet := &wallets[i]
		if err := s.refreshWallet(ctx, creds, wallet); err != nil {
			return nil, err
		}
		details = append(details, domain.WalletDetails{
			TokenCode:        wallet.TokenCode,
			BalanceCents:     wallet.BalanceCents,
			Status:           displayStatus(wallet),
			IssuedDate:       wallet.CreatedAt,
			LastUsedDate:     wallet.LastUsedDate,
			LinkedToCustomer: wallet.LinkedToCustomer,
			DebitCardCreated: wallet.DebitCardCreated,
			TokenBlocked:     wallet.TokenBlocked,
		})
	}
	return details, nil
}

func (s *service) refreshWallet(ctx context.Context, creds secrets.Credentials, wallet *domain.Wallet) error {
	remote, err := s.client.GetWallet(ctx, creds, wallet.TokenCode)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	wallet.BalanceCents = remote.BalanceCents
	wallet.Status = remote.Status
	wallet.LastUsedDate = remote.LastUsedDate
	wallet.LastExternalSync = &now
	return s.repo.UpdateWallet(ctx, wallet)
}

func displayStatus(wallet *domain.Wallet) string {
	if wallet.TokenBlocked {
		return domain.WalletStatusBlocked
	}
	if wallet.Status == "ACTIVE" {
		return domain.WalletStatusActive
	}
	return domain.WalletStatusInactive
}

func (s *service) ToggleBlockWallet(ctx context.Context, tokenCode string, block bool) error {
	wallet, err := s.repo.WalletByToken(ctx, tokenCode)
	if err != nil {
		return err
	}
	customer, err := s.repo.CustomerByID(ctx, wallet.CustomerID)
	if err != nil {
		return err
	}
	registration, err := s.registrations.Get(ctx, customer.ReferenceID, scope.All())
	if err != nil {
		return err
	}
	creds, err := s.secrets.Credentials(ctx, registration.ProgramID, fsp.ProviderVisa)
	if err != nil {
		return err
	}
	if err := s.client.SetBlock(ctx, creds, tokenCode, block); err != nil {
		return err
	}
	wallet.TokenBlocked = block
	return s.repo.UpdateWallet(ctx, wallet)
}

// ReissueWalletAndCard replaces a lost or stolen card. The old wallet is
// reactivated and drained into a fresh wallet with a fresh card; on any
// failure after the point of no return the old wallet is blocked so funds
// cannot leak through the lost card.
func (s *service) ReissueWalletAndCard(ctx context.Context, referenceID string, sc scope.Scope) error {
	registration, err := s.registrations.Get(ctx, referenceID, sc)
	if err != nil {
		return err
	}
	details, err := s.registrations.PaymentDetails(ctx, referenceID, sc)
	if err != nil {
		return &fsp.LocalConsistencyError{
			Message: fmt.Sprintf("payment details unavailable for %s: %v", referenceID, err),
		}
	}
	if details.LastName == "" {
		return &fsp.LocalConsistencyError{
			Message: fmt.Sprintf("registration %s has no card holder name", referenceID),
		}
	}
	customer, err := s.repo.CustomerByRegistration(ctx, registration.ID)
	if err != nil {
		return err
	}
	wallets, err := s.repo.WalletsForCustomer(ctx, customer.ID)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return &fsp.LocalConsistencyError{
			Message: fmt.Sprintf("registration %s has no wallet to reissue", referenceID),
		}
	}
	oldWallet := &wallets[0]
	creds, err := s.secrets.Credentials(ctx, registration.ProgramID, fsp.ProviderVisa)
	if err != nil {
		return err
	}

	if err := s.client.ActivateWallet(ctx, creds, oldWallet.TokenCode); err != nil {
		return fmt.Errorf("activate old wallet: %w", err)
	}
	if err := s.client.SetBlock(ctx, creds, oldWallet.TokenCode, false); err != nil {
		return fmt.Errorf("unblock old wallet: %w", err)
	}

	remote, err := s.client.GetWallet(ctx, creds, oldWallet.TokenCode)
	if err != nil {
		s.compensateBlock(ctx, creds, oldWallet)
		return fmt.Errorf("read old wallet balance: %w", err)
	}
	balance := remote.BalanceCents

	created, err := s.client.CreateWallet(ctx, creds, s.assetCode, balance)
	if err != nil {
		s.compensateBlock(ctx, creds, oldWallet)
		return fmt.Errorf("CREATE WALLET ERROR: %w", err)
	}
	now := s.clock.Now().UTC()
	newWallet := &domain.Wallet{
		ID:           s.node.Generate(),
		CustomerID:   customer.ID,
		TokenCode:    created.TokenCode,
		BalanceCents: created.BalanceCents,
		Status:       "ACTIVE",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertWallet(ctx, newWallet); err != nil {
		s.compensateBlock(ctx, creds, oldWallet)
		return fmt.Errorf("save wallet: %w", err)
	}

	if err := s.client.LinkCustomerToWallet(ctx, creds, newWallet.TokenCode, customer.HolderID); err != nil {
		s.discardNewWallet(ctx, newWallet)
		s.compensateBlock(ctx, creds, oldWallet)
		return fmt.Errorf("LINK CUSTOMER ERROR: %w", err)
	}
	newWallet.LinkedToCustomer = true
	if err := s.repo.UpdateWallet(ctx, newWallet); err != nil {
		return fmt.Errorf("save wallet: %w", err)
	}

	if err := s.client.CreateDebitCard(ctx, creds, newWallet.TokenCode, cardData(details)); err != nil {
		s.discardNewWallet(ctx, newWallet)
		s.compensateBlock(ctx, creds, oldWallet)
		return fmt.Errorf("CREATE DEBIT CARD ERROR: %w", err)
	}
	newWallet.DebitCardCreated = true
	if err := s.repo.UpdateWallet(ctx, newWallet); err != nil {
		return fmt.Errorf("save wallet: %w", err)
	}

	if balance > 0 {
		saleID := fmt.Sprintf("%s-reissue-%d", referenceID, now.Unix())
		if err := s.client.UnloadBalance(ctx, creds, oldWallet.TokenCode, balance, uuid.NewString(), saleID); err != nil {
			s.compensateBlock(ctx, creds, oldWallet)
			return fmt.Errorf("unload old wallet: %w", err)
		}
	}

	// Every wallet except the new one gets blocked, oldest last.
	for i := range wallets {
		wallet := &wallets[i]
		if err := s.client.SetBlock(ctx, creds, wallet.TokenCode, true); err != nil {
			s.reportCompensationFailure(ctx, wallet.TokenCode, err)
			continue
		}
		wallet.TokenBlocked = true
		if err := s.repo.UpdateWallet(ctx, wallet); err != nil {
			s.log.Error("could not persist block flag", zap.String("token_code", wallet.TokenCode), zap.Error(err))
		}
	}

	s.log.Info("wallet and card reissued",
		zap.String("reference_id", referenceID),
		zap.String("old_token", oldWallet.TokenCode),
		zap.String("new_token", newWallet.TokenCode),
		zap.Int64("moved_balance_cents", balance),
	)
	return nil
}

// compensateBlock best-effort blocks the old wallet after a failed reissue
// step. A failure here leaves spendable funds on a card that may be in the
// wrong hands, so it pages an operator.
func (s *service) compensateBlock(ctx context.Context, creds secrets.Credentials, wallet *domain.Wallet) {
	if err := s.client.SetBlock(ctx, creds, wallet.TokenCode, true); err != nil {
		s.reportCompensationFailure(ctx, wallet.TokenCode, err)
		return
	}
	wallet.TokenBlocked = true
	if err := s.repo.UpdateWallet(ctx, wallet); err != nil {
		s.log.Error("could not persist block flag", zap.String("token_code", wallet.TokenCode), zap.Error(err))
	}
}

func (s *service) reportCompensationFailure(ctx context.Context, tokenCode string, cause error) {
	metrics.Payment().CompensationFailures.Inc()
	s.log.Error("blocking wallet during reissue failed, operator action required",
		zap.String("token_code", tokenCode),
		zap.Error(cause),
	)
	alertErr := s.dispatcher.OperatorAlert(ctx,
		"wallet block failed during reissue",
		fmt.Sprintf("wallet %s could not be blocked after a failed reissue step: %v", tokenCode, cause),
	)
	if alertErr != nil {
		s.log.Error("operator alert failed", zap.Error(alertErr))
	}
}

func (s *service) discardNewWallet(ctx context.Context, wallet *domain.Wallet) {
	if err := s.repo.DeleteWallet(ctx, wallet.ID); err != nil {
		s.log.Error("could not remove unlinked wallet row",
			zap.String("token_code", wallet.TokenCode),
			zap.Error(err),
		)
	}
}

// UpdateWalletDetails refreshes every wallet from the provider. Failures on
// individual wallets are collected so one bad wallet does not starve the
// rest of the sweep.
func (s *service) UpdateWalletDetails(ctx context.Context) error {
	wallets, err := s.repo.AllWallets(ctx)
	if err != nil {
		return err
	}

	credsByProgram := make(map[int64]secrets.Credentials)
	var errs []error
	for i := range wallets {
		wallet := &wallets[i]
		customer, err := s.repo.CustomerByID(ctx, wallet.CustomerID)
		if err != nil {
			errs = append(errs, fmt.Errorf("wallet %s: %w", wallet.TokenCode, err))
			continue
		}
		registration, err := s.registrations.Get(ctx, customer.ReferenceID, scope.All())
		if err != nil {
			errs = append(errs, fmt.Errorf("wallet %s: %w", wallet.TokenCode, err))
			continue
		}
		creds, ok := credsByProgram[registration.ProgramID]
		if !ok {
			creds, err = s.secrets.Credentials(ctx, registration.ProgramID, fsp.ProviderVisa)
			if err != nil {
				errs = append(errs, fmt.Errorf("program %d: %w", registration.ProgramID, err))
				continue
			}
			credsByProgram[registration.ProgramID] = creds
		}
		if err := s.refreshWallet(ctx, creds, wallet); err != nil {
			errs = append(errs, fmt.Errorf("wallet %s: %w", wallet.TokenCode, err))
		}
	}
	return errors.Join(errs...)
}

func (s *service) StuckWallets(ctx context.Context, olderThan time.Duration) ([]domain.Wallet, error) {
	cutoff := s.clock.Now().UTC().Add(-olderThan)
	return s.repo.UnlinkedWalletsOlderThan(ctx, cutoff)
}

func cardData(details regdomain.PaymentDetails) api.CardData {
	return api.CardData{
		FirstName:           details.FirstName,
		LastName:            details.LastName,
		Street:              details.AddressStreet,
		HouseNumber:         details.AddressHouseNumber,
		HouseNumberAddition: details.AddressHouseNumberAddition,
		PostalCode:          details.AddressPostalCode,
		City:                details.AddressCity,
		PhoneNumber:         details.PhoneNumber,
	}
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
