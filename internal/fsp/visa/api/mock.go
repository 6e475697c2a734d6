package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/secrets"
)

// Failure triggers recognized by the mock. A card holder whose last name
// starts with one of these makes the matching call fail, so end-to-end
// failure paths can be exercised without the real issuer.
const (
	TriggerFailCreateCustomer  = "mock-fail-create-customer"
	TriggerFailCreateWallet    = "mock-fail-create-wallet"
	TriggerFailLinkCustomer    = "mock-fail-link-customer-wallet"
	TriggerFailCreateDebitCard = "mock-fail-create-debit-card"
	TriggerFailLoadBalance     = "mock-fail-load-balance"
	TriggerFailGetWallet       = "mock-fail-get-wallet"
	TriggerFailUnload          = "mock-fail-unload"
	TriggerFailBlock           = "mock-fail-block"
)

type mockWallet struct {
	balanceCents int64
	blocked      bool
	linked       bool
	active       bool
	lastUsed     *time.Time
}

// Mock is an in-memory stand-in for the issuer API. The trigger set at
// customer creation (from the card holder's last name) drives later
// failures; tests can also set it directly.
type Mock struct {
	mu      sync.Mutex
	seq     int
	trigger string
	wallets map[string]*mockWallet
}

func NewMock() *Mock {
	return &Mock{wallets: make(map[string]*mockWallet)}
}

// SetTrigger arms a failure for flows that never pass through
// CreateCustomer, such as payments to an existing customer.
func (m *Mock) SetTrigger(trigger string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trigger = trigger
}

func (m *Mock) armed(trigger string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trigger == trigger
}

func validationErr(code, description, field string) error {
	return &fsp.RemoteValidationError{Errors: []fsp.APIError{{
		Code:        code,
		Description: description,
		Field:       field,
	}}}
}

func (m *Mock) CreateCustomer(ctx context.Context, creds secrets.Credentials, req CreateCustomerRequest) (*CreateCustomerResponse, error) {
	m.mu.Lock()
	m.trigger = req.LastName
	m.mu.Unlock()

	if req.LastName == TriggerFailCreateCustomer {
		return nil, validationErr("NOT_FOUND", "Customer data could not be validated", "lastName")
	}

	m.mu.Lock()
	m.seq++
	holderID := fmt.Sprintf("mock-holder-%d", m.seq)
	m.mu.Unlock()
	return &CreateCustomerResponse{HolderID: holderID}, nil
}

func (m *Mock) CreateWallet(ctx context.Context, creds secrets.Credentials, assetCode string, initialBalanceCents int64) (*CreateWalletResponse, error) {
	if m.armed(TriggerFailCreateWallet) {
		return nil, validationErr("INVALID_ASSET", "Asset code not accepted", "assetCode")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	tokenCode := fmt.Sprintf("mock-token-%d", m.seq)
	m.wallets[tokenCode] = &mockWallet{balanceCents: initialBalanceCents, active: true}
	return &CreateWalletResponse{TokenCode: tokenCode, BalanceCents: initialBalanceCents}, nil
}

func (m *Mock) LinkCustomerToWallet(ctx context.Context, creds secrets.Credentials, tokenCode, holderID string) error {
	if m.armed(TriggerFailLinkCustomer) {
		return validationErr("LINK_FAILED", "Customer could not be linked", "holderId")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[tokenCode]
	if !ok {
		return validationErr("TOKEN_NOT_FOUND", "Unknown token", "tokenCode")
	}
	wallet.linked = true
	return nil
}

func (m *Mock) CreateDebitCard(ctx context.Context, creds secrets.Credentials, tokenCode string, card CardData) error {
	if m.armed(TriggerFailCreateDebitCard) || card.LastName == TriggerFailCreateDebitCard {
		return validationErr("CARD_REJECTED", "Card production rejected", "lastName")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[tokenCode]; !ok {
		return validationErr("TOKEN_NOT_FOUND", "Unknown token", "tokenCode")
	}
	return nil
}

func (m *Mock) LoadBalance(ctx context.Context, creds secrets.Credentials, tokenCode string, amountCents int64, reference, saleID string) error {
	if m.armed(TriggerFailLoadBalance) {
		return &fsp.RemoteUnavailableError{StatusCode: 503}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[tokenCode]
	if !ok {
		return validationErr("TOKEN_NOT_FOUND", "Unknown token", "tokenCode")
	}
	wallet.balanceCents += amountCents
	return nil
}

func (m *Mock) UnloadBalance(ctx context.Context, creds secrets.Credentials, tokenCode string, amountCents int64, reference, saleID string) error {
	if m.armed(TriggerFailUnload) {
		return &fsp.RemoteUnavailableError{StatusCode: 503}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[tokenCode]
	if !ok {
		return validationErr("TOKEN_NOT_FOUND", "Unknown token", "tokenCode")
	}
	if wallet.balanceCents < amountCents {
		return validationErr("BALANCE_TOO_LOW", "Unload exceeds balance", "balance")
	}
	wallet.balanceCents -= amountCents
	return nil
}

func (m *Mock) GetWallet(ctx context.Context, creds secrets.Credentials, tokenCode string) (*WalletDetailsResponse, error) {
	if m.armed(TriggerFailGetWallet) {
		return nil, &fsp.RemoteUnavailableError{StatusCode: 503}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[tokenCode]
	if !ok {
		return nil, validationErr("TOKEN_NOT_FOUND", "Unknown token", "tokenCode")
	}
	status := "ACTIVE"
	if !wallet.active {
		status = "INACTIVE"
	}
	return &WalletDetailsResponse{
		TokenCode:    tokenCode,
		BalanceCents: wallet.balanceCents,
		Status:       status,
		LastUsedDate: wallet.lastUsed,
	}, nil
}

func (m *Mock) SetBlock(ctx context.Context, creds secrets.Credentials, tokenCode string, block bool) error {
	if m.armed(TriggerFailBlock) {
		return &fsp.RemoteUnavailableError{StatusCode: 503}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[tokenCode]
	if !ok {
		return validationErr("TOKEN_NOT_FOUND", "Unknown token", "tokenCode")
	}
	// The real API answers 405 when already in the requested state; the
	// client treats that as applied, so the mock does too.
	wallet.blocked = block
	return nil
}

func (m *Mock) ActivateWallet(ctx context.Context, creds secrets.Credentials, tokenCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[tokenCode]
	if !ok {
		return validationErr("TOKEN_NOT_FOUND", "Unknown token", "tokenCode")
	}
	wallet.active = true
	return nil
}

// Balance reports a wallet's current mock balance for assertions.
func (m *Mock) Balance(tokenCode string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wallet, ok := m.wallets[tokenCode]; ok {
		return wallet.balanceCents
	}
	return 0
}

// Blocked reports whether a mock wallet is blocked.
func (m *Mock) Blocked(tokenCode string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wallet, ok := m.wallets[tokenCode]; ok {
		return wallet.blocked
	}
	return false
}

var _ Client = (*Mock)(nil)
