package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/secrets"
)

func unavailable() error {
	return &fsp.RemoteUnavailableError{StatusCode: 503}
}

// Mock is an in-memory stand-in for the voucher provider. Tests arm
// failures through the exported fields.
type Mock struct {
	mu  sync.Mutex
	seq int

	// RejectIssue makes Issue answer with a non-zero result code.
	RejectIssue *IssueResponse
	// Unavailable makes every call fail as a transient provider outage.
	Unavailable bool

	balances  map[string]int64
	canceled  map[string]bool
	cancelLog []int64
}

func NewMock() *Mock {
	return &Mock{
		balances: make(map[string]int64),
		canceled: make(map[string]bool),
	}
}

func (m *Mock) Issue(ctx context.Context, creds secrets.Credentials, amountCents, refPos int64) (*IssueResponse, error) {
	if m.Unavailable {
		return nil, unavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RejectIssue != nil {
		return m.RejectIssue, nil
	}
	m.seq++
	cardID := fmt.Sprintf("mock-card-%d", m.seq)
	m.balances[cardID] = amountCents
	return &IssueResponse{
		ResultCode:    ResultOK,
		TransactionID: fmt.Sprintf("mock-tx-%d", m.seq),
		CardID:        cardID,
		Pin:           fmt.Sprintf("%06d", m.seq),
		BalanceCents:  amountCents,
	}, nil
}

func (m *Mock) GetBalance(ctx context.Context, creds secrets.Credentials, cardID, pin string) (int64, error) {
	if m.Unavailable {
		return 0, unavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[cardID], nil
}

// SetBalance lets tests simulate spending on an issued voucher.
func (m *Mock) SetBalance(cardID string, cents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[cardID] = cents
}

func (m *Mock) Cancel(ctx context.Context, creds secrets.Credentials, cardID, transactionID string) error {
	if m.Unavailable {
		return unavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled[cardID] = true
	return nil
}

func (m *Mock) CancelByRefPos(ctx context.Context, creds secrets.Credentials, refPos int64) error {
	if m.Unavailable {
		return unavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLog = append(m.cancelLog, refPos)
	return nil
}

// Canceled reports whether a card was canceled.
func (m *Mock) Canceled(cardID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canceled[cardID]
}

// CanceledRefPositions returns the refPos values canceled without a card.
func (m *Mock) CanceledRefPositions() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.cancelLog))
	copy(out, m.cancelLog)
	return out
}

var _ Client = (*Mock)(nil)
