package fsp

import (
	"context"
)

// Transaction status values recorded in the ledger.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusWaiting = "waiting"
)

// Known provider names.
const (
	ProviderVisa            = "intersolve-visa"
	ProviderVoucherWhatsapp = "intersolve-voucher-whatsapp"
	ProviderVoucherPaper    = "intersolve-voucher-paper"
)

// PaymentJob is the unit of work handed to a provider integration. It
// carries identifiers only; credentials are resolved by the worker at
// pickup time.
type PaymentJob struct {
	ReferenceID   string  `json:"referenceId"`
	ProgramID     int64   `json:"programId"`
	PaymentNr     int     `json:"paymentNr"`
	Amount        float64 `json:"amount"`
	CorrelationID string  `json:"correlationId"`
	Attempt       int     `json:"attempt"`
}

// Notification asks the dispatcher to send a templated message after a
// successful provider call.
type Notification struct {
	TemplateKey   string
	DynamicParams []string
}

// Result is the outcome of a provider call for one job. MessageSID is set
// when the outcome is waiting on an async delivery confirmation.
type Result struct {
	Status           string
	Message          string
	CalculatedAmount float64
	MessageSID       string
	Notifications    []Notification
}

// Integration is implemented by each financial service provider adapter.
type Integration interface {
	Provider() string
	SendPayment(ctx context.Context, job PaymentJob) (Result, error)
}
