package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/scope"
)

var (
	ErrVoucherNotFound = errors.New("voucher not found")
	ErrAlreadySent     = errors.New("voucher already sent for this payment")
)

type Repository interface {
	VoucherForPayment(ctx context.Context, referenceID string, paymentNr int, sc scope.Scope) (*Voucher, error)
	InsertVoucher(ctx context.Context, voucher *Voucher) error
	UpdateVoucher(ctx context.Context, voucher *Voucher) error

	// VoucherIDBounds returns the smallest and largest voucher ID, so the
	// balance sweep can walk the table in fixed-size ID ranges.
	VoucherIDBounds(ctx context.Context) (minID, maxID int64, err error)
	UnusedVouchersInRange(ctx context.Context, fromID, toID int64) ([]Voucher, error)
	VouchersNeedingReminder(ctx context.Context, createdBefore time.Time, maxReminders int) ([]Voucher, error)
	UnusedVoucherReport(ctx context.Context) ([]Voucher, error)

	InsertIssueRequest(ctx context.Context, req *IssueRequest) error
	MarkIssueRequestToCancel(ctx context.Context, id snowflake.ID, cardID, transactionID string) error
	PendingCancellations(ctx context.Context) ([]IssueRequest, error)
	MarkIssueRequestCanceled(ctx context.Context, id snowflake.ID, at time.Time) error
}

// Service drives both voucher variants; the provider argument picks the
// delivery leg (whatsapp message or paper handout).
type Service interface {
	SendPayment(ctx context.Context, job fsp.PaymentJob, provider string) (fsp.Result, error)

	ProcessDeliveryStatus(ctx context.Context, messageSID, status string) error
	GetBalance(ctx context.Context, referenceID string, paymentNr int, sc scope.Scope) (int64, error)
	ExportVoucherImage(ctx context.Context, referenceID string, paymentNr int, sc scope.Scope) ([]byte, error)

	CancelPendingIssueRequests(ctx context.Context) error
	UpdateUnusedVouchers(ctx context.Context) error
	SendWhatsappReminders(ctx context.Context) error
	UnusedVouchers(ctx context.Context) ([]Voucher, error)
}
