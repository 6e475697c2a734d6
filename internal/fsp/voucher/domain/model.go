package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Voucher is one issued prepaid voucher. Send flips to true once the
// beneficiary has received it (message delivered, or paper handout);
// BalanceUsed flips once the provider reports the first spend.
type Voucher struct {
	ID                   snowflake.ID `gorm:"primaryKey;column:id"`
	RegistrationID       snowflake.ID `gorm:"column:registration_id;index"`
	ReferenceID          string       `gorm:"column:reference_id;uniqueIndex:idx_voucher_payment"`
	ProgramID            int64        `gorm:"column:program_id;index"`
	PaymentNr            int          `gorm:"column:payment_nr;uniqueIndex:idx_voucher_payment"`
	Provider             string       `gorm:"column:provider"`
	Barcode              string       `gorm:"column:barcode"`
	Pin                  string       `gorm:"column:pin"`
	AmountCents          int64        `gorm:"column:amount_cents"`
	Send                 bool         `gorm:"column:send"`
	BalanceUsed          bool         `gorm:"column:balance_used"`
	LastRequestedBalance *int64       `gorm:"column:last_requested_balance_cents"`
	BalanceRequestedAt   *time.Time   `gorm:"column:balance_requested_at"`
	ReminderCount        int          `gorm:"column:reminder_count"`
	WhatsappNumber       string       `gorm:"column:whatsapp_number"`
	Scope                string       `gorm:"column:scope;index"`
	CreatedAt            time.Time    `gorm:"column:created_at"`
	UpdatedAt            time.Time    `gorm:"column:updated_at"`
}

func (Voucher) TableName() string { return "vouchers" }

// IssueRequest records one attempt against the voucher provider. Requests
// marked to-cancel are cleaned up by the cancellation sweep, by card and
// transaction when the provider got far enough to return them, otherwise by
// the reference position sent with the request.
type IssueRequest struct {
	ID            snowflake.ID `gorm:"primaryKey;column:id"`
	ReferenceID   string       `gorm:"column:reference_id;index"`
	ProgramID     int64        `gorm:"column:program_id"`
	PaymentNr     int          `gorm:"column:payment_nr"`
	RefPos        int64        `gorm:"column:ref_pos"`
	CardID        string       `gorm:"column:card_id"`
	TransactionID string       `gorm:"column:transaction_id"`
	ToCancel      bool         `gorm:"column:to_cancel;index"`
	CanceledAt    *time.Time   `gorm:"column:canceled_at"`
	CreatedAt     time.Time    `gorm:"column:created_at"`
}

func (IssueRequest) TableName() string { return "voucher_issue_requests" }
