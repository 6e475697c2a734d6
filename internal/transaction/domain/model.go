package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Transaction steps. A provider with a delivery leg records two rows per
// payment: step 1 for the payout call, step 2 for the delivery confirmation.
const (
	StepPayout   = 1
	StepDelivery = 2
)

// Transaction is one ledger row for one payment attempt outcome.
type Transaction struct {
	ID             snowflake.ID `gorm:"primaryKey;column:id"`
	RegistrationID snowflake.ID `gorm:"column:registration_id;index"`
	ReferenceID    string       `gorm:"column:reference_id;index"`
	ProgramID      int64        `gorm:"column:program_id;index"`
	PaymentNr      int          `gorm:"column:payment_nr"`
	Provider       string       `gorm:"column:provider"`
	Status         string       `gorm:"column:status"`
	Amount         float64      `gorm:"column:amount"`
	ErrorMessage   string       `gorm:"column:error_message"`
	Step           int          `gorm:"column:step"`
	MessageSID     string       `gorm:"column:message_sid;index"`
	Scope          string       `gorm:"column:scope;index"`
	CreatedAt      time.Time    `gorm:"column:created_at"`
	UpdatedAt      time.Time    `gorm:"column:updated_at"`
}

func (Transaction) TableName() string { return "transactions" }
