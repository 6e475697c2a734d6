package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Wallet display statuses derived from provider status plus the local block
// flag.
const (
	WalletStatusActive   = "Active"
	WalletStatusInactive = "Inactive"
	WalletStatusBlocked  = "Blocked"
)

// Customer is the provider-side customer created once per registration. The
// unique registration ID makes creation idempotent under job redelivery.
type Customer struct {
	ID             snowflake.ID `gorm:"primaryKey;column:id"`
	RegistrationID snowflake.ID `gorm:"column:registration_id;uniqueIndex"`
	ReferenceID    string       `gorm:"column:reference_id;index"`
	HolderID       string       `gorm:"column:holder_id"`
	CreatedAt      time.Time    `gorm:"column:created_at"`
}

func (Customer) TableName() string { return "visa_customers" }

// Wallet is one provider wallet and the provisioning milestones reached for
// it. The most recently created wallet for a customer is the current one.
type Wallet struct {
	ID               snowflake.ID `gorm:"primaryKey;column:id"`
	CustomerID       snowflake.ID `gorm:"column:customer_id;index"`
	TokenCode        string       `gorm:"column:token_code;uniqueIndex"`
	LinkedToCustomer bool         `gorm:"column:linked_to_customer"`
	DebitCardCreated bool         `gorm:"column:debit_card_created"`
	TokenBlocked     bool         `gorm:"column:token_blocked"`
	BalanceCents     int64        `gorm:"column:balance_cents"`
	Status           string       `gorm:"column:status"`
	LastUsedDate     *time.Time   `gorm:"column:last_used_date"`
	LastExternalSync *time.Time   `gorm:"column:last_external_sync"`
	CreatedAt        time.Time    `gorm:"column:created_at"`
	UpdatedAt        time.Time    `gorm:"column:updated_at"`
}

func (Wallet) TableName() string { return "visa_wallets" }

// WalletDetails is the refreshed provider view of a wallet returned to
// operators.
type WalletDetails struct {
	TokenCode        string     `json:"tokenCode"`
	BalanceCents     int64      `json:"balanceCents"`
	Status           string     `json:"status"`
	IssuedDate       time.Time  `json:"issuedDate"`
	LastUsedDate     *time.Time `json:"lastUsedDate,omitempty"`
	LinkedToCustomer bool       `json:"linkedToCustomer"`
	DebitCardCreated bool       `json:"debitCardCreated"`
	TokenBlocked     bool       `json:"tokenBlocked"`
}
