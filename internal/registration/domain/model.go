package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Registration statuses.
const (
	StatusRegistered = "registered"
	StatusValidated  = "validated"
	StatusIncluded   = "included"
	StatusInactive   = "inactive"
)

// Attribute value types.
const (
	AttributeText    = "text"
	AttributeNumeric = "numeric"
	AttributeBoolean = "boolean"
)

// Registration is a beneficiary enrolled in a program. ReferenceID is the
// immutable external identifier used as the idempotency key for every
// provider call.
type Registration struct {
	ID                      snowflake.ID `gorm:"primaryKey;column:id"`
	ReferenceID             string       `gorm:"column:reference_id;uniqueIndex"`
	ProgramID               int64        `gorm:"column:program_id;index"`
	PhoneNumber             string       `gorm:"column:phone_number"`
	PreferredLanguage       string       `gorm:"column:preferred_language"`
	PaymentAddress          string       `gorm:"column:payment_address"`
	FspProvider             string       `gorm:"column:fsp_provider"`
	Status                  string       `gorm:"column:status"`
	PaymentAmountMultiplier float64      `gorm:"column:payment_amount_multiplier"`
	Scope                   string       `gorm:"column:scope;index"`
	CreatedAt               time.Time    `gorm:"column:created_at"`
	UpdatedAt               time.Time    `gorm:"column:updated_at"`
}

func (Registration) TableName() string { return "registrations" }

// AttributeDefinition declares one attribute a program collects, with its
// value type. Values are rejected when they do not parse as the declared
// type.
type AttributeDefinition struct {
	ID        snowflake.ID `gorm:"primaryKey;column:id"`
	ProgramID int64        `gorm:"column:program_id;uniqueIndex:idx_attr_def_program_key"`
	Key       string       `gorm:"column:key;uniqueIndex:idx_attr_def_program_key"`
	Type      string       `gorm:"column:type"`
	Label     string       `gorm:"column:label"`
	CreatedAt time.Time    `gorm:"column:created_at"`
}

func (AttributeDefinition) TableName() string { return "registration_attribute_definitions" }

// RegistrationAttribute stores one attribute value for one registration.
type RegistrationAttribute struct {
	ID             snowflake.ID `gorm:"primaryKey;column:id"`
	RegistrationID snowflake.ID `gorm:"column:registration_id;uniqueIndex:idx_attr_registration_key"`
	Key            string       `gorm:"column:key;uniqueIndex:idx_attr_registration_key"`
	Value          string       `gorm:"column:value"`
	UpdatedAt      time.Time    `gorm:"column:updated_at"`
}

func (RegistrationAttribute) TableName() string { return "registration_attributes" }

// PaymentDetails is the card-holder profile a debit card provider needs,
// materialized from registration attributes.
type PaymentDetails struct {
	FirstName                  string
	LastName                   string
	AddressStreet              string
	AddressHouseNumber         string
	AddressHouseNumberAddition string
	AddressPostalCode          string
	AddressCity                string
	PhoneNumber                string
}

// Attribute keys consumed by PaymentDetails.
const (
	AttrFirstName                  = "firstName"
	AttrLastName                   = "lastName"
	AttrAddressStreet              = "addressStreet"
	AttrAddressHouseNumber         = "addressHouseNumber"
	AttrAddressHouseNumberAddition = "addressHouseNumberAddition"
	AttrAddressPostalCode          = "addressPostalCode"
	AttrAddressCity                = "addressCity"
)
