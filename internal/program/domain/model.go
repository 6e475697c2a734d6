package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// Program is one assistance program running disbursements.
type Program struct {
	ID                   snowflake.ID   `gorm:"primaryKey;column:id"`
	Title                string         `gorm:"column:title"`
	Slug                 string         `gorm:"column:slug;uniqueIndex"`
	Languages            pq.StringArray `gorm:"column:languages;type:text[]"`
	Currency             string         `gorm:"column:currency"`
	DefaultPaymentAmount float64        `gorm:"column:default_payment_amount"`
	Enabled              bool           `gorm:"column:enabled"`
	CreatedAt            time.Time      `gorm:"column:created_at"`
	UpdatedAt            time.Time      `gorm:"column:updated_at"`
}

func (Program) TableName() string { return "programs" }

// FspConfiguration is one named configuration value for a provider under a
// program. Credential values live here and are read at worker pickup, never
// serialized into queue payloads.
type FspConfiguration struct {
	ID        snowflake.ID `gorm:"primaryKey;column:id"`
	ProgramID int64        `gorm:"column:program_id;uniqueIndex:idx_fsp_config_key"`
	Provider  string       `gorm:"column:provider;uniqueIndex:idx_fsp_config_key"`
	Name      string       `gorm:"column:name;uniqueIndex:idx_fsp_config_key"`
	Value     string       `gorm:"column:value"`
	UpdatedAt time.Time    `gorm:"column:updated_at"`
}

func (FspConfiguration) TableName() string { return "fsp_configurations" }

// Well-known configuration names.
const (
	ConfigUsername         = "username"
	ConfigPassword         = "password"
	ConfigAssetCode        = "assetCode"
	ConfigBrandCode        = "brandCode"
	ConfigCoverLetterCode  = "coverLetterCode"
	ConfigFundingTokenCode = "fundingTokenCode"
)
