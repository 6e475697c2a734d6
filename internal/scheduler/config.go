package scheduler

import (
	"time"
)

// Config controls sweep cadences and timeouts.
type Config struct {
	RunInterval time.Duration
	EnabledJobs []string

	CancelVouchersInterval   time.Duration
	VoucherBalancesInterval  time.Duration
	WalletDetailsInterval    time.Duration
	VoucherRemindersInterval time.Duration
	StuckWalletsInterval     time.Duration
	ReclaimJobsInterval      time.Duration

	JobTimeout               time.Duration
	StuckWalletThreshold     time.Duration
	ReclaimVisibilityTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:              time.Minute,
		CancelVouchersInterval:   10 * time.Minute,
		VoucherBalancesInterval:  24 * time.Hour,
		WalletDetailsInterval:    24 * time.Hour,
		VoucherRemindersInterval: 24 * time.Hour,
		StuckWalletsInterval:     time.Hour,
		ReclaimJobsInterval:      5 * time.Minute,
		JobTimeout:               10 * time.Minute,
		StuckWalletThreshold:     24 * time.Hour,
		ReclaimVisibilityTimeout: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.CancelVouchersInterval <= 0 {
		c.CancelVouchersInterval = defaults.CancelVouchersInterval
	}
	if c.VoucherBalancesInterval <= 0 {
		c.VoucherBalancesInterval = defaults.VoucherBalancesInterval
	}
	if c.WalletDetailsInterval <= 0 {
		c.WalletDetailsInterval = defaults.WalletDetailsInterval
	}
	if c.VoucherRemindersInterval <= 0 {
		c.VoucherRemindersInterval = defaults.VoucherRemindersInterval
	}
	if c.StuckWalletsInterval <= 0 {
		c.StuckWalletsInterval = defaults.StuckWalletsInterval
	}
	if c.ReclaimJobsInterval <= 0 {
		c.ReclaimJobsInterval = defaults.ReclaimJobsInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.StuckWalletThreshold <= 0 {
		c.StuckWalletThreshold = defaults.StuckWalletThreshold
	}
	if c.ReclaimVisibilityTimeout <= 0 {
		c.ReclaimVisibilityTimeout = defaults.ReclaimVisibilityTimeout
	}
	return c
}
