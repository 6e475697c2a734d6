package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPayoutConfig(t *testing.T) {
	cfg := DefaultPayoutConfig()

	visa := cfg.Provider("intersolve-visa")
	assert.True(t, visa.PreloadOnWalletCreate)
	assert.True(t, visa.SupportsReissue)
	assert.Equal(t, 4, visa.WorkerConcurrency)
	assert.Equal(t, 3, visa.MaxJobAttempts)

	whatsapp := cfg.Provider("intersolve-voucher-whatsapp")
	assert.False(t, whatsapp.PreloadOnWalletCreate)
	assert.False(t, whatsapp.SupportsReissue)
	assert.Equal(t, 8, whatsapp.WorkerConcurrency)

	assert.Equal(t, 24*time.Hour, cfg.ReminderAfter)
	assert.Equal(t, 3, cfg.MaxReminders)
	assert.Equal(t, 1000, cfg.BalanceBatchSize)
}

func TestProvider_LookupIsCaseInsensitive(t *testing.T) {
	cfg := DefaultPayoutConfig()
	assert.True(t, cfg.Provider(" Intersolve-Visa ").PreloadOnWalletCreate)
}

func TestProvider_UnknownFallsBackToSafeDefaults(t *testing.T) {
	caps := DefaultPayoutConfig().Provider("some-future-fsp")
	assert.False(t, caps.PreloadOnWalletCreate)
	assert.False(t, caps.SupportsReissue)
	assert.Equal(t, 1, caps.WorkerConcurrency)
	assert.Equal(t, 3, caps.MaxJobAttempts)
}

func TestNewStaticPayoutConfigHolder_AppliesDefaults(t *testing.T) {
	holder := NewStaticPayoutConfigHolder(PayoutConfig{
		ReminderAfter: 48 * time.Hour,
	})

	cfg := holder.Get()
	assert.Equal(t, 48*time.Hour, cfg.ReminderAfter)
	assert.Equal(t, 3, cfg.MaxReminders)
	assert.Equal(t, 1000, cfg.BalanceBatchSize)
	assert.True(t, cfg.Provider("intersolve-visa").PreloadOnWalletCreate)
}

func TestValidatePayoutConfig(t *testing.T) {
	assert.NoError(t, validatePayoutConfig(DefaultPayoutConfig()))

	bad := PayoutConfig{Providers: map[string]ProviderCapabilities{
		"": {WorkerConcurrency: 1},
	}}
	assert.Error(t, validatePayoutConfig(bad))

	negative := PayoutConfig{Providers: map[string]ProviderCapabilities{
		"x": {WorkerConcurrency: -1},
	}}
	assert.Error(t, validatePayoutConfig(negative))
}
