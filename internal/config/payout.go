package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ProviderCapabilities records what a financial service provider's API can do,
// so orchestrators branch on declared capability instead of accumulated flags.
type ProviderCapabilities struct {
	// PreloadOnWalletCreate means the provider accepts an initial amount in
	// the create-wallet call, so the first payment needs no separate load.
	PreloadOnWalletCreate bool `mapstructure:"preloadOnWalletCreate"`
	// SupportsReissue means the provider supports the replace-card flow.
	SupportsReissue bool `mapstructure:"supportsReissue"`
	// WorkerConcurrency caps parallel jobs against this provider.
	WorkerConcurrency int `mapstructure:"workerConcurrency"`
	// MaxJobAttempts bounds queue retries for this provider.
	MaxJobAttempts int `mapstructure:"maxJobAttempts"`
}

// PayoutConfig is the hot-reloadable payout tuning file.
type PayoutConfig struct {
	Providers        map[string]ProviderCapabilities `mapstructure:"providers"`
	ReminderAfter    time.Duration                   `mapstructure:"reminderAfter"`
	MaxReminders     int                             `mapstructure:"maxReminders"`
	BalanceBatchSize int                             `mapstructure:"balanceBatchSize"`
}

func DefaultPayoutConfig() PayoutConfig {
	return PayoutConfig{
		Providers: map[string]ProviderCapabilities{
			"intersolve-visa": {
				PreloadOnWalletCreate: true,
				SupportsReissue:       true,
				WorkerConcurrency:     4,
				MaxJobAttempts:        3,
			},
			"intersolve-voucher-whatsapp": {
				WorkerConcurrency: 8,
				MaxJobAttempts:    3,
			},
			"intersolve-voucher-paper": {
				WorkerConcurrency: 8,
				MaxJobAttempts:    3,
			},
		},
		ReminderAfter:    24 * time.Hour,
		MaxReminders:     3,
		BalanceBatchSize: 1000,
	}
}

// Provider returns the capabilities for a provider, falling back to defaults.
func (c PayoutConfig) Provider(name string) ProviderCapabilities {
	if caps, ok := c.Providers[strings.ToLower(strings.TrimSpace(name))]; ok {
		return caps
	}
	return ProviderCapabilities{WorkerConcurrency: 1, MaxJobAttempts: 3}
}

type PayoutConfigHolder struct {
	current atomic.Value // holds PayoutConfig
}

func NewPayoutConfigHolder() (*PayoutConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("payout")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/disburse/config")
	v.AddConfigPath("/etc/disburse")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DISBURSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPayoutConfig()
		v.SetDefault("payout.providers", defaults.Providers)
		v.SetDefault("payout.reminderAfter", defaults.ReminderAfter)
		v.SetDefault("payout.maxReminders", defaults.MaxReminders)
		v.SetDefault("payout.balanceBatchSize", defaults.BalanceBatchSize)
	}

	var cfg PayoutConfig
	if err := v.UnmarshalKey("payout", &cfg); err != nil {
		return nil, err
	}
	cfg = withPayoutDefaults(cfg)
	if err := validatePayoutConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PayoutConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PayoutConfig
		if err := v.UnmarshalKey("payout", &updated); err != nil {
			log.Printf("[payout-config] reload failed: %v", err)
			return
		}
		updated = withPayoutDefaults(updated)
		if err := validatePayoutConfig(updated); err != nil {
			log.Printf("[payout-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payout-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPayoutConfigHolder wraps a fixed config without file watching.
func NewStaticPayoutConfigHolder(cfg PayoutConfig) *PayoutConfigHolder {
	holder := &PayoutConfigHolder{}
	holder.current.Store(withPayoutDefaults(cfg))
	return holder
}

func (h *PayoutConfigHolder) Get() PayoutConfig {
	return h.current.Load().(PayoutConfig)
}

func withPayoutDefaults(cfg PayoutConfig) PayoutConfig {
	defaults := DefaultPayoutConfig()
	if len(cfg.Providers) == 0 {
		cfg.Providers = defaults.Providers
	}
	if cfg.ReminderAfter <= 0 {
		cfg.ReminderAfter = defaults.ReminderAfter
	}
	if cfg.MaxReminders <= 0 {
		cfg.MaxReminders = defaults.MaxReminders
	}
	if cfg.BalanceBatchSize <= 0 {
		cfg.BalanceBatchSize = defaults.BalanceBatchSize
	}
	return cfg
}

func validatePayoutConfig(cfg PayoutConfig) error {
	for name, caps := range cfg.Providers {
		if strings.TrimSpace(name) == "" {
			return errors.New("payout provider name must not be empty")
		}
		if caps.WorkerConcurrency < 0 {
			return errors.New("workerConcurrency must not be negative")
		}
		if caps.MaxJobAttempts < 0 {
			return errors.New("maxJobAttempts must not be negative")
		}
	}
	return nil
}
