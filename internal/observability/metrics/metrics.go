package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels attached to every instrument.
type Config struct {
	ServiceName string
	Environment string
}

var (
	registryMu sync.RWMutex
	registry   prometheus.Registerer = prometheus.DefaultRegisterer
)

// SetRegisterer swaps the registerer used for new instruments. Tests use
// this together with ResetForTest to register against a private registry.
func SetRegisterer(r prometheus.Registerer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	registry = r
}

func registerer() prometheus.Registerer {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

func constLabels(cfg Config) prometheus.Labels {
	service := cfg.ServiceName
	if service == "" {
		service = "disburse"
	}
	env := cfg.Environment
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": service, "env": env}
}

func mustRegister(cs ...prometheus.Collector) {
	reg := registerer()
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			panic(err)
		}
	}
}
