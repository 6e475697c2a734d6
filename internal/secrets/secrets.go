// Package secrets resolves provider credentials at worker pickup time.
// Queue payloads carry identifiers only; a job that sat in redis overnight
// still runs with whatever credentials are configured when it is picked up.
package secrets

import (
	"context"
	"fmt"

	"github.com/reliefops/disburse/internal/fsp"
	programdomain "github.com/reliefops/disburse/internal/program/domain"
	"go.uber.org/fx"
)

// Credentials is the resolved credential set for one (program, provider).
type Credentials struct {
	Username string
	Password string
	Extra    map[string]string
}

// Get returns a named extra value, empty when absent.
func (c Credentials) Get(name string) string {
	return c.Extra[name]
}

type Resolver struct {
	programs programdomain.Service
}

func NewResolver(programs programdomain.Service) *Resolver {
	return &Resolver{programs: programs}
}

// Credentials loads the configured credentials for a provider under a
// program. Missing username or password fails before any remote call.
func (r *Resolver) Credentials(ctx context.Context, programID int64, provider string) (Credentials, error) {
	values, err := r.programs.FspConfigurations(ctx, programID, provider)
	if err != nil {
		return Credentials{}, fmt.Errorf("resolve credentials: %w", err)
	}

	username := values[programdomain.ConfigUsername]
	password := values[programdomain.ConfigPassword]
	if username == "" || password == "" {
		return Credentials{}, &fsp.ConfigurationError{
			Message: fmt.Sprintf("provider %s is not configured for program %d: missing username or password", provider, programID),
		}
	}

	extra := make(map[string]string, len(values))
	for name, value := range values {
		if name == programdomain.ConfigUsername || name == programdomain.ConfigPassword {
			continue
		}
		extra[name] = value
	}

	return Credentials{Username: username, Password: password, Extra: extra}, nil
}

var Module = fx.Module("secrets",
	fx.Provide(NewResolver),
)
