package domain

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("program not found")

type Repository interface {
	FindByID(ctx context.Context, id int64) (*Program, error)
	FspConfigurations(ctx context.Context, programID int64, provider string) ([]FspConfiguration, error)
	SaveProgram(ctx context.Context, program *Program) error
	SaveFspConfiguration(ctx context.Context, cfg *FspConfiguration) error
}

type Service interface {
	Get(ctx context.Context, id int64) (*Program, error)
	Create(ctx context.Context, title, currency string, languages []string, defaultAmount float64) (*Program, error)
	FspConfigurations(ctx context.Context, programID int64, provider string) (map[string]string, error)
}
