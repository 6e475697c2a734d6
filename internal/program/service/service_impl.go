package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"github.com/reliefops/disburse/internal/program/domain"
	"go.uber.org/zap"
)

type service struct {
	repo domain.Repository
	node *snowflake.Node
	log  *zap.Logger
}

func New(repo domain.Repository, node *snowflake.Node, log *zap.Logger) domain.Service {
	return &service{
		repo: repo,
		node: node,
		log:  log.Named("program.service"),
	}
}

func (s *service) Get(ctx context.Context, id int64) (*domain.Program, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) Create(ctx context.Context, title, currency string, languages []string, defaultAmount float64) (*domain.Program, error) {
	now := time.Now().UTC()
	program := &domain.Program{
		ID:                   s.node.Generate(),
		Title:                title,
		Slug:                 slug.Make(title),
		Languages:            pq.StringArray(languages),
		Currency:             currency,
		DefaultPaymentAmount: defaultAmount,
		Enabled:              true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.SaveProgram(ctx, program); err != nil {
		return nil, fmt.Errorf("save program: %w", err)
	}
	s.log.Info("program created",
		zap.Int64("program_id", program.ID.Int64()),
		zap.String("slug", program.Slug),
	)
	return program, nil
}

func (s *service) FspConfigurations(ctx context.Context, programID int64, provider string) (map[string]string, error) {
	rows, err := s.repo.FspConfigurations(ctx, programID, provider)
	if err != nil {
		return nil, fmt.Errorf("load fsp configurations: %w", err)
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Name] = row.Value
	}
	return values, nil
}
