package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/reliefops/disburse/internal/scope"
)

var (
	ErrNotFound           = errors.New("registration not found")
	ErrAttributeUndefined = errors.New("attribute not defined for program")
	ErrAttributeType      = errors.New("attribute value does not match declared type")
)

type Repository interface {
	FindByReferenceID(ctx context.Context, referenceID string, sc scope.Scope) (*Registration, error)
	FindByReferenceIDs(ctx context.Context, programID int64, referenceIDs []string, sc scope.Scope) ([]Registration, error)
	UpdateStatus(ctx context.Context, registrationID snowflake.ID, status string) error

	AttributeDefinitions(ctx context.Context, programID int64) ([]AttributeDefinition, error)
	Attributes(ctx context.Context, registrationID snowflake.ID) ([]RegistrationAttribute, error)
	UpsertAttribute(ctx context.Context, attr *RegistrationAttribute) error
}

type Service interface {
	Get(ctx context.Context, referenceID string, sc scope.Scope) (*Registration, error)
	ResolveForPayment(ctx context.Context, programID int64, referenceIDs []string, sc scope.Scope) ([]Registration, error)
	PaymentDetails(ctx context.Context, referenceID string, sc scope.Scope) (PaymentDetails, error)
	SetAttribute(ctx context.Context, referenceID string, sc scope.Scope, key, value string) error
}
