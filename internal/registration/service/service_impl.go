package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/reliefops/disburse/internal/registration/domain"
	"github.com/reliefops/disburse/internal/scope"
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
		log:  log.Named("registration.service"),
	}
}

func (s *service) Get(ctx context.Context, referenceID string, sc scope.Scope) (*domain.Registration, error) {
	return s.repo.FindByReferenceID(ctx, referenceID, sc)
}

func (s *service) ResolveForPayment(ctx context.Context, programID int64, referenceIDs []string, sc scope.Scope) ([]domain.Registration, error) {
	registrations, err := s.repo.FindByReferenceIDs(ctx, programID, referenceIDs, sc)
	if err != nil {
		return nil, fmt.Errorf("resolve registrations: %w", err)
	}
	if len(registrations) < len(referenceIDs) {
		s.log.Warn("payment run references registrations outside scope or unknown",
			zap.Int64("program_id", programID),
			zap.Int("requested", len(referenceIDs)),
			zap.Int("resolved", len(registrations)),
		)
	}
	return registrations, nil
}

func (s *service) PaymentDetails(ctx context.Context, referenceID string, sc scope.Scope) (domain.PaymentDetails, error) {
	registration, err := s.repo.FindByReferenceID(ctx, referenceID, sc)
	if err != nil {
		return domain.PaymentDetails{}, err
	}
	attributes, err := s.repo.Attributes(ctx, registration.ID)
	if err != nil {
		return domain.PaymentDetails{}, fmt.Errorf("load attributes: %w", err)
	}

	values := make(map[string]string, len(attributes))
	for _, attr := range attributes {
		values[attr.Key] = attr.Value
	}

	details := domain.PaymentDetails{
		FirstName:                  values[domain.AttrFirstName],
		LastName:                   values[domain.AttrLastName],
		AddressStreet:              values[domain.AttrAddressStreet],
		AddressHouseNumber:         values[domain.AttrAddressHouseNumber],
		AddressHouseNumberAddition: values[domain.AttrAddressHouseNumberAddition],
		AddressPostalCode:          values[domain.AttrAddressPostalCode],
		AddressCity:                values[domain.AttrAddressCity],
		PhoneNumber:                registration.PhoneNumber,
	}
	return details, nil
}

func (s *service) SetAttribute(ctx context.Context, referenceID string, sc scope.Scope, key, value string) error {
	registration, err := s.repo.FindByReferenceID(ctx, referenceID, sc)
	if err != nil {
		return err
	}

	definitions, err := s.repo.AttributeDefinitions(ctx, registration.ProgramID)
	if err != nil {
		return fmt.Errorf("load attribute definitions: %w", err)
	}
	var definition *domain.AttributeDefinition
	for i := range definitions {
		if definitions[i].Key == key {
			definition = &definitions[i]
			break
		}
	}
	if definition == nil {
		return fmt.Errorf("%w: %s", domain.ErrAttributeUndefined, key)
	}
	if err := validateValue(definition.Type, value); err != nil {
		return err
	}

	attr := &domain.RegistrationAttribute{
		ID:             s.node.Generate(),
		RegistrationID: registration.ID,
		Key:            key,
		Value:          value,
	}
	return s.repo.UpsertAttribute(ctx, attr)
}

func validateValue(attrType, value string) error {
	switch attrType {
	case domain.AttributeText:
		return nil
	case domain.AttributeNumeric:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%w: %q is not numeric", domain.ErrAttributeType, value)
		}
		return nil
	case domain.AttributeBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %q is not boolean", domain.ErrAttributeType, value)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", domain.ErrAttributeType, attrType)
	}
}
