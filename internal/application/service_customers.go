package application

import (
	"context"
	"fmt"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type customerQuery struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// CustomerLicenses aggregates a customer's keys and licenses across every
// active brand. It is read-only and the only operation that crosses tenants.
func (s *Service) CustomerLicenses(ctx context.Context, actor Actor, email string) (domain.CustomerSummary, error) {
	if err := requireBrand(actor); err != nil {
		return domain.CustomerSummary{}, err
	}
	query, err := s.customerQuery(email)
	if err != nil {
		return domain.CustomerSummary{}, err
	}
	records, err := s.customers.AcrossBrands(ctx, query.Email)
	if err != nil {
		return domain.CustomerSummary{}, fmt.Errorf("customer licenses: %w", err)
	}
	return domain.SummarizeCustomer(query.Email, records, s.nowFn()), nil
}

func (s *Service) CustomerLicensesInBrand(ctx context.Context, actor Actor, email string) (domain.CustomerSummary, error) {
	if err := requireBrand(actor); err != nil {
		return domain.CustomerSummary{}, err
	}
	query, err := s.customerQuery(email)
	if err != nil {
		return domain.CustomerSummary{}, err
	}
	records, err := s.customers.InBrand(ctx, actor.BrandID, query.Email)
	if err != nil {
		return domain.CustomerSummary{}, fmt.Errorf("customer licenses in brand: %w", err)
	}
	return domain.SummarizeCustomer(query.Email, records, s.nowFn()), nil
}

func (s *Service) customerQuery(email string) (customerQuery, error) {
	query := customerQuery{Email: domain.NormalizeEmail(email)}
	if err := s.validateInput(query); err != nil {
		return customerQuery{}, err
	}
	return query, nil
}
