package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	"github.com/stretchr/testify/mock"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) ListEffectiveNexusCodes(ctx context.Context, tenantID snowflake.ID, asOf time.Time) ([]string, error) {
	args := m.Called(ctx, tenantID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockRepository) ListEffectiveRules(ctx context.Context, jurisdictionCode string, asOf time.Time) ([]taxdomain.RuleWithCode, error) {
	args := m.Called(ctx, jurisdictionCode, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]taxdomain.RuleWithCode), args.Error(1)
}

func standardRule(id int64, rate float64) taxdomain.RuleWithCode {
	return taxdomain.RuleWithCode{
		TaxRule: taxdomain.TaxRule{
			ID:       snowflake.ID(id),
			Rate:     rate,
			RuleType: taxdomain.RuleTypeStandard,
		},
	}
}

func codedRule(id int64, code string, rate float64) taxdomain.RuleWithCode {
	codeID := snowflake.ID(id * 100)
	return taxdomain.RuleWithCode{
		TaxRule: taxdomain.TaxRule{
			ID:        snowflake.ID(id),
			TaxCodeID: &codeID,
			Rate:      rate,
			RuleType:  taxdomain.RuleTypeReduced,
		},
		TaxCode: &code,
	}
}

func strPtr(s string) *string { return &s }
