package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Repository is the read side of the jurisdiction and rule store used by the engine.
type Repository interface {
	// ListEffectiveNexusCodes returns the jurisdiction codes the tenant has nexus in at asOf.
	ListEffectiveNexusCodes(ctx context.Context, tenantID snowflake.ID, asOf time.Time) ([]string, error)
	// ListEffectiveRules returns the rules of the jurisdiction with exactly this code that are
	// effective at asOf, ordered by priority desc, created_at asc, id asc.
	ListEffectiveRules(ctx context.Context, jurisdictionCode string, asOf time.Time) ([]RuleWithCode, error)
}

// ManagementRepository persists the records the engine reads.
type ManagementRepository interface {
	CreateJurisdiction(ctx context.Context, j *TaxJurisdiction) error
	FindJurisdictionByCode(ctx context.Context, code string) (*TaxJurisdiction, error)
	FindJurisdictionByID(ctx context.Context, id snowflake.ID) (*TaxJurisdiction, error)
	ListJurisdictions(ctx context.Context, parentID *snowflake.ID) ([]TaxJurisdiction, error)

	CreateTaxCode(ctx context.Context, code *TaxCode) error
	FindTaxCodeByCode(ctx context.Context, code string) (*TaxCode, error)
	ListTaxCodes(ctx context.Context) ([]TaxCode, error)

	CreateTaxRule(ctx context.Context, rule *TaxRule) error
	ListTaxRules(ctx context.Context, jurisdictionID *snowflake.ID) ([]RuleWithCode, error)

	CreateTenantNexus(ctx context.Context, nexus *TenantNexus) error
}
