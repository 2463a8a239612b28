package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// BreakdownLevelJurisdiction labels the single per-jurisdiction breakdown entry.
const BreakdownLevelJurisdiction = "JURISDICTION"

// Address is a postal address; only Country and State take part in nexus.
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country"`
}

type NexusRequest struct {
	Origin      Address
	Destination Address
	TenantID    snowflake.ID
}

type NexusResult struct {
	HasNexus      bool     `json:"has_nexus"`
	Jurisdictions []string `json:"jurisdictions"`
}

// NexusResolver determines the jurisdictions a tenant must charge tax in.
type NexusResolver interface {
	DetermineNexus(ctx context.Context, req NexusRequest) (NexusResult, error)
}

type CalculationItem struct {
	ID      string  `json:"id"`
	Amount  float64 `json:"amount"`
	TaxCode *string `json:"tax_code,omitempty"`
}

type CalculationRequest struct {
	JurisdictionCode string            `json:"jurisdiction_code"`
	Items            []CalculationItem `json:"items"`
}

type BreakdownEntry struct {
	Level  string  `json:"level"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

type LineItemTax struct {
	ID        string  `json:"id"`
	TaxAmount float64 `json:"tax_amount"`
	TaxRate   float64 `json:"tax_rate"`
}

type CalculationResult struct {
	TotalTax  float64          `json:"total_tax"`
	Breakdown []BreakdownEntry `json:"breakdown"`
	LineItems []LineItemTax    `json:"line_items"`
}

// Calculator resolves rates and applies them to line items.
type Calculator interface {
	Calculate(ctx context.Context, req CalculationRequest) (CalculationResult, error)
	ResolveRate(ctx context.Context, jurisdictionCode string, taxCode *string) (float64, error)
}

type CreateJurisdictionRequest struct {
	Code     string           `json:"code"`
	Name     string           `json:"name"`
	Type     JurisdictionType `json:"type"`
	ParentID *string          `json:"parent_id,omitempty"`
}

type CreateTaxCodeRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

type CreateTaxRuleRequest struct {
	JurisdictionCode string     `json:"jurisdiction_code"`
	TaxCode          *string    `json:"tax_code,omitempty"`
	Rate             float64    `json:"rate"`
	Priority         int        `json:"priority"`
	RuleType         RuleType   `json:"rule_type"`
	EffectiveFrom    time.Time  `json:"effective_from"`
	EffectiveTo      *time.Time `json:"effective_to,omitempty"`
}

type RegisterNexusRequest struct {
	TenantID         snowflake.ID
	JurisdictionCode string     `json:"jurisdiction_code"`
	EffectiveFrom    time.Time  `json:"effective_from"`
	EffectiveTo      *time.Time `json:"effective_to,omitempty"`
}

// ManagementService maintains jurisdictions, tax codes, rules and nexus registrations.
type ManagementService interface {
	CreateJurisdiction(ctx context.Context, req CreateJurisdictionRequest) (*TaxJurisdiction, error)
	GetJurisdictionByCode(ctx context.Context, code string) (*TaxJurisdiction, error)
	ListJurisdictions(ctx context.Context, parentID *snowflake.ID) ([]TaxJurisdiction, error)
	CreateTaxCode(ctx context.Context, req CreateTaxCodeRequest) (*TaxCode, error)
	ListTaxCodes(ctx context.Context) ([]TaxCode, error)
	CreateTaxRule(ctx context.Context, req CreateTaxRuleRequest) (*RuleWithCode, error)
	ListTaxRules(ctx context.Context, jurisdictionID *snowflake.ID) ([]RuleWithCode, error)
	RegisterNexus(ctx context.Context, req RegisterNexusRequest) (*TenantNexus, error)
}
