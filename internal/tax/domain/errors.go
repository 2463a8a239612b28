package domain

import "errors"

var (
	ErrInvalidTenant           = errors.New("invalid_tenant")
	ErrInvalidJurisdictionCode = errors.New("invalid_jurisdiction_code")
	ErrInvalidJurisdictionType = errors.New("invalid_jurisdiction_type")
	ErrInvalidName             = errors.New("invalid_name")
	ErrInvalidID               = errors.New("invalid_id")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidTaxCode          = errors.New("invalid_tax_code")
	ErrInvalidTaxRate          = errors.New("invalid_tax_rate")
	ErrInvalidRuleType         = errors.New("invalid_rule_type")
	ErrInvalidEffectiveWindow  = errors.New("invalid_effective_window")
	ErrDuplicateCode           = errors.New("duplicate_code")
	ErrNotFound                = errors.New("not_found")
)
