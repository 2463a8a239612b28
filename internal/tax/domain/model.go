package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// JurisdictionType classifies a tax authority scope.
type JurisdictionType string

const (
	JurisdictionTypeCountry  JurisdictionType = "COUNTRY"
	JurisdictionTypeState    JurisdictionType = "STATE"
	JurisdictionTypeCity     JurisdictionType = "CITY"
	JurisdictionTypeDistrict JurisdictionType = "DISTRICT"
	JurisdictionTypeCounty   JurisdictionType = "COUNTY"
)

func (t JurisdictionType) Valid() bool {
	switch t {
	case JurisdictionTypeCountry, JurisdictionTypeState, JurisdictionTypeCity,
		JurisdictionTypeDistrict, JurisdictionTypeCounty:
		return true
	default:
		return false
	}
}

// RuleType describes how a rule relates to the jurisdiction's standard rate.
type RuleType string

const (
	RuleTypeStandard RuleType = "STANDARD"
	RuleTypeReduced  RuleType = "REDUCED"
	RuleTypeExempt   RuleType = "EXEMPT"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeStandard, RuleTypeReduced, RuleTypeExempt:
		return true
	default:
		return false
	}
}

// TaxJurisdiction is a tax authority identified by a hierarchical code such as
// "US" or "US-CA". ParentID is informational; containment is derived from the
// code prefix.
type TaxJurisdiction struct {
	ID        snowflake.ID     `gorm:"primaryKey"`
	Code      string           `gorm:"type:text;not null;uniqueIndex:ux_tax_jurisdictions_code"`
	Name      string           `gorm:"type:text;not null"`
	Type      JurisdictionType `gorm:"type:text;not null"`
	ParentID  *snowflake.ID    `gorm:"index"`
	CreatedAt time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TaxJurisdiction) TableName() string { return "tax_jurisdictions" }

// TaxCode is a product or category label used to select a non-standard rate.
type TaxCode struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Code        string       `gorm:"type:text;not null;uniqueIndex:ux_tax_codes_code"`
	Description string       `gorm:"type:text;not null;default:''"`
	IsActive    bool         `gorm:"not null;default:true"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TaxCode) TableName() string { return "tax_codes" }

// TaxRule assigns a rate to a jurisdiction, optionally narrowed to a tax code.
// A nil TaxCodeID marks the jurisdiction's standard rule.
type TaxRule struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	JurisdictionID snowflake.ID  `gorm:"not null;index"`
	TaxCodeID      *snowflake.ID `gorm:"index"`
	Rate           float64       `gorm:"type:numeric(10,6);not null"`
	Priority       int           `gorm:"not null;default:0"`
	RuleType       RuleType      `gorm:"type:text;not null"`
	EffectiveFrom  time.Time     `gorm:"not null"`
	EffectiveTo    *time.Time
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TaxRule) TableName() string { return "tax_rules" }

// RuleWithCode is a TaxRule joined with its jurisdiction and tax code labels.
type RuleWithCode struct {
	TaxRule
	JurisdictionCode string
	TaxCode          *string
}

// IsStandard reports whether the rule applies to items without a tax code.
func (r RuleWithCode) IsStandard() bool {
	return r.TaxCodeID == nil
}

// TenantNexus records that a tenant collects tax in a jurisdiction during a window.
type TenantNexus struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	TenantID       snowflake.ID `gorm:"not null;index"`
	JurisdictionID snowflake.ID `gorm:"not null;index"`
	EffectiveFrom  time.Time    `gorm:"not null"`
	EffectiveTo    *time.Time
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TenantNexus) TableName() string { return "tenant_nexus" }
