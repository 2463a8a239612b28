package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taxledger/internal/clock"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) taxdomain.Repository {
	return &repository{db: db}
}

func NewManagementRepository(db *gorm.DB) taxdomain.ManagementRepository {
	return &repository{db: db}
}

const ruleColumns = `r.id, r.jurisdiction_id, r.tax_code_id, r.rate, r.priority, r.rule_type,
		        r.effective_from, r.effective_to, r.created_at,
		        j.code AS jurisdiction_code, c.code AS tax_code`

// ruleOrder is the precedence used everywhere rules are listed. Equal
// priorities fall back to the older rule, then to the lower id.
const ruleOrder = `r.priority DESC, r.created_at ASC, r.id ASC`

// ListEffectiveNexusCodes compares at day granularity: a registration starting
// or ending at any time on the UTC day of asOf is in force for that day.
func (r *repository) ListEffectiveNexusCodes(ctx context.Context, tenantID snowflake.ID, asOf time.Time) ([]string, error) {
	day := clock.StartOfDay(asOf)
	var codes []string
	err := r.db.WithContext(ctx).Raw(
		`SELECT j.code
		 FROM tenant_nexus n
		 JOIN tax_jurisdictions j ON j.id = n.jurisdiction_id
		 WHERE n.tenant_id = ?
		   AND n.effective_from < ?
		   AND (n.effective_to IS NULL OR n.effective_to >= ?)
		 ORDER BY n.effective_from ASC, n.id ASC`,
		tenantID,
		day.AddDate(0, 0, 1),
		day,
	).Scan(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *repository) ListEffectiveRules(ctx context.Context, jurisdictionCode string, asOf time.Time) ([]taxdomain.RuleWithCode, error) {
	var rules []taxdomain.RuleWithCode
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+ruleColumns+`
		 FROM tax_rules r
		 JOIN tax_jurisdictions j ON j.id = r.jurisdiction_id
		 LEFT JOIN tax_codes c ON c.id = r.tax_code_id
		 WHERE j.code = ?
		   AND r.effective_from <= ?
		   AND (r.effective_to IS NULL OR r.effective_to >= ?)
		 ORDER BY `+ruleOrder,
		jurisdictionCode,
		asOf.UTC(),
		asOf.UTC(),
	).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) CreateJurisdiction(ctx context.Context, j *taxdomain.TaxJurisdiction) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tax_jurisdictions (id, code, name, type, parent_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID,
		j.Code,
		j.Name,
		j.Type,
		j.ParentID,
		j.CreatedAt,
		j.UpdatedAt,
	).Error
}

func (r *repository) FindJurisdictionByCode(ctx context.Context, code string) (*taxdomain.TaxJurisdiction, error) {
	var j taxdomain.TaxJurisdiction
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, code, name, type, parent_id, created_at, updated_at
		 FROM tax_jurisdictions
		 WHERE code = ?`,
		code,
	).Scan(&j).Error
	if err != nil {
		return nil, err
	}
	if j.ID == 0 {
		return nil, nil
	}
	return &j, nil
}

func (r *repository) FindJurisdictionByID(ctx context.Context, id snowflake.ID) (*taxdomain.TaxJurisdiction, error) {
	var j taxdomain.TaxJurisdiction
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, code, name, type, parent_id, created_at, updated_at
		 FROM tax_jurisdictions
		 WHERE id = ?`,
		id,
	).Scan(&j).Error
	if err != nil {
		return nil, err
	}
	if j.ID == 0 {
		return nil, nil
	}
	return &j, nil
}

func (r *repository) ListJurisdictions(ctx context.Context, parentID *snowflake.ID) ([]taxdomain.TaxJurisdiction, error) {
	var items []taxdomain.TaxJurisdiction
	stmt := r.db.WithContext(ctx).Model(&taxdomain.TaxJurisdiction{})
	if parentID != nil {
		stmt = stmt.Where("parent_id = ?", *parentID)
	}
	if err := stmt.Order("name ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateTaxCode(ctx context.Context, code *taxdomain.TaxCode) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tax_codes (id, code, description, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		code.ID,
		code.Code,
		code.Description,
		code.IsActive,
		code.CreatedAt,
	).Error
}

func (r *repository) FindTaxCodeByCode(ctx context.Context, code string) (*taxdomain.TaxCode, error) {
	var item taxdomain.TaxCode
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, code, description, is_active, created_at
		 FROM tax_codes
		 WHERE code = ?`,
		code,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repository) ListTaxCodes(ctx context.Context) ([]taxdomain.TaxCode, error) {
	var items []taxdomain.TaxCode
	if err := r.db.WithContext(ctx).Model(&taxdomain.TaxCode{}).Order("code ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateTaxRule(ctx context.Context, rule *taxdomain.TaxRule) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tax_rules (
			id, jurisdiction_id, tax_code_id, rate, priority, rule_type,
			effective_from, effective_to, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.JurisdictionID,
		rule.TaxCodeID,
		rule.Rate,
		rule.Priority,
		rule.RuleType,
		rule.EffectiveFrom.UTC(),
		utcPtr(rule.EffectiveTo),
		rule.CreatedAt,
	).Error
}

func (r *repository) ListTaxRules(ctx context.Context, jurisdictionID *snowflake.ID) ([]taxdomain.RuleWithCode, error) {
	query := `SELECT ` + ruleColumns + `
		 FROM tax_rules r
		 JOIN tax_jurisdictions j ON j.id = r.jurisdiction_id
		 LEFT JOIN tax_codes c ON c.id = r.tax_code_id`
	args := []any{}
	if jurisdictionID != nil {
		query += ` WHERE r.jurisdiction_id = ?`
		args = append(args, *jurisdictionID)
	}
	query += ` ORDER BY j.code ASC, ` + ruleOrder

	var rules []taxdomain.RuleWithCode
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) CreateTenantNexus(ctx context.Context, nexus *taxdomain.TenantNexus) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tenant_nexus (id, tenant_id, jurisdiction_id, effective_from, effective_to, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nexus.ID,
		nexus.TenantID,
		nexus.JurisdictionID,
		nexus.EffectiveFrom.UTC(),
		utcPtr(nexus.EffectiveTo),
		nexus.CreatedAt,
	).Error
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
