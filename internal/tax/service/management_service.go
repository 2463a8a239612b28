package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taxledger/internal/clock"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	"github.com/smallbiznis/taxledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ManagementParams struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  taxdomain.ManagementRepository
	Clock clock.Clock
}

type managementService struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  taxdomain.ManagementRepository
	clock clock.Clock
}

func NewManagementService(p ManagementParams) taxdomain.ManagementService {
	return &managementService{
		log:   p.Log.Named("tax.management"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *managementService) CreateJurisdiction(ctx context.Context, req taxdomain.CreateJurisdictionRequest) (*taxdomain.TaxJurisdiction, error) {
	code := taxdomain.NormalizeJurisdictionCode(req.Code)
	if code == "" {
		return nil, taxdomain.ErrInvalidJurisdictionCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, taxdomain.ErrInvalidName
	}
	jurisdictionType := taxdomain.JurisdictionType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if !jurisdictionType.Valid() {
		return nil, taxdomain.ErrInvalidJurisdictionType
	}

	var parentID *snowflake.ID
	if req.ParentID != nil && strings.TrimSpace(*req.ParentID) != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(*req.ParentID))
		if err != nil {
			return nil, taxdomain.ErrInvalidID
		}
		parent, err := s.repo.FindJurisdictionByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, taxdomain.ErrNotFound
		}
		if !taxdomain.JurisdictionContains(parent.Code, code) {
			return nil, taxdomain.ErrInvalidJurisdictionCode
		}
		parentID = &parent.ID
	}

	now := s.clock.Now()
	record := &taxdomain.TaxJurisdiction{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		Type:      jurisdictionType,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJurisdiction(ctx, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, taxdomain.ErrDuplicateCode
		}
		return nil, err
	}

	s.log.Info("tax jurisdiction created",
		zap.String("jurisdiction_id", record.ID.String()),
		zap.String("code", record.Code),
	)
	return record, nil
}

func (s *managementService) GetJurisdictionByCode(ctx context.Context, code string) (*taxdomain.TaxJurisdiction, error) {
	code = taxdomain.NormalizeJurisdictionCode(code)
	if code == "" {
		return nil, taxdomain.ErrInvalidJurisdictionCode
	}
	item, err := s.repo.FindJurisdictionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, taxdomain.ErrNotFound
	}
	return item, nil
}

func (s *managementService) ListJurisdictions(ctx context.Context, parentID *snowflake.ID) ([]taxdomain.TaxJurisdiction, error) {
	return s.repo.ListJurisdictions(ctx, parentID)
}

func (s *managementService) CreateTaxCode(ctx context.Context, req taxdomain.CreateTaxCodeRequest) (*taxdomain.TaxCode, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, taxdomain.ErrInvalidTaxCode
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	record := &taxdomain.TaxCode{
		ID:          s.genID.Generate(),
		Code:        code,
		Description: strings.TrimSpace(req.Description),
		IsActive:    isActive,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.CreateTaxCode(ctx, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, taxdomain.ErrDuplicateCode
		}
		return nil, err
	}
	return record, nil
}

func (s *managementService) ListTaxCodes(ctx context.Context) ([]taxdomain.TaxCode, error) {
	return s.repo.ListTaxCodes(ctx)
}

func (s *managementService) CreateTaxRule(ctx context.Context, req taxdomain.CreateTaxRuleRequest) (*taxdomain.RuleWithCode, error) {
	ruleType := taxdomain.RuleType(strings.ToUpper(strings.TrimSpace(string(req.RuleType))))
	if ruleType == "" {
		ruleType = taxdomain.RuleTypeStandard
	}
	if !ruleType.Valid() {
		return nil, taxdomain.ErrInvalidRuleType
	}
	if req.Rate < 0 || req.Rate > 1 {
		return nil, taxdomain.ErrInvalidTaxRate
	}
	if ruleType == taxdomain.RuleTypeExempt && req.Rate != 0 {
		return nil, taxdomain.ErrInvalidTaxRate
	}

	from, to, err := s.effectiveWindow(req.EffectiveFrom, req.EffectiveTo)
	if err != nil {
		return nil, err
	}

	jurisdiction, err := s.GetJurisdictionByCode(ctx, req.JurisdictionCode)
	if err != nil {
		return nil, err
	}

	var (
		taxCodeID *snowflake.ID
		taxCode   *string
	)
	if req.TaxCode != nil && strings.TrimSpace(*req.TaxCode) != "" {
		code, err := s.repo.FindTaxCodeByCode(ctx, strings.TrimSpace(*req.TaxCode))
		if err != nil {
			return nil, err
		}
		if code == nil {
			return nil, taxdomain.ErrInvalidTaxCode
		}
		taxCodeID = &code.ID
		taxCode = &code.Code
	}

	rule := taxdomain.TaxRule{
		ID:             s.genID.Generate(),
		JurisdictionID: jurisdiction.ID,
		TaxCodeID:      taxCodeID,
		Rate:           req.Rate,
		Priority:       req.Priority,
		RuleType:       ruleType,
		EffectiveFrom:  from,
		EffectiveTo:    to,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.CreateTaxRule(ctx, &rule); err != nil {
		return nil, err
	}

	s.log.Info("tax rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("jurisdiction_code", jurisdiction.Code),
		zap.Float64("rate", rule.Rate),
		zap.Int("priority", rule.Priority),
	)
	return &taxdomain.RuleWithCode{
		TaxRule:          rule,
		JurisdictionCode: jurisdiction.Code,
		TaxCode:          taxCode,
	}, nil
}

func (s *managementService) ListTaxRules(ctx context.Context, jurisdictionID *snowflake.ID) ([]taxdomain.RuleWithCode, error) {
	return s.repo.ListTaxRules(ctx, jurisdictionID)
}

func (s *managementService) RegisterNexus(ctx context.Context, req taxdomain.RegisterNexusRequest) (*taxdomain.TenantNexus, error) {
	if req.TenantID == 0 {
		return nil, taxdomain.ErrInvalidTenant
	}
	from, to, err := s.effectiveWindow(req.EffectiveFrom, req.EffectiveTo)
	if err != nil {
		return nil, err
	}
	// Nexus is held per calendar day.
	from = clock.StartOfDay(from)
	if to != nil {
		end := clock.StartOfDay(*to)
		to = &end
	}
	jurisdiction, err := s.GetJurisdictionByCode(ctx, req.JurisdictionCode)
	if err != nil {
		return nil, err
	}

	record := &taxdomain.TenantNexus{
		ID:             s.genID.Generate(),
		TenantID:       req.TenantID,
		JurisdictionID: jurisdiction.ID,
		EffectiveFrom:  from,
		EffectiveTo:    to,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.CreateTenantNexus(ctx, record); err != nil {
		return nil, err
	}

	s.log.Info("tenant nexus registered",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("jurisdiction_code", jurisdiction.Code),
	)
	return record, nil
}

// effectiveWindow defaults a missing start to today and rejects windows that
// end before they begin.
func (s *managementService) effectiveWindow(from time.Time, to *time.Time) (time.Time, *time.Time, error) {
	if from.IsZero() {
		from = clock.StartOfDay(s.clock.Now())
	}
	from = from.UTC()
	if to != nil {
		end := to.UTC()
		if end.Before(from) {
			return time.Time{}, nil, taxdomain.ErrInvalidEffectiveWindow
		}
		to = &end
	}
	return from, to, nil
}
