package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/taxledger/internal/clock"
	"github.com/smallbiznis/taxledger/internal/observability/metrics"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	pkglog "github.com/smallbiznis/taxledger/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type CalculatorParams struct {
	fx.In

	Log     *zap.Logger
	Repo    taxdomain.Repository
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type calculator struct {
	log     *zap.Logger
	repo    taxdomain.Repository
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewCalculator(p CalculatorParams) taxdomain.Calculator {
	return &calculator{
		log:     p.Log.Named("tax.calculator"),
		repo:    p.Repo,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (c *calculator) Calculate(ctx context.Context, req taxdomain.CalculationRequest) (taxdomain.CalculationResult, error) {
	code := taxdomain.NormalizeJurisdictionCode(req.JurisdictionCode)
	if code == "" {
		return taxdomain.CalculationResult{}, taxdomain.ErrInvalidJurisdictionCode
	}
	for _, item := range req.Items {
		if item.Amount < 0 {
			return taxdomain.CalculationResult{}, taxdomain.ErrInvalidAmount
		}
	}
	if len(req.Items) == 0 {
		return emptyResult(), nil
	}

	rules, err := c.rulesFor(ctx, code)
	if err != nil {
		return taxdomain.CalculationResult{}, err
	}
	standard := standardRate(rules)

	lineItems := make([]taxdomain.LineItemTax, 0, len(req.Items))
	taxSum := decimal.Zero
	amountSum := decimal.Zero
	for _, item := range req.Items {
		rate := rateFor(rules, item.TaxCode, standard)
		itemTax := item.Amount * rate

		lineItems = append(lineItems, taxdomain.LineItemTax{
			ID:        item.ID,
			TaxAmount: itemTax,
			TaxRate:   rate,
		})
		taxSum = taxSum.Add(decimal.NewFromFloat(itemTax))
		amountSum = amountSum.Add(decimal.NewFromFloat(item.Amount))
	}

	total := taxSum.Round(2)
	result := taxdomain.CalculationResult{
		TotalTax:  total.InexactFloat64(),
		Breakdown: []taxdomain.BreakdownEntry{},
		LineItems: lineItems,
	}
	if total.IsPositive() && amountSum.IsPositive() {
		result.Breakdown = append(result.Breakdown, taxdomain.BreakdownEntry{
			Level:  taxdomain.BreakdownLevelJurisdiction,
			Rate:   total.Div(amountSum).Round(4).InexactFloat64(),
			Amount: total.InexactFloat64(),
		})
	}

	c.metrics.RecordTaxCalculation(ctx, "ok")
	pkglog.With(ctx, c.log).Debug("tax calculated",
		zap.String("jurisdiction_code", code),
		zap.Int("items", len(req.Items)),
		zap.Int("rules", len(rules)),
		zap.Float64("total_tax", result.TotalTax),
	)
	return result, nil
}

func (c *calculator) ResolveRate(ctx context.Context, jurisdictionCode string, taxCode *string) (float64, error) {
	code := taxdomain.NormalizeJurisdictionCode(jurisdictionCode)
	if code == "" {
		return 0, taxdomain.ErrInvalidJurisdictionCode
	}
	rules, err := c.rulesFor(ctx, code)
	if err != nil {
		return 0, err
	}
	return rateFor(rules, taxCode, standardRate(rules)), nil
}

func (c *calculator) rulesFor(ctx context.Context, code string) ([]taxdomain.RuleWithCode, error) {
	rules, err := c.repo.ListEffectiveRules(ctx, code, c.clock.Now())
	if err != nil {
		c.metrics.RecordTaxCalculation(ctx, "error")
		pkglog.With(ctx, c.log).Error("fetch tax rules failed",
			zap.String("jurisdiction_code", code),
			zap.Error(err),
		)
		return nil, fmt.Errorf("fetch tax rules: %w", err)
	}
	return rules, nil
}

// standardRate is the rate of the highest-precedence rule without a tax code.
func standardRate(rules []taxdomain.RuleWithCode) float64 {
	for _, rule := range rules {
		if rule.IsStandard() {
			return rule.Rate
		}
	}
	return 0
}

// rateFor picks the first rule, in precedence order, bound to taxCode and
// falls back to the standard rate when none is.
func rateFor(rules []taxdomain.RuleWithCode, taxCode *string, standard float64) float64 {
	if taxCode == nil {
		return standard
	}
	code := strings.TrimSpace(*taxCode)
	if code == "" {
		return standard
	}
	for _, rule := range rules {
		if rule.TaxCode != nil && strings.TrimSpace(*rule.TaxCode) == code {
			return rule.Rate
		}
	}
	return standard
}

func emptyResult() taxdomain.CalculationResult {
	return taxdomain.CalculationResult{
		TotalTax:  0,
		Breakdown: []taxdomain.BreakdownEntry{},
		LineItems: []taxdomain.LineItemTax{},
	}
}
