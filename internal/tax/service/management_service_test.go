package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/taxledger/internal/clock"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	"github.com/smallbiznis/taxledger/internal/tax/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type engine struct {
	clock      *clock.FakeClock
	management taxdomain.ManagementService
	nexus      taxdomain.NexusResolver
	calculator taxdomain.Calculator
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&taxdomain.TaxJurisdiction{},
		&taxdomain.TaxCode{},
		&taxdomain.TaxRule{},
		&taxdomain.TenantNexus{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	repo := repository.NewRepository(db)

	return &engine{
		clock: clk,
		management: NewManagementService(ManagementParams{
			Log: log, GenID: node, Repo: repository.NewManagementRepository(db), Clock: clk,
		}),
		nexus:      NewNexusResolver(NexusParams{Log: log, Repo: repo, Clock: clk}),
		calculator: NewCalculator(CalculatorParams{Log: log, Repo: repo, Clock: clk}),
	}
}

func (e *engine) mustJurisdiction(t *testing.T, code string, typ taxdomain.JurisdictionType) *taxdomain.TaxJurisdiction {
	t.Helper()
	j, err := e.management.CreateJurisdiction(context.Background(), taxdomain.CreateJurisdictionRequest{
		Code: code, Name: code, Type: typ,
	})
	require.NoError(t, err)
	return j
}

func (e *engine) mustRule(t *testing.T, req taxdomain.CreateTaxRuleRequest) *taxdomain.RuleWithCode {
	t.Helper()
	rule, err := e.management.CreateTaxRule(context.Background(), req)
	require.NoError(t, err)
	return rule
}

func TestManagement_CreateJurisdictionValidation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.management.CreateJurisdiction(ctx, taxdomain.CreateJurisdictionRequest{Name: "x", Type: "COUNTRY"})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidJurisdictionCode)

	_, err = e.management.CreateJurisdiction(ctx, taxdomain.CreateJurisdictionRequest{Code: "US", Type: "COUNTRY"})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidName)

	_, err = e.management.CreateJurisdiction(ctx, taxdomain.CreateJurisdictionRequest{Code: "US", Name: "x", Type: "PLANET"})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidJurisdictionType)

	us := e.mustJurisdiction(t, "us", taxdomain.JurisdictionTypeCountry)
	assert.Equal(t, "US", us.Code)

	_, err = e.management.CreateJurisdiction(ctx, taxdomain.CreateJurisdictionRequest{Code: "US", Name: "dup", Type: "COUNTRY"})
	assert.ErrorIs(t, err, taxdomain.ErrDuplicateCode)

	parent := us.ID.String()
	ca, err := e.management.CreateJurisdiction(ctx, taxdomain.CreateJurisdictionRequest{
		Code: "US-CA", Name: "California", Type: "state", ParentID: &parent,
	})
	require.NoError(t, err)
	require.NotNil(t, ca.ParentID)
	assert.Equal(t, us.ID, *ca.ParentID)

	_, err = e.management.CreateJurisdiction(ctx, taxdomain.CreateJurisdictionRequest{
		Code: "GB-LND", Name: "London", Type: "CITY", ParentID: &parent,
	})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidJurisdictionCode)

	bogus := "not-an-id"
	_, err = e.management.CreateJurisdiction(ctx, taxdomain.CreateJurisdictionRequest{
		Code: "US-NY", Name: "New York", Type: "STATE", ParentID: &bogus,
	})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidID)

	children, err := e.management.ListJurisdictions(ctx, &us.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "US-CA", children[0].Code)

	_, err = e.management.GetJurisdictionByCode(ctx, "ZZ")
	assert.ErrorIs(t, err, taxdomain.ErrNotFound)
}

func TestManagement_CreateTaxRuleValidation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.mustJurisdiction(t, "GB", taxdomain.JurisdictionTypeCountry)

	_, err := e.management.CreateTaxRule(ctx, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "GB", Rate: 1.5})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)

	_, err = e.management.CreateTaxRule(ctx, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "GB", Rate: 0.1, RuleType: "EXEMPT"})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)

	_, err = e.management.CreateTaxRule(ctx, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "GB", Rate: 0.1, RuleType: "SPECIAL"})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidRuleType)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, -1)
	_, err = e.management.CreateTaxRule(ctx, taxdomain.CreateTaxRuleRequest{
		JurisdictionCode: "GB", Rate: 0.1, EffectiveFrom: from, EffectiveTo: &to,
	})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidEffectiveWindow)

	_, err = e.management.CreateTaxRule(ctx, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "FR", Rate: 0.2})
	assert.ErrorIs(t, err, taxdomain.ErrNotFound)

	_, err = e.management.CreateTaxRule(ctx, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "GB", Rate: 0.05, TaxCode: strPtr("BOOKS")})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxCode)

	_, err = e.management.CreateTaxCode(ctx, taxdomain.CreateTaxCodeRequest{Code: "BOOKS", Description: "Printed books"})
	require.NoError(t, err)
	_, err = e.management.CreateTaxCode(ctx, taxdomain.CreateTaxCodeRequest{Code: "BOOKS"})
	assert.ErrorIs(t, err, taxdomain.ErrDuplicateCode)

	rule := e.mustRule(t, taxdomain.CreateTaxRuleRequest{
		JurisdictionCode: "gb", Rate: 0.05, TaxCode: strPtr("BOOKS"), RuleType: "reduced",
	})
	assert.Equal(t, "GB", rule.JurisdictionCode)
	require.NotNil(t, rule.TaxCode)
	assert.Equal(t, "BOOKS", *rule.TaxCode)
	assert.Equal(t, taxdomain.RuleTypeReduced, rule.RuleType)
	assert.Equal(t, clock.StartOfDay(e.clock.Now()), rule.EffectiveFrom)

	codes, err := e.management.ListTaxCodes(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.True(t, codes[0].IsActive)
}

func TestEngine_GBBooksEndToEnd(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.mustJurisdiction(t, "GB", taxdomain.JurisdictionTypeCountry)
	_, err := e.management.CreateTaxCode(ctx, taxdomain.CreateTaxCodeRequest{Code: "BOOKS"})
	require.NoError(t, err)

	e.mustRule(t, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "GB", Rate: 0.10})
	e.mustRule(t, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "GB", Rate: 0.05, TaxCode: strPtr("BOOKS"), RuleType: taxdomain.RuleTypeReduced})

	res, err := e.calculator.Calculate(ctx, taxdomain.CalculationRequest{
		JurisdictionCode: "GB",
		Items: []taxdomain.CalculationItem{
			{ID: "1", Amount: 100, TaxCode: strPtr("BOOKS")},
			{ID: "2", Amount: 200},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 25.00, res.TotalTax)
	assert.InDelta(t, 5.00, res.LineItems[0].TaxAmount, 1e-9)
	assert.InDelta(t, 20.00, res.LineItems[1].TaxAmount, 1e-9)
}

func TestEngine_EqualPriorityOlderRuleWins(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.mustJurisdiction(t, "US-TX", taxdomain.JurisdictionTypeState)

	e.mustRule(t, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "US-TX", Rate: 0.0825, Priority: 5})
	e.clock.Advance(time.Minute)
	e.mustRule(t, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "US-TX", Rate: 0.0625, Priority: 5})
	e.mustRule(t, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "US-TX", Rate: 0.07, Priority: 1})

	for i := 0; i < 3; i++ {
		rate, err := e.calculator.ResolveRate(ctx, "US-TX", nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0825, rate)
	}

	rules, err := e.management.ListTaxRules(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, 0.0825, rules[0].Rate)
	assert.Equal(t, 0.0625, rules[1].Rate)
	assert.Equal(t, 0.07, rules[2].Rate)
}

func TestEngine_EffectiveDating(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.mustJurisdiction(t, "FR", taxdomain.JurisdictionTypeCountry)

	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	endJune := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	e.mustRule(t, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "FR", Rate: 0.196, EffectiveFrom: jan, EffectiveTo: &endJune})
	e.mustRule(t, taxdomain.CreateTaxRuleRequest{JurisdictionCode: "FR", Rate: 0.20, EffectiveFrom: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)})

	rate, err := e.calculator.ResolveRate(ctx, "FR", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.196, rate)

	e.clock.Set(time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC))
	rate, err = e.calculator.ResolveRate(ctx, "FR", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.20, rate)
}

func TestEngine_RegisteredNexus(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.mustJurisdiction(t, "US", taxdomain.JurisdictionTypeCountry)
	e.mustJurisdiction(t, "US-CA", taxdomain.JurisdictionTypeState)
	tenant := snowflake.ID(9001)

	_, err := e.management.RegisterNexus(ctx, taxdomain.RegisterNexusRequest{JurisdictionCode: "US"})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTenant)

	for _, code := range []string{"US", "US-CA"} {
		_, err := e.management.RegisterNexus(ctx, taxdomain.RegisterNexusRequest{TenantID: tenant, JurisdictionCode: code})
		require.NoError(t, err)
	}

	res, err := e.nexus.DetermineNexus(ctx, taxdomain.NexusRequest{
		Destination: taxdomain.Address{Country: "US", State: "CA"},
		TenantID:    tenant,
	})
	require.NoError(t, err)
	assert.True(t, res.HasNexus)
	assert.Equal(t, []string{"US", "US-CA"}, res.Jurisdictions)

	res, err = e.nexus.DetermineNexus(ctx, taxdomain.NexusRequest{
		Destination: taxdomain.Address{Country: "FR"},
		TenantID:    tenant,
	})
	require.NoError(t, err)
	assert.False(t, res.HasNexus)
}

func TestEngine_NexusEffectiveSameDay(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.mustJurisdiction(t, "US", taxdomain.JurisdictionTypeCountry)
	e.mustJurisdiction(t, "US-TX", taxdomain.JurisdictionTypeState)
	tenant := snowflake.ID(9002)

	// The clock reads 09:00; the registration starts at 08:00 the same day.
	morning := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	record, err := e.management.RegisterNexus(ctx, taxdomain.RegisterNexusRequest{
		TenantID: tenant, JurisdictionCode: "US-TX", EffectiveFrom: morning,
	})
	require.NoError(t, err)
	assert.Equal(t, clock.StartOfDay(morning), record.EffectiveFrom)

	laterToday := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	_, err = e.management.RegisterNexus(ctx, taxdomain.RegisterNexusRequest{
		TenantID: tenant, JurisdictionCode: "US", EffectiveFrom: laterToday,
	})
	require.NoError(t, err)

	res, err := e.nexus.DetermineNexus(ctx, taxdomain.NexusRequest{
		Destination: taxdomain.Address{Country: "US", State: "TX"},
		TenantID:    tenant,
	})
	require.NoError(t, err)
	assert.True(t, res.HasNexus)
	assert.Equal(t, []string{"US", "US-TX"}, res.Jurisdictions)
}
