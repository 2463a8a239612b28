package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/taxledger/internal/clock"
	"github.com/smallbiznis/taxledger/internal/config"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	"github.com/smallbiznis/taxledger/internal/invoice/format"
	"github.com/smallbiznis/taxledger/internal/observability/metrics"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	"github.com/smallbiznis/taxledger/pkg/db"
	pkglog "github.com/smallbiznis/taxledger/pkg/log"
	"github.com/smallbiznis/taxledger/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxNumberAttempts = 3

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     config.Config
	Repo       invoicedomain.Repository
	Nexus      taxdomain.NexusResolver
	Calculator taxdomain.Calculator
	GLSync     glsyncdomain.Syncer
	Clock      clock.Clock
	Metrics    *metrics.PrometheusMetrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	repo       invoicedomain.Repository
	nexus      taxdomain.NexusResolver
	calculator taxdomain.Calculator
	glsync     glsyncdomain.Syncer
	clock      clock.Clock
	numbers    *format.NumberFormatter
	metrics    *metrics.PrometheusMetrics
}

func NewService(p ServiceParam) (invoicedomain.Service, error) {
	numbers, err := format.NewNumberFormatter(p.Config.InvoiceNumberTemplate)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:      p.GenID,
		repo:       p.Repo,
		nexus:      p.Nexus,
		calculator: p.Calculator,
		glsync:     p.GLSync,
		clock:      p.Clock,
		numbers:    numbers,
		metrics:    p.Metrics,
	}, nil
}

func (s *Service) CreateInvoice(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, invoicedomain.ErrInvalidTenant
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, invoicedomain.ErrInvalidCurrency
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", invoicedomain.ErrInvalidItems)
	}

	now := s.clock.Now()
	invoiceID := s.genID.Generate()

	items := make([]invoicedomain.InvoiceLineItem, 0, len(req.Items))
	subtotal := decimal.Zero
	for i, in := range req.Items {
		if !in.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: item %d quantity must be positive", invoicedomain.ErrInvalidItems, i)
		}
		if in.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: item %d unit price must not be negative", invoicedomain.ErrInvalidItems, i)
		}

		amount := in.Quantity.Mul(in.UnitPrice)
		subtotal = subtotal.Add(amount)
		items = append(items, invoicedomain.InvoiceLineItem{
			ID:          s.genID.Generate(),
			TenantID:    tenantID,
			InvoiceID:   invoiceID,
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Amount:      amount,
			TaxCode:     normalizeTaxCode(in.TaxCode),
			TaxRate:     decimal.Zero,
			CreatedAt:   now,
		})
	}

	nexus, err := s.nexus.DetermineNexus(ctx, taxdomain.NexusRequest{
		Origin:      req.Origin,
		Destination: req.Destination,
		TenantID:    tenantID,
	})
	if err != nil {
		return nil, err
	}

	invoice := &invoicedomain.Invoice{
		ID:             invoiceID,
		TenantID:       tenantID,
		Status:         invoicedomain.InvoiceStatusDraft,
		Currency:       currency,
		SubtotalAmount: subtotal,
		TaxAmount:      decimal.Zero,
		Metadata:       datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	invoice.SetAddresses(req.Origin, req.Destination)

	if nexus.HasNexus {
		code := mostSpecificJurisdiction(nexus.Jurisdictions)
		totalTax, err := s.applyTax(ctx, code, items)
		if err != nil {
			return nil, err
		}
		invoice.JurisdictionCode = &code
		invoice.TaxAmount = totalTax
	}
	invoice.TotalAmount = invoice.SubtotalAmount.Add(invoice.TaxAmount).Round(2)

	if err := s.persist(ctx, invoice, items); err != nil {
		return nil, err
	}

	invoice.Items = items
	invoice.DisplayNumber = s.numbers.MustFormat(invoice.CreatedAt, invoice.InvoiceNumber)

	s.metrics.ObserveInvoiceAmount(invoice.Currency, invoice.TotalAmount.InexactFloat64())
	pkglog.With(ctx, s.log).Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("invoice_number", invoice.InvoiceNumber),
		zap.Bool("has_nexus", nexus.HasNexus),
		zap.String("total_amount", invoice.TotalAmount.String()),
	)

	return invoice, nil
}

// applyTax calculates tax for all items in one call and writes the per-item
// results back. It returns the invoice-level tax.
func (s *Service) applyTax(ctx context.Context, jurisdictionCode string, items []invoicedomain.InvoiceLineItem) (decimal.Decimal, error) {
	calcItems := lo.Map(items, func(item invoicedomain.InvoiceLineItem, _ int) taxdomain.CalculationItem {
		return taxdomain.CalculationItem{
			ID:      item.ID.String(),
			Amount:  item.Amount.InexactFloat64(),
			TaxCode: item.TaxCode,
		}
	})

	result, err := s.calculator.Calculate(ctx, taxdomain.CalculationRequest{
		JurisdictionCode: jurisdictionCode,
		Items:            calcItems,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("calculate tax: %w", err)
	}

	byID := lo.SliceToMap(result.LineItems, func(line taxdomain.LineItemTax) (string, taxdomain.LineItemTax) {
		return line.ID, line
	})
	for i := range items {
		line, ok := byID[items[i].ID.String()]
		if !ok {
			continue
		}
		items[i].TaxRate = decimal.NewFromFloat(line.TaxRate)
		items[i].TaxAmount = line.TaxAmount
	}

	return decimal.NewFromFloat(result.TotalTax).Round(2), nil
}

func (s *Service) persist(ctx context.Context, invoice *invoicedomain.Invoice, items []invoicedomain.InvoiceLineItem) error {
	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := s.repo.NextInvoiceNumber(ctx, tx, invoice.TenantID)
			if err != nil {
				return err
			}
			invoice.InvoiceNumber = number
			return s.repo.Insert(ctx, tx, invoice, items)
		})
		if err == nil || !db.IsDuplicateKeyErr(err) {
			break
		}
		pkglog.With(ctx, s.log).Debug("invoice number taken, retrying",
			zap.String("tenant_id", invoice.TenantID.String()),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return fmt.Errorf("persist invoice: %w", err)
	}
	return nil
}

func (s *Service) FinalizeInvoice(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, invoicedomain.ErrInvalidTenant
	}
	invoiceID, err := parseInvoiceID(id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var invoice *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.MarkSent(ctx, tx, tenantID, invoiceID, now)
		if err != nil {
			return err
		}

		invoice, err = s.load(ctx, tx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if !moved {
			return invoicedomain.ErrInvoiceNotDraft
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := pkglog.With(ctx, s.log).With(
		zap.String("invoice_id", invoiceID.String()),
		zap.String("tenant_id", tenantID.String()),
	)
	log.Info("invoice finalized")

	if err := s.glsync.SyncTransaction(ctx, tenantID, invoiceID, glsyncdomain.ReferenceTypeInvoice); err != nil {
		log.Warn("gl sync failed for finalized invoice", zap.Error(err))
	}

	return invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, invoicedomain.ErrInvalidTenant
	}
	invoiceID, err := parseInvoiceID(id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, nil, tenantID, invoiceID)
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, tx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	items, err := s.repo.ListItems(ctx, tx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []invoicedomain.InvoiceLineItem{}
	}
	invoice.Items = items
	invoice.DisplayNumber = s.numbers.MustFormat(invoice.CreatedAt, invoice.InvoiceNumber)
	return invoice, nil
}

func parseInvoiceID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}

func normalizeTaxCode(code *string) *string {
	if code == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*code)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}


// mostSpecificJurisdiction picks the deepest code; on equal depth the later
// candidate wins.
func mostSpecificJurisdiction(codes []string) string {
	return lo.MaxBy(codes, func(a, b string) bool {
		return taxdomain.JurisdictionDepth(a) >= taxdomain.JurisdictionDepth(b)
	})
}
