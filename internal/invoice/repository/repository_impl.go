package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) invoicedomain.Repository {
	return &repository{db: db}
}

const invoiceColumns = `id, tenant_id, invoice_number, status, currency, jurisdiction_code,
		        subtotal_amount, tax_amount, total_amount, metadata,
		        issued_at, finalized_at, created_at, updated_at`

const itemColumns = `id, tenant_id, invoice_id, description, quantity, unit_price, amount,
		        tax_code, tax_rate, tax_amount, created_at`

func (r *repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}

func (r *repository) NextInvoiceNumber(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (int64, error) {
	var next int64
	err := r.conn(ctx, tx).Raw(
		`SELECT COALESCE(MAX(invoice_number), 0) + 1
		 FROM invoices
		 WHERE tenant_id = ?`,
		tenantID,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, items []invoicedomain.InvoiceLineItem) error {
	db := r.conn(ctx, tx)
	err := db.Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.TenantID,
		invoice.InvoiceNumber,
		invoice.Status,
		invoice.Currency,
		invoice.JurisdictionCode,
		invoice.SubtotalAmount,
		invoice.TaxAmount,
		invoice.TotalAmount,
		invoice.Metadata,
		invoice.IssuedAt,
		invoice.FinalizedAt,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
	if err != nil {
		return err
	}

	for _, item := range items {
		err := db.Exec(
			`INSERT INTO invoice_line_items (`+itemColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.TenantID,
			item.InvoiceID,
			item.Description,
			item.Quantity,
			item.UnitPrice,
			item.Amount,
			item.TaxCode,
			item.TaxRate,
			item.TaxAmount,
			item.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) MarkSent(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID, at time.Time) (bool, error) {
	result := r.conn(ctx, tx).Exec(
		`UPDATE invoices
		 SET status = ?, issued_at = ?, finalized_at = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND status = ?`,
		invoicedomain.InvoiceStatusSent,
		at,
		at,
		at,
		id,
		tenantID,
		invoicedomain.InvoiceStatusDraft,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) FindByID(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := r.conn(ctx, tx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE id = ? AND tenant_id = ?`,
		id,
		tenantID,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	invoice.Hydrate()
	return &invoice, nil
}

func (r *repository) ListItems(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) ([]invoicedomain.InvoiceLineItem, error) {
	var items []invoicedomain.InvoiceLineItem
	err := r.conn(ctx, tx).Raw(
		`SELECT `+itemColumns+`
		 FROM invoice_line_items
		 WHERE invoice_id = ? AND tenant_id = ?
		 ORDER BY id ASC`,
		invoiceID,
		tenantID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
