package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists invoices. Every method runs on the handle it is given
// so callers can compose them inside one transaction.
type Repository interface {
	NextInvoiceNumber(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (int64, error)
	Insert(ctx context.Context, tx *gorm.DB, invoice *Invoice, items []InvoiceLineItem) error
	// MarkSent flips a DRAFT invoice to SENT and reports whether a row moved.
	MarkSent(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID, at time.Time) (bool, error)
	FindByID(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*Invoice, error)
	ListItems(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) ([]InvoiceLineItem, error)
}
