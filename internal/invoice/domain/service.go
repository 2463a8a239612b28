package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
)

type CreateInvoiceItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxCode     *string         `json:"tax_code,omitempty"`
}

type CreateInvoiceRequest struct {
	Currency    string              `json:"currency"`
	Origin      taxdomain.Address   `json:"origin"`
	Destination taxdomain.Address   `json:"destination"`
	Items       []CreateInvoiceItem `json:"items"`
}

// Service assembles invoices from line items and the tenant's tax position.
// The tenant is taken from the request context.
type Service interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	// FinalizeInvoice moves a DRAFT invoice to SENT and pushes it to the GL.
	// A failed GL sync does not fail the call.
	FinalizeInvoice(ctx context.Context, id string) (*Invoice, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidInvoiceID = errors.New("invalid_invoice_id")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidItems     = errors.New("invalid_items")
	ErrInvoiceNotFound  = errors.New("invoice_not_found")
	ErrInvoiceNotDraft  = errors.New("invoice_not_draft")
)
