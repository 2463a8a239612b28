// Package domain contains persistence models for invoicing.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	InvoiceStatusSent  InvoiceStatus = "SENT"
)

const (
	metadataOrigin      = "origin"
	metadataDestination = "destination"
)

// Invoice is a tenant's invoice. Addresses live in Metadata and are exposed
// through Origin and Destination after Hydrate.
type Invoice struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID         snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoices_tenant_number" json:"tenant_id"`
	InvoiceNumber    int64             `gorm:"not null;uniqueIndex:ux_invoices_tenant_number" json:"invoice_number"`
	DisplayNumber    string            `gorm:"-" json:"display_number"`
	Status           InvoiceStatus     `gorm:"type:text;not null;default:'DRAFT'" json:"status"`
	Currency         string            `gorm:"type:text;not null" json:"currency"`
	JurisdictionCode *string           `gorm:"type:text" json:"jurisdiction_code,omitempty"`
	SubtotalAmount   decimal.Decimal   `gorm:"type:numeric(18,6);not null;default:0" json:"subtotal_amount"`
	TaxAmount        decimal.Decimal   `gorm:"type:numeric(18,6);not null;default:0" json:"tax_amount"`
	TotalAmount      decimal.Decimal   `gorm:"type:numeric(18,6);not null;default:0" json:"total_amount"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	Origin           taxdomain.Address `gorm:"-" json:"origin"`
	Destination      taxdomain.Address `gorm:"-" json:"destination"`
	IssuedAt         *time.Time        `json:"issued_at,omitempty"`
	FinalizedAt      *time.Time        `json:"finalized_at,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	Items            []InvoiceLineItem `gorm:"-" json:"items"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// SetAddresses stores both addresses in Metadata.
func (i *Invoice) SetAddresses(origin, destination taxdomain.Address) {
	if i.Metadata == nil {
		i.Metadata = datatypes.JSONMap{}
	}
	i.Origin = origin
	i.Destination = destination
	i.Metadata[metadataOrigin] = addressToMap(origin)
	i.Metadata[metadataDestination] = addressToMap(destination)
}

// Hydrate fills Origin and Destination from Metadata.
func (i *Invoice) Hydrate() {
	i.Origin = addressFromMetadata(i.Metadata, metadataOrigin)
	i.Destination = addressFromMetadata(i.Metadata, metadataDestination)
}

// InvoiceLineItem is one line on an invoice. TaxAmount is the unrounded
// product of Amount and TaxRate.
type InvoiceLineItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID    `gorm:"not null" json:"tenant_id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index:idx_invoice_line_items_invoice" json:"invoice_id"`
	Description string          `gorm:"type:text;not null;default:''" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"unit_price"`
	Amount      decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"amount"`
	TaxCode     *string         `gorm:"type:text" json:"tax_code,omitempty"`
	TaxRate     decimal.Decimal `gorm:"type:numeric(10,6);not null;default:0" json:"tax_rate"`
	TaxAmount   float64         `gorm:"not null;default:0" json:"tax_amount"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

func addressToMap(addr taxdomain.Address) map[string]interface{} {
	out := map[string]interface{}{"country": addr.Country}
	for key, val := range map[string]string{
		"street": addr.Street,
		"city":   addr.City,
		"state":  addr.State,
		"zip":    addr.Zip,
	} {
		if val != "" {
			out[key] = val
		}
	}
	return out
}

func addressFromMetadata(metadata datatypes.JSONMap, key string) taxdomain.Address {
	var addr taxdomain.Address
	raw, ok := metadata[key]
	if !ok || raw == nil {
		return addr
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return addr
	}
	_ = json.Unmarshal(encoded, &addr)
	return addr
}
