package migration

import (
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	"gorm.io/gorm"
)

// AutoMigrateModels creates the schema from the gorm models. It serves the
// mysql and sqlite dialects, which the embedded SQL does not cover.
func AutoMigrateModels(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&taxdomain.TaxJurisdiction{},
		&taxdomain.TaxCode{},
		&taxdomain.TaxRule{},
		&taxdomain.TenantNexus{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&glsyncdomain.JournalEntry{},
	)
}
