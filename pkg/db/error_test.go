package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "postgres", err: errors.New(`ERROR: duplicate key value violates unique constraint "ux_tax_jurisdictions_code"`), want: true},
		{name: "pgx sqlstate", err: errors.New(`ERROR: conflict on tenant_nexus (SQLSTATE 23505)`), want: true},
		{name: "mysql", err: errors.New("Error 1062: Duplicate entry 'US' for key"), want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: tax_jurisdictions.code"), want: true},
		{name: "foreign key", err: errors.New("FOREIGN KEY constraint failed"), want: false},
		{name: "other", err: errors.New("connection refused"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}
