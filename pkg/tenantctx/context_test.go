package tenantctx

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestTenantID(t *testing.T) {
	ctx := WithTenantID(context.Background(), snowflake.ID(42))

	id, ok := TenantID(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)
}

func TestTenantID_Missing(t *testing.T) {
	_, ok := TenantID(context.Background())
	assert.False(t, ok)

	_, ok = TenantID(WithTenantID(context.Background(), 0))
	assert.False(t, ok)
}

func TestTenantID_StringValue(t *testing.T) {
	ctx := context.WithValue(context.Background(), TenantIDKey, " 1234 ")

	id, ok := TenantID(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(1234), id)
}
