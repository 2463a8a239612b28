package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taxledger/internal/config"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEntry() glsyncdomain.JournalEntry {
	return glsyncdomain.JournalEntry{
		ID:            snowflake.ID(9001),
		TenantID:      snowflake.ID(1),
		ReferenceID:   snowflake.ID(42),
		ReferenceType: glsyncdomain.ReferenceTypeInvoice,
		SyncStatus:    glsyncdomain.SyncStatusPending,
	}
}

func newTestHTTPAdapter(t *testing.T, url string, failures uint32) *HTTPAdapter {
	t.Helper()
	a, err := NewHTTPAdapter(
		config.GLConfig{Endpoint: url, APIKey: "secret", Timeout: time.Second},
		config.BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, ConsecutiveFailures: failures},
		zap.NewNop(),
	)
	require.NoError(t, err)
	a.client.RetryMax = 0
	return a
}

func TestHTTPAdapterSyncSuccess(t *testing.T) {
	var got syncRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"external_id":"gl-123"}`))
	}))
	defer srv.Close()

	a := newTestHTTPAdapter(t, srv.URL, 5)
	res, err := a.Sync(context.Background(), testEntry())
	require.NoError(t, err)

	assert.Equal(t, "gl-123", res.ExternalID)
	assert.Equal(t, "9001", got.JournalEntryID)
	assert.Equal(t, "1", got.TenantID)
	assert.Equal(t, "42", got.ReferenceID)
	assert.Equal(t, "INVOICE", got.ReferenceType)
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "9001", headers.Get("Idempotency-Key"))
}

func TestHTTPAdapterRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unbalanced entry", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	a := newTestHTTPAdapter(t, srv.URL, 5)
	_, err := a.Sync(context.Background(), testEntry())
	require.Error(t, err)
	assert.ErrorIs(t, err, glsyncdomain.ErrAdapterRejected)
	assert.Contains(t, err.Error(), "unbalanced entry")
}

func TestHTTPAdapterRejectsMissingExternalID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a := newTestHTTPAdapter(t, srv.URL, 5)
	_, err := a.Sync(context.Background(), testEntry())
	assert.ErrorIs(t, err, glsyncdomain.ErrAdapterRejected)
}

func TestHTTPAdapterRejectionsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := newTestHTTPAdapter(t, srv.URL, 2)
	for i := 0; i < 4; i++ {
		_, err := a.Sync(context.Background(), testEntry())
		assert.ErrorIs(t, err, glsyncdomain.ErrAdapterRejected)
	}
	assert.Equal(t, gobreaker.StateClosed.String(), a.Status())
}

func TestHTTPAdapterBreakerOpensOnOutage(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newTestHTTPAdapter(t, srv.URL, 2)

	for i := 0; i < 2; i++ {
		_, err := a.Sync(context.Background(), testEntry())
		require.Error(t, err)
	}
	assert.Equal(t, "open", a.Status())

	_, err := a.Sync(context.Background(), testEntry())
	assert.ErrorIs(t, err, glsyncdomain.ErrAdapterUnavailable)
	assert.Equal(t, int32(2), hits.Load())
}

func TestNewHTTPAdapterRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPAdapter(config.GLConfig{}, config.BreakerConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestStubAdapterReturnsExternalID(t *testing.T) {
	a := NewStubAdapter(zap.NewNop())
	res, err := a.Sync(context.Background(), testEntry())
	require.NoError(t, err)
	assert.Regexp(t, `^gl_[0-9A-Z]{26}$`, res.ExternalID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Sync(ctx, testEntry())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSelectsAdapter(t *testing.T) {
	holder := config.NewStaticSyncConfigHolder(config.DefaultSyncConfig())

	stub, err := New(config.Config{GL: config.GLConfig{Adapter: config.GLAdapterStub}}, holder, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &StubAdapter{}, stub)

	httpAdapter, err := New(config.Config{GL: config.GLConfig{Adapter: config.GLAdapterHTTP, Endpoint: "http://gl.local/entries"}}, holder, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &HTTPAdapter{}, httpAdapter)

	_, err = New(config.Config{GL: config.GLConfig{Adapter: "ftp"}}, holder, zap.NewNop())
	assert.Error(t, err)
}
