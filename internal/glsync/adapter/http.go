package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/smallbiznis/taxledger/internal/config"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	pkglog "github.com/smallbiznis/taxledger/pkg/log"
	"github.com/smallbiznis/taxledger/pkg/telemetry/correlation"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 512
)

type syncRequest struct {
	JournalEntryID string `json:"journal_entry_id"`
	TenantID       string `json:"tenant_id"`
	ReferenceID    string `json:"reference_id"`
	ReferenceType  string `json:"reference_type"`
}

type syncResponse struct {
	ExternalID string `json:"external_id"`
}

// HTTPAdapter posts journal entries to an external GL endpoint. Transport
// errors and 5xx responses are retried by the client; persistent failures
// open the circuit breaker, after which calls fail fast with
// ErrAdapterUnavailable until the breaker half-opens.
type HTTPAdapter struct {
	log      *zap.Logger
	client   *retryablehttp.Client
	breaker  *gobreaker.CircuitBreaker
	endpoint string
	apiKey   string
}

func NewHTTPAdapter(cfg config.GLConfig, breakerCfg config.BreakerConfig, log *zap.Logger) (*HTTPAdapter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("gl http adapter: endpoint is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	log = log.Named("glsync.adapter.http")

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = &leveledLogger{log: log.Sugar()}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gl-http",
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerCfg.ConsecutiveFailures
		},
		// A rejected entry means the GL is up and answering.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, glsyncdomain.ErrAdapterRejected)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("gl circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &HTTPAdapter{
		log:      log,
		client:   client,
		breaker:  breaker,
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
	}, nil
}

func (a *HTTPAdapter) Sync(ctx context.Context, entry glsyncdomain.JournalEntry) (glsyncdomain.SyncResult, error) {
	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.post(ctx, entry)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			pkglog.With(ctx, a.log).Warn("gl circuit breaker rejected call",
				zap.String("journal_entry_id", entry.ID.String()),
				zap.Error(err),
			)
			return glsyncdomain.SyncResult{}, fmt.Errorf("%w: %v", glsyncdomain.ErrAdapterUnavailable, err)
		}
		return glsyncdomain.SyncResult{}, err
	}
	return out.(glsyncdomain.SyncResult), nil
}

// Status reports the circuit breaker state: closed, half-open or open.
func (a *HTTPAdapter) Status() string {
	return a.breaker.State().String()
}

func (a *HTTPAdapter) post(ctx context.Context, entry glsyncdomain.JournalEntry) (glsyncdomain.SyncResult, error) {
	payload, err := json.Marshal(syncRequest{
		JournalEntryID: entry.ID.String(),
		TenantID:       entry.TenantID.String(),
		ReferenceID:    entry.ReferenceID.String(),
		ReferenceType:  string(entry.ReferenceType),
	})
	if err != nil {
		return glsyncdomain.SyncResult{}, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return glsyncdomain.SyncResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", entry.ID.String())
	if cid := correlation.FromContext(ctx); cid != "" {
		req.Header.Set(correlation.HeaderName, cid)
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return glsyncdomain.SyncResult{}, fmt.Errorf("post journal entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return glsyncdomain.SyncResult{}, fmt.Errorf("%w: status %d: %s",
			glsyncdomain.ErrAdapterRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return glsyncdomain.SyncResult{}, fmt.Errorf("%w: decode response: %v", glsyncdomain.ErrAdapterRejected, err)
	}
	externalID := strings.TrimSpace(decoded.ExternalID)
	if externalID == "" {
		return glsyncdomain.SyncResult{}, fmt.Errorf("%w: response has no external_id", glsyncdomain.ErrAdapterRejected)
	}
	return glsyncdomain.SyncResult{ExternalID: externalID}, nil
}

// leveledLogger routes retryablehttp's logging through zap.
type leveledLogger struct {
	log *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
