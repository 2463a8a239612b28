package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics holds the instruments scraped from /metrics.
type PrometheusMetrics struct {
	apiRequests   *prometheus.CounterVec
	apiDuration   *prometheus.HistogramVec
	invoiceAmount *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the instruments on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxledger_api_requests_total",
		Help: "Counts API requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taxledger_api_duration_seconds",
		Help:    "API request latency per method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	invoiceAmount := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taxledger_invoice_amount",
		Help:    "Distribution of invoice totals by currency.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"currency"})

	for _, c := range []prometheus.Collector{apiRequests, apiDuration, invoiceAmount} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &PrometheusMetrics{
		apiRequests:   apiRequests,
		apiDuration:   apiDuration,
		invoiceAmount: invoiceAmount,
	}, nil
}

// ObserveAPIRequest records an API request and latency.
func (m *PrometheusMetrics) ObserveAPIRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(strings.ToUpper(method))
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// ObserveInvoiceAmount records an invoice total.
func (m *PrometheusMetrics) ObserveInvoiceAmount(currency string, amount float64) {
	if m == nil {
		return
	}
	m.invoiceAmount.WithLabelValues(sanitizeLabel(strings.ToUpper(currency))).Observe(amount)
}

func sanitizeLabel(val string) string {
	val = strings.TrimSpace(val)
	if val == "" {
		return "unknown"
	}
	return val
}
