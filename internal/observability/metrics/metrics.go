package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "irec_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	consumerLag *prometheus.GaugeVec

	outboxPublishTotal    *prometheus.CounterVec
	outboxPublishLatency  *prometheus.HistogramVec
	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxRecordsTotal    *prometheus.CounterVec

	requestOperationTotal   *prometheus.CounterVec
	requestOperationLatency *prometheus.HistogramVec

	issuanceTotal     *prometheus.CounterVec
	issuerLatency     *prometheus.HistogramVec
	exportTotal       *prometheus.CounterVec
	exportLatency     *prometheus.HistogramVec
	httpRequestsTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Total outbox writes by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox write latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxRecordsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_records_total",
				Help: "Outbox records handled by outcome",
			},
			[]string{"outcome"},
		)

		requestOperationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "certification_request_operations_total",
				Help: "Certification request operations by operation and result",
			},
			[]string{"operation", "result"},
		)
		requestOperationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "certification_request_operation_latency_seconds",
				Help:    "Certification request operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)

		issuanceTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "certificate_issuance_total",
				Help: "Certificate issuance attempts by result",
			},
			[]string{"result"},
		)
		issuerLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "issuer_call_latency_seconds",
				Help:    "Latency of calls to the blockchain issuer in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		httpRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		)

		prometheus.MustRegister(
			consumerLag,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxRecordsTotal,
			requestOperationTotal,
			requestOperationLatency,
			issuanceTotal,
			issuerLatency,
			exportTotal,
			exportLatency,
			httpRequestsTotal,
		)

		if db != nil {
			if logger == nil {
				logger = zap.NewNop()
			}
			prometheus.MustRegister(newBacklogCollector(db, logger))
		}
	})
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// ObserveOutboxPublish records an outbox write.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records one dispatch run and its record outcomes.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxRecordsTotal != nil {
		if sent > 0 {
			outboxRecordsTotal.WithLabelValues("sent").Add(float64(sent))
		}
		if failed > 0 {
			outboxRecordsTotal.WithLabelValues("failed").Add(float64(failed))
		}
		if dlq > 0 {
			outboxRecordsTotal.WithLabelValues("dlq").Add(float64(dlq))
		}
	}
}

// ObserveRequestOperation records a certification request operation
// (create, approve, revoke, list, get).
func ObserveRequestOperation(operation, result string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if requestOperationTotal != nil {
		requestOperationTotal.WithLabelValues(operation, result).Inc()
	}
	if requestOperationLatency != nil {
		requestOperationLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// IncIssuance increments the issuance counter.
func IncIssuance(result string) {
	if result == "" {
		result = "unknown"
	}
	if issuanceTotal != nil {
		issuanceTotal.WithLabelValues(result).Inc()
	}
}

// ObserveIssuerCall records latency of one issuer round trip.
func ObserveIssuerCall(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if issuerLatency != nil {
		issuerLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncHTTPRequest counts a served HTTP request.
func IncHTTPRequest(method string, code int) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, statusCode(code)).Inc()
	}
}

func statusCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	IssuanceIssued  = "issued"
	IssuanceFailed  = "failed"
	IssuanceSkipped = "skipped"
)
