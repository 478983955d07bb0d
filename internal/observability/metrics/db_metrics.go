package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const backlogQueryTimeout = 2 * time.Second

// backlogCollector reports queue depths straight from the database on every
// scrape, so the numbers are right no matter which process did the work.
type backlogCollector struct {
	db     *sql.DB
	logger *zap.Logger

	outboxPending    *prometheus.Desc
	deadLetters      *prometheus.Desc
	awaitingIssuance *prometheus.Desc
}

func newBacklogCollector(db *sql.DB, logger *zap.Logger) *backlogCollector {
	return &backlogCollector{
		db:     db,
		logger: logger,
		outboxPending: prometheus.NewDesc(metricPrefix+"event_outbox_pending",
			"Outbox records waiting for delivery", nil, nil),
		deadLetters: prometheus.NewDesc(metricPrefix+"event_dlq_count",
			"Dead letter queue records", nil, nil),
		awaitingIssuance: prometheus.NewDesc(metricPrefix+"certification_requests_awaiting_issuance",
			"Approved certification requests without an issued certificate", nil, nil),
	}
}

func (c *backlogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.outboxPending
	ch <- c.deadLetters
	ch <- c.awaitingIssuance
}

func (c *backlogCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), backlogQueryTimeout)
	defer cancel()

	var pending, dead, awaiting int64
	err := c.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'),
	(SELECT COUNT(*) FROM dead_letter_events),
	(SELECT COUNT(*) FROM certification_requests WHERE approved AND issued_certificate_id IS NULL)`,
	).Scan(&pending, &dead, &awaiting)
	if err != nil {
		c.logger.Warn("backlog metrics query failed", zap.Error(err))
		return
	}
	ch <- prometheus.MustNewConstMetric(c.outboxPending, prometheus.GaugeValue, float64(pending))
	ch <- prometheus.MustNewConstMetric(c.deadLetters, prometheus.GaugeValue, float64(dead))
	ch <- prometheus.MustNewConstMetric(c.awaitingIssuance, prometheus.GaugeValue, float64(awaiting))
}
