package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Borrow modes used as the "mode" label.
const (
	BorrowModeByCopy = "copy"
	BorrowModeByBook = "book"
)

// Metrics contains the Prometheus metrics of the lending service, grouped by
// loans, outbox relay, and HTTP transport. All collectors are registered with
// the default registry through promauto.
//
// Every Record method is safe to call on a nil *Metrics.
type Metrics struct {
	// LoansBorrowed counts successful borrows, labeled by mode (copy, book).
	LoansBorrowed *prometheus.CounterVec

	// BorrowRejections counts failed borrows, labeled by reason.
	BorrowRejections *prometheus.CounterVec

	// LoansReturned counts successful returns.
	LoansReturned prometheus.Counter

	// ReturnRejections counts failed returns, labeled by reason.
	ReturnRejections *prometheus.CounterVec

	// LoanDuration observes borrowed-to-returned time of closed loans in seconds.
	LoanDuration prometheus.Histogram

	// OperationDuration observes lending operation latency, labeled by operation.
	OperationDuration *prometheus.HistogramVec

	// OutboxPublished counts events delivered to Kafka.
	OutboxPublished prometheus.Counter

	// OutboxFailures counts failed delivery attempts.
	OutboxFailures prometheus.Counter

	// OutboxBatchSize observes the number of events claimed per relay poll.
	OutboxBatchSize prometheus.Histogram

	// HTTPRequests counts HTTP requests, labeled by method, route pattern, and status.
	HTTPRequests *prometheus.CounterVec

	// HTTPRateLimited counts requests rejected by the per-client limiter.
	HTTPRateLimited prometheus.Counter
}

// NewMetrics creates and registers all metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		LoansBorrowed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_borrowed_total",
			Help:      "Total number of loans created",
		}, []string{"mode"}),
		BorrowRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "borrow_rejections_total",
			Help:      "Total number of rejected borrow attempts by reason",
		}, []string{"reason"}),
		LoansReturned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_returned_total",
			Help:      "Total number of loans returned",
		}),
		ReturnRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "return_rejections_total",
			Help:      "Total number of rejected return attempts by reason",
		}, []string{"reason"}),
		LoanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loan_duration_seconds",
			Help:      "Time between borrow and return in seconds",
			// 1h .. ~8 weeks
			Buckets: prometheus.ExponentialBuckets(3600, 2, 11),
		}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lending_operation_duration_seconds",
			Help:      "Latency of lending operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "Total number of outbox events published to Kafka",
		}),
		OutboxFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_failures_total",
			Help:      "Total number of failed outbox publish attempts",
		}),
		OutboxBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_batch_size",
			Help:      "Number of outbox events claimed per poll",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Total number of HTTP requests rejected by rate limiting",
		}),
	}
}

// RecordBorrow records a successful borrow.
func (m *Metrics) RecordBorrow(mode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.LoansBorrowed.WithLabelValues(mode).Inc()
	m.OperationDuration.WithLabelValues("borrow_by_" + mode).Observe(elapsed.Seconds())
}

// RecordBorrowRejected records a failed borrow.
func (m *Metrics) RecordBorrowRejected(mode, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BorrowRejections.WithLabelValues(reason).Inc()
	m.OperationDuration.WithLabelValues("borrow_by_" + mode).Observe(elapsed.Seconds())
}

// RecordReturn records a successful return and the loan's duration.
func (m *Metrics) RecordReturn(loanDuration, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.LoansReturned.Inc()
	m.LoanDuration.Observe(loanDuration.Seconds())
	m.OperationDuration.WithLabelValues("return").Observe(elapsed.Seconds())
}

// RecordReturnRejected records a failed return.
func (m *Metrics) RecordReturnRejected(reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReturnRejections.WithLabelValues(reason).Inc()
	m.OperationDuration.WithLabelValues("return").Observe(elapsed.Seconds())
}

// RecordOutboxBatch records the outcome of one relay poll.
func (m *Metrics) RecordOutboxBatch(claimed, published, failed int) {
	if m == nil {
		return
	}
	m.OutboxBatchSize.Observe(float64(claimed))
	m.OutboxPublished.Add(float64(published))
	m.OutboxFailures.Add(float64(failed))
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.HTTPRateLimited.Inc()
}
