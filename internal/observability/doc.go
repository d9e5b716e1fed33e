// Package observability provides structured logging, Prometheus metrics, and
// request context helpers for the library lending service.
//
// # Logging
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger = observability.WithLoanContext(logger, loan.ID, loan.MemberID, loan.CopyID)
//	logger.Info().Msg("loan returned")
//
// # Metrics
//
// Metrics register with the default Prometheus registry on construction, so
// NewMetrics must be called once per namespace per process:
//
//	metrics := observability.NewMetrics("library_lending")
//	metrics.RecordBorrow(observability.BorrowModeByBook, time.Since(start))
//
// A nil *Metrics is valid and records nothing.
//
// # Standard Fields
//
//   - request_id, correlation_id: request tracing
//   - member_id, copy_id, book_id, loan_id: lending identifiers
//   - outcome: lending result (ok, conflict, not_found, ...)
//   - component: emitting subsystem (server, lending, relay, ...)
package observability
