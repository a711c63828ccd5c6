package http

import (
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/apperr"
)

// HandlerMetrics wraps handlers with metrics tracking
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper. A nil metrics tracks nothing.
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// Track times a store operation. The returned func records the outcome;
// coded errors are counted by code.
func (hm *HandlerMetrics) Track(operation string) func(error) {
	if hm == nil || hm.metrics == nil {
		return func(error) {}
	}
	timer := monitoring.NewTimer(hm.metrics, "store", operation)
	return func(err error) {
		if err == nil {
			timer.Stop("success")
			return
		}
		timer.Stop("error")
		hm.metrics.RecordServiceError("store", operation, string(apperr.From(err).Code))
	}
}
