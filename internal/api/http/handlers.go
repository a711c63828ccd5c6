package http

import (
	"io"
	"net/http"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/api/middleware"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/api/ws"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/store"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxBodyBytes caps request bodies on the widget API
const MaxBodyBytes = 64 << 10

// Version is reported by the root handler
const Version = "0.1.0"

// BridgeStats reports relay state for health output
type BridgeStats interface {
	Stats() ws.Stats
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store   *store.Service
	metrics *monitoring.Metrics
	tracked *HandlerMetrics
	bridge  BridgeStats
	logger  *logging.Logger
}

// NewHandlers creates a new handler set. metrics and bridge may be nil.
func NewHandlers(svc *store.Service, metrics *monitoring.Metrics, bridge BridgeStats, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		store:   svc,
		metrics: metrics,
		tracked: NewHandlerMetrics(metrics),
		bridge:  bridge,
		logger:  logger,
	}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Headline Tester",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	if h.bridge != nil {
		body["bridge"] = h.bridge.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// UpsertExperiment handles POST /api/widget/experiments
func (h *Handlers) UpsertExperiment(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.BadRequest, "", err))
		return
	}
	req, err := decodeUpsert(raw)
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.BadRequest, "", err))
		return
	}

	done := h.tracked.Track("upsert_experiment")
	snap, err := h.store.Upsert(c.Request.Context(), middleware.GetControlToken(c), req)
	done(err)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, experiment.UpsertResponse{Experiment: snap})
}

// WidgetConfig handles GET /api/widget/config?token=&path=. The control
// token is never included.
func (h *Handlers) WidgetConfig(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		path = "/"
	}

	done := h.tracked.Track("widget_config")
	cfg, err := h.store.Config(c.Request.Context(), c.Query("token"), path)
	done(err)
	if h.metrics != nil {
		result := "found"
		if err != nil {
			result = string(apperr.From(err).Code)
		}
		h.metrics.RecordConfigLookup(result)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// fail renders err as {"code","message"} with its status
func (h *Handlers) fail(c *gin.Context, err error) {
	e := apperr.From(err)
	if e.Status() >= http.StatusInternalServerError {
		h.logger.Error("Widget API request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		h.logger.Debug("Widget API request rejected",
			zap.String("path", c.FullPath()),
			zap.String("code", string(e.Code)),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(e.Status(), e.Body())
}
