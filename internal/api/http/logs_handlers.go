package http

import (
	"io"
	"net/http"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WidgetLogEntry is one debug event shipped by an embed running with debug on
type WidgetLogEntry struct {
	Label     string                 `json:"label"`
	Fields    map[string]interface{} `json:"fields"`
	Timestamp string                 `json:"timestamp"`
}

// WidgetLogRequest is a batch of debug events from one frame
type WidgetLogRequest struct {
	Source  string           `json:"source"` // "loader" or "widget"
	Entries []WidgetLogEntry `json:"entries"`
}

// StreamLogs handles POST /api/widget/logs. Entries are written at debug
// level under the [HeadlineTester][source] logger.
func (h *Handlers) StreamLogs(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.BadRequest, "", err))
		return
	}
	req, err := decodeWidgetLogs(raw)
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.BadRequest, "Invalid log request format", err))
		return
	}

	logger := h.logger.Named("HeadlineTester").Named(req.Source)
	for _, entry := range req.Entries {
		logger.Debug(entry.Label, widgetLogFields(entry)...)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"entries_received":  len(req.Entries),
		"entries_processed": len(req.Entries),
		"timestamp":         time.Now().Unix(),
	})
}

func widgetLogFields(entry WidgetLogEntry) []zap.Field {
	fields := make([]zap.Field, 0, len(entry.Fields)+2)
	fields = append(fields, zap.String("source", "embed"))
	if entry.Timestamp != "" {
		fields = append(fields, zap.String("embed_timestamp", entry.Timestamp))
	}

	for key, value := range entry.Fields {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		case nil:
			fields = append(fields, zap.Skip())
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}
	return fields
}
