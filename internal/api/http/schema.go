package http

import (
	"fmt"
	"sync"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/bytedance/sonic"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const upsertExperimentSchema = `{
  "type": "object",
  "required": ["token", "path", "controlHeadline"],
  "properties": {
    "token": {"type": "string"},
    "path": {"type": "string"},
    "selector": {"type": ["string", "null"]},
    "controlHeadline": {"type": "string"},
    "variantHeadline": {"type": ["string", "null"]},
    "status": {"enum": ["draft", "active", "paused"]},
    "action": {"enum": ["update", "reset"]},
    "authorLabel": {"type": ["string", "null"]}
  }
}`

const widgetLogSchema = `{
  "type": "object",
  "required": ["source", "entries"],
  "properties": {
    "source": {"enum": ["loader", "widget"]},
    "entries": {
      "type": "array",
      "minItems": 1,
      "maxItems": 200,
      "items": {
        "type": "object",
        "required": ["label"],
        "properties": {
          "label": {"type": "string", "minLength": 1, "maxLength": 200},
          "fields": {"type": "object"},
          "timestamp": {"type": "string"}
        }
      }
    }
  }
}`

type schemaRegistry struct {
	once    sync.Once
	initErr error
	upsert  *jsonschema.Schema
	logs    *jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		upsert, err := jsonschema.CompileString("upsert_experiment", upsertExperimentSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		logs, err := jsonschema.CompileString("widget_logs", widgetLogSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.upsert = upsert
		schemas.logs = logs
	})
	return schemas.initErr
}

func validate(schema func() *jsonschema.Schema, raw []byte, out any) error {
	if err := initSchemas(); err != nil {
		return err
	}
	var payload any
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if err := schema().Validate(payload); err != nil {
		return err
	}
	return sonic.Unmarshal(raw, out)
}

// decodeUpsert validates and decodes an experiment save. The action
// defaults to update.
func decodeUpsert(raw []byte) (experiment.UpsertRequest, error) {
	var req experiment.UpsertRequest
	if err := validate(func() *jsonschema.Schema { return schemas.upsert }, raw, &req); err != nil {
		return experiment.UpsertRequest{}, fmt.Errorf("invalid experiment payload: %w", err)
	}
	if req.Action == "" {
		req.Action = experiment.ActionUpdate
	}
	return req, nil
}

func decodeWidgetLogs(raw []byte) (WidgetLogRequest, error) {
	var req WidgetLogRequest
	if err := validate(func() *jsonschema.Schema { return schemas.logs }, raw, &req); err != nil {
		return WidgetLogRequest{}, fmt.Errorf("invalid log payload: %w", err)
	}
	return req, nil
}
