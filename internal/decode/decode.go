// Package decode validates result documents against the shape implied by
// their prediction type and decodes them into typed results.
package decode

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"dragoneye/internal/core/domain"
)

const (
	taskUUIDKey       = "prediction_task_uuid"
	predictionTypeKey = "prediction_type"
)

// Result decodes payload as a result of type pt. When the payload has no task
// id, taskID is injected so the returned value always carries it.
func Result(pt domain.PredictionType, taskID string, payload []byte) (domain.Result, error) {
	if pt != domain.PredictionTypeImage && pt != domain.PredictionTypeVideo {
		return nil, fmt.Errorf("%w: unknown prediction type %q", domain.ErrUsage, pt)
	}
	if !gjson.ValidBytes(payload) {
		return nil, schemaErr(taskID, "payload is not valid json")
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return nil, schemaErr(taskID, "payload is not a json object")
	}

	if declared := doc.Get(predictionTypeKey); declared.Exists() && domain.PredictionType(declared.String()) != pt {
		return nil, &domain.TaskError{
			Kind:   domain.ErrPredictionTypeMismatch,
			TaskID: taskID,
			Err:    fmt.Errorf("results declare %q, expected %q", declared.String(), pt),
		}
	}

	if taskID != "" && !doc.Get(taskUUIDKey).Exists() {
		injected, err := sjson.SetBytes(payload, taskUUIDKey, taskID)
		if err != nil {
			return nil, schemaErr(taskID, err.Error())
		}
		payload = injected
	}

	switch pt {
	case domain.PredictionTypeImage:
		if !doc.Get("predictions").IsArray() {
			return nil, schemaErr(taskID, "image result requires a predictions array")
		}
		var out domain.ImageResult
		if err := unmarshal(payload, &out); err != nil {
			return nil, schemaErr(taskID, err.Error())
		}
		return &out, nil
	case domain.PredictionTypeVideo:
		if !doc.Get("timestamp_to_predictions").IsObject() {
			return nil, schemaErr(taskID, "video result requires a timestamp_to_predictions object")
		}
		if doc.Get("frames_per_second").Type != gjson.Number {
			return nil, schemaErr(taskID, "video result requires numeric frames_per_second")
		}
		var out domain.VideoResult
		if err := unmarshal(payload, &out); err != nil {
			return nil, schemaErr(taskID, err.Error())
		}
		return &out, nil
	default:
		panic("unreachable")
	}
}

// Image decodes an image result document from the single-shot endpoint.
func Image(payload []byte) (*domain.ImageResult, error) {
	res, err := Result(domain.PredictionTypeImage, "", payload)
	if err != nil {
		return nil, err
	}
	return res.(*domain.ImageResult), nil
}

func Product(payload []byte) (*domain.ProductResult, error) {
	if !gjson.GetBytes(payload, "predictions").IsArray() {
		return nil, schemaErr("", "product result requires a predictions array")
	}
	var out domain.ProductResult
	if err := unmarshal(payload, &out); err != nil {
		return nil, schemaErr("", err.Error())
	}
	return &out, nil
}

func Screenshot(payload []byte) (*domain.ScreenshotResult, error) {
	if !gjson.GetBytes(payload, "objects").IsArray() {
		return nil, schemaErr("", "screenshot result requires an objects array")
	}
	var out domain.ScreenshotResult
	if err := unmarshal(payload, &out); err != nil {
		return nil, schemaErr("", err.Error())
	}
	return &out, nil
}

func unmarshal(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func schemaErr(taskID, msg string) error {
	return &domain.TaskError{Kind: domain.ErrSchemaMismatch, TaskID: taskID, Err: errors.New(msg)}
}
