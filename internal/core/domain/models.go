package domain

import (
	"fmt"
	"strings"
	"time"
)

// PredictionType selects the kind of classification a task performs.
type PredictionType string

const (
	PredictionTypeImage PredictionType = "image"
	PredictionTypeVideo PredictionType = "video"
)

// ParsePredictionType validates a prediction type tag.
func ParsePredictionType(s string) (PredictionType, error) {
	switch pt := PredictionType(strings.ToLower(strings.TrimSpace(s))); pt {
	case PredictionTypeImage, PredictionTypeVideo:
		return pt, nil
	default:
		return "", fmt.Errorf("%w: unknown prediction type %q", ErrUsage, s)
	}
}

// TaskStatus is the server-reported state of a prediction task. The set of
// values is open; unknown values are treated as still in progress.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusPredicted  TaskStatus = "predicted"
	StatusFailed     TaskStatus = "failed"
)

const failedStatusPrefix = "failed"

// Succeeded reports whether the task finished with results available.
func (s TaskStatus) Succeeded() bool {
	return s == StatusPredicted
}

// Failed matches every failure sub-kind, including ones added server side
// after this client was built.
func (s TaskStatus) Failed() bool {
	return strings.HasPrefix(string(s), failedStatusPrefix)
}

// Terminal reports whether no further transition will occur.
func (s TaskStatus) Terminal() bool {
	return s.Succeeded() || s.Failed()
}

// FormField is a single presigned form field. Order is preserved as issued.
type FormField struct {
	Name  string
	Value string
}

// UploadTarget is a one-time presigned destination for the media upload.
type UploadTarget struct {
	URL      string
	Fields   []FormField
	BlobPath string
}

// PredictionTask is created by begin; Status is only ever updated by polling.
type PredictionTask struct {
	UUID           string
	PredictionType PredictionType
	Status         TaskStatus
	UploadTarget   UploadTarget
}

// TaskState is a single status observation.
type TaskState struct {
	TaskID         string         `json:"prediction_task_uuid"`
	PredictionType PredictionType `json:"prediction_type"`
	Status         TaskStatus     `json:"status"`
}

// TaskRecord is what the journal keeps about a task so that polling and
// result retrieval can resume in a later process.
type TaskRecord struct {
	RunID          string         `yaml:"run_id"`
	TaskID         string         `yaml:"task_id"`
	PredictionType PredictionType `yaml:"prediction_type"`
	Model          string         `yaml:"model,omitempty"`
	MimeType       string         `yaml:"mime_type,omitempty"`
	Status         TaskStatus     `yaml:"status"`
	CreatedAt      time.Time      `yaml:"created_at"`
	UpdatedAt      time.Time      `yaml:"updated_at"`
	ResultPath     string         `yaml:"result_path,omitempty"`
}
