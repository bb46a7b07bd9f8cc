package ports

import (
	"context"
	"io"

	"dragoneye/internal/core/domain"
)

// BeginRequest opens a prediction task for one media item.
type BeginRequest struct {
	MimeType string `schema:"mimetype"`
	// FramesPerSecond is only sent for video when positive.
	FramesPerSecond int `schema:"frames_per_second,omitempty"`
}

// UploadFile is the media part of a presigned upload.
type UploadFile struct {
	Name     string
	MimeType string
	Reader   io.Reader
}

// TaskClient defines the remote operations of the prediction task lifecycle.
// Each call is a single round trip and is never retried. Failures are
// returned as *domain.TaskError with the matching kind.
type TaskClient interface {
	// Begin creates a task and returns its upload target.
	Begin(ctx context.Context, req BeginRequest) (*domain.PredictionTask, error)

	// Upload posts the media to the presigned target. No credentials are sent.
	Upload(ctx context.Context, target domain.UploadTarget, file UploadFile) error

	// Trigger starts asynchronous processing of an uploaded task.
	Trigger(ctx context.Context, modelName, taskID string) error

	// Status returns the current state of a task.
	Status(ctx context.Context, taskID string) (*domain.TaskState, error)

	// Results returns the raw results document of a predicted task.
	Results(ctx context.Context, taskID string) ([]byte, error)
}

// Fetcher defines the contract for downloading media referenced by URL.
type Fetcher interface {
	// Fetch returns the body and its content type. The caller must close it.
	Fetch(ctx context.Context, mediaURL string) (io.ReadCloser, string, error)
}

// Journal persists task records so that a task can be resumed later.
type Journal interface {
	// SaveTask writes or replaces the record for rec.TaskID.
	SaveTask(ctx context.Context, rec *domain.TaskRecord) error

	// LoadTask reads a previously saved record.
	LoadTask(ctx context.Context, taskID string) (*domain.TaskRecord, error)

	// SaveResults stores the raw results document and returns its path.
	SaveResults(ctx context.Context, taskID string, data []byte) (string, error)
}
