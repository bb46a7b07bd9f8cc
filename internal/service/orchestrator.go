package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dragoneye/internal/core/domain"
	"dragoneye/internal/core/ports"
	"dragoneye/internal/decode"
	"dragoneye/internal/media"
)

// DefaultPollInterval is the fixed delay between status requests.
const DefaultPollInterval = time.Second

// Orchestrator drives a prediction task from begin to decoded results. It
// holds no per-task state, so one Orchestrator may serve concurrent calls.
type Orchestrator struct {
	client       ports.TaskClient
	fetcher      ports.Fetcher
	journal      ports.Journal
	pollInterval time.Duration
	logger       zerolog.Logger
	onStatus     func(domain.TaskState)
}

// NewOrchestrator creates a new Orchestrator. fetcher and journal may be nil;
// without a fetcher URL media cannot be uploaded and without a journal tasks
// are not persisted.
func NewOrchestrator(
	client ports.TaskClient,
	fetcher ports.Fetcher,
	journal ports.Journal,
	pollInterval time.Duration,
	logger zerolog.Logger,
) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		client:       client,
		fetcher:      fetcher,
		journal:      journal,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// OnStatus registers fn to be called after every status observation made
// while waiting. It must be set before the Orchestrator is used.
func (o *Orchestrator) OnStatus(fn func(domain.TaskState)) {
	o.onStatus = fn
}

// PredictImage runs a full image prediction.
func (o *Orchestrator) PredictImage(ctx context.Context, src *media.Source, modelName string) (*domain.ImageResult, error) {
	res, err := o.predict(ctx, domain.PredictionTypeImage, src, modelName, 0)
	if err != nil {
		return nil, err
	}
	image, ok := res.(*domain.ImageResult)
	if !ok {
		return nil, mismatch(res.TaskUUID(), domain.PredictionTypeImage, res.PredictionType())
	}
	return image, nil
}

// PredictVideo runs a full video prediction. framesPerSecond is optional and
// only sent when positive.
func (o *Orchestrator) PredictVideo(ctx context.Context, src *media.Source, modelName string, framesPerSecond int) (*domain.VideoResult, error) {
	res, err := o.predict(ctx, domain.PredictionTypeVideo, src, modelName, framesPerSecond)
	if err != nil {
		return nil, err
	}
	video, ok := res.(*domain.VideoResult)
	if !ok {
		return nil, mismatch(res.TaskUUID(), domain.PredictionTypeVideo, res.PredictionType())
	}
	return video, nil
}

func (o *Orchestrator) predict(ctx context.Context, want domain.PredictionType, src *media.Source, modelName string, fps int) (domain.Result, error) {
	runID := uuid.New().String()
	ctx = o.logger.With().Str("run_id", runID).Logger().WithContext(ctx)

	task, err := o.submit(ctx, runID, want, src, modelName, fps)
	if err != nil {
		return nil, err
	}

	final, err := o.Wait(ctx, task.UUID)
	if err != nil {
		return nil, err
	}
	if final.PredictionType != "" && final.PredictionType != want {
		return nil, mismatch(task.UUID, want, final.PredictionType)
	}

	return o.Results(ctx, task.UUID, want)
}

// Submit begins a task, uploads the media and triggers processing, then
// returns without waiting. The returned task id can be passed to Wait,
// Status and Results, also from another process.
func (o *Orchestrator) Submit(ctx context.Context, want domain.PredictionType, src *media.Source, modelName string, framesPerSecond int) (*domain.PredictionTask, error) {
	runID := uuid.New().String()
	ctx = o.logger.With().Str("run_id", runID).Logger().WithContext(ctx)
	return o.submit(ctx, runID, want, src, modelName, framesPerSecond)
}

func (o *Orchestrator) submit(ctx context.Context, runID string, want domain.PredictionType, src *media.Source, modelName string, fps int) (*domain.PredictionTask, error) {
	log := o.logFor(ctx)

	if _, err := domain.ParsePredictionType(string(want)); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: no media source given", domain.ErrUsage)
	}
	if modelName == "" {
		return nil, fmt.Errorf("%w: model name is required", domain.ErrUsage)
	}
	if fps < 0 {
		return nil, fmt.Errorf("%w: frames per second must not be negative", domain.ErrUsage)
	}
	if want == domain.PredictionTypeImage {
		fps = 0
	}
	if err := checkCancelled(ctx, ""); err != nil {
		return nil, err
	}

	// Embedded sources are validated and rewound here, before any round trip.
	// URL sources are resolved here as well so an unreachable URL never
	// creates a server side task.
	body, mimeType, err := o.openMedia(ctx, src)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	task, err := o.Begin(ctx, mimeType, fps)
	if err != nil {
		return nil, err
	}
	log.Info().Str("task_id", task.UUID).Str("prediction_type", string(task.PredictionType)).Msg("Prediction task begun")
	if task.PredictionType != want {
		return nil, mismatch(task.UUID, want, task.PredictionType)
	}
	o.record(ctx, &domain.TaskRecord{
		RunID:          runID,
		TaskID:         task.UUID,
		PredictionType: task.PredictionType,
		Model:          modelName,
		MimeType:       mimeType,
		Status:         domain.StatusPending,
	})

	if err := o.upload(ctx, task, mimeType, body); err != nil {
		return nil, err
	}
	log.Info().Str("task_id", task.UUID).Msg("Media uploaded")

	if err := checkCancelled(ctx, task.UUID); err != nil {
		return nil, err
	}
	if err := o.client.Trigger(ctx, modelName, task.UUID); err != nil {
		return nil, o.fault(ctx, task.UUID, err)
	}
	log.Info().Str("task_id", task.UUID).Str("model", modelName).Msg("Prediction triggered")

	return task, nil
}

func (o *Orchestrator) openMedia(ctx context.Context, src *media.Source) (io.ReadCloser, string, error) {
	body, mimeType, err := src.Open(ctx, o.fetcher)
	if err != nil {
		if errors.Is(err, domain.ErrUsage) {
			return nil, "", err
		}
		return nil, "", o.fault(ctx, "", domain.NewTaskError(domain.ErrUpload, "", err))
	}
	if mimeType == "" {
		body.Close()
		return nil, "", fmt.Errorf("%w: media has no mime type", domain.ErrUsage)
	}
	return body, mimeType, nil
}

// Begin creates a task for media of the given MIME type.
func (o *Orchestrator) Begin(ctx context.Context, mimeType string, framesPerSecond int) (*domain.PredictionTask, error) {
	if mimeType == "" {
		return nil, fmt.Errorf("%w: mime type is required", domain.ErrUsage)
	}
	if err := checkCancelled(ctx, ""); err != nil {
		return nil, err
	}
	task, err := o.client.Begin(ctx, ports.BeginRequest{MimeType: mimeType, FramesPerSecond: framesPerSecond})
	if err != nil {
		return nil, o.fault(ctx, "", err)
	}
	task.Status = domain.StatusPending
	return task, nil
}

func (o *Orchestrator) upload(ctx context.Context, task *domain.PredictionTask, mimeType string, body io.Reader) error {
	if err := checkCancelled(ctx, task.UUID); err != nil {
		return err
	}
	file := ports.UploadFile{
		Name:     path.Base(task.UploadTarget.BlobPath),
		MimeType: mimeType,
		Reader:   body,
	}
	if err := o.client.Upload(ctx, task.UploadTarget, file); err != nil {
		var taskErr *domain.TaskError
		if errors.As(err, &taskErr) && taskErr.TaskID == "" {
			taskErr.TaskID = task.UUID
		}
		return o.fault(ctx, task.UUID, err)
	}
	return nil
}

// Status performs a single status round trip.
func (o *Orchestrator) Status(ctx context.Context, taskID string) (*domain.TaskState, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id is required", domain.ErrUsage)
	}
	if err := checkCancelled(ctx, taskID); err != nil {
		return nil, err
	}
	state, err := o.client.Status(ctx, taskID)
	if err != nil {
		return nil, o.fault(ctx, taskID, err)
	}
	return state, nil
}

// Wait polls the task at the fixed interval until it reaches a terminal
// status. There is no attempt limit; cancel ctx to stop waiting.
func (o *Orchestrator) Wait(ctx context.Context, taskID string) (*domain.TaskState, error) {
	log := o.logFor(ctx)

	var last domain.TaskStatus
	for poll := 1; ; poll++ {
		state, err := o.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("task_id", taskID).Str("status", string(state.Status)).Int("poll", poll).Msg("Polled prediction task")
		if o.onStatus != nil {
			o.onStatus(*state)
		}
		if state.Status != last {
			last = state.Status
			o.updateRecord(ctx, taskID, state.Status, "")
		}
		if ctx.Err() != nil {
			return nil, o.fault(ctx, taskID, ctx.Err())
		}

		switch {
		case state.Status.Succeeded():
			log.Info().Str("task_id", taskID).Int("polls", poll).Msg("Prediction task predicted")
			return state, nil
		case state.Status.Failed():
			err := &domain.TaskError{Kind: domain.ErrTaskFailed, TaskID: taskID, Status: state.Status}
			log.Error().Err(err).Str("task_id", taskID).Msg("Prediction task failed")
			return nil, err
		}

		timer := time.NewTimer(o.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, o.fault(ctx, taskID, ctx.Err())
		case <-timer.C:
		}
	}
}

// Results fetches and decodes the results of a predicted task.
func (o *Orchestrator) Results(ctx context.Context, taskID string, pt domain.PredictionType) (domain.Result, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id is required", domain.ErrUsage)
	}
	if _, err := domain.ParsePredictionType(string(pt)); err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx, taskID); err != nil {
		return nil, err
	}

	payload, err := o.client.Results(ctx, taskID)
	if err != nil {
		return nil, o.fault(ctx, taskID, err)
	}

	res, err := decode.Result(pt, taskID, payload)
	if err != nil {
		return nil, o.fault(ctx, taskID, err)
	}

	resultPath := ""
	if o.journal != nil {
		resultPath, err = o.journal.SaveResults(ctx, taskID, payload)
		if err != nil {
			o.logFor(ctx).Warn().Err(err).Str("task_id", taskID).Msg("Failed to journal results")
		}
	}
	o.updateRecord(ctx, taskID, domain.StatusPredicted, resultPath)
	return res, nil
}

// fault logs err and converts it to a cancellation when ctx is done.
func (o *Orchestrator) fault(ctx context.Context, taskID string, err error) error {
	if ctx.Err() != nil {
		err = &domain.TaskError{Kind: domain.ErrCancelled, TaskID: taskID, Err: ctx.Err()}
		o.logFor(ctx).Warn().Str("task_id", taskID).Msg("Prediction cancelled")
		return err
	}
	o.logFor(ctx).Error().Err(err).Str("task_id", taskID).Msg("Prediction task fault")
	return err
}

func (o *Orchestrator) logFor(ctx context.Context) *zerolog.Logger {
	if log := zerolog.Ctx(ctx); log.GetLevel() != zerolog.Disabled {
		return log
	}
	return &o.logger
}

func (o *Orchestrator) record(ctx context.Context, rec *domain.TaskRecord) {
	if o.journal == nil {
		return
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := o.journal.SaveTask(ctx, rec); err != nil {
		o.logFor(ctx).Warn().Err(err).Str("task_id", rec.TaskID).Msg("Failed to journal task")
	}
}

// updateRecord refreshes a journaled task. Tasks that were not begun by this
// journal are left alone.
func (o *Orchestrator) updateRecord(ctx context.Context, taskID string, status domain.TaskStatus, resultPath string) {
	if o.journal == nil {
		return
	}
	rec, err := o.journal.LoadTask(ctx, taskID)
	if err != nil {
		return
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	if resultPath != "" {
		rec.ResultPath = resultPath
	}
	if err := o.journal.SaveTask(ctx, rec); err != nil {
		o.logFor(ctx).Warn().Err(err).Str("task_id", taskID).Msg("Failed to journal task")
	}
}

func checkCancelled(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return &domain.TaskError{Kind: domain.ErrCancelled, TaskID: taskID, Err: err}
	}
	return nil
}

func mismatch(taskID string, want, got domain.PredictionType) error {
	return &domain.TaskError{
		Kind:   domain.ErrPredictionTypeMismatch,
		TaskID: taskID,
		Err:    fmt.Errorf("requested %q, service reported %q", want, got),
	}
}
