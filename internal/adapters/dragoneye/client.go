package dragoneye

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/schema"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"dragoneye/internal/core/domain"
	"dragoneye/internal/core/ports"
)

const (
	DefaultBaseURL = "https://api.dragoneye.ai"

	beginPath   = "/prediction-task/begin"
	triggerPath = "/predict"
	statusPath  = "/prediction-task/status"
	resultsPath = "/prediction-task/results"

	taskIDQueryParam = "predictionTaskUuid"
	maxErrorBodyLen  = 512
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	// Timeout bounds each round trip. Zero means no client-side timeout.
	Timeout time.Duration
}

// Client implements ports.TaskClient against the Dragoneye HTTP API, plus the
// single-shot classification endpoints that bypass the task lifecycle.
type Client struct {
	api    *resty.Client
	upload *resty.Client
	logger zerolog.Logger
}

var _ ports.TaskClient = (*Client)(nil)

var formEncoder = schema.NewEncoder()

// NewClient creates a Client. The API key is sent as a bearer token on every
// call except presigned uploads.
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", domain.ErrUsage)
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		api:    resty.New().SetBaseURL(baseURL).SetAuthToken(opts.APIKey),
		upload: resty.New(),
		logger: logger.With().Str("component", "dragoneye_client").Logger(),
	}
	for _, rc := range []*resty.Client{c.api, c.upload} {
		if opts.UserAgent != "" {
			rc.SetHeader("User-Agent", opts.UserAgent)
		}
		if opts.Timeout > 0 {
			rc.SetTimeout(opts.Timeout)
		}
		rc.OnAfterResponse(c.logResponse)
	}
	return c, nil
}

func (c *Client) logResponse(_ *resty.Client, res *resty.Response) error {
	c.logger.Debug().
		Str("method", res.Request.Method).
		Str("url", redactQuery(res.Request.URL)).
		Int("status_code", res.StatusCode()).
		Dur("elapsed", res.Time()).
		Msg("Round trip complete")
	return nil
}

type signedURL struct {
	BlobPath             string `json:"blob_path"`
	PresignedPostRequest struct {
		URL    string          `json:"url"`
		Fields json.RawMessage `json:"fields"`
	} `json:"presigned_post_request"`
}

type beginResponse struct {
	PredictionTaskUUID string      `json:"prediction_task_uuid"`
	PredictionType     string      `json:"prediction_type"`
	SignedURLs         []signedURL `json:"signed_urls"`
}

// Begin creates a prediction task.
func (c *Client) Begin(ctx context.Context, req ports.BeginRequest) (*domain.PredictionTask, error) {
	if req.MimeType == "" {
		return nil, fmt.Errorf("%w: mime type is required", domain.ErrUsage)
	}
	form, err := encodeForm(req)
	if err != nil {
		return nil, domain.NewTaskError(domain.ErrBegin, "", err)
	}

	res, err := c.api.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(beginPath)
	if err := classify(domain.ErrBegin, "", res, err); err != nil {
		return nil, err
	}

	var body beginResponse
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return nil, domain.NewTaskError(domain.ErrBegin, "", fmt.Errorf("error parsing begin response: %w", err))
	}
	if body.PredictionTaskUUID == "" {
		return nil, domain.NewTaskError(domain.ErrBegin, "", errors.New("begin response has no prediction_task_uuid"))
	}
	pt, err := domain.ParsePredictionType(body.PredictionType)
	if err != nil {
		return nil, domain.NewTaskError(domain.ErrBegin, body.PredictionTaskUUID, err)
	}
	if len(body.SignedURLs) == 0 {
		return nil, domain.NewTaskError(domain.ErrBegin, body.PredictionTaskUUID, errors.New("begin response has no signed_urls"))
	}

	// The service issues a single target per task.
	signed := body.SignedURLs[0]
	fields, err := orderedFields(signed.PresignedPostRequest.Fields)
	if err != nil {
		return nil, domain.NewTaskError(domain.ErrBegin, body.PredictionTaskUUID, err)
	}

	return &domain.PredictionTask{
		UUID:           body.PredictionTaskUUID,
		PredictionType: pt,
		UploadTarget: domain.UploadTarget{
			URL:      signed.PresignedPostRequest.URL,
			Fields:   fields,
			BlobPath: signed.BlobPath,
		},
	}, nil
}

// orderedFields keeps the presigned fields in the order the server sent them.
func orderedFields(raw json.RawMessage) ([]domain.FormField, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, errors.New("presigned fields are not a json object")
	}
	var fields []domain.FormField
	doc.ForEach(func(key, value gjson.Result) bool {
		fields = append(fields, domain.FormField{Name: key.String(), Value: value.String()})
		return true
	})
	return fields, nil
}

// Upload posts the media as a multipart form to the presigned destination.
// The stream is read once, but resty assembles the whole body in memory
// before sending, so memory use grows with the media size.
func (c *Client) Upload(ctx context.Context, target domain.UploadTarget, file ports.UploadFile) error {
	if target.URL == "" {
		return domain.NewTaskError(domain.ErrUpload, "", errors.New("upload target has no url"))
	}
	if file.Reader == nil {
		return fmt.Errorf("%w: upload has no media stream", domain.ErrUsage)
	}

	name := file.Name
	if name == "" {
		name = path.Base(target.BlobPath)
	}

	// Storage services check the policy fields in order and require the file
	// part last, so fields are written as parts rather than a values map.
	req := c.upload.R().SetContext(ctx)
	for _, f := range target.Fields {
		req.SetMultipartField(f.Name, "", "", strings.NewReader(f.Value))
	}
	res, err := req.
		SetMultipartField("file", name, partContentType(file.MimeType), file.Reader).
		Post(target.URL)
	return classify(domain.ErrUpload, "", res, err)
}

type triggerRequest struct {
	ModelName          string `schema:"model_name"`
	PredictionTaskUUID string `schema:"prediction_task_uuid"`
}

// Trigger starts processing of an uploaded task.
func (c *Client) Trigger(ctx context.Context, modelName, taskID string) error {
	form, err := encodeForm(triggerRequest{ModelName: modelName, PredictionTaskUUID: taskID})
	if err != nil {
		return domain.NewTaskError(domain.ErrTrigger, taskID, err)
	}
	res, err := c.api.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(triggerPath)
	return classify(domain.ErrTrigger, taskID, res, err)
}

// Status fetches the current state of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*domain.TaskState, error) {
	res, err := c.api.R().
		SetContext(ctx).
		SetQueryParam(taskIDQueryParam, taskID).
		Get(statusPath)
	if err := classify(domain.ErrStatus, taskID, res, err); err != nil {
		return nil, err
	}

	var state domain.TaskState
	if err := json.Unmarshal(res.Body(), &state); err != nil {
		return nil, domain.NewTaskError(domain.ErrStatus, taskID, fmt.Errorf("error parsing status response: %w", err))
	}
	if state.TaskID == "" {
		state.TaskID = taskID
	}
	return &state, nil
}

// Results fetches the raw results document of a task.
func (c *Client) Results(ctx context.Context, taskID string) ([]byte, error) {
	res, err := c.api.R().
		SetContext(ctx).
		SetQueryParam(taskIDQueryParam, taskID).
		Get(resultsPath)
	if err := classify(domain.ErrResultsUnavailable, taskID, res, err); err != nil {
		return nil, err
	}
	return res.Body(), nil
}

func encodeForm(v any) (url.Values, error) {
	form := url.Values{}
	if err := formEncoder.Encode(v, form); err != nil {
		return nil, fmt.Errorf("error encoding form: %w", err)
	}
	return form, nil
}

// classify turns a transport error or a non-2xx response into a TaskError of
// the given kind.
func classify(kind error, taskID string, res *resty.Response, err error) error {
	if err != nil {
		return domain.NewTaskError(kind, taskID, err)
	}
	if !res.IsSuccess() {
		return domain.NewTaskError(kind, taskID, newHTTPError(res))
	}
	return nil
}
