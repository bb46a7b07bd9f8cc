package domain

import (
	"strconv"
)

type TaxonID int64

// NormalizedBbox is [x_min, y_min, x_max, y_max] in the 0..1 range.
type NormalizedBbox [4]float64

type TaxonPrediction struct {
	ID         TaxonID  `json:"id"`
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type TraitRootPrediction struct {
	ID          TaxonID           `json:"id"`
	Name        string            `json:"name"`
	DisplayName string            `json:"displayName"`
	Taxons      []TaxonPrediction `json:"taxons"`
}

type ObjectPrediction struct {
	NormalizedBbox NormalizedBbox        `json:"normalizedBbox"`
	Category       TaxonPrediction       `json:"category"`
	Traits         []TraitRootPrediction `json:"traits"`
}

type VideoObjectPrediction struct {
	ObjectPrediction
	FrameID               string `json:"frame_id"`
	FrameIndex            int    `json:"frame_index"`
	TimestampMicroseconds int64  `json:"timestamp_microseconds"`
}

// Timestamp is a video offset in seconds. It is used as a JSON object key,
// hence the text marshalling.
type Timestamp float64

func (t Timestamp) MarshalText() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(t), 'f', -1, 64), nil
}

func (t *Timestamp) UnmarshalText(text []byte) error {
	v, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return err
	}
	*t = Timestamp(v)
	return nil
}

// Result is the closed union of task results. Only ImageResult and
// VideoResult implement it.
type Result interface {
	PredictionType() PredictionType
	TaskUUID() string
	isResult()
}

type ImageResult struct {
	PredictionTaskUUID string             `json:"prediction_task_uuid"`
	Predictions        []ObjectPrediction `json:"predictions"`
}

func (r *ImageResult) PredictionType() PredictionType { return PredictionTypeImage }
func (r *ImageResult) TaskUUID() string               { return r.PredictionTaskUUID }
func (r *ImageResult) isResult()                      {}

type VideoResult struct {
	PredictionTaskUUID     string                                `json:"prediction_task_uuid"`
	TimestampToPredictions map[Timestamp][]VideoObjectPrediction `json:"timestamp_to_predictions"`
	FramesPerSecond        int                                   `json:"frames_per_second"`
}

func (r *VideoResult) PredictionType() PredictionType { return PredictionTypeVideo }
func (r *VideoResult) TaskUUID() string               { return r.PredictionTaskUUID }
func (r *VideoResult) isResult()                      {}

// ProductPrediction is one classification over a set of product images.
type ProductPrediction struct {
	Category TaxonPrediction       `json:"category"`
	Traits   []TraitRootPrediction `json:"traits"`
}

type ProductResult struct {
	Predictions []ProductPrediction `json:"predictions"`
}

type ObjectKey string

// ScreenshotObject is a detected UI element. Data holds type, text and score.
type ScreenshotObject struct {
	Key      ObjectKey      `json:"key"`
	Bbox     NormalizedBbox `json:"bbox"`
	Parent   *ObjectKey     `json:"parent"`
	Children []ObjectKey    `json:"children"`
	Siblings []ObjectKey    `json:"siblings"`
	Data     map[string]any `json:"data"`
}

type ScreenshotResult struct {
	Objects []ScreenshotObject `json:"objects"`
}
