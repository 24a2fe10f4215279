// Package ai runs face detection and face classification models.
//
// The backend is chosen at build time: -tags edgetpu uses TensorFlow Lite with
// the Edge TPU delegate, -tags gocv uses the OpenCV DNN module. A build without
// either tag still compiles but cannot load models.
package ai

import (
	"context"
	"errors"
	"image"

	"golang.org/x/image/draw"

	"mirrorml/internal/geometry"
)

// ErrNoBackend is returned by the constructors when no inference backend was compiled in.
var ErrNoBackend = errors.New("no inference backend: build with -tags edgetpu or -tags gocv")

// Resample selects the interpolation used to fit a frame to the model input.
type Resample int

const (
	ResampleNearest Resample = iota
	ResampleBilinear
)

func (r Resample) interpolator() draw.Interpolator {
	if r == ResampleBilinear {
		return draw.BiLinear
	}
	return draw.NearestNeighbor
}

type DetectOptions struct {
	Threshold       float64
	KeepAspectRatio bool // letterbox into the model input instead of stretching
	RelativeCoord   bool // boxes in [0,1] instead of source pixels
	TopK            int
	Resample        Resample
}

type ClassifyOptions struct {
	Threshold float64
	TopK      int
}

// Detection is one face found in a frame. Box is [x1, y1, x2, y2].
type Detection struct {
	LabelID int
	Score   float64
	Box     geometry.Box
}

// Classification is one candidate label for a face crop.
// Confidence keeps the model's float32 precision.
type Classification struct {
	LabelID    int
	Confidence float32
}

// Detector finds faces in a frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image, opts DetectOptions) ([]Detection, error)
	Close() error
}

// Classifier labels a face crop.
type Classifier interface {
	Classify(ctx context.Context, img image.Image, opts ClassifyOptions) ([]Classification, error)
	Close() error
}

// BackendOptions tunes model loading.
type BackendOptions struct {
	Threads   int // interpreter threads (edgetpu)
	InputSize int // square network input side (gocv)
}
