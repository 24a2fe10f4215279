//go:build gocv && !edgetpu

package ai

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"mirrorml/internal/metrics"
)

const backendName = "gocv"

const defaultInputSize = 300

// dnnModel wraps an OpenCV DNN network. gocv.Net is not safe for concurrent use.
type dnnModel struct {
	mu     sync.Mutex
	net    gocv.Net
	size   int
	closed bool
}

func openDNN(path string, opts BackendOptions) (*dnnModel, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", path)
	}

	net := gocv.ReadNet(path, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", path)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	size := opts.InputSize
	if size <= 0 {
		size = defaultInputSize
	}
	return &dnnModel{net: net, size: size}, nil
}

// forward runs the network on an input-sized frame. Callers hold mu and close the result.
func (m *dnnModel) forward(img *image.RGBA) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	// SSD / MobileNet style input: [-1, 1] scaled RGB
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(m.size, m.size), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	return m.net.Forward(""), nil
}

func (m *dnnModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.net.Close()
}

// DNNDetector runs an SSD detection network through OpenCV.
type DNNDetector struct {
	*dnnModel
}

// NewDetector loads a detection network readable by cv::dnn::readNet.
func NewDetector(path string, opts BackendOptions) (Detector, error) {
	m, err := openDNN(path, opts)
	if err != nil {
		return nil, err
	}
	return &DNNDetector{dnnModel: m}, nil
}

func (d *DNNDetector) Detect(ctx context.Context, img image.Image, opts DetectOptions) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("detection network is closed")
	}

	start := time.Now()
	in := fitInput(img, d.size, d.size, opts.KeepAspectRatio, opts.Resample)
	output, err := d.forward(in.img)
	if err != nil {
		return nil, err
	}
	defer output.Close()

	// Process detections with output: [ batch_id, class_id, confidence, x1, y1, x2, y2 ]
	rows := output.Reshape(1, output.Total()/ssdRowSize)
	defer rows.Close()

	values := make([]float32, 0, rows.Rows()*ssdRowSize)
	for i := 0; i < rows.Rows(); i++ {
		for j := 0; j < ssdRowSize; j++ {
			values = append(values, rows.GetFloatAt(i, j))
		}
	}
	metrics.ObserveInference(backendName, time.Since(start))

	return finishDetections(decodeSSDRows(values), in, img.Bounds(), opts), nil
}

// DNNClassifier runs a classification network through OpenCV.
type DNNClassifier struct {
	*dnnModel
}

// NewClassifier loads a classification network readable by cv::dnn::readNet.
func NewClassifier(path string, opts BackendOptions) (Classifier, error) {
	m, err := openDNN(path, opts)
	if err != nil {
		return nil, err
	}
	return &DNNClassifier{dnnModel: m}, nil
}

func (c *DNNClassifier) Classify(ctx context.Context, img image.Image, opts ClassifyOptions) ([]Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("classification network is closed")
	}

	start := time.Now()
	in := fitInput(img, c.size, c.size, false, ResampleNearest)
	output, err := c.forward(in.img)
	if err != nil {
		return nil, err
	}
	defer output.Close()

	row := output.Reshape(1, 1)
	defer row.Close()

	scores := make([]float32, row.Cols())
	for i := range scores {
		scores[i] = row.GetFloatAt(0, i)
	}
	metrics.ObserveInference(backendName, time.Since(start))

	return selectClassifications(scoresToClassifications(scores), opts.Threshold, opts.TopK), nil
}
