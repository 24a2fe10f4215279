//go:build edgetpu

package ai

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates"
	"github.com/mattn/go-tflite/delegates/edgetpu"

	"mirrorml/internal/metrics"
)

const backendName = "edgetpu"

// tpuModel owns one interpreter bound to an Edge TPU. Interpreters are not
// safe for concurrent use, so every call takes mu.
type tpuModel struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	delegate    delegates.Delegater
	interpreter *tflite.Interpreter
	width       int
	height      int
}

func openTPUModel(path string, opts BackendOptions) (*tpuModel, error) {
	m := &tpuModel{}

	m.model = tflite.NewModelFromFile(path)
	if m.model == nil {
		return nil, fmt.Errorf("cannot load model %s", path)
	}

	m.options = tflite.NewInterpreterOptions()
	if opts.Threads > 0 {
		m.options.SetNumThread(opts.Threads)
	}

	devices, err := edgetpu.DeviceList()
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to list Edge TPU devices: %w", err)
	}
	if len(devices) == 0 {
		m.Close()
		return nil, errors.New("no Edge TPU device found")
	}

	m.delegate = edgetpu.New(devices[0])
	if m.delegate == nil {
		m.Close()
		return nil, errors.New("failed to create Edge TPU delegate")
	}
	m.options.AddDelegate(m.delegate)

	m.interpreter = tflite.NewInterpreter(m.model, m.options)
	if m.interpreter == nil {
		m.Close()
		return nil, fmt.Errorf("cannot create interpreter for %s", path)
	}
	if status := m.interpreter.AllocateTensors(); status != tflite.OK {
		m.Close()
		return nil, fmt.Errorf("failed to allocate tensors for %s", path)
	}

	input := m.interpreter.GetInputTensor(0)
	if input.Type() != tflite.UInt8 {
		m.Close()
		return nil, fmt.Errorf("model %s: unsupported input type %v", path, input.Type())
	}
	m.height = input.Dim(1)
	m.width = input.Dim(2)

	return m, nil
}

// invoke runs the interpreter on img, which must match the input size. Callers hold mu.
func (m *tpuModel) invoke(img *image.RGBA) error {
	input := m.interpreter.GetInputTensor(0)
	if status := input.CopyFromBuffer(rgbBytes(img)); status != tflite.OK {
		return errors.New("failed to copy input tensor")
	}
	if status := m.interpreter.Invoke(); status != tflite.OK {
		return errors.New("inference failed")
	}
	return nil
}

func (m *tpuModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.delegate != nil {
		m.delegate.Delete()
		m.delegate = nil
	}
	if m.options != nil {
		m.options.Delete()
		m.options = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
	return nil
}

// TPUDetector runs an SSD face detection model compiled for the Edge TPU.
type TPUDetector struct {
	*tpuModel
}

// NewDetector loads an Edge TPU detection model.
func NewDetector(path string, opts BackendOptions) (Detector, error) {
	m, err := openTPUModel(path, opts)
	if err != nil {
		return nil, err
	}
	if m.interpreter.GetOutputTensorCount() < 4 {
		m.Close()
		return nil, fmt.Errorf("model %s is not an SSD detection model", path)
	}
	return &TPUDetector{tpuModel: m}, nil
}

func (d *TPUDetector) Detect(ctx context.Context, img image.Image, opts DetectOptions) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interpreter == nil {
		return nil, errors.New("detector is closed")
	}

	start := time.Now()
	in := fitInput(img, d.width, d.height, opts.KeepAspectRatio, opts.Resample)
	if err := d.invoke(in.img); err != nil {
		return nil, err
	}

	boxes := d.interpreter.GetOutputTensor(0).Float32s()
	classes := d.interpreter.GetOutputTensor(1).Float32s()
	scores := d.interpreter.GetOutputTensor(2).Float32s()
	count := d.interpreter.GetOutputTensor(3).Float32s()
	if len(count) == 0 {
		return nil, errors.New("detection model returned no count")
	}

	raw := decodeSSD(boxes, classes, scores, int(count[0]))
	metrics.ObserveInference(backendName, time.Since(start))

	return finishDetections(raw, in, img.Bounds(), opts), nil
}

// TPUClassifier runs an image classification model compiled for the Edge TPU.
type TPUClassifier struct {
	*tpuModel
}

// NewClassifier loads an Edge TPU classification model.
func NewClassifier(path string, opts BackendOptions) (Classifier, error) {
	m, err := openTPUModel(path, opts)
	if err != nil {
		return nil, err
	}
	return &TPUClassifier{tpuModel: m}, nil
}

func (c *TPUClassifier) Classify(ctx context.Context, img image.Image, opts ClassifyOptions) ([]Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interpreter == nil {
		return nil, errors.New("classifier is closed")
	}

	start := time.Now()
	in := fitInput(img, c.width, c.height, false, ResampleNearest)
	if err := c.invoke(in.img); err != nil {
		return nil, err
	}

	output := c.interpreter.GetOutputTensor(0)
	var scores []float32
	switch output.Type() {
	case tflite.UInt8:
		params := output.QuantizationParams()
		scores = dequantize(output.UInt8s(), params.Scale, params.ZeroPoint)
	case tflite.Float32:
		scores = append(scores, output.Float32s()...)
	default:
		return nil, fmt.Errorf("unsupported output type %v", output.Type())
	}
	metrics.ObserveInference(backendName, time.Since(start))

	return selectClassifications(scoresToClassifications(scores), opts.Threshold, opts.TopK), nil
}
