package handler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorml/internal/dto"
	"mirrorml/internal/geometry"
	"mirrorml/internal/logger"
	"mirrorml/internal/service/ai"
	"mirrorml/internal/service/storage"
)

var red = color.RGBA{R: 255, A: 255}

type recorder struct {
	mu   sync.Mutex
	msgs []any
	err  error
}

func (r *recorder) Send(_ context.Context, msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) sent() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.msgs...)
}

type fakeDetector struct {
	detections []ai.Detection
	err        error
	seen       image.Image
	options    ai.DetectOptions
}

func (d *fakeDetector) Detect(_ context.Context, img image.Image, opts ai.DetectOptions) ([]ai.Detection, error) {
	d.seen = img
	d.options = opts
	return d.detections, d.err
}

func (d *fakeDetector) Close() error { return nil }

type fakeClassifier struct {
	results []ai.Classification
	err     error
	calls   int
}

func (c *fakeClassifier) Classify(_ context.Context, _ image.Image, _ ai.ClassifyOptions) ([]ai.Classification, error) {
	c.calls++
	return c.results, c.err
}

func (c *fakeClassifier) Close() error { return nil }

func jpegFrame(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, red)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func testLogger() (*logger.Logger, *bytes.Buffer) {
	var out bytes.Buffer
	return logger.New(&out, &out, logger.LevelDebug), &out
}

func isReddish(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 > 200 && g>>8 < 60 && b>>8 < 60
}

func isDark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 < 40 && g>>8 < 40 && b>>8 < 40
}

func readJPEG(t *testing.T, path string) image.Image {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	return img
}

var detectOptions = ai.DetectOptions{
	Threshold:       0.95,
	KeepAspectRatio: true,
	TopK:            3,
	Resample:        ai.ResampleBilinear,
}

func TestDetectionHandler_CorrectsBoxes(t *testing.T) {
	fullPath := filepath.Join(t.TempDir(), "full.jpg")
	detector := &fakeDetector{detections: []ai.Detection{{Score: 0.99, Box: geometry.Box{10, 20, 30, 40}}}}
	sender := &recorder{}
	log, _ := testLogger()
	h := NewDetectionHandler(detector, sender, storage.NewFrameSaver(fullPath), log, detectOptions)

	require.NoError(t, h.Handle(context.Background(), jpegFrame(t, 100, 200)))

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	msg, ok := msgs[0].(dto.DetectionMessage)
	require.True(t, ok)
	require.Len(t, msg.Detection, 1)

	want := geometry.Box{-30, 120, -10, 140}
	for i := range want {
		assert.InDelta(t, want[i], msg.Detection[0].Box[i], 1e-9)
	}
	assert.Equal(t, detectOptions, detector.options)

	// The detector sees the rotated frame, the saved frame is the original.
	require.NotNil(t, detector.seen)
	assert.Equal(t, image.Rect(0, 0, 100, 200), detector.seen.Bounds())
	assert.True(t, isDark(detector.seen.At(50, 10)))
	assert.True(t, isReddish(detector.seen.At(50, 100)))

	saved := readJPEG(t, fullPath)
	assert.True(t, isReddish(saved.At(50, 10)))
}

func TestDetectionHandler_NoFacesStillSends(t *testing.T) {
	sender := &recorder{}
	log, _ := testLogger()
	h := NewDetectionHandler(&fakeDetector{}, sender, storage.NewFrameSaver(""), log, detectOptions)

	require.NoError(t, h.Handle(context.Background(), jpegFrame(t, 20, 20)))

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].(dto.DetectionMessage).Detection)
}

func TestDetectionHandler_MalformedImage(t *testing.T) {
	detector := &fakeDetector{}
	sender := &recorder{}
	log, out := testLogger()
	h := NewDetectionHandler(detector, sender, storage.NewFrameSaver(""), log, detectOptions)

	require.NoError(t, h.Handle(context.Background(), []byte("garbage")))

	assert.Empty(t, sender.sent())
	assert.Nil(t, detector.seen)
	assert.Contains(t, out.String(), "Could not read image")
}

func TestDetectionHandler_BackendErrorSkipsFrame(t *testing.T) {
	sender := &recorder{}
	log, out := testLogger()
	h := NewDetectionHandler(&fakeDetector{err: errors.New("tpu on fire")}, sender, storage.NewFrameSaver(""), log, detectOptions)

	require.NoError(t, h.Handle(context.Background(), jpegFrame(t, 20, 20)))

	assert.Empty(t, sender.sent())
	assert.Contains(t, out.String(), "tpu on fire")
}

func TestDetectionHandler_SendErrorEndsLoop(t *testing.T) {
	boom := errors.New("boom")
	log, _ := testLogger()
	h := NewDetectionHandler(&fakeDetector{}, &recorder{err: boom}, storage.NewFrameSaver(""), log, detectOptions)

	err := h.Handle(context.Background(), jpegFrame(t, 20, 20))
	assert.ErrorIs(t, err, boom)
}

var classifyOptions = ai.ClassifyOptions{Threshold: 0.6, TopK: 3}

func newClassificationHandler(t *testing.T, classifier ai.Classifier, sender ResultSender, cropPath string) (*ClassificationHandler, *bytes.Buffer) {
	t.Helper()

	log, out := testLogger()
	labels := ai.NewLabelTable(map[int]string{0: "adi", 1: "brent"})
	return NewClassificationHandler(classifier, labels, sender, storage.NewFrameSaver(cropPath), log, classifyOptions), out
}

func TestClassificationHandler_SendsBestLabel(t *testing.T) {
	cropPath := filepath.Join(t.TempDir(), "crop.jpg")
	sender := &recorder{}
	h, _ := newClassificationHandler(t, &fakeClassifier{results: []ai.Classification{{LabelID: 0, Confidence: 0.9}, {LabelID: 1, Confidence: 0.3}}}, sender, cropPath)

	require.NoError(t, h.Handle(context.Background(), jpegFrame(t, 100, 200)))

	assert.Equal(t, []any{dto.ClassificationMessage{Classification: "adi", Confidence: "0.9"}}, sender.sent())

	// The crop is saved after rotation.
	crop := readJPEG(t, cropPath)
	assert.True(t, isDark(crop.At(50, 10)))
}

func TestClassificationHandler_FormatsFloat32Scores(t *testing.T) {
	tests := []struct {
		score float32
		want  string
	}{
		{0.9, "0.9"},
		{0.95, "0.95"},
		{float32(230) / 255, "0.9019608"},
	}

	for _, tt := range tests {
		sender := &recorder{}
		h, _ := newClassificationHandler(t, &fakeClassifier{results: []ai.Classification{{LabelID: 1, Confidence: tt.score}}}, sender, "")

		require.NoError(t, h.Handle(context.Background(), jpegFrame(t, 20, 20)))

		assert.Equal(t, []any{dto.ClassificationMessage{Classification: "brent", Confidence: tt.want}}, sender.sent(), "score %v", tt.score)
	}
}

func TestClassificationHandler_PicksHighestRegardlessOfOrder(t *testing.T) {
	sender := &recorder{}
	h, _ := newClassificationHandler(t, &fakeClassifier{results: []ai.Classification{{LabelID: 0, Confidence: 0.61}, {LabelID: 1, Confidence: 1}}}, sender, "")

	require.NoError(t, h.Handle(context.Background(), jpegFrame(t, 20, 20)))

	assert.Equal(t, []any{dto.ClassificationMessage{Classification: "brent", Confidence: "1.0"}}, sender.sent())
}

func TestClassificationHandler_UnknownLabel(t *testing.T) {
	sender := &recorder{}
	h, out := newClassificationHandler(t, &fakeClassifier{results: []ai.Classification{{LabelID: 5, Confidence: 0.99}}}, sender, "")

	require.NoError(t, h.Handle(context.Background(), jpegFrame(t, 20, 20)))

	assert.Empty(t, sender.sent())
	assert.Contains(t, out.String(), `classified label "5" not recognized`)
	assert.Contains(t, out.String(), "ERROR")
}

func TestClassificationHandler_NothingAboveThreshold(t *testing.T) {
	sender := &recorder{}
	h, out := newClassificationHandler(t, &fakeClassifier{}, sender, "")

	require.NoError(t, h.Handle(context.Background(), jpegFrame(t, 20, 20)))

	assert.Empty(t, sender.sent())
	assert.Contains(t, out.String(), "could not classify image at threshold 0.600000")
}

func TestClassificationHandler_MalformedImage(t *testing.T) {
	classifier := &fakeClassifier{}
	sender := &recorder{}
	h, out := newClassificationHandler(t, classifier, sender, "")

	require.NoError(t, h.Handle(context.Background(), []byte{0xFF, 0xD8, 0x01}))

	assert.Empty(t, sender.sent())
	assert.Zero(t, classifier.calls)
	assert.Contains(t, out.String(), "could not read image")
}

func TestHighestConfidence_FirstWinsTie(t *testing.T) {
	best := highestConfidence([]ai.Classification{{LabelID: 1, Confidence: 0.7}, {LabelID: 0, Confidence: 0.7}, {LabelID: 2, Confidence: 0.5}})
	assert.Equal(t, ai.Classification{LabelID: 1, Confidence: 0.7}, best)
}

func TestRelayHandler(t *testing.T) {
	log, out := testLogger()
	h := NewRelayHandler(log)

	require.NoError(t, h.Handle(context.Background(), []byte("hello")))
	assert.Contains(t, out.String(), "Processing says: hello")

	require.NoError(t, h.Handle(context.Background(), []byte{0xff, 0xfe}))
	assert.Contains(t, out.String(), "could not read logs")
}
