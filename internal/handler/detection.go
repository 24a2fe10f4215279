package handler

import (
	"context"
	"errors"
	"time"

	"mirrorml/internal/dto"
	"mirrorml/internal/geometry"
	"mirrorml/internal/logger"
	"mirrorml/internal/metrics"
	"mirrorml/internal/service/ai"
	"mirrorml/internal/service/imaging"
	"mirrorml/internal/service/storage"
)

const detectionListener = "detection"

// DetectionHandler finds faces in camera frames and reports their boxes in the
// camera's own orientation.
type DetectionHandler struct {
	detector ai.Detector
	sender   ResultSender
	saver    *storage.FrameSaver
	logger   *logger.Logger
	options  ai.DetectOptions
}

func NewDetectionHandler(detector ai.Detector, sender ResultSender, saver *storage.FrameSaver, logger *logger.Logger, options ai.DetectOptions) *DetectionHandler {
	return &DetectionHandler{
		detector: detector,
		sender:   sender,
		saver:    saver,
		logger:   logger,
		options:  options,
	}
}

func (h *DetectionHandler) Name() string {
	return detectionListener
}

func (h *DetectionHandler) Handle(ctx context.Context, payload []byte) error {
	img, err := imaging.DecodeRGB(payload)
	if err != nil {
		h.logger.Info("Could not read image")
		metrics.RecordDrop(detectionListener, metrics.ReasonUndecodable)
		return nil
	}

	bounds := img.Bounds()

	if err := h.saver.Save(img); err != nil {
		h.logger.Warning("Could not save full frame: %v", err)
	}

	// our camera is sideways, so we need to compensate with clockwise rotation
	rotated := imaging.RotateClockwise90(img)

	start := time.Now()
	detections, err := h.detector.Detect(ctx, rotated, h.options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		h.logger.Error("Face detection failed: %v", err)
		metrics.RecordDrop(detectionListener, metrics.ReasonBackendError)
		return nil
	}
	h.logger.Debug("time to detect faces: %dms", time.Since(start).Milliseconds())

	origin := geometry.Center(bounds.Dx(), bounds.Dy())
	boxes := make([]geometry.Box, 0, len(detections))
	for _, d := range detections {
		boxes = append(boxes, geometry.CorrectBox(d.Box, geometry.CameraRotation, origin))
	}
	h.logger.Debug("%v", boxes)

	if err := h.sender.Send(ctx, dto.NewDetectionMessage(boxes)); err != nil {
		return err
	}
	metrics.RecordSent(detectionListener)
	return nil
}
