package handler

import (
	"context"
	"errors"
	"time"

	"mirrorml/internal/dto"
	"mirrorml/internal/logger"
	"mirrorml/internal/metrics"
	"mirrorml/internal/service/ai"
	"mirrorml/internal/service/imaging"
	"mirrorml/internal/service/storage"
)

const classificationListener = "classification"

// ClassificationHandler names the person in a face crop.
type ClassificationHandler struct {
	classifier ai.Classifier
	labels     ai.LabelTable
	sender     ResultSender
	saver      *storage.FrameSaver
	logger     *logger.Logger
	options    ai.ClassifyOptions
}

func NewClassificationHandler(classifier ai.Classifier, labels ai.LabelTable, sender ResultSender, saver *storage.FrameSaver, logger *logger.Logger, options ai.ClassifyOptions) *ClassificationHandler {
	return &ClassificationHandler{
		classifier: classifier,
		labels:     labels,
		sender:     sender,
		saver:      saver,
		logger:     logger,
		options:    options,
	}
}

func (h *ClassificationHandler) Name() string {
	return classificationListener
}

func (h *ClassificationHandler) Handle(ctx context.Context, payload []byte) error {
	img, err := imaging.DecodeRGB(payload)
	if err != nil {
		h.logger.Info("could not read image")
		metrics.RecordDrop(classificationListener, metrics.ReasonUndecodable)
		return nil
	}

	// our camera is sideways, so we need to compensate with clockwise rotation
	rotated := imaging.RotateClockwise90(img)

	h.logger.Info("CLASSIFYING")
	if err := h.saver.Save(rotated); err != nil {
		h.logger.Warning("Could not save face crop: %v", err)
	}

	start := time.Now()
	results, err := h.classifier.Classify(ctx, rotated, h.options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		h.logger.Error("Face classification failed: %v", err)
		metrics.RecordDrop(classificationListener, metrics.ReasonBackendError)
		return nil
	}
	h.logger.Debug("time to classify face: %dms", time.Since(start).Milliseconds())

	if len(results) == 0 {
		h.logger.Debug("could not classify image at threshold %f", h.options.Threshold)
		metrics.RecordDrop(classificationListener, metrics.ReasonNoResult)
		return nil
	}
	h.logger.Debug("%v", results)

	best := highestConfidence(results)
	name, ok := h.labels.Name(best.LabelID)
	if !ok {
		h.logger.Error("classified label \"%d\" not recognized", best.LabelID)
		metrics.RecordDrop(classificationListener, metrics.ReasonUnknownLabel)
		return nil
	}

	if err := h.sender.Send(ctx, dto.NewClassificationMessage(name, best.Confidence)); err != nil {
		return err
	}
	metrics.RecordSent(classificationListener)
	return nil
}

// highestConfidence returns the most confident result; the earliest wins a tie.
func highestConfidence(results []ai.Classification) ai.Classification {
	best := results[0]
	for _, r := range results[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best
}
