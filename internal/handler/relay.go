package handler

import (
	"context"
	"unicode/utf8"

	"mirrorml/internal/logger"
	"mirrorml/internal/metrics"
)

const relayListener = "relay"

// RelayHandler writes diagnostic text from the frame producer into our own log.
type RelayHandler struct {
	logger *logger.Logger
}

func NewRelayHandler(logger *logger.Logger) *RelayHandler {
	return &RelayHandler{logger: logger}
}

func (h *RelayHandler) Name() string {
	return relayListener
}

func (h *RelayHandler) Handle(_ context.Context, payload []byte) error {
	if !utf8.Valid(payload) {
		h.logger.Info("could not read logs")
		metrics.RecordDrop(relayListener, metrics.ReasonUndecodable)
		return nil
	}

	h.logger.Info("Processing says: %s", payload)
	return nil
}
