package dto

import (
	"encoding/json"

	"mirrorml/internal/geometry"
)

// BoxResult is one corrected face box in camera-frame pixels.
type BoxResult struct {
	Box geometry.Box `json:"box"`
}

// DetectionMessage is sent downstream for every decoded detection frame.
type DetectionMessage struct {
	Detection []BoxResult `json:"detection"`
}

// NewDetectionMessage wraps boxes into a message, keeping their order.
func NewDetectionMessage(boxes []geometry.Box) DetectionMessage {
	results := make([]BoxResult, 0, len(boxes))
	for _, box := range boxes {
		results = append(results, BoxResult{Box: box})
	}
	return DetectionMessage{Detection: results}
}

// MarshalJSON always emits a list, so a frame without faces reads {"detection": []}.
func (m DetectionMessage) MarshalJSON() ([]byte, error) {
	type Alias DetectionMessage
	if m.Detection == nil {
		m.Detection = []BoxResult{}
	}
	return json.Marshal(Alias(m))
}
