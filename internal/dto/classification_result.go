package dto

import (
	"math"
	"strconv"
	"strings"
)

// ClassificationMessage names the most confident match for a face crop.
// Confidence is a string on the wire.
type ClassificationMessage struct {
	Classification string `json:"classification"`
	Confidence     string `json:"confidence"`
}

// NewClassificationMessage builds the message for a resolved label.
func NewClassificationMessage(name string, confidence float32) ClassificationMessage {
	return ClassificationMessage{
		Classification: name,
		Confidence:     FormatConfidence(confidence),
	}
}

// FormatConfidence renders v as the shortest decimal that round-trips through
// float32, always with a fractional part or an exponent:
// 0.9 -> "0.9", 1 -> "1.0", 1e-05 -> "1e-05".
func FormatConfidence(v float32) string {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	abs := math.Abs(f)
	if abs != 0 && (abs < float64(float32(1e-4)) || abs >= float64(float32(1e16))) {
		return strconv.FormatFloat(f, 'e', -1, 32)
	}

	s := strconv.FormatFloat(f, 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
