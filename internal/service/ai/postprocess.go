package ai

import (
	"cmp"
	"image"
	"slices"

	"mirrorml/internal/geometry"
)

// ssdRowSize is the width of an OpenCV DNN detection row:
// [batch, class, confidence, x1, y1, x2, y2].
const ssdRowSize = 7

// decodeSSD reads TFLite detection postprocess outputs. boxes holds
// [ymin, xmin, ymax, xmax] per detection; returned boxes are [x1, y1, x2, y2]
// relative to the model input.
func decodeSSD(boxes, classes, scores []float32, count int) []Detection {
	count = min(count, len(scores), len(classes), len(boxes)/4)
	out := make([]Detection, 0, count)
	for i := 0; i < count; i++ {
		b := boxes[i*4 : i*4+4]
		out = append(out, Detection{
			LabelID: int(classes[i]),
			Score:   float64(scores[i]),
			Box:     geometry.Box{float64(b[1]), float64(b[0]), float64(b[3]), float64(b[2])},
		})
	}
	return out
}

// decodeSSDRows reads flattened OpenCV DNN detection rows.
func decodeSSDRows(values []float32) []Detection {
	out := make([]Detection, 0, len(values)/ssdRowSize)
	for i := 0; i+ssdRowSize <= len(values); i += ssdRowSize {
		row := values[i : i+ssdRowSize]
		out = append(out, Detection{
			LabelID: int(row[1]),
			Score:   float64(row[2]),
			Box:     geometry.Box{float64(row[3]), float64(row[4]), float64(row[5]), float64(row[6])},
		})
	}
	return out
}

// dequantize converts quantized tensor values to real scores.
func dequantize(q []uint8, scale float64, zeroPoint int) []float32 {
	out := make([]float32, len(q))
	for i, v := range q {
		out[i] = float32(scale * float64(int(v)-zeroPoint))
	}
	return out
}

// scoresToClassifications turns a per-label score vector into candidates.
func scoresToClassifications(scores []float32) []Classification {
	out := make([]Classification, len(scores))
	for i, s := range scores {
		out[i] = Classification{LabelID: i, Confidence: s}
	}
	return out
}

// finishDetections filters and orders raw model detections and maps their
// boxes from the model input back onto the source frame.
func finishDetections(raw []Detection, in modelInput, source image.Rectangle, opts DetectOptions) []Detection {
	selected := selectDetections(raw, opts.Threshold, opts.TopK)
	for i := range selected {
		selected[i].Box = toSourceBox(selected[i].Box, in, source, opts)
	}
	return selected
}

// toSourceBox undoes the letterbox and, unless RelativeCoord, scales to source pixels.
func toSourceBox(box geometry.Box, in modelInput, source image.Rectangle, opts DetectOptions) geometry.Box {
	if opts.KeepAspectRatio {
		box[0] = clamp01(box[0] / in.ratioX)
		box[1] = clamp01(box[1] / in.ratioY)
		box[2] = clamp01(box[2] / in.ratioX)
		box[3] = clamp01(box[3] / in.ratioY)
	}
	if opts.RelativeCoord {
		return box
	}

	w, h := float64(source.Dx()), float64(source.Dy())
	return geometry.Box{box[0] * w, box[1] * h, box[2] * w, box[3] * h}
}

// selectDetections keeps scores >= threshold, highest first, at most topK.
// Equal scores keep model order.
func selectDetections(ds []Detection, threshold float64, topK int) []Detection {
	out := make([]Detection, 0, len(ds))
	for _, d := range ds {
		if d.Score >= threshold {
			out = append(out, d)
		}
	}
	slices.SortStableFunc(out, func(a, b Detection) int {
		return compareDesc(a.Score, b.Score)
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// selectClassifications applies the same rule as selectDetections, comparing
// in float32.
func selectClassifications(cs []Classification, threshold float64, topK int) []Classification {
	limit := float32(threshold)
	out := make([]Classification, 0, len(cs))
	for _, c := range cs {
		if c.Confidence >= limit {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b Classification) int {
		return compareDesc(a.Confidence, b.Confidence)
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func compareDesc[T cmp.Ordered](a, b T) int {
	return cmp.Compare(b, a)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
