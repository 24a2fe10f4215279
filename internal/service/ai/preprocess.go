package ai

import (
	"image"

	"golang.org/x/image/draw"
)

// modelInput is a frame resized to a model's input tensor. ratioX and ratioY
// are the fraction of the input covered by the frame (1 unless letterboxed).
type modelInput struct {
	img    *image.RGBA
	ratioX float64
	ratioY float64
}

// fitInput scales src into a width x height canvas. With keepAspect the frame
// keeps its proportions, sits in the top-left corner and the rest is black.
func fitInput(src image.Image, width, height int, keepAspect bool, resample Resample) modelInput {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	b := src.Bounds()
	if b.Empty() {
		return modelInput{img: dst, ratioX: 1, ratioY: 1}
	}

	if !keepAspect {
		resample.interpolator().Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		return modelInput{img: dst, ratioX: 1, ratioY: 1}
	}

	scale := min(float64(width)/float64(b.Dx()), float64(height)/float64(b.Dy()))
	w := max(int(float64(b.Dx())*scale), 1)
	h := max(int(float64(b.Dy())*scale), 1)
	resample.interpolator().Scale(dst, image.Rect(0, 0, w, h), src, b, draw.Src, nil)

	return modelInput{
		img:    dst,
		ratioX: float64(w) / float64(width),
		ratioY: float64(h) / float64(height),
	}
}

// rgbBytes packs img as interleaved 8-bit RGB, row major.
func rgbBytes(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			out = append(out, row[i], row[i+1], row[i+2])
		}
	}
	return out
}
