// Package imaging decodes camera frames and applies the fixed rotation that
// compensates for the sideways camera mount.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// Frame formats accepted from the camera producer.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// JPEGQuality is used for every diagnostic frame written to disk.
const JPEGQuality = 90

// ErrUndecodable is returned when a payload is not an image in any known format.
var ErrUndecodable = errors.New("could not decode image")

// DecodeRGB decodes data and normalises it to an opaque RGB raster with a zero origin.
func DecodeRGB(data []byte) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUndecodable)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	return ToRGB(img), nil
}

// ToRGB flattens img onto an opaque black canvas of the same size.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// RotateClockwise90 turns img a quarter turn clockwise around its centre while
// keeping the canvas size.
// Corners that fall outside the canvas are cut and uncovered area is black.
func RotateClockwise90(img *image.RGBA) *image.RGBA {
	src := img
	if src.Bounds().Min != (image.Point{}) {
		src = ToRGB(img)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	cx, cy := float64(w)/2, float64(h)/2
	// (x, y) -> (cx + cy - y, x - cx + cy)
	s2d := f64.Aff3{
		0, -1, cx + cy,
		1, 0, cy - cx,
	}
	draw.NearestNeighbor.Transform(dst, s2d, src, b, draw.Src, nil)

	return dst
}

// EncodeJPEG writes img as a JPEG to w.
func EncodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
}
