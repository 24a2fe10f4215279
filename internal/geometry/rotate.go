package geometry

import "math"

// CameraRotation is the angle that maps boxes found in the rotated frame
// back onto the sideways-mounted camera's original frame.
const CameraRotation = math.Pi / 2

// Point is a 2D point in pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Box is an axis-aligned box stored as [x1, y1, x2, y2].
type Box [4]float64

// RotateAroundPoint rotates p around origin by radians. Positive angles turn
// clockwise in screen coordinates (y grows downwards).
func RotateAroundPoint(p Point, radians float64, origin Point) Point {
	adjustedX := p.X - origin.X
	adjustedY := p.Y - origin.Y
	cosRad := math.Cos(radians)
	sinRad := math.Sin(radians)

	return Point{
		X: origin.X + cosRad*adjustedX + sinRad*adjustedY,
		Y: origin.Y + -sinRad*adjustedX + cosRad*adjustedY,
	}
}

// CorrectBox rotates both corners of box and re-pairs them as
// [qx1, qy2, qx2, qy1]. Plain corner ordering would yield the top right
// corner first; consumers expect the top left one.
func CorrectBox(box Box, radians float64, origin Point) Box {
	q1 := RotateAroundPoint(Point{X: box[0], Y: box[1]}, radians, origin)
	q2 := RotateAroundPoint(Point{X: box[2], Y: box[3]}, radians, origin)

	return Box{q1.X, q2.Y, q2.X, q1.Y}
}

// Center returns the centre of a width x height frame.
func Center(width, height int) Point {
	return Point{X: float64(width) / 2, Y: float64(height) / 2}
}
