// Package align maps a face crop to a canonical pose using two eye landmarks.
//
// The transform is a similarity (rotation plus uniform scale) about the
// midpoint of the eye line, followed by a translation that puts the midpoint
// at (Width/2, Height*EyeYFraction). Resampling uses Catmull-Rom cubic
// interpolation.
package align

import (
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

var (
	ErrEmptyCrop           = errors.New("align: crop has zero width or height")
	ErrDegenerateLandmarks = errors.New("align: eye landmarks are coincident or not finite")
	ErrInvalidPose         = errors.New("align: invalid canonical pose")
)

// Point is a landmark in the crop's coordinate frame, with the origin at the
// crop's top-left corner.
type Point struct {
	X, Y float64
}

// Pose describes the canonical output geometry.
type Pose struct {
	Width  int
	Height int
	// EyeXFraction is the horizontal margin on each side of the eye line, as a
	// fraction of Width. The target inter-eye distance is (1-2*EyeXFraction)*Width.
	EyeXFraction float64
	// EyeYFraction places the eye line at Height*EyeYFraction.
	EyeYFraction float64
	// MinEyeDistance is the smallest separation accepted before the landmark
	// pair is considered degenerate. Zero means any non-zero separation.
	MinEyeDistance float64
}

// DefaultPose matches the 160x160 input of FaceNet-style embedding models.
func DefaultPose() Pose {
	return Pose{
		Width:          160,
		Height:         160,
		EyeXFraction:   0.35,
		EyeYFraction:   0.35,
		MinEyeDistance: 1,
	}
}

func (p Pose) validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return ErrInvalidPose
	}
	if !(p.EyeXFraction >= 0 && p.EyeXFraction < 0.5) {
		return ErrInvalidPose
	}
	if !(p.EyeYFraction > 0 && p.EyeYFraction < 1) {
		return ErrInvalidPose
	}
	if p.MinEyeDistance < 0 || math.IsNaN(p.MinEyeDistance) {
		return ErrInvalidPose
	}
	return nil
}

// Target returns the canonical position of the eye-line midpoint.
func (p Pose) Target() Point {
	return Point{X: float64(p.Width) / 2, Y: float64(p.Height) * p.EyeYFraction}
}

// EyeDistance returns the canonical distance between the two eyes.
func (p Pose) EyeDistance() float64 {
	return (1 - 2*p.EyeXFraction) * float64(p.Width)
}

// Transform returns the source-to-destination matrix that maps the given
// landmarks (crop frame) to the canonical pose. The matrix uses the layout of
// golang.org/x/image/math/f64: {a, b, tx, c, d, ty}.
func Transform(left, right Point, pose Pose) (f64.Aff3, error) {
	if err := pose.validate(); err != nil {
		return f64.Aff3{}, err
	}
	return transform(left, right, pose)
}

func transform(left, right Point, pose Pose) (f64.Aff3, error) {
	for _, v := range []float64{left.X, left.Y, right.X, right.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return f64.Aff3{}, ErrDegenerateLandmarks
		}
	}

	dx := right.X - left.X
	dy := right.Y - left.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 || dist < pose.MinEyeDistance {
		return f64.Aff3{}, ErrDegenerateLandmarks
	}

	angle := math.Atan2(dy, dx)
	scale := pose.EyeDistance() / dist
	sin, cos := math.Sincos(angle)

	// Rotate by -angle so the eye line becomes horizontal.
	a, b := scale*cos, scale*sin
	c, d := -scale*sin, scale*cos

	mx := (left.X + right.X) / 2
	my := (left.Y + right.Y) / 2
	t := pose.Target()

	return f64.Aff3{
		a, b, t.X - (a*mx + b*my),
		c, d, t.Y - (c*mx + d*my),
	}, nil
}

// Align warps crop so that left and right land on the canonical eye
// positions of pose. The result is always exactly pose.Width x pose.Height and
// crop is left untouched.
func Align(crop image.Image, left, right Point, pose Pose) (*image.RGBA, error) {
	if crop == nil || crop.Bounds().Empty() {
		return nil, ErrEmptyCrop
	}
	if err := pose.validate(); err != nil {
		return nil, err
	}

	// Landmarks are relative to the crop; draw works in absolute coordinates.
	origin := crop.Bounds().Min
	ox, oy := float64(origin.X), float64(origin.Y)
	m, err := transform(
		Point{X: left.X + ox, Y: left.Y + oy},
		Point{X: right.X + ox, Y: right.Y + oy},
		pose,
	)
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, pose.Width, pose.Height))
	draw.CatmullRom.Transform(dst, m, crop, crop.Bounds(), draw.Src, nil)
	return dst, nil
}

// Apply maps p through the affine matrix m.
func Apply(m f64.Aff3, p Point) Point {
	return Point{
		X: m[0]*p.X + m[1]*p.Y + m[2],
		Y: m[3]*p.X + m[4]*p.Y + m[5],
	}
}
