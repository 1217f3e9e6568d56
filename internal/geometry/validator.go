// Package geometry validates detected bounding boxes against frame dimensions
// and optional reference aspect ratios.
package geometry

import (
	"math"

	"github.com/adithyakrish0/medguardian/pkg/models"
)

// Framing bounds as fractions of frame area. A box outside these bounds is
// either background clutter or the object shoved into the lens.
const (
	MinAreaRatio     = 0.05
	MaxAreaRatio     = 0.80
	OptimalAreaRatio = 0.20

	// Relative deviation from the reference aspect ratio above which the
	// detection is rejected as a different object shape.
	MaxAspectDeviation = 0.50
)

// Result is the outcome of a geometry check for one detection.
type Result struct {
	Passed bool
	Score  float64
	Reason string
}

// Validate checks a bounding box against the frame it was detected in.
// refAspectRatio is the width/height ratio of the stored reference image;
// nil skips the aspect check. Validate is pure and never panics on
// degenerate input.
func Validate(bbox models.BoundingBox, frame models.FrameDimensions, refAspectRatio *float64) Result {
	boxArea := bbox.Area()
	frameArea := float64(frame.Width) * float64(frame.Height)
	if boxArea <= 0 || frameArea <= 0 {
		return Result{Passed: false, Score: 0.0, Reason: "invalid bounding box"}
	}

	areaRatio := boxArea / frameArea
	if areaRatio < MinAreaRatio {
		return Result{Passed: false, Score: 0.3, Reason: "object too small"}
	}
	if areaRatio > MaxAreaRatio {
		return Result{Passed: false, Score: 0.3, Reason: "object too large"}
	}

	if refAspectRatio != nil && *refAspectRatio > 0 {
		detectedRatio := bbox.Width() / bbox.Height()
		deviation := math.Abs(detectedRatio-*refAspectRatio) / *refAspectRatio
		if deviation > MaxAspectDeviation {
			return Result{Passed: false, Score: 0.4, Reason: "aspect ratio mismatch"}
		}
	}

	return Result{Passed: true, Score: framingScore(areaRatio), Reason: "ok"}
}

// framingScore maps an in-bounds area ratio onto [0.5, 1.0], peaking at the
// optimal framing ratio and decaying linearly toward either bound.
func framingScore(areaRatio float64) float64 {
	var deviation float64
	if areaRatio <= OptimalAreaRatio {
		deviation = (OptimalAreaRatio - areaRatio) / (OptimalAreaRatio - MinAreaRatio)
	} else {
		deviation = (areaRatio - OptimalAreaRatio) / (MaxAreaRatio - OptimalAreaRatio)
	}
	score := 1.0 - 0.5*deviation
	return math.Max(0.5, math.Min(1.0, score))
}
