// Package models contains domain models for medguardian.
package models

import "time"

// BoundingBox is an axis-aligned detection box in pixel coordinates.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the box width. Negative for degenerate boxes.
func (b BoundingBox) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height. Negative for degenerate boxes.
func (b BoundingBox) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area, or 0 for degenerate boxes.
func (b BoundingBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// FrameDimensions describes the camera frame a box was detected in.
type FrameDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Frame is one camera frame submitted to a verification session.
// Sequence numbers must be monotonically increasing per session; out-of-order
// frames are dropped, not processed.
type Frame struct {
	Sequence   uint64    `json:"sequence"`
	CapturedAt time.Time `json:"captured_at"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Data       []byte    `json:"-"`
}

// Dimensions returns the frame dimensions.
func (f Frame) Dimensions() FrameDimensions {
	return FrameDimensions{Width: f.Width, Height: f.Height}
}

// FrameObservation is one evaluated camera frame within a session. Absent
// signals are nil; an absent signal is excluded from fusion rather than
// treated as zero. Observations live only as long as the stability window.
type FrameObservation struct {
	CapturedAt           time.Time    `json:"captured_at"`
	DetectorConfidence   *float64     `json:"detector_confidence,omitempty"`
	DetectorBBox         *BoundingBox `json:"detector_bbox,omitempty"`
	FeatureMatchCount    *int         `json:"feature_match_count,omitempty"`
	HistogramCorrelation *float64     `json:"histogram_correlation,omitempty"`
	BarcodeValue         *string      `json:"barcode_value,omitempty"`
	GeometryScore        float64      `json:"geometry_score"`
}

// ConfidenceBreakdown is the output of confidence fusion for one frame.
type ConfidenceBreakdown struct {
	FinalConfidence float64                  `json:"final_confidence"`
	PrimaryMethod   VerifyMethod             `json:"primary_method"`
	PerSignalScores map[VerifyMethod]float64 `json:"per_signal_scores,omitempty"`
}
