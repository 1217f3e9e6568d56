// Package signals defines the external verification collaborators and the
// per-frame evaluation pipeline that fans out to them.
package signals

import (
	"context"

	"github.com/adithyakrish0/medguardian/pkg/models"
)

// Detection is one localized object candidate from the detector.
type Detection struct {
	BBox       models.BoundingBox
	Confidence float64
	Label      string
}

// ObjectDetector localizes medication containers in a frame. Implementations
// may be slow (model inference); the pipeline never calls them while holding
// session state.
type ObjectDetector interface {
	Detect(ctx context.Context, frame models.Frame) ([]Detection, error)
}

// FeatureMatcher counts descriptor matches between the medication's stored
// reference image and the frame.
type FeatureMatcher interface {
	Match(ctx context.Context, medicationID string, frame models.Frame) (int, error)
}

// HistogramComparator correlates the frame's color distribution against the
// medication's reference histogram. Correlation is in [-1, 1].
type HistogramComparator interface {
	Compare(ctx context.Context, medicationID string, frame models.Frame) (float64, error)
}

// BarcodeReader scans the frame for a barcode. A nil result means no barcode
// was visible; the caller compares a found value against the medication's
// expected barcode for exact equality.
type BarcodeReader interface {
	Scan(ctx context.Context, frame models.Frame) (*string, error)
}

// OCRVerifier reads label text from the frame and scores it against the
// expected medication name. Optional; a nil verifier simply leaves the OCR
// signal absent.
type OCRVerifier interface {
	Verify(ctx context.Context, medicationID string, frame models.Frame) (score float64, isCorrect bool, err error)
}

// ReferenceProvider supplies per-medication reference data: the expected
// barcode and the reference image's aspect ratio. Backed by the medication
// registry.
type ReferenceProvider interface {
	ExpectedBarcode(medicationID string) (string, bool)
	AspectRatio(medicationID string) *float64
}
