// Package signals defines the external verification collaborators and the
// per-frame evaluation pipeline that fans out to them.
package signals

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/adithyakrish0/medguardian/internal/fusion"
	"github.com/adithyakrish0/medguardian/internal/geometry"
	"github.com/adithyakrish0/medguardian/pkg/models"
)

// Embedding-signal shaping. Descriptor match counts saturate at
// EmbeddingMatchTarget, and fewer than MinFeatureMatches reads as a match
// against the wrong object.
const (
	EmbeddingMatchTarget = 30
	MinFeatureMatches    = 10

	// Blend of descriptor matches vs histogram correlation inside the
	// embedding signal, when both are present.
	featureBlendWeight   = 0.6
	histogramBlendWeight = 0.4
)

// CollaboratorError wraps a failure from any signal collaborator. The session
// manager converts it into a detection-error escalation; the underlying
// detail is preserved for the audit trail only.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Pipeline evaluates frames by fanning out to the collaborators in parallel
// and folding their outputs into a fusion input. It holds no mutable state
// and is safe for concurrent use by many sessions.
type Pipeline struct {
	detector  ObjectDetector
	matcher   FeatureMatcher
	histogram HistogramComparator
	barcode   BarcodeReader
	ocr       OCRVerifier
	refs      ReferenceProvider
}

// NewPipeline creates a Pipeline. detector, barcode and refs are required;
// matcher, histogram and ocr may be nil, leaving their signals absent.
func NewPipeline(detector ObjectDetector, matcher FeatureMatcher, histogram HistogramComparator, barcode BarcodeReader, ocr OCRVerifier, refs ReferenceProvider) *Pipeline {
	return &Pipeline{
		detector:  detector,
		matcher:   matcher,
		histogram: histogram,
		barcode:   barcode,
		ocr:       ocr,
		refs:      refs,
	}
}

// Evaluation is the pipeline output for one frame.
type Evaluation struct {
	Observation models.FrameObservation
	Breakdown   models.ConfidenceBreakdown
}

// Evaluate runs all collaborators against the frame and fuses their outputs.
// It blocks for as long as the slowest collaborator; callers must not invoke
// it under a session lock. A collaborator error aborts the evaluation with a
// *CollaboratorError.
func (p *Pipeline) Evaluate(ctx context.Context, medicationID string, frame models.Frame) (*Evaluation, error) {
	var (
		mu           sync.Mutex
		detections   []Detection
		matchCount   *int
		correlation  *float64
		barcodeValue *string
		ocrSignal    *fusion.MatchSignal
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dets, err := p.detector.Detect(gctx, frame)
		if err != nil {
			return &CollaboratorError{Collaborator: "detector", Err: err}
		}
		mu.Lock()
		detections = dets
		mu.Unlock()
		return nil
	})

	if p.matcher != nil {
		g.Go(func() error {
			count, err := p.matcher.Match(gctx, medicationID, frame)
			if err != nil {
				return &CollaboratorError{Collaborator: "feature_matcher", Err: err}
			}
			mu.Lock()
			matchCount = &count
			mu.Unlock()
			return nil
		})
	}

	if p.histogram != nil {
		g.Go(func() error {
			corr, err := p.histogram.Compare(gctx, medicationID, frame)
			if err != nil {
				return &CollaboratorError{Collaborator: "histogram", Err: err}
			}
			mu.Lock()
			correlation = &corr
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		value, err := p.barcode.Scan(gctx, frame)
		if err != nil {
			return &CollaboratorError{Collaborator: "barcode", Err: err}
		}
		mu.Lock()
		barcodeValue = value
		mu.Unlock()
		return nil
	})

	if p.ocr != nil {
		g.Go(func() error {
			score, correct, err := p.ocr.Verify(gctx, medicationID, frame)
			if err != nil {
				return &CollaboratorError{Collaborator: "ocr", Err: err}
			}
			mu.Lock()
			ocrSignal = &fusion.MatchSignal{Score: score, IsCorrect: correct}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	obs := models.FrameObservation{
		CapturedAt:           frame.CapturedAt,
		FeatureMatchCount:    matchCount,
		HistogramCorrelation: correlation,
		BarcodeValue:         barcodeValue,
	}
	in := fusion.Input{OCR: ocrSignal}

	if best := bestDetection(detections); best != nil {
		obs.DetectorConfidence = &best.Confidence
		box := best.BBox
		obs.DetectorBBox = &box

		geo := geometry.Validate(best.BBox, frame.Dimensions(), p.refs.AspectRatio(medicationID))
		obs.GeometryScore = geo.Score

		in.DetectorConfidence = &best.Confidence
		score := geo.Score
		in.GeometryScore = &score
		if !geo.Passed {
			log.Debug().
				Str("medicationId", medicationID).
				Str("reason", geo.Reason).
				Float64("score", geo.Score).
				Msg("Geometry check failed for best detection")
		}
	}

	if barcodeValue != nil {
		if expected, ok := p.refs.ExpectedBarcode(medicationID); ok {
			match := *barcodeValue == expected
			in.BarcodeMatch = &match
		}
	}

	if sig := embeddingSignal(matchCount, correlation); sig != nil {
		in.Embedding = sig
	}

	breakdown := fusion.Fuse(in)

	log.Debug().
		Str("medicationId", medicationID).
		Uint64("sequence", frame.Sequence).
		Float64("confidence", breakdown.FinalConfidence).
		Str("method", string(breakdown.PrimaryMethod)).
		Dur("elapsed", time.Since(start)).
		Msg("Frame evaluated")

	return &Evaluation{Observation: obs, Breakdown: breakdown}, nil
}

// bestDetection returns the highest-confidence detection, or nil.
func bestDetection(detections []Detection) *Detection {
	var best *Detection
	for i := range detections {
		if best == nil || detections[i].Confidence > best.Confidence {
			best = &detections[i]
		}
	}
	return best
}

// embeddingSignal folds descriptor matches and histogram correlation into
// the fused embedding signal. Both absent yields an absent signal.
func embeddingSignal(matchCount *int, correlation *float64) *fusion.MatchSignal {
	if matchCount == nil && correlation == nil {
		return nil
	}

	var featureScore float64
	if matchCount != nil {
		featureScore = math.Min(1.0, float64(*matchCount)/float64(EmbeddingMatchTarget))
	}
	var histScore float64
	if correlation != nil {
		// Negative correlation is anti-evidence; clamp to zero.
		histScore = math.Max(0.0, *correlation)
	}

	sig := &fusion.MatchSignal{}
	switch {
	case matchCount != nil && correlation != nil:
		sig.Score = featureBlendWeight*featureScore + histogramBlendWeight*histScore
		sig.IsCorrect = *matchCount >= MinFeatureMatches
	case matchCount != nil:
		sig.Score = featureScore
		sig.IsCorrect = *matchCount >= MinFeatureMatches
	default:
		sig.Score = histScore
		sig.IsCorrect = histScore > 0
	}
	return sig
}
