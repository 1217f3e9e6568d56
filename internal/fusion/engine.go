// Package fusion combines per-frame verification signals into a single
// weighted confidence value with a primary-method label.
package fusion

import (
	"math"

	"github.com/adithyakrish0/medguardian/pkg/models"
)

// Fixed fusion weights. Absent signals are excluded from both numerator and
// denominator, so the remaining weights renormalize over present signals.
const (
	WeightEmbedding = 0.45
	WeightOCR       = 0.25
	WeightDetector  = 0.15
	WeightGeometry  = 0.15

	// IncorrectDampening scales a confident-but-wrong match signal so it
	// cannot inflate the fused score.
	IncorrectDampening = 0.3
)

// MatchSignal is a similarity score paired with whether the match points at
// the expected medication.
type MatchSignal struct {
	Score     float64
	IsCorrect bool
}

// Input carries one frame's worth of signals. Nil fields are absent signals,
// which is a different state from a present zero score.
type Input struct {
	BarcodeMatch       *bool
	Embedding          *MatchSignal
	OCR                *MatchSignal
	DetectorConfidence *float64
	GeometryScore      *float64
}

// Fuse combines whichever signals are present into a ConfidenceBreakdown.
// A positive barcode match is deterministic and bypasses weighted fusion
// entirely. With no signals present the result is confidence 0 with method
// "none"; Fuse never divides by zero and never leaves [0, 1].
func Fuse(in Input) models.ConfidenceBreakdown {
	if in.BarcodeMatch != nil && *in.BarcodeMatch {
		return models.ConfidenceBreakdown{
			FinalConfidence: 1.0,
			PrimaryMethod:   models.MethodBarcode,
			PerSignalScores: map[models.VerifyMethod]float64{models.MethodBarcode: 1.0},
		}
	}

	type contribution struct {
		method models.VerifyMethod
		score  float64
		weight float64
	}
	var contributions []contribution

	if in.Embedding != nil {
		contributions = append(contributions, contribution{
			method: models.MethodEmbedding,
			score:  dampen(*in.Embedding),
			weight: WeightEmbedding,
		})
	}
	if in.OCR != nil {
		contributions = append(contributions, contribution{
			method: models.MethodOCR,
			score:  dampen(*in.OCR),
			weight: WeightOCR,
		})
	}
	if in.DetectorConfidence != nil {
		contributions = append(contributions, contribution{
			method: models.MethodDetector,
			score:  *in.DetectorConfidence,
			weight: WeightDetector,
		})
	}
	if in.GeometryScore != nil {
		contributions = append(contributions, contribution{
			method: models.MethodGeometry,
			score:  *in.GeometryScore,
			weight: WeightGeometry,
		})
	}

	if len(contributions) == 0 {
		return models.ConfidenceBreakdown{
			FinalConfidence: 0.0,
			PrimaryMethod:   models.MethodNone,
		}
	}

	var weightedSum, weightTotal, best float64
	primary := models.MethodNone
	perSignal := make(map[models.VerifyMethod]float64, len(contributions))
	for _, c := range contributions {
		weighted := c.weight * c.score
		weightedSum += weighted
		weightTotal += c.weight
		perSignal[c.method] = weighted
		if weighted > best {
			best = weighted
			primary = c.method
		}
	}

	final := weightedSum / weightTotal
	final = math.Max(0.0, math.Min(1.0, final))

	return models.ConfidenceBreakdown{
		FinalConfidence: final,
		PrimaryMethod:   primary,
		PerSignalScores: perSignal,
	}
}

// dampen scales down incorrect matches; a wrong medication recognized with
// high confidence must not read as evidence for the expected one.
func dampen(sig MatchSignal) float64 {
	if sig.IsCorrect {
		return sig.Score
	}
	return sig.Score * IncorrectDampening
}
