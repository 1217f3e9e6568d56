// Package cvclient talks to the computer-vision sidecar over HTTP. The
// sidecar runs the actual models (detector, feature matcher, histogram,
// barcode, OCR); this client implements the signals collaborator interfaces
// against it.
package cvclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/adithyakrish0/medguardian/internal/signals"
	"github.com/adithyakrish0/medguardian/pkg/models"
)

// DefaultTimeout bounds one sidecar call. Frame evaluation fans out to
// several calls in parallel, so the slowest one sets the frame latency.
const DefaultTimeout = 5 * time.Second

// Client is an HTTP client for the CV sidecar. It implements ObjectDetector,
// FeatureMatcher, HistogramComparator, BarcodeReader and OCRVerifier.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a sidecar client. timeout <= 0 falls back to DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// analyzeRequest is the wire format for all sidecar endpoints.
type analyzeRequest struct {
	MedicationID string `json:"medication_id,omitempty"`
	Sequence     uint64 `json:"sequence"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Data         []byte `json:"data"`
}

type detectResponse struct {
	Detections []struct {
		Confidence float64            `json:"confidence"`
		Label      string             `json:"label"`
		BBox       models.BoundingBox `json:"bbox"`
	} `json:"detections"`
}

type matchResponse struct {
	MatchCount int `json:"match_count"`
}

type histogramResponse struct {
	Correlation float64 `json:"correlation"`
}

type barcodeResponse struct {
	Barcode *string `json:"barcode"`
}

type ocrResponse struct {
	Score     float64 `json:"score"`
	IsCorrect bool    `json:"is_correct"`
}

// Detect implements signals.ObjectDetector.
func (c *Client) Detect(ctx context.Context, frame models.Frame) ([]signals.Detection, error) {
	var resp detectResponse
	if err := c.post(ctx, "/v1/detect", analyzeRequest{
		Sequence: frame.Sequence,
		Width:    frame.Width,
		Height:   frame.Height,
		Data:     frame.Data,
	}, &resp); err != nil {
		return nil, err
	}

	detections := make([]signals.Detection, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		detections = append(detections, signals.Detection{
			BBox:       d.BBox,
			Confidence: d.Confidence,
			Label:      d.Label,
		})
	}
	return detections, nil
}

// Match implements signals.FeatureMatcher.
func (c *Client) Match(ctx context.Context, medicationID string, frame models.Frame) (int, error) {
	var resp matchResponse
	if err := c.post(ctx, "/v1/features/match", analyzeRequest{
		MedicationID: medicationID,
		Sequence:     frame.Sequence,
		Width:        frame.Width,
		Height:       frame.Height,
		Data:         frame.Data,
	}, &resp); err != nil {
		return 0, err
	}
	return resp.MatchCount, nil
}

// Compare implements signals.HistogramComparator.
func (c *Client) Compare(ctx context.Context, medicationID string, frame models.Frame) (float64, error) {
	var resp histogramResponse
	if err := c.post(ctx, "/v1/histogram/compare", analyzeRequest{
		MedicationID: medicationID,
		Sequence:     frame.Sequence,
		Width:        frame.Width,
		Height:       frame.Height,
		Data:         frame.Data,
	}, &resp); err != nil {
		return 0, err
	}
	return resp.Correlation, nil
}

// Scan implements signals.BarcodeReader.
func (c *Client) Scan(ctx context.Context, frame models.Frame) (*string, error) {
	var resp barcodeResponse
	if err := c.post(ctx, "/v1/barcode/scan", analyzeRequest{
		Sequence: frame.Sequence,
		Width:    frame.Width,
		Height:   frame.Height,
		Data:     frame.Data,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Barcode, nil
}

// Verify implements signals.OCRVerifier.
func (c *Client) Verify(ctx context.Context, medicationID string, frame models.Frame) (float64, bool, error) {
	var resp ocrResponse
	if err := c.post(ctx, "/v1/ocr/verify", analyzeRequest{
		MedicationID: medicationID,
		Sequence:     frame.Sequence,
		Width:        frame.Width,
		Height:       frame.Height,
		Data:         frame.Data,
	}, &resp); err != nil {
		return 0, false, err
	}
	return resp.Score, resp.IsCorrect, nil
}

// Ping checks sidecar liveness.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cv sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cv sidecar health: status %d", resp.StatusCode)
	}
	return nil
}

// post sends one JSON request and decodes the JSON response.
func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cv sidecar %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("cv sidecar %s: status %d: %s", path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
