package cvclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adithyakrish0/medguardian/pkg/models"
)

func testFrame() models.Frame {
	return models.Frame{Sequence: 1, Width: 640, Height: 480, Data: []byte("jpeg-bytes")}
}

func TestDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/detect", r.URL.Path)

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint64(1), req.Sequence)
		assert.Equal(t, 640, req.Width)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"detections": []map[string]interface{}{
				{
					"confidence": 0.88,
					"label":      "pill_bottle",
					"bbox":       map[string]float64{"x1": 100, "y1": 100, "x2": 300, "y2": 400},
				},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	detections, err := c.Detect(context.Background(), testFrame())
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.InDelta(t, 0.88, detections[0].Confidence, 1e-9)
	assert.Equal(t, "pill_bottle", detections[0].Label)
	assert.InDelta(t, 100.0, detections[0].BBox.X1, 1e-9)
}

func TestMatchSendsMedicationID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/features/match", r.URL.Path)

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "med-aspirin", req.MedicationID)

		_ = json.NewEncoder(w).Encode(map[string]int{"match_count": 27})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	count, err := c.Match(context.Background(), "med-aspirin", testFrame())
	require.NoError(t, err)
	assert.Equal(t, 27, count)
}

func TestScanNoBarcode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"barcode": nil})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	barcode, err := c.Scan(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Nil(t, barcode)
}

func TestErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Detect(context.Background(), testFrame())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL, time.Second)
	_, err := c.Compare(ctx, "med-aspirin", testFrame())
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	assert.NoError(t, c.Ping(context.Background()))
}
