package stream

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ctcbeam/internal/decoder"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() decoder.Options {
	opts := decoder.DefaultOptions()
	opts.Vocab = []string{"a", "_"}
	opts.BlankID = 1
	opts.BeamWidth = 10
	opts.CutoffTopN = 2
	return opts
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(discardLogger(), testOptions(), nil, nil)
}

func TestHandleCreateReturnsStreamID(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/streams", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /streams: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.ID == "" {
		t.Fatalf("expected non-empty stream id")
	}
}

func TestHandleFramesUnknownStreamReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := strings.NewReader(`{"frames":[[0.5,0.5]],"final":false}`)
	resp, err := http.Post(srv.URL+"/streams/does-not-exist/frames", "application/json", body)
	if err != nil {
		t.Fatalf("POST frames: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleFramesAcceptsChunkAndFinalizes(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	createResp, err := http.Post(srv.URL+"/streams", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /streams: %v", err)
	}
	var created createResponse
	if err := json.NewDecoder(createResp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	createResp.Body.Close()

	chunk := framesRequest{Frames: [][]float64{{0.3, 0.7}, {0.4, 0.6}}, Final: false}
	payload, _ := json.Marshal(chunk)
	resp, err := http.Post(srv.URL+"/streams/"+created.ID+"/frames", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST frames chunk: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	s.mu.Lock()
	_, stillOpen := s.states[created.ID]
	s.mu.Unlock()
	if !stillOpen {
		t.Fatalf("stream should remain open after a non-final chunk")
	}

	final := framesRequest{Frames: [][]float64{{0.6, 0.4}}, Final: true}
	payload, _ = json.Marshal(final)
	resp, err = http.Post(srv.URL+"/streams/"+created.ID+"/frames", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST final frame: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	s.mu.Lock()
	_, stillOpenAfterFinal := s.states[created.ID]
	s.mu.Unlock()
	if stillOpenAfterFinal {
		t.Fatalf("stream should be removed once finalized")
	}
}

func TestHandleFramesRejectsMismatchedFrameWidth(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	createResp, _ := http.Post(srv.URL+"/streams", "application/json", nil)
	var created createResponse
	json.NewDecoder(createResp.Body).Decode(&created)
	createResp.Body.Close()

	bad := framesRequest{Frames: [][]float64{{0.1, 0.2, 0.3}}, Final: false}
	payload, _ := json.Marshal(bad)
	resp, err := http.Post(srv.URL+"/streams/"+created.ID+"/frames", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST frames: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNewStreamIDProducesDistinctHexIDs(t *testing.T) {
	a, err := newStreamID()
	if err != nil {
		t.Fatalf("newStreamID: %v", err)
	}
	b, err := newStreamID()
	if err != nil {
		t.Fatalf("newStreamID: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct stream ids, got %q twice", a)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars (16 bytes), got %d", len(a))
	}
}

func TestFrameRateTrackingDoesNotPanic(t *testing.T) {
	s := newTestServer(t)
	s.frameRate.Interval = time.Millisecond
	s.rateMu.Lock()
	s.frameRate.Add(5)
	s.frameRate.Check(s.log)
	s.rateMu.Unlock()
}
