package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/patchmix/patchmix/internal/pipeline"
	"github.com/patchmix/patchmix/internal/preview"
)

type fakeControl struct {
	runResult  pipeline.RunResult
	err        error
	lastRun    pipeline.RunRequest
	lastSource pipeline.SourceRequest
	lastSlot   string
	lastSpeed  float64
	lastMode   string
	lastParams map[string]float64
	status     pipeline.Status
}

func (f *fakeControl) RunBoth(_ context.Context, req pipeline.RunRequest) (pipeline.RunResult, error) {
	f.lastRun = req
	return f.runResult, f.err
}

func (f *fakeControl) AssignSource(_ context.Context, req pipeline.SourceRequest) error {
	f.lastSource = req
	return f.err
}

func (f *fakeControl) ClearSource(_ context.Context, slot string) error {
	f.lastSlot = slot
	return f.err
}

func (f *fakeControl) SetSlotSpeed(_ context.Context, slot string, speed float64) error {
	f.lastSlot = slot
	f.lastSpeed = speed
	return f.err
}

func (f *fakeControl) SetComposite(_ context.Context, mode string, params map[string]float64) error {
	f.lastMode = mode
	f.lastParams = params
	return f.err
}

func (f *fakeControl) Status(_ context.Context) (pipeline.Status, error) {
	return f.status, f.err
}

func newTestServer(t *testing.T) (*Server, *fakeControl) {
	t.Helper()
	resetAuth()
	SetTLSConfigForTest(nil)
	fc := &fakeControl{
		runResult: pipeline.RunResult{
			RunID: 3,
			A:     pipeline.PatchResult{Success: true},
			B: pipeline.PatchResult{
				Success: false,
				Error:   &pipeline.PatchError{Message: "boom", LineNumber: 2},
			},
		},
		status: pipeline.Status{Runs: 3, CompositeMode: "blend"},
	}
	return NewServer(0, fc, preview.NewTransport(32, 18, 15)), fc
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
	if resp.Pipeline.CompositeMode != "blend" {
		t.Errorf("expected pipeline status passthrough, got %+v", resp.Pipeline)
	}
}

func TestRunEndpoint(t *testing.T) {
	s, fc := newTestServer(t)

	body := `{"patchA":"out()","patchB":"osc(10):out(o0)","compositeMode":"add"}`
	req := httptest.NewRequest("POST", "/api/run", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var result pipeline.RunResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.RunID != 3 || !result.A.Success || result.B.Success {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.B.Error.LineNumber != 2 {
		t.Errorf("line = %d, want 2", result.B.Error.LineNumber)
	}
	if fc.lastRun.CompositeMode != "add" {
		t.Errorf("composite mode not forwarded: %+v", fc.lastRun)
	}
}

func TestRunEndpointRejectsGet(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/run", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestRunEndpointRejectsBadJSON(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/run", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestSourceEndpoint(t *testing.T) {
	s, fc := newTestServer(t)

	body := `{"slot":"s1","mediaUrl":"file:///loop.gif","mediaKind":"animatedImage","playbackSpeed":2}`
	req := httptest.NewRequest("POST", "/api/source", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if fc.lastSource.Slot != "s1" {
		t.Errorf("source request not forwarded: %+v", fc.lastSource)
	}
	if fc.lastSource.PlaybackSpeed == nil || *fc.lastSource.PlaybackSpeed != 2 {
		t.Errorf("playback speed not forwarded: %+v", fc.lastSource.PlaybackSpeed)
	}
}

func TestSourceEndpointKeepsExplicitZeroSpeed(t *testing.T) {
	s, fc := newTestServer(t)

	body := `{"slot":"s0","mediaUrl":"file:///loop.gif","mediaKind":"animatedImage","playbackSpeed":0}`
	req := httptest.NewRequest("POST", "/api/source", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if fc.lastSource.PlaybackSpeed == nil || *fc.lastSource.PlaybackSpeed != 0 {
		t.Errorf("explicit zero speed must survive decoding: %+v", fc.lastSource.PlaybackSpeed)
	}

	// Omitting the field entirely leaves it nil for the pipeline to
	// default.
	body = `{"slot":"s0","mediaUrl":"file:///loop.gif","mediaKind":"animatedImage"}`
	req = httptest.NewRequest("POST", "/api/source", strings.NewReader(body))
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if fc.lastSource.PlaybackSpeed != nil {
		t.Errorf("omitted speed should decode as nil, got %v", *fc.lastSource.PlaybackSpeed)
	}
}

func TestSpeedEndpoint(t *testing.T) {
	s, fc := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/speed", strings.NewReader(`{"slot":"s0","speed":0}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if fc.lastSlot != "s0" || fc.lastSpeed != 0 {
		t.Errorf("speed request not forwarded: slot=%q speed=%v", fc.lastSlot, fc.lastSpeed)
	}
}

func TestCompositeEndpoint(t *testing.T) {
	s, fc := newTestServer(t)

	body := `{"mode":"luma","parameters":{"threshold":0.7}}`
	req := httptest.NewRequest("POST", "/api/composite", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if fc.lastMode != "luma" || fc.lastParams["threshold"] != 0.7 {
		t.Errorf("composite request not forwarded: mode=%q params=%v", fc.lastMode, fc.lastParams)
	}
}

func TestCompositeModesEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/composite/modes", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"blend"`) {
		t.Errorf("mode list should include blend: %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "patchmix_") {
		t.Error("metrics exposition should carry patchmix series")
	}
}
