// Package api exposes the render pipeline to the control surface:
// JSON endpoints for runs, media slots and composite control, a
// WebSocket event stream, and the binary preview channel.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/patchmix/patchmix/internal/composite"
	"github.com/patchmix/patchmix/internal/events"
	"github.com/patchmix/patchmix/internal/log"
	"github.com/patchmix/patchmix/internal/pipeline"
	"github.com/patchmix/patchmix/internal/preview"
	"github.com/patchmix/patchmix/internal/version"
)

// Control is the pipeline surface the API depends on.
type Control interface {
	RunBoth(ctx context.Context, req pipeline.RunRequest) (pipeline.RunResult, error)
	AssignSource(ctx context.Context, req pipeline.SourceRequest) error
	ClearSource(ctx context.Context, slot string) error
	SetSlotSpeed(ctx context.Context, slot string, speed float64) error
	SetComposite(ctx context.Context, mode string, params map[string]float64) error
	Status(ctx context.Context) (pipeline.Status, error)
}

// Server is the HTTP/WebSocket control endpoint.
type Server struct {
	control   Control
	transport *preview.Transport
	log       zerolog.Logger
	httpSrv   *http.Server
}

// NewServer wires the control surface and preview transport into an
// HTTP server listening on port.
func NewServer(port int, control Control, transport *preview.Transport) *Server {
	s := &Server{
		control:   control,
		transport: transport,
		log:       log.WithComponent("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/events", s.eventsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/run", RequireAnyRole(s.runHandler))
	mux.HandleFunc("/api/source", RequireAnyRole(s.sourceHandler))
	mux.HandleFunc("/api/source/clear", RequireAnyRole(s.sourceClearHandler))
	mux.HandleFunc("/api/speed", RequireAnyRole(s.speedHandler))
	mux.HandleFunc("/api/composite", RequireAnyRole(s.compositeHandler))
	mux.HandleFunc("/api/composite/modes", s.compositeModesHandler)
	mux.HandleFunc("/ws/events", s.wsEventsHandler)
	mux.HandleFunc("/ws/preview", s.wsPreviewHandler)

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("event", "api.listen").Str("addr", s.httpSrv.Addr).Bool("tls", IsTLSEnabled()).Msg("control API listening")
		var err error
		if IsTLSEnabled() {
			s.httpSrv.TLSConfig = LoadTLSConfig()
			err = s.httpSrv.ListenAndServeTLS("", "")
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events.CloseAllSubscribers()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	}
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{OK: false, Error: msg})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

type healthResponse struct {
	Status    string          `json:"status"`
	Service   string          `json:"service"`
	Version   string          `json:"version"`
	Timestamp string          `json:"ts"`
	Pipeline  pipeline.Status `json:"pipeline"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st, err := s.control.Status(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Service:   "renderd",
		Version:   version.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Pipeline:  st,
	})
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.Snapshot())
}

func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req pipeline.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result, err := s.control.RunBoth(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) sourceHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req pipeline.SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.control.AssignSource(r.Context(), req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, errorResponse{OK: true})
}

type slotRequest struct {
	Slot  string  `json:"slot"`
	Speed float64 `json:"speed"`
}

func (s *Server) sourceClearHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.control.ClearSource(r.Context(), req.Slot); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, errorResponse{OK: true})
}

func (s *Server) speedHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.control.SetSlotSpeed(r.Context(), req.Slot, req.Speed); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, errorResponse{OK: true})
}

type compositeRequest struct {
	Mode       string             `json:"mode,omitempty"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
}

func (s *Server) compositeHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req compositeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.control.SetComposite(r.Context(), req.Mode, req.Parameters); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, errorResponse{OK: true})
}

func (s *Server) compositeModesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, composite.Modes())
}
