package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/observastack/loadpanel/internal/catalog"
	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/httpclient"
	"github.com/observastack/loadpanel/internal/metrics"
	"github.com/observastack/loadpanel/internal/runlock"
)

const maxRequestBytes = 1 << 20

// RunRequest is the body of POST /api/runs. Either TargetURL or Endpoint
// must be set. Body may be a JSON string, sent verbatim, or any other JSON
// value, sent as encoded.
type RunRequest struct {
	TargetURL     string            `json:"target_url"`
	Endpoint      string            `json:"endpoint,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
	Method        string            `json:"method,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          json.RawMessage   `json:"body,omitempty"`
	TotalRequests int               `json:"total_requests"`
	Concurrency   int               `json:"concurrency"`
	DelayMs       int               `json:"delay_ms"`
	Adaptive      bool              `json:"adaptive"`
}

type resultsResponse struct {
	State    driver.RunState          `json:"state"`
	Outcomes []metrics.RequestOutcome `json:"outcomes"`
	Chart    []metrics.ChartPoint     `json:"chart"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode run request: %w", err))
		return
	}
	cfg, err := s.runConfig(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch err := s.startRun(cfg); {
	case errors.Is(err, driver.ErrRunActive), errors.Is(err, runlock.ErrLocked):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("run accepted",
		zap.String("target", cfg.TargetURL),
		zap.Int("total", cfg.TotalRequests),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Bool("adaptive", cfg.Adaptive),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":         "accepted",
		"target_url":     cfg.TargetURL,
		"method":         cfg.Method,
		"total_requests": cfg.TotalRequests,
		"concurrency":    cfg.Concurrency,
		"delay_ms":       cfg.Delay.Milliseconds(),
		"adaptive":       cfg.Adaptive,
	})
}

// runConfig validates req and resolves catalog endpoints. Totals and
// concurrency outside the supported range are clamped by the driver.
func (s *Server) runConfig(req RunRequest) (driver.RunConfig, error) {
	cfg := driver.RunConfig{
		TargetURL:     strings.TrimSpace(req.TargetURL),
		Method:        strings.ToUpper(strings.TrimSpace(req.Method)),
		TotalRequests: req.TotalRequests,
		Concurrency:   req.Concurrency,
		Adaptive:      req.Adaptive,
	}
	if req.DelayMs < 0 {
		return cfg, errors.New("delay_ms must be >= 0")
	}
	cfg.Delay = time.Duration(req.DelayMs) * time.Millisecond

	body, err := rawBody(req.Body)
	if err != nil {
		return cfg, err
	}
	cfg.Body = body

	if req.Endpoint != "" {
		ep, ok := catalog.Find(s.endpoints, req.Endpoint)
		if !ok {
			return cfg, fmt.Errorf("unknown endpoint %q", req.Endpoint)
		}
		target, err := ep.Resolve(s.baseURL, req.Params)
		if err != nil {
			return cfg, err
		}
		cfg.TargetURL = target
		if cfg.Method == "" {
			cfg.Method = ep.Method
		}
		if cfg.Body == nil {
			if cfg.Body, err = ep.Body(req.Params); err != nil {
				return cfg, err
			}
		}
	}

	if cfg.TargetURL == "" {
		return cfg, errors.New("target_url or endpoint is required")
	}
	if u, err := url.Parse(cfg.TargetURL); err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, fmt.Errorf("target %q is not an absolute URL", cfg.TargetURL)
	}
	headers, err := httpclient.NormalizeHeaders(req.Headers)
	if err != nil {
		return cfg, err
	}
	if len(headers) > 0 {
		cfg.Headers = headers
	}
	return cfg, nil
}

func rawBody(raw json.RawMessage) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		return []byte(s), nil
	}
	return []byte(trimmed), nil
}

func (s *Server) handleStopRun(w http.ResponseWriter, _ *http.Request) {
	st := s.ctrl.State()
	s.ctrl.Stop()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"stopping": st.Running(),
		"run_id":   st.RunID,
	})
}

func (s *Server) handleClearResults(w http.ResponseWriter, _ *http.Request) {
	if s.Active() {
		writeError(w, http.StatusConflict, driver.ErrRunActive)
		return
	}
	if err := s.ctrl.ClearResults(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, driver.ErrRunActive) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

// handleResults returns the progressive results. ?points=N downsamples the
// chart to about N points.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	chart := snap.Chart
	if v := r.URL.Query().Get("points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("points must be a positive integer"))
			return
		}
		chart = metrics.Downsample(chart, n)
	}
	if chart == nil {
		chart = []metrics.ChartPoint{}
	}
	outcomes := snap.Outcomes
	if outcomes == nil {
		outcomes = []metrics.RequestOutcome{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{State: snap.State, Outcomes: outcomes, Chart: chart})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	summary, ok := s.ctrl.LastSummary()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no finished run"))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleEndpoints(w http.ResponseWriter, _ *http.Request) {
	endpoints := s.endpoints
	if endpoints == nil {
		endpoints = []catalog.Endpoint{}
	}
	writeJSON(w, http.StatusOK, endpoints)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.State()
	s.hub.serve(w, r, &Message{Type: "progress", State: &st})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
