// Package transport provides HTTP handlers for the analysis domain.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iardlabs/slitherd/internal/analysis/domain"
	"github.com/iardlabs/slitherd/internal/observability/metrics"
	"github.com/iardlabs/slitherd/internal/slither"
)

// Service defines the analysis service interface for HTTP transport.
type Service interface {
	Analyze(ctx context.Context, req domain.Request) ([]domain.Finding, error)
}

// Handler handles HTTP requests for contract analysis.
type Handler struct {
	svc Service
}

// NewHandler creates a new analysis HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the v1 analysis routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/analyze", h.handleAnalyzeV1)
}

// RegisterLegacyRoutes registers the historical query-parameter endpoint.
// Existing integrations send `code` base64-encoded and expect the flat
// {"result": [...]} / {"error": "..."} shapes.
func (h *Handler) RegisterLegacyRoutes(r chi.Router) {
	r.Get("/analyze", h.handleAnalyzeLegacy)
}

func (h *Handler) handleAnalyzeLegacy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := domain.Request{
		Blockchain: q.Get("blockchain"),
		Address:    q.Get("contract"),
	}
	if encoded := q.Get("code"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			metrics.AnalysisRequest(mode(req), "invalid")
			writeJSON(w, http.StatusBadRequest, legacyError{Error: "Invalid base64 code"})
			return
		}
		req.Code = string(decoded)
	}

	findings, err := h.svc.Analyze(r.Context(), req)
	if err != nil {
		status, msg := mapError(err)
		metrics.AnalysisRequest(mode(req), "error")
		writeJSON(w, status, legacyError{Error: msg})
		return
	}

	metrics.AnalysisRequest(mode(req), "ok")
	writeJSON(w, http.StatusOK, legacyResult{Result: findings})
}

func (h *Handler) handleAnalyzeV1(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	var req AnalyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	dreq := domain.Request{Blockchain: req.Blockchain, Address: req.Address, Code: req.Code}
	findings, err := h.svc.Analyze(r.Context(), dreq)
	if err != nil {
		metrics.AnalysisRequest(mode(dreq), "error")
		switch status, msg := mapError(err); status {
		case http.StatusBadRequest:
			writeError(w, status, "INVALID_REQUEST", msg)
		default:
			writeError(w, status, "ANALYSIS_FAILED", msg)
		}
		return
	}

	metrics.AnalysisRequest(mode(dreq), "ok")
	writeJSON(w, http.StatusOK, AnalyzeResponse{Result: findings})
}

// mapError converts domain errors to a status code and a short client
// message. Input and source resolution failures are 400s; analyzer failures
// are 500s so callers can tell bad input from a broken run.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMissingIdentifiers):
		return http.StatusBadRequest, "Missing blockchain or contract address"
	case errors.Is(err, domain.ErrInvalidAddress):
		return http.StatusBadRequest, "Invalid contract address"
	case errors.Is(err, domain.ErrInvalidBlockchain):
		return http.StatusBadRequest, "Invalid blockchain name"
	case errors.Is(err, domain.ErrSourceUnavailable):
		return http.StatusBadRequest, "Unable to retrieve contract code"
	case errors.Is(err, slither.ErrAnalysis):
		return http.StatusInternalServerError, "Analysis failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, "Analysis timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func mode(req domain.Request) string {
	if req.Blockchain != "" && req.Address != "" {
		return "explorer"
	}
	return "raw-code"
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
