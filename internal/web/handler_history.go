package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vbonduro/nutrilens/internal/domain"
	"github.com/vbonduro/nutrilens/internal/photostore"
	"github.com/vbonduro/nutrilens/internal/service"
)

// analysisSummary is the list view of a stored analysis.
type analysisSummary struct {
	ID          string    `json:"id"`
	RequestType string    `json:"requestType"`
	Subject     string    `json:"subject"`
	Status      string    `json:"status"`
	Model       string    `json:"model"`
	HasPhoto    bool      `json:"hasPhoto"`
	CreatedAt   time.Time `json:"createdAt"`
}

type analysisDetail struct {
	analysisSummary
	Result domain.Result `json:"result"`
}

func summarize(rec *domain.AnalysisRecord) analysisSummary {
	return analysisSummary{
		ID:          rec.ID,
		RequestType: string(rec.RequestType),
		Subject:     rec.Subject,
		Status:      rec.Status,
		Model:       rec.Model,
		HasPhoto:    rec.PhotoKey != "",
		CreatedAt:   rec.CreatedAt,
	}
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.service.ListAnalyses(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list analyses")
		s.logger.Error("list analyses failed", "error", err)
		return
	}

	out := make([]analysisSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, summarize(rec))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"analyses": out})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.service.GetAnalysis(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to get analysis")
		s.logger.Error("get analysis failed", "analysis_id", id, "error", err)
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	s.writeJSON(w, http.StatusOK, analysisDetail{analysisSummary: summarize(rec), Result: rec.Result})
}

func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.service.DeleteAnalysis(r.Context(), id)
	switch {
	case errors.Is(err, service.ErrAnalysisNotFound):
		s.writeError(w, http.StatusNotFound, "analysis not found")
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "failed to delete analysis")
		s.logger.Error("delete analysis failed", "analysis_id", id, "error", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reader, mimeType, err := s.service.GetPhoto(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPhotoNotFound) || errors.Is(err, photostore.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "photo not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to get photo")
		s.logger.Error("get photo failed", "analysis_id", id, "error", err)
		return
	}
	defer closeWithLog(reader, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write photo failed", "analysis_id", id, "error", err)
	}
}
