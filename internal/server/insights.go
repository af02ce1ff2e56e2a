package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/healthlens/healthlens-go/internal/insight"
	"github.com/healthlens/healthlens-go/internal/logging"
	"github.com/healthlens/healthlens-go/internal/rag"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// History listing bounds for GET /api/insights/history.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// decodeBody decodes a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// handleQuery handles POST /api/insights/query for the account holder.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.answer(w, r, owner, req.Query, insight.AudiencePatient, "")
}

// handlePatientQuery handles POST /api/patients/{patient_id}/insights. The
// clinician named by X-Clinician-ID must be in the patient's care team.
func (s *Server) handlePatientQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	patient := r.PathValue("patient_id")
	clinician := r.Header.Get(clinicianHeader)
	if clinician == "" {
		writeJSONError(w, clinicianHeader+" header is required", http.StatusBadRequest)
		return
	}

	if s.deps.CareTeam != nil {
		allowed, err := s.deps.CareTeam.HasAppointmentWith(r.Context(), clinician, patient)
		if err != nil {
			log.Error("care team lookup failed", slog.String("patient_id", patient), slog.Any("error", err))
			writeJSONError(w, "care team lookup failed", http.StatusInternalServerError)
			return
		}
		if !allowed {
			log.Warn("clinician denied patient insight",
				slog.String("patient_id", patient),
				slog.String("clinician_id", clinician),
			)
			writeJSONError(w, "clinician is not in this patient's care team", http.StatusForbidden)
			return
		}
	}

	var req queryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.answer(w, r, patient, req.Query, insight.AudienceClinician, clinician)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, owner, query string, audience insight.Audience, requesterID string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.InsightTimeout)
	defer cancel()

	ans, err := s.deps.Answerer.AnswerFor(ctx, owner, query, audience, requesterID)
	if err != nil {
		s.writeInsightError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// writeInsightError maps answer errors to status codes. Caller mistakes are
// 400; every downstream failure is the same opaque 503.
func (s *Server) writeInsightError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())
	var unavailable *rag.InsightUnavailableError
	switch {
	case errors.Is(err, rag.ErrEmptyQuery):
		writeJSONError(w, "query is required", http.StatusBadRequest)
	case errors.Is(err, rag.ErrMissingOwner):
		writeJSONError(w, "owner id is required", http.StatusBadRequest)
	case errors.As(err, &unavailable):
		log.Error("insight unavailable", slog.String("stage", unavailable.Stage), slog.Any("error", err))
		w.Header().Set("Retry-After", "5")
		writeJSONError(w, "insight temporarily unavailable", http.StatusServiceUnavailable)
	default:
		log.Error("insight failed", slog.Any("error", err))
		writeJSONError(w, "internal error", http.StatusInternalServerError)
	}
}

// handleRefresh handles POST /api/insights/refresh. The rebuild runs in the
// background and outlives the request; the response is 202 Accepted.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if s.deps.Rebuilder == nil {
		writeJSONError(w, "rebuild is not configured", http.StatusNotImplemented)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	log := logging.FromContext(ctx)
	s.rebuilds.Add(1)
	s.metrics.rebuildsInFlight.Inc()
	go func() {
		defer s.rebuilds.Done()
		defer s.metrics.rebuildsInFlight.Dec()

		report, err := s.deps.Rebuilder.Rebuild(ctx, owner)
		if err != nil {
			s.metrics.rebuildsTotal.WithLabelValues("error").Inc()
			log.Error("background rebuild finished with errors", slog.String("owner_id", owner), slog.Any("error", err))
			return
		}
		s.metrics.rebuildsTotal.WithLabelValues("ok").Inc()
		log.Info("background rebuild finished",
			slog.String("owner_id", owner),
			slog.Int("written", report.Written),
			slog.Duration("duration", report.Duration),
		)
	}()

	writeJSON(w, http.StatusAccepted, refreshResponse{Status: "accepted", OwnerID: owner})
}

// handleHistory handles GET /api/insights/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if s.deps.History == nil {
		writeJSONError(w, "history is not configured", http.StatusNotImplemented)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.deps.History.Recent(r.Context(), owner, limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("history read failed", slog.Any("error", err))
		writeJSONError(w, "history temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	resp := historyResponse{OwnerID: owner, Entries: make([]historyEntry, 0, len(entries))}
	for _, e := range entries {
		answer := json.RawMessage(e.Answer)
		if !json.Valid(answer) {
			answer = json.RawMessage("null")
		}
		resp.Entries = append(resp.Entries, historyEntry{
			ID:          e.ID,
			Audience:    e.Audience,
			RequesterID: e.RequesterID,
			Query:       e.Query,
			Answer:      answer,
			NoData:      e.NoData,
			CreatedAt:   e.CreatedAt.UTC().Truncate(time.Second),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
