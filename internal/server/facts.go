package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/healthlens/healthlens-go/internal/facts"
	"github.com/healthlens/healthlens-go/internal/logging"
	"github.com/healthlens/healthlens-go/internal/rag"
)

// handleFactIngest handles POST /api/facts. It writes one fact for the
// caller's owner id.
func (s *Server) handleFactIngest(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if s.deps.Facts == nil {
		writeJSONError(w, "fact ingestion is not configured", http.StatusNotImplemented)
		return
	}
	var req factRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	t, err := facts.ParseRecordType(req.RecordType)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := s.deps.Facts.Ingest(r.Context(), owner, t, req.Content, facts.Metadata(req.Metadata))
	if out.Err != nil {
		writeFactError(w, r, out.Err)
		return
	}
	writeJSON(w, http.StatusOK, factResponse{FactID: out.FactID, Skipped: out.Skipped})
}

// handleFactRetract handles DELETE /api/facts?record_type=T&key=K&value=V.
// It removes every fact of the caller's owner id matching the filter.
func (s *Server) handleFactRetract(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if s.deps.Facts == nil {
		writeJSONError(w, "fact ingestion is not configured", http.StatusNotImplemented)
		return
	}
	q := r.URL.Query()
	t, err := facts.ParseRecordType(q.Get("record_type"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := s.deps.Facts.Retract(r.Context(), owner, t, q.Get("key"), q.Get("value"))
	if out.Err != nil {
		writeFactError(w, r, out.Err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeFactError maps ingestion failures: schema violations are 400, store
// and embedder failures are 503.
func writeFactError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, facts.ErrUnknownMetadataKey),
		errors.Is(err, facts.ErrInvalidFact),
		errors.Is(err, rag.ErrMissingOwner):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		logging.FromContext(r.Context()).Error("fact write failed", slog.Any("error", err))
		writeJSONError(w, "index temporarily unavailable", http.StatusServiceUnavailable)
	}
}
