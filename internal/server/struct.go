package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/healthlens/healthlens-go/internal/facts"
	"github.com/healthlens/healthlens-go/internal/ingestion"
	"github.com/healthlens/healthlens-go/internal/insight"
	"github.com/healthlens/healthlens-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout bounds the graceful shutdown, including in-flight
	// background rebuilds.
	ShutdownTimeout time.Duration
	// InsightTimeout bounds one insight request end to end (default: 2m).
	InsightTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per owner (or per IP
	// when no owner is named) on insight endpoints. Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per key. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics. Nil uses
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Nil uses prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Answerer produces insight answers. *insight.Engine satisfies it.
type Answerer interface {
	AnswerFor(ctx context.Context, ownerID, query string, audience insight.Audience, requesterID string) (*insight.Answer, error)
}

// FactWriter writes and retracts facts. *ingestion.Pipeline satisfies it.
type FactWriter interface {
	Ingest(ctx context.Context, ownerID string, t facts.RecordType, content string, meta facts.Metadata) ingestion.Outcome
	Retract(ctx context.Context, ownerID string, t facts.RecordType, key, value string) ingestion.Outcome
}

// Rebuilder re-derives an owner's facts. *ingestion.Rebuilder satisfies it.
type Rebuilder interface {
	Rebuild(ctx context.Context, ownerID string) (*ingestion.Report, error)
}

// HistoryReader lists past answers. store.HistoryStore satisfies it.
type HistoryReader interface {
	Recent(ctx context.Context, ownerID string, n int) ([]store.Entry, error)
}

// CareTeam reports whether a clinician may ask about a patient.
// *records.SQLiteStore satisfies it.
type CareTeam interface {
	HasAppointmentWith(ctx context.Context, clinicianID, patientID string) (bool, error)
}

// Deps are the collaborators behind the API routes. Answerer is required;
// routes whose collaborator is nil respond 501.
type Deps struct {
	Answerer  Answerer
	Facts     FactWriter
	Rebuilder Rebuilder
	History   HistoryReader
	// CareTeam gates the clinician route. Nil admits any clinician.
	CareTeam CareTeam
}

// Server is the HTTP server that exposes the insight engine.
type Server struct {
	// deps are the collaborators behind the routes.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// rebuilds tracks background rebuilds started by POST /api/insights/refresh.
	rebuilds sync.WaitGroup
}

// queryRequest is the JSON body for the insight query routes.
type queryRequest struct {
	// Query is the natural-language question.
	Query string `json:"query"`
}

// refreshResponse is the JSON body returned by POST /api/insights/refresh.
type refreshResponse struct {
	Status  string `json:"status"`
	OwnerID string `json:"owner_id"`
}

// historyEntry is one item of GET /api/insights/history.
type historyEntry struct {
	ID          int64           `json:"id"`
	Audience    string          `json:"audience"`
	RequesterID string          `json:"requester_id,omitempty"`
	Query       string          `json:"query"`
	Answer      json.RawMessage `json:"answer"`
	NoData      bool            `json:"no_data"`
	CreatedAt   time.Time       `json:"created_at"`
}

// historyResponse is the JSON body returned by GET /api/insights/history.
type historyResponse struct {
	OwnerID string         `json:"owner_id"`
	Entries []historyEntry `json:"entries"`
}

// factRequest is the JSON body for POST /api/facts.
type factRequest struct {
	RecordType string            `json:"record_type"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
}

// factResponse is the JSON body returned by POST /api/facts.
type factResponse struct {
	FactID  string `json:"fact_id,omitempty"`
	Skipped bool   `json:"skipped"`
}
