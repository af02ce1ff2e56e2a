// Package audit provides structured audit logging for CLI command invocations
// and for every insight request. Command entries record the resolved
// configuration with secrets reduced to presence or absence. Insight entries
// record which owner's facts were read, by whom, and how many reached the
// generator, with the question cut to a fixed length.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// secretEnvKeys lists environment variable names whose values must never be
// logged. Only presence ("set") or absence ("unset") is recorded.
var secretEnvKeys = map[string]bool{
	"OPENAI_API_KEY":        true,
	"AZURE_OPENAI_API_KEY":  true,
	"GOOGLE_API_KEY":        true,
	"EMBEDDING_API_KEY":     true,
	"QDRANT_API_KEY":        true,
	"COHERE_API_KEY":        true,
	"GEMINI_API_KEY":        true,
	"BEDROCK_API_KEY":       true,
	"HEALTHLENS_API_KEY":    true,
	"LANGFUSE_PUBLIC_KEY":   true,
	"LANGFUSE_SECRET_KEY":   true,
	"AWS_SECRET_ACCESS_KEY": true,
	"AWS_SESSION_TOKEN":     true,
}

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}

	// Log key operational env vars with sanitisation.
	for _, entry := range auditKeys {
		val := os.Getenv(entry.key)
		if entry.secret {
			attrs = append(attrs, slog.String(entry.key, presence(val)))
		} else {
			attrs = append(attrs, slog.String(entry.key, valOrUnset(val)))
		}
	}

	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// maxQueryChars bounds how much of a question is written to the audit log.
const maxQueryChars = 100

// LogInsightQuery records that an insight request read ownerID's facts.
// requesterID is the clinician id for clinician requests and empty otherwise.
func LogInsightQuery(ctx context.Context, log *slog.Logger, ownerID, audience, requesterID, query string) {
	log.LogAttrs(ctx, slog.LevelInfo, "audit: insight query",
		slog.String("owner_id", ownerID),
		slog.String("audience", audience),
		slog.String("requester_id", valOrUnset(requesterID)),
		slog.String("query", TruncateQuery(query)),
	)
}

// LogInsightRetrieval records how many of ownerID's facts were retrieved and
// how many were passed on to the generator.
func LogInsightRetrieval(ctx context.Context, log *slog.Logger, ownerID string, retrieved, used int) {
	level := slog.LevelInfo
	if retrieved == 0 {
		level = slog.LevelWarn
	}
	log.LogAttrs(ctx, level, "audit: insight retrieval",
		slog.String("owner_id", ownerID),
		slog.Int("retrieved", retrieved),
		slog.Int("used", used),
	)
}

// TruncateQuery cuts q to maxQueryChars runes.
func TruncateQuery(q string) string {
	if utf8.RuneCountInString(q) <= maxQueryChars {
		return q
	}
	r := []rune(q)
	return string(r[:maxQueryChars]) + "..."
}

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	// key is the environment variable name.
	key string
	// secret indicates the value should be redacted to presence/absence.
	secret bool
}

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"AWS_REGION", false},
	{"BEDROCK_MODEL_ID", false},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"HEALTHLENS_INDEX_DB", false},
	{"RERANK_PROVIDER", false},
	{"RERANK_MODEL", false},
	{"COHERE_API_KEY", true},
	{"INSIGHT_SEARCH_K", false},
	{"INSIGHT_RERANK_K", false},
	{"HEALTHLENS_API_KEY", true},
	{"HEALTHLENS_RECORDS_DB", false},
	{"HEALTHLENS_HISTORY_DB", false},
	{"HEALTHLENS_UPLOAD_DIR", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// SanitiseKey returns "set" or "unset" for known secret keys, or the actual
// value for non-secret keys. This is safe to use in log messages.
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
