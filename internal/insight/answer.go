package insight

import (
	"fmt"
	"strings"

	"github.com/healthlens/healthlens-go/internal/rag"
)

// Status is the assessment attached to a metric.
type Status string

// The closed set of metric statuses.
const (
	StatusNormal  Status = "Normal"
	StatusHigh    Status = "High"
	StatusLow     Status = "Low"
	StatusWarning Status = "Warning"
	StatusGood    Status = "Good"
)

// validStatus maps lower-cased spellings to the canonical status.
var validStatus = map[string]Status{
	"normal":  StatusNormal,
	"high":    StatusHigh,
	"low":     StatusLow,
	"warning": StatusWarning,
	"good":    StatusGood,
}

// Metric is one measured or observed value surfaced by an answer.
type Metric struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Status      Status `json:"status"`
	Explanation string `json:"explanation"`
}

// Answer is the structured response to an insight question.
type Answer struct {
	Summary         string   `json:"summary"`
	Metrics         []Metric `json:"metrics"`
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`

	// NoData is true when the owner had no facts to ground an answer on.
	NoData bool `json:"no_data"`
}

// Insufficient-data texts returned without consulting the generator.
const (
	noDataSummary = "I don't have enough health data for your account yet. Please add health records, " +
		"medications, or appointments to get personalized insights."
	noDataSummaryClinician = "There is not enough health data on file for this patient yet."
	noDataAnalysis         = "No health records, medications, appointments or activity summaries are indexed for this account."
)

// NoDataAnswer is the canonical answer for an owner with no retrievable facts.
func NoDataAnswer(audience Audience) *Answer {
	summary := noDataSummary
	if audience == AudienceClinician {
		summary = noDataSummaryClinician
	}
	return &Answer{
		Summary:         summary,
		Metrics:         []Metric{},
		Analysis:        noDataAnalysis,
		Recommendations: []string{},
		NoData:          true,
	}
}

// validate checks a decoded answer against the schema and normalises status
// spelling and nil slices. Errors wrap rag.ErrGenerationFormat.
func (a *Answer) validate() error {
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("%w: summary is empty", rag.ErrGenerationFormat)
	}
	for i := range a.Metrics {
		m := &a.Metrics[i]
		if strings.TrimSpace(m.Label) == "" {
			return fmt.Errorf("%w: metric %d has no label", rag.ErrGenerationFormat, i)
		}
		s, ok := validStatus[strings.ToLower(strings.TrimSpace(string(m.Status)))]
		if !ok {
			return fmt.Errorf("%w: metric %q has status %q", rag.ErrGenerationFormat, m.Label, m.Status)
		}
		m.Status = s
	}
	if a.Metrics == nil {
		a.Metrics = []Metric{}
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	return nil
}
