package insight

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/healthlens/healthlens-go/internal/rag"
)

// rawMetric accepts the "insight" key some models emit in place of
// "explanation".
type rawMetric struct {
	Label       string          `json:"label"`
	Value       json.RawMessage `json:"value"`
	Status      string          `json:"status"`
	Explanation string          `json:"explanation"`
	Insight     string          `json:"insight"`
}

type rawAnswer struct {
	Summary         *string     `json:"summary"`
	Metrics         []rawMetric `json:"metrics"`
	Analysis        *string     `json:"analysis"`
	Recommendations []string    `json:"recommendations"`
}

// parseAnswer decodes generator output into an Answer. Markdown code fences
// and prose around the outermost JSON object are tolerated; anything else
// that does not match the schema fails with rag.ErrGenerationFormat.
func parseAnswer(output string) (*Answer, error) {
	body := extractJSONObject(output)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in output", rag.ErrGenerationFormat)
	}

	var raw rawAnswer
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrGenerationFormat, err)
	}
	if raw.Summary == nil {
		return nil, fmt.Errorf("%w: missing summary", rag.ErrGenerationFormat)
	}
	if raw.Analysis == nil {
		return nil, fmt.Errorf("%w: missing analysis", rag.ErrGenerationFormat)
	}

	a := &Answer{
		Summary:         strings.TrimSpace(*raw.Summary),
		Analysis:        strings.TrimSpace(*raw.Analysis),
		Recommendations: raw.Recommendations,
		Metrics:         make([]Metric, 0, len(raw.Metrics)),
	}
	for _, m := range raw.Metrics {
		explanation := m.Explanation
		if explanation == "" {
			explanation = m.Insight
		}
		a.Metrics = append(a.Metrics, Metric{
			Label:       strings.TrimSpace(m.Label),
			Value:       scalarString(m.Value),
			Status:      Status(m.Status),
			Explanation: explanation,
		})
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// extractJSONObject returns the text between the first '{' and the last '}'.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// scalarString renders a JSON scalar as display text: strings unquoted,
// numbers and booleans verbatim.
func scalarString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || string(v) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}
