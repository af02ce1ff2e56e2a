// Package rerank provides rag.Reranker implementations. Rerankers are
// optional: when none is configured the insight engine keeps similarity order.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/healthlens/healthlens-go/internal/rag"
)

const (
	defaultCohereURL   = "https://api.cohere.com/v1/rerank"
	defaultCohereModel = "rerank-english-v3.0"
)

// CohereConfig holds the settings for constructing a CohereReranker.
type CohereConfig struct {
	// APIKey is the Cohere API key.
	APIKey string
	// Model is the rerank model name. Defaults to rerank-english-v3.0.
	Model string
	// URL overrides the rerank endpoint; used by tests.
	URL string
	// Timeout bounds each request. Defaults to 15s.
	Timeout time.Duration
}

// CohereReranker implements rag.Reranker against the Cohere rerank API.
// It is safe for concurrent use.
type CohereReranker struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewCohereReranker constructs a CohereReranker.
func NewCohereReranker(cfg *CohereConfig) (*CohereReranker, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("rerank: cohere API key must not be empty")
	}
	r := &CohereReranker{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	if r.model == "" {
		r.model = defaultCohereModel
	}
	if r.url == "" {
		r.url = defaultCohereURL
	}
	if r.client.Timeout <= 0 {
		r.client.Timeout = 15 * time.Second
	}
	return r, nil
}

type cohereRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

type cohereResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
	Message string `json:"message,omitempty"`
}

// Rerank scores documents against query and returns at most topN results,
// most relevant first.
func (r *CohereReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]rag.RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	payload, err := json.Marshal(cohereRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("cohere: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("cohere: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cohere: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("cohere: read response: %w", err)
	}
	var out cohereResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("cohere: decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("cohere: %s", msg)
	}

	results := make([]rag.RerankResult, 0, len(out.Results))
	for _, res := range out.Results {
		results = append(results, rag.RerankResult{Index: res.Index, Score: float32(res.RelevanceScore)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}
