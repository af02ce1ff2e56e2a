package rerank

import (
	"fmt"
	"os"

	"github.com/healthlens/healthlens-go/internal/rag"
)

// NewFromEnv builds the configured reranker. RERANK_PROVIDER selects the
// backend: "cohere", "none", or empty to pick cohere when COHERE_API_KEY is
// set. A nil reranker with a nil error means reranking is disabled.
func NewFromEnv() (rag.Reranker, error) {
	provider := os.Getenv("RERANK_PROVIDER")
	key := os.Getenv("COHERE_API_KEY")
	if provider == "" {
		if key == "" {
			return nil, nil
		}
		provider = "cohere"
	}

	switch provider {
	case "none":
		return nil, nil
	case "cohere":
		if key == "" {
			return nil, fmt.Errorf("rerank: RERANK_PROVIDER=cohere requires COHERE_API_KEY")
		}
		r, err := NewCohereReranker(&CohereConfig{
			APIKey: key,
			Model:  os.Getenv("RERANK_MODEL"),
			URL:    os.Getenv("COHERE_RERANK_URL"),
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("rerank: unknown provider %q (valid: cohere, none)", provider)
	}
}
