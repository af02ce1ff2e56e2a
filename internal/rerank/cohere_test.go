package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCohereReranker_Rerank(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer co-key" {
			t.Errorf("missing bearer token")
		}
		var req cohereRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != defaultCohereModel || req.TopN != 2 || len(req.Documents) != 3 {
			t.Errorf("unexpected request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.2},{"index":2,"relevance_score":0.9}]}`))
	}))
	defer srv.Close()

	r, err := NewCohereReranker(&CohereConfig{APIKey: "co-key", URL: srv.URL})
	if err != nil {
		t.Fatalf("NewCohereReranker: %v", err)
	}
	got, err := r.Rerank(context.Background(), "aspirin", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 2 || got[0].Index != 2 || got[1].Index != 0 {
		t.Errorf("want results sorted by score, got %+v", got)
	}
}

func TestCohereReranker_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"trial key rate limit"}`))
	}))
	defer srv.Close()

	r, _ := NewCohereReranker(&CohereConfig{APIKey: "co-key", URL: srv.URL})
	_, err := r.Rerank(context.Background(), "q", []string{"a"}, 1)
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Fatalf("want rate limit error, got %v", err)
	}
}

func TestCohereReranker_EmptyDocuments(t *testing.T) {
	t.Parallel()

	r, _ := NewCohereReranker(&CohereConfig{APIKey: "co-key", URL: "http://127.0.0.1:0"})
	got, err := r.Rerank(context.Background(), "q", nil, 5)
	if err != nil || got != nil {
		t.Fatalf("want nil, nil for empty input; got %v, %v", got, err)
	}
}

func TestNewFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		key      string
		wantNil  bool
		wantErr  bool
	}{
		{"disabled without key", "", "", true, false},
		{"implicit cohere", "", "co-key", false, false},
		{"explicit none", "none", "co-key", true, false},
		{"cohere without key", "cohere", "", true, true},
		{"unknown", "jina", "k", true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("RERANK_PROVIDER", tc.provider)
			t.Setenv("COHERE_API_KEY", tc.key)
			r, err := NewFromEnv()
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if (r == nil) != tc.wantNil {
				t.Errorf("reranker nil = %v, want %v", r == nil, tc.wantNil)
			}
		})
	}
}
