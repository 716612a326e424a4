package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

// httpRerankRequest carries the passages both as documents (Cohere, Jina)
// and as texts (text-embeddings-inference).
type httpRerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Texts     []string `json:"texts"`
}

type httpRerankResult struct {
	Index          int      `json:"index"`
	RelevanceScore *float64 `json:"relevance_score"`
	Score          *float64 `json:"score"`
}

// httpRerankResponse accepts the Cohere/Jina object ({"results": [...]}
// with relevance_score) and the bare array text-embeddings-inference
// returns ([{"index", "score"}]).
type httpRerankResponse struct {
	Results []httpRerankResult `json:"results"`
}

func (r *httpRerankResponse) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &r.Results)
	}
	type plain httpRerankResponse
	return json.Unmarshal(data, (*plain)(r))
}

// httpReranker calls a remote cross-encoder service.
type httpReranker struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

func NewHTTP(opts Options) (Reranker, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, appErr.Config("rerank endpoint is required")
	}
	timeout := 30 * time.Second
	if opts.TimeoutSec > 0 {
		timeout = time.Duration(opts.TimeoutSec) * time.Second
	}
	return &httpReranker{
		endpoint: endpoint,
		model:    opts.Model,
		apiKey:   opts.APIKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (h *httpReranker) Rerank(ctx context.Context, query string, candidates []model.RetrievalCandidate) ([]model.RetrievalCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	docs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		docs = append(docs, c.Text)
	}
	data, err := json.Marshal(httpRerankRequest{Model: h.model, Query: query, Documents: docs, Texts: docs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out httpRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(out.Results) != len(candidates) {
		return nil, fmt.Errorf("rerank returned %d scores for %d candidates", len(out.Results), len(candidates))
	}
	res := cloneCandidates(candidates)
	seen := make([]bool, len(res))
	for _, item := range out.Results {
		if item.Index < 0 || item.Index >= len(res) || seen[item.Index] {
			return nil, fmt.Errorf("rerank returned invalid index %d", item.Index)
		}
		seen[item.Index] = true
		switch {
		case item.RelevanceScore != nil:
			res[item.Index].Score = *item.RelevanceScore
		case item.Score != nil:
			res[item.Index].Score = *item.Score
		default:
			return nil, fmt.Errorf("rerank result %d has no score", item.Index)
		}
	}
	SortByScore(res)
	return res, nil
}

func (h *httpReranker) ModelName() string {
	if h.model != "" {
		return h.model
	}
	return "http"
}

func (h *httpReranker) Close() error {
	return nil
}

func init() {
	Register("http", func(_ context.Context, opts Options) (Reranker, error) {
		return NewHTTP(opts)
	})
}
