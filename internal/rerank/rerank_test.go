package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/knights-analytics/hugot/pipelines"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

func candidates() []model.RetrievalCandidate {
	return []model.RetrievalCandidate{
		{ID: "a", Text: "alpha", Distance: 0.4},
		{ID: "b", Text: "beta", Distance: 0.1},
		{ID: "c", Text: "gamma", Distance: 0.4},
	}
}

func ids(in []model.RetrievalCandidate) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		out = append(out, c.ID)
	}
	return out
}

func TestDistanceReranker(t *testing.T) {
	r, err := New(context.Background(), "distance", Options{})
	require.NoError(t, err)
	in := candidates()
	out, err := r.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c"}, ids(out))
	require.InDelta(t, 0.9, out[0].Score, 1e-9)
	require.Zero(t, in[0].Score, "input must not be modified")
}

func TestHTTPReranker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpRerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "leave policy", req.Query)
		require.Equal(t, []string{"alpha", "beta", "gamma"}, req.Documents)
		require.Equal(t, req.Documents, req.Texts)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"results":[{"index":2,"relevance_score":0.9},{"index":0,"relevance_score":0.5},{"index":1,"score":0.1}]}`))
	}))
	defer srv.Close()

	r, err := New(context.Background(), "http", Options{Endpoint: srv.URL, Model: "bge-reranker", APIKey: "secret"})
	require.NoError(t, err)
	out, err := r.Rerank(context.Background(), "leave policy", candidates())
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, ids(out))
	require.InDelta(t, 0.9, out[0].Score, 1e-9)
	require.Equal(t, "bge-reranker", r.ModelName())
}

func TestHTTPRerankerTEIArrayResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpRerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"alpha", "beta", "gamma"}, req.Texts)
		_, _ = w.Write([]byte(` [{"index":1,"score":0.7},{"index":0,"score":0.3},{"index":2,"score":0.2}]`))
	}))
	defer srv.Close()

	r, err := NewHTTP(Options{Endpoint: srv.URL})
	require.NoError(t, err)
	out, err := r.Rerank(context.Background(), "leave policy", candidates())
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c"}, ids(out))
	require.InDelta(t, 0.7, out[0].Score, 1e-9)
}

func TestHTTPRerankerRejectsShortResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.9}]}`))
	}))
	defer srv.Close()
	r, err := NewHTTP(Options{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = r.Rerank(context.Background(), "q", candidates())
	require.Error(t, err)
}

func TestHTTPRerankerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	r, err := NewHTTP(Options{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = r.Rerank(context.Background(), "q", candidates())
	require.ErrorContains(t, err, "overloaded")
}

func TestHTTPRerankerNeedsEndpoint(t *testing.T) {
	_, err := NewHTTP(Options{})
	require.True(t, appErr.IsConfig(err))
}

func TestHugotRerankerMapsCrossEncoderScores(t *testing.T) {
	h := &hugotReranker{
		name: "fake",
		score: func(query string, documents []string) ([]pipelines.CrossEncoderResult, error) {
			require.Equal(t, "q", query)
			require.Equal(t, []string{"alpha", "beta", "gamma"}, documents)
			// Sorted by score the way the pipeline returns them.
			return []pipelines.CrossEncoderResult{
				{Index: 2, Document: "gamma", Score: 0.8},
				{Index: 0, Document: "alpha", Score: 0.6},
				{Index: 1, Document: "beta", Score: 0.1},
			}, nil
		},
	}
	in := candidates()
	out, err := h.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, ids(out))
	require.InDelta(t, 0.8, out[0].Score, 1e-6)
	require.InDelta(t, 0.1, out[2].Score, 1e-6)
	require.Zero(t, in[2].Score, "input must not be modified")
	require.NoError(t, h.Close())
}

func TestHugotRerankerRejectsBadIndexes(t *testing.T) {
	tests := []struct {
		name    string
		results []pipelines.CrossEncoderResult
	}{
		{name: "missing", results: []pipelines.CrossEncoderResult{{Index: 0}, {Index: 1}}},
		{name: "duplicate", results: []pipelines.CrossEncoderResult{{Index: 0}, {Index: 0}, {Index: 1}}},
		{name: "out of range", results: []pipelines.CrossEncoderResult{{Index: 0}, {Index: 1}, {Index: 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &hugotReranker{score: func(string, []string) ([]pipelines.CrossEncoderResult, error) {
				return tt.results, nil
			}}
			_, err := h.Rerank(context.Background(), "q", candidates())
			require.Error(t, err)
		})
	}
}

func TestUnknownReranker(t *testing.T) {
	_, err := New(context.Background(), "magic", Options{})
	require.True(t, appErr.IsConfig(err))
}

func TestPrepareModelRequiresSource(t *testing.T) {
	_, err := prepareModel(Options{})
	require.True(t, appErr.IsConfig(err))

	path, err := prepareModel(Options{ModelDir: "/models/local"})
	require.NoError(t, err)
	require.Equal(t, "/models/local", path)
}
