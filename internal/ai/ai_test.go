package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/policyrag/internal/model"
)

type fakeEmbedProvider struct {
	calls   [][]string
	dropOne bool
	err     error
}

func (f *fakeEmbedProvider) Name() string { return "fake" }

func (f *fakeEmbedProvider) Embed(_ context.Context, _ string, texts []string, _ string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, []float32{float32(len(text))})
	}
	if f.dropOne && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func TestEmbedderSplitsBatchesAndKeepsOrder(t *testing.T) {
	p := &fakeEmbedProvider{}
	e := NewEmbedder(p, "m", 2)
	out, err := e.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"}, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1}, {2}, {3}, {4}, {5}}, out)
	require.Len(t, p.calls, 3)
	require.Equal(t, "m", e.ModelName())
}

func TestEmbedderEmptyInput(t *testing.T) {
	p := &fakeEmbedProvider{}
	out, err := NewEmbedder(p, "m", 0).Embed(context.Background(), nil, TaskRetrievalQuery)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Empty(t, p.calls)
}

func TestEmbedderRejectsLengthMismatch(t *testing.T) {
	p := &fakeEmbedProvider{dropOne: true}
	_, err := NewEmbedder(p, "m", 0).Embed(context.Background(), []string{"a", "b"}, TaskRetrievalDocument)
	require.Error(t, err)
}

type fakeEmbedder struct {
	name string
	err  error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return f.name }

func TestGroupEmbedderFallsBack(t *testing.T) {
	g := NewGroupEmbedder([]EmbedderEntry{
		{Name: "first", Embedder: &fakeEmbedder{name: "first", err: errors.New("down")}},
		{Name: "second", Embedder: &fakeEmbedder{name: "second"}},
	})
	out, err := g.Embed(context.Background(), []string{"a", "b"}, TaskRetrievalQuery)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "first|second", g.ModelName())
}

func TestGroupEmbedderReturnsLastError(t *testing.T) {
	boom := errors.New("boom")
	g := NewGroupEmbedder([]EmbedderEntry{{Name: "only", Embedder: &fakeEmbedder{err: boom}}})
	_, err := g.Embed(context.Background(), []string{"a"}, TaskRetrievalQuery)
	require.ErrorIs(t, err, boom)
}

func TestGroupSkipsNilEntries(t *testing.T) {
	require.Nil(t, NewGroupEmbedder([]EmbedderEntry{{Name: "nil"}}))
	require.Nil(t, NewGroupGenerator(nil))

	g := NewGroupEmbedder([]EmbedderEntry{{Name: "nil"}, {Name: "real", Embedder: &fakeEmbedder{name: "real"}}})
	require.Equal(t, "real", g.ModelName())
}

type failingGenerator struct{ calls int }

func (f *failingGenerator) Generate(context.Context, string) (string, error) {
	f.calls++
	return "", errors.New("quota")
}

func TestGroupGeneratorFallsBack(t *testing.T) {
	first := &failingGenerator{}
	second := &recordingGenerator{reply: "ok"}
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "first", Generator: first},
		{Name: "second", Generator: second},
	})
	out, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 1, first.calls)
}

func TestRateLimitedEmbedderHonoursContext(t *testing.T) {
	e := WithEmbedRateLimit(&fakeEmbedder{name: "x"}, 0.001, 1)
	_, err := e.Embed(context.Background(), []string{"a"}, TaskRetrievalQuery)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Embed(ctx, []string{"a"}, TaskRetrievalQuery)
	require.Error(t, err)
	require.Equal(t, "x", e.ModelName())
}

func TestRateLimitDisabled(t *testing.T) {
	inner := &fakeEmbedder{name: "x"}
	require.Same(t, inner, WithEmbedRateLimit(inner, 0, 0))
}

func TestOpenAIEmbedSortsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"first", "second"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	p, err := NewEmbedProvider("openai", map[string]interface{}{"api_key": "key", "base_url": srv.URL})
	require.NoError(t, err)
	out, err := p.Embed(context.Background(), "text-embedding-3-small", []string{"first", "second"}, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1}, {2}}, out)
}

func TestOpenAIWithoutKeyIsUnavailable(t *testing.T) {
	p, err := NewProvider("openai", map[string]interface{}{})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "gpt", "hi")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestUnknownProvider(t *testing.T) {
	_, err := NewProvider("nope", map[string]interface{}{})
	require.Error(t, err)
	_, err = NewEmbedProvider("", nil)
	require.Error(t, err)
}

type recordingGenerator struct {
	prompt string
	reply  string
}

func (r *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	r.prompt = prompt
	return r.reply, nil
}

func TestManagerAnswerBuildsGroundedPrompt(t *testing.T) {
	gen := &recordingGenerator{reply: "  Staff get 20 days [1].  "}
	m := NewManager(gen, nil, ManagerConfig{Timeout: 5})
	answer, err := m.Answer(context.Background(), "How much leave?", []model.RetrievalCandidate{
		{Text: "Staff get 20 days of annual leave.", Metadata: model.RecordMetadata{SourceLocator: "t1/leave.pdf"}},
		{Text: "   "},
	})
	require.NoError(t, err)
	require.Equal(t, "Staff get 20 days [1].", answer)
	require.Contains(t, gen.prompt, "[1] (source: t1/leave.pdf)")
	require.Contains(t, gen.prompt, "How much leave?")
	require.NotContains(t, gen.prompt, "[2]")
}

func TestManagerAnswerRejectsEmptyReply(t *testing.T) {
	m := NewManager(&recordingGenerator{reply: " "}, nil, ManagerConfig{})
	_, err := m.Answer(context.Background(), "q", nil)
	require.Error(t, err)
}

func TestBuildAnswerPromptRespectsBudget(t *testing.T) {
	prompt := buildAnswerPrompt("q", []model.RetrievalCandidate{
		{Text: "0123456789"},
		{Text: "abcdefghij"},
	}, 15)
	require.Contains(t, prompt, "0123456789")
	require.NotContains(t, prompt, "abcdefghij")
}
