package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/policyrag/internal/model"
)

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
}

// Manager owns the generation model and the embedding gateway for the
// request path.
type Manager struct {
	answerer IGenerator
	embedder IEmbedder
	cfg      ManagerConfig
}

func NewManager(answerer IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		answerer: answerer,
		embedder: embedder,
		cfg:      cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return m.embedder.Embed(ctx, texts, taskType)
}

func (m *Manager) ModelName() string {
	return m.EmbeddingModelName()
}

// Answer asks the generation model to answer question from passages only.
func (m *Manager) Answer(ctx context.Context, question string, passages []model.RetrievalCandidate) (string, error) {
	if m.answerer == nil {
		return "", fmt.Errorf("answerer not configured")
	}
	return m.generateText(ctx, m.answerer, buildAnswerPrompt(question, passages, m.cfg.MaxInputChars))
}

func (m *Manager) generateText(ctx context.Context, gen IGenerator, prompt string) (string, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

// buildAnswerPrompt numbers the passages in rank order. Once maxChars runes
// of context are used the remaining passages are left out.
func buildAnswerPrompt(question string, passages []model.RetrievalCandidate, maxChars int) string {
	var sb strings.Builder
	used := 0
	for i, p := range passages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		n := len([]rune(text))
		if maxChars > 0 && used+n > maxChars && used > 0 {
			break
		}
		used += n
		fmt.Fprintf(&sb, "[%d] (source: %s)\n%s\n\n", i+1, p.Metadata.SourceLocator, text)
	}
	body := strings.TrimSpace(sb.String())
	if body == "" {
		body = "(no passages found)"
	}
	return fmt.Sprintf(`You are an assistant answering questions about company policies.
Answer the question using ONLY the passages below.
- Use the same language as the question.
- If the passages do not contain the answer, say that you could not find it in the policies.
- Cite passages by their number, e.g. [1].
- Output ONLY the answer.

PASSAGES:
%s

QUESTION:
%s`, body, strings.TrimSpace(question))
}
