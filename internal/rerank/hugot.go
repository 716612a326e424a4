package rerank

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const defaultOnnxFilePath = "onnx/model.onnx"

type scoreFunc func(query string, documents []string) ([]pipelines.CrossEncoderResult, error)

// hugotReranker runs a cross-encoder over (query, passage) pairs. The model
// is loaded once, inference is serialised on the session.
type hugotReranker struct {
	name    string
	mu      sync.Mutex
	score   scoreFunc
	destroy func() error
}

func NewHugot(ctx context.Context, opts Options) (Reranker, error) {
	modelPath, err := prepareModel(opts)
	if err != nil {
		return nil, err
	}
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create hugot session: %w", err)
	}
	pipeline, err := hugot.NewPipeline(session, hugot.CrossEncoderConfig{
		ModelPath: modelPath,
		Name:      "rerank-pipeline",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("create rerank pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("create rerank pipeline: %w", err)
	}
	name := opts.ModelName
	if name == "" {
		name = modelPath
	}
	logutil.GetLogger(ctx).Info("hugot rerank model loaded", zap.String("model", name), zap.String("path", modelPath))
	return &hugotReranker{
		name: name,
		score: func(query string, documents []string) ([]pipelines.CrossEncoderResult, error) {
			res, err := pipeline.RunPipeline(query, documents)
			if err != nil {
				return nil, err
			}
			return res.Results, nil
		},
		destroy: session.Destroy,
	}, nil
}

// prepareModel returns a local model directory, downloading opts.ModelName
// from the hub into opts.ModelDir when it is not there yet.
func prepareModel(opts Options) (string, error) {
	if opts.ModelName == "" {
		if opts.ModelDir == "" {
			return "", appErr.Config("rerank model_name or model_dir is required")
		}
		return opts.ModelDir, nil
	}
	dir := opts.ModelDir
	if dir == "" {
		dir = "./models"
	}
	local := filepath.Join(dir, strings.ReplaceAll(opts.ModelName, "/", "_"))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = defaultOnnxFilePath
	if opts.OnnxFilePath != "" {
		downloadOptions.OnnxFilePath = opts.OnnxFilePath
	}
	path, err := hugot.DownloadModel(opts.ModelName, dir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("download rerank model %s: %w", opts.ModelName, err)
	}
	return path, nil
}

func (h *hugotReranker) Rerank(ctx context.Context, query string, candidates []model.RetrievalCandidate) ([]model.RetrievalCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	documents := make([]string, 0, len(candidates))
	for _, c := range candidates {
		documents = append(documents, c.Text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	results, err := h.score(query, documents)
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run rerank pipeline: %w", err)
	}
	if len(results) != len(candidates) {
		return nil, fmt.Errorf("rerank pipeline returned %d scores for %d candidates", len(results), len(candidates))
	}
	out := cloneCandidates(candidates)
	seen := make([]bool, len(out))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(out) || seen[res.Index] {
			return nil, fmt.Errorf("rerank pipeline returned invalid index %d", res.Index)
		}
		seen[res.Index] = true
		out[res.Index].Score = float64(res.Score)
	}
	SortByScore(out)
	return out, nil
}

func (h *hugotReranker) ModelName() string {
	return h.name
}

func (h *hugotReranker) Close() error {
	if h.destroy == nil {
		return nil
	}
	return h.destroy()
}

func init() {
	Register("hugot", NewHugot)
}
