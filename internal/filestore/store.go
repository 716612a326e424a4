package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/xxxsen/policyrag/internal/config"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

// Store keeps uploaded documents. Keys are slash separated relative paths
// such as "<tenant>/<uuid>_<filename>".
type Store interface {
	Type() string
	Bucket() string
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (*Object, error)
	URL(key string) string
}

type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.FileStoreConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, appErr.Config("file_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, appErr.Config("unsupported file store type: %s", cfg.Type)
	}
	var args interface{} = localConfig{Dir: cfg.Dir, PublicURL: cfg.PublicURL}
	if key == "s3" {
		args = cfg.S3
	}
	return factory(args)
}

// cleanKey rejects empty, absolute and parent escaping keys.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || strings.HasPrefix(key, "/") {
		return "", appErr.Invalid("invalid file key %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", appErr.Invalid("invalid file key %q", key)
	}
	return cleaned, nil
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}
