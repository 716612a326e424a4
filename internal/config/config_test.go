package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const minimalConfig = `{
	"port": 8080,
	"database": {"dsn": "postgres://localhost/policyrag"},
	"file_store": {"type": "local", "dir": "/tmp/policyrag"},
	"ai": {"provider": "gemini", "model": "gemini-2.0-flash", "embed_model": "text-embedding-004", "data": {"api_key": "file-key"}},
	"vector_index": {"type": "pgvector", "dimension": 768},
	"rerank": {"type": "distance"}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.Equal(t, "gemini", cfg.AI.EmbedProvider)
	require.Equal(t, "file-key", cfg.AI.EmbedData["api_key"])
	require.Equal(t, 1000, cfg.Chunking.ChunkSize)
	require.Equal(t, 200, cfg.Chunking.ChunkOverlap)
	require.Equal(t, 5, cfg.Retrieval.TopK)
	require.Equal(t, 25, cfg.Retrieval.InitialTopK)
	require.Equal(t, 4, cfg.Worker.MaxAttempts)
	require.Equal(t, 5, cfg.Worker.BackoffBaseSeconds)
	require.Equal(t, "distance", cfg.Rerank.Type)
	require.Greater(t, cfg.Worker.StaleAfterSeconds, cfg.Worker.JobTimeoutSeconds)
	require.Equal(t, "policy_chunks", cfg.VectorIndex.Table)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvDBDSN, "postgres://env/policyrag")
	t.Setenv(EnvAIAPIKey, "env-key")
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	require.Equal(t, "postgres://env/policyrag", cfg.Database.DSN)
	require.Equal(t, "env-key", cfg.AI.Data["api_key"])
	require.Equal(t, "env-key", cfg.AI.EmbedData["api_key"])
}

func TestApplyEnvS3Secrets(t *testing.T) {
	cfg := &Config{}
	env := map[string]string{EnvS3SecretID: "id", EnvS3SecretKey: "key"}
	cfg.applyEnv(func(k string) string { return env[k] })
	require.Equal(t, "id", cfg.FileStore.S3.SecretID)
	require.Equal(t, "key", cfg.FileStore.S3.SecretKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "missing port", mutate: func(c *Config) { c.Port = 0 }},
		{name: "missing database", mutate: func(c *Config) { c.Database = DatabaseConfig{} }},
		{name: "bad store", mutate: func(c *Config) { c.FileStore.Type = "ftp" }},
		{name: "s3 without bucket", mutate: func(c *Config) { c.FileStore.Type = "s3" }},
		{name: "missing embed model", mutate: func(c *Config) { c.AI.EmbedModel = "" }},
		{name: "pgvector without dimension", mutate: func(c *Config) { c.VectorIndex.Dimension = 0 }},
		{name: "sqlite without path", mutate: func(c *Config) { c.VectorIndex.Type = "sqlite" }},
		{name: "unknown index", mutate: func(c *Config) { c.VectorIndex.Type = "faiss" }},
		{name: "http rerank without endpoint", mutate: func(c *Config) { c.Rerank.Type = "http" }},
		{name: "missing rerank type", mutate: func(c *Config) { c.Rerank.Type = "" }},
		{name: "hugot without model", mutate: func(c *Config) { c.Rerank.Type = "hugot" }},
		{name: "overlap too big", mutate: func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }},
		{name: "top_k above max", mutate: func(c *Config) { c.Retrieval.TopK = c.Retrieval.MaxTopK + 1 }},
		{name: "initial below top_k", mutate: func(c *Config) { c.Retrieval.InitialTopK = c.Retrieval.TopK - 1 }},
		{name: "stale reap before job timeout", mutate: func(c *Config) { c.Worker.StaleAfterSeconds = c.Worker.JobTimeoutSeconds }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			require.True(t, appErr.IsConfig(err))
		})
	}
}
