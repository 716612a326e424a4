package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"

	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const (
	EnvDBDSN       = "POLICYRAG_DB_DSN"
	EnvAIAPIKey    = "POLICYRAG_AI_API_KEY"
	EnvS3SecretID  = "POLICYRAG_S3_SECRET_ID"
	EnvS3SecretKey = "POLICYRAG_S3_SECRET_KEY"
)

type Config struct {
	Port        int               `json:"port"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	HTTP        HTTPConfig        `json:"http"`
	Database    DatabaseConfig    `json:"database"`
	FileStore   FileStoreConfig   `json:"file_store"`
	AI          AIConfig          `json:"ai"`
	VectorIndex VectorIndexConfig `json:"vector_index"`
	Rerank      RerankConfig      `json:"rerank"`
	Chunking    ChunkingConfig    `json:"chunking"`
	Retrieval   RetrievalConfig   `json:"retrieval"`
	Worker      WorkerConfig      `json:"worker"`
	EmbedCache  EmbedCacheConfig  `json:"embed_cache"`
	Jobs        JobsConfig        `json:"jobs"`
}

type HTTPConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	MaxUploadBytes int64    `json:"max_upload_bytes"`
	// AskIntervalMs is the minimum gap between two asks of one client and
	// tenant. Zero disables throttling.
	AskIntervalMs int `json:"ask_interval_ms"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type FileStoreConfig struct {
	Type      string   `json:"type"`
	Dir       string   `json:"dir"`
	PublicURL string   `json:"public_url"`
	S3        S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	PublicURL string `json:"public_url"`
	UseSSL    bool   `json:"use_ssl"`
}

// AIConfig selects the generation and embedding providers. Data and
// EmbedData are passed to the provider factory as is.
type AIConfig struct {
	Provider       string                 `json:"provider"`
	Model          string                 `json:"model"`
	Data           map[string]interface{} `json:"data"`
	EmbedProvider  string                 `json:"embed_provider"`
	EmbedModel     string                 `json:"embed_model"`
	EmbedData      map[string]interface{} `json:"embed_data"`
	EmbedBatchSize int                    `json:"embed_batch_size"`
	EmbedRPS       float64                `json:"embed_rps"`
	EmbedBurst     int                    `json:"embed_burst"`
	GenerateRPS    float64                `json:"generate_rps"`
	Timeout        int                    `json:"timeout"`
	MaxInputChars  int                    `json:"max_input_chars"`
	// Fallbacks are tried in order when the primary generator fails.
	Fallbacks []AIFallbackConfig `json:"fallbacks"`
	// EmbedFallbacks must produce vectors of the same model family and
	// dimension as the primary embedder.
	EmbedFallbacks []AIFallbackConfig `json:"embed_fallbacks"`
}

type AIFallbackConfig struct {
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Data     map[string]interface{} `json:"data"`
}

type VectorIndexConfig struct {
	Type       string `json:"type"`
	Table      string `json:"table"`
	Dimension  int    `json:"dimension"`
	SQLitePath string `json:"sqlite_path"`
}

type RerankConfig struct {
	Type         string `json:"type"`
	ModelName    string `json:"model_name"`
	ModelDir     string `json:"model_dir"`
	OnnxFilePath string `json:"onnx_file_path"`
	Endpoint     string `json:"endpoint"`
	Model        string `json:"model"`
	APIKey       string `json:"api_key"`
	Timeout      int    `json:"timeout"`
}

type ChunkingConfig struct {
	ChunkSize    int      `json:"chunk_size"`
	ChunkOverlap int      `json:"chunk_overlap"`
	Separators   []string `json:"separators"`
}

type RetrievalConfig struct {
	TopK        int `json:"top_k"`
	InitialTopK int `json:"initial_top_k"`
	MaxTopK     int `json:"max_top_k"`
	PoolSize    int `json:"pool_size"`
	Timeout     int `json:"timeout"`
}

type WorkerConfig struct {
	Concurrency        int    `json:"concurrency"`
	MaxAttempts        int    `json:"max_attempts"`
	BackoffBaseSeconds int    `json:"backoff_base_seconds"`
	PollSpec           string `json:"poll_spec"`
	StaleAfterSeconds  int    `json:"stale_after_seconds"`
	JobTimeoutSeconds  int    `json:"job_timeout_seconds"`
}

type EmbedCacheConfig struct {
	LRUSize       int  `json:"lru_size"`
	LRUTTLSeconds int  `json:"lru_ttl_seconds"`
	EnableDB      bool `json:"enable_db"`
	RetentionDays int  `json:"retention_days"`
}

type JobsConfig struct {
	EmbedCacheCleanupSpec string `json:"embed_cache_cleanup_spec"`
	StaleReaperSpec       string `json:"stale_reaper_spec"`
}

// Load reads the JSON config at path, applies environment overrides (an
// optional .env next to the working directory is loaded first), fills
// defaults and validates.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvDBDSN)); v != "" {
		c.Database.DSN = v
	}
	if v := strings.TrimSpace(getenv(EnvAIAPIKey)); v != "" {
		if c.AI.Data == nil {
			c.AI.Data = map[string]interface{}{}
		}
		if c.AI.EmbedData == nil {
			c.AI.EmbedData = map[string]interface{}{}
		}
		c.AI.Data["api_key"] = v
		c.AI.EmbedData["api_key"] = v
	}
	if v := strings.TrimSpace(getenv(EnvS3SecretID)); v != "" {
		c.FileStore.S3.SecretID = v
	}
	if v := strings.TrimSpace(getenv(EnvS3SecretKey)); v != "" {
		c.FileStore.S3.SecretKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.HTTP.MaxUploadBytes == 0 {
		c.HTTP.MaxUploadBytes = 20 << 20
	}
	if c.FileStore.Type == "" {
		c.FileStore.Type = "local"
	}
	if c.FileStore.Type == "s3" && c.FileStore.S3.Region == "" {
		c.FileStore.S3.Region = "us-east-1"
	}
	if c.AI.EmbedProvider == "" {
		c.AI.EmbedProvider = c.AI.Provider
	}
	if c.AI.EmbedData == nil {
		c.AI.EmbedData = c.AI.Data
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 60
	}
	if c.AI.EmbedBatchSize == 0 {
		c.AI.EmbedBatchSize = 100
	}
	if c.VectorIndex.Type == "" {
		c.VectorIndex.Type = "pgvector"
	}
	if c.VectorIndex.Table == "" {
		c.VectorIndex.Table = "policy_chunks"
	}
	if c.Rerank.Timeout == 0 {
		c.Rerank.Timeout = 30
	}
	if c.Chunking.ChunkSize == 0 {
		c.Chunking.ChunkSize = 1000
		if c.Chunking.ChunkOverlap == 0 {
			c.Chunking.ChunkOverlap = 200
		}
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.InitialTopK == 0 {
		c.Retrieval.InitialTopK = 25
	}
	if c.Retrieval.MaxTopK == 0 {
		c.Retrieval.MaxTopK = 50
	}
	if c.Retrieval.PoolSize == 0 {
		c.Retrieval.PoolSize = 8
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = 4
	}
	if c.Worker.BackoffBaseSeconds == 0 {
		c.Worker.BackoffBaseSeconds = 5
	}
	if c.Worker.PollSpec == "" {
		c.Worker.PollSpec = "@every 2s"
	}
	if c.Worker.StaleAfterSeconds == 0 {
		c.Worker.StaleAfterSeconds = 900
	}
	if c.Worker.JobTimeoutSeconds == 0 {
		c.Worker.JobTimeoutSeconds = 600
	}
	if c.EmbedCache.RetentionDays == 0 {
		c.EmbedCache.RetentionDays = 30
	}
	if c.Jobs.EmbedCacheCleanupSpec == "" {
		c.Jobs.EmbedCacheCleanupSpec = "@every 6h"
	}
	if c.Jobs.StaleReaperSpec == "" {
		c.Jobs.StaleReaperSpec = "@every 1m"
	}
}

func (c *Config) Validate() error {
	if c.Port == 0 {
		return appErr.Config("port is required")
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return appErr.Config("database.dsn or database.host is required")
	}
	switch c.FileStore.Type {
	case "local":
		if c.FileStore.Dir == "" {
			return appErr.Config("file_store.dir is required for local store")
		}
	case "s3":
		s3 := c.FileStore.S3
		if s3.Bucket == "" || s3.SecretID == "" || s3.SecretKey == "" {
			return appErr.Config("file_store.s3 bucket/secret_id/secret_key are required for s3 store")
		}
	default:
		return appErr.Config("file_store.type must be local or s3")
	}
	if c.AI.EmbedProvider == "" || c.AI.EmbedModel == "" {
		return appErr.Config("ai.embed_provider and ai.embed_model are required")
	}
	switch c.VectorIndex.Type {
	case "pgvector":
		if c.VectorIndex.Dimension <= 0 {
			return appErr.Config("vector_index.dimension must be positive for pgvector")
		}
	case "sqlite":
		if c.VectorIndex.SQLitePath == "" {
			return appErr.Config("vector_index.sqlite_path is required for sqlite")
		}
	default:
		return appErr.Config("vector_index.type must be pgvector or sqlite")
	}
	switch c.Rerank.Type {
	case "":
		return appErr.Config("rerank.type is required: hugot, http or distance")
	case "distance":
	case "hugot":
		if c.Rerank.ModelName == "" && c.Rerank.ModelDir == "" {
			return appErr.Config("rerank.model_name or rerank.model_dir is required for hugot")
		}
	case "http":
		if c.Rerank.Endpoint == "" {
			return appErr.Config("rerank.endpoint is required for http")
		}
	default:
		return appErr.Config("rerank.type must be distance, hugot or http")
	}
	if c.Chunking.ChunkSize <= 0 || c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return appErr.Config("chunking requires chunk_size > 0 and 0 <= chunk_overlap < chunk_size")
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.TopK > c.Retrieval.MaxTopK {
		return appErr.Config("retrieval.top_k must be in [1, %d]", c.Retrieval.MaxTopK)
	}
	if c.Retrieval.InitialTopK < c.Retrieval.TopK {
		return appErr.Config("retrieval.initial_top_k must not be smaller than retrieval.top_k")
	}
	if c.Worker.Concurrency <= 0 || c.Worker.MaxAttempts <= 0 {
		return appErr.Config("worker.concurrency and worker.max_attempts must be positive")
	}
	// A running job must not be reaped before its own deadline fires.
	if c.Worker.StaleAfterSeconds <= c.Worker.JobTimeoutSeconds {
		return appErr.Config("worker.stale_after_seconds must be greater than worker.job_timeout_seconds")
	}
	return nil
}
