package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"docqa/internal/domain/ingest"
	"docqa/internal/domain/retrieval"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string              `json:"log_level"`
	LogFormat string              `json:"log_format"`
	Server    ServerConfig        `json:"server"`
	Database  DatabaseConfig      `json:"database"`
	Redis     RedisConfig         `json:"redis"`
	S3        S3Config            `json:"s3"`
	Qdrant    QdrantConfig        `json:"qdrant"`
	Auth      AuthConfig          `json:"auth"`
	OpenAI    OpenAIConfig        `json:"openai"`
	Retrieval retrieval.Config    `json:"retrieval"`
	Worker    ingest.WorkerConfig `json:"worker"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	URL                    string `json:"url"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// S3Config 对象存储配置。RawBucket 放原始文件，DocBucket 放父块。
type S3Config struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
	RawBucket string `json:"raw_bucket"`
	DocBucket string `json:"doc_bucket"`
}

type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	APIKey     string `json:"api_key"`
	UseTLS     bool   `json:"use_tls"`
	Collection string `json:"collection"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	JWTIssuer string `json:"jwt_issuer"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	retCfg := retrieval.DefaultConfig()
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 120,
		},
		Database: DatabaseConfig{
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeSeconds: 300,
		},
		S3: S3Config{
			Region:    "us-east-1",
			RawBucket: "documents",
			DocBucket: "parent-docs",
		},
		Qdrant: QdrantConfig{
			Port:       6334,
			Collection: "doc_chunks",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Retrieval: *retCfg,
		Worker:    ingest.DefaultWorkerConfig(),
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)

	applyString("DATABASE_URL", &c.Database.URL)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)

	applyString("REDIS_URL", &c.Redis.URL)

	applyString("S3_ENDPOINT", &c.S3.Endpoint)
	applyString("S3_ACCESS_KEY", &c.S3.AccessKey)
	applyString("S3_SECRET_KEY", &c.S3.SecretKey)
	applyString("S3_REGION", &c.S3.Region)
	applyBool("S3_USE_SSL", &c.S3.UseSSL)
	applyString("S3_RAW_BUCKET", &c.S3.RawBucket)
	applyString("S3_DOC_BUCKET", &c.S3.DocBucket)

	applyString("QDRANT_HOST", &c.Qdrant.Host)
	applyInt("QDRANT_PORT", &c.Qdrant.Port)
	applyString("QDRANT_API_KEY", &c.Qdrant.APIKey)
	applyBool("QDRANT_USE_TLS", &c.Qdrant.UseTLS)
	applyString("QDRANT_COLLECTION", &c.Qdrant.Collection)

	applyString("JWT_SECRET", &c.Auth.JWTSecret)
	applyString("JWT_ISSUER", &c.Auth.JWTIssuer)

	applyString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	applyString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)

	applyInt("RETRIEVAL_PARENT_CHUNK_SIZE", &c.Retrieval.ParentChunkSize)
	applyInt("RETRIEVAL_CHILD_CHUNK_SIZE", &c.Retrieval.ChildChunkSize)
	applyInt("RETRIEVAL_CHILD_CHUNK_OVERLAP", &c.Retrieval.ChildChunkOverlap)
	applyInt("RETRIEVAL_DEFAULT_TOP_K", &c.Retrieval.DefaultTopK)
	applyInt("RETRIEVAL_CANDIDATE_MULTIPLIER", &c.Retrieval.CandidateMultiplier)
	applyInt("RETRIEVAL_MIN_CANDIDATES", &c.Retrieval.MinCandidates)
	applyInt("RETRIEVAL_FETCH_WORKERS", &c.Retrieval.FetchWorkers)
	applyInt("RETRIEVAL_MAX_HISTORY_TURNS", &c.Retrieval.MaxHistoryTurns)
	applyInt("RETRIEVAL_CACHE_TTL", &c.Retrieval.CacheTTLSeconds)
	applyString("EMBEDDING_MODEL", &c.Retrieval.EmbeddingModel)
	applyInt("EMBEDDING_DIMS", &c.Retrieval.EmbeddingDims)
	applyBool("ENABLE_REWRITE", &c.Retrieval.EnableRewrite)
	applyString("REWRITE_LLM_PROVIDER", &c.Retrieval.RewriteProvider)
	applyString("REWRITE_LLM_MODEL", &c.Retrieval.RewriteModel)
	applyBool("ENABLE_RERANK", &c.Retrieval.EnableRerank)
	applyString("RERANK_LLM_PROVIDER", &c.Retrieval.RerankProvider)
	applyString("RERANK_LLM_MODEL", &c.Retrieval.RerankModel)

	applyInt("WORKER_CONSUMERS", &c.Worker.Consumers)
	applyInt("WORKER_DEQUEUE_TIMEOUT", &c.Worker.DequeueTimeoutSeconds)
	applyInt("WORKER_PROMOTE_INTERVAL", &c.Worker.PromoteIntervalSeconds)
	applyInt("WORKER_LOCKED_REQUEUE_DELAY", &c.Worker.LockedRequeueSeconds)
	applyInt("WORKER_BACKOFF_BASE", &c.Worker.BackoffBaseSeconds)
	applyInt("WORKER_BACKOFF_CAP", &c.Worker.BackoffCapSeconds)
}

func (c *AppConfig) normalize() {
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.Retrieval.RewriteProvider == "" {
		c.Retrieval.RewriteProvider = "openai"
	}
	if c.Retrieval.RerankProvider == "" {
		c.Retrieval.RerankProvider = "openai"
	}
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.Redis.URL) == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if strings.TrimSpace(c.S3.Endpoint) == "" {
		return fmt.Errorf("S3_ENDPOINT is required")
	}
	if strings.TrimSpace(c.Qdrant.Host) == "" {
		return fmt.Errorf("QDRANT_HOST is required")
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
