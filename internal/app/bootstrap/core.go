package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	miniodb "docqa/internal/db/minio"
	"docqa/internal/db/postgres"
	qdrantdb "docqa/internal/db/qdrant"
	redisdb "docqa/internal/db/redis"
	"docqa/internal/domain/ingest"
	"docqa/internal/domain/retrieval"
	"docqa/internal/platform/config"
	applog "docqa/internal/platform/log"
)

// Core 服务端和 worker 共用的核心组件
type Core struct {
	DB        *sql.DB
	Redis     *goredis.Client
	Tracker   *postgres.TrackingStore
	RawStore  *miniodb.ObjectStore
	DocStore  *retrieval.DocStore
	Index     *qdrantdb.Client
	Retriever *retrieval.ParentChildRetriever
	Queue     *redisdb.IngestQueue
	Lock      *redisdb.FileLock
	Registry  *ingest.ParserRegistry
	Scanner   *ingest.Scanner
	Sweeper   *ingest.Sweeper
}

// BuildCore 按配置装配核心组件：PostgreSQL、Redis、对象存储、向量索引、检索引擎。
func BuildCore(ctx context.Context, cfg *config.AppConfig) (*Core, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	applog.Info("✅ Connected to PostgreSQL")

	tracker := postgres.NewTrackingStore(db)
	if err := tracker.EnsureTable(ctx); err != nil {
		return nil, err
	}

	opt, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	redisClient := goredis.NewClient(opt)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	applog.Info("✅ Connected to Redis")

	rawStore, err := miniodb.NewObjectStore(miniodb.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.RawBucket,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	parentStore, err := miniodb.NewObjectStore(miniodb.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.DocBucket,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := rawStore.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	if err := parentStore.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	applog.Infof("✅ Object storage ready (raw: %s, docs: %s)", cfg.S3.RawBucket, cfg.S3.DocBucket)

	index, err := qdrantdb.NewClient(qdrantdb.Config{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
		DenseDims:  cfg.Retrieval.EmbeddingDims,
	})
	if err != nil {
		return nil, err
	}
	if err := index.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	applog.Infof("✅ Vector index ready (collection: %s, dims: %d)", cfg.Qdrant.Collection, cfg.Retrieval.EmbeddingDims)

	docCache := redisdb.NewDocCache(redisClient, cfg.Retrieval.CacheTTLSeconds)
	docStore := retrieval.NewDocStore(parentStore, docCache, cfg.Retrieval.FetchWorkers)

	embedder := retrieval.NewOpenAIEmbedder(retrieval.OpenAIEmbedderConfig{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.Retrieval.EmbeddingModel,
		Dims:    cfg.Retrieval.EmbeddingDims,
	})
	sparse := retrieval.NewBM25Encoder()

	retriever := retrieval.NewParentChildRetriever(index, docStore, embedder, sparse, &cfg.Retrieval)

	queue := redisdb.NewIngestQueue(redisClient)
	lock := redisdb.NewFileLock(redisClient, 30*time.Minute)
	registry := ingest.NewParserRegistry()
	scanner := ingest.NewScanner(rawStore, tracker, queue, registry)
	sweeper := ingest.NewSweeper(index, docStore)

	return &Core{
		DB:        db,
		Redis:     redisClient,
		Tracker:   tracker,
		RawStore:  rawStore,
		DocStore:  docStore,
		Index:     index,
		Retriever: retriever,
		Queue:     queue,
		Lock:      lock,
		Registry:  registry,
		Scanner:   scanner,
		Sweeper:   sweeper,
	}, nil
}

// Close 释放连接
func (c *Core) Close() {
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Redis != nil {
		c.Redis.Close()
	}
}
