package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/artifactstore"
	"github.com/kailas-cloud/ragdex/internal/blobstore"
	miniostore "github.com/kailas-cloud/ragdex/internal/blobstore/minio"
	s3store "github.com/kailas-cloud/ragdex/internal/blobstore/s3"
	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/corpus"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/lock"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
	openaiEmb "github.com/kailas-cloud/ragdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/ragdex/internal/usecase/embedding"
)

// app is the composition root shared by the subcommands. External clients
// are opened on first use, so a command only connects to what it needs.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	awsConfig func() (aws.Config, error)
	blobs     func() (blobstore.Store, error)
	database  func() (*dbRedis.Store, error)

	mu      sync.Mutex
	closers []func()
}

func newApp(jobLogger bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	newLogger := logpkg.NewLogger
	if jobLogger {
		newLogger = logpkg.NewJobLogger
	}
	logger, err := newLogger(flagEnv, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.awsConfig = sync.OnceValues(a.loadAWSConfig)
	a.blobs = sync.OnceValues(a.openBlobStore)
	a.database = sync.OnceValues(a.openDatabase)
	return a, nil
}

// Close releases opened clients and flushes the logger.
func (a *app) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for _, c := range closers {
		c()
	}
	_ = a.logger.Sync()
}

func (a *app) onClose(fn func()) {
	a.mu.Lock()
	a.closers = append(a.closers, fn)
	a.mu.Unlock()
}

func (a *app) loadAWSConfig() (aws.Config, error) {
	sc := a.cfg.Store
	var opts []func(*awsconfig.LoadOptions) error
	if sc.Region != "" {
		opts = append(opts, awsconfig.WithRegion(sc.Region))
	}
	if sc.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func (a *app) openBlobStore() (blobstore.Store, error) {
	sc := a.cfg.Store
	switch sc.Driver {
	case "local":
		store := blobstore.NewLocalStore(sc.Dir)
		if sc.Prefix != "" {
			return blobstore.WithPrefix(store, sc.Prefix), nil
		}
		return store, nil
	case "memory":
		return blobstore.NewMemoryStore(), nil
	case "s3":
		awsCfg, err := a.awsConfig()
		if err != nil {
			return nil, err
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if sc.Endpoint != "" {
				o.BaseEndpoint = aws.String(sc.Endpoint)
				o.UsePathStyle = true
			}
		})
		return s3store.NewStore(client, sc.Bucket, sc.Prefix), nil
	case "minio":
		client, err := minio.New(sc.Endpoint, &minio.Options{
			Creds:  miniocreds.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
			Secure: sc.UseSSL,
			Region: sc.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio client: %w", err)
		}
		return miniostore.NewStore(client, sc.Bucket, sc.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

func (a *app) openDatabase() (*dbRedis.Store, error) {
	dc := a.cfg.Database
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    dc.Addrs,
		Password: dc.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database store: %w", err)
	}
	if err := store.WaitForReady(context.Background(), config.Seconds(dc.ReadinessTimeout)); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	a.onClose(store.Close)
	a.logger.Info("Connected to database", zap.Strings("db_addrs", dc.Addrs))
	return store, nil
}

// repo opens the versioned artifact store. Objects and commits live under
// repos/<name> of the blob store, next to the corpus prefix.
func (a *app) repo() (*artifactstore.Repo, error) {
	base, err := a.blobs()
	if err != nil {
		return nil, err
	}
	rc := a.cfg.Store.Refs
	store := blobstore.WithPrefix(base, "repos/"+rc.Repo)

	var refs artifactstore.Refs
	switch rc.Driver {
	case "dynamodb":
		awsCfg, err := a.awsConfig()
		if err != nil {
			return nil, err
		}
		refs = artifactstore.NewDynamoRefs(dynamodb.NewFromConfig(awsCfg), rc.Table, rc.Repo)
	default:
		refs = artifactstore.NewBlobRefs(store)
	}
	return artifactstore.New(store, refs, a.logger.Named("store")), nil
}

func (a *app) source() (corpus.Source, error) {
	cc := a.cfg.Corpus
	if cc.Driver != "store" {
		return corpus.LocalSource{Dir: cc.Dir}, nil
	}
	base, err := a.blobs()
	if err != nil {
		return nil, err
	}
	sc := a.cfg.Store
	return corpus.BlobSource{
		Store:  base,
		Prefix: cc.Prefix,
		Label:  fmt.Sprintf("%s://%s/%s", sc.Driver, sc.Bucket, cc.Prefix),
	}, nil
}

// embedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
// The bare provider is returned as well for health checks.
func (a *app) embedder() (domain.Embedder, *openaiEmb.Embedder, error) {
	metrics.RegisterEmbeddingMetrics()

	ec := a.cfg.Embedding
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		Provider:   ec.Provider,
		Logger:     a.logger,
	})

	var embedder domain.Embedder = base
	if ec.Cache {
		store, err := a.database()
		if err != nil {
			return nil, nil, err
		}
		embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, a.logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, embeddinguc.Options{
		Provider:          ec.Provider,
		BatchSize:         ec.BatchSize,
		RequestsPerSecond: ec.RequestsPerSecond,
	}, a.logger)
	return embedder, base, nil
}

func (a *app) lock() (lock.Lock, error) {
	rc := a.cfg.Reindex
	staleAfter := config.Seconds(rc.LockStaleSec)
	logger := a.logger.Named("lock")

	if rc.LockDriver == "redis" {
		store, err := a.database()
		if err != nil {
			return nil, err
		}
		key := rc.LockKey
		if key == "" {
			key = lock.DefaultRedisKey
		}
		return lock.NewRedisLock(store, key, staleAfter, logger), nil
	}

	path := a.cfg.LockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return lock.NewFileLock(path, staleAfter, logger), nil
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
