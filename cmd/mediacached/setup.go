package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/mediacache"
	"github.com/hupe1980/mediacache/blobstore"
	dynamoalloc "github.com/hupe1980/mediacache/blobstore/dynamodb"
	redisalloc "github.com/hupe1980/mediacache/blobstore/redis"
	"github.com/hupe1980/mediacache/catalog"
	"github.com/hupe1980/mediacache/internal/config"
	"github.com/hupe1980/mediacache/storage"
	miniostore "github.com/hupe1980/mediacache/storage/minio"
	s3store "github.com/hupe1980/mediacache/storage/s3"
	sftpstore "github.com/hupe1980/mediacache/storage/sftp"
	"github.com/hupe1980/mediacache/storage/webdav"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/ssh"
)

// loadConfig reads --config (or the defaults), applies flag overrides and
// validates the result.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if p := c.String("config"); p != "" {
		var err error
		if cfg, err = config.Load(p); err != nil {
			return nil, err
		}
	}

	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("backend-root") {
		cfg.Backend.Kind = config.BackendLocal
		cfg.Backend.Local.Root = c.String("backend-root")
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("cache-dir") {
		cfg.Cache.Dir = c.String("cache-dir")
	}
	if c.IsSet("capacity") {
		cfg.Cache.Capacity = c.Int("capacity")
	}
	if c.IsSet("refresh-interval") {
		cfg.Catalog.RefreshInterval = c.Duration("refresh-interval")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *mediacache.Logger {
	level, _ := cfg.LogLevel()
	if cfg.Log.Format == "json" {
		return mediacache.NewJSONLogger(level)
	}
	return mediacache.NewTextLogger(level)
}

// cleanup collects close functions and runs them in reverse order.
type cleanup []func() error

func (c *cleanup) add(fn func() error) { *c = append(*c, fn) }

func (c cleanup) run() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// openBackend connects the configured storage backend.
func openBackend(ctx context.Context, cfg config.BackendConfig, closers *cleanup) (storage.Backend, error) {
	switch cfg.Kind {
	case config.BackendLocal:
		info, err := os.Stat(cfg.Local.Root)
		if err != nil {
			return nil, fmt.Errorf("backend root: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("backend root %s is not a directory", cfg.Local.Root)
		}
		return storage.NewLocalStore(cfg.Local.Root), nil

	case config.BackendS3:
		awsCfg, err := loadAWSConfig(ctx, cfg.S3.Region)
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			}
			o.UsePathStyle = cfg.S3.UsePathStyle
		})
		return s3store.NewStore(client, cfg.S3.Bucket, cfg.S3.Prefix), nil

	case config.BackendMinIO:
		client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return miniostore.NewStore(client, cfg.MinIO.Bucket, cfg.MinIO.Prefix), nil

	case config.BackendSFTP:
		sshCfg, err := sshClientConfig(cfg.SFTP)
		if err != nil {
			return nil, err
		}
		store, err := sftpstore.Dial(cfg.SFTP.Addr, cfg.SFTP.Root, sshCfg)
		if err != nil {
			return nil, err
		}
		closers.add(store.Close)
		return store, nil

	case config.BackendWebDAV:
		var opts []webdav.Option
		if cfg.WebDAV.User != "" {
			opts = append(opts, webdav.WithBasicAuth(cfg.WebDAV.User, cfg.WebDAV.Password))
		}
		store, err := webdav.NewStore(cfg.WebDAV.URL, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}

func sshClientConfig(cfg config.SFTPConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read sftp key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse sftp key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	hostKey, err := sftpstore.HostKeyCallback(cfg.KnownHosts)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}, nil
}

// serviceOptions translates the cache and resource sections into service
// options, connecting a shared ID allocator when one is configured.
func serviceOptions(ctx context.Context, cfg *config.Config, logger *mediacache.Logger, metrics mediacache.MetricsCollector, closers *cleanup) ([]mediacache.Option, error) {
	opts := []mediacache.Option{
		mediacache.WithLogger(logger),
		mediacache.WithMetricsCollector(metrics),
		mediacache.WithCacheCapacity(cfg.Cache.Capacity),
		mediacache.WithFlushThreshold(int(cfg.Cache.FlushThreshold)),
		mediacache.WithMaxConcurrentFetches(cfg.Resources.MaxConcurrentFetches),
		mediacache.WithBufferLimit(int64(cfg.Resources.BufferLimit)),
		mediacache.WithFetchRate(int64(cfg.Resources.FetchRate)),
	}
	if cfg.Cache.Dir == "" {
		return opts, nil
	}

	compression, err := blobstore.ParseCompression(cfg.Cache.Compression)
	if err != nil {
		return nil, err
	}
	blobOpts := []blobstore.Option{
		blobstore.WithCompression(compression),
		blobstore.WithSync(cfg.Cache.Sync),
		blobstore.WithPurgeOnClose(cfg.Cache.PurgeOnClose),
	}

	alloc := cfg.Cache.Allocator
	switch alloc.Kind {
	case config.AllocatorRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     alloc.Redis.Addr,
			Password: alloc.Redis.Password,
			DB:       alloc.Redis.DB,
		})
		closers.add(client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", alloc.Redis.Addr, err)
		}
		blobOpts = append(blobOpts, blobstore.WithAllocator(redisalloc.NewAllocator(client, alloc.Redis.Key)))
	case config.AllocatorDynamoDB:
		awsCfg, err := loadAWSConfig(ctx, alloc.DynamoDB.Region)
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		blobOpts = append(blobOpts, blobstore.WithAllocator(dynamoalloc.NewAllocator(client, alloc.DynamoDB.Table, alloc.DynamoDB.Key)))
	}

	return append(opts, mediacache.WithCacheDir(cfg.Cache.Dir, blobOpts...)), nil
}

func catalogOptions(cfg config.CatalogConfig, logger *mediacache.Logger) []catalog.Option {
	opts := []catalog.Option{
		catalog.WithRoot(cfg.Root),
		catalog.WithLogger(logger.Logger),
	}
	if len(cfg.Extensions) > 0 {
		opts = append(opts, catalog.WithExtensions(cfg.Extensions...))
	}
	if len(cfg.Sidecars) > 0 {
		opts = append(opts, catalog.WithSidecarExtensions(cfg.Sidecars...))
	}
	return opts
}
