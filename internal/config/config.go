// Package config loads the mediacached YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hupe1980/mediacache/blobstore"
	"github.com/hupe1980/mediacache/chunk"
	"github.com/hupe1980/mediacache/codec"
	"github.com/hupe1980/mediacache/fetch"
	"gopkg.in/yaml.v3"
)

// Backend kinds.
const (
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendMinIO  = "minio"
	BackendSFTP   = "sftp"
	BackendWebDAV = "webdav"
)

// Allocator kinds.
const (
	AllocatorBolt     = "bolt"
	AllocatorRedis    = "redis"
	AllocatorDynamoDB = "dynamodb"
)

// ByteSize is a byte count that decodes from an integer or a human readable
// string such as "16MiB".
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: byte size must be a scalar", value.Line)
	}
	n, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Config is the top-level daemon configuration.
type Config struct {
	// Listen is the HTTP listen address. Defaults to ":8080".
	Listen string `yaml:"listen"`

	// Codec names the JSON codec for responses and catalog snapshots.
	Codec string `yaml:"codec"`

	Log       LogConfig      `yaml:"log"`
	Cache     CacheConfig    `yaml:"cache"`
	Resources ResourceConfig `yaml:"resources"`
	Backend   BackendConfig  `yaml:"backend"`
	Catalog   CatalogConfig  `yaml:"catalog"`
}

// LogConfig selects the log format and level.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// CacheConfig configures the chunk cache and its blob store.
type CacheConfig struct {
	// Dir holds blobs, the ID database and the lock file. Empty keeps chunk
	// data in memory.
	Dir string `yaml:"dir"`

	// Capacity is the number of cached assets.
	Capacity int `yaml:"capacity"`

	// FlushThreshold is the size of buffer chunks.
	FlushThreshold ByteSize `yaml:"flush_threshold"`

	// Compression is none, lz4 or zstd.
	Compression string `yaml:"compression"`

	Sync         bool `yaml:"sync"`
	PurgeOnClose bool `yaml:"purge_on_close"`

	Allocator AllocatorConfig `yaml:"allocator"`
}

// AllocatorConfig selects where blob IDs come from.
type AllocatorConfig struct {
	// Kind is bolt (default), redis or dynamodb.
	Kind string `yaml:"kind"`

	Redis    RedisConfig    `yaml:"redis"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// RedisConfig configures the Redis counter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// DynamoDBConfig configures the DynamoDB counter.
type DynamoDBConfig struct {
	Table  string `yaml:"table"`
	Key    string `yaml:"key"`
	Region string `yaml:"region"`
}

// ResourceConfig bounds fetch concurrency, memory and bandwidth.
type ResourceConfig struct {
	MaxConcurrentFetches int64    `yaml:"max_concurrent_fetches"`
	BufferLimit          ByteSize `yaml:"buffer_limit"`
	// FetchRate caps upstream bytes per second; 0 disables the limit.
	FetchRate ByteSize `yaml:"fetch_rate"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	Kind string `yaml:"kind"`

	Local  LocalConfig  `yaml:"local"`
	S3     S3Config     `yaml:"s3"`
	MinIO  MinIOConfig  `yaml:"minio"`
	SFTP   SFTPConfig   `yaml:"sftp"`
	WebDAV WebDAVConfig `yaml:"webdav"`
}

// LocalConfig configures a local directory backend.
type LocalConfig struct {
	Root string `yaml:"root"`
}

// S3Config configures an S3 backend. Credentials come from the default AWS
// chain.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// MinIOConfig configures a MinIO backend.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// SFTPConfig configures an SFTP backend.
type SFTPConfig struct {
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	KeyFile  string `yaml:"key_file"`
	// KnownHosts is an OpenSSH known_hosts file. Empty disables host key
	// verification.
	KnownHosts string        `yaml:"known_hosts"`
	Root       string        `yaml:"root"`
	Timeout    time.Duration `yaml:"timeout"`
}

// WebDAVConfig configures a WebDAV backend.
type WebDAVConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// CatalogConfig configures asset discovery.
type CatalogConfig struct {
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
	Sidecars   []string `yaml:"sidecars"`
	// RefreshInterval rescans the backend periodically; 0 scans once.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// Snapshot is a JSON file the catalog is loaded from at startup and saved
	// to after every scan.
	Snapshot string `yaml:"snapshot"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Load reads a configuration from a YAML file and applies defaults. Unknown
// keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	var c Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	c.ApplyDefaults()
	return &c, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = chunk.DefaultCapacity
	}
	if c.Cache.FlushThreshold == 0 {
		c.Cache.FlushThreshold = fetch.DefaultFlushThreshold
	}
	if c.Cache.Allocator.Kind == "" {
		c.Cache.Allocator.Kind = AllocatorBolt
	}
	if c.Resources.MaxConcurrentFetches == 0 {
		c.Resources.MaxConcurrentFetches = 16
	}
	if c.Resources.BufferLimit == 0 {
		c.Resources.BufferLimit = 256 << 20
	}
	if c.Backend.Kind == "" {
		c.Backend.Kind = BackendLocal
	}
	if c.Backend.SFTP.Timeout == 0 {
		c.Backend.SFTP.Timeout = 10 * time.Second
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, ok := codec.ByName(c.Codec); !ok {
		add("unknown codec %q", c.Codec)
	}

	if c.Cache.Capacity < 0 {
		add("cache.capacity must not be negative")
	}
	if c.Cache.FlushThreshold < 0 {
		add("cache.flush_threshold must not be negative")
	}
	if c.Cache.FlushThreshold > fetch.MaxFlushThreshold {
		add("cache.flush_threshold must not exceed %s", ByteSize(fetch.MaxFlushThreshold))
	}
	if _, err := blobstore.ParseCompression(c.Cache.Compression); err != nil {
		add("cache.compression: %w", err)
	}
	switch c.Cache.Allocator.Kind {
	case AllocatorBolt:
	case AllocatorRedis:
		if c.Cache.Allocator.Redis.Addr == "" {
			add("cache.allocator.redis.addr is required")
		}
	case AllocatorDynamoDB:
		if c.Cache.Allocator.DynamoDB.Table == "" {
			add("cache.allocator.dynamodb.table is required")
		}
	default:
		add("unknown cache.allocator.kind %q", c.Cache.Allocator.Kind)
	}
	if c.Cache.Dir == "" && c.Cache.Allocator.Kind != AllocatorBolt {
		add("cache.allocator.kind %q requires cache.dir", c.Cache.Allocator.Kind)
	}

	if c.Resources.MaxConcurrentFetches < 0 {
		add("resources.max_concurrent_fetches must not be negative")
	}
	if c.Resources.BufferLimit < 0 || c.Resources.FetchRate < 0 {
		add("resources limits must not be negative")
	}

	b := c.Backend
	switch b.Kind {
	case BackendLocal:
		if b.Local.Root == "" {
			add("backend.local.root is required")
		}
	case BackendS3:
		if b.S3.Bucket == "" {
			add("backend.s3.bucket is required")
		}
	case BackendMinIO:
		if b.MinIO.Endpoint == "" || b.MinIO.Bucket == "" {
			add("backend.minio.endpoint and backend.minio.bucket are required")
		}
	case BackendSFTP:
		if b.SFTP.Addr == "" || b.SFTP.User == "" {
			add("backend.sftp.addr and backend.sftp.user are required")
		}
		if b.SFTP.Password == "" && b.SFTP.KeyFile == "" {
			add("backend.sftp needs a password or key_file")
		}
	case BackendWebDAV:
		if !strings.HasPrefix(b.WebDAV.URL, "http://") && !strings.HasPrefix(b.WebDAV.URL, "https://") {
			add("backend.webdav.url must be an http(s) URL")
		}
	default:
		add("unknown backend.kind %q", b.Kind)
	}

	if c.Catalog.RefreshInterval < 0 {
		add("catalog.refresh_interval must not be negative")
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
