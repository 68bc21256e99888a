// Package config loads the relay service configuration from defaults, an optional YAML file,
// command-line flags and environment variables, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort               = 8000
	defaultEnvironment        = "development"
	defaultDBBackend          = BackendSQLite
	defaultDBDSN              = "file:radio.db?cache=shared"
	defaultStorageBackend     = StorageLocal
	defaultStorageDir         = "./media"
	defaultStorageRegion      = "auto"
	defaultStreamURL          = "https://s2.free-shoutcast.com/stream/18068/;stream.mp3"
	defaultConnectTimeout     = 30 * time.Second
	defaultStallThreshold     = 30 * time.Second
	defaultStallCheckInterval = 10 * time.Second
)

// Database backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Object storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

var (
	// ErrUnknownDBBackend is returned for a DB_BACKEND other than sqlite or postgres.
	ErrUnknownDBBackend = errors.New("unknown database backend")
	// ErrUnknownStorageBackend is returned for a STORAGE_BACKEND other than local or s3.
	ErrUnknownStorageBackend = errors.New("unknown storage backend")
	// ErrMissingBucket is returned when the s3 backend has no bucket configured.
	ErrMissingBucket = errors.New("R2_BUCKET is required for the s3 storage backend")
)

// StorageConfig selects and configures the object store behind the media relay.
type StorageConfig struct {
	Backend         string
	Dir             string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
}

// StreamConfig configures the live stream relay.
type StreamConfig struct {
	DefaultURL         string
	ConnectTimeout     time.Duration
	StallThreshold     time.Duration
	StallCheckInterval time.Duration
	// SeedFile is an optional YAML file whose contents are written to the stream config record
	// at startup and whenever the file changes.
	SeedFile string
}

// Config is the application configuration.
type Config struct {
	Port        int
	Environment string
	SentryDSN   string
	DBBackend   string
	DBDSN       string
	RedisURL    string
	JWTSecret   string
	Storage     StorageConfig
	Stream      StreamConfig
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:        defaultPort,
		Environment: defaultEnvironment,
		DBBackend:   defaultDBBackend,
		DBDSN:       defaultDBDSN,
		Storage: StorageConfig{
			Backend: defaultStorageBackend,
			Dir:     defaultStorageDir,
			Region:  defaultStorageRegion,
		},
		Stream: StreamConfig{
			DefaultURL:         defaultStreamURL,
			ConnectTimeout:     defaultConnectTimeout,
			StallThreshold:     defaultStallThreshold,
			StallCheckInterval: defaultStallCheckInterval,
		},
	}
}

// Load builds the configuration for the server binary from args (without the program name).
func Load(args []string) (*Config, error) {
	cfg := Default()

	// Flags are bound to a separate copy so that only explicitly set flags override the file.
	flagged := Default()
	fs := flag.NewFlagSet("radio-relay", flag.ContinueOnError)
	configFile := fs.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML configuration file")
	bindFlags(fs, flagged)

	if parseErr := fs.Parse(args); parseErr != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", parseErr)
	}

	if *configFile != "" {
		if loadFileErr := LoadFile(*configFile, cfg); loadFileErr != nil {
			return nil, loadFileErr
		}
	}

	fs.Visit(func(f *flag.Flag) {
		applyFlag(cfg, flagged, f.Name)
	})

	applyEnv(cfg)

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, validateErr
	}
	return cfg, nil
}

// Validate checks backend selections.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDBBackend, c.DBBackend)
	}

	switch c.Storage.Backend {
	case StorageLocal:
	case StorageS3:
		if c.Storage.Bucket == "" {
			return ErrMissingBucket
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorageBackend, c.Storage.Backend)
	}
	return nil
}

func bindFlags(fs *flag.FlagSet, c *Config) {
	fs.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	fs.StringVar(&c.DBBackend, "db-backend", c.DBBackend, "Database backend: sqlite or postgres")
	fs.StringVar(&c.DBDSN, "db-dsn", c.DBDSN, "Database DSN")
	fs.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "Redis URL for the podcast cache (optional)")
	fs.StringVar(&c.Storage.Backend, "storage-backend", c.Storage.Backend, "Object storage backend: local or s3")
	fs.StringVar(&c.Storage.Dir, "storage-dir", c.Storage.Dir, "Root directory of the local object store")
	fs.StringVar(&c.Stream.DefaultURL, "default-stream-url", c.Stream.DefaultURL, "Upstream used when /api/stream has no url parameter")
	fs.DurationVar(&c.Stream.ConnectTimeout, "stream-connect-timeout", c.Stream.ConnectTimeout, "Upstream connect timeout")
	fs.StringVar(&c.Stream.SeedFile, "stream-config-file", c.Stream.SeedFile, "YAML file seeding the stream config record")
}

func applyFlag(dst, src *Config, name string) {
	switch name {
	case "port":
		dst.Port = src.Port
	case "db-backend":
		dst.DBBackend = src.DBBackend
	case "db-dsn":
		dst.DBDSN = src.DBDSN
	case "redis-url":
		dst.RedisURL = src.RedisURL
	case "storage-backend":
		dst.Storage.Backend = src.Storage.Backend
	case "storage-dir":
		dst.Storage.Dir = src.Storage.Dir
	case "default-stream-url":
		dst.Stream.DefaultURL = src.Stream.DefaultURL
	case "stream-connect-timeout":
		dst.Stream.ConnectTimeout = src.Stream.ConnectTimeout
	case "stream-config-file":
		dst.Stream.SeedFile = src.Stream.SeedFile
	}
}

func applyEnv(c *Config) {
	if envPort := os.Getenv("PORT"); envPort != "" {
		if port, atoiErr := strconv.Atoi(envPort); atoiErr == nil {
			c.Port = port
		} else {
			slog.Default().Warn("Ignoring invalid PORT", slog.String("value", envPort))
		}
	}

	setString(&c.Environment, "ENV")
	setString(&c.SentryDSN, "SENTRY_DSN")
	setString(&c.DBBackend, "DB_BACKEND")
	setString(&c.DBDSN, "DB_DSN")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.JWTSecret, "JWT_SECRET")

	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.Dir, "STORAGE_DIR")
	setString(&c.Storage.Endpoint, "R2_ENDPOINT")
	setString(&c.Storage.AccessKeyID, "R2_ACCESS_KEY_ID")
	setString(&c.Storage.SecretAccessKey, "R2_SECRET_ACCESS_KEY")
	setString(&c.Storage.Bucket, "R2_BUCKET")
	setString(&c.Storage.Region, "R2_REGION")

	setString(&c.Stream.DefaultURL, "DEFAULT_STREAM_URL")
	setString(&c.Stream.SeedFile, "STREAM_CONFIG_FILE")
	setDuration(&c.Stream.ConnectTimeout, "STREAM_CONNECT_TIMEOUT")
	setDuration(&c.Stream.StallThreshold, "STREAM_STALL_THRESHOLD")
	setDuration(&c.Stream.StallCheckInterval, "STREAM_STALL_CHECK_INTERVAL")

	c.DBBackend = strings.ToLower(c.DBBackend)
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
}

func setString(dst *string, key string) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, key string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	d, parseErr := time.ParseDuration(value)
	if parseErr != nil || d <= 0 {
		slog.Default().Warn("Ignoring invalid duration",
			slog.String("key", key),
			slog.String("value", value))
		return
	}
	*dst = d
}
