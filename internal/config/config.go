// Package config loads merklesentry's runtime configuration from flags with
// environment-variable overrides, following the teacher's plain flag.*Var
// style (systemshift-memex-fs's cmd/memex-fs/main.go) rather than reaching
// for an external config library the teacher never used.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/quietridge/merklesentry/internal/apperr"
	"github.com/quietridge/merklesentry/internal/logging"
	"github.com/quietridge/merklesentry/internal/storage"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Port                int
	Environment         string
	ScanIntervalMinutes int
	SourceDirectory     string
	BatchSize           int
	LogLevel            logging.Level

	BackendVariant storage.Variant

	RelationalURL      string
	RelationalPoolSize int32

	ObjectStoreEndpoint  string
	ObjectStoreUseSSL    bool
	ObjectStoreAccessKey string
	ObjectStoreSecretKey string
	ObjectStoreBucket    string
	ObjectStoreRegion    string

	CacheEnabled    bool
	CacheHost       string
	CachePort       int
	CachePassword   string
	CacheDB         int
	CacheDefaultTTL time.Duration
}

// Load parses flags (with defaults drawn from MERKLESENTRY_* environment
// variables, per SPEC_FULL.md §6.1: env is read first, flags override) and
// validates the result.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("merklesentryd", flag.ContinueOnError)

	cfg := Config{}
	var backendVariant, logLevel string

	fs.IntVar(&cfg.Port, "port", envInt("MERKLESENTRY_PORT", 8080), "HTTP listen port")
	fs.StringVar(&cfg.Environment, "environment", envString("MERKLESENTRY_ENVIRONMENT", "production"), "deployment environment")
	fs.IntVar(&cfg.ScanIntervalMinutes, "scan-interval-minutes", envInt("MERKLESENTRY_SCAN_INTERVAL_MINUTES", 15), "minutes between scans")
	fs.StringVar(&cfg.SourceDirectory, "source-directory", envString("MERKLESENTRY_SOURCE_DIRECTORY", "."), "directory to scan")
	fs.IntVar(&cfg.BatchSize, "batch-size", envInt("MERKLESENTRY_BATCH_SIZE", 0), "maximum files per scan, 0 = unlimited")
	fs.StringVar(&logLevel, "log-level", envString("MERKLESENTRY_LOG_LEVEL", "info"), "error|warn|info|debug")

	fs.StringVar(&backendVariant, "backend-variant", envString("MERKLESENTRY_BACKEND_VARIANT", "relational"), "relational|object_store")
	fs.StringVar(&cfg.RelationalURL, "relational-url", envString("MERKLESENTRY_RELATIONAL_URL", ""), "Postgres connection URL")
	var poolSize int
	fs.IntVar(&poolSize, "relational-pool-size", envInt("MERKLESENTRY_RELATIONAL_POOL_SIZE", 10), "relational connection pool size")

	fs.StringVar(&cfg.ObjectStoreEndpoint, "object-store-endpoint", envString("MERKLESENTRY_OBJECT_STORE_ENDPOINT", ""), "S3-compatible endpoint host:port")
	fs.BoolVar(&cfg.ObjectStoreUseSSL, "object-store-ssl", envBool("MERKLESENTRY_OBJECT_STORE_SSL", true), "use TLS for the object store endpoint")
	fs.StringVar(&cfg.ObjectStoreAccessKey, "object-store-access-key", envString("MERKLESENTRY_OBJECT_STORE_ACCESS_KEY", ""), "object store access key")
	fs.StringVar(&cfg.ObjectStoreSecretKey, "object-store-secret-key", envString("MERKLESENTRY_OBJECT_STORE_SECRET_KEY", ""), "object store secret key")
	fs.StringVar(&cfg.ObjectStoreBucket, "object-store-bucket", envString("MERKLESENTRY_OBJECT_STORE_BUCKET", "merklesentry"), "object store bucket")
	fs.StringVar(&cfg.ObjectStoreRegion, "object-store-region", envString("MERKLESENTRY_OBJECT_STORE_REGION", "us-east-1"), "object store region")

	fs.BoolVar(&cfg.CacheEnabled, "cache-enabled", envBool("MERKLESENTRY_CACHE_ENABLED", true), "enable the Redis cache tier")
	fs.StringVar(&cfg.CacheHost, "cache-host", envString("MERKLESENTRY_CACHE_HOST", "localhost"), "cache host")
	fs.IntVar(&cfg.CachePort, "cache-port", envInt("MERKLESENTRY_CACHE_PORT", 6379), "cache port")
	fs.StringVar(&cfg.CachePassword, "cache-password", envString("MERKLESENTRY_CACHE_PASSWORD", ""), "cache password")
	fs.IntVar(&cfg.CacheDB, "cache-db", envInt("MERKLESENTRY_CACHE_DB", 0), "cache database index")
	ttlSeconds := fs.Int("cache-default-ttl-seconds", envInt("MERKLESENTRY_CACHE_DEFAULT_TTL_SECONDS", 60), "default cache entry TTL in seconds")

	if err := fs.Parse(args); err != nil {
		return Config{}, apperr.New(apperr.KindInvalid, "config.Load", err)
	}

	cfg.RelationalPoolSize = int32(poolSize)
	cfg.CacheDefaultTTL = time.Duration(*ttlSeconds) * time.Second
	cfg.LogLevel = logging.ParseLevel(logLevel)
	cfg.BackendVariant = storage.Variant(backendVariant)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants SPEC_FULL.md §6.1 calls out explicitly.
func (c Config) Validate() error {
	if c.ScanIntervalMinutes < 1 {
		return apperr.New(apperr.KindInvalid, "config.Validate", errScanIntervalTooLow)
	}
	if c.BackendVariant != storage.VariantRelational && c.BackendVariant != storage.VariantObjectStore {
		return apperr.New(apperr.KindInvalid, "config.Validate", errUnknownBackendVariant)
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

var (
	errScanIntervalTooLow    = configErr("scanIntervalMinutes must be >= 1")
	errUnknownBackendVariant = configErr("backend variant must be relational or object_store")
)

type configErr string

func (e configErr) Error() string { return string(e) }
