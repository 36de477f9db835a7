// Package config loads runtime settings from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Blob store backends.
const (
	BlobBackendMemory = "memory"
	BlobBackendFile   = "file"
	BlobBackendS3     = "s3"
	BlobBackendIPFS   = "ipfs"
)

// Session store backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Anchor backends.
const (
	AnchorBackendChain    = "chain"
	AnchorBackendSQLite   = "sqlite"
	AnchorBackendPostgres = "postgres"
	AnchorBackendHTTP     = "http"
)

// Config holds pipeline configuration.
type Config struct {
	LogLevel string

	// Blob store.
	BlobBackend string
	BlobDir     string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	IPFSAPIURL  string

	// Session store.
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	SessionTTL     time.Duration
	SweepInterval  time.Duration

	// Ledger anchoring.
	AnchorBackend  string
	DatabaseURL    string
	AnchorEndpoint string
	AnchorRPS      float64

	// Extraction.
	ProfilePath string

	CommitTimeout time.Duration

	// Telemetry.
	OTELEnabled  bool
	OTELEndpoint string
	ServiceName  string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		BlobBackend: getEnv("BLOB_BACKEND", BlobBackendFile),
		BlobDir:     getEnv("BLOB_DIR", "./data/blobs"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Region:    getEnv("S3_REGION", "ap-south-1"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		IPFSAPIURL:  getEnv("IPFS_API_URL", "http://localhost:5001"),

		SessionBackend: getEnv("SESSION_BACKEND", SessionBackendMemory),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		SessionTTL:     getDuration("SESSION_TTL", 30*time.Minute),
		SweepInterval:  getDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		AnchorBackend:  getEnv("ANCHOR_BACKEND", AnchorBackendChain),
		DatabaseURL:    getEnv("DATABASE_URL", "file:fieldproof.db"),
		AnchorEndpoint: os.Getenv("ANCHOR_ENDPOINT"),
		AnchorRPS:      getFloat("ANCHOR_RPS", 5),

		ProfilePath: os.Getenv("EXTRACTION_PROFILE"),

		CommitTimeout: getDuration("COMMIT_TIMEOUT", 60*time.Second),

		OTELEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:  getEnv("SERVICE_NAME", "fieldproof"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
