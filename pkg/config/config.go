// Package config loads service configuration from the environment, with an
// optional YAML pipeline profile for tunables.
package config

import "os"

// Config holds process configuration.
type Config struct {
	LogLevel string

	// DatabaseDriver selects "postgres" or "sqlite".
	DatabaseDriver string
	DatabaseURL    string
	SQLitePath     string

	// Object storage for project assets.
	ObjectStoreBackend string // "s3", "gcs", or "memory"
	S3Bucket           string
	S3Region           string
	S3Endpoint         string
	GCSBucket          string

	// Generator endpoint.
	GenBaseURL string
	GenAPIKey  string
	GenModel   string
	GenRPS     float64

	// CacheRoot enables the response cache when non-empty. Empty in
	// production: cached non-deterministic output defeats quality iteration.
	CacheRoot string

	// RedisAddr enables the fault-injection flag when combined with
	// FaultInjectEnabled. Test environments only.
	RedisAddr          string
	FaultInjectEnabled bool

	// ScoreHistoryPath is the append-only eval log.
	ScoreHistoryPath string

	// ProfilePath points at the optional pipeline profile YAML.
	ProfilePath string

	TelemetryEnabled  bool
	TelemetryEndpoint string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel: envOr("LOG_LEVEL", "INFO"),

		DatabaseDriver: envOr("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    envOr("DATABASE_URL", "postgres://restage@localhost:5432/restage?sslmode=disable"),
		SQLitePath:     envOr("SQLITE_PATH", "restage.db"),

		ObjectStoreBackend: envOr("OBJECT_STORE_BACKEND", "s3"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3Region:           envOr("S3_REGION", "us-east-1"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),

		GenBaseURL: envOr("GEN_BASE_URL", "http://localhost:8801"),
		GenAPIKey:  os.Getenv("GEN_API_KEY"),
		GenModel:   envOr("GEN_MODEL", "designer-xl"),
		GenRPS:     4,

		CacheRoot: os.Getenv("RESPONSE_CACHE_DIR"),

		RedisAddr:          envOr("REDIS_ADDR", "localhost:6379"),
		FaultInjectEnabled: os.Getenv("FAULT_INJECT_ENABLED") == "true",

		ScoreHistoryPath: envOr("SCORE_HISTORY_PATH", "eval_scores.jsonl"),
		ProfilePath:      os.Getenv("PIPELINE_PROFILE"),

		TelemetryEnabled:  os.Getenv("TELEMETRY_ENABLED") == "true",
		TelemetryEndpoint: envOr("OTLP_ENDPOINT", "localhost:4317"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
