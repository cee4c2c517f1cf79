// Package config loads server configuration from environment variables
// and the optional schema-module manifest (§6 Environment variables).
package config

import (
	"os"
	"strings"
)

// Config holds a node-server installation's configuration.
type Config struct {
	// Port is the HTTP/WS listen port.
	Port string
	// CORSOrigins is the parsed CORS_ORIGIN allow-list. Empty means
	// "allow all", matching pkg/httpserver's dev-mode default.
	CORSOrigins []string
	// BackendURL is the raw BACKEND_URL value: a comma list of backend
	// URIs, each specifying its kind by scheme.
	BackendURL string
	// SchemaModule points to a YAML manifest of program-key validators.
	SchemaModule string

	// DatabaseURL is the relational backend's DSN, when BACKEND_URL
	// names a postgres:// or sqlite:// backend.
	DatabaseURL string
	// RedisURL configures the optional HTTP rate limiter.
	RedisURL string
	// BoltPath is the document backend's database file, when
	// BACKEND_URL names a bolt:// backend.
	BoltPath string
	// S3Bucket and GCSBucket name the blob backends, when BACKEND_URL
	// names an s3:// or gcs:// backend.
	S3Bucket  string
	GCSBucket string

	// JWTSigningKeyPath, if set, loads the wallet's session-signing key
	// from disk instead of generating an ephemeral one at boot.
	JWTSigningKeyPath string

	// OTLPEndpoint, if set, enables tracing/metrics export to this
	// OTLP/gRPC collector address (e.g. "localhost:4317"). Empty
	// disables observability entirely.
	OTLPEndpoint string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load reads configuration from the environment, applying the same
// safe-default-in-dev-mode posture as core/pkg/config.Load.
func Load() *Config {
	return &Config{
		Port:              getenv("PORT", "8080"),
		CORSOrigins:       parseCORSOrigins(os.Getenv("CORS_ORIGIN")),
		BackendURL:        getenv("BACKEND_URL", "memory://"),
		SchemaModule:      os.Getenv("SCHEMA_MODULE"),
		DatabaseURL:       getenv("DATABASE_URL", "postgres://b3nd@localhost:5432/b3nd?sslmode=disable"),
		RedisURL:          os.Getenv("REDIS_URL"),
		BoltPath:          getenv("BOLT_PATH", "b3nd.bolt"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		GCSBucket:         os.Getenv("GCS_BUCKET"),
		JWTSigningKeyPath: os.Getenv("JWT_SIGNING_KEY"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// parseCORSOrigins splits a comma list into trimmed origins. "*" and ""
// both mean allow-all, represented as a nil slice.
func parseCORSOrigins(raw string) []string {
	if raw == "" || raw == "*" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// BackendSpec names one backend drawn from BACKEND_URL, identified by
// its URI scheme.
type BackendSpec struct {
	Kind string // memory, postgres, sqlite, bolt, s3, gcs, http, ws
	Raw  string // the original entry, e.g. "postgres://user@host/db"
}

// ParseBackendURLs splits a BACKEND_URL value into its component specs.
// An empty value yields a single in-memory backend.
func ParseBackendURLs(raw string) []BackendSpec {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []BackendSpec{{Kind: "memory", Raw: "memory://"}}
	}
	parts := strings.Split(raw, ",")
	specs := make([]BackendSpec, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		specs = append(specs, BackendSpec{Kind: backendKind(p), Raw: p})
	}
	return specs
}

func backendKind(uri string) string {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return uri
	}
	return uri[:idx]
}
