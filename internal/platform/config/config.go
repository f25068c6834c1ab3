package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "did-registry/pkg/platform/strings"
)

// Server captures process-level configuration so main stays lean. Stores and
// sinks are selected by presence: an empty PostgresDSN keeps the in-memory
// store, an empty RedisURL disables the resolve cache, empty KafkaSeeds
// disables the external event sink.
type Server struct {
	Addr          string
	PostgresDSN   string
	RedisURL      string
	KafkaSeeds    []string
	KafkaTopic    string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	EventBuffer   int
}

// ResolveCacheTTL bounds staleness of cached resolutions. Mutations
// invalidate eagerly; the TTL covers invalidation failures.
var ResolveCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	// An empty Addr is fine: httpserver supplies the default listen address.
	addr := os.Getenv("DID_REGISTRY_ADDR")

	topic := os.Getenv("DID_REGISTRY_KAFKA_TOPIC")
	if topic == "" {
		topic = "did-registry.events"
	}

	var seeds []string
	if raw := os.Getenv("DID_REGISTRY_KAFKA_SEEDS"); raw != "" {
		seeds = pstrings.DedupeAndTrim(strings.Split(raw, ","))
	}

	jwtSigningKey := os.Getenv("DID_REGISTRY_JWT_KEY")
	if jwtSigningKey == "" {
		// Development default; must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	buffer := 0
	if raw := os.Getenv("DID_REGISTRY_EVENT_BUFFER"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			buffer = n
		}
	}

	return Server{
		Addr:          addr,
		PostgresDSN:   os.Getenv("DID_REGISTRY_POSTGRES_DSN"),
		RedisURL:      os.Getenv("DID_REGISTRY_REDIS_URL"),
		KafkaSeeds:    seeds,
		KafkaTopic:    topic,
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     envOr("DID_REGISTRY_JWT_ISSUER", "did-registry"),
		JWTAudience:   envOr("DID_REGISTRY_JWT_AUDIENCE", "did-registry"),
		EventBuffer:   buffer,
	}
}

// RedisConfig tunes the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns RedisConfig with production defaults for url.
func DefaultRedisConfig(url string) RedisConfig {
	return RedisConfig{
		URL:          url,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
