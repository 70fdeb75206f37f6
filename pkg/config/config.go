package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	Server      ServerConfig
	Coordinator CoordinatorConfig
	Cache       CacheConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        // Server host (default: "0.0.0.0")
	Port            int           // Server port (default: 8080)
	RequestTimeout  time.Duration // Request timeout
	ShutdownTimeout time.Duration // Graceful shutdown timeout
	EnableTLS       bool          // Enable TLS
	CertFile        string        // TLS certificate file
	KeyFile         string        // TLS key file
	CORSEnabled     bool
	CORSOrigins     []string
}

// CoordinatorConfig holds Query Coordinator configuration.
type CoordinatorConfig struct {
	Dimensions         int     // Vector dimensions (default: 768)
	NumCentroids       int     // nlist: number of partitions the reference index builds (default: 100)
	DefaultNprobe      int     // nprobe used when a caller omits it (default: 8)
	NumWorkers         int     // worker pool size; 0 means inline/no goroutines (default: 4)
	DefaultBatchedScan bool    // BatchedScan default when a caller omits it (default: true)
	OverfetchFactor    int     // post-filter overfetch multiplier (default: 4)
	Metric             string  // "l2" or "inner_product" (default: "l2")
}

// CacheConfig holds query result cache configuration.
type CacheConfig struct {
	Enabled  bool          // Enable query result caching
	Capacity int           // Max cache entries
	TTL      time.Duration // Time to live for cache entries
}

// AuthConfig holds JWT authentication configuration.
type AuthConfig struct {
	Enabled      bool
	JWTSecret    string
	PublicPaths  []string
	AdminPaths   []string
	RequireAdmin bool
}

// RateLimitConfig holds HTTP rate limiting configuration.
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerSec float64
	Burst          int
	PerIP          bool
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			EnableTLS:       false,
			CORSEnabled:     true,
			CORSOrigins:     []string{"*"},
		},
		Coordinator: CoordinatorConfig{
			Dimensions:         768,
			NumCentroids:       100,
			DefaultNprobe:      8,
			NumWorkers:         4,
			DefaultBatchedScan: true,
			OverfetchFactor:    4,
			Metric:             "l2",
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 1000,
			TTL:      5 * time.Minute,
		},
		Auth: AuthConfig{
			Enabled:     false,
			PublicPaths: []string{"/v1/health"},
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerSec: 50,
			Burst:          100,
			PerIP:          true,
		},
	}
}

// LoadFromEnv loads configuration from environment variables, overriding
// Default() wherever a recognized variable is set.
func LoadFromEnv() *Config {
	cfg := Default()

	if host := os.Getenv("IVFCOORD_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("IVFCOORD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if timeout := os.Getenv("IVFCOORD_REQUEST_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			cfg.Server.RequestTimeout = t
		}
	}
	if enableTLS := os.Getenv("IVFCOORD_ENABLE_TLS"); enableTLS == "true" {
		cfg.Server.EnableTLS = true
		cfg.Server.CertFile = os.Getenv("IVFCOORD_TLS_CERT")
		cfg.Server.KeyFile = os.Getenv("IVFCOORD_TLS_KEY")
	}

	if dims := os.Getenv("IVFCOORD_DIMENSIONS"); dims != "" {
		if d, err := strconv.Atoi(dims); err == nil {
			cfg.Coordinator.Dimensions = d
		}
	}
	if nlist := os.Getenv("IVFCOORD_NUM_CENTROIDS"); nlist != "" {
		if n, err := strconv.Atoi(nlist); err == nil {
			cfg.Coordinator.NumCentroids = n
		}
	}
	if nprobe := os.Getenv("IVFCOORD_DEFAULT_NPROBE"); nprobe != "" {
		if n, err := strconv.Atoi(nprobe); err == nil {
			cfg.Coordinator.DefaultNprobe = n
		}
	}
	if workers := os.Getenv("IVFCOORD_NUM_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			cfg.Coordinator.NumWorkers = w
		}
	}
	if metric := os.Getenv("IVFCOORD_METRIC"); metric != "" {
		cfg.Coordinator.Metric = metric
	}
	if overfetch := os.Getenv("IVFCOORD_OVERFETCH_FACTOR"); overfetch != "" {
		if o, err := strconv.Atoi(overfetch); err == nil {
			cfg.Coordinator.OverfetchFactor = o
		}
	}

	if cacheEnabled := os.Getenv("IVFCOORD_CACHE_ENABLED"); cacheEnabled == "false" {
		cfg.Cache.Enabled = false
	}
	if capacity := os.Getenv("IVFCOORD_CACHE_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			cfg.Cache.Capacity = c
		}
	}
	if ttl := os.Getenv("IVFCOORD_CACHE_TTL"); ttl != "" {
		if t, err := time.ParseDuration(ttl); err == nil {
			cfg.Cache.TTL = t
		}
	}

	if authEnabled := os.Getenv("IVFCOORD_AUTH_ENABLED"); authEnabled == "true" {
		cfg.Auth.Enabled = true
	}
	if secret := os.Getenv("IVFCOORD_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	if rlEnabled := os.Getenv("IVFCOORD_RATE_LIMIT_ENABLED"); rlEnabled == "false" {
		cfg.RateLimit.Enabled = false
	}
	if rps := os.Getenv("IVFCOORD_RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimit.RequestsPerSec = v
		}
	}

	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.EnableTLS {
		if c.Server.CertFile == "" || c.Server.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
	}

	if c.Coordinator.Dimensions < 1 {
		return fmt.Errorf("invalid dimensions: %d (must be > 0)", c.Coordinator.Dimensions)
	}
	if c.Coordinator.NumCentroids < 1 {
		return fmt.Errorf("invalid num_centroids: %d (must be > 0)", c.Coordinator.NumCentroids)
	}
	if c.Coordinator.DefaultNprobe < 1 {
		return fmt.Errorf("invalid default_nprobe: %d (must be > 0)", c.Coordinator.DefaultNprobe)
	}
	if c.Coordinator.NumWorkers < 0 {
		return fmt.Errorf("invalid num_workers: %d (must be >= 0)", c.Coordinator.NumWorkers)
	}
	if c.Coordinator.Metric != "l2" && c.Coordinator.Metric != "inner_product" {
		return fmt.Errorf("invalid metric: %q (must be \"l2\" or \"inner_product\")", c.Coordinator.Metric)
	}
	if c.Coordinator.OverfetchFactor < 1 {
		return fmt.Errorf("invalid overfetch_factor: %d (must be > 0)", c.Coordinator.OverfetchFactor)
	}

	if c.Cache.Enabled && c.Cache.Capacity < 1 {
		return fmt.Errorf("invalid cache capacity: %d (must be > 0)", c.Cache.Capacity)
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but jwt secret not specified")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSec <= 0 {
		return fmt.Errorf("invalid rate limit requests_per_sec: %v (must be > 0)", c.RateLimit.RequestsPerSec)
	}

	return nil
}

// Address returns the server address (host:port).
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
