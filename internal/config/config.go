// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port            int
	Host            string
	MetricsEnabled  bool
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type    string // "mongodb", "postgres" or "memory"
	URI     string
	Name    string
	Timeout time.Duration
}

// CacheConfig holds page cache settings
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Cache          *CacheConfig
	Log            *LogConfig
	AllowedOrigins []string
	Debug          bool
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8080,
		Host:            "0.0.0.0",
		MetricsEnabled:  true,
		ShutdownTimeout: 10 * time.Second,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:    "mongodb",
		URI:     "mongodb://localhost:27017",
		Name:    "threadboard",
		Timeout: 10 * time.Second,
	}
}

// DefaultCacheConfig provides default page cache settings
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Size: 256,
		TTL:  time.Minute,
	}
}

// envLocations are tried in order; the first .env found wins.
var envLocations = []string{
	".env",
	"../../.env", // Project root when running from cmd/server
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		log.Debug("No .env file found, using process environment")
	}

	serverConfig := DefaultConfig()

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", portStr, err)
		}
		serverConfig.Port = port
	}

	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}

	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}

	dbConfig := DefaultDatabaseConfig()

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		dbConfig.Type = strings.ToLower(dbType)
	}

	switch dbConfig.Type {
	case "mongodb":
		dbConfig.URI = getEnvOrDefault("MONGODB_URI", dbConfig.URI)
		dbConfig.Name = getEnvOrDefault("MONGODB_DATABASE", dbConfig.Name)
	case "postgres":
		dbConfig.URI = getEnvOrDefault("DATABASE_URL", "postgres://localhost:5432/threadboard?sslmode=disable")
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbConfig.Type)
	}

	timeout, err := getDurationOrDefault("DB_TIMEOUT", dbConfig.Timeout)
	if err != nil {
		return nil, err
	}
	dbConfig.Timeout = timeout

	cacheConfig := DefaultCacheConfig()
	if sizeStr := os.Getenv("PAGE_CACHE_SIZE"); sizeStr != "" {
		size, err := strconv.Atoi(sizeStr)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid PAGE_CACHE_SIZE %q", sizeStr)
		}
		cacheConfig.Size = size
	}

	ttl, err := getDurationOrDefault("PAGE_CACHE_TTL", cacheConfig.TTL)
	if err != nil {
		return nil, err
	}
	cacheConfig.TTL = ttl

	config := &Config{
		Server:   serverConfig,
		Database: dbConfig,
		Cache:    cacheConfig,
		Log: &LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
		AllowedOrigins: []string{"*"}, // Default to allow all origins
		Debug:          false,
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		var allowed []string
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowed = append(allowed, origin)
			}
		}
		if len(allowed) > 0 {
			config.AllowedOrigins = allowed
		}
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		config.Debug = true
		config.Log.Level = "debug"
	}

	return config, nil
}

// Addr is the listen address of the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
