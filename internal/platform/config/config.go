package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once at startup and handed to constructors. Request code
// never reads the environment.
type Config struct {
	Server      Server
	Log         Log
	Banks       []Bank
	Aggregation Aggregation
	Simulation  Simulation
	RateLimit   RateLimit
	Redis       RedisConfig
	Database    DatabaseConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ShutdownTimeout   time.Duration
	TrustProxyHeaders bool
}

// Log selects the slog handler and level.
type Log struct {
	Level  string
	Format string
}

// Bank describes one upstream banking backend, in declaration order.
type Bank struct {
	Code       string
	Name       string
	BaseURL    string
	AuthHeader string
}

// Aggregation tunes the per-bank fan-out.
type Aggregation struct {
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Simulation points at the external workflow processor.
type Simulation struct {
	ProcessorURL string
	Timeout      time.Duration
}

// RateLimit sets per-client request budgets by endpoint class.
type RateLimit struct {
	Disabled           bool
	ReadPerMinute      int
	SensitivePerMinute int
}

// RedisConfig is optional; an empty URL keeps rate limiting in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig is optional; an empty URL keeps the simulation audit trail
// in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

const (
	DefaultProcessorURL = "http://localhost:5678/webhook-test/simulate-credit"
	authorizationHeader = "Authorization"
)

// FromEnv builds a Config from environment variables, falling back to the
// development defaults for anything unset.
func FromEnv() (Config, error) {
	p := &parser{}

	cfg := Config{
		Server: Server{
			Addr:              envString("LENDGATE_ADDR", ":8080"),
			ShutdownTimeout:   p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
			TrustProxyHeaders: os.Getenv("TRUST_PROXY_HEADERS") == "true",
		},
		Log: Log{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Banks: []Bank{
			{Code: "BCO", Name: "Bancolombia", BaseURL: envString("BANCOLOMBIA_SERVICE_URL", "http://localhost:8083"), AuthHeader: authorizationHeader},
			{Code: "DAVI", Name: "Davivienda", BaseURL: envString("DAVIVIENDA_SERVICE_URL", "http://localhost:8082"), AuthHeader: authorizationHeader},
			{Code: "COLT", Name: "Coltefinanciera", BaseURL: envString("COLTEFINANCIERA_SERVICE_URL", "http://localhost:8081"), AuthHeader: authorizationHeader},
		},
		Aggregation: Aggregation{
			Timeout:          p.duration("BANK_TIMEOUT", 10*time.Second),
			BreakerThreshold: p.integer("BANK_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  p.duration("BANK_BREAKER_COOLDOWN", 30*time.Second),
		},
		Simulation: Simulation{
			ProcessorURL: envString("N8N_SIMULATION_URL", DefaultProcessorURL),
			Timeout:      p.duration("SIMULATION_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimit{
			Disabled:           os.Getenv("RATE_LIMIT_DISABLED") == "true",
			ReadPerMinute:      p.integer("RATE_LIMIT_READ_PER_MINUTE", 100),
			SensitivePerMinute: p.integer("RATE_LIMIT_SENSITIVE_PER_MINUTE", 30),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    p.integer("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    p.integer("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
	}

	if len(p.errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(p.errs, "; "))
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parser collects every malformed value so startup reports them together.
type parser struct {
	errs []string
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not a valid duration", key, raw))
		return fallback
	}
	return d
}

func (p *parser) integer(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not a valid non-negative integer", key, raw))
		return fallback
	}
	return n
}
