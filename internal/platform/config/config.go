package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the full process configuration, loaded from the environment.
type Config struct {
	Server           Server
	Postgres         PostgresConfig
	Redis            RedisConfig
	Kafka            KafkaConfig
	Auth             AuthConfig
	Stealth          StealthConfig
	Compliance       ComplianceConfig
	Nullifier        NullifierConfig
	Shielding        ShieldingConfig
	Sweeper          SweeperConfig
	StorageBackend   string
	NullifierBackend string
	LogLevel         string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit relay when Brokers is non-empty.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ClientID      string
	RelayInterval time.Duration
}

type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	InternalToken string
}

type StealthConfig struct {
	AddressTTL     time.Duration
	GracePeriod    time.Duration
	SeedKeyHex     string
	CommitmentSalt string
	HistoryDefault int
	HistoryMax     int
	CacheTTL       time.Duration
	CacheSize      int
}

type ComplianceConfig struct {
	DefaultValidity time.Duration
	MaxValidity     time.Duration
}

type NullifierConfig struct {
	Retention time.Duration
}

type ShieldingConfig struct {
	PoolID           string
	PoolPublicKeyHex string
	IntentValidity   time.Duration
	MaxCASRetries    int
}

type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Load builds a Config from environment variables and validates it.
func Load() (Config, error) {
	var errs []error
	l := loader{errs: &errs}

	cfg := Config{
		Server: Server{
			Addr:              l.str("DISCARD_ADDR", ":8080"),
			ReadHeaderTimeout: l.duration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ShutdownTimeout:   l.duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			URL:             l.str("DATABASE_URL", ""),
			MaxOpenConns:    l.integer("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    l.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: l.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          l.str("REDIS_URL", ""),
			PoolSize:     l.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: l.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  l.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  l.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: l.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       l.list("KAFKA_BROKERS"),
			Topic:         l.str("KAFKA_AUDIT_TOPIC", "discard.audit"),
			ClientID:      l.str("KAFKA_CLIENT_ID", "discard"),
			RelayInterval: l.duration("KAFKA_RELAY_INTERVAL", time.Second),
		},
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: l.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     l.str("JWT_ISSUER", "discard"),
			InternalToken: l.str("INTERNAL_API_TOKEN", ""),
		},
		Stealth: StealthConfig{
			AddressTTL:     l.duration("ADDRESS_TTL", 30*time.Minute),
			GracePeriod:    l.duration("ADDRESS_GRACE_PERIOD", 30*time.Minute),
			SeedKeyHex:     l.str("STEALTH_SEED_KEY", ""),
			CommitmentSalt: l.str("ADDRESS_COMMITMENT_SALT", "discard-dev-salt"),
			HistoryDefault: l.integer("ADDRESS_HISTORY_DEFAULT", 20),
			HistoryMax:     l.integer("ADDRESS_HISTORY_MAX", 100),
			CacheTTL:       l.duration("ADDRESS_CACHE_TTL", time.Minute),
			CacheSize:      l.integer("ADDRESS_CACHE_SIZE", 10000),
		},
		Compliance: ComplianceConfig{
			DefaultValidity: l.duration("COMPLIANCE_PROOF_VALIDITY", 24*time.Hour),
			MaxValidity:     l.duration("COMPLIANCE_PROOF_MAX_VALIDITY", 7*24*time.Hour),
		},
		Nullifier: NullifierConfig{
			Retention: l.duration("NULLIFIER_RETENTION", 30*24*time.Hour),
		},
		Shielding: ShieldingConfig{
			PoolID:           l.str("SHIELD_POOL_ID", "default"),
			PoolPublicKeyHex: l.str("SHIELD_POOL_PUBLIC_KEY", ""),
			IntentValidity:   l.duration("SHIELD_INTENT_VALIDITY", 24*time.Hour),
			MaxCASRetries:    l.integer("SHIELD_POOL_MAX_RETRIES", 5),
		},
		Sweeper: SweeperConfig{
			Enabled:  l.boolean("SWEEPER_ENABLED", true),
			Interval: l.duration("SWEEPER_INTERVAL", time.Minute),
		},
		StorageBackend:   strings.ToLower(l.str("STORAGE_BACKEND", BackendMemory)),
		NullifierBackend: strings.ToLower(l.str("NULLIFIER_BACKEND", "")),
		LogLevel:         l.str("LOG_LEVEL", "info"),
	}
	if cfg.NullifierBackend == "" {
		cfg.NullifierBackend = cfg.StorageBackend
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	switch c.StorageBackend {
	case BackendMemory, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be memory or postgres, got %q", c.StorageBackend))
	}
	switch c.NullifierBackend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("NULLIFIER_BACKEND must be memory, postgres or redis, got %q", c.NullifierBackend))
	}
	if (c.StorageBackend == BackendPostgres || c.NullifierBackend == BackendPostgres) && c.Postgres.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
	}
	if c.NullifierBackend == BackendRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("REDIS_URL is required for the redis nullifier backend"))
	}
	if c.Stealth.AddressTTL <= 0 || c.Stealth.GracePeriod < 0 {
		errs = append(errs, errors.New("ADDRESS_TTL must be positive and ADDRESS_GRACE_PERIOD non-negative"))
	}
	if c.Stealth.SeedKeyHex != "" {
		if b, err := hex.DecodeString(c.Stealth.SeedKeyHex); err != nil || len(b) != 32 {
			errs = append(errs, errors.New("STEALTH_SEED_KEY must be 32 bytes hex encoded"))
		}
	}
	if c.Stealth.HistoryDefault <= 0 || c.Stealth.HistoryMax < c.Stealth.HistoryDefault {
		errs = append(errs, errors.New("ADDRESS_HISTORY_DEFAULT must be positive and not exceed ADDRESS_HISTORY_MAX"))
	}
	if c.Compliance.DefaultValidity <= 0 || c.Compliance.MaxValidity < c.Compliance.DefaultValidity {
		errs = append(errs, errors.New("COMPLIANCE_PROOF_VALIDITY must be positive and not exceed COMPLIANCE_PROOF_MAX_VALIDITY"))
	}
	// a consumed nullifier must outlive the longest proof it can gate
	if c.Nullifier.Retention < c.Compliance.MaxValidity || c.Nullifier.Retention < c.Shielding.IntentValidity {
		errs = append(errs, errors.New("NULLIFIER_RETENTION must be at least the maximum proof validity"))
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("SWEEPER_INTERVAL must be positive"))
	}
	if c.Shielding.MaxCASRetries <= 0 {
		errs = append(errs, errors.New("SHIELD_POOL_MAX_RETRIES must be positive"))
	}
	return errs
}

type loader struct {
	errs *[]error
}

func (l loader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (l loader) list(key string) []string {
	raw := l.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (l loader) duration(key string, def time.Duration) time.Duration {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*l.errs = append(*l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (l loader) integer(key string, def int) int {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*l.errs = append(*l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (l loader) boolean(key string, def bool) bool {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*l.errs = append(*l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
