package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	strs "landdocs/pkg/platform/strings"
)

// Blob backends.
const (
	BlobMemory     = "memory"
	BlobFilesystem = "fs"
	BlobRedis      = "redis"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	LogFormat   string

	Database DatabaseConfig
	Redis    RedisConfig
	Blob     BlobConfig
	Audit    AuditConfig
	Issuance IssuanceConfig
}

// DatabaseConfig selects the record store. An empty URL keeps everything in
// memory, which is only suitable for a single process.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// CaseFileSeed is a JSON fixture of case files, properties, applicants
	// and unit prices. Required without URL; loaded into Postgres outside
	// production.
	CaseFileSeed string
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type BlobConfig struct {
	Backend string
	Dir     string
}

// AuditConfig controls where audit events go after a commit.
type AuditConfig struct {
	Buffer        int
	KafkaBrokers  []string
	Topic         string
	Partitions    int
	RelayInterval time.Duration
}

// IssuanceConfig bounds how long an issuance may hold its locks.
type IssuanceConfig struct {
	LockTimeout time.Duration
	TxTimeout   time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables win.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	cfg := Server{
		Addr:        getEnv("LANDDOCS_ADDR", ":8080"),
		Environment: getEnv("LANDDOCS_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			CaseFileSeed:    os.Getenv("CASEFILE_SEED"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Blob: BlobConfig{
			Backend: getEnv("BLOB_BACKEND", BlobMemory),
			Dir:     getEnv("BLOB_DIR", "./data/artifacts"),
		},
		Audit: AuditConfig{
			Buffer:        getInt("AUDIT_BUFFER", 1024),
			KafkaBrokers:  strs.SplitList(os.Getenv("KAFKA_BROKERS")),
			Topic:         getEnv("AUDIT_TOPIC", "landdocs.audit"),
			Partitions:    getInt("AUDIT_TOPIC_PARTITIONS", 3),
			RelayInterval: getDuration("AUDIT_RELAY_INTERVAL", time.Second),
		},
		Issuance: IssuanceConfig{
			LockTimeout: getDuration("ISSUANCE_LOCK_TIMEOUT", 3*time.Second),
			TxTimeout:   getDuration("ISSUANCE_TX_TIMEOUT", 10*time.Second),
		},
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) validate() error {
	switch c.Blob.Backend {
	case BlobMemory, BlobFilesystem:
	case BlobRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("BLOB_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.Blob.Backend)
	}
	if c.Issuance.LockTimeout <= 0 || c.Issuance.TxTimeout <= 0 {
		return fmt.Errorf("issuance timeouts must be positive")
	}
	if c.Issuance.LockTimeout >= c.Issuance.TxTimeout {
		return fmt.Errorf("ISSUANCE_LOCK_TIMEOUT must be shorter than ISSUANCE_TX_TIMEOUT")
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.Partitions <= 0 {
		return fmt.Errorf("AUDIT_TOPIC_PARTITIONS must be positive")
	}
	return nil
}

// IsProduction reports whether dev conveniences must be off.
func (c Server) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
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
