package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration shared by the daemon and the CLI.
type Config struct {
	Server    Server
	Log       Log
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Ledger    LedgerConfig
	Roll      RollConfig
	Biometric BiometricConfig
	Detection DetectionConfig
	Clusters  ClusterConfig
	Scheduler SchedulerConfig
}

// Server captures HTTP server level configuration for the ops surface.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string
	Format string
}

// DatabaseConfig enables the Postgres adapters when URL is set.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig enables the distributed run lock when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables flag event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers  []string
	ClientID string
	Topic    string
}

type LedgerConfig struct {
	// BoltPath selects the embedded ledger store when no database is configured.
	BoltPath string
}

// RollConfig seeds the in-memory identity store when no database is
// configured.
type RollConfig struct {
	File string
}

// BiometricConfig enables feature extraction from raw captures when both
// CaptureDir and ExtractorURL are set.
type BiometricConfig struct {
	CaptureDir       string
	ExtractorURL     string
	ExtractorTimeout time.Duration
}

// Enabled reports whether detection should enrich records from captures.
func (c BiometricConfig) Enabled() bool {
	return c.CaptureDir != "" && c.ExtractorURL != ""
}

type DetectionConfig struct {
	Threshold    float64
	Workers      int
	Profile      string
	AppealWindow time.Duration
	LockTTL      time.Duration
}

type ClusterConfig struct {
	LowCount    int
	MediumCount int
	HighCount   int
}

// SchedulerConfig sets the daemon's job intervals. A zero interval disables
// the job.
type SchedulerConfig struct {
	DetectInterval  time.Duration
	ClusterInterval time.Duration
	VerifyInterval  time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            getEnv("ROLLGUARD_ADDR", ":8080"),
			ShutdownTimeout: getDuration("ROLLGUARD_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: Log{
			Level:  getEnv("ROLLGUARD_LOG_LEVEL", "info"),
			Format: getEnv("ROLLGUARD_LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:  getList("KAFKA_BROKERS"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "rollguard"),
			Topic:    getEnv("KAFKA_FLAGS_TOPIC", "rollguard.flags"),
		},
		Ledger: LedgerConfig{
			BoltPath: getEnv("ROLLGUARD_LEDGER_PATH", "rollguard-ledger.db"),
		},
		Roll: RollConfig{
			File: os.Getenv("ROLLGUARD_ROLL_FILE"),
		},
		Biometric: BiometricConfig{
			CaptureDir:       os.Getenv("ROLLGUARD_CAPTURE_DIR"),
			ExtractorURL:     os.Getenv("ROLLGUARD_EXTRACTOR_URL"),
			ExtractorTimeout: getDuration("ROLLGUARD_EXTRACTOR_TIMEOUT", 10*time.Second),
		},
		Detection: DetectionConfig{
			Threshold:    getFloat("ROLLGUARD_DETECT_THRESHOLD", 0.85),
			Workers:      getInt("ROLLGUARD_DETECT_WORKERS", 8),
			Profile:      getEnv("ROLLGUARD_DETECT_PROFILE", "rule_based"),
			AppealWindow: getDuration("ROLLGUARD_APPEAL_WINDOW", 30*24*time.Hour),
			LockTTL:      getDuration("ROLLGUARD_DETECT_LOCK_TTL", 30*time.Minute),
		},
		Clusters: ClusterConfig{
			LowCount:    getInt("ROLLGUARD_CLUSTER_LOW", 6),
			MediumCount: getInt("ROLLGUARD_CLUSTER_MEDIUM", 12),
			HighCount:   getInt("ROLLGUARD_CLUSTER_HIGH", 20),
		},
		Scheduler: SchedulerConfig{
			DetectInterval:  getDuration("ROLLGUARD_DETECT_INTERVAL", 24*time.Hour),
			ClusterInterval: getDuration("ROLLGUARD_CLUSTER_INTERVAL", time.Hour),
			VerifyInterval:  getDuration("ROLLGUARD_VERIFY_INTERVAL", 15*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
