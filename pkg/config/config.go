package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Every environment variable is read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External services
	Binance  BinanceConfig
	Telegram TelegramConfig

	// Scanner
	Scanner ScannerConfig

	// Signals
	Signals SignalConfig

	// Plans and referrals
	Plans PlanConfig

	// Maintenance
	Maintenance MaintenanceConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// BinanceConfig holds Binance futures API configuration
type BinanceConfig struct {
	BaseURL      string
	StreamURL    string
	RequestDelay time.Duration
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

// TelegramConfig holds Telegram Bot API configuration
type TelegramConfig struct {
	BotToken string
	BaseURL  string
	AdminIDs []int64
}

// ScannerConfig holds market scan loop configuration
type ScannerConfig struct {
	Interval       time.Duration
	MinQuoteVolume float64
	CandleLimit    int
	ErrorBackoff   time.Duration
}

// SignalConfig holds signal lifecycle configuration
type SignalConfig struct {
	DedupWindow       time.Duration
	Cooldown          time.Duration
	AlertAutoDelete   time.Duration
	BaseRetentionDays int
	UserRetentionDays int
	MaxPerQuery       int
}

// PlanConfig holds subscription and referral reward configuration
type PlanConfig struct {
	DurationDays int
	TrialDays    int

	// Reward thresholds (valid referral credits required)
	FreePremiumThreshold    int
	FreePlusThreshold       int
	PlusPremiumThreshold    int
	PlusPlusThreshold       int
	PremiumPremiumThreshold int
	PremiumPlusThreshold    int
}

// MaintenanceConfig holds the maintenance scheduler configuration
type MaintenanceConfig struct {
	CheckInterval time.Duration
	BatchSize     int
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Binance: BinanceConfig{
			BaseURL:      getEnv("BINANCE_FUTURES_API", "https://fapi.binance.com"),
			StreamURL:    getEnv("BINANCE_STREAM_URL", "wss://fstream.binance.com"),
			RequestDelay: getEnvAsDuration("REQUEST_DELAY", "200ms"),
			Timeout:      getEnvAsDuration("REQUEST_TIMEOUT", "15s"),
			MaxRetries:   getEnvAsInt("BINANCE_MAX_RETRIES", 3),
			RetryDelay:   getEnvAsDuration("BINANCE_RETRY_DELAY", "1s"),
		},

		Telegram: TelegramConfig{
			BotToken: getEnv("BOT_TOKEN", ""),
			BaseURL:  getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			AdminIDs: getEnvAsInt64Slice("ADMIN_USER_IDS"),
		},

		Scanner: ScannerConfig{
			Interval:       getEnvAsDuration("SCAN_INTERVAL", "5m"),
			MinQuoteVolume: getEnvAsFloat("MIN_QUOTE_VOLUME", 50_000_000),
			CandleLimit:    getEnvAsInt("CANDLE_LIMIT", 200),
			ErrorBackoff:   getEnvAsDuration("SCAN_ERROR_BACKOFF", "60s"),
		},

		Signals: SignalConfig{
			DedupWindow:       getEnvAsDuration("DEDUP_WINDOW", "10m"),
			Cooldown:          getEnvAsDuration("SIGNAL_COOLDOWN", "15m"),
			AlertAutoDelete:   getEnvAsDuration("ALERT_AUTO_DELETE", "8s"),
			BaseRetentionDays: getEnvAsInt("BASE_SIGNAL_RETENTION_DAYS", 7),
			UserRetentionDays: getEnvAsInt("USER_SIGNAL_RETENTION_DAYS", 3),
			MaxPerQuery:       getEnvAsInt("MAX_SIGNALS_PER_QUERY", 10),
		},

		Plans: PlanConfig{
			DurationDays:            getEnvAsInt("PLAN_DURATION_DAYS", 30),
			TrialDays:               getEnvAsInt("TRIAL_DAYS", 7),
			FreePremiumThreshold:    getEnvAsInt("REWARD_FREE_PREMIUM", 5),
			FreePlusThreshold:       getEnvAsInt("REWARD_FREE_PLUS", 5),
			PlusPremiumThreshold:    getEnvAsInt("REWARD_PLUS_PREMIUM", 5),
			PlusPlusThreshold:       getEnvAsInt("REWARD_PLUS_PLUS", 5),
			PremiumPremiumThreshold: getEnvAsInt("REWARD_PREMIUM_PREMIUM", 5),
			PremiumPlusThreshold:    getEnvAsInt("REWARD_PREMIUM_PLUS", 10),
		},

		Maintenance: MaintenanceConfig{
			CheckInterval: getEnvAsDuration("SCHEDULER_CHECK_INTERVAL", "5m"),
			BatchSize:     getEnvAsInt("SCHEDULER_BATCH_SIZE", 100),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Scanner.MinQuoteVolume < 0 {
		return fmt.Errorf("MIN_QUOTE_VOLUME must not be negative")
	}

	if c.Plans.DurationDays <= 0 || c.Plans.TrialDays <= 0 {
		return fmt.Errorf("PLAN_DURATION_DAYS and TRIAL_DAYS must be positive")
	}

	return nil
}

// IsAdmin reports whether the given subscriber is a configured administrator.
func (c *TelegramConfig) IsAdmin(id int64) bool {
	for _, admin := range c.AdminIDs {
		if admin != 0 && admin == id {
			return true
		}
	}
	return false
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsInt64Slice parses a comma-separated list of integer IDs.
// Malformed entries are skipped.
func getEnvAsInt64Slice(key string) []int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	parts := strings.Split(valueStr, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
