package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL        MySQLConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Migrate      bool
	HTTPAddr     string
	PublicURL    string // absolute base URL for verification links and served artifacts
	Storage      StorageConfig
	Fonts        FontsConfig
	RenderWorker RenderWorkerConfig
	TempCleaner  TempCleanerConfig
	SMTP         SMTPConfig
	DesignAPI    DesignAPIConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// StorageConfig holds blob storage configuration.
// PublicDir holds artifacts served to end users (QR images, final images),
// PrivateDir holds template backgrounds and temp files.
type StorageConfig struct {
	PublicDir  string
	PrivateDir string
}

// FontsConfig holds font resolution configuration
type FontsConfig struct {
	Dir string
}

// RenderWorkerConfig holds certificate render worker configuration
type RenderWorkerConfig struct {
	Enabled     bool
	IntervalSec int
	BatchSize   int
	MaxAttempts int
}

// TempCleanerConfig holds temp-file cleaner configuration
type TempCleanerConfig struct {
	Enabled       bool
	IntervalSec   int
	MaxAgeHours   int
	MaxTotalBytes int64
}

// SMTPConfig holds mail transport configuration
type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// DesignAPIConfig holds remote design/rendering provider configuration
type DesignAPIConfig struct {
	Enabled      bool
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "go_certhub"),
		},
		Migrate:   getEnv("MIGRATE", "0") == "1",
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		PublicURL: getEnv("PUBLIC_URL", "http://localhost:8080"),
		Storage: StorageConfig{
			PublicDir:  getEnv("STORAGE_PUBLIC_DIR", "var/storage/public"),
			PrivateDir: getEnv("STORAGE_PRIVATE_DIR", "var/storage/private"),
		},
		Fonts: FontsConfig{
			Dir: getEnv("FONTS_DIR", "assets/fonts"),
		},
		RenderWorker: RenderWorkerConfig{
			Enabled:     getEnv("RENDER_WORKER_ENABLED", "1") == "1",
			IntervalSec: getEnvInt("RENDER_WORKER_INTERVAL_SEC", 5),
			BatchSize:   getEnvInt("RENDER_WORKER_BATCH_SIZE", 20),
			MaxAttempts: getEnvInt("RENDER_MAX_ATTEMPTS", 3),
		},
		TempCleaner: TempCleanerConfig{
			Enabled:       getEnv("TEMP_CLEANER_ENABLED", "1") == "1",
			IntervalSec:   getEnvInt("TEMP_CLEANER_INTERVAL_SEC", 3600),
			MaxAgeHours:   getEnvInt("TEMP_CLEANER_MAX_AGE_HOURS", 24),
			MaxTotalBytes: int64(getEnvInt("TEMP_CLEANER_MAX_TOTAL_MB", 512)) * 1024 * 1024,
		},
		SMTP: SMTPConfig{
			Enabled:  getEnv("SMTP_ENABLED", "0") == "1",
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", "certificados@example.com"),
		},
		DesignAPI: DesignAPIConfig{
			Enabled:      getEnv("DESIGN_API_ENABLED", "0") == "1",
			BaseURL:      getEnv("DESIGN_API_BASE_URL", ""),
			TokenURL:     getEnv("DESIGN_API_TOKEN_URL", ""),
			ClientID:     getEnv("DESIGN_API_CLIENT_ID", ""),
			ClientSecret: getEnv("DESIGN_API_CLIENT_SECRET", ""),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Helper function: get value with priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "go_certhub"),
		},
		Migrate:   getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr:  getValue("HTTP_ADDR", "http", "addr", ":8080"),
		PublicURL: getValue("PUBLIC_URL", "http", "public_url", "http://localhost:8080"),
		Storage: StorageConfig{
			PublicDir:  getValue("STORAGE_PUBLIC_DIR", "storage", "public_dir", "var/storage/public"),
			PrivateDir: getValue("STORAGE_PRIVATE_DIR", "storage", "private_dir", "var/storage/private"),
		},
		Fonts: FontsConfig{
			Dir: getValue("FONTS_DIR", "fonts", "dir", "assets/fonts"),
		},
		RenderWorker: RenderWorkerConfig{
			Enabled:     getValueBool("RENDER_WORKER_ENABLED", "render_worker", "enabled", true),
			IntervalSec: getValueInt("RENDER_WORKER_INTERVAL_SEC", "render_worker", "interval_sec", 5),
			BatchSize:   getValueInt("RENDER_WORKER_BATCH_SIZE", "render_worker", "batch_size", 20),
			MaxAttempts: getValueInt("RENDER_MAX_ATTEMPTS", "render_worker", "max_attempts", 3),
		},
		TempCleaner: TempCleanerConfig{
			Enabled:       getValueBool("TEMP_CLEANER_ENABLED", "temp_cleaner", "enabled", true),
			IntervalSec:   getValueInt("TEMP_CLEANER_INTERVAL_SEC", "temp_cleaner", "interval_sec", 3600),
			MaxAgeHours:   getValueInt("TEMP_CLEANER_MAX_AGE_HOURS", "temp_cleaner", "max_age_hours", 24),
			MaxTotalBytes: int64(getValueInt("TEMP_CLEANER_MAX_TOTAL_MB", "temp_cleaner", "max_total_mb", 512)) * 1024 * 1024,
		},
		SMTP: SMTPConfig{
			Enabled:  getValueBool("SMTP_ENABLED", "smtp", "enabled", false),
			Host:     getValue("SMTP_HOST", "smtp", "host", "localhost"),
			Port:     getValueInt("SMTP_PORT", "smtp", "port", 587),
			Username: getValue("SMTP_USER", "smtp", "user", ""),
			Password: getValue("SMTP_PASS", "smtp", "pass", ""),
			From:     getValue("SMTP_FROM", "smtp", "from", "certificados@example.com"),
		},
		DesignAPI: DesignAPIConfig{
			Enabled:      getValueBool("DESIGN_API_ENABLED", "design_api", "enabled", false),
			BaseURL:      getValue("DESIGN_API_BASE_URL", "design_api", "base_url", ""),
			TokenURL:     getValue("DESIGN_API_TOKEN_URL", "design_api", "token_url", ""),
			ClientID:     getValue("DESIGN_API_CLIENT_ID", "design_api", "client_id", ""),
			ClientSecret: getValue("DESIGN_API_CLIENT_SECRET", "design_api", "client_secret", ""),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}
