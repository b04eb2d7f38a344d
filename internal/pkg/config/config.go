package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Environment
	Environment string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Queue    QueueConfig
	Storage  StorageConfig
	Ingest   IngestConfig
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig configures the gorm/Postgres connection
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	LogLevel        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // minutes
	MaxConnIdleTime int // minutes
}

// CacheConfig configures the Redis client used for run locks
type CacheConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	DialTimeout  int // seconds
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	PoolSize     int
	MinIdleConns int
}

// QueueConfig configures asynq
type QueueConfig struct {
	RedisHost      string
	RedisPort      int
	RedisPassword  string
	RedisDB        int
	DialTimeout    int // seconds
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	Concurrency    int
	StrictPriority bool
	MaxRetries     int
}

// StorageConfig selects where uploaded files are read from
type StorageConfig struct {
	Driver     string // "local" or "s3"
	BasePath   string
	S3Bucket   string
	S3Region   string
	S3Prefix   string
	S3Endpoint string
}

// IngestConfig holds run-level settings
type IngestConfig struct {
	SheetsFile    string
	MaxFileSizeMB   int64
	LockTTL         int // seconds
	ResultTTL       int // seconds
	UploadRetention int // hours, 0 disables cleanup
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			slog.Debug("no .env file found, using environment variables only")
		}
	}

	v := viper.New()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)

	// Database defaults
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_NAME", "rowloader")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_LOG_LEVEL", "silent")
	v.SetDefault("DB_MAX_CONNECTIONS", 10)
	v.SetDefault("DB_MIN_CONNECTIONS", 2)
	v.SetDefault("DB_MAX_CONN_LIFETIME", 30)
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", 5)

	// Redis defaults
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5)
	v.SetDefault("REDIS_READ_TIMEOUT", 3)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 1)

	// Worker defaults
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("WORKER_MAX_RETRIES", 3)
	v.SetDefault("WORKER_STRICT_PRIORITY", false)

	// Storage defaults
	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("STORAGE_BASE_PATH", "/tmp/uploads")
	v.SetDefault("S3_REGION", "us-east-1")

	// Ingest defaults
	v.SetDefault("SHEETS_FILE", "sheets.yaml")
	v.SetDefault("MAX_FILE_SIZE_MB", 100)
	v.SetDefault("RUN_LOCK_TTL", 3600)
	v.SetDefault("RUN_RESULT_TTL", 86400)
	v.SetDefault("UPLOAD_RETENTION_HOURS", 168)

	// Bind environment variables
	v.AutomaticEnv()

	config := &Config{
		Environment: v.GetString("ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Database:        v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			LogLevel:        v.GetString("DB_LOG_LEVEL"),
			MaxConnections:  v.GetInt("DB_MAX_CONNECTIONS"),
			MinConnections:  v.GetInt("DB_MIN_CONNECTIONS"),
			MaxConnLifetime: v.GetInt("DB_MAX_CONN_LIFETIME"),
			MaxConnIdleTime: v.GetInt("DB_MAX_CONN_IDLE_TIME"),
		},
		Cache: CacheConfig{
			Enabled:      v.GetBool("REDIS_ENABLED"),
			Host:         v.GetString("REDIS_HOST"),
			Port:         v.GetInt("REDIS_PORT"),
			Password:     v.GetString("REDIS_PASSWORD"),
			DB:           v.GetInt("REDIS_DB"),
			DialTimeout:  v.GetInt("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetInt("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetInt("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		Queue: QueueConfig{
			RedisHost:      v.GetString("REDIS_HOST"),
			RedisPort:      v.GetInt("REDIS_PORT"),
			RedisPassword:  v.GetString("REDIS_PASSWORD"),
			RedisDB:        v.GetInt("REDIS_DB"),
			DialTimeout:    v.GetInt("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:    v.GetInt("REDIS_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("REDIS_WRITE_TIMEOUT"),
			Concurrency:    v.GetInt("WORKER_CONCURRENCY"),
			StrictPriority: v.GetBool("WORKER_STRICT_PRIORITY"),
			MaxRetries:     v.GetInt("WORKER_MAX_RETRIES"),
		},
		Storage: StorageConfig{
			Driver:     v.GetString("STORAGE_DRIVER"),
			BasePath:   v.GetString("STORAGE_BASE_PATH"),
			S3Bucket:   v.GetString("S3_BUCKET"),
			S3Region:   v.GetString("S3_REGION"),
			S3Prefix:   v.GetString("S3_PREFIX"),
			S3Endpoint: v.GetString("S3_ENDPOINT"),
		},
		Ingest: IngestConfig{
			SheetsFile:      v.GetString("SHEETS_FILE"),
			MaxFileSizeMB:   v.GetInt64("MAX_FILE_SIZE_MB"),
			LockTTL:         v.GetInt("RUN_LOCK_TTL"),
			ResultTTL:       v.GetInt("RUN_RESULT_TTL"),
			UploadRetention: v.GetInt("UPLOAD_RETENTION_HOURS"),
		},
	}

	// Validate required fields
	if config.Ingest.SheetsFile == "" {
		return nil, fmt.Errorf("SHEETS_FILE is required")
	}
	if config.Storage.Driver == "s3" && config.Storage.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
	}

	return config, nil
}

// RequireDatabase validates the settings needed by processes that persist runs
func (c *Config) RequireDatabase() error {
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	return nil
}

// DSN builds the gorm postgres DSN
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// GetRedisURL constructs the Redis connection string
func (c *Config) GetRedisURL() string {
	return fmt.Sprintf("%s:%d", c.Cache.Host, c.Cache.Port)
}

// MaxFileSizeBytes converts the configured limit to bytes (0 = unlimited)
func (c *Config) MaxFileSizeBytes() int64 {
	return c.Ingest.MaxFileSizeMB * 1024 * 1024
}

// LogConfig logs the configuration (hiding sensitive data)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.String("environment", c.Environment),
		slog.String("server", fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)),
		slog.String("database", fmt.Sprintf("%s:%d/%s", c.Database.Host, c.Database.Port, c.Database.Database)),
		slog.Bool("redis_enabled", c.Cache.Enabled),
		slog.String("redis", c.GetRedisURL()),
		slog.String("storage_driver", c.Storage.Driver),
		slog.String("sheets_file", c.Ingest.SheetsFile),
		slog.Int("worker_concurrency", c.Queue.Concurrency),
	)

	// Check secrets without revealing them
	if c.Database.Password != "" {
		logger.Debug("database password configured")
	} else {
		logger.Warn("database password not set")
	}
}
