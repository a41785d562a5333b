package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Backend names the storage backend selected at process start.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Relational reports whether the backend stores activities in foreign-key linked tables.
func (b Backend) Relational() bool {
	return b == BackendPostgres || b == BackendSQLite
}

// ParseBackend validates a raw STORAGE_BACKEND value.
func ParseBackend(raw string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(raw))); b {
	case BackendFile, BackendRedis, BackendPostgres, BackendSQLite:
		return b, nil
	case "":
		return BackendFile, nil
	default:
		return "", fmt.Errorf("unsupported storage backend %q", raw)
	}
}

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Storage    StorageConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Identity   IdentityConfig
	Log        LogConfig
	Mail       MailConfig
	Dispatch   DispatchConfig
	Activities ActivitiesConfig
	CORS       CORSConfig
}

// StorageConfig carries the backend switch and file store location.
type StorageConfig struct {
	Backend     Backend
	FileDir     string
	AdminEmails []string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	SQLitePath   string
	AutoMigrate  bool
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// IdentityConfig verifies tokens minted by the external identity provider.
type IdentityConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

type LogConfig struct {
	Level  string
	Format string
}

// MailConfig points at the external mail-sending service. A blank APIURL disables email.
type MailConfig struct {
	APIURL  string
	APIKey  string
	From    string
	Timeout time.Duration
	BaseURL string
}

// DispatchConfig tunes the side-effect worker pool.
type DispatchConfig struct {
	Workers        int
	BufferSize     int
	MaxRetries     int
	RetryDelay     time.Duration
	FailureLogSize int
}

// ActivitiesConfig tunes lifecycle engine behaviour.
type ActivitiesConfig struct {
	SubmitWeekConcurrency int
}

// CORSConfig lists browser origins allowed to call the API. Empty allows any origin.
type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	backend, err := ParseBackend(v.GetString("STORAGE_BACKEND"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Storage = StorageConfig{
		Backend:     backend,
		FileDir:     v.GetString("FILE_STORE_DIR"),
		AdminEmails: splitAndTrim(v.GetString("ADMIN_EMAILS")),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		SQLitePath:   v.GetString("SQLITE_PATH"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.Identity = IdentityConfig{
		JWTSecret: v.GetString("IDENTITY_JWT_SECRET"),
		Issuer:    v.GetString("IDENTITY_ISSUER"),
		Audience:  v.GetString("IDENTITY_AUDIENCE"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Mail = MailConfig{
		APIURL:  v.GetString("MAIL_API_URL"),
		APIKey:  v.GetString("MAIL_API_KEY"),
		From:    v.GetString("MAIL_FROM"),
		Timeout: parseDuration(v.GetString("MAIL_TIMEOUT"), 10*time.Second),
		BaseURL: strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
	}

	cfg.Dispatch = DispatchConfig{
		Workers:        v.GetInt("DISPATCH_WORKERS"),
		BufferSize:     v.GetInt("DISPATCH_BUFFER"),
		MaxRetries:     v.GetInt("DISPATCH_MAX_RETRIES"),
		RetryDelay:     parseDuration(v.GetString("DISPATCH_RETRY_DELAY"), 2*time.Second),
		FailureLogSize: v.GetInt("DISPATCH_FAILURE_LOG_SIZE"),
	}

	cfg.Activities = ActivitiesConfig{
		SubmitWeekConcurrency: v.GetInt("SUBMIT_WEEK_CONCURRENCY"),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("STORAGE_BACKEND", string(BackendFile))
	v.SetDefault("FILE_STORE_DIR", "./data")
	v.SetDefault("ADMIN_EMAILS", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "weekly_activity")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("SQLITE_PATH", "./data/activity.db")
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "war:")

	v.SetDefault("IDENTITY_JWT_SECRET", "dev_identity_secret")
	v.SetDefault("IDENTITY_ISSUER", "")
	v.SetDefault("IDENTITY_AUDIENCE", "")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MAIL_API_URL", "")
	v.SetDefault("MAIL_API_KEY", "")
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("MAIL_TIMEOUT", "10s")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")

	v.SetDefault("DISPATCH_WORKERS", 2)
	v.SetDefault("DISPATCH_BUFFER", 256)
	v.SetDefault("DISPATCH_MAX_RETRIES", 3)
	v.SetDefault("DISPATCH_RETRY_DELAY", "2s")
	v.SetDefault("DISPATCH_FAILURE_LOG_SIZE", 100)

	v.SetDefault("SUBMIT_WEEK_CONCURRENCY", 4)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
