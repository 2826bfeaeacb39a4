package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host   string `yaml:"host" validate:"required"`
	Port   string `yaml:"port" validate:"required,numeric"`
	APIKey string `yaml:"api_key"`
}

// CredentialsConfig selects where the credential document lives.
type CredentialsConfig struct {
	Backend   string `yaml:"backend" validate:"required,oneof=file s3"`
	File      string `yaml:"file" validate:"required"`
	ObjectKey string `yaml:"object_key" validate:"required"`
	Watch     bool   `yaml:"watch"`
}

// UpstreamConfig holds the OAuth token endpoint settings used by the refresher.
type UpstreamConfig struct {
	TokenURL            string        `yaml:"token_url" validate:"required,url"`
	ClientID            string        `yaml:"client_id"`
	ClientSecret        string        `yaml:"client_secret"`
	InitialAccessToken  string        `yaml:"initial_access_token"`
	InitialRefreshToken string        `yaml:"initial_refresh_token"`
	ResourceURL         string        `yaml:"resource_url"`
	RefreshInterval     time.Duration `yaml:"refresh_interval" validate:"gt=0"`
	RequestTimeout      time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

// DatabaseConfig holds PostgreSQL settings for the refresh audit log.
// The audit log is disabled when Host is empty.
type DatabaseConfig struct {
	Host               string `yaml:"host"`
	Port               string `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Name               string `yaml:"name"`
	SSLMode            string `yaml:"sslmode"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
}

// Enabled reports whether an audit database has been configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// MinIOConfig holds object storage settings for the s3 credential backend.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" validate:"required"`
	AccessKey string `yaml:"access_key" validate:"required"`
	SecretKey string `yaml:"secret_key" validate:"required"`
	Bucket    string `yaml:"bucket" validate:"required"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LogConfig controls the root logger.
type LogConfig struct {
	Level    string `yaml:"level" validate:"required,oneof=trace debug info warn error fatal panic disabled"`
	Format   string `yaml:"format" validate:"required,oneof=json console"`
	Timezone string `yaml:"timezone" validate:"required"`
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Database    DatabaseConfig    `yaml:"database"`
	MinIO       MinIOConfig       `yaml:"minio" validate:"-"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads configuration from environment variables and validates it.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() (*AppConfig, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	r := &envReader{k: k}
	cfg := &AppConfig{
		Server: ServerConfig{
			Host:   getEnv(k, "HOST", "0.0.0.0"),
			Port:   getEnv(k, "PORT", "8000"),
			APIKey: getEnv(k, "PROXY_API_KEY", ""),
		},
		Credentials: CredentialsConfig{
			Backend:   getEnv(k, "CREDS_BACKEND", "file"),
			File:      getEnv(k, "CREDS_FILE", "oauth_creds.json"),
			ObjectKey: getEnv(k, "CREDS_OBJECT_KEY", "oauth_creds.json"),
			Watch:     r.boolean("CREDS_WATCH", true),
		},
		Upstream: UpstreamConfig{
			TokenURL:            getEnv(k, "QWEN_TOKEN_REFRESH_URL", "https://qwen.ai/oauth/token"),
			ClientID:            getEnv(k, "QWEN_CLIENT_ID", ""),
			ClientSecret:        getEnv(k, "QWEN_CLIENT_SECRET", ""),
			InitialAccessToken:  getEnv(k, "QWEN_ACCESS_TOKEN", ""),
			InitialRefreshToken: getEnv(k, "QWEN_REFRESH_TOKEN", ""),
			ResourceURL:         getEnv(k, "QWEN_RESOURCE_URL", "portal.qwen.ai"),
			RefreshInterval:     time.Duration(r.integer("REFRESH_INTERVAL_SEC", 3600)) * time.Second,
			RequestTimeout:      time.Duration(r.integer("REFRESH_TIMEOUT_SEC", 30)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:               getEnv(k, "DB_HOST", ""),
			Port:               getEnv(k, "DB_PORT", "5432"),
			User:               getEnv(k, "DB_USER", ""),
			Password:           getEnv(k, "DB_PASSWORD", ""),
			Name:               getEnv(k, "DB_NAME", ""),
			SSLMode:            getEnv(k, "DB_SSLMODE", "disable"),
			MaxOpenConns:       r.integer("DB_MAX_OPEN_CONNS", 5),
			MaxIdleConns:       r.integer("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetimeSec: r.integer("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv(k, "MINIO_ENDPOINT", ""),
			AccessKey: getEnv(k, "MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv(k, "MINIO_SECRET_KEY", ""),
			Bucket:    getEnv(k, "MINIO_BUCKET", ""),
			UseSSL:    r.boolean("MINIO_USE_SSL", false),
		},
		Log: LogConfig{
			Level:    strings.ToLower(getEnv(k, "LOG_LEVEL", "info")),
			Format:   strings.ToLower(getEnv(k, "LOG_FORMAT", "json")),
			Timezone: getEnv(k, "APP_TIMEZONE", "UTC"),
		},
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints. MinIO settings are only required for the s3 backend.
func (c *AppConfig) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Credentials.Backend == "s3" {
		if err := v.Struct(c.MinIO); err != nil {
			return fmt.Errorf("invalid minio config: %w", err)
		}
	}
	if _, err := time.LoadLocation(c.Log.Timezone); err != nil {
		return fmt.Errorf("invalid config: APP_TIMEZONE: %w", err)
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *AppConfig) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Location returns the configured log timezone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Log.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Redacted returns a copy with every secret masked.
func (c *AppConfig) Redacted() AppConfig {
	out := *c
	out.Server.APIKey = mask(out.Server.APIKey)
	out.Upstream.ClientSecret = mask(out.Upstream.ClientSecret)
	out.Upstream.InitialAccessToken = mask(out.Upstream.InitialAccessToken)
	out.Upstream.InitialRefreshToken = mask(out.Upstream.InitialRefreshToken)
	out.Database.Password = mask(out.Database.Password)
	out.MinIO.SecretKey = mask(out.MinIO.SecretKey)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func getEnv(k *koanf.Koanf, key, def string) string {
	if v := k.String(strings.ToLower(key)); v != "" {
		return v
	}
	return def
}

// envReader collects parse failures so Load can report every bad variable at once.
type envReader struct {
	k    *koanf.Koanf
	errs []error
}

func (r *envReader) boolean(key string, def bool) bool {
	v := r.k.String(strings.ToLower(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (r *envReader) integer(key string, def int) int {
	v := r.k.String(strings.ToLower(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return i
}
