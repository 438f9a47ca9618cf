// Package config loads run configuration from the secrets file, a .env file
// and UCSB_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// SecretsName is the base name of the secrets file. Any extension viper
	// understands is accepted; a bare "secrets" file is read as TOML.
	SecretsName = "secrets"

	// EnvPrefix prefixes environment overrides, e.g. UCSB_API_KEY.
	EnvPrefix = "UCSB"
)

var (
	// ErrSecretsNotFound indicates no secrets file was found.
	ErrSecretsNotFound = errors.New("secrets file not found")

	// ErrMissingAPIKey indicates the configuration holds no api_key.
	ErrMissingAPIKey = errors.New("api_key missing from secrets")

	// ErrInvalidConfig indicates a value out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the complete run configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	Quarter    string
	APIVersion string

	PageSize int
	Workers  int
	Timeout  time.Duration

	// Retries is the number of extra attempts per page. 0 disables retry.
	Retries int

	Log LogConfig

	Output      string
	Profile     string
	MetricsAddr string

	Redis    RedisConfig
	S3       S3Config
	Postgres PostgresConfig

	// File is the secrets file that was read.
	File string
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Pretty bool
}

// RedisConfig enables the Redis sink when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether the Redis sink is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// S3Config enables the object sink when Endpoint and Bucket are set.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

// Enabled reports whether the object sink is configured.
func (s S3Config) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// PostgresConfig enables the Postgres sink when URL is set.
type PostgresConfig struct {
	URL string
}

// Enabled reports whether the Postgres sink is configured.
func (p PostgresConfig) Enabled() bool {
	return p.URL != ""
}

// Load reads the configuration. path names the secrets file; when empty,
// secrets.* and then secrets are searched in the working directory.
//
// A missing secrets file yields ErrSecretsNotFound and a missing api_key
// ErrMissingAPIKey. The file must carry api_key itself; environment
// variables override file values once it does.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	file, err := resolveSecrets(v, path)
	if err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrSecretsNotFound, err)
		}
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	// Read before env lookup is enabled so only the file can satisfy it.
	if strings.TrimSpace(v.GetString("api_key")) == "" {
		return nil, fmt.Errorf("%w (%s)", ErrMissingAPIKey, file)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		APIKey:     strings.TrimSpace(v.GetString("api_key")),
		BaseURL:    v.GetString("base_url"),
		Quarter:    v.GetString("quarter"),
		APIVersion: v.GetString("api_version"),

		PageSize: v.GetInt("page_size"),
		Workers:  v.GetInt("workers"),
		Timeout:  v.GetDuration("timeout"),
		Retries:  v.GetInt("retries"),

		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},

		Output:      v.GetString("output"),
		Profile:     v.GetString("profile"),
		MetricsAddr: v.GetString("metrics_addr"),

		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		S3: S3Config{
			Endpoint:  v.GetString("s3.endpoint"),
			AccessKey: v.GetString("s3.access_key"),
			SecretKey: v.GetString("s3.secret_key"),
			Bucket:    v.GetString("s3.bucket"),
			Prefix:    v.GetString("s3.prefix"),
		},
		Postgres: PostgresConfig{
			URL: v.GetString("postgres.url"),
		},

		File: v.ConfigFileUsed(),
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w (%s)", ErrMissingAPIKey, cfg.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges. It is also called after flag overrides.
func (c *Config) Validate() error {
	switch {
	case c.APIKey == "":
		return ErrMissingAPIKey
	case c.Quarter == "":
		return fmt.Errorf("%w: quarter is empty", ErrInvalidConfig)
	case c.PageSize < 1 || c.PageSize > 100:
		return fmt.Errorf("%w: page_size %d not in 1..100", ErrInvalidConfig, c.PageSize)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers %d must be positive", ErrInvalidConfig, c.Workers)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout %s must be positive", ErrInvalidConfig, c.Timeout)
	case c.Retries < 0:
		return fmt.Errorf("%w: retries %d must not be negative", ErrInvalidConfig, c.Retries)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://api.ucsb.edu")
	v.SetDefault("quarter", "20202")
	v.SetDefault("api_version", "1.0")

	v.SetDefault("page_size", 100)
	v.SetDefault("workers", 8)
	v.SetDefault("timeout", "60s")
	v.SetDefault("retries", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("output", "classes.json")
	v.SetDefault("profile", "flame-graph.html")
	v.SetDefault("metrics_addr", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "")

	v.SetDefault("postgres.url", "")
}

// resolveSecrets points v at the secrets file and returns its name.
func resolveSecrets(v *viper.Viper, path string) (string, error) {
	if path == "" {
		for _, ext := range viper.SupportedExts {
			candidate := SecretsName + "." + ext
			if fileExists(candidate) {
				path = candidate
				break
			}
		}
	}
	if path == "" && fileExists(SecretsName) {
		path = SecretsName
	}
	if path == "" {
		return "", fmt.Errorf("%w: no %s file in working directory", ErrSecretsNotFound, SecretsName)
	}
	if !fileExists(path) {
		return "", fmt.Errorf("%w: %s", ErrSecretsNotFound, path)
	}

	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("toml")
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
