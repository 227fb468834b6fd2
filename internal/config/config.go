// Package config loads the service configuration from a YAML file, a .env
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes environment overrides, e.g. MUTATION_SERVER_PORT
const EnvPrefix = "MUTATION"

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Eligibility EligibilityConfig `mapstructure:"eligibility"`
	Effects     EffectsConfig     `mapstructure:"effects"`
	Documents   DocumentsConfig   `mapstructure:"documents"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Mail        MailConfig        `mapstructure:"mail"`
	Lark        LarkConfig        `mapstructure:"lark"`
	Referential ReferentialConfig `mapstructure:"referential"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	EventKeepAlive  time.Duration `mapstructure:"event_keepalive"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// AuthConfig holds bearer token configuration
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	Issuer            string        `mapstructure:"issuer"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	AllowPublicFiling bool          `mapstructure:"allow_public_filing"`
}

// EligibilityConfig tunes the eligibility rules
type EligibilityConfig struct {
	MinTenureMonths int `mapstructure:"min_tenure_months"`
}

// EffectsConfig tunes effect execution and the background worker
type EffectsConfig struct {
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseBackoff  time.Duration `mapstructure:"base_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
	PickupDelay  time.Duration `mapstructure:"pickup_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

// DocumentsConfig holds the text printed on official documents
type DocumentsConfig struct {
	Organisation string `mapstructure:"organisation"`
	Signatory    string `mapstructure:"signatory"`
	City         string `mapstructure:"city"`
}

// StorageConfig holds file storage configuration
type StorageConfig struct {
	DocumentsDir string `mapstructure:"documents_dir"`
}

// MailConfig holds SMTP configuration. An empty host disables the channel.
type MailConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	From          string        `mapstructure:"from"`
	FromName      string        `mapstructure:"from_name"`
	TLS           string        `mapstructure:"tls"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	Burst         int           `mapstructure:"burst"`
}

// Enabled reports whether SMTP delivery is configured
func (m MailConfig) Enabled() bool { return m.Host != "" }

// LarkConfig holds Lark API configuration. An empty app id disables the channel.
type LarkConfig struct {
	AppID         string        `mapstructure:"app_id"`
	AppSecret     string        `mapstructure:"app_secret"`
	BaseURL       string        `mapstructure:"base_url"`
	APITimeout    time.Duration `mapstructure:"api_timeout"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	Burst         int           `mapstructure:"burst"`
}

// Enabled reports whether Lark delivery is configured
func (l LarkConfig) Enabled() bool { return l.AppID != "" }

// ReferentialConfig points at the organisation referential
type ReferentialConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RuntimeMetrics bool `mapstructure:"runtime_metrics"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. A .env
// file next to the working directory is applied first when present; values
// already set in the environment win over it.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	err := gotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.event_keepalive", 25*time.Second)

	v.SetDefault("database.path", "data/mutations.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.issuer", "mutationd")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.allow_public_filing", false)

	v.SetDefault("eligibility.min_tenure_months", 24)

	v.SetDefault("effects.wait_timeout", 5*time.Second)
	v.SetDefault("effects.max_attempts", 5)
	v.SetDefault("effects.base_backoff", 30*time.Second)
	v.SetDefault("effects.max_backoff", 30*time.Minute)
	v.SetDefault("effects.pickup_delay", 30*time.Second)
	v.SetDefault("effects.poll_interval", 15*time.Second)
	v.SetDefault("effects.batch_size", 20)
	v.SetDefault("effects.stale_after", 10*time.Minute)

	v.SetDefault("documents.organisation", "Direction Nationale du Contrôle Financier")
	v.SetDefault("documents.signatory", "Le Directeur National")
	v.SetDefault("documents.city", "Dakar")

	v.SetDefault("storage.documents_dir", "data/documents")

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.from_name", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.tls", "mandatory")
	v.SetDefault("mail.timeout", 30*time.Second)
	v.SetDefault("mail.rate_per_minute", 30)
	v.SetDefault("mail.burst", 5)

	v.SetDefault("lark.base_url", "")
	v.SetDefault("lark.api_timeout", 30*time.Second)
	v.SetDefault("lark.rate_per_minute", 50)
	v.SetDefault("lark.burst", 5)

	v.SetDefault("referential.path", "configs/referential.yaml")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.runtime_metrics", true)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the unprefixed names commonly used for secrets
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"auth.jwt_secret": "JWT_SECRET",
		"mail.password":   "SMTP_PASSWORD",
		"lark.app_id":     "LARK_APP_ID",
		"lark.app_secret": "LARK_APP_SECRET",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if c.Eligibility.MinTenureMonths < 0 {
		return fmt.Errorf("eligibility.min_tenure_months cannot be negative")
	}
	if c.Effects.WaitTimeout <= 0 {
		return fmt.Errorf("effects.wait_timeout must be positive")
	}
	if c.Effects.PollInterval <= 0 {
		return fmt.Errorf("effects.poll_interval must be positive")
	}
	if c.Effects.PickupDelay <= c.Effects.WaitTimeout {
		return fmt.Errorf("effects.pickup_delay must exceed effects.wait_timeout")
	}
	if c.Storage.DocumentsDir == "" {
		return fmt.Errorf("storage.documents_dir is required")
	}
	if c.Referential.Path == "" {
		return fmt.Errorf("referential.path is required")
	}

	if !c.Mail.Enabled() && !c.Lark.Enabled() {
		return fmt.Errorf("at least one notification channel (mail.host or lark.app_id) is required")
	}
	if c.Mail.Enabled() && c.Mail.From == "" {
		return fmt.Errorf("mail.from is required when mail.host is set")
	}
	if c.Lark.Enabled() && c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required when lark.app_id is set")
	}

	return nil
}

// FileExists reports whether path names an existing regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
