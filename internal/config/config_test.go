package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "s3cr3t-s3cr3t-s3cr3t-s3cr3t-s3cr3t"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
auth:
  jwt_secret: "`+secret+`"
mail:
  host: smtp.example.org
  from: mutations@example.org
eligibility:
  min_tenure_months: 36
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 36, cfg.Eligibility.MinTenureMonths)
	assert.Equal(t, 5*time.Second, cfg.Effects.WaitTimeout)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.True(t, cfg.Mail.Enabled())
	assert.False(t, cfg.Lark.Enabled())
	assert.Equal(t, "configs/referential.yaml", cfg.Referential.Path)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
mail:
  host: smtp.example.org
  from: mutations@example.org
`)
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("MUTATION_SERVER_PORT", "7070")
	t.Setenv("MUTATION_AUTH_ALLOW_PUBLIC_FILING", "true")
	t.Setenv("MUTATION_EFFECTS_WAIT_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, secret, cfg.Auth.JWTSecret)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Auth.AllowPublicFiling)
	assert.Equal(t, 2*time.Second, cfg.Effects.WaitTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func validConfig() Config {
	return Config{
		Server:      ServerConfig{Port: 8080},
		Database:    DatabaseConfig{Path: "data/mutations.db"},
		Auth:        AuthConfig{JWTSecret: secret},
		Effects:     EffectsConfig{WaitTimeout: 5 * time.Second, PollInterval: time.Second, PickupDelay: 30 * time.Second},
		Storage:     StorageConfig{DocumentsDir: "data/documents"},
		Referential: ReferentialConfig{Path: "configs/referential.yaml"},
		Mail:        MailConfig{Host: "smtp.example.org", From: "noreply@example.org"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
		{"negative tenure", func(c *Config) { c.Eligibility.MinTenureMonths = -1 }, "min_tenure_months"},
		{"pickup inside wait window", func(c *Config) { c.Effects.PickupDelay = time.Second }, "pickup_delay"},
		{"no channel", func(c *Config) { c.Mail = MailConfig{} }, "notification channel"},
		{"mail without sender", func(c *Config) { c.Mail.From = "" }, "mail.from"},
		{"lark without secret", func(c *Config) { c.Lark.AppID = "cli_a1" }, "lark.app_secret"},
		{"lark only", func(c *Config) { c.Mail = MailConfig{}; c.Lark = LarkConfig{AppID: "cli_a1", AppSecret: "x"} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MUTATION_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("MUTATION_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("MUTATION_TEST_DOTENV"))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("MUTATION_TEST_DOTENV"))

	assert.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))
}
