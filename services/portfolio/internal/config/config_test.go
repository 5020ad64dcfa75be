package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"PORT", "NODE_ENV", "ENV", "LOG_LEVEL", "STATIC_DIR", "DATABASE_URL", "SESSION_SECRET",
	"SESSION_COOKIE_NAME", "SESSION_TTL", "ADMIN_EMAIL", "ADMIN_PASSWORD", "REDIS_ADDR",
	"REDIS_PASSWORD", "TRUSTED_PROXY_CIDRS", "CORS_ALLOWED_ORIGINS", "MINIO_ENDPOINT",
	"MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_PUBLIC_URL", "MINIO_USE_SSL",
	"UPLOAD_ALLOWED_EXTENSIONS", "AMQP_URL", "AMQP_EXCHANGE", "LOGIN_RATE_LIMIT_PER_MINUTE",
	"CONTACT_RATE_LIMIT_PER_MINUTE", "MAX_UPLOAD_BYTES", "CONTACT_STREAM",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
port: "8080"
logLevel: debug
databaseURL: postgres://portfolio@db/portfolio
sessionSecret: from-file
redisAddr: redis:6379
loginRateLimitPerMinute: 3
corsAllowedOrigins: ["http://localhost:5173"]
`)
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("PORT override not applied: %q", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://portfolio@db/portfolio" || cfg.LogLevel != "debug" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.LoginRateLimitPerMinute != 3 || cfg.ContactRateLimitPerMinute != 5 {
		t.Fatalf("unexpected rate limits: %d/%d", cfg.LoginRateLimitPerMinute, cfg.ContactRateLimitPerMinute)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins not split: %#v", cfg.CORSAllowedOrigins)
	}
	if cfg.SessionCookieName != "portfolio.sid" || cfg.Env != EnvDevelopment {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "portfolio.toml", `
port = "7000"
databaseURL = "sqlite://dev.db"
allowedExtensions = [".png"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7000" || cfg.DatabaseURL != "sqlite://dev.db" {
		t.Fatalf("unexpected toml config: %+v", cfg)
	}
	if len(cfg.AllowedExtensions) != 1 || cfg.AllowedExtensions[0] != ".png" {
		t.Fatalf("unexpected extensions: %#v", cfg.AllowedExtensions)
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "port: \"5000\"\n")
	writeFile(t, dir, ".env", "DATABASE_URL=sqlite://from-dotenv.db\nLOG_LEVEL=warn\n")
	t.Setenv("LOG_LEVEL", "error")
	// godotenv skips keys that exist at all, even when empty.
	_ = os.Unsetenv("DATABASE_URL")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "sqlite://from-dotenv.db" {
		t.Fatalf(".env value not loaded: %q", cfg.DatabaseURL)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf(".env overrode the environment: %q", cfg.LogLevel)
	}
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	clearEnv(t)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load without file: %v", err)
	}
	if cfg.AdminEmail != "admin@portfolio.com" || cfg.AdminPassword != "admin123" {
		t.Fatalf("expected default admin seed, got %q/%q", cfg.AdminEmail, cfg.AdminPassword)
	}
	if !strings.HasPrefix(cfg.DatabaseURL, "sqlite://") {
		t.Fatalf("expected sqlite default database, got %q", cfg.DatabaseURL)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("unexpected upload limit %d", cfg.MaxUploadBytes)
	}
	if cfg.LoginRateLimitPerMinute != 10 || cfg.ContactRateLimitPerMinute != 5 {
		t.Fatalf("unexpected default rate limits %d/%d", cfg.LoginRateLimitPerMinute, cfg.ContactRateLimitPerMinute)
	}
}

func TestLoadZeroRateLimitDisables(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONTACT_RATE_LIMIT_PER_MINUTE", "0")
	path := writeFile(t, t.TempDir(), "config.yaml", "loginRateLimitPerMinute: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LoginRateLimitPerMinute != 0 || cfg.ContactRateLimitPerMinute != 0 {
		t.Fatalf("explicit zero must disable limiting, got %d/%d",
			cfg.LoginRateLimitPerMinute, cfg.ContactRateLimitPerMinute)
	}

	clearEnv(t)
	path = writeFile(t, t.TempDir(), "config.toml", "contactRateLimitPerMinute = 0\n")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load toml: %v", err)
	}
	if cfg.LoginRateLimitPerMinute != 10 || cfg.ContactRateLimitPerMinute != 0 {
		t.Fatalf("expected 10/0, got %d/%d", cfg.LoginRateLimitPerMinute, cfg.ContactRateLimitPerMinute)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"production needs secret", map[string]string{"ENV": "production", "DATABASE_URL": "postgres://x"}, "sessionSecret"},
		{"production needs database", map[string]string{"ENV": "production", "SESSION_SECRET": "s"}, "databaseURL"},
		{"negative rate limit", map[string]string{"LOGIN_RATE_LIMIT_PER_MINUTE": "-1"}, "rate limits"},
		{"bad ttl", map[string]string{"SESSION_TTL": "soon"}, "sessionTTL"},
		{"bad port", map[string]string{"PORT": "http"}, "port"},
		{"bad cookie name", map[string]string{"SESSION_COOKIE_NAME": "portfolio sid"}, "sessionCookieName"},
		{"cookie name separator", map[string]string{"SESSION_COOKIE_NAME": "sid;x"}, "sessionCookieName"},
		{"unknown env", map[string]string{"ENV": "staging"}, "unknown env"},
		{"node env honored", map[string]string{"NODE_ENV": "production", "DATABASE_URL": "postgres://x"}, "sessionSecret"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			path := writeFile(t, dir, "config.yaml", "{}\n")
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestProductionDoesNotSeedDefaultPassword(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("SESSION_SECRET", "s3cret")
	path := writeFile(t, t.TempDir(), "config.yaml", "{}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AdminPassword != "" || !cfg.IsProduction() {
		t.Fatalf("production must not default the admin password: %+v", cfg)
	}
}

func TestParseSessionTTL(t *testing.T) {
	if d, err := ParseSessionTTL(""); err != nil || d != 24*time.Hour {
		t.Fatalf("default ttl = %v, %v", d, err)
	}
	if d, err := ParseSessionTTL("90m"); err != nil || d != 90*time.Minute {
		t.Fatalf("ttl = %v, %v", d, err)
	}
	if _, err := ParseSessionTTL("-1h"); err == nil {
		t.Fatalf("expected error for negative ttl")
	}
}

func TestSessionKeys(t *testing.T) {
	keys := SessionKeys("current, previous")
	if len(keys) != 4 {
		t.Fatalf("expected two key pairs, got %d entries", len(keys))
	}
	if len(keys[0]) != 32 || keys[1] != nil {
		t.Fatalf("unexpected first pair")
	}
	if SessionKeys("") != nil {
		t.Fatalf("empty secret yields no keys")
	}
}
