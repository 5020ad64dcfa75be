package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file read when no path is given. It may be absent.
const ConfigPath = "config.yaml"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultAdminEmail    = "admin@portfolio.com"
	defaultAdminPassword = "admin123"

	defaultLoginRateLimit   = 10
	defaultContactRateLimit = 5
)

// FileConfig is the service configuration. It is read from YAML (or TOML
// when the path ends in .toml) and then overridden from the environment.
type FileConfig struct {
	Port      string `yaml:"port" toml:"port"`
	Env       string `yaml:"env" toml:"env"`
	LogLevel  string `yaml:"logLevel" toml:"logLevel"`
	StaticDir string `yaml:"staticDir" toml:"staticDir"`

	DatabaseURL string `yaml:"databaseURL" toml:"databaseURL"`

	SessionSecret     string `yaml:"sessionSecret" toml:"sessionSecret"`
	SessionCookieName string `yaml:"sessionCookieName" toml:"sessionCookieName"`
	SessionTTL        string `yaml:"sessionTTL" toml:"sessionTTL"`

	AdminEmail    string `yaml:"adminEmail" toml:"adminEmail"`
	AdminPassword string `yaml:"adminPassword" toml:"adminPassword"`

	RedisAddr                 string   `yaml:"redisAddr" toml:"redisAddr"`
	RedisPassword             string   `yaml:"redisPassword" toml:"redisPassword"`
	TrustedProxyCIDRs         []string `yaml:"trustedProxyCidrs" toml:"trustedProxyCidrs"`
	LoginRateLimitPerMinute   int      `yaml:"loginRateLimitPerMinute" toml:"loginRateLimitPerMinute"`
	ContactRateLimitPerMinute int      `yaml:"contactRateLimitPerMinute" toml:"contactRateLimitPerMinute"`
	CORSAllowedOrigins        []string `yaml:"corsAllowedOrigins" toml:"corsAllowedOrigins"`

	MinioEndpoint     string   `yaml:"minioEndpoint" toml:"minioEndpoint"`
	MinioAccessKey    string   `yaml:"minioAccessKey" toml:"minioAccessKey"`
	MinioSecretKey    string   `yaml:"minioSecretKey" toml:"minioSecretKey"`
	MinioBucket       string   `yaml:"minioBucket" toml:"minioBucket"`
	MinioUseSSL       bool     `yaml:"minioUseSSL" toml:"minioUseSSL"`
	MinioPublicURL    string   `yaml:"minioPublicURL" toml:"minioPublicURL"`
	MaxUploadBytes    int64    `yaml:"maxUploadBytes" toml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions" toml:"allowedExtensions"`

	AMQPURL      string `yaml:"amqpURL" toml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange" toml:"amqpExchange"`
	// ContactStream, with RedisAddr set and no AMQPURL, publishes contact
	// events to this Redis stream instead.
	ContactStream string `yaml:"contactStream" toml:"contactStream"`
}

// IsProduction reports whether the service runs with production settings.
func (c FileConfig) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads path (ConfigPath when empty), a sibling .env file, and the
// environment. The default path may be missing; an explicit one may not.
// Variables from .env never override the real environment. Rate limits are
// preset so an explicit 0 from the file or environment disables them.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		LoginRateLimitPerMinute:   defaultLoginRateLimit,
		ContactRateLimitPerMinute: defaultContactRateLimit,
	}
	optional := path == ""
	if optional {
		path = ConfigPath
	}
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read .env: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return cfg, err
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *FileConfig) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *FileConfig) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.Env, "NODE_ENV")
	setString(&cfg.Env, "ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.StaticDir, "STATIC_DIR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.SessionSecret, "SESSION_SECRET")
	setString(&cfg.SessionCookieName, "SESSION_COOKIE_NAME")
	setString(&cfg.SessionTTL, "SESSION_TTL")
	setString(&cfg.AdminEmail, "ADMIN_EMAIL")
	setString(&cfg.AdminPassword, "ADMIN_PASSWORD")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setList(&cfg.TrustedProxyCIDRs, "TRUSTED_PROXY_CIDRS")
	setList(&cfg.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setString(&cfg.MinioPublicURL, "MINIO_PUBLIC_URL")
	setList(&cfg.AllowedExtensions, "UPLOAD_ALLOWED_EXTENSIONS")
	setString(&cfg.AMQPURL, "AMQP_URL")
	setString(&cfg.AMQPExchange, "AMQP_EXCHANGE")
	setString(&cfg.ContactStream, "CONTACT_STREAM")

	if v := strings.TrimSpace(os.Getenv("MINIO_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MINIO_USE_SSL: %w", err)
		}
		cfg.MinioUseSSL = b
	}
	for env, dst := range map[string]*int{
		"LOGIN_RATE_LIMIT_PER_MINUTE":   &cfg.LoginRateLimitPerMinute,
		"CONTACT_RATE_LIMIT_PER_MINUTE": &cfg.ContactRateLimitPerMinute,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", env, err)
			}
			*dst = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_UPLOAD_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.MaxUploadBytes = n
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env == "" {
		cfg.Env = EnvDevelopment
	}
	if cfg.Port == "" {
		cfg.Port = "5000"
	}
	if cfg.DatabaseURL == "" && !cfg.IsProduction() {
		cfg.DatabaseURL = "sqlite://portfolio.db"
	}
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = "portfolio.sid"
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "24h"
	}
	cfg.AdminEmail = strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if cfg.AdminEmail == "" {
		cfg.AdminEmail = defaultAdminEmail
	}
	if cfg.AdminPassword == "" && !cfg.IsProduction() {
		cfg.AdminPassword = defaultAdminPassword
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}
	}
	if cfg.MinioBucket == "" {
		cfg.MinioBucket = "portfolio"
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return fmt.Errorf("config: port %q is not a number", cfg.Port)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction && cfg.Env != "test" {
		return fmt.Errorf("config: unknown env %q", cfg.Env)
	}
	if !validCookieName(cfg.SessionCookieName) {
		return fmt.Errorf("config: sessionCookieName %q is not a valid cookie name", cfg.SessionCookieName)
	}
	if cfg.IsProduction() && strings.TrimSpace(cfg.SessionSecret) == "" {
		return errors.New("config: sessionSecret is required in production (set SESSION_SECRET)")
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.ContactRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return err
	}
	return nil
}

// validCookieName reports whether name is an RFC 7230 token.
func validCookieName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsFunc(name, func(r rune) bool {
		switch {
		case r <= ' ' || r >= 0x7f:
			return true
		case strings.ContainsRune("()<>@,;:\\\"/[]?={}", r):
			return true
		}
		return false
	})
}

// ParseSessionTTL parses the session lifetime; empty means 24h.
func ParseSessionTTL(ttl string) (time.Duration, error) {
	if strings.TrimSpace(ttl) == "" {
		return 24 * time.Hour, nil
	}
	dur, err := time.ParseDuration(ttl)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("invalid sessionTTL duration: must be positive")
	}
	return dur, nil
}

// SessionKeys derives securecookie key pairs from comma separated secrets:
// a 32-byte HMAC key and no block key each. The first secret signs new
// cookies; the rest still verify old ones.
func SessionKeys(secret string) [][]byte {
	var keys [][]byte
	for _, s := range splitCSV(secret) {
		sum := sha256.Sum256([]byte(s))
		keys = append(keys, sum[:], nil)
	}
	return keys
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, env string) {
	if v := os.Getenv(env); strings.TrimSpace(v) != "" {
		*dst = splitCSV(v)
	}
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
