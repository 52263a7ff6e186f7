// Package platform assembles the realty platform from configuration: stores,
// sessions, the credential resolver, audit, metrics and the HTTP handlers.
package platform

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/database"
)

// Session store kinds.
const (
	SessionStoreMemory = "memory"
	SessionStoreSQL    = "sql"
	SessionStoreRedis  = "redis"
)

const (
	envPrefix          = "REALTY"
	minCookieSecretLen = 16
	minTokenKeyLen     = 32
)

// Config holds the complete platform configuration.
type Config struct {
	APIVersion string         `yaml:"apiVersion"`
	Server     ServerConfig   `yaml:"server"`
	Database   DatabaseConfig `yaml:"database"`
	Session    SessionConfig  `yaml:"session"`
	Auth       AuthConfig     `yaml:"auth"`
	OIDC       OIDCConfig     `yaml:"oidc"`
	Audit      AuditConfig    `yaml:"audit"`
	Web        WebConfig      `yaml:"web"`
}

// ServerConfig configures the HTTP listener and logging.
type ServerConfig struct {
	Address           string        `yaml:"address"`
	LogLevel          string        `yaml:"log_level"`  // debug, info, warn, error
	LogFormat         string        `yaml:"log_format"` // text, json
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the relational store. An empty DSN keeps every
// store in memory.
type DatabaseConfig struct {
	Dialect      string `yaml:"dialect"` // postgres, mysql, tidb
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	Migrate      bool   `yaml:"migrate"`
}

// SessionConfig configures session persistence and the session cookie.
type SessionConfig struct {
	Store           string        `yaml:"store"` // memory, sql, redis
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxSessions     int           `yaml:"max_sessions"` // memory store only; 0 is unlimited
	CookieName      string        `yaml:"cookie_name"`
	CookieSecret    string        `yaml:"cookie_secret"`
	SecureCookie    bool          `yaml:"secure_cookie"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	RedisPrefix     string        `yaml:"redis_prefix"`
}

// AuthConfig configures the credential resolver.
type AuthConfig struct {
	ReservedUsername     string        `yaml:"reserved_username"`
	ReservedAdminSubject string        `yaml:"reserved_admin_subject"`
	AdminSecret          string        `yaml:"admin_secret"`
	AdminSignals         []string      `yaml:"admin_signals"`
	DevelopmentMode      bool          `yaml:"development_mode"`
	AdminTokenTTL        time.Duration `yaml:"admin_token_ttl"`
	AdminTokenKey        string        `yaml:"admin_token_key"`

	// BootstrapPassword creates the reserved administrator account on
	// startup when no account with that username exists.
	BootstrapPassword string `yaml:"bootstrap_password"`
}

// OIDCConfig configures federated login.
type OIDCConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Issuer        string        `yaml:"issuer"`
	ClientID      string        `yaml:"client_id"`
	ClientSecret  string        `yaml:"client_secret"`
	RedirectURL   string        `yaml:"redirect_url"`
	Scopes        []string      `yaml:"scopes"`
	AutoProvision bool          `yaml:"auto_provision"`
	LinkByEmail   bool          `yaml:"link_by_email"`
	AdminRole     string        `yaml:"admin_role"`
	RoleClaimPath string        `yaml:"role_claim_path"`
	RolePrefix    string        `yaml:"role_prefix"`
	StateTTL      time.Duration `yaml:"state_ttl"`
}

// AuditConfig configures authorization decision auditing.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DenialsOnly     bool          `yaml:"denials_only"`
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// WebConfig configures the embedded single-page application.
type WebConfig struct {
	Enabled bool `yaml:"enabled"`
}

// envOverrides are read from REALTY_* variables after the file is parsed.
// ADMIN_SECRET also falls back to the unprefixed variable.
type envOverrides struct {
	Address          string `split_words:"true"`
	LogLevel         string `split_words:"true"`
	DatabaseDialect  string `split_words:"true"`
	DatabaseDSN      string `split_words:"true"`
	SessionStore     string `split_words:"true"`
	CookieSecret     string `split_words:"true"`
	RedisAddr        string `split_words:"true"`
	RedisPassword    string `split_words:"true"`
	AdminSecret      string `envconfig:"ADMIN_SECRET"`
	AdminTokenKey    string `split_words:"true"`
	OIDCClientSecret string `split_words:"true"`
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, then applies environment overrides
// and defaults.
func ParseConfig(data []byte) (*Config, error) {
	if _, err := resolveVersion(DefaultRegistry(), PeekVersion(data)); err != nil {
		return nil, err
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() (*Config, error) {
	cfg := &Config{Web: WebConfig{Enabled: true}}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("reading environment overrides: %w", err)
	}
	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&cfg.Server.Address, env.Address)
	setIf(&cfg.Server.LogLevel, env.LogLevel)
	setIf(&cfg.Database.Dialect, env.DatabaseDialect)
	setIf(&cfg.Database.DSN, env.DatabaseDSN)
	setIf(&cfg.Session.Store, env.SessionStore)
	setIf(&cfg.Session.CookieSecret, env.CookieSecret)
	setIf(&cfg.Session.RedisAddr, env.RedisAddr)
	setIf(&cfg.Session.RedisPassword, env.RedisPassword)
	setIf(&cfg.Auth.AdminSecret, env.AdminSecret)
	setIf(&cfg.Auth.AdminTokenKey, env.AdminTokenKey)
	setIf(&cfg.OIDC.ClientSecret, env.OIDCClientSecret)
	return nil
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = CurrentConfigVersion
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = "text"
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Database.Dialect == "" {
		cfg.Database.Dialect = string(database.Postgres)
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = SessionStoreMemory
		if cfg.Database.DSN != "" {
			cfg.Session.Store = SessionStoreSQL
		}
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = 5 * time.Minute
	}
	if cfg.Auth.AdminTokenTTL == 0 {
		cfg.Auth.AdminTokenTTL = auth.DefaultAdminTokenTTL
	}
	if cfg.OIDC.StateTTL == 0 {
		cfg.OIDC.StateTTL = 10 * time.Minute
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 90
	}
	if cfg.Audit.CleanupInterval == 0 {
		cfg.Audit.CleanupInterval = time.Hour
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("server.log_level %q is not one of debug, info, warn, error", c.Server.LogLevel))
	}
	if c.Server.LogFormat != "text" && c.Server.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("server.log_format %q is not one of text, json", c.Server.LogFormat))
	}

	if _, err := database.ParseDialect(c.Database.Dialect); err != nil {
		errs = append(errs, "database."+err.Error())
	}

	switch c.Session.Store {
	case SessionStoreMemory:
	case SessionStoreSQL:
		if c.Database.DSN == "" {
			errs = append(errs, "session.store sql requires database.dsn")
		}
	case SessionStoreRedis:
		if c.Session.RedisAddr == "" {
			errs = append(errs, "session.redis_addr is required when session.store is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("session.store %q is not one of memory, sql, redis", c.Session.Store))
	}
	if c.Session.MaxSessions < 0 {
		errs = append(errs, "session.max_sessions must not be negative")
	}
	if c.Session.CookieSecret != "" && len(c.Session.CookieSecret) < minCookieSecretLen {
		errs = append(errs, fmt.Sprintf("session.cookie_secret must be at least %d bytes", minCookieSecretLen))
	}

	for _, name := range c.Auth.AdminSignals {
		if !auth.KnownSignal(name) {
			errs = append(errs, fmt.Sprintf("auth.admin_signals: unknown signal %q", name))
		}
	}
	if c.Auth.DevelopmentMode && !auth.DevelopmentBypassAvailable() {
		errs = append(errs, "auth.development_mode requires a binary built with the devbypass tag")
	}
	if c.Auth.AdminTokenKey != "" && len(c.Auth.AdminTokenKey) < minTokenKeyLen {
		errs = append(errs, fmt.Sprintf("auth.admin_token_key must be at least %d bytes", minTokenKeyLen))
	}
	if c.Auth.BootstrapPassword != "" && c.Auth.ReservedUsername == "" {
		errs = append(errs, "auth.bootstrap_password requires auth.reserved_username")
	}

	if c.OIDC.Enabled {
		if c.OIDC.Issuer == "" {
			errs = append(errs, "oidc.issuer is required when OIDC is enabled")
		}
		if c.OIDC.ClientID == "" {
			errs = append(errs, "oidc.client_id is required when OIDC is enabled")
		}
		if c.OIDC.RedirectURL == "" {
			errs = append(errs, "oidc.redirect_url is required when OIDC is enabled")
		}
	}

	if c.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retention_days must not be negative")
	}

	if len(errs) > 0 {
		return errors.New("config validation errors: " + strings.Join(errs, "; "))
	}
	return nil
}
