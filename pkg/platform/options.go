package platform

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/realty-platform/pkg/audit"
	"github.com/txn2/realty-platform/pkg/oauth"
	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/session"
)

// Options configures the platform. Every collaborator is optional and is
// built from Config when absent.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// DB replaces the connection opened from database.dsn. The platform
	// does not close a connection it did not open.
	DB *sql.DB

	// Store replaces the listings store.
	Store realty.Store

	// SessionStore replaces the session store selected by session.store.
	SessionStore session.Store

	// Redis replaces the client built from session.redis_addr.
	Redis goredis.UniversalClient

	// AuditLogger replaces the audit logger.
	AuditLogger audit.Logger

	// LoginStates replaces the in-memory OIDC login state store.
	LoginStates oauth.StateStore

	// Registry receives the platform's collectors. A fresh registry is
	// used when nil.
	Registry *prometheus.Registry
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithStore sets the listings store.
func WithStore(store realty.Store) Option {
	return func(o *Options) {
		o.Store = store
	}
}

// WithSessionStore sets the session store.
func WithSessionStore(store session.Store) Option {
	return func(o *Options) {
		o.SessionStore = store
	}
}

// WithRedis sets the Redis client used by the redis session store.
func WithRedis(client goredis.UniversalClient) Option {
	return func(o *Options) {
		o.Redis = client
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(logger audit.Logger) Option {
	return func(o *Options) {
		o.AuditLogger = logger
	}
}

// WithLoginStates sets the OIDC login state store.
func WithLoginStates(states oauth.StateStore) Option {
	return func(o *Options) {
		o.LoginStates = states
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *Options) {
		o.Registry = reg
	}
}
