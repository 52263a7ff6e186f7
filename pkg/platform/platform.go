package platform

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/realty-platform/internal/apidocs"
	"github.com/txn2/realty-platform/internal/webui"
	"github.com/txn2/realty-platform/pkg/admin"
	"github.com/txn2/realty-platform/pkg/api"
	"github.com/txn2/realty-platform/pkg/audit"
	auditsql "github.com/txn2/realty-platform/pkg/audit/sqlstore"
	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/database"
	"github.com/txn2/realty-platform/pkg/database/migrate"
	"github.com/txn2/realty-platform/pkg/health"
	"github.com/txn2/realty-platform/pkg/metrics"
	"github.com/txn2/realty-platform/pkg/middleware"
	"github.com/txn2/realty-platform/pkg/oauth"
	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/realty/memory"
	realtysql "github.com/txn2/realty-platform/pkg/realty/sqlstore"
	"github.com/txn2/realty-platform/pkg/session"
	sessionredis "github.com/txn2/realty-platform/pkg/session/redis"
	sessionsql "github.com/txn2/realty-platform/pkg/session/sqlstore"
)

const generatedSecretLen = 32

// Platform is the assembled application.
type Platform struct {
	config    *Config
	lifecycle *Lifecycle
	health    *health.Checker
	metrics   *metrics.Metrics

	db       *sql.DB
	dialect  database.Dialect
	redis    goredis.UniversalClient
	store    realty.Store
	sessions session.Store
	manager  *session.Manager
	tokens   *auth.AdminTokens
	resolver *auth.Resolver
	audit    audit.Logger
	login    *oauth.Handler

	handler http.Handler
}

// New builds the platform from options. ctx bounds construction only:
// opening the database and discovering the OIDC provider.
func New(ctx context.Context, opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	p := &Platform{
		config:    options.Config,
		lifecycle: NewLifecycle(),
		health:    health.NewChecker(),
		metrics:   metrics.New(metrics.Config{Registry: options.Registry}),
	}
	// Validate has already accepted the name.
	p.dialect, _ = database.ParseDialect(p.config.Database.Dialect)

	if err := p.initializeComponents(ctx, options); err != nil {
		if closeErr := p.lifecycle.Stop(ctx); closeErr != nil {
			slog.Warn("platform: releasing partially built platform", "error", closeErr)
		}
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return p, nil
}

func (p *Platform) initializeComponents(ctx context.Context, opts *Options) error {
	if err := p.initDatabase(ctx, opts); err != nil {
		return err
	}
	p.initStore(opts)
	if err := p.initSessions(opts); err != nil {
		return err
	}
	p.initAudit(opts)
	if err := p.initAuth(); err != nil {
		return err
	}
	if err := p.bootstrapAdmin(ctx); err != nil {
		return err
	}
	if err := p.initLogin(ctx, opts); err != nil {
		return err
	}
	p.buildHandler()
	return nil
}

func (p *Platform) initDatabase(ctx context.Context, opts *Options) error {
	switch {
	case opts.DB != nil:
		p.db = opts.DB
	case p.config.Database.DSN != "":
		db, err := database.Open(ctx, database.Config{
			Dialect:      p.dialect,
			DSN:          p.config.Database.DSN,
			MaxOpenConns: p.config.Database.MaxOpenConns,
		})
		if err != nil {
			return err
		}
		p.db = db
		p.lifecycle.AddCloser("database", db)
	default:
		return nil
	}

	if p.config.Database.Migrate {
		if err := migrate.Run(p.db, p.dialect); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("platform: database migrations applied", "dialect", p.dialect)
	}
	p.health.AddProbe("database", p.db.PingContext)
	return nil
}

func (p *Platform) initStore(opts *Options) {
	switch {
	case opts.Store != nil:
		p.store = opts.Store
	case p.db != nil:
		p.store = realtysql.New(p.db, p.dialect)
	default:
		slog.Warn("platform: no database configured, listings are kept in memory")
		p.store = memory.New()
	}
}

// cleaner is a store with a background expiry routine stopped by Close.
type cleaner interface {
	StartCleanupRoutine(interval time.Duration)
	Close() error
}

func (p *Platform) addCleaner(name string, c cleaner, interval time.Duration) {
	p.lifecycle.Add(name,
		func(context.Context) error {
			c.StartCleanupRoutine(interval)
			return nil
		},
		func(context.Context) error { return c.Close() },
	)
}

func (p *Platform) initSessions(opts *Options) error {
	cfg := p.config.Session

	if opts.SessionStore != nil {
		p.sessions = opts.SessionStore
	} else {
		switch cfg.Store {
		case SessionStoreSQL:
			if p.db == nil {
				return errors.New("session store sql requires a database")
			}
			store := sessionsql.New(p.db, sessionsql.Config{Dialect: p.dialect, TTL: cfg.TTL})
			p.addCleaner("session cleanup", store, cfg.CleanupInterval)
			p.sessions = store
		case SessionStoreRedis:
			p.redis = opts.Redis
			if p.redis == nil {
				client := goredis.NewClient(&goredis.Options{
					Addr:     cfg.RedisAddr,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				})
				p.lifecycle.AddCloser("redis", client)
				p.redis = client
			}
			p.health.AddProbe("redis", func(ctx context.Context) error {
				return p.redis.Ping(ctx).Err()
			})
			p.sessions = sessionredis.New(p.redis, sessionredis.Config{TTL: cfg.TTL, Prefix: cfg.RedisPrefix})
		default:
			store := session.NewMemoryStore(cfg.TTL, session.WithMaxSessions(cfg.MaxSessions))
			p.addCleaner("session cleanup", store, cfg.CleanupInterval)
			p.sessions = store
		}
	}

	secret := []byte(cfg.CookieSecret)
	if len(secret) == 0 {
		secret = make([]byte, generatedSecretLen)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating cookie secret: %w", err)
		}
		slog.Warn("platform: session.cookie_secret not set, sessions will not survive a restart")
	}
	p.manager = session.NewManager(session.HandlerConfig{
		Store:      p.sessions,
		TTL:        cfg.TTL,
		CookieName: cfg.CookieName,
		Secret:     secret,
		Secure:     cfg.SecureCookie,
	})
	return nil
}

func (p *Platform) initAudit(opts *Options) {
	cfg := p.config.Audit
	switch {
	case opts.AuditLogger != nil:
		p.audit = opts.AuditLogger
	case !cfg.Enabled:
		return
	case p.db != nil:
		store := auditsql.New(p.db, auditsql.Config{Dialect: p.dialect, RetentionDays: cfg.RetentionDays})
		p.addCleaner("audit cleanup", store, cfg.CleanupInterval)
		p.audit = store
	default:
		logger := audit.NewMemoryLogger(0)
		p.lifecycle.AddCloser("audit", logger)
		p.audit = logger
	}
}

func (p *Platform) initAuth() error {
	cfg := p.config.Auth

	if cfg.AdminTokenKey != "" {
		tokens, err := auth.NewAdminTokens(auth.AdminTokenConfig{
			SigningKey: []byte(cfg.AdminTokenKey),
			TTL:        cfg.AdminTokenTTL,
		})
		if err != nil {
			return fmt.Errorf("creating admin tokens: %w", err)
		}
		p.tokens = tokens
	}

	resolverOpts := []auth.Option{auth.WithObserver(p.metrics)}
	if p.audit != nil {
		var recOpts []audit.RecorderOption
		if p.config.Audit.DenialsOnly {
			recOpts = append(recOpts, audit.DenialsOnly())
		}
		resolverOpts = append(resolverOpts, auth.WithObserver(audit.NewRecorder(p.audit, recOpts...)))
	}

	resolver, err := auth.NewResolver(auth.Config{
		ReservedUsername:     cfg.ReservedUsername,
		ReservedAdminSubject: cfg.ReservedAdminSubject,
		AdminSecret:          cfg.AdminSecret,
		Signals:              cfg.AdminSignals,
		DevelopmentMode:      cfg.DevelopmentMode,
		Tokens:               p.tokens,
	}, resolverOpts...)
	if err != nil {
		return fmt.Errorf("creating resolver: %w", err)
	}
	p.resolver = resolver
	return nil
}

// bootstrapAdmin creates the reserved administrator account when a
// bootstrap password is configured and the account does not exist yet.
func (p *Platform) bootstrapAdmin(ctx context.Context) error {
	cfg := p.config.Auth
	if cfg.BootstrapPassword == "" {
		return nil
	}
	existing, err := p.store.GetUserByUsername(ctx, cfg.ReservedUsername)
	if err != nil {
		return fmt.Errorf("looking up bootstrap admin: %w", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := auth.HashPassword(cfg.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("hashing bootstrap password: %w", err)
	}
	u := &realty.User{
		Username:     cfg.ReservedUsername,
		FullName:     "Administrator",
		PasswordHash: hash,
		Role:         realty.RoleAdmin,
		IsAdmin:      true,
	}
	if err := p.store.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("creating bootstrap admin: %w", err)
	}
	slog.Info("platform: created bootstrap admin account", "username", u.Username)
	return nil
}

func (p *Platform) initLogin(ctx context.Context, opts *Options) error {
	cfg := p.config.OIDC
	if !cfg.Enabled {
		return nil
	}

	claims := auth.DefaultClaimsExtractor()
	if cfg.RoleClaimPath != "" {
		claims.RoleClaimPath = cfg.RoleClaimPath
	}
	claims.RolePrefix = cfg.RolePrefix

	h, err := oauth.NewHandler(ctx, oauth.Config{
		Issuer:        cfg.Issuer,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		RedirectURL:   cfg.RedirectURL,
		Scopes:        cfg.Scopes,
		Claims:        claims,
		AutoProvision: cfg.AutoProvision,
		LinkByEmail:   cfg.LinkByEmail,
		AdminRole:     cfg.AdminRole,
		StateTTL:      cfg.StateTTL,
	}, oauth.Deps{
		Users:    p.store,
		Sessions: p.manager,
		States:   opts.LoginStates,
		Logins:   p.metrics,
	})
	if err != nil {
		return err
	}
	p.login = h

	var cancel context.CancelFunc
	p.lifecycle.Add("login state cleanup",
		func(context.Context) error {
			var cleanupCtx context.Context
			cleanupCtx, cancel = context.WithCancel(context.Background())
			h.StartCleanupRoutine(cleanupCtx, cfg.StateTTL)
			return nil
		},
		func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	)
	return nil
}

func (p *Platform) buildHandler() {
	app := http.NewServeMux()
	api.NewHandler(api.Deps{
		Store:    p.store,
		Sessions: p.manager,
		Resolver: p.resolver,
		Tokens:   p.tokens,
		Logins:   p.metrics,
	}).Register(app)
	admin.NewHandler(admin.Deps{
		Store:    p.store,
		Audit:    p.audit,
		Resolver: p.resolver,
	}).Register(app)
	if p.login != nil {
		p.login.Register(app)
	}
	app.Handle("GET "+apidocs.Mount, apidocs.Handler())
	app.HandleFunc("/api/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not found"}`))
	})
	if p.config.Web.Enabled {
		app.Handle("/", webui.Handler(webui.WithAdminResolver(p.resolver)))
	}

	// Probes and metrics stay outside the session middleware so that
	// scrapes never create sessions.
	root := http.NewServeMux()
	root.Handle("GET /healthz", p.health.LivenessHandler())
	root.Handle("GET /readyz", p.health.ReadinessHandler())
	root.Handle("GET /metrics", p.metrics.Handler())
	root.Handle("/", middleware.Chain(app, p.manager.Middleware, middleware.Metrics(p.metrics)))

	p.handler = middleware.Chain(root, middleware.RequestID, middleware.Recover, middleware.AccessLog)
}

// Handler returns the root HTTP handler.
func (p *Platform) Handler() http.Handler {
	return p.handler
}

// Start starts background routines and marks the platform ready.
func (p *Platform) Start(ctx context.Context) error {
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}
	p.health.SetReady()
	return nil
}

// Stop marks the platform draining and stops every component.
func (p *Platform) Stop(ctx context.Context) error {
	p.health.SetDraining()
	return p.lifecycle.Stop(ctx)
}

// Close releases all platform resources.
func (p *Platform) Close() error {
	return p.Stop(context.Background())
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// Store returns the listings store.
func (p *Platform) Store() realty.Store {
	return p.store
}

// Resolver returns the credential resolver.
func (p *Platform) Resolver() *auth.Resolver {
	return p.resolver
}

// Health returns the readiness checker.
func (p *Platform) Health() *health.Checker {
	return p.health
}
