package platform

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/realty-platform/pkg/audit"
	"github.com/txn2/realty-platform/pkg/oauth"
	"github.com/txn2/realty-platform/pkg/realty/memory"
	"github.com/txn2/realty-platform/pkg/session"
)

func TestOptions(t *testing.T) {
	cfg := &Config{}
	store := memory.New()
	sessions := session.NewMemoryStore(0)
	logger := audit.NewMemoryLogger(1)
	states := oauth.NewMemoryStateStore()
	reg := prometheus.NewRegistry()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:0"})
	defer func() { _ = client.Close() }()

	opts := &Options{}
	for _, opt := range []Option{
		WithConfig(cfg),
		WithDB(nil),
		WithStore(store),
		WithSessionStore(sessions),
		WithRedis(client),
		WithAuditLogger(logger),
		WithLoginStates(states),
		WithRegistry(reg),
	} {
		opt(opts)
	}

	if opts.Config != cfg {
		t.Error("WithConfig did not set Config")
	}
	if opts.DB != nil {
		t.Error("WithDB should set nil DB")
	}
	if opts.Store != store {
		t.Error("WithStore did not set Store")
	}
	if opts.SessionStore != sessions {
		t.Error("WithSessionStore did not set SessionStore")
	}
	if opts.Redis != client {
		t.Error("WithRedis did not set Redis")
	}
	if opts.AuditLogger != logger {
		t.Error("WithAuditLogger did not set AuditLogger")
	}
	if opts.LoginStates != states {
		t.Error("WithLoginStates did not set LoginStates")
	}
	if opts.Registry != reg {
		t.Error("WithRegistry did not set Registry")
	}
}
