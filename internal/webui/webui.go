// Package webui embeds and serves the single-page frontend. Requests for
// the role sections (/admin, /agent, /client) pass through the same page
// guards the frontend runs, so an unauthorized visitor is redirected before
// the application shell is sent.
package webui

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/routeguard"
	"github.com/txn2/realty-platform/pkg/session"
)

//go:embed all:dist
var distFS embed.FS

// AdminResolver grants administrative privilege to a request.
type AdminResolver interface {
	ResolveAdmin(r *http.Request) auth.Decision
}

// Option configures the handler.
type Option func(*spaHandler)

// WithAdminResolver consults res for /admin pages when the session user is
// not itself an administrator.
func WithAdminResolver(res AdminResolver) Option {
	return func(h *spaHandler) {
		h.admin = res
	}
}

type section struct {
	prefix string
	guard  routeguard.Guard
}

var sections = []section{
	{prefix: "/admin", guard: routeguard.Guard{Role: routeguard.RoleAdmin}},
	{prefix: "/agent", guard: routeguard.Guard{Role: routeguard.RoleAgent}},
	{prefix: "/client", guard: routeguard.Guard{Role: routeguard.RoleClient}},
}

// guardFor returns the guard protecting path, if any.
func guardFor(path string) (routeguard.Guard, bool) {
	for _, s := range sections {
		if path == s.prefix || strings.HasPrefix(path, s.prefix+"/") {
			return s.guard, true
		}
	}
	return routeguard.Guard{}, false
}

// Available reports whether the embedded dist directory holds a build.
func Available() bool {
	_, err := fs.Stat(distFS, "dist/index.html")
	return err == nil
}

// Handler returns an http.Handler that serves the embedded SPA.
func Handler(opts ...Option) http.Handler {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		return http.NotFoundHandler()
	}
	return newSPAHandler(sub, opts...)
}

type spaHandler struct {
	root       fs.FS
	fileServer http.Handler
	indexHTML  []byte
	admin      AdminResolver
}

func newSPAHandler(root fs.FS, opts ...Option) *spaHandler {
	// index.html is served from memory: FileServer redirects
	// "/index.html" to "./", which loops under a prefix.
	indexHTML, _ := fs.ReadFile(root, "index.html")
	h := &spaHandler{
		root:       root,
		fileServer: http.FileServer(http.FS(root)),
		indexHTML:  indexHTML,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name != "" && name != "index.html" {
		if f, err := h.root.Open(name); err == nil {
			_ = f.Close()
			h.fileServer.ServeHTTP(w, r)
			return
		}
	}

	if g, ok := guardFor(r.URL.Path); ok {
		out := g.Evaluate(routeguard.State{User: h.currentUser(r, g)})
		if out.Kind == routeguard.Redirect {
			slog.Debug("webui: page guard redirect", "path", r.URL.Path, "to", out.To)
			http.Redirect(w, r, out.To, http.StatusFound)
			return
		}
	}

	if h.indexHTML == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(h.indexHTML)
}

// currentUser projects the session user the way GET /api/auth/user does.
func (h *spaHandler) currentUser(r *http.Request, g routeguard.Guard) *routeguard.User {
	var u *routeguard.User
	if sess := session.FromContext(r.Context()); sess != nil && sess.IsAuthenticated && sess.User != nil {
		u = &routeguard.User{
			ID:       sess.User.ID,
			Username: sess.User.Username,
			FullName: sess.User.FullName,
			Email:    sess.User.Email,
			Role:     sess.User.Role,
			IsAdmin:  sess.User.IsAdmin || sess.IsAdmin,
		}
	}
	if g.Role != routeguard.RoleAdmin || h.admin == nil || (u != nil && u.IsAdmin) {
		return u
	}
	if d := h.admin.ResolveAdmin(r); d.Allowed {
		if u == nil {
			u = &routeguard.User{}
		}
		u.IsAdmin = true
	}
	return u
}
