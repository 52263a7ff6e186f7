// Package routeguard mirrors the server's authorization decision for page
// navigation. A Guard decides, from the fetched current user, whether a
// page renders, waits, shows an error, or redirects elsewhere.
package routeguard

import "sync"

// Role is the role a guarded page requires.
type Role string

// Guard roles.
const (
	RoleAdmin  Role = "admin"
	RoleAgent  Role = "agent"
	RoleClient Role = "client"
)

// Landing pages.
const (
	LoginPath       = "/login"
	HomePath        = "/"
	AdminDashboard  = "/admin"
	AgentDashboard  = "/agent/dashboard"
	ClientDashboard = "/client/dashboard"
)

// User roles as stored on user records.
const (
	userRoleAgent  = "agent"
	userRoleClient = "client"
	userRoleAdmin  = "admin"
)

// User is the current-user projection a guard inspects.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsAdmin  bool   `json:"isAdmin"`
}

// State is the client's view of the current-user fetch.
type State struct {
	Loading bool
	User    *User
	Err     error
}

// Kind is the outcome of evaluating a guard.
type Kind int

// Outcome kinds.
const (
	Loading Kind = iota
	Render
	Redirect
	Error
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is what the page should do.
type Outcome struct {
	Kind Kind
	// To is the redirect target when Kind is Redirect.
	To string
	// Err is the fetch error when Kind is Error.
	Err error
}

// Guard is a role-parameterized page guard.
type Guard struct {
	Role Role
}

// Evaluate maps a fetch state to an outcome. It has no side effects.
func (g Guard) Evaluate(s State) Outcome {
	switch {
	case s.Loading:
		return Outcome{Kind: Loading}
	case s.Err != nil:
		return Outcome{Kind: Error, Err: s.Err}
	case s.User == nil:
		return Outcome{Kind: Redirect, To: LoginPath}
	case g.Allows(s.User):
		return Outcome{Kind: Render}
	case g.Role == RoleAdmin:
		return Outcome{Kind: Redirect, To: HomePath}
	default:
		return Outcome{Kind: Redirect, To: Dashboard(s.User)}
	}
}

// Allows reports whether u satisfies the guard's role.
func (g Guard) Allows(u *User) bool {
	if u == nil {
		return false
	}
	switch g.Role {
	case RoleAdmin:
		return u.IsAdmin
	case RoleAgent:
		return u.Role == userRoleAgent
	case RoleClient:
		return u.Role == userRoleClient || u.Role == userRoleAdmin || u.IsAdmin
	default:
		return false
	}
}

// Dashboard returns the landing page for u's own role.
func Dashboard(u *User) string {
	switch {
	case u == nil:
		return LoginPath
	case u.IsAdmin || u.Role == userRoleAdmin:
		return AdminDashboard
	case u.Role == userRoleAgent:
		return AgentDashboard
	case u.Role == userRoleClient:
		return ClientDashboard
	default:
		return HomePath
	}
}

// Tracker wraps a Guard for one page instance. It moves from loading to a
// terminal authorized or unauthorized state and issues at most one
// redirect. Only a new Tracker, created after the parent refetches the
// user, can leave a terminal state.
type Tracker struct {
	guard Guard

	mu         sync.Mutex
	terminal   bool
	redirected bool
	last       Outcome
}

// NewTracker creates a tracker for g.
func NewTracker(g Guard) *Tracker {
	return &Tracker{guard: g, last: Outcome{Kind: Loading}}
}

// Observe feeds a state into the tracker and returns the outcome to act on.
// fire is true only the first time a redirect is decided.
func (t *Tracker) Observe(s State) (out Outcome, fire bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminal {
		return t.last, false
	}

	out = t.guard.Evaluate(s)
	switch out.Kind {
	case Render:
		t.terminal = true
	case Redirect:
		t.terminal = true
		if !t.redirected {
			t.redirected = true
			fire = true
		}
	case Loading, Error:
	}
	t.last = out
	return out, fire
}

// Outcome returns the most recent outcome.
func (t *Tracker) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
