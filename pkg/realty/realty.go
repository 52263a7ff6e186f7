// Package realty defines the listings domain: properties, agents, inquiry
// messages and users, along with the store interfaces the HTTP layer depends on.
package realty

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by stores when a unique constraint would be violated.
var ErrConflict = errors.New("conflict")

// Role is the role a user plays on the site.
type Role string

// Supported roles.
const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleAgent, RoleAdmin:
		return true
	default:
		return false
	}
}

// Property status values.
const (
	StatusAvailable = "available"
	StatusPending   = "pending"
	StatusSold      = "sold"
	StatusRented    = "rented"
)

// Property is a listing.
type Property struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Bedrooms    int       `json:"bedrooms"`
	Bathrooms   int       `json:"bathrooms"`
	Area        int       `json:"area"`
	Featured    bool      `json:"featured"`
	AgentID     string    `json:"agent_id,omitempty"`
	Images      []string  `json:"images,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PropertyFilter selects properties by exact match. Zero values are ignored.
type PropertyFilter struct {
	Type     string
	Status   string
	City     string
	AgentID  string
	Featured *bool
	Limit    int
	Offset   int
}

// Agent is a listing agent shown in the directory.
type Agent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Bio       string    `json:"bio"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	Listings  int       `json:"listings"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is an inquiry submitted through the contact form or a listing page.
type Message struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	PropertyID string    `json:"property_id,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	SenderID   string    `json:"sender_id,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageFilter selects messages. Zero values are ignored.
type MessageFilter struct {
	AgentID  string
	SenderID string
	Unread   bool
	Limit    int
	Offset   int
}

// User is a persisted account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// PropertyStore persists properties.
type PropertyStore interface {
	ListProperties(ctx context.Context, filter PropertyFilter) ([]Property, error)
	GetProperty(ctx context.Context, id string) (*Property, error)
	CreateProperty(ctx context.Context, p *Property) error
	UpdateProperty(ctx context.Context, p *Property) error
	DeleteProperty(ctx context.Context, id string) error
}

// AgentStore persists agents.
type AgentStore interface {
	ListAgents(ctx context.Context) ([]Agent, error)
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentByUserID(ctx context.Context, userID string) (*Agent, error)
	CreateAgent(ctx context.Context, a *Agent) error
	UpdateAgent(ctx context.Context, a *Agent) error
	DeleteAgent(ctx context.Context, id string) error
}

// MessageStore persists inquiry messages.
type MessageStore interface {
	ListMessages(ctx context.Context, filter MessageFilter) ([]Message, error)
	CreateMessage(ctx context.Context, m *Message) error
	MarkMessageRead(ctx context.Context, id string, read bool) error
	DeleteMessage(ctx context.Context, id string) error
}

// UserStore persists user accounts.
type UserStore interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error

	// GetUserByIdentity returns the user linked to subject at issuer.
	GetUserByIdentity(ctx context.Context, issuer, subject string) (*User, error)

	// LinkIdentity links subject at issuer to the user. It returns
	// ErrConflict when the identity already belongs to someone, or when the
	// user is already linked to another subject at the same issuer.
	LinkIdentity(ctx context.Context, userID, issuer, subject string) error
}

// Store aggregates every domain store.
type Store interface {
	PropertyStore
	AgentStore
	MessageStore
	UserStore
}
