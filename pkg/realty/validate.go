package realty

import (
	"fmt"
	"net/mail"
	"strings"
)

// ValidationError describes invalid input. Handlers map it to 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

var propertyStatuses = map[string]bool{
	StatusAvailable: true,
	StatusPending:   true,
	StatusSold:      true,
	StatusRented:    true,
}

// Validate checks required property fields and applies defaults.
func (p *Property) Validate() error {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if p.Price < 0 {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if p.Bedrooms < 0 || p.Bathrooms < 0 || p.Area < 0 {
		return &ValidationError{Field: "size", Reason: "must not be negative"}
	}
	if p.Status == "" {
		p.Status = StatusAvailable
	}
	if !propertyStatuses[p.Status] {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", p.Status)}
	}
	return nil
}

// Validate checks required agent fields.
func (a *Agent) Validate() error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if a.Email != "" {
		if _, err := mail.ParseAddress(a.Email); err != nil {
			return &ValidationError{Field: "email", Reason: "is not a valid address"}
		}
	}
	return nil
}

// Validate checks required inquiry fields.
func (m *Message) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	m.Body = strings.TrimSpace(m.Body)
	if m.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	if m.Body == "" {
		return &ValidationError{Field: "message", Reason: "is required"}
	}
	if m.Subject == "" {
		m.Subject = "Property inquiry"
	}
	return nil
}

// Validate checks required user fields and defaults the role to client.
func (u *User) Validate() error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return &ValidationError{Field: "username", Reason: "is required"}
	}
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return &ValidationError{Field: "email", Reason: "is not a valid address"}
		}
	}
	if u.Role == "" {
		u.Role = RoleClient
	}
	if !u.Role.Valid() {
		return &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", u.Role)}
	}
	return nil
}
