package auth

import (
	"fmt"
	"slices"
	"strings"
)

// Profile is the user information carried by a federated ID token.
type Profile struct {
	Subject  string
	Email    string
	Name     string
	Username string
	Roles    []string
}

// HasRole reports whether the profile carries role.
func (p *Profile) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// ClaimsExtractor reads a Profile out of ID token claims.
type ClaimsExtractor struct {
	// RoleClaimPath is the dot-separated path to roles in claims,
	// e.g. "realm_access.roles" or "roles".
	RoleClaimPath string

	// RolePrefix filters roles to those starting with this prefix.
	RolePrefix string

	EmailClaimPath    string
	NameClaimPath     string
	UsernameClaimPath string
	SubjectClaimPath  string
}

// DefaultClaimsExtractor returns an extractor with common defaults.
func DefaultClaimsExtractor() *ClaimsExtractor {
	return &ClaimsExtractor{
		RoleClaimPath:     "roles",
		EmailClaimPath:    "email",
		NameClaimPath:     "name",
		UsernameClaimPath: "preferred_username",
		SubjectClaimPath:  "sub",
	}
}

// Extract builds a Profile from claims. The subject is required.
func (e *ClaimsExtractor) Extract(claims map[string]any) (*Profile, error) {
	p := &Profile{
		Subject:  stringAt(claims, e.SubjectClaimPath),
		Email:    stringAt(claims, e.EmailClaimPath),
		Name:     stringAt(claims, e.NameClaimPath),
		Username: stringAt(claims, e.UsernameClaimPath),
	}
	if p.Subject == "" {
		return nil, fmt.Errorf("missing required claim: %s", e.SubjectClaimPath)
	}
	if e.RoleClaimPath != "" {
		roles := stringsAt(claims, e.RoleClaimPath)
		if e.RolePrefix != "" {
			roles = filterByPrefix(roles, e.RolePrefix)
		}
		p.Roles = roles
	}
	return p, nil
}

func stringAt(claims map[string]any, path string) string {
	s, _ := valueAt(claims, path).(string)
	return s
}

func stringsAt(claims map[string]any, path string) []string {
	switch v := valueAt(claims, path).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func valueAt(claims map[string]any, path string) any {
	if path == "" {
		return nil
	}
	var current any = claims
	for part := range strings.SplitSeq(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func filterByPrefix(items []string, prefix string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			out = append(out, item)
		}
	}
	return out
}
