// Package policy implements skill-level access control for the
// dispatcher, grounded on runtime/a2a/policy: callers may be restricted to
// an allow-list or deny-list of skill ids via request headers, enforced
// before a request reaches the task manager.
package policy

import (
	"context"
	"net/http"
	"strings"
)

// Header names carrying the caller's skill policy (spec.md §12
// supplemented feature; not core protocol surface).
const (
	HeaderAllowSkills = "X-A2A-Allow-Skills"
	HeaderDenySkills  = "X-A2A-Deny-Skills"
)

// Policy restricts which skill ids a caller may invoke. A nil AllowList
// means "no restriction beyond DenyList."
type Policy struct {
	AllowList []string
	DenyList  []string
}

// ExtractFromHeaders parses a Policy out of an inbound HTTP request's
// headers. Both headers hold a comma-separated list of skill ids.
func ExtractFromHeaders(h http.Header) Policy {
	return Policy{
		AllowList: splitCSV(h.Get(HeaderAllowSkills)),
		DenyList:  splitCSV(h.Get(HeaderDenySkills)),
	}
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type policyKey struct{}

// InjectContext returns a context carrying p, retrievable by FromContext.
func InjectContext(ctx context.Context, p Policy) context.Context {
	return context.WithValue(ctx, policyKey{}, p)
}

// FromContext retrieves a Policy previously stored by InjectContext. The
// zero Policy (no restriction) is returned if none was stored.
func FromContext(ctx context.Context) Policy {
	p, _ := ctx.Value(policyKey{}).(Policy)
	return p
}

// Allows reports whether skillID may be invoked under p.
func (p Policy) Allows(skillID string) bool {
	for _, d := range p.DenyList {
		if d == skillID {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, a := range p.AllowList {
		if a == skillID {
			return true
		}
	}
	return false
}
