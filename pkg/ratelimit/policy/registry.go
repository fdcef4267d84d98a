package policy

import (
	"fmt"
	"sort"
	"time"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
)

// Names of the built-in policies.
const (
	Auth          = "auth"
	PasswordReset = "password-reset"
	FormSubmit    = "form-submit"
	Upload        = "upload"
	API           = "api"
)

// Defaults returns the tuned configuration for every protected surface.
func Defaults() []Config {
	return []Config{
		{Name: Auth, Window: 15 * time.Minute, MaxRequests: 5, BlockDuration: 30 * time.Minute},
		{Name: PasswordReset, Window: time.Hour, MaxRequests: 3, BlockDuration: time.Hour},
		{Name: FormSubmit, Window: time.Minute, MaxRequests: 10},
		{Name: Upload, Window: time.Hour, MaxRequests: 20},
		{Name: API, Window: time.Minute, MaxRequests: 100},
	}
}

// Registry is a read-only set of policies built once at startup.
type Registry struct {
	policies map[string]*Policy
	names    []string
}

// NewRegistry validates every config and rejects duplicate names.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{policies: make(map[string]*Policy, len(configs))}
	for _, c := range configs {
		if _, dup := r.policies[c.Name]; dup {
			return nil, pgerrors.NewValidationError(module, "name", c.Name, "duplicate policy")
		}
		p, err := New(c)
		if err != nil {
			return nil, err
		}
		r.policies[p.name] = p
		r.names = append(r.names, p.name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the named policy.
func (r *Registry) Get(name string) (*Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pgerrors.ErrUnknownPolicy, name)
	}
	return p, nil
}

// MustGet is like Get but panics for unknown names. Use it only while wiring
// routes at startup.
func (r *Registry) MustGet(name string) *Policy {
	p, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Names returns the registered policy names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns the registered policies sorted by name.
func (r *Registry) All() []*Policy {
	out := make([]*Policy, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.policies[n])
	}
	return out
}
