// Package tenant resolves the owning tenant and session identity for
// outbound events.
package tenant

import (
	"sync"

	"github.com/google/uuid"
)

// Unknown is the fallback tenant identifier used when no source can
// resolve a tenant. It is never cached, so later calls re-attempt
// resolution once a marker becomes available.
const Unknown = "unknown"

// sessionIDLen is the fixed short length of generated session identifiers.
const sessionIDLen = 8

// Source attempts to resolve a tenant identifier from one origin, such as a
// page dataset marker, a global configuration object, or a meta tag.
type Source interface {
	TenantID() (string, bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (string, bool)

func (f SourceFunc) TenantID() (string, bool) { return f() }

// StaticSource resolves to a fixed tenant identifier. An empty value never
// resolves.
type StaticSource string

func (s StaticSource) TenantID() (string, bool) {
	if s == "" {
		return "", false
	}
	return string(s), true
}

// Resolver resolves tenant identity through an ordered source chain and owns
// the per-lifetime session identifier.
//
// The first successful resolution is cached for the life of the resolver;
// a failed resolution yields Unknown for that call only and is retried on
// every subsequent call. Tenant identity is expected to be stable once
// known, while markers may be injected late in the page lifecycle.
type Resolver struct {
	mu        sync.Mutex
	sources   []Source
	cached    string
	sessionID string
}

// NewResolver creates a resolver over the given sources, checked in order
// with first match winning.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{
		sources:   sources,
		sessionID: uuid.New().String()[:sessionIDLen],
	}
}

// TenantID returns the resolved tenant identifier, or Unknown when no
// source resolves.
func (r *Resolver) TenantID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" {
		return r.cached
	}

	for _, src := range r.sources {
		if id, ok := src.TenantID(); ok && id != "" {
			r.cached = id
			return id
		}
	}

	return Unknown
}

// SessionID returns the session identifier generated once per resolver
// lifetime.
func (r *Resolver) SessionID() string {
	return r.sessionID
}
