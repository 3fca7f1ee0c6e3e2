package schema

import (
	"fmt"
	"sync"
)

// Registry maps entity names to definitions in registration order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	defs     map[string]*Definition
	auditDef *Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Default is the process-wide registry populated at startup.
var Default = NewRegistry()

// Register validates and records a definition. It returns the definition so
// model declarations can assign it in one statement.
func (r *Registry) Register(def *Definition) (*Definition, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return nil, fmt.Errorf("entity %s already registered", def.Name)
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return def, nil
}

// MustRegister is Register for startup-time declarations, where a bad
// definition is a programming error.
func (r *Registry) MustRegister(def *Definition) *Definition {
	d, err := r.Register(def)
	if err != nil {
		panic(err)
	}
	return d
}

// RegisterAudit registers def and marks it as the audit entity. Persisting
// the audit entity never emits audit events; the check is definition
// identity, not per-instance state.
func (r *Registry) RegisterAudit(def *Definition) (*Definition, error) {
	d, err := r.Register(def)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	d.audit = true
	r.auditDef = d
	r.mu.Unlock()
	return d, nil
}

// AuditDefinition returns the audit entity definition, or nil.
func (r *Registry) AuditDefinition() *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.auditDef
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// All returns definitions in registration order.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Reset clears the registry. Test helper.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.defs = make(map[string]*Definition)
	r.auditDef = nil
}
