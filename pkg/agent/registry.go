package agent

import "github.com/harun/roundtable/internal/config"

// Registry is the immutable persona table shared by every session
type Registry struct {
	personas map[string]Persona
	order    []string
}

// NewRegistry builds a registry in configuration order
func NewRegistry(personas []config.PersonaConfig) *Registry {
	r := &Registry{
		personas: make(map[string]Persona, len(personas)),
		order:    make([]string, 0, len(personas)),
	}
	for _, p := range personas {
		if _, exists := r.personas[p.Key]; exists {
			continue
		}
		r.personas[p.Key] = PersonaFromConfig(p)
		r.order = append(r.order, p.Key)
	}
	return r
}

// Get returns a persona by key
func (r *Registry) Get(key string) (Persona, bool) {
	p, ok := r.personas[key]
	return p, ok
}

// All returns every persona in configuration order
func (r *Registry) All() []Persona {
	out := make([]Persona, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.personas[key])
	}
	return out
}

// Participants returns the personas shown as chat participants
func (r *Registry) Participants() []Persona {
	out := []Persona{}
	for _, p := range r.All() {
		if !p.IsObserver() {
			out = append(out, p)
		}
	}
	return out
}

// Order returns the known personas among keys in speaking order.
// Unknown keys are dropped and the mediator speaks last.
// An empty key list selects every participant.
func (r *Registry) Order(keys []string) []Persona {
	var pool []Persona
	if len(keys) == 0 {
		pool = r.Participants()
	} else {
		seen := map[string]bool{}
		for _, key := range keys {
			p, ok := r.personas[key]
			if !ok || seen[key] {
				continue
			}
			seen[key] = true
			pool = append(pool, p)
		}
	}

	out := make([]Persona, 0, len(pool))
	var mediators []Persona
	for _, p := range pool {
		if p.IsMediator() {
			mediators = append(mediators, p)
			continue
		}
		out = append(out, p)
	}
	return append(out, mediators...)
}
