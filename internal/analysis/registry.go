package analysis

import (
	"fmt"
	"sort"

	"github.com/Napageneral/journai/internal/dyad"
)

// Registry is the fixed, ordered set of analyzers of a Runner.
type Registry struct {
	order  []string
	byName map[string]Analyzer
}

// NewRegistry registers analyzers in the given order. Names must be unique.
func NewRegistry(analyzers ...Analyzer) (*Registry, error) {
	r := &Registry{byName: make(map[string]Analyzer, len(analyzers))}
	for _, a := range analyzers {
		name := a.Name()
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate analyzer %q", name)
		}
		r.byName[name] = a
		r.order = append(r.order, name)
	}
	return r, nil
}

// DefaultRegistry holds the five journal analyzers.
func DefaultRegistry(d *dyad.Deriver) *Registry {
	r, _ := NewRegistry(VA{}, Spider{}, Plutchik{Deriver: d}, Activities{}, ThemeRiver{})
	return r
}

func (r *Registry) Get(name string) (Analyzer, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// All returns the analyzers in registration order.
func (r *Registry) All() []Analyzer {
	out := make([]Analyzer, len(r.order))
	for i, name := range r.order {
		out[i] = r.byName[name]
	}
	return out
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}
