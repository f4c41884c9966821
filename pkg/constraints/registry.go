/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package constraints

import (
	"fmt"
	"sort"
)

type entry struct {
	constraint Constraint
	enabled    bool
	weight     float64
}

// Registry is the named, ordered collection of constraints described by §4.2.
// Registration order is preserved so the Constraint Evaluator (C5) invokes
// constraints deterministically.
type Registry struct {
	order   []string
	entries map[string]*entry
}

// NewRegistry registers cs in order, all enabled at their default weight.
func NewRegistry(cs ...Constraint) *Registry {
	r := &Registry{entries: make(map[string]*entry, len(cs))}
	for _, c := range cs {
		r.register(c)
	}
	return r
}

func (r *Registry) register(c Constraint) {
	if _, exists := r.entries[c.Name()]; exists {
		return
	}
	r.order = append(r.order, c.Name())
	r.entries[c.Name()] = &entry{constraint: c, enabled: true, weight: c.DefaultWeight()}
}

// Enable turns a constraint on by name. Unknown names are a no-op.
func (r *Registry) Enable(name string) {
	if e, ok := r.entries[name]; ok {
		e.enabled = true
	}
}

// Disable turns a constraint off by name. Unknown names are a no-op.
func (r *Registry) Disable(name string) {
	if e, ok := r.entries[name]; ok {
		e.enabled = false
	}
}

// SetWeight overrides the weight used for a soft constraint's penalty.
func (r *Registry) SetWeight(name string, weight float64) {
	if e, ok := r.entries[name]; ok {
		e.weight = weight
	}
}

// Weight returns the currently-configured weight for name, or 0 if unknown.
func (r *Registry) Weight(name string) float64 {
	if e, ok := r.entries[name]; ok {
		return e.weight
	}
	return 0
}

// Enabled reports whether name is turned on (irrespective of dependencies).
func (r *Registry) Enabled(name string) bool {
	e, ok := r.entries[name]
	return ok && e.enabled
}

// All returns every registered constraint in registration order.
func (r *Registry) All() []Constraint {
	out := make([]Constraint, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].constraint)
	}
	return out
}

// Active returns the constraints that are enabled AND whose full dependency
// chain is also active, in registration order (§4.2: "a constraint is active
// only when every name in its dependencies is active").
func (r *Registry) Active() []Constraint {
	active := make(map[string]bool, len(r.order))
	// Fixed-point iteration: a constraint's activity can depend on another
	// constraint's activity regardless of registration order, so we loop
	// until nothing changes (bounded by len(order) passes).
	for pass := 0; pass < len(r.order)+1; pass++ {
		changed := false
		for _, name := range r.order {
			if active[name] {
				continue
			}
			e := r.entries[name]
			if !e.enabled {
				continue
			}
			ok := true
			for _, dep := range e.constraint.Dependencies() {
				if !active[dep] {
					ok = false
					break
				}
			}
			if ok {
				active[name] = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	out := make([]Constraint, 0, len(r.order))
	for _, name := range r.order {
		if active[name] {
			out = append(out, r.entries[name].constraint)
		}
	}
	return out
}

// ActiveHard and ActiveSoft partition Active() by Constraint.Hard().
func (r *Registry) ActiveHard() []Constraint {
	return filterHard(r.Active(), true)
}

func (r *Registry) ActiveSoft() []Constraint {
	return filterHard(r.Active(), false)
}

func filterHard(cs []Constraint, hard bool) []Constraint {
	out := make([]Constraint, 0, len(cs))
	for _, c := range cs {
		if c.Hard() == hard {
			out = append(out, c)
		}
	}
	return out
}

// ValidateNoConflicts checks that no two *active* constraints mutually conflict, per
// each Constraint's ConflictsWith() list.
func (r *Registry) ValidateNoConflicts() error {
	active := make(map[string]bool)
	for _, c := range r.Active() {
		active[c.Name()] = true
	}
	var names []string
	for name := range active {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, c := range r.Active() {
		for _, conflict := range c.ConflictsWith() {
			if active[conflict] {
				return fmt.Errorf("constraint %q conflicts with active constraint %q", c.Name(), conflict)
			}
		}
	}
	return nil
}
