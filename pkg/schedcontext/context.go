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

package schedcontext

import (
	"sort"

	"github.com/samber/lo"
)

// Context is the immutable snapshot a single schedule run operates against.
// Following the teacher's "arena + indices" design, People/Faculty/Blocks/
// Templates are kept as flat slices; everything else (the index maps, the
// availability matrix) is derived once at construction and never mutated
// again, which is what makes concurrent constraint evaluation over a Context
// safe without locks.
type Context struct {
	residents           []Person
	faculty             []Person
	blocks              []Block
	templates           []RotationTemplate
	existingAssignments []Assignment

	personIndex   map[string]int // person_id -> index into residents+faculty (residents first)
	blockIndex    map[string]int
	templateIndex map[string]int

	availability map[string]map[string]Availability
}

// New builds a Context from raw inputs. Blocks are sorted by (date, AM<PM) as
// required by §4.1; all other ordering is preserved from the caller.
func New(people []Person, blocks []Block, templates []RotationTemplate, absences []Absence, existing []Assignment) *Context {
	sorted := make([]Block, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].TimeOfDay == AM && sorted[j].TimeOfDay == PM
	})

	residents := lo.Filter(people, func(p Person, _ int) bool { return p.Kind == KindResident })
	faculty := lo.Filter(people, func(p Person, _ int) bool { return p.Kind == KindFaculty })

	personIndex := make(map[string]int, len(people))
	for i, p := range residents {
		personIndex[p.ID] = i
	}
	for i, p := range faculty {
		personIndex[p.ID] = len(residents) + i
	}

	blockIndex := make(map[string]int, len(sorted))
	for i, b := range sorted {
		blockIndex[b.ID] = i
	}

	templateIndex := make(map[string]int, len(templates))
	for i, t := range templates {
		templateIndex[t.ID] = i
	}

	return &Context{
		residents:           residents,
		faculty:             faculty,
		blocks:              sorted,
		templates:           templates,
		existingAssignments: existing,
		personIndex:         personIndex,
		blockIndex:          blockIndex,
		templateIndex:       templateIndex,
		availability:        buildAvailabilityMatrix(people, sorted, absences),
	}
}

func (c *Context) Residents() []Person { return c.residents }
func (c *Context) Faculty() []Person   { return c.faculty }
func (c *Context) People() []Person    { return append(append([]Person{}, c.residents...), c.faculty...) }
func (c *Context) Blocks() []Block     { return c.blocks }
func (c *Context) Templates() []RotationTemplate { return c.templates }
func (c *Context) ExistingAssignments() []Assignment { return c.existingAssignments }

// PersonIndex returns the index of a person ID in People(), or -1.
func (c *Context) PersonIndex(id string) int {
	if i, ok := c.personIndex[id]; ok {
		return i
	}
	return -1
}

// BlockIndex returns the index of a block ID in Blocks(), or -1.
func (c *Context) BlockIndex(id string) int {
	if i, ok := c.blockIndex[id]; ok {
		return i
	}
	return -1
}

// TemplateIndex returns the index of a template ID in Templates(), or -1.
func (c *Context) TemplateIndex(id string) int {
	if i, ok := c.templateIndex[id]; ok {
		return i
	}
	return -1
}

// Template looks up a RotationTemplate by ID.
func (c *Context) Template(id string) (RotationTemplate, bool) {
	i, ok := c.templateIndex[id]
	if !ok {
		return RotationTemplate{}, false
	}
	return c.templates[i], true
}

// Person looks up a Person by ID.
func (c *Context) Person(id string) (Person, bool) {
	i, ok := c.personIndex[id]
	if !ok {
		return Person{}, false
	}
	return c.People()[i], true
}

// Availability returns whether personID may be scheduled on blockID. Unknown
// (person, block) pairs are treated as unavailable.
func (c *Context) Availability(personID, blockID string) Availability {
	if row, ok := c.availability[personID]; ok {
		if a, ok := row[blockID]; ok {
			return a
		}
	}
	return Availability{Available: false}
}

// FacultyCount returns len(Faculty()), the figure the FMITStaffingFloor
// constraint keys off of.
func (c *Context) FacultyCount() int { return len(c.faculty) }
