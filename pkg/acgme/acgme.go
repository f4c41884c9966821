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

// Package acgme implements the ACGME Validator (C6): a post-hoc, typed check
// over a finished schedule, independent of the Constraint Registry's
// pre-generation hard constraints. It exists so a schedule produced or
// edited outside the generator (a manual swap, an imported legacy schedule)
// can still be certified against duty-hour rules without re-running the full
// registry.
package acgme

import (
	"fmt"
	"time"

	"github.com/residency-sched/engine/pkg/schedcontext"
)

// ViolationKind is the closed set of typed violations §4.6 names.
type ViolationKind string

const (
	EightyHourViolation      ViolationKind = "EIGHTY_HOUR_VIOLATION"
	OneInSevenViolation      ViolationKind = "ONE_IN_SEVEN_VIOLATION"
	SupervisionRatioViolation ViolationKind = "SUPERVISION_RATIO_VIOLATION"
)

// Violation is one typed ACGME finding.
type Violation struct {
	Kind       ViolationKind
	PersonID   string
	BlockID    string
	WindowStart time.Time
	Detail     string
}

// Summary is the validator's top-level report.
type Summary struct {
	Compliant  bool
	Violations []Violation
	ByKind     map[ViolationKind]int
	ByPerson   map[string]int
}

const hoursPerBlock = 4.0

// Validate re-derives duty-hour compliance directly from assignments and ctx,
// independent of whatever constraints produced them.
func Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Summary {
	summary := Summary{Compliant: true, ByKind: map[ViolationKind]int{}, ByPerson: map[string]int{}}

	byPerson := map[string][]schedcontext.Assignment{}
	for _, a := range assignments {
		if a.Role == schedcontext.RolePrimary {
			byPerson[a.PersonID] = append(byPerson[a.PersonID], a)
		}
	}

	windows := weekWindows(ctx)

	for personID, as := range byPerson {
		days := map[time.Time]bool{}
		for _, a := range as {
			if d, ok := dayOf(ctx, a.BlockID); ok {
				days[d] = true
			}
		}
		for _, start := range windows {
			end := start.AddDate(0, 0, 6)
			count := 0
			for _, a := range as {
				d, ok := dayOf(ctx, a.BlockID)
				if !ok {
					continue
				}
				if !d.Before(start) && !d.After(end) {
					count++
				}
			}
			hours := float64(count) * hoursPerBlock
			if hours > 80 {
				summary.add(Violation{
					Kind:        EightyHourViolation,
					PersonID:    personID,
					WindowStart: start,
					Detail:      fmt.Sprintf("%.0fh logged against an 80h limit", hours),
				})
			}

			allDaysWorked := true
			for i := 0; i < 7; i++ {
				if !days[start.AddDate(0, 0, i)] {
					allDaysWorked = false
					break
				}
			}
			if allDaysWorked {
				summary.add(Violation{
					Kind:        OneInSevenViolation,
					PersonID:    personID,
					WindowStart: start,
					Detail:      "no day free of clinical duty in this 7-day window",
				})
			}
		}
	}

	type blockCounts struct{ junior, faculty int }
	perBlock := map[string]*blockCounts{}
	for _, a := range assignments {
		p, ok := ctx.Person(a.PersonID)
		if !ok {
			continue
		}
		bc, ok := perBlock[a.BlockID]
		if !ok {
			bc = &blockCounts{}
			perBlock[a.BlockID] = bc
		}
		if p.Kind == schedcontext.KindResident && (p.PGYLevel == 1 || p.PGYLevel == 2) && a.Role == schedcontext.RolePrimary {
			bc.junior++
		}
		if p.Kind == schedcontext.KindFaculty && (a.Role == schedcontext.RoleSupervising || a.Role == schedcontext.RolePrimary) {
			bc.faculty++
		}
	}
	for blockID, bc := range perBlock {
		if bc.junior == 0 {
			continue
		}
		ratio := supervisionRatioForBlock(assignments, ctx, blockID)
		required := ceilDiv(bc.junior, ratio)
		if bc.faculty < required {
			summary.add(Violation{
				Kind:    SupervisionRatioViolation,
				BlockID: blockID,
				Detail:  fmt.Sprintf("%d junior residents need %d supervising faculty, found %d", bc.junior, required, bc.faculty),
			})
		}
	}

	return summary
}

func (s *Summary) add(v Violation) {
	s.Compliant = false
	s.Violations = append(s.Violations, v)
	s.ByKind[v.Kind]++
	if v.PersonID != "" {
		s.ByPerson[v.PersonID]++
	}
}

func dayOf(ctx *schedcontext.Context, blockID string) (time.Time, bool) {
	i := ctx.BlockIndex(blockID)
	if i < 0 {
		return time.Time{}, false
	}
	b := ctx.Blocks()[i]
	return time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, b.Date.Location()), true
}

func weekWindows(ctx *schedcontext.Context) []time.Time {
	seen := map[time.Time]bool{}
	var out []time.Time
	for _, b := range ctx.Blocks() {
		d := time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, b.Date.Location())
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func supervisionRatioForBlock(assignments []schedcontext.Assignment, ctx *schedcontext.Context, blockID string) int {
	for _, a := range assignments {
		if a.BlockID != blockID {
			continue
		}
		if t, ok := ctx.Template(a.TemplateID); ok && t.SupervisionRatio > 0 {
			return t.SupervisionRatio
		}
	}
	return 2
}

func ceilDiv(a, b int) int {
	if b <= 0 || a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
