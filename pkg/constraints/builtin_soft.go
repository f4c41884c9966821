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
	"math"
	"sort"

	"github.com/residency-sched/engine/pkg/schedcontext"
)

// ---- Equity ----

type equity struct{ base }

func NewEquity() Constraint {
	return equity{base{name: NameEquity, category: "fairness", priority: PriorityMedium, defaultWeight: 2, hard: false, dependencies: []string{NameAvailability}}}
}

func (equity) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	counts := map[string]int{}
	for _, r := range ctx.Residents() {
		counts[r.ID] = 0
	}
	for _, a := range assignments {
		if a.Role == schedcontext.RolePrimary {
			if _, ok := counts[a.PersonID]; ok {
				counts[a.PersonID]++
			}
		}
	}
	mean, stddev := meanStdDev(counts)
	var violations []Violation
	if stddev > 0 {
		for personID, c := range counts {
			if math.Abs(float64(c)-mean) > stddev {
				violations = append(violations, Violation{
					Severity:    SeverityWarning,
					Message:     fmt.Sprintf("resident %s has %d assignments, mean %.1f (stddev %.1f)", personID, c, mean, stddev),
					AffectedIDs: []string{personID},
				})
			}
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

func meanStdDev(counts map[string]int) (mean, stddev float64) {
	n := len(counts)
	if n == 0 {
		return 0, 0
	}
	sum := 0
	for _, c := range counts {
		sum += c
	}
	mean = float64(sum) / float64(n)
	var variance float64
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(n)
	return mean, math.Sqrt(variance)
}

// ---- Continuity ----

type continuity struct{ base }

func NewContinuity() Constraint {
	return continuity{base{name: NameContinuity, category: "fairness", priority: PriorityLow, defaultWeight: 1, hard: false, dependencies: []string{NameAvailability}}}
}

func (continuity) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	byPerson := map[string][]schedcontext.Assignment{}
	for _, a := range assignments {
		if a.Role == schedcontext.RolePrimary {
			byPerson[a.PersonID] = append(byPerson[a.PersonID], a)
		}
	}
	var violations []Violation
	for personID, as := range byPerson {
		sort.Slice(as, func(i, j int) bool { return ctx.BlockIndex(as[i].BlockID) < ctx.BlockIndex(as[j].BlockID) })
		switches := 0
		for i := 1; i < len(as); i++ {
			if as[i].TemplateID != as[i-1].TemplateID {
				switches++
			}
		}
		if len(as) > 1 && switches > len(as)/2 {
			violations = append(violations, Violation{
				Severity:    SeverityInfo,
				Message:     fmt.Sprintf("resident %s switches rotation templates %d times across %d blocks", personID, switches, len(as)),
				AffectedIDs: []string{personID},
			})
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// ---- FacultyPreference ----
// Mirrors Continuity but over faculty supervising assignments: prefers a
// faculty member to keep supervising the same template run rather than
// rotating through unrelated ones block-to-block.

type facultyPreference struct{ base }

func NewFacultyPreference() Constraint {
	return facultyPreference{base{name: NameFacultyPreference, category: "preference", priority: PriorityLow, defaultWeight: 1, hard: false}}
}

func (facultyPreference) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	byFaculty := map[string][]schedcontext.Assignment{}
	for _, a := range assignments {
		if a.Role != schedcontext.RoleSupervising {
			continue
		}
		if p, ok := ctx.Person(a.PersonID); ok && p.Kind == schedcontext.KindFaculty {
			byFaculty[a.PersonID] = append(byFaculty[a.PersonID], a)
		}
	}
	var violations []Violation
	for facultyID, as := range byFaculty {
		sort.Slice(as, func(i, j int) bool { return ctx.BlockIndex(as[i].BlockID) < ctx.BlockIndex(as[j].BlockID) })
		switches := 0
		for i := 1; i < len(as); i++ {
			if as[i].TemplateID != as[i-1].TemplateID {
				switches++
			}
		}
		if len(as) > 2 && switches == len(as)-1 {
			violations = append(violations, Violation{
				Severity:    SeverityInfo,
				Message:     fmt.Sprintf("faculty %s never supervises the same template twice in a row", facultyID),
				AffectedIDs: []string{facultyID},
			})
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// ---- WeekendFairness ----

type weekendFairness struct{ base }

func NewWeekendFairness() Constraint {
	return weekendFairness{base{name: NameWeekendFairness, category: "fairness", priority: PriorityMedium, defaultWeight: 1.5, hard: false, dependencies: []string{NameAvailability}}}
}

func (weekendFairness) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	counts := map[string]int{}
	for _, r := range ctx.Residents() {
		counts[r.ID] = 0
	}
	for _, a := range assignments {
		if a.Role != schedcontext.RolePrimary {
			continue
		}
		i := ctx.BlockIndex(a.BlockID)
		if i < 0 {
			continue
		}
		b := ctx.Blocks()[i]
		if b.IsWeekend() || b.IsHoliday {
			if _, ok := counts[a.PersonID]; ok {
				counts[a.PersonID]++
			}
		}
	}
	mean, stddev := meanStdDev(counts)
	var violations []Violation
	if stddev > 0 {
		for personID, c := range counts {
			if float64(c) > mean+stddev {
				violations = append(violations, Violation{
					Severity:    SeverityWarning,
					Message:     fmt.Sprintf("resident %s carries %d weekend/holiday blocks, mean %.1f", personID, c, mean),
					AffectedIDs: []string{personID},
				})
			}
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// ---- CallSpacing ----

type callSpacing struct{ base }

func NewCallSpacing() Constraint {
	return callSpacing{base{name: NameCallSpacing, category: "fixtures", priority: PriorityMedium, defaultWeight: 1, hard: false, dependencies: []string{NameAvailability}}}
}

func (callSpacing) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	byPerson := map[string]map[int]bool{} // personID -> iso week index seen
	weekIndex := func(blockID string) int {
		if d, ok := blockDate(ctx, blockID); ok {
			return int(isoWeekStart(d).Unix() / (7 * 24 * 3600))
		}
		return -1
	}
	for _, a := range assignments {
		if a.Role != schedcontext.RolePrimary {
			continue
		}
		t, ok := ctx.Template(a.TemplateID)
		if !ok || t.ActivityType != schedcontext.ActivityCall {
			continue
		}
		w := weekIndex(a.BlockID)
		if w < 0 {
			continue
		}
		if byPerson[a.PersonID] == nil {
			byPerson[a.PersonID] = map[int]bool{}
		}
		byPerson[a.PersonID][w] = true
	}
	var violations []Violation
	for personID, weeks := range byPerson {
		for w := range weeks {
			if weeks[w+1] {
				violations = append(violations, Violation{
					Severity:    SeverityWarning,
					Message:     fmt.Sprintf("resident %s has back-to-back call weeks (%d, %d)", personID, w, w+1),
					AffectedIDs: []string{personID},
				})
			}
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// ---- FMITContinuityTurf ----
// A load-shedding advisory: it costs more the more times the FMIT assignment
// changes hands across the scheduling window (FMIT assignments taken in block
// order), since every hand-off re-derails
// continuity of inpatient care. Implements CustomCoster rather than the
// default weight*violation-count cost.

type fmitContinuityTurf struct{ base }

func NewFMITContinuityTurf() Constraint {
	return fmitContinuityTurf{base{name: NameFMITContinuityTurf, category: "fixtures", priority: PriorityLow, defaultWeight: 0.5, hard: false, dependencies: []string{NameFMITStaffingFloor}}}
}

func (fmitContinuityTurf) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	fmitAssignments := filterFMIT(assignments, ctx)
	sort.Slice(fmitAssignments, func(i, j int) bool {
		return ctx.BlockIndex(fmitAssignments[i].BlockID) < ctx.BlockIndex(fmitAssignments[j].BlockID)
	})
	handoffs := 0
	for i := 1; i < len(fmitAssignments); i++ {
		if fmitAssignments[i].PersonID != fmitAssignments[i-1].PersonID {
			handoffs++
		}
	}
	var violations []Violation
	if handoffs > 0 {
		violations = append(violations, Violation{
			Severity:    SeverityInfo,
			Message:     fmt.Sprintf("FMIT service changes hands %d times across the scheduling window", handoffs),
			Details:     map[string]any{"handoffs": handoffs},
		})
	}
	return Result{Satisfied: handoffs == 0, Violations: violations}
}

func (f fmitContinuityTurf) CustomCost(result Result) float64 {
	if len(result.Violations) == 0 {
		return 0
	}
	handoffs, _ := result.Violations[0].Details["handoffs"].(int)
	return float64(handoffs)
}

// ---- SMResidentFacultyAlignment ----

type smResidentFacultyAlignment struct{ base }

func NewSMResidentFacultyAlignment() Constraint {
	return smResidentFacultyAlignment{base{name: NameSMResidentFacultyAlignment, category: "sports_medicine", priority: PriorityMedium, defaultWeight: 1, hard: false, dependencies: []string{NameAvailability}}}
}

func (smResidentFacultyAlignment) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	byBlock := map[string][]schedcontext.Assignment{}
	for _, a := range assignments {
		t, ok := ctx.Template(a.TemplateID)
		if !ok || t.ActivityCode != schedcontext.CodeSMClinic {
			continue
		}
		byBlock[a.BlockID] = append(byBlock[a.BlockID], a)
	}
	for blockID, as := range byBlock {
		hasSMResident := false
		hasSMFaculty := false
		for _, a := range as {
			p, ok := ctx.Person(a.PersonID)
			if !ok {
				continue
			}
			if p.Kind == schedcontext.KindResident && p.IsSportsMedicine {
				hasSMResident = true
			}
			if p.Kind == schedcontext.KindFaculty && p.FacultyRole == schedcontext.FacultyRoleSportsMed {
				hasSMFaculty = true
			}
		}
		if hasSMResident && !hasSMFaculty {
			violations = append(violations, Violation{
				Severity:    SeverityWarning,
				Message:     fmt.Sprintf("sports-medicine resident on block %s has no sports-medicine faculty present", blockID),
				AffectedIDs: []string{blockID},
			})
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// BuiltinSoft returns every soft constraint at its default configuration.
func BuiltinSoft() []Constraint {
	return []Constraint{
		NewEquity(),
		NewContinuity(),
		NewFacultyPreference(),
		NewWeekendFairness(),
		NewCallSpacing(),
		NewFMITContinuityTurf(),
		NewSMResidentFacultyAlignment(),
	}
}
