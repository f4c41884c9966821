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
	"time"

	"github.com/residency-sched/engine/pkg/schedcontext"
)

// base supplies the boilerplate parts of the Constraint interface so each
// built-in only has to implement Validate.
type base struct {
	name          string
	category      string
	priority      Priority
	defaultWeight float64
	hard          bool
	dependencies  []string
	conflicts     []string
}

func (b base) Name() string            { return b.name }
func (b base) Category() string        { return b.category }
func (b base) Priority() Priority       { return b.priority }
func (b base) DefaultWeight() float64  { return b.defaultWeight }
func (b base) Hard() bool              { return b.hard }
func (b base) Dependencies() []string  { return b.dependencies }
func (b base) ConflictsWith() []string { return b.conflicts }

// ---- Availability ----

type availabilityConstraint struct{ base }

func NewAvailability() Constraint {
	return availabilityConstraint{base{name: NameAvailability, category: "acgme", priority: PriorityCritical, defaultWeight: 1, hard: true}}
}

func (availabilityConstraint) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	for _, a := range assignments {
		if a.Role != schedcontext.RolePrimary {
			continue
		}
		if !ctx.Availability(a.PersonID, a.BlockID).Available {
			violations = append(violations, Violation{
				Severity:    SeverityCritical,
				Message:     fmt.Sprintf("person %s is not available for block %s", a.PersonID, a.BlockID),
				AffectedIDs: []string{a.PersonID, a.BlockID},
			})
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// ---- EightyHourRule ----

type eightyHourRule struct{ base }

func NewEightyHourRule() Constraint {
	return eightyHourRule{base{name: NameEightyHourRule, category: "acgme", priority: PriorityCritical, defaultWeight: 1, hard: true, dependencies: []string{NameAvailability}}}
}

func (eightyHourRule) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	byPerson := primaryByPerson(assignments)
	for personID, as := range byPerson {
		for _, start := range rollingWindowStarts(ctx) {
			end := start.AddDate(0, 0, 6)
			count := 0
			for _, a := range as {
				d, ok := blockDate(ctx, a.BlockID)
				if !ok {
					continue
				}
				if !d.Before(start) && !d.After(end) {
					count++
				}
			}
			hours := float64(count) * hoursPerBlock
			if hours > 80 {
				violations = append(violations, Violation{
					Severity:    severityForExcess(hours - 80),
					Message:     fmt.Sprintf("resident %s logged %.0fh in the week starting %s (limit 80h)", personID, hours, start.Format("2006-01-02")),
					AffectedIDs: []string{personID},
					Details:     map[string]any{"window_start": start, "hours": hours},
				})
			}
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

func severityForExcess(excess float64) Severity {
	switch {
	case excess >= 20:
		return SeverityCritical
	case excess >= 8:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// ---- OneInSevenRule ----

type oneInSevenRule struct{ base }

func NewOneInSevenRule() Constraint {
	return oneInSevenRule{base{name: NameOneInSevenRule, category: "acgme", priority: PriorityCritical, defaultWeight: 1, hard: true, dependencies: []string{NameAvailability}}}
}

func (oneInSevenRule) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	byPerson := primaryByPerson(assignments)
	for personID, as := range byPerson {
		days := daysWithAssignment(as, ctx)
		for _, start := range rollingWindowStarts(ctx) {
			allDaysWorked := true
			for i := 0; i < 7; i++ {
				d := start.AddDate(0, 0, i)
				if !days[d] {
					allDaysWorked = false
					break
				}
			}
			if allDaysWorked {
				violations = append(violations, Violation{
					Severity:    SeverityCritical,
					Message:     fmt.Sprintf("resident %s has no day off in the week starting %s", personID, start.Format("2006-01-02")),
					AffectedIDs: []string{personID},
					Details:     map[string]any{"window_start": start},
				})
			}
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// ---- SupervisionRatio ----

type supervisionRatio struct {
	base
	defaultRatio int
}

func NewSupervisionRatio(defaultRatio int) Constraint {
	if defaultRatio <= 0 {
		defaultRatio = 2
	}
	return supervisionRatio{base: base{name: NameSupervisionRatio, category: "acgme", priority: PriorityCritical, defaultWeight: 1, hard: true, dependencies: []string{NameAvailability}}, defaultRatio: defaultRatio}
}

func (s supervisionRatio) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	type counts struct {
		junior, faculty int
	}
	perBlock := map[string]*counts{}
	for _, a := range assignments {
		p, ok := ctx.Person(a.PersonID)
		if !ok {
			continue
		}
		c, ok := perBlock[a.BlockID]
		if !ok {
			c = &counts{}
			perBlock[a.BlockID] = c
		}
		if p.Kind == schedcontext.KindResident && (p.PGYLevel == 1 || p.PGYLevel == 2) && a.Role == schedcontext.RolePrimary {
			c.junior++
		}
		if p.Kind == schedcontext.KindFaculty && (a.Role == schedcontext.RoleSupervising || a.Role == schedcontext.RolePrimary) {
			c.faculty++
		}
	}
	for blockID, c := range perBlock {
		if c.junior == 0 {
			continue
		}
		ratio := s.defaultRatio
		if t, ok := templateForBlock(assignments, ctx, blockID); ok && t.SupervisionRatio > 0 {
			ratio = t.SupervisionRatio
		}
		required := ceilDiv(c.junior, ratio)
		if c.faculty < required {
			violations = append(violations, Violation{
				Severity:    SeverityCritical,
				Message:     fmt.Sprintf("block %s has %d PGY1/2 residents but only %d supervising faculty (needs %d)", blockID, c.junior, c.faculty, required),
				AffectedIDs: []string{blockID},
				Details:     map[string]any{"ratio": ratio, "junior": c.junior, "faculty": c.faculty},
			})
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

func templateForBlock(assignments []schedcontext.Assignment, ctx *schedcontext.Context, blockID string) (schedcontext.RotationTemplate, bool) {
	for _, a := range assignments {
		if a.BlockID == blockID {
			if t, ok := ctx.Template(a.TemplateID); ok {
				return t, true
			}
		}
	}
	return schedcontext.RotationTemplate{}, false
}

// ---- ClinicCapacity ----

type clinicCapacity struct{ base }

func NewClinicCapacity() Constraint {
	return clinicCapacity{base{name: NameClinicCapacity, category: "capacity", priority: PriorityHigh, defaultWeight: 1, hard: true, dependencies: []string{NameAvailability}}}
}

func (clinicCapacity) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	weeklyClinicCount := map[string]map[time.Time]int{}
	for _, a := range assignments {
		if a.Role != schedcontext.RolePrimary || a.ActivityCode != schedcontext.CodeFMClinic && a.ActivityCode != schedcontext.CodeSMClinic {
			continue
		}
		d, ok := blockDate(ctx, a.BlockID)
		if !ok {
			continue
		}
		week := isoWeekStart(d)
		if weeklyClinicCount[a.PersonID] == nil {
			weeklyClinicCount[a.PersonID] = map[time.Time]int{}
		}
		weeklyClinicCount[a.PersonID][week]++
	}
	for personID, weeks := range weeklyClinicCount {
		p, ok := ctx.Person(personID)
		if !ok || !p.IsResident() {
			continue
		}
		for week, count := range weeks {
			if p.WeeklyClinicCapMax > 0 && count > p.WeeklyClinicCapMax {
				violations = append(violations, Violation{
					Severity:    SeverityError,
					Message:     fmt.Sprintf("resident %s has %d clinic half-days in week of %s (max %d)", personID, count, week.Format("2006-01-02"), p.WeeklyClinicCapMax),
					AffectedIDs: []string{personID},
				})
			}
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

func isoWeekStart(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

// ---- TemplateMaxResidents ----

type templateMaxResidents struct{ base }

func NewTemplateMaxResidents() Constraint {
	return templateMaxResidents{base{name: NameTemplateMaxResidents, category: "capacity", priority: PriorityHigh, defaultWeight: 1, hard: true}}
}

func (templateMaxResidents) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	counts := map[string]int{} // blockID|templateID -> count
	for _, a := range assignments {
		p, ok := ctx.Person(a.PersonID)
		if !ok || !p.IsResident() || a.Role != schedcontext.RolePrimary {
			continue
		}
		key := a.BlockID + "|" + a.TemplateID
		counts[key]++
	}
	for key, count := range counts {
		blockID, templateID := splitKey(key)
		t, ok := ctx.Template(templateID)
		if !ok || t.MaxResidents <= 0 {
			continue
		}
		if count > t.MaxResidents {
			violations = append(violations, Violation{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("template %s on block %s has %d residents (max %d)", templateID, blockID, count, t.MaxResidents),
				AffectedIDs: []string{blockID, templateID},
			})
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

func splitKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// ---- UniquePrimaryPerBlock ----

type uniquePrimaryPerBlock struct{ base }

func NewUniquePrimaryPerBlock() Constraint {
	return uniquePrimaryPerBlock{base{name: NameUniquePrimaryPerBlock, category: "capacity", priority: PriorityCritical, defaultWeight: 1, hard: true}}
}

func (uniquePrimaryPerBlock) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	seen := map[string]bool{} // personID|blockID
	for _, a := range assignments {
		if a.Role != schedcontext.RolePrimary {
			continue
		}
		key := a.PersonID + "|" + a.BlockID
		if seen[key] {
			violations = append(violations, Violation{
				Severity:    SeverityCritical,
				Message:     fmt.Sprintf("person %s has more than one primary assignment on block %s", a.PersonID, a.BlockID),
				AffectedIDs: []string{a.PersonID, a.BlockID},
			})
		}
		seen[key] = true
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// ---- FMITStaffingFloor ----

type fmitStaffingFloor struct{ base }

func NewFMITStaffingFloor() Constraint {
	return fmitStaffingFloor{base{name: NameFMITStaffingFloor, category: "fixtures", priority: PriorityCritical, defaultWeight: 1, hard: true}}
}

func (fmitStaffingFloor) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	facultyCount := ctx.FacultyCount() // §9 open question: non-blocking-absence faculty still count
	fmitAssignments := filterFMIT(assignments, ctx)
	if facultyCount < 5 && len(fmitAssignments) > 0 {
		violations = append(violations, Violation{
			Severity:    SeverityCritical,
			Message:     fmt.Sprintf("FMIT requires at least 5 faculty, only %d available", facultyCount),
			AffectedIDs: []string{},
		})
	}
	maxConcurrent := int(math.Floor(0.2 * float64(facultyCount)))
	byWeek := map[time.Time]map[string]bool{}
	for _, a := range fmitAssignments {
		d, ok := blockDate(ctx, a.BlockID)
		if !ok {
			continue
		}
		week := isoWeekStart(d)
		if byWeek[week] == nil {
			byWeek[week] = map[string]bool{}
		}
		byWeek[week][a.PersonID] = true
	}
	for week, residents := range byWeek {
		if maxConcurrent > 0 && len(residents) > maxConcurrent {
			violations = append(violations, Violation{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("%d residents on FMIT concurrently in week of %s (max %d)", len(residents), week.Format("2006-01-02"), maxConcurrent),
				AffectedIDs: []string{},
			})
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

func filterFMIT(assignments []schedcontext.Assignment, ctx *schedcontext.Context) []schedcontext.Assignment {
	var out []schedcontext.Assignment
	for _, a := range assignments {
		if a.Role != schedcontext.RolePrimary {
			continue
		}
		if t, ok := ctx.Template(a.TemplateID); ok && t.IsFMIT() {
			out = append(out, a)
		}
	}
	return out
}

// ---- PostFMITSundayBlocking ----

type postFMITSundayBlocking struct{ base }

func NewPostFMITSundayBlocking() Constraint {
	return postFMITSundayBlocking{base{name: NamePostFMITSundayBlocking, category: "fixtures", priority: PriorityHigh, defaultWeight: 1, hard: true, dependencies: []string{NameFMITStaffingFloor}}}
}

func (postFMITSundayBlocking) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	fmitAssignments := filterFMIT(assignments, ctx)
	lastFMITSaturday := map[string]time.Time{}
	for _, a := range fmitAssignments {
		d, ok := blockDate(ctx, a.BlockID)
		if !ok || d.Weekday() != time.Saturday {
			continue
		}
		if cur, ok := lastFMITSaturday[a.PersonID]; !ok || d.After(cur) {
			lastFMITSaturday[a.PersonID] = d
		}
	}
	byPersonBlockDay := map[string]map[time.Time]bool{}
	for _, a := range assignments {
		if a.Role != schedcontext.RolePrimary {
			continue
		}
		d, ok := blockDate(ctx, a.BlockID)
		if !ok {
			continue
		}
		if byPersonBlockDay[a.PersonID] == nil {
			byPersonBlockDay[a.PersonID] = map[time.Time]bool{}
		}
		byPersonBlockDay[a.PersonID][d] = true
	}
	for personID, saturday := range lastFMITSaturday {
		sunday := saturday.AddDate(0, 0, 1)
		if byPersonBlockDay[personID][sunday] {
			violations = append(violations, Violation{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("resident %s assigned on the Sunday immediately following an FMIT week (%s)", personID, sunday.Format("2006-01-02")),
				AffectedIDs: []string{personID},
			})
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// ---- NightFloatHeadcount ----

type nightFloatHeadcount struct{ base }

func NewNightFloatHeadcount() Constraint {
	return nightFloatHeadcount{base{name: NameNightFloatHeadcount, category: "fixtures", priority: PriorityHigh, defaultWeight: 1, hard: true}}
}

func (nightFloatHeadcount) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	perBlock := map[string]int{}
	for _, a := range assignments {
		if a.Role == schedcontext.RolePrimary && a.ActivityCode == schedcontext.CodeNF {
			perBlock[a.BlockID]++
		}
	}
	for blockID, count := range perBlock {
		if count != 1 {
			violations = append(violations, Violation{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("block %s has %d night-float residents (expected exactly 1)", blockID, count),
				AffectedIDs: []string{blockID},
			})
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// ---- FMITResidentHeadcount ----

type fmitResidentHeadcount struct{ base }

func NewFMITResidentHeadcount() Constraint {
	return fmitResidentHeadcount{base{name: NameFMITResidentHeadcount, category: "fixtures", priority: PriorityHigh, defaultWeight: 1, hard: true, dependencies: []string{NameFMITStaffingFloor}}}
}

func (fmitResidentHeadcount) Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result {
	var violations []Violation
	perBlockPGY := map[string]map[int]int{}
	for _, a := range filterFMIT(assignments, ctx) {
		p, ok := ctx.Person(a.PersonID)
		if !ok || !p.IsResident() {
			continue
		}
		if perBlockPGY[a.BlockID] == nil {
			perBlockPGY[a.BlockID] = map[int]int{}
		}
		perBlockPGY[a.BlockID][p.PGYLevel]++
	}
	for blockID, byPGY := range perBlockPGY {
		for pgy, count := range byPGY {
			if count != 1 {
				violations = append(violations, Violation{
					Severity:    SeverityWarning,
					Message:     fmt.Sprintf("block %s has %d PGY-%d residents on FMIT (expected exactly 1)", blockID, count, pgy),
					AffectedIDs: []string{blockID},
				})
			}
		}
	}
	return Result{Satisfied: len(violations) == 0, Violations: violations}
}

// BuiltinHard returns every hard constraint at its default configuration, in
// the order documented by §4.2.
func BuiltinHard(defaultSupervisionRatio int) []Constraint {
	return []Constraint{
		NewAvailability(),
		NewEightyHourRule(),
		NewOneInSevenRule(),
		NewSupervisionRatio(defaultSupervisionRatio),
		NewClinicCapacity(),
		NewTemplateMaxResidents(),
		NewUniquePrimaryPerBlock(),
		NewFMITStaffingFloor(),
		NewPostFMITSundayBlocking(),
		NewNightFloatHeadcount(),
		NewFMITResidentHeadcount(),
	}
}
