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

// Package test supplies fixture builders for the engine's value objects,
// generalizing the teacher's pkg/test object builders (Pod, NodeClaim, ...)
// to residents, faculty, blocks, and rotation templates. Unlike the teacher's
// package, this one never stands up an API server: the engine has none.
package test

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/residency-sched/engine/pkg/schedcontext"
)

var idSeq uint64

func nextID(prefix string) string {
	n := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("%s-%d", prefix, n)
}

// PersonOptions configures Person.
type PersonOptions struct {
	ID                 string
	Name               string
	Kind               schedcontext.PersonKind
	PGYLevel           int
	FacultyRole        schedcontext.FacultyRole
	PerformsProcedures bool
	IsSportsMedicine   bool
	WeeklyClinicCapMin int
	WeeklyClinicCapMax int
}

// Resident builds a resident Person with sensible defaults, overridable via opts.
func Resident(opts ...PersonOptions) schedcontext.Person {
	o := firstOr(opts, PersonOptions{PGYLevel: 2, WeeklyClinicCapMin: 2, WeeklyClinicCapMax: 6})
	return schedcontext.Person{
		ID:                 orDefault(o.ID, nextID("resident")),
		Name:               orDefault(o.Name, "Resident "+o.ID),
		Kind:               schedcontext.KindResident,
		PGYLevel:           o.PGYLevel,
		PerformsProcedures: o.PerformsProcedures,
		IsSportsMedicine:   o.IsSportsMedicine,
		WeeklyClinicCapMin: o.WeeklyClinicCapMin,
		WeeklyClinicCapMax: o.WeeklyClinicCapMax,
	}
}

// Faculty builds a faculty Person with sensible defaults.
func Faculty(opts ...PersonOptions) schedcontext.Person {
	o := firstOr(opts, PersonOptions{FacultyRole: schedcontext.FacultyRoleCore})
	return schedcontext.Person{
		ID:          orDefault(o.ID, nextID("faculty")),
		Name:        orDefault(o.Name, "Faculty "+o.ID),
		Kind:        schedcontext.KindFaculty,
		FacultyRole: o.FacultyRole,
	}
}

// BlockOptions configures Block.
type BlockOptions struct {
	ID        string
	Date      time.Time
	TimeOfDay schedcontext.TimeOfDay
	IsHoliday bool
}

// Block builds a Block, defaulting to an AM slot today.
func Block(opts ...BlockOptions) schedcontext.Block {
	o := firstOr(opts, BlockOptions{Date: time.Now(), TimeOfDay: schedcontext.AM})
	return schedcontext.Block{
		ID:        orDefault(o.ID, nextID("block")),
		Date:      o.Date,
		TimeOfDay: o.TimeOfDay,
		IsHoliday: o.IsHoliday,
	}
}

// WeekOfBlocks builds one AM+PM Block pair per day for n consecutive days
// starting at start, the common shape for S1-style small-cohort fixtures.
func WeekOfBlocks(start time.Time, days int) []schedcontext.Block {
	var out []schedcontext.Block
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		out = append(out,
			Block(BlockOptions{Date: d, TimeOfDay: schedcontext.AM}),
			Block(BlockOptions{Date: d, TimeOfDay: schedcontext.PM}),
		)
	}
	return out
}

// RotationTemplateOptions configures RotationTemplate.
type RotationTemplateOptions struct {
	ID               string
	Name             string
	ActivityType     schedcontext.ActivityType
	ActivityCode     schedcontext.ActivityCode
	MaxResidents     int
	MinPGYLevel      int
	SupervisionRatio int
}

// RotationTemplate builds a RotationTemplate, defaulting to an FM clinic slot.
func RotationTemplate(opts ...RotationTemplateOptions) schedcontext.RotationTemplate {
	o := firstOr(opts, RotationTemplateOptions{
		ActivityType: schedcontext.ActivityClinic,
		ActivityCode: schedcontext.CodeFMClinic,
		MaxResidents: 4,
	})
	return schedcontext.RotationTemplate{
		ID:               orDefault(o.ID, nextID("template")),
		Name:             orDefault(o.Name, string(o.ActivityCode)),
		ActivityType:     o.ActivityType,
		ActivityCode:     o.ActivityCode,
		MaxResidents:     o.MaxResidents,
		MinPGYLevel:      o.MinPGYLevel,
		SupervisionRatio: o.SupervisionRatio,
	}
}

// AbsenceOptions configures Absence.
type AbsenceOptions struct {
	PersonID   string
	Start      time.Time
	End        time.Time
	Type       schedcontext.AbsenceType
	IsBlocking bool
}

// Absence builds an Absence spanning [Start, End] inclusive.
func Absence(opts AbsenceOptions) schedcontext.Absence {
	return schedcontext.Absence{
		PersonID:   opts.PersonID,
		Start:      opts.Start,
		End:        opts.End,
		Type:       orDefault(opts.Type, schedcontext.AbsenceOther),
		IsBlocking: opts.IsBlocking,
	}
}

// AssignmentOptions configures Assignment.
type AssignmentOptions struct {
	ID           string
	BlockID      string
	PersonID     string
	TemplateID   string
	Role         schedcontext.AssignmentRole
	ActivityCode schedcontext.ActivityCode
}

// Assignment builds an Assignment, defaulting Role to primary.
func Assignment(opts AssignmentOptions) schedcontext.Assignment {
	return schedcontext.Assignment{
		ID:           orDefault(opts.ID, uuid.NewString()),
		BlockID:      opts.BlockID,
		PersonID:     opts.PersonID,
		TemplateID:   opts.TemplateID,
		Role:         orDefault(opts.Role, schedcontext.RolePrimary),
		ActivityCode: opts.ActivityCode,
		UpdatedAt:    time.Now(),
	}
}

func firstOr[T any](opts []T, def T) T {
	if len(opts) > 0 {
		return opts[0]
	}
	return def
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
