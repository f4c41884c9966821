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

// Package constraints implements the Constraint Registry (C2): a named,
// ordered collection of hard and soft constraints with enable/disable,
// weight overrides, presets, and dependency resolution.
package constraints

import "github.com/residency-sched/engine/pkg/schedcontext"

// Priority classifies how urgently a violated constraint should be surfaced.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Severity classifies an individual Violation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Violation describes one instance of a constraint not holding.
type Violation struct {
	Severity    Severity
	Message     string
	AffectedIDs []string
	Details     map[string]any
}

// Result is what a Constraint's Validate returns.
type Result struct {
	Satisfied  bool
	Violations []Violation
}

// ViolationCount returns the number of violations in r. Constraints that
// implement CustomCoster supply their own cost instead.
func (r Result) ViolationCount() int { return len(r.Violations) }

// Constraint is the capability set every hard or soft rule implements. Every
// Validate call is pure: no I/O, deterministic given (assignments, context),
// safe to call concurrently from multiple goroutines over the same Context.
type Constraint interface {
	Name() string
	Category() string
	Priority() Priority
	DefaultWeight() float64
	Dependencies() []string
	ConflictsWith() []string
	Hard() bool
	Validate(assignments []schedcontext.Assignment, ctx *schedcontext.Context) Result
}

// CustomCoster is implemented by soft constraints whose penalty isn't simply
// "weight * violation count" (e.g. FMITContinuityTurf's load-shedding advisory).
type CustomCoster interface {
	CustomCost(result Result) float64
}
