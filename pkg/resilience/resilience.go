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

// Package resilience implements the Resilience Harness (C8): it generates
// adversarial perturbations of a Context and re-runs the pipeline against
// each, reporting pass rate, worst scenario, and degradation.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/avast/retry-go"

	"github.com/residency-sched/engine/pkg/constraints"
	"github.com/residency-sched/engine/pkg/evaluator"
	"github.com/residency-sched/engine/pkg/generator"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

// ScenarioKind enumerates the adversarial perturbations of §4.8.
type ScenarioKind string

const (
	Baseline         ScenarioKind = "baseline"
	RemoveFaculty    ScenarioKind = "remove_faculty"
	RemoveResident   ScenarioKind = "remove_resident"
	UnexpectedLeave  ScenarioKind = "unexpected_leave"
	HolidayShock     ScenarioKind = "holiday_shock"
	MultipleAbsence  ScenarioKind = "multiple_absence"
	N2Scenario       ScenarioKind = "n2_scenario"
)

// FailureMode classifies why an N-2 pair scenario failed.
type FailureMode string

const (
	FailureSkillGap  FailureMode = "skill_gap"
	FailureCapacity  FailureMode = "capacity"
	FailureCascade   FailureMode = "cascade"
)

// Scenario describes one perturbation to apply before re-running the pipeline.
type Scenario struct {
	Kind          ScenarioKind
	TargetIDs     []string // faculty/resident IDs to remove, or leave subject
	LeaveStart    time.Time
	LeaveDays     int
	HolidayReductionPct float64
	HolidayDays   int
}

// Name renders a human-readable scenario label, e.g. "remove_faculty[f-1]".
func (s Scenario) Name() string {
	if len(s.TargetIDs) == 0 {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s%v", s.Kind, s.TargetIDs)
}

// ScenarioResult is one scenario's outcome.
type ScenarioResult struct {
	Scenario       Scenario
	Feasible       bool
	Score          float64
	BaselineScore  float64
	Degradation    float64
	Iterations     int
	FailureMode    FailureMode
}

// HarnessResult aggregates every scenario run.
type HarnessResult struct {
	Results           []ScenarioResult
	PassRate          float64
	WorstScenario     string
	MeanDegradation   float64
	CascadeRate       float64
}

// Harness owns the generator/registry used to re-run the pipeline against
// perturbed contexts.
type Harness struct {
	Gen           generator.Generator
	Registry      *constraints.Registry
	MaxIterations int
	PassThreshold float64
}

func New(gen generator.Generator, reg *constraints.Registry) *Harness {
	return &Harness{Gen: gen, Registry: reg, MaxIterations: 50, PassThreshold: 0.9}
}

// applyScenario returns a new Context with the scenario's synthetic absences
// injected, simulating a transactional savepoint + rollback: the caller's
// original sc is never mutated, so "rolling back" is simply discarding the
// perturbed copy.
func applyScenario(sc *schedcontext.Context, s Scenario) *schedcontext.Context {
	switch s.Kind {
	case Baseline:
		return sc
	case RemoveFaculty, RemoveResident, N2Scenario:
		people := filterOut(sc.People(), s.TargetIDs)
		return schedcontext.New(people, sc.Blocks(), sc.Templates(), syntheticAbsences(s, sc), sc.ExistingAssignments())
	case UnexpectedLeave:
		absences := syntheticAbsences(s, sc)
		return schedcontext.New(sc.People(), sc.Blocks(), sc.Templates(), absences, sc.ExistingAssignments())
	case HolidayShock:
		blocks := shockBlocks(sc.Blocks(), s)
		return schedcontext.New(sc.People(), blocks, sc.Templates(), nil, sc.ExistingAssignments())
	case MultipleAbsence:
		return schedcontext.New(sc.People(), sc.Blocks(), sc.Templates(), syntheticAbsences(s, sc), sc.ExistingAssignments())
	default:
		return sc
	}
}

func filterOut(people []schedcontext.Person, excludeIDs []string) []schedcontext.Person {
	exclude := map[string]bool{}
	for _, id := range excludeIDs {
		exclude[id] = true
	}
	var out []schedcontext.Person
	for _, p := range people {
		if !exclude[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func syntheticAbsences(s Scenario, sc *schedcontext.Context) []schedcontext.Absence {
	var out []schedcontext.Absence
	start := s.LeaveStart
	if start.IsZero() && len(sc.Blocks()) > 0 {
		start = sc.Blocks()[0].Date
	}
	days := s.LeaveDays
	if days <= 0 {
		days = 1
	}
	for _, id := range s.TargetIDs {
		out = append(out, schedcontext.Absence{
			PersonID:   id,
			Start:      start,
			End:        start.AddDate(0, 0, days-1),
			Type:       schedcontext.AbsenceOther,
			IsBlocking: true,
		})
	}
	return out
}

func shockBlocks(blocks []schedcontext.Block, s Scenario) []schedcontext.Block {
	out := make([]schedcontext.Block, len(blocks))
	copy(out, blocks)
	days := s.HolidayDays
	if days <= 0 {
		days = len(out)
	}
	affected := 0
	for i := range out {
		if affected >= days {
			break
		}
		if !out[i].IsHoliday {
			out[i].IsHoliday = true
			affected++
		}
	}
	return out
}

// Run executes every scenario against sc, scoring each with params and the
// harness's registry, and aggregates the result.
func (h *Harness) Run(ctx context.Context, sc *schedcontext.Context, params generator.Params, scenarios []Scenario) (HarnessResult, error) {
	baseline, err := h.solve(ctx, sc, params)
	if err != nil {
		return HarnessResult{}, err
	}

	var results []ScenarioResult
	var passed int
	var totalDegradation float64
	var cascades int

	for _, s := range scenarios {
		perturbed := applyScenario(sc, s)
		best := evaluator.EvaluationResult{}
		iterations := 0
		err := retry.Do(func() error {
			iterations++
			cand, genErr := h.Gen.Generate(ctx, perturbed, params)
			if genErr != nil {
				return genErr
			}
			res, evalErr := evaluator.Evaluate(ctx, h.Registry, cand.Assignments, perturbed)
			if evalErr != nil {
				return evalErr
			}
			if res.Score > best.Score {
				best = res
			}
			if res.Valid && res.Score >= h.PassThreshold*baseline.Score {
				return nil
			}
			return fmt.Errorf("below pass threshold: %.3f < %.3f", res.Score, h.PassThreshold*baseline.Score)
		}, retry.Attempts(uint(h.MaxIterations)), retry.LastErrorOnly(true))
		h.Gen.ClearCache()

		feasible := err == nil
		degradation := baseline.Score - best.Score
		if degradation < 0 {
			degradation = 0
		}
		totalDegradation += degradation

		mode := FailureMode("")
		if !feasible {
			mode = classifyFailure(s, degradation)
			if mode == FailureCascade {
				cascades++
			}
		}

		results = append(results, ScenarioResult{
			Scenario:      s,
			Feasible:      feasible,
			Score:         best.Score,
			BaselineScore: baseline.Score,
			Degradation:   degradation,
			Iterations:    iterations,
			FailureMode:   mode,
		})
		if feasible {
			passed++
		}
	}

	out := HarnessResult{Results: results}
	if len(results) > 0 {
		out.PassRate = float64(passed) / float64(len(results))
		out.MeanDegradation = totalDegradation / float64(len(results))
		out.CascadeRate = float64(cascades) / float64(len(results))
	}
	out.WorstScenario = worstScenarioName(results)
	return out, nil
}

func (h *Harness) solve(ctx context.Context, sc *schedcontext.Context, params generator.Params) (evaluator.EvaluationResult, error) {
	cand, err := h.Gen.Generate(ctx, sc, params)
	if err != nil {
		return evaluator.EvaluationResult{}, err
	}
	return evaluator.Evaluate(ctx, h.Registry, cand.Assignments, sc)
}

func worstScenarioName(results []ScenarioResult) string {
	var worst string
	worstDeg := -1.0
	for _, r := range results {
		if r.Degradation > worstDeg {
			worstDeg = r.Degradation
			worst = r.Scenario.Name()
		}
	}
	return worst
}

func classifyFailure(s Scenario, degradation float64) FailureMode {
	switch {
	case degradation > 0.5:
		return FailureCascade
	case s.Kind == RemoveFaculty:
		return FailureSkillGap
	default:
		return FailureCapacity
	}
}

// N2Pairs enumerates every unordered pair of faculty losses for the N-2
// variant (§4.8).
func N2Pairs(faculty []schedcontext.Person) []Scenario {
	var out []Scenario
	for i := 0; i < len(faculty); i++ {
		for j := i + 1; j < len(faculty); j++ {
			out = append(out, Scenario{Kind: N2Scenario, TargetIDs: []string{faculty[i].ID, faculty[j].ID}})
		}
	}
	return out
}

// SyntheticFixtureName produces a readable synthetic person name for harness
// scratch fixtures that need more residents/faculty than a seed dataset
// provides, without hand-authoring names. No code in this module calls it.
func SyntheticFixtureName() string {
	return randomdata.FullName(randomdata.RandomGender)
}
