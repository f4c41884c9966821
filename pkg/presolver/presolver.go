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

// Package presolver implements the Pre-Solver Validator (C3): cheap
// feasibility/saturation checks that reject obviously infeasible inputs
// before the candidate generator is ever invoked.
package presolver

import (
	"fmt"
	"strings"

	"github.com/residency-sched/engine/pkg/schedcontext"
)

// ComplexityBucket buckets the estimated search-space size (§4.3.6).
type ComplexityBucket string

const (
	ComplexityLow       ComplexityBucket = "low"
	ComplexityMedium    ComplexityBucket = "medium"
	ComplexityHigh      ComplexityBucket = "high"
	ComplexityVeryHigh  ComplexityBucket = "very_high"
	ComplexityExtreme   ComplexityBucket = "extreme"
)

// Statistics carries the raw figures the checks computed, useful for callers
// that want more detail than issues/warnings/recommendations strings.
type Statistics struct {
	TotalResidents        int
	TotalFaculty          int
	TotalBlocks           int
	TotalTemplates        int
	RequiredCoverageSlots int
	AvailablePersonBlocks int
	PreAssignedSlots      int
}

// Result is the PreSolverResult described by §4.3.
type Result struct {
	Feasible           bool
	Issues             []string
	Warnings           []string
	Recommendations    []string
	ComplexityEstimate ComplexityBucket
	Statistics         Statistics
}

// defaultConstraintFactor approximates "C_constraints" in §4.3.6: a flat multiplier
// standing in for the registry's active constraint count (an orchestrator
// that's resolved its registry can pass the real count via Options).
const defaultConstraintFactor = 20

// Options lets a caller override the constraint-count factor used by the
// complexity estimate once the registry has resolved its active set.
type Options struct {
	ConstraintFactor int
}

// Run executes every check from §4.3 against ctx.
func Run(ctx *schedcontext.Context, opts Options) Result {
	if opts.ConstraintFactor <= 0 {
		opts.ConstraintFactor = defaultConstraintFactor
	}
	res := Result{Feasible: true}

	residents := ctx.Residents()
	blocks := ctx.Blocks()
	templates := ctx.Templates()

	stats := Statistics{
		TotalResidents: len(residents),
		TotalFaculty:   ctx.FacultyCount(),
		TotalBlocks:    len(blocks),
		TotalTemplates: len(templates),
	}

	// 1. Hour balance: sum minimum required hours <= sum available slot-hours.
	const hoursPerBlock = 4.0
	var requiredHours, availableHours float64
	for _, r := range residents {
		requiredHours += float64(r.WeeklyClinicCapMin) * hoursPerBlock * float64(weeksSpan(blocks))
	}
	for _, r := range residents {
		for _, b := range blocks {
			if ctx.Availability(r.ID, b.ID).Available {
				availableHours += hoursPerBlock
			}
		}
	}
	if requiredHours > availableHours {
		res.Feasible = false
		res.Issues = append(res.Issues, fmt.Sprintf("required minimum hours (%.0f) exceed available slot-hours (%.0f)", requiredHours, availableHours))
	}

	// 2. Coverage ratio: available (person,block) pairs >= 1.2x required coverage slots.
	requiredCoverageSlots := len(blocks) // at least one primary resident per block, as a floor
	availablePersonBlocks := 0
	for _, r := range residents {
		for _, b := range blocks {
			if ctx.Availability(r.ID, b.ID).Available {
				availablePersonBlocks++
			}
		}
	}
	stats.RequiredCoverageSlots = requiredCoverageSlots
	stats.AvailablePersonBlocks = availablePersonBlocks
	if requiredCoverageSlots > 0 {
		ratio := float64(availablePersonBlocks) / float64(requiredCoverageSlots)
		if ratio < 1.0 {
			res.Feasible = false
			res.Issues = append(res.Issues, fmt.Sprintf("coverage ratio %.2f is below 1.0 (need >= 1.2x required slots)", ratio))
		} else if ratio < 1.2 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("coverage ratio %.2f is below the recommended 1.2x margin", ratio))
		}
	}

	// 3. Per-person availability floor.
	for _, r := range residents {
		if len(blocks) == 0 {
			continue
		}
		available := 0
		for _, b := range blocks {
			if ctx.Availability(r.ID, b.ID).Available {
				available++
			}
		}
		pct := float64(available) / float64(len(blocks))
		if pct == 0 {
			res.Feasible = false
			res.Issues = append(res.Issues, fmt.Sprintf("resident %s has 0%% availability", r.ID))
		} else if pct < 0.5 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("resident %s has only %.0f%% availability", r.ID, pct*100))
		}
	}

	// 4. Per-block availability floor.
	for _, b := range blocks {
		eligible := 0
		for _, r := range residents {
			if ctx.Availability(r.ID, b.ID).Available {
				eligible++
			}
		}
		if eligible == 0 {
			res.Feasible = false
			res.Issues = append(res.Issues, fmt.Sprintf("block %s has 0 eligible residents", b.ID))
		} else if eligible < 2 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("block %s has only %d eligible resident(s)", b.ID, eligible))
		}
	}

	// 5. Pre-assignment saturation.
	totalSlots := len(residents) * len(blocks)
	preAssigned := len(ctx.ExistingAssignments())
	stats.PreAssignedSlots = preAssigned
	if totalSlots > 0 {
		pct := float64(preAssigned) / float64(totalSlots)
		if pct > 0.7 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%.0f%% of slots are already fixed by pre-loaded assignments", pct*100))
		}
	}
	perPersonPreAssigned := map[string]int{}
	for _, a := range ctx.ExistingAssignments() {
		perPersonPreAssigned[a.PersonID]++
	}
	for _, r := range residents {
		if len(blocks) == 0 {
			continue
		}
		pct := float64(perPersonPreAssigned[r.ID]) / float64(len(blocks))
		if pct > 0.8 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("resident %s has %.0f%% of blocks already pre-assigned", r.ID, pct*100))
		}
	}

	// 6. Complexity estimate.
	raw := float64(len(residents)) * float64(len(blocks)) * float64(len(templates)) * float64(opts.ConstraintFactor)
	switch {
	case raw < 1e4:
		res.ComplexityEstimate = ComplexityLow
	case raw < 1e5:
		res.ComplexityEstimate = ComplexityMedium
	case raw < 1e6:
		res.ComplexityEstimate = ComplexityHigh
	case raw < 1e7:
		res.ComplexityEstimate = ComplexityVeryHigh
	default:
		res.ComplexityEstimate = ComplexityExtreme
		res.Warnings = append(res.Warnings, "search space is extreme; expect long solve times")
		res.Recommendations = append(res.Recommendations, "consider narrowing the date range or splitting the run by rotation template")
	}

	res.Statistics = stats
	if !res.Feasible {
		res.Recommendations = append(res.Recommendations, "resolve the issues above; availability-floor issues can be downgraded to warnings with pkg/presolver.Relax")
	}
	return res
}

// weeksSpan estimates the number of calendar weeks covered by blocks, used
// to scale a resident's weekly minimum into a total for the whole run.
func weeksSpan(blocks []schedcontext.Block) int {
	if len(blocks) == 0 {
		return 0
	}
	first, last := blocks[0].Date, blocks[0].Date
	for _, b := range blocks {
		if b.Date.Before(first) {
			first = b.Date
		}
		if b.Date.After(last) {
			last = b.Date
		}
	}
	days := int(last.Sub(first).Hours()/24) + 1
	weeks := days / 7
	if days%7 != 0 {
		weeks++
	}
	if weeks == 0 {
		weeks = 1
	}
	return weeks
}

// Relax implements §7's "pre-solver retries with warnings-only" local
// recovery: it re-classifies a subset of issue kinds as warnings so the
// orchestrator can proceed after an operator acknowledges the relaxation.
// Only the per-person/per-block availability-floor and saturation issues are
// eligible; hour-balance and zero-coverage-ratio issues are never relaxed.
func Relax(res Result) Result {
	relaxed := res
	relaxed.Issues = nil
	relaxed.Warnings = append([]string{}, res.Warnings...)
	for _, issue := range res.Issues {
		if strings.HasPrefix(issue, "required minimum hours") || strings.HasPrefix(issue, "coverage ratio") {
			relaxed.Issues = append(relaxed.Issues, issue)
			continue
		}
		relaxed.Warnings = append(relaxed.Warnings, issue)
	}
	relaxed.Feasible = len(relaxed.Issues) == 0
	return relaxed
}
