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

// Package evaluator implements the Constraint Evaluator (C5): it runs every
// active constraint from a Registry concurrently over a candidate's
// assignments and folds the results into a single EvaluationResult.
package evaluator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/residency-sched/engine/pkg/constraints"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

// FitnessVector is §4.5's named six-dimensional fitness tuple, the same
// shape PSO/GA search (generator.WeightVector) consumes as its objective
// space. Each dimension is normalized to [0,1] from the soft/hard
// constraints that bear on it; a dimension with no active constraint in its
// bucket is left at its neutral value of 1 (no penalty observed).
type FitnessVector struct {
	Coverage        float64
	Fairness        float64
	Preferences     float64
	ACGMECompliance float64
	Continuity      float64
	Learning        float64
}

// EvaluationResult is §5's combined verdict over one candidate.
type EvaluationResult struct {
	Valid                 bool
	Score                 float64
	FitnessVector         FitnessVector
	Violations            []constraints.Violation
	PenaltiesByConstraint map[string]float64
}

// perConstraint is the intermediate result one goroutine produces; folding
// happens back on the calling goroutine once every constraint has run, so no
// shared map is ever written concurrently.
type perConstraint struct {
	name     string
	category string
	hard     bool
	weight   float64
	result   constraints.Result
	penalty  float64
}

// Evaluate runs every active constraint in r concurrently (bounded by
// golang.org/x/sync/errgroup's implicit goroutine-per-task fan-out; callers
// wanting a cap should trim the registry's active set instead) and combines
// the results. A violated hard constraint makes the candidate invalid
// regardless of soft-constraint scoring.
func Evaluate(ctx context.Context, reg *constraints.Registry, assignments []schedcontext.Assignment, sc *schedcontext.Context) (EvaluationResult, error) {
	active := reg.Active()
	results := make([]perConstraint, len(active))

	g, _ := errgroup.WithContext(ctx)
	for i, c := range active {
		i, c := i, c
		g.Go(func() error {
			res := c.Validate(assignments, sc)
			weight := reg.Weight(c.Name())
			penalty := 0.0
			if !c.Hard() {
				if coster, ok := c.(constraints.CustomCoster); ok {
					penalty = weight * coster.CustomCost(res)
				} else {
					penalty = weight * float64(res.ViolationCount())
				}
			}
			results[i] = perConstraint{name: c.Name(), category: c.Category(), hard: c.Hard(), weight: weight, result: res, penalty: penalty}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return EvaluationResult{}, err
	}

	out := EvaluationResult{
		Valid:                 true,
		PenaltiesByConstraint: map[string]float64{},
	}
	var totalPenalty float64
	acgme := bucket{}
	coverage := bucket{}
	fairness := bucket{}
	preferences := bucket{}
	continuity := bucket{}
	for _, pc := range results {
		if pc.hard && !pc.result.Satisfied {
			out.Valid = false
		}
		out.Violations = append(out.Violations, pc.result.Violations...)
		if pc.hard {
			switch pc.category {
			case "acgme":
				acgme.observe(pc.result.Satisfied)
			case "capacity":
				coverage.observe(pc.result.Satisfied)
			}
			continue
		}
		out.PenaltiesByConstraint[pc.name] = pc.penalty
		normalized := 1.0 / (1.0 + pc.penalty)
		totalPenalty += pc.penalty
		switch {
		case pc.name == constraints.NameContinuity:
			continuity.add(normalized)
		case pc.category == "preference":
			preferences.add(normalized)
		case pc.category == "fairness":
			fairness.add(normalized)
		}
	}
	out.FitnessVector = FitnessVector{
		Coverage:        coverage.average(),
		Fairness:        fairness.average(),
		Preferences:     preferences.average(),
		ACGMECompliance: acgme.average(),
		Continuity:      continuity.average(),
		// No built-in constraint yet measures learning-curve/case-mix
		// exposure, so this dimension stays at its neutral value until one
		// is wired in.
		Learning: 1.0,
	}
	out.Score = 1.0 / (1.0 + totalPenalty)
	if !out.Valid {
		out.Score = 0
	}
	return out, nil
}

// bucket averages a normalized [0,1] contribution across however many
// constraints land in it; an empty bucket reports the neutral value of 1
// (no constraint observed, so no penalty to reflect).
type bucket struct {
	sum   float64
	count int
}

func (b *bucket) add(v float64) {
	b.sum += v
	b.count++
}

func (b *bucket) observe(satisfied bool) {
	if satisfied {
		b.add(1.0)
	} else {
		b.add(0.0)
	}
}

func (b bucket) average() float64 {
	if b.count == 0 {
		return 1.0
	}
	return b.sum / float64(b.count)
}
