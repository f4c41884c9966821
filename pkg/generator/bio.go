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

package generator

import (
	"context"
	"math/rand"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"github.com/residency-sched/engine/pkg/schedcontext"
)

// Bio is the §4.4 bio-inspired generator: a small particle-swarm search over
// WeightVector space, where each particle's fitness is the score of a
// weighted-greedy construction run with that particle's weights. It is used
// for Pareto exploration, not primary production — callers wanting a single
// production candidate should reach for Greedy or CPSAT.
type Bio struct {
	cache        *cache.Cache
	SwarmSize    int
	Iterations   int
	InertiaBase  float64
}

func NewBio() *Bio {
	return &Bio{
		cache:       cache.New(5*time.Minute, 10*time.Minute),
		SwarmSize:   12,
		Iterations:  8,
		InertiaBase: 0.5,
	}
}

func (b *Bio) ClearCache() { b.cache.Flush() }

type particle struct {
	weights WeightVector
	best    WeightVector
	bestFit float64
}

func randomWeightVector(r *rand.Rand) WeightVector {
	return WeightVector{
		Coverage:    r.Float64(),
		Fairness:    r.Float64(),
		Preferences: r.Float64(),
		Learning:    r.Float64(),
		ACGME:       r.Float64(),
		Continuity:  r.Float64(),
	}.Normalize()
}

// fitness runs a weighted-greedy construction with the given weights and
// scores the resulting candidate by coverage completeness net of fairness
// variance, higher is better. It deliberately reuses Greedy's mechanics
// rather than re-implementing block iteration, since the weight vector only
// changes how the per-resident score is computed.
func fitness(ctx context.Context, sc *schedcontext.Context, params Params, w WeightVector) (*Candidate, float64) {
	weighted := params
	weighted.ObjectiveHook = func(triple schedcontext.Triple, sc *schedcontext.Context) float64 {
		base := 0.0
		if params.ObjectiveHook != nil {
			base = params.ObjectiveHook(triple, sc)
		}
		// Continuity/preference terms pull the base objective hook's penalty
		// down (more favorable) in proportion to those weights; a pure coverage
		// weight leaves the base hook untouched.
		return base * (1 - w.Continuity*0.5 - w.Preferences*0.5)
	}

	g := NewGreedy()
	cand, err := g.Generate(ctx, sc, weighted)
	if err != nil || cand == nil {
		return nil, -1
	}

	covered := map[string]bool{}
	for _, a := range cand.Assignments {
		covered[a.BlockID] = true
	}
	coverageFrac := 0.0
	if len(sc.Blocks()) > 0 {
		coverageFrac = float64(len(covered)) / float64(len(sc.Blocks()))
	}

	counts := map[string]int{}
	for _, r := range sc.Residents() {
		counts[r.ID] = 0
	}
	for _, a := range cand.Assignments {
		if a.Role == schedcontext.RolePrimary {
			counts[a.PersonID]++
		}
	}
	values := lo.Values(counts)
	variance := 0.0
	if len(values) > 0 {
		mean := 0.0
		for _, v := range values {
			mean += float64(v)
		}
		mean /= float64(len(values))
		for _, v := range values {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(len(values))
	}

	fit := w.Coverage*coverageFrac - w.Fairness*variance*0.01
	return cand, fit
}

// Generate runs a bounded particle-swarm search over weight space and
// returns the best-fitness candidate found. Deterministic for a fixed seed.
func (b *Bio) Generate(ctx context.Context, sc *schedcontext.Context, params Params) (*Candidate, error) {
	start := time.Now()
	r := rand.New(rand.NewSource(params.RandomSeed))

	swarmSize := b.SwarmSize
	if swarmSize < 1 {
		swarmSize = 1
	}
	iterations := b.Iterations
	if iterations < 1 {
		iterations = 1
	}

	swarm := make([]*particle, swarmSize)
	for i := range swarm {
		w := params.Weights
		if w == (WeightVector{}) {
			w = randomWeightVector(r)
		} else if i > 0 {
			w = randomWeightVector(r)
		}
		swarm[i] = &particle{weights: w}
	}

	var globalBest WeightVector
	globalBestFit := -1.0
	var bestCandidate *Candidate

	for iter := 0; iter < iterations; iter++ {
		if !params.Deadline.IsZero() && time.Now().After(params.Deadline) {
			break
		}
		for _, p := range swarm {
			cand, fit := fitness(ctx, sc, params, p.weights)
			if cand == nil {
				continue
			}
			if fit > p.bestFit {
				p.bestFit = fit
				p.best = p.weights
			}
			if fit > globalBestFit {
				globalBestFit = fit
				globalBest = p.weights
				bestCandidate = cand
			}
		}
		inertia := b.InertiaBase * (1 - float64(iter)/float64(iterations))
		for _, p := range swarm {
			p.weights = WeightVector{
				Coverage:    pull(p.weights.Coverage, p.best.Coverage, globalBest.Coverage, inertia, r),
				Fairness:    pull(p.weights.Fairness, p.best.Fairness, globalBest.Fairness, inertia, r),
				Preferences: pull(p.weights.Preferences, p.best.Preferences, globalBest.Preferences, inertia, r),
				Learning:    pull(p.weights.Learning, p.best.Learning, globalBest.Learning, inertia, r),
				ACGME:       pull(p.weights.ACGME, p.best.ACGME, globalBest.ACGME, inertia, r),
				Continuity:  pull(p.weights.Continuity, p.best.Continuity, globalBest.Continuity, inertia, r),
			}.Normalize()
		}
	}

	if bestCandidate == nil {
		// Every particle failed (e.g. an impossible deadline); fall back to a
		// single unweighted greedy pass so callers always get a candidate.
		g := NewGreedy()
		return g.Generate(ctx, sc, params)
	}
	bestCandidate.Algorithm = "bio"
	bestCandidate.Seed = params.RandomSeed
	bestCandidate.Runtime = time.Since(start)
	return bestCandidate, nil
}

// pull nudges v toward both personal-best and global-best by inertia,
// perturbed by a small random term, the PSO velocity update collapsed into a
// single position step since particles here are stateless per iteration.
func pull(v, personalBest, globalBest, inertia float64, r *rand.Rand) float64 {
	cognitive := 0.5 * r.Float64() * (personalBest - v)
	social := 0.5 * r.Float64() * (globalBest - v)
	next := v*inertia + cognitive + social
	if next < 0 {
		next = 0
	}
	return next
}

func (b *Bio) GenerateBatch(ctx context.Context, sc *schedcontext.Context, params Params, n int) ([]*Candidate, error) {
	out := make([]*Candidate, 0, n)
	for i := 0; i < n; i++ {
		seeded := params
		seeded.RandomSeed = params.RandomSeed + int64(i)
		cand, err := b.Generate(ctx, sc, seeded)
		if err != nil {
			return out, err
		}
		out = append(out, cand)
	}
	return out, nil
}
