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

// Package generator implements the Candidate Generator (C4): a unified
// interface over greedy, CP-SAT-modeled, and bio-inspired schedule
// construction, each respecting pre-existing assignments and a deadline.
package generator

import (
	"context"
	"time"

	"github.com/residency-sched/engine/pkg/schedcontext"
)

// ObjectiveHook is the pluggable external objective described by §6: an
// optional per-triple penalty an external module (fatigue model,
// particle-swarm weights) may supply. It must be pure and thread-safe.
type ObjectiveHook func(triple schedcontext.Triple, ctx *schedcontext.Context) float64

// WeightVector is the six-dimensional objective weighting searched over by
// the bio generator (§4.4). Weights are
// renormalized to sum to 1 by Normalize.
type WeightVector struct {
	Coverage    float64
	Fairness    float64
	Preferences float64
	Learning    float64
	ACGME       float64
	Continuity  float64
}

// Normalize returns a copy of w renormalized to sum to 1. An all-zero vector
// is returned unchanged (division by zero is avoided, not papered over).
func (w WeightVector) Normalize() WeightVector {
	sum := w.Coverage + w.Fairness + w.Preferences + w.Learning + w.ACGME + w.Continuity
	if sum <= 0 {
		return w
	}
	return WeightVector{
		Coverage:    w.Coverage / sum,
		Fairness:    w.Fairness / sum,
		Preferences: w.Preferences / sum,
		Learning:    w.Learning / sum,
		ACGME:       w.ACGME / sum,
		Continuity:  w.Continuity / sum,
	}
}

// BlockTemplateFunc resolves which RotationTemplate a block needs primary
// coverage under. Callers that already know their coverage plan (e.g. "every
// weekday AM/PM block needs the FM_CLINIC template") supply this; DefaultBlockTemplate
// offers a reasonable fallback for tests and the S1-style small cohort.
type BlockTemplateFunc func(block schedcontext.Block) (templateID string, ok bool)

// Params configures a single Generate call.
type Params struct {
	Deadline        time.Time
	RandomSeed      int64
	CoverageDensity float64 // rho in §4.4's n = max(1, floor(rho * |residents|))
	NumWorkers      int     // CP-SAT worker pool size
	ObjectiveHook   ObjectiveHook
	Weights         WeightVector
	BlockTemplate   BlockTemplateFunc
}

// Candidate is the ScheduleCandidate of §4.4: assignments plus provenance.
type Candidate struct {
	Assignments []schedcontext.Assignment
	Algorithm   string
	Seed        int64
	Runtime     time.Duration
	Partial     bool
}

// Generator is the capability set every variant (greedy, cpsat, bio) implements.
type Generator interface {
	Generate(ctx context.Context, sc *schedcontext.Context, params Params) (*Candidate, error)
	GenerateBatch(ctx context.Context, sc *schedcontext.Context, params Params, n int) ([]*Candidate, error)
	ClearCache()
}

// DefaultBlockTemplate assigns every non-weekend, non-holiday block to the
// first clinic-type template in the catalog, and every weekend/holiday block
// to no template (clinic templates are skipped on weekends per §4.4).
func DefaultBlockTemplate(sc *schedcontext.Context) BlockTemplateFunc {
	var clinicTemplateID string
	for _, t := range sc.Templates() {
		if t.ActivityType == schedcontext.ActivityClinic {
			clinicTemplateID = t.ID
			break
		}
	}
	return func(b schedcontext.Block) (string, bool) {
		if clinicTemplateID == "" {
			return "", false
		}
		if b.IsWeekend() || b.IsHoliday {
			return "", false
		}
		return clinicTemplateID, true
	}
}
