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
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/residency-sched/engine/pkg/schedcontext"
)

const hoursPerBlock = 4.0

// Greedy is the single-threaded, deterministic generator of §4.4: it walks
// blocks chronologically, scoring eligible residents by inverse-fairness and
// coverage weight, and takes the top n, skipping weekend/holiday clinic
// blocks. It never runs concurrently with itself over the same state, since
// the partial assignment array it builds is owned exclusively by one caller.
type Greedy struct {
	cache *cache.Cache
}

func NewGreedy() *Greedy {
	return &Greedy{cache: cache.New(5*time.Minute, 10*time.Minute)}
}

func (g *Greedy) ClearCache() { g.cache.Flush() }

func (g *Greedy) Generate(ctx context.Context, sc *schedcontext.Context, params Params) (*Candidate, error) {
	start := time.Now()
	if params.BlockTemplate == nil {
		params.BlockTemplate = DefaultBlockTemplate(sc)
	}
	if params.CoverageDensity <= 0 {
		params.CoverageDensity = 1
	}
	residents := sc.Residents()
	n := int(math.Floor(params.CoverageDensity * float64(len(residents))))
	if n < 1 {
		n = 1
	}

	assignments := append([]schedcontext.Assignment{}, sc.ExistingAssignments()...)
	weekHours := buildWeekHours(assignments, sc)
	primaryCount := buildPrimaryCount(assignments)
	covered := coveredBlockTemplates(assignments)

	partial := false
	for _, block := range sc.Blocks() {
		select {
		case <-ctx.Done():
			partial = true
		default:
		}
		if !params.Deadline.IsZero() && time.Now().After(params.Deadline) {
			partial = true
		}
		if partial {
			break
		}

		templateID, ok := params.BlockTemplate(block)
		if !ok {
			continue
		}
		if covered[coverageKey(block.ID, templateID)] {
			continue
		}
		t, ok := sc.Template(templateID)
		if !ok {
			continue
		}

		type candidateScore struct {
			person schedcontext.Person
			score  float64
		}
		var eligible []candidateScore
		for _, r := range residents {
			if !sc.Availability(r.ID, block.ID).Available {
				continue
			}
			if t.MinPGYLevel > 0 && r.PGYLevel < t.MinPGYLevel {
				continue
			}
			week := isoWeekStart(block.Date)
			projectedHours := weekHours[r.ID][week] + hoursPerBlock
			if projectedHours > 80 {
				continue // ACGME hard-limit: -inf penalty, excluded outright
			}
			fairness := 1.0 / (1.0 + float64(primaryCount[r.ID]))
			coverageWeight := 1.0
			score := fairness + coverageWeight
			if params.ObjectiveHook != nil {
				score -= params.ObjectiveHook(schedcontext.Triple{PersonID: r.ID, BlockID: block.ID, TemplateID: templateID}, sc)
			}
			eligible = append(eligible, candidateScore{person: r, score: score})
		}

		sort.SliceStable(eligible, func(i, j int) bool {
			if eligible[i].score != eligible[j].score {
				return eligible[i].score > eligible[j].score
			}
			// Lexicographic tie-break on person_id for reproducibility; all
			// eligible candidates here share the same block's templateID.
			return eligible[i].person.ID < eligible[j].person.ID
		})

		take := n
		if take > len(eligible) {
			take = len(eligible)
		}
		if take == 0 && len(eligible) == 0 {
			partial = true
			continue
		}
		for _, cs := range eligible[:take] {
			a := schedcontext.Assignment{
				ID:           uuid.NewString(),
				BlockID:      block.ID,
				PersonID:     cs.person.ID,
				TemplateID:   templateID,
				Role:         schedcontext.RolePrimary,
				ActivityCode: t.ActivityCode,
				UpdatedAt:    time.Now(),
			}
			assignments = append(assignments, a)
			week := isoWeekStart(block.Date)
			if weekHours[cs.person.ID] == nil {
				weekHours[cs.person.ID] = map[time.Time]float64{}
			}
			weekHours[cs.person.ID][week] += hoursPerBlock
			primaryCount[cs.person.ID]++
		}
		covered[coverageKey(block.ID, templateID)] = true
	}

	return &Candidate{
		Assignments: assignments,
		Algorithm:   "greedy",
		Seed:        params.RandomSeed,
		Runtime:     time.Since(start),
		Partial:     partial,
	}, nil
}

func (g *Greedy) GenerateBatch(ctx context.Context, sc *schedcontext.Context, params Params, n int) ([]*Candidate, error) {
	out := make([]*Candidate, 0, n)
	for i := 0; i < n; i++ {
		c, err := g.Generate(ctx, sc, params)
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

func isoWeekStart(d time.Time) time.Time {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func buildWeekHours(assignments []schedcontext.Assignment, sc *schedcontext.Context) map[string]map[time.Time]float64 {
	out := map[string]map[time.Time]float64{}
	for _, a := range assignments {
		if a.Role != schedcontext.RolePrimary {
			continue
		}
		i := sc.BlockIndex(a.BlockID)
		if i < 0 {
			continue
		}
		week := isoWeekStart(sc.Blocks()[i].Date)
		if out[a.PersonID] == nil {
			out[a.PersonID] = map[time.Time]float64{}
		}
		out[a.PersonID][week] += hoursPerBlock
	}
	return out
}

func buildPrimaryCount(assignments []schedcontext.Assignment) map[string]int {
	out := map[string]int{}
	for _, a := range assignments {
		if a.Role == schedcontext.RolePrimary {
			out[a.PersonID]++
		}
	}
	return out
}

func coveredBlockTemplates(assignments []schedcontext.Assignment) map[string]bool {
	out := map[string]bool{}
	for _, a := range assignments {
		if a.Role == schedcontext.RolePrimary {
			out[coverageKey(a.BlockID, a.TemplateID)] = true
		}
	}
	return out
}

func coverageKey(blockID, templateID string) string { return blockID + "|" + templateID }
