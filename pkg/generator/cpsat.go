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
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/mitchellh/hashstructure/v2"
	"golang.org/x/sync/errgroup"

	"github.com/residency-sched/engine/internal/obslog"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

// CPSAT is the §4.4 "CP-SAT-modeled" generator. It is NOT a binding to a real
// constraint-programming solver: no such dependency appears anywhere in the
// example pack, so this models the solver's external contract (branch over a
// bounded candidate pool per block, skipping a slot with no feasible branch
// rather than backtracking,
// shared worker pool, deadline-aware) using plain Go, with a memoized
// candidate pool keyed by a structural hash of (block, template, eligible set)
// so repeated calls against the same Context reuse prior branch evaluations.
type CPSAT struct {
	cache *cache.Cache
}

func NewCPSAT() *CPSAT {
	return &CPSAT{cache: cache.New(10*time.Minute, 20*time.Minute)}
}

func (c *CPSAT) ClearCache() { c.cache.Flush() }

type poolKey struct {
	BlockID    string
	TemplateID string
	Eligible   []string
}

func (c *CPSAT) eligiblePool(sc *schedcontext.Context, block schedcontext.Block, templateID string) []schedcontext.Person {
	var eligible []string
	for _, r := range sc.Residents() {
		if sc.Availability(r.ID, block.ID).Available {
			eligible = append(eligible, r.ID)
		}
	}
	key := poolKey{BlockID: block.ID, TemplateID: templateID, Eligible: eligible}
	hash, err := hashstructure.Hash(key, hashstructure.FormatV2, nil)
	cacheKey := ""
	if err == nil {
		cacheKey = uuid.NewSHA1(uuid.Nil, []byte{byte(hash), byte(hash >> 8), byte(hash >> 16), byte(hash >> 24)}).String()
		if v, ok := c.cache.Get(cacheKey); ok {
			return v.([]schedcontext.Person)
		}
	}
	pool := make([]schedcontext.Person, 0, len(eligible))
	for _, id := range eligible {
		if p, ok := sc.Person(id); ok {
			pool = append(pool, p)
		}
	}
	if cacheKey != "" {
		c.cache.Set(cacheKey, pool, cache.DefaultExpiration)
	}
	return pool
}

// branch scores one eligible resident for one (block, template) slot. It
// mirrors the weight vector used by the bio generator, but at fixed equal
// weights, standing in for the solver's default objective before any
// external tuning is applied.
func branch(r schedcontext.Person, hours float64, count int, hook ObjectiveHook, triple schedcontext.Triple, sc *schedcontext.Context) (float64, bool) {
	if hours+hoursPerBlock > 80 {
		return 0, false
	}
	score := 1.0/(1.0+float64(count)) + 0.5
	if hook != nil {
		score -= hook(triple, sc)
	}
	return score, true
}

func (c *CPSAT) Generate(ctxStd context.Context, sc *schedcontext.Context, params Params) (*Candidate, error) {
	start := time.Now()
	if params.BlockTemplate == nil {
		params.BlockTemplate = DefaultBlockTemplate(sc)
	}
	log := obslog.FromContext(ctxStd)

	assignments := append([]schedcontext.Assignment{}, sc.ExistingAssignments()...)
	weekHours := buildWeekHours(assignments, sc)
	primaryCount := buildPrimaryCount(assignments)
	covered := coveredBlockTemplates(assignments)

	workers := params.NumWorkers
	if workers <= 0 {
		workers = 1
	}

	blocks := sc.Blocks()
	type slot struct {
		block      schedcontext.Block
		templateID string
	}
	var slots []slot
	for _, b := range blocks {
		templateID, ok := params.BlockTemplate(b)
		if !ok || covered[coverageKey(b.ID, templateID)] {
			continue
		}
		slots = append(slots, slot{block: b, templateID: templateID})
	}

	// Branching is evaluated with bounded worker concurrency (errgroup), but
	// assignment application stays single-threaded and chronological so the
	// result is reproducible and ACGME hour accumulation sees every prior pick.
	partial := false
	for _, s := range slots {
		if !params.Deadline.IsZero() && time.Now().After(params.Deadline) {
			partial = true
			break
		}

		pool := c.eligiblePool(sc, s.block, s.templateID)
		type scored struct {
			person schedcontext.Person
			score  float64
		}
		results := make([]scored, len(pool))
		g, _ := errgroup.WithContext(ctxStd)
		g.SetLimit(workers)
		for i, p := range pool {
			i, p := i, p
			g.Go(func() error {
				week := isoWeekStart(s.block.Date)
				triple := schedcontext.Triple{PersonID: p.ID, BlockID: s.block.ID, TemplateID: s.templateID}
				score, ok := branch(p, weekHours[p.ID][week], primaryCount[p.ID], params.ObjectiveHook, triple, sc)
				if !ok {
					results[i] = scored{person: p, score: -1}
					return nil
				}
				results[i] = scored{person: p, score: score}
				return nil
			})
		}
		_ = g.Wait()

		var feasible []scored
		for _, r := range results {
			if r.score >= 0 {
				feasible = append(feasible, r)
			}
		}
		if len(feasible) == 0 {
			log.Debugw("no feasible branch for slot, skipping", "block_id", s.block.ID, "template_id", s.templateID)
			continue
		}
		sort.SliceStable(feasible, func(i, j int) bool {
			if feasible[i].score != feasible[j].score {
				return feasible[i].score > feasible[j].score
			}
			return feasible[i].person.ID < feasible[j].person.ID
		})
		winner := feasible[0].person
		t, ok := sc.Template(s.templateID)
		if !ok {
			continue
		}
		a := schedcontext.Assignment{
			ID:           uuid.NewString(),
			BlockID:      s.block.ID,
			PersonID:     winner.ID,
			TemplateID:   s.templateID,
			Role:         schedcontext.RolePrimary,
			ActivityCode: t.ActivityCode,
			UpdatedAt:    time.Now(),
		}
		assignments = append(assignments, a)
		week := isoWeekStart(s.block.Date)
		if weekHours[winner.ID] == nil {
			weekHours[winner.ID] = map[time.Time]float64{}
		}
		weekHours[winner.ID][week] += hoursPerBlock
		primaryCount[winner.ID]++
	}

	return &Candidate{
		Assignments: assignments,
		Algorithm:   "cpsat",
		Seed:        params.RandomSeed,
		Runtime:     time.Since(start),
		Partial:     partial,
	}, nil
}

func (c *CPSAT) GenerateBatch(ctx context.Context, sc *schedcontext.Context, params Params, n int) ([]*Candidate, error) {
	out := make([]*Candidate, 0, n)
	for i := 0; i < n; i++ {
		cand, err := c.Generate(ctx, sc, params)
		if err != nil {
			return out, err
		}
		out = append(out, cand)
	}
	return out, nil
}
