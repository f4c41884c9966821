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

// Package orchestrator implements C12: the single entry point that drives
// every other component end-to-end and persists the resulting ScheduleRun.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/residency-sched/engine/internal/obslog"
	"github.com/residency-sched/engine/internal/obsmetrics"
	"github.com/residency-sched/engine/pkg/acgme"
	"github.com/residency-sched/engine/pkg/approval"
	"github.com/residency-sched/engine/pkg/churn"
	"github.com/residency-sched/engine/pkg/constraints"
	"github.com/residency-sched/engine/pkg/evaluator"
	"github.com/residency-sched/engine/pkg/explain"
	"github.com/residency-sched/engine/pkg/generator"
	"github.com/residency-sched/engine/pkg/idempotency"
	"github.com/residency-sched/engine/pkg/outbox"
	"github.com/residency-sched/engine/pkg/presolver"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

// RunStatus mirrors ScheduleRun.status from §3.
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusInProgress RunStatus = "in_progress"
	StatusSucceeded  RunStatus = "succeeded"
	StatusPartial    RunStatus = "partial"
	StatusFailed     RunStatus = "failed"
)

// ErrConflict is returned when another run is in_progress over an
// overlapping date range.
var ErrConflict = errors.New("orchestrator: a run is already in progress for an overlapping date range")

// Request is generate_schedule's input.
type Request struct {
	StartDate         time.Time
	EndDate           time.Time
	Algorithm         string
	PGYLevels         []int
	RotationTemplateIDs []string
	IdempotencyKey    string
}

// Response is generate_schedule's output.
type Response struct {
	RunID              string
	Status             RunStatus
	TotalAssigned      int
	ACGMEViolations    int
	RuntimeSeconds     float64
	Assignments        []schedcontext.Assignment
	Explanations       []explain.DecisionExplanation
	Churn              churn.Report
	IdempotencyReplayed bool
}

// ScheduleRun is the persisted aggregate §3 describes.
type ScheduleRun struct {
	ID              string
	StartDate       time.Time
	EndDate         time.Time
	Algorithm       string
	Status          RunStatus
	TotalAssigned   int
	ACGMEViolations int
	RuntimeSeconds  float64
}

// ContextLoader builds the immutable Context for a request's date range;
// callers supply the real persistence-backed loader in production.
type ContextLoader func(ctx context.Context, req Request) (*schedcontext.Context, error)

// SnapshotStore retrieves the last committed ScheduleSnapshot's assignments
// for anti-churn comparison.
type SnapshotStore interface {
	LastCommitted(ctx context.Context, startDate, endDate time.Time) ([]schedcontext.Assignment, error)
}

// Orchestrator wires together every pipeline component.
type Orchestrator struct {
	LoadContext ContextLoader
	Registry    *constraints.Registry
	Generator   generator.Generator
	Snapshots   SnapshotStore
	Idempotency *idempotency.Store
	Outbox      *outbox.Store
	Chain       *approval.Chain
	AntiChurnAlpha, AntiChurnBeta float64

	mu          sync.Mutex
	activeRuns  []ScheduleRun
	runs        map[string]*ScheduleRun
	nextRunID   int
}

func New(loader ContextLoader, reg *constraints.Registry, gen generator.Generator, snapshots SnapshotStore, idemStore *idempotency.Store, obStore *outbox.Store, chain *approval.Chain, alpha, beta float64) *Orchestrator {
	return &Orchestrator{
		LoadContext:    loader,
		Registry:       reg,
		Generator:      gen,
		Snapshots:      snapshots,
		Idempotency:    idemStore,
		Outbox:         obStore,
		Chain:          chain,
		AntiChurnAlpha: alpha,
		AntiChurnBeta:  beta,
		runs:           map[string]*ScheduleRun{},
	}
}

// GenerateSchedule implements the 9-step pipeline of §4.12.
func (o *Orchestrator) GenerateSchedule(ctx context.Context, req Request, actorID string) (Response, error) {
	log := obslog.FromContext(ctx)
	start := time.Now()

	// 1. Idempotency check.
	bodyHash, err := idempotency.CanonicalHash(req)
	if err != nil {
		return Response{}, fmt.Errorf("hashing request: %w", err)
	}
	if req.IdempotencyKey != "" {
		rec, replayed, err := o.Idempotency.Begin(req.IdempotencyKey, bodyHash)
		if err != nil {
			return Response{}, err
		}
		if replayed {
			resp, _ := rec.ResponseBody.(Response)
			resp.IdempotencyReplayed = true
			return resp, nil
		}
	}

	resp, err := o.run(ctx, req, actorID)

	if req.IdempotencyKey != "" {
		o.Idempotency.Complete(req.IdempotencyKey, resp, err != nil)
	}
	if err != nil {
		log.Errorw("schedule generation failed", "error", err)
		obsmetrics.RunsTotal.WithLabelValues(string(StatusFailed), req.Algorithm).Inc()
		return resp, err
	}

	obsmetrics.RunsTotal.WithLabelValues(string(resp.Status), req.Algorithm).Inc()
	obsmetrics.RunDurationSeconds.WithLabelValues(req.Algorithm).Observe(time.Since(start).Seconds())
	obsmetrics.RigidityScore.Observe(resp.Churn.RigidityScore)
	return resp, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, actorID string) (Response, error) {
	log := obslog.FromContext(ctx)
	start := time.Now()

	// 2. Acquire a unique-run lock for the date range.
	if err := o.lockRange(req.StartDate, req.EndDate); err != nil {
		return Response{}, err
	}
	defer o.unlockRange(req.StartDate, req.EndDate)

	run := &ScheduleRun{
		ID:        o.newRunID(),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Algorithm: req.Algorithm,
		Status:    StatusInProgress,
	}
	o.mu.Lock()
	o.runs[run.ID] = run
	o.mu.Unlock()

	// 3. Build context, run pre-solver.
	sc, err := o.LoadContext(ctx, req)
	if err != nil {
		return o.fail(run, err)
	}
	pre := presolver.Run(sc, presolver.Options{ConstraintFactor: len(o.Registry.Active())})
	if !pre.Feasible {
		return o.fail(run, fmt.Errorf("pre-solver rejected context: %v", pre.Issues))
	}

	// 4. "Open transaction" / delete existing assignments in range is modeled
	// by the generator treating sc.ExistingAssignments() as the only
	// pre-loaded fixtures it must respect; there is no separate delete step
	// in an in-memory Context since LoadContext is re-invoked from storage.

	params := generator.Params{Deadline: start.Add(30 * time.Second), RandomSeed: 1}

	// 5. Generate, evaluate, anti-churn.
	cand, err := o.Generator.Generate(ctx, sc, params)
	if err != nil {
		return o.fail(run, err)
	}
	evalResult, err := evaluator.Evaluate(ctx, o.Registry, cand.Assignments, sc)
	if err != nil {
		return o.fail(run, err)
	}

	var previous []schedcontext.Assignment
	if o.Snapshots != nil {
		previous, _ = o.Snapshots.LastCommitted(ctx, req.StartDate, req.EndDate)
	}
	churnReport := churn.Score(previous, cand.Assignments, o.AntiChurnAlpha, o.AntiChurnBeta, evalResult.Score)

	// 6. Persist assignments + explanations; write ApprovalRecord; append outbox messages.
	explanations := buildExplanations(cand, sc)
	if o.Chain != nil {
		if _, err := o.Chain.Append(approval.ActionGenerate, map[string]any{
			"run_id": run.ID, "total_assigned": len(cand.Assignments),
		}, actorID, approval.ActorSystem, "schedule_generated", time.Now()); err != nil {
			return o.fail(run, err)
		}
	}
	if o.Outbox != nil {
		o.Outbox.Append("schedule_run", run.ID, "schedule.generated", map[string]any{"run_id": run.ID})
	}

	// 7. ACGME validator.
	acgmeSummary := acgme.Validate(cand.Assignments, sc)

	run.TotalAssigned = len(cand.Assignments)
	run.ACGMEViolations = len(acgmeSummary.Violations)
	run.RuntimeSeconds = time.Since(start).Seconds()
	run.Status = StatusSucceeded
	if cand.Partial {
		run.Status = StatusPartial
	}
	if !evalResult.Valid {
		log.Warnw("candidate failed hard constraints", "run_id", run.ID)
	}

	for kind, count := range acgmeSummary.ByKind {
		obsmetrics.ACGMEViolationsTotal.WithLabelValues(string(kind)).Add(float64(count))
	}

	resp := Response{
		RunID:           run.ID,
		Status:          run.Status,
		TotalAssigned:   run.TotalAssigned,
		ACGMEViolations: run.ACGMEViolations,
		RuntimeSeconds:  run.RuntimeSeconds,
		Assignments:     cand.Assignments,
		Explanations:    explanations,
		Churn:           churnReport,
	}

	// 8. Mark idempotency record with the response payload: done by the
	// caller (GenerateSchedule), completed on success and failed on error.
	return resp, nil
}

func (o *Orchestrator) fail(run *ScheduleRun, err error) (Response, error) {
	o.mu.Lock()
	run.Status = StatusFailed
	o.mu.Unlock()
	return Response{RunID: run.ID, Status: StatusFailed}, multierr.Append(err, nil)
}

func (o *Orchestrator) newRunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextRunID++
	return fmt.Sprintf("run-%d", o.nextRunID)
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}

func (o *Orchestrator) lockRange(start, end time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.activeRuns {
		if overlaps(r.StartDate, r.EndDate, start, end) {
			return ErrConflict
		}
	}
	o.activeRuns = append(o.activeRuns, ScheduleRun{StartDate: start, EndDate: end})
	return nil
}

func (o *Orchestrator) unlockRange(start, end time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, r := range o.activeRuns {
		if r.StartDate.Equal(start) && r.EndDate.Equal(end) {
			o.activeRuns = append(o.activeRuns[:i], o.activeRuns[i+1:]...)
			return
		}
	}
}

// buildExplanations derives a minimal DecisionExplanation per primary
// assignment the generator returned, using the candidate's own assignments
// as the "all candidates considered" pool of one since the generator
// packages here don't yet expose per-slot scoring telemetry out-of-band.
func buildExplanations(cand *generator.Candidate, sc *schedcontext.Context) []explain.DecisionExplanation {
	var out []explain.DecisionExplanation
	for _, a := range cand.Assignments {
		if a.Role != schedcontext.RolePrimary {
			continue
		}
		out = append(out, explain.Record(explain.Input{
			SelectedPersonID: a.PersonID,
			Block:            blockFor(sc, a.BlockID),
			TemplateID:       a.TemplateID,
			AllCandidates:    []explain.CandidateScore{{PersonID: a.PersonID, Score: 1}},
			Algorithm:        cand.Algorithm,
			SolverVersion:    "1",
		}))
	}
	return out
}

func blockFor(sc *schedcontext.Context, blockID string) schedcontext.Block {
	i := sc.BlockIndex(blockID)
	if i < 0 {
		return schedcontext.Block{ID: blockID}
	}
	return sc.Blocks()[i]
}
