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

package orchestrator_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/residency-sched/engine/pkg/approval"
	"github.com/residency-sched/engine/pkg/constraints"
	"github.com/residency-sched/engine/pkg/generator"
	"github.com/residency-sched/engine/pkg/idempotency"
	"github.com/residency-sched/engine/pkg/orchestrator"
	"github.com/residency-sched/engine/pkg/outbox"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

func TestOrchestrator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Orchestrator")
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, sc *schedcontext.Context, _ generator.Params) (*generator.Candidate, error) {
	var assignments []schedcontext.Assignment
	for _, r := range sc.Residents() {
		for _, b := range sc.Blocks() {
			assignments = append(assignments, schedcontext.Assignment{
				ID: "a-" + r.ID + "-" + b.ID, PersonID: r.ID, BlockID: b.ID, TemplateID: "clinic", Role: schedcontext.RolePrimary,
			})
		}
	}
	return &generator.Candidate{Assignments: assignments, Algorithm: "stub"}, nil
}

func (g stubGenerator) GenerateBatch(ctx context.Context, sc *schedcontext.Context, params generator.Params, n int) ([]*generator.Candidate, error) {
	out := make([]*generator.Candidate, 0, n)
	for i := 0; i < n; i++ {
		c, _ := g.Generate(ctx, sc, params)
		out = append(out, c)
	}
	return out, nil
}

func (stubGenerator) ClearCache() {}

func loader(_ context.Context, _ orchestrator.Request) (*schedcontext.Context, error) {
	d := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	people := []schedcontext.Person{{ID: "r1", Kind: schedcontext.KindResident}}
	blocks := []schedcontext.Block{{ID: "b1", Date: d, TimeOfDay: schedcontext.AM}}
	templates := []schedcontext.RotationTemplate{{ID: "clinic", ActivityType: schedcontext.ActivityClinic}}
	return schedcontext.New(people, blocks, templates, nil, nil), nil
}

func newOrchestrator() *orchestrator.Orchestrator {
	reg := constraints.NewRegistry(constraints.NewAvailability())
	return orchestrator.New(loader, reg, stubGenerator{}, nil, idempotency.NewStore(time.Minute), outbox.NewStore(), approval.NewChain("test-chain"), 1.0, 0.5)
}

var _ = Describe("GenerateSchedule", func() {
	It("runs the full pipeline and returns a succeeded response", func() {
		o := newOrchestrator()
		req := orchestrator.Request{StartDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), Algorithm: "stub"}

		resp, err := o.GenerateSchedule(context.Background(), req, "tester")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Status).To(Equal(orchestrator.StatusSucceeded))
		Expect(resp.TotalAssigned).To(Equal(1))
		Expect(resp.Assignments).To(HaveLen(1))
		Expect(resp.Explanations).To(HaveLen(1))
		Expect(resp.IdempotencyReplayed).To(BeFalse())
	})

	It("replays the cached response for a repeated idempotency key", func() {
		o := newOrchestrator()
		req := orchestrator.Request{
			StartDate:      time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC),
			Algorithm:      "stub",
			IdempotencyKey: "client-key-1",
		}

		first, err := o.GenerateSchedule(context.Background(), req, "tester")
		Expect(err).NotTo(HaveOccurred())
		Expect(first.IdempotencyReplayed).To(BeFalse())

		second, err := o.GenerateSchedule(context.Background(), req, "tester")
		Expect(err).NotTo(HaveOccurred())
		Expect(second.IdempotencyReplayed).To(BeTrue())
		Expect(second.RunID).To(Equal(first.RunID))
	})

	It("rejects a concurrent run over an overlapping date range", func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		blockingLoader := func(ctx context.Context, req orchestrator.Request) (*schedcontext.Context, error) {
			close(entered)
			<-release
			return loader(ctx, req)
		}
		reg := constraints.NewRegistry(constraints.NewAvailability())
		o := orchestrator.New(blockingLoader, reg, stubGenerator{}, nil, idempotency.NewStore(time.Minute), outbox.NewStore(), approval.NewChain("test-chain"), 1.0, 0.5)
		start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		end := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)

		firstErr := make(chan error, 1)
		go func() {
			_, err := o.GenerateSchedule(context.Background(), orchestrator.Request{StartDate: start, EndDate: end, Algorithm: "stub"}, "tester")
			firstErr <- err
		}()
		<-entered

		_, err := o.GenerateSchedule(context.Background(), orchestrator.Request{StartDate: start.AddDate(0, 0, 3), EndDate: end.AddDate(0, 0, 3), Algorithm: "stub"}, "tester")
		Expect(err).To(MatchError(orchestrator.ErrConflict))

		close(release)
		Expect(<-firstErr).NotTo(HaveOccurred())
	})
})
