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

package presolver_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/residency-sched/engine/pkg/presolver"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

func TestPresolver(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Presolver")
}

func weekdayBlocks(start time.Time, days int) []schedcontext.Block {
	var out []schedcontext.Block
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		out = append(out,
			schedcontext.Block{ID: d.Format("2006-01-02") + "-AM", Date: d, TimeOfDay: schedcontext.AM},
			schedcontext.Block{ID: d.Format("2006-01-02") + "-PM", Date: d, TimeOfDay: schedcontext.PM},
		)
	}
	return out
}

var _ = Describe("Run", func() {
	It("is feasible for a well-staffed small cohort", func() {
		start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		blocks := weekdayBlocks(start, 7)
		var people []schedcontext.Person
		for i := 0; i < 5; i++ {
			people = append(people, schedcontext.Person{ID: string(rune('a' + i)), Kind: schedcontext.KindResident, WeeklyClinicCapMin: 2})
		}
		ctx := schedcontext.New(people, blocks, []schedcontext.RotationTemplate{{ID: "t1"}}, nil, nil)
		res := presolver.Run(ctx, presolver.Options{})
		Expect(res.Feasible).To(BeTrue())
		Expect(res.Issues).To(BeEmpty())
	})

	It("is infeasible when a block has zero eligible residents", func() {
		start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		blocks := weekdayBlocks(start, 1)
		person := schedcontext.Person{ID: "r1", Kind: schedcontext.KindResident}
		absence := schedcontext.Absence{PersonID: "r1", Start: start, End: start, IsBlocking: true}
		ctx := schedcontext.New([]schedcontext.Person{person}, blocks, nil, []schedcontext.Absence{absence}, nil)
		res := presolver.Run(ctx, presolver.Options{})
		Expect(res.Feasible).To(BeFalse())
		Expect(res.Issues).NotTo(BeEmpty())
	})

	It("buckets a large search space as at least high complexity", func() {
		start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		blocks := weekdayBlocks(start, 60)
		var people []schedcontext.Person
		for i := 0; i < 40; i++ {
			people = append(people, schedcontext.Person{ID: string(rune('a' + i%26)) + string(rune('0' + i/26)), Kind: schedcontext.KindResident})
		}
		templates := []schedcontext.RotationTemplate{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}}
		ctx := schedcontext.New(people, blocks, templates, nil, nil)
		res := presolver.Run(ctx, presolver.Options{})
		Expect(res.ComplexityEstimate).NotTo(Equal(presolver.ComplexityLow))
	})
})

var _ = Describe("Relax", func() {
	It("converts issues into warnings and reports feasible", func() {
		base := presolver.Result{Feasible: false, Issues: []string{"block b1 has 0 eligible residents"}}
		relaxed := presolver.Relax(base)
		Expect(relaxed.Feasible).To(BeTrue())
		Expect(relaxed.Issues).To(BeEmpty())
		Expect(relaxed.Warnings).To(ContainElement("block b1 has 0 eligible residents"))
	})
})
