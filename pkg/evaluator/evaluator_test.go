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

package evaluator_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/residency-sched/engine/pkg/constraints"
	"github.com/residency-sched/engine/pkg/evaluator"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

func TestEvaluator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Evaluator")
}

var _ = Describe("Evaluate", func() {
	It("invalidates a candidate that violates an active hard constraint", func() {
		start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		var blocks []schedcontext.Block
		var assignments []schedcontext.Assignment
		for i := 0; i < 7; i++ {
			d := start.AddDate(0, 0, i)
			for _, tod := range []schedcontext.TimeOfDay{schedcontext.AM, schedcontext.PM} {
				b := schedcontext.Block{ID: d.Format("2006-01-02") + string(tod), Date: d, TimeOfDay: tod}
				blocks = append(blocks, b)
				assignments = append(assignments, schedcontext.Assignment{
					PersonID: "r1", BlockID: b.ID, TemplateID: "t1", Role: schedcontext.RolePrimary,
				})
			}
		}
		person := schedcontext.Person{ID: "r1", Kind: schedcontext.KindResident}
		sc := schedcontext.New([]schedcontext.Person{person}, blocks, nil, nil, nil)

		// r1 works all seven days, which breaks the one-day-off-in-seven rule.
		reg := constraints.NewRegistry(constraints.NewAvailability(), constraints.NewOneInSevenRule())
		res, err := evaluator.Evaluate(context.Background(), reg, assignments, sc)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Valid).To(BeFalse())
		Expect(res.Score).To(Equal(0.0))
		Expect(res.Violations).NotTo(BeEmpty())
	})

	It("scores a candidate with only soft-constraint penalties between 0 and 1", func() {
		person1 := schedcontext.Person{ID: "r1", Kind: schedcontext.KindResident}
		person2 := schedcontext.Person{ID: "r2", Kind: schedcontext.KindResident}
		d := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		blocks := []schedcontext.Block{
			{ID: "b1", Date: d, TimeOfDay: schedcontext.AM},
			{ID: "b2", Date: d.AddDate(0, 0, 1), TimeOfDay: schedcontext.AM},
			{ID: "b3", Date: d.AddDate(0, 0, 2), TimeOfDay: schedcontext.AM},
		}
		assignments := []schedcontext.Assignment{
			{PersonID: "r1", BlockID: "b1", TemplateID: "t1", Role: schedcontext.RolePrimary},
			{PersonID: "r1", BlockID: "b2", TemplateID: "t1", Role: schedcontext.RolePrimary},
			{PersonID: "r1", BlockID: "b3", TemplateID: "t1", Role: schedcontext.RolePrimary},
		}
		sc := schedcontext.New([]schedcontext.Person{person1, person2}, blocks, nil, nil, nil)

		reg := constraints.NewRegistry(constraints.NewAvailability(), constraints.NewEquity())
		res, err := evaluator.Evaluate(context.Background(), reg, assignments, sc)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Valid).To(BeTrue())
		Expect(res.Score).To(BeNumerically(">", 0))
		Expect(res.Score).To(BeNumerically("<=", 1))
		Expect(res.PenaltiesByConstraint).To(HaveKey(constraints.NameEquity))
		Expect(res.FitnessVector.Fairness).To(BeNumerically(">", 0))
		Expect(res.FitnessVector.Fairness).To(BeNumerically("<=", 1))
	})

	It("keeps a fully-satisfied candidate at score 1", func() {
		sc := schedcontext.New(nil, nil, nil, nil, nil)
		reg := constraints.NewRegistry(constraints.NewAvailability())
		res, err := evaluator.Evaluate(context.Background(), reg, nil, sc)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Valid).To(BeTrue())
		Expect(res.Score).To(Equal(1.0))
	})
})
