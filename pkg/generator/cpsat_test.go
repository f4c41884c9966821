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

package generator_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/residency-sched/engine/pkg/generator"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

var _ = Describe("CPSAT.Generate", func() {
	It("picks exactly one primary winner per slot, breaking equal-score ties lexicographically", func() {
		sc, _ := clinicFixture(1)
		c := generator.NewCPSAT()

		cand, err := c.Generate(context.Background(), sc, generator.Params{})
		Expect(err).NotTo(HaveOccurred())
		Expect(cand.Algorithm).To(Equal("cpsat"))
		Expect(cand.Assignments).To(HaveLen(1))
		Expect(cand.Assignments[0].PersonID).To(Equal("r1"))
		Expect(cand.Assignments[0].Role).To(Equal(schedcontext.RolePrimary))
	})

	It("skips weekend blocks under the default block-template resolver", func() {
		start := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) // a Saturday
		blocks := []schedcontext.Block{{ID: "sat", Date: start, TimeOfDay: schedcontext.AM}}
		people := []schedcontext.Person{{ID: "r1", Kind: schedcontext.KindResident}}
		templates := []schedcontext.RotationTemplate{{ID: "clinic", ActivityType: schedcontext.ActivityClinic}}
		sc := schedcontext.New(people, blocks, templates, nil, nil)

		c := generator.NewCPSAT()
		cand, err := c.Generate(context.Background(), sc, generator.Params{})
		Expect(err).NotTo(HaveOccurred())
		Expect(cand.Assignments).To(BeEmpty())
	})

	It("excludes a resident already pre-loaded at the 80-hour weekly ceiling", func() {
		start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // a Monday
		target := schedcontext.Block{ID: "b1", Date: start, TimeOfDay: schedcontext.AM}
		filler := schedcontext.Block{ID: "filler", Date: start.AddDate(0, 0, 1), TimeOfDay: schedcontext.AM}
		people := []schedcontext.Person{
			{ID: "r1", Kind: schedcontext.KindResident},
			{ID: "r2", Kind: schedcontext.KindResident},
		}
		templates := []schedcontext.RotationTemplate{{ID: "clinic", ActivityType: schedcontext.ActivityClinic}}

		// r1 is pre-loaded with 21 primary assignments stacked onto "filler"
		// (84h, all in the same ISO week as the target block), so the branch
		// scorer must reject r1 and r2 must win the only open slot.
		var existing []schedcontext.Assignment
		for i := 0; i < 21; i++ {
			existing = append(existing, schedcontext.Assignment{
				ID: "e" + string(rune('a'+i)), PersonID: "r1", BlockID: filler.ID, TemplateID: "clinic", Role: schedcontext.RolePrimary,
			})
		}
		sc := schedcontext.New(people, []schedcontext.Block{target, filler}, templates, nil, existing)

		c := generator.NewCPSAT()
		cand, err := c.Generate(context.Background(), sc, generator.Params{})
		Expect(err).NotTo(HaveOccurred())

		var winner string
		for _, a := range cand.Assignments {
			if a.BlockID == target.ID {
				winner = a.PersonID
			}
		}
		Expect(winner).To(Equal("r2"))
	})
})
