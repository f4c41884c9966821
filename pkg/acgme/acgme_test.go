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

package acgme_test

import (
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/residency-sched/engine/pkg/acgme"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

func TestACGME(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ACGME")
}

var _ = Describe("Validate", func() {
	It("reports no violations for a lightly-scheduled resident", func() {
		start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		var blocks []schedcontext.Block
		var assignments []schedcontext.Assignment
		for i := 0; i < 5; i++ {
			d := start.AddDate(0, 0, i)
			b := schedcontext.Block{ID: d.Format("2006-01-02"), Date: d, TimeOfDay: schedcontext.AM}
			blocks = append(blocks, b)
			assignments = append(assignments, schedcontext.Assignment{
				PersonID: "r1", BlockID: b.ID, TemplateID: "t1", Role: schedcontext.RolePrimary,
			})
		}
		person := schedcontext.Person{ID: "r1", Kind: schedcontext.KindResident}
		ctx := schedcontext.New([]schedcontext.Person{person}, blocks, nil, nil, nil)

		summary := acgme.Validate(assignments, ctx)
		Expect(summary.Compliant).To(BeTrue())
		Expect(summary.Violations).To(BeEmpty())
	})

	It("flags an 80-hour violation when a window's logged hours exceed the limit", func() {
		start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		var blocks []schedcontext.Block
		var assignments []schedcontext.Assignment
		for i := 0; i < 7; i++ {
			d := start.AddDate(0, 0, i)
			for _, tod := range []schedcontext.TimeOfDay{schedcontext.AM, schedcontext.PM} {
				b := schedcontext.Block{ID: d.Format("2006-01-02") + string(tod), Date: d, TimeOfDay: tod}
				blocks = append(blocks, b)
				for t := 0; t < 3; t++ {
					assignments = append(assignments, schedcontext.Assignment{
						PersonID: "r1", BlockID: b.ID, TemplateID: fmt.Sprintf("t%d", t), Role: schedcontext.RolePrimary,
					})
				}
			}
		}
		person := schedcontext.Person{ID: "r1", Kind: schedcontext.KindResident}
		ctx := schedcontext.New([]schedcontext.Person{person}, blocks, nil, nil, nil)

		summary := acgme.Validate(assignments, ctx)
		Expect(summary.Compliant).To(BeFalse())
		Expect(summary.ByKind[acgme.EightyHourViolation]).To(BeNumerically(">", 0))
		Expect(summary.ByPerson["r1"]).To(BeNumerically(">", 0))
	})

	It("flags a one-in-seven violation when every day in a window is worked", func() {
		start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		var blocks []schedcontext.Block
		var assignments []schedcontext.Assignment
		for i := 0; i < 7; i++ {
			d := start.AddDate(0, 0, i)
			b := schedcontext.Block{ID: d.Format("2006-01-02"), Date: d, TimeOfDay: schedcontext.AM}
			blocks = append(blocks, b)
			assignments = append(assignments, schedcontext.Assignment{
				PersonID: "r1", BlockID: b.ID, TemplateID: "t1", Role: schedcontext.RolePrimary,
			})
		}
		person := schedcontext.Person{ID: "r1", Kind: schedcontext.KindResident}
		ctx := schedcontext.New([]schedcontext.Person{person}, blocks, nil, nil, nil)

		summary := acgme.Validate(assignments, ctx)
		Expect(summary.Compliant).To(BeFalse())
		Expect(summary.ByKind[acgme.OneInSevenViolation]).To(BeNumerically(">", 0))
	})

	It("flags a supervision-ratio violation when too few faculty cover junior residents", func() {
		d := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		block := schedcontext.Block{ID: "b1", Date: d, TimeOfDay: schedcontext.AM}
		template := schedcontext.RotationTemplate{ID: "t1", SupervisionRatio: 2}
		juniors := []schedcontext.Person{
			{ID: "r1", Kind: schedcontext.KindResident, PGYLevel: 1},
			{ID: "r2", Kind: schedcontext.KindResident, PGYLevel: 1},
			{ID: "r3", Kind: schedcontext.KindResident, PGYLevel: 1},
		}
		people := append(append([]schedcontext.Person{}, juniors...), schedcontext.Person{ID: "f1", Kind: schedcontext.KindFaculty})
		var assignments []schedcontext.Assignment
		for _, j := range juniors {
			assignments = append(assignments, schedcontext.Assignment{
				PersonID: j.ID, BlockID: block.ID, TemplateID: template.ID, Role: schedcontext.RolePrimary,
			})
		}
		assignments = append(assignments, schedcontext.Assignment{
			PersonID: "f1", BlockID: block.ID, TemplateID: template.ID, Role: schedcontext.RoleSupervising,
		})
		ctx := schedcontext.New(people, []schedcontext.Block{block}, []schedcontext.RotationTemplate{template}, nil, nil)

		summary := acgme.Validate(assignments, ctx)
		Expect(summary.Compliant).To(BeFalse())
		Expect(summary.ByKind[acgme.SupervisionRatioViolation]).To(BeNumerically(">", 0))
	})
})
