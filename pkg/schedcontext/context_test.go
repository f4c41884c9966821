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

package schedcontext_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/residency-sched/engine/pkg/schedcontext"
)

func TestSchedContext(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SchedContext")
}

var _ = Describe("Context", func() {
	It("sorts blocks by date then AM before PM", func() {
		day2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
		day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		blocks := []schedcontext.Block{
			{ID: "b-day2-pm", Date: day2, TimeOfDay: schedcontext.PM},
			{ID: "b-day1-pm", Date: day1, TimeOfDay: schedcontext.PM},
			{ID: "b-day1-am", Date: day1, TimeOfDay: schedcontext.AM},
		}
		ctx := schedcontext.New(nil, blocks, nil, nil, nil)
		ids := make([]string, len(ctx.Blocks()))
		for i, b := range ctx.Blocks() {
			ids[i] = b.ID
		}
		Expect(ids).To(Equal([]string{"b-day1-am", "b-day1-pm", "b-day2-pm"}))
	})

	It("treats unknown (person,block) pairs as unavailable", func() {
		ctx := schedcontext.New(nil, nil, nil, nil, nil)
		Expect(ctx.Availability("nobody", "nowhere").Available).To(BeFalse())
	})

	It("removes availability for the full span of a blocking absence", func() {
		d := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		p := schedcontext.Person{ID: "r1", Kind: schedcontext.KindResident}
		b := schedcontext.Block{ID: "blk1", Date: d, TimeOfDay: schedcontext.AM}
		absence := schedcontext.Absence{PersonID: "r1", Start: d, End: d, IsBlocking: true}
		ctx := schedcontext.New([]schedcontext.Person{p}, []schedcontext.Block{b}, nil, []schedcontext.Absence{absence}, nil)
		Expect(ctx.Availability("r1", "blk1").Available).To(BeFalse())
	})

	It("separates residents and faculty and preserves existing assignments", func() {
		r := schedcontext.Person{ID: "r1", Kind: schedcontext.KindResident}
		f := schedcontext.Person{ID: "f1", Kind: schedcontext.KindFaculty}
		existing := []schedcontext.Assignment{{ID: "a1", PersonID: "r1", BlockID: "b1", Role: schedcontext.RolePrimary}}
		ctx := schedcontext.New([]schedcontext.Person{r, f}, nil, nil, nil, existing)
		Expect(ctx.Residents()).To(HaveLen(1))
		Expect(ctx.Faculty()).To(HaveLen(1))
		Expect(ctx.ExistingAssignments()).To(Equal(existing))
	})
})

var _ = Describe("Block.IsWeekend", func() {
	It("reports Saturday and Sunday as weekend", func() {
		sat := schedcontext.Block{Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)} // a Saturday
		sun := schedcontext.Block{Date: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)}
		mon := schedcontext.Block{Date: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)}
		Expect(sat.IsWeekend()).To(BeTrue())
		Expect(sun.IsWeekend()).To(BeTrue())
		Expect(mon.IsWeekend()).To(BeFalse())
	})
})
