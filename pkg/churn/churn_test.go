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

package churn_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/residency-sched/engine/pkg/churn"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

func TestChurn(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Churn")
}

func primary(personID, blockID, templateID string) schedcontext.Assignment {
	return schedcontext.Assignment{PersonID: personID, BlockID: blockID, TemplateID: templateID, Role: schedcontext.RolePrimary}
}

var _ = Describe("Score", func() {
	It("reports a rigidity of 1, a fairness of 1, and zero distance for an identical schedule", func() {
		prev := []schedcontext.Assignment{primary("r1", "b1", "t1"), primary("r2", "b2", "t1")}
		next := []schedcontext.Assignment{primary("r1", "b1", "t1"), primary("r2", "b2", "t1")}
		report := churn.Score(prev, next, 1.0, 0.5, 0.9)
		Expect(report.HammingDistance).To(Equal(0))
		Expect(report.RigidityScore).To(Equal(1.0))
		Expect(report.Fairness).To(Equal(1.0))
		Expect(report.Severity).To(Equal(churn.SeverityMinimal))
	})

	It("reports full churn and zero rigidity when every triple is replaced", func() {
		prev := []schedcontext.Assignment{primary("r1", "b1", "t1"), primary("r2", "b2", "t1")}
		next := []schedcontext.Assignment{primary("r1", "b3", "t1"), primary("r2", "b4", "t1")}
		report := churn.Score(prev, next, 1.0, 0.5, 0.9)
		// maxDistance is |prevSet|+|nextSet| = 2+2 = 4, matching the full
		// union size here since the two snapshots share no triples.
		Expect(report.HammingDistance).To(Equal(4))
		Expect(report.TotalTriples).To(Equal(4))
		Expect(report.RigidityScore).To(Equal(0.0))
		Expect(report.Severity).To(Equal(churn.SeverityCritical))
	})

	It("uses |new|+|current| rather than |union| as the rigidity denominator", func() {
		// prev and next share one triple and each contribute one unique
		// triple: |union|=3 but |prev|+|next|=2+2=4, so the two denominators
		// disagree and the rigidity must follow the latter.
		prev := []schedcontext.Assignment{primary("r1", "b1", "t1"), primary("r2", "b2", "t1")}
		next := []schedcontext.Assignment{primary("r1", "b1", "t1"), primary("r2", "b3", "t1")}
		report := churn.Score(prev, next, 1.0, 0.5, 0.9)
		Expect(report.TotalTriples).To(Equal(3))
		Expect(report.HammingDistance).To(Equal(2))
		Expect(report.RigidityScore).To(BeNumerically("~", 1.0-2.0/4.0, 1e-9))
	})

	It("only counts primary-role assignments toward the triple set", func() {
		prev := []schedcontext.Assignment{primary("r1", "b1", "t1")}
		next := []schedcontext.Assignment{
			primary("r1", "b1", "t1"),
			{PersonID: "f1", BlockID: "b1", TemplateID: "t1", Role: schedcontext.RoleSupervising},
		}
		report := churn.Score(prev, next, 1.0, 0.5, 0.9)
		Expect(report.HammingDistance).To(Equal(0))
		Expect(report.TotalTriples).To(Equal(1))
	})

	It("computes the time-crystal objective as the three-term weighted blend", func() {
		prev := []schedcontext.Assignment{primary("r1", "b1", "t1")}
		next := []schedcontext.Assignment{primary("r1", "b2", "t1")}
		alpha, beta, constraintScore := 0.3, 0.2, 0.8
		report := churn.Score(prev, next, alpha, beta, constraintScore)
		expected := (1-alpha-beta)*constraintScore + alpha*report.RigidityScore + beta*report.Fairness
		Expect(report.Objective).To(BeNumerically("~", expected, 1e-9))
	})
})
