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

package outbox_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/residency-sched/engine/pkg/outbox"
)

func TestOutbox(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Outbox")
}

type fakePublisher struct {
	mu      sync.Mutex
	fail    bool
	calls   int
	payload []outbox.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg outbox.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.payload = append(f.payload, msg)
	if f.fail {
		return context.DeadlineExceeded
	}
	return nil
}

var _ = Describe("Store", func() {
	It("assigns strictly increasing per-aggregate sequence numbers", func() {
		s := outbox.NewStore()
		m1 := s.Append("schedule_run", "agg-1", "generated", nil)
		m2 := s.Append("schedule_run", "agg-1", "edited", nil)
		m3 := s.Append("schedule_run", "agg-2", "generated", nil)
		Expect(m1.Sequence).To(Equal(1))
		Expect(m2.Sequence).To(Equal(2))
		Expect(m3.Sequence).To(Equal(1))
	})
})

var _ = Describe("Relay", func() {
	It("publishes a pending message and marks it published", func() {
		s := outbox.NewStore()
		s.Append("schedule_run", "agg-1", "generated", "payload")
		pub := &fakePublisher{}
		relay := outbox.NewRelay(s, pub, 3, time.Minute, 10, 1000)

		Expect(relay.PollOnce(context.Background())).To(Succeed())
		Expect(pub.calls).To(Equal(1))
	})

	It("backs off a failing message instead of re-publishing it on the next poll", func() {
		s := outbox.NewStore()
		s.Append("schedule_run", "agg-1", "generated", "payload")
		pub := &fakePublisher{fail: true}
		relay := outbox.NewRelay(s, pub, 5, time.Minute, 10, 1000)

		Expect(relay.PollOnce(context.Background())).To(Succeed())
		Expect(pub.calls).To(Equal(1))

		// A second immediate poll should not re-publish: NextRetryAt is in the future.
		Expect(relay.PollOnce(context.Background())).To(Succeed())
		Expect(pub.calls).To(Equal(1))
	})

	It("reaps published messages past the retention window", func() {
		s := outbox.NewStore()
		s.Append("schedule_run", "agg-1", "generated", "payload")
		pub := &fakePublisher{}
		relay := outbox.NewRelay(s, pub, 3, time.Minute, 10, 1000)
		Expect(relay.PollOnce(context.Background())).To(Succeed())

		removed := relay.Reap(time.Now().Add(3*time.Hour), time.Hour, time.Hour)
		Expect(removed).To(Equal(1))
	})
})
