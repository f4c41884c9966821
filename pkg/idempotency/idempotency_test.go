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

package idempotency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/residency-sched/engine/pkg/idempotency"
)

func TestIdempotency(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Idempotency")
}

var _ = Describe("CanonicalHash", func() {
	It("is stable regardless of map key order", func() {
		a, err := idempotency.CanonicalHash(map[string]any{"b": 2, "a": 1})
		Expect(err).NotTo(HaveOccurred())
		b, err := idempotency.CanonicalHash(map[string]any{"a": 1, "b": 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(b))
	})

	It("differs for differing content", func() {
		a, _ := idempotency.CanonicalHash(map[string]any{"a": 1})
		b, _ := idempotency.CanonicalHash(map[string]any{"a": 2})
		Expect(a).NotTo(Equal(b))
	})
})

var _ = Describe("Store", func() {
	It("admits a new pending record on first use", func() {
		s := idempotency.NewStore(time.Minute)
		rec, replayed, err := s.Begin("key1", "hash1")
		Expect(err).NotTo(HaveOccurred())
		Expect(replayed).To(BeFalse())
		Expect(rec.Status).To(Equal(idempotency.StatusPending))
	})

	It("rejects a concurrent request for the same key as in-progress", func() {
		s := idempotency.NewStore(time.Minute)
		_, _, err := s.Begin("key1", "hash1")
		Expect(err).NotTo(HaveOccurred())
		_, _, err = s.Begin("key1", "hash1")
		Expect(err).To(Equal(idempotency.ErrInProgress))
	})

	It("rejects a reused key with a different body hash as a conflict", func() {
		s := idempotency.NewStore(time.Minute)
		_, _, err := s.Begin("key1", "hash1")
		Expect(err).NotTo(HaveOccurred())
		_, _, err = s.Begin("key1", "hash2")
		Expect(err).To(Equal(idempotency.ErrConflict))
	})

	It("replays the cached response for a completed request with the same body hash", func() {
		s := idempotency.NewStore(time.Minute)
		_, _, err := s.Begin("key1", "hash1")
		Expect(err).NotTo(HaveOccurred())
		s.Complete("key1", "the response", false)

		rec, replayed, err := s.Begin("key1", "hash1")
		Expect(err).NotTo(HaveOccurred())
		Expect(replayed).To(BeTrue())
		Expect(rec.ResponseBody).To(Equal("the response"))
	})

	It("allows a fresh attempt after a failed request", func() {
		s := idempotency.NewStore(time.Minute)
		_, _, err := s.Begin("key1", "hash1")
		Expect(err).NotTo(HaveOccurred())
		s.Complete("key1", nil, true)

		rec, replayed, err := s.Begin("key1", "hash1")
		Expect(err).NotTo(HaveOccurred())
		Expect(replayed).To(BeFalse())
		Expect(rec.Status).To(Equal(idempotency.StatusPending))
	})

	It("allows a new request once the record has expired", func() {
		s := idempotency.NewStore(time.Millisecond)
		_, _, err := s.Begin("key1", "hash1")
		Expect(err).NotTo(HaveOccurred())
		s.Complete("key1", "stale", false)
		time.Sleep(5 * time.Millisecond)

		_, replayed, err := s.Begin("key1", "hash1")
		Expect(err).NotTo(HaveOccurred())
		Expect(replayed).To(BeFalse())
	})

	It("sweeps out expired records", func() {
		s := idempotency.NewStore(time.Millisecond)
		_, _, _ = s.Begin("key1", "hash1")
		time.Sleep(5 * time.Millisecond)
		Expect(s.Sweep(10)).To(Equal(1))
	})

	It("collapses concurrent Run calls sharing a key into a single fn invocation", func() {
		s := idempotency.NewStore(time.Minute)
		var calls int32
		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, _ = s.Run(context.Background(), "shared-key", func() (any, error) {
					mu.Lock()
					calls++
					mu.Unlock()
					time.Sleep(10 * time.Millisecond)
					return "ok", nil
				})
			}()
		}
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		Expect(calls).To(BeNumerically("<", 20))
	})
})
