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

// Package outbox implements the transactional outbox leg of §4.10: messages
// are written alongside the business mutation, then relayed to the message
// bus by a poller with bounded backoff.
package outbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"
)

// Status is an OutboxMessage's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// Message is the OutboxMessage value object of §3.
type Message struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Sequence      int
	Payload       any
	Status        Status
	RetryCount    int
	NextRetryAt   time.Time
	ProcessingAt  time.Time
	PublishedAt   time.Time
}

// Publisher delivers a message to the message bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Store is an in-memory outbox table. Writing a message is expected to
// happen in the same transaction as the business mutation in a real
// deployment; here Append is what that transaction boundary calls.
type Store struct {
	mu       sync.Mutex
	messages map[string]*Message
	seq      map[string]int // aggregate_id -> last assigned sequence
}

func NewStore() *Store {
	return &Store{messages: map[string]*Message{}, seq: map[string]int{}}
}

// Append assigns the next strictly-increasing sequence number for
// aggregateID and stores msg as pending.
func (s *Store) Append(aggregateType, aggregateID, eventType string, payload any) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[aggregateID]++
	msg := Message{
		ID:            fmt.Sprintf("%s-%d", aggregateID, s.seq[aggregateID]),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Sequence:      s.seq[aggregateID],
		Payload:       payload,
		Status:        StatusPending,
	}
	s.messages[msg.ID] = &msg
	return msg
}

// pending returns pending messages and failed messages whose NextRetryAt has
// elapsed, ordered by (aggregate_id, sequence) so the relay processes each
// aggregate's events in order.
func (s *Store) pending(now time.Time) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, m := range s.messages {
		if m.Status == StatusPending || (m.Status == StatusFailed && !m.NextRetryAt.After(now)) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AggregateID != out[j].AggregateID {
			return out[i].AggregateID < out[j].AggregateID
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// Relay polls for due messages and publishes them, governed by a rate
// limiter (poll cadence) and bounded retry with exponential backoff.
type Relay struct {
	Store       *Store
	Publisher   Publisher
	Limiter     *rate.Limiter
	MaxRetries  int
	StuckTimeout time.Duration
	BatchSize   int
}

func NewRelay(store *Store, pub Publisher, maxRetries int, stuckTimeout time.Duration, batchSize int, pollsPerSecond float64) *Relay {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if stuckTimeout <= 0 {
		stuckTimeout = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if pollsPerSecond <= 0 {
		pollsPerSecond = 1
	}
	return &Relay{
		Store:        store,
		Publisher:    pub,
		Limiter:      rate.NewLimiter(rate.Limit(pollsPerSecond), 1),
		MaxRetries:   maxRetries,
		StuckTimeout: stuckTimeout,
		BatchSize:    batchSize,
	}
}

// backoffSeconds is §4.10's schedule: min(300, 10 * 2^(retry-1)).
func backoffSeconds(retryCount int) int {
	if retryCount < 1 {
		retryCount = 1
	}
	secs := 10
	for i := 1; i < retryCount; i++ {
		secs *= 2
	}
	if secs > 300 {
		secs = 300
	}
	return secs
}

// PollOnce waits for the rate limiter, then processes up to BatchSize due
// messages, reclaiming any message stuck in "processing" past StuckTimeout.
func (r *Relay) PollOnce(ctx context.Context) error {
	if err := r.Limiter.Wait(ctx); err != nil {
		return err
	}

	now := time.Now()
	r.reclaimStuck(now)

	due := r.Store.pending(now)
	// A message whose retries are exhausted is a dead letter: it stays
	// failed and is never handed to the publisher again.
	r.Store.mu.Lock()
	live := due[:0]
	for _, m := range due {
		if m.RetryCount < r.MaxRetries {
			live = append(live, m)
		}
	}
	r.Store.mu.Unlock()
	due = live
	if len(due) > r.BatchSize {
		due = due[:r.BatchSize]
	}

	for _, msg := range due {
		r.Store.mu.Lock()
		msg.Status = StatusProcessing
		msg.ProcessingAt = now
		r.Store.mu.Unlock()

		err := retry.Do(func() error {
			return r.Publisher.Publish(ctx, *msg)
		}, retry.Attempts(1))

		r.Store.mu.Lock()
		if err != nil {
			msg.RetryCount++
			if msg.RetryCount >= r.MaxRetries {
				msg.Status = StatusFailed
			} else {
				msg.Status = StatusFailed
				msg.NextRetryAt = now.Add(time.Duration(backoffSeconds(msg.RetryCount)) * time.Second)
			}
		} else {
			msg.Status = StatusPublished
			msg.PublishedAt = now
		}
		r.Store.mu.Unlock()
	}
	return nil
}

func (r *Relay) reclaimStuck(now time.Time) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	for _, m := range r.Store.messages {
		if m.Status == StatusProcessing && now.Sub(m.ProcessingAt) > r.StuckTimeout {
			m.Status = StatusPending
		}
	}
}

// Reap removes published messages older than archiveAfter+deleteAfter from
// the store, approximating §4.10's "archived after 24h, deleted after 30d"
// retention (this in-memory store has no separate archive tier, so reaping
// is a straight delete once both windows have elapsed).
func (r *Relay) Reap(now time.Time, archiveAfter, deleteAfter time.Duration) int {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	removed := 0
	for id, m := range r.Store.messages {
		if m.Status != StatusPublished {
			continue
		}
		if now.Sub(m.PublishedAt) > archiveAfter+deleteAfter {
			delete(r.Store.messages, id)
			removed++
		}
	}
	return removed
}
