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

// Package approval implements the hash-chained Approval Chain of §4.10: an
// append-only log where each record's hash binds it to its predecessor, plus
// periodic Merkle-root checkpoints ("seal_day" records).
package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ActorKind distinguishes who performed an action.
type ActorKind string

const (
	ActorHuman  ActorKind = "human"
	ActorSystem ActorKind = "system"
	ActorAI     ActorKind = "ai"
)

// Action is the closed set of schedule-affecting mutations that must be recorded.
type Action string

const (
	ActionGenerate Action = "schedule_generated"
	ActionEdit     Action = "schedule_edited"
	ActionSwap     Action = "schedule_swapped"
	ActionApprove  Action = "schedule_approved"
	ActionSeal     Action = "seal_day"
)

// Record is the ApprovalRecord value object of §3.
type Record struct {
	ChainID     string
	SequenceNum int
	PrevHash    string
	RecordHash  string
	Payload     any
	Action      Action
	ActorID     string
	ActorKind   ActorKind
	Reason      string
	Timestamp   time.Time
}

// Chain is an in-memory, append-only hash chain scoped to one chain_id.
type Chain struct {
	mu      sync.Mutex
	id      string
	records []Record
}

func NewChain(id string) *Chain {
	return &Chain{id: id}
}

// Append computes record_hash = SHA-256(canonical(prev_hash, payload,
// actor_id, actor_kind, action, timestamp, reason)) and appends a new record.
// The genesis record has sequence_num = 0 and an empty prev_hash.
func (c *Chain) Append(action Action, payload any, actorID string, actorKind ActorKind, reason string, ts time.Time) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := 0
	prevHash := ""
	if n := len(c.records); n > 0 {
		seq = c.records[n-1].SequenceNum + 1
		prevHash = c.records[n-1].RecordHash
	}

	hash, err := recordHash(prevHash, payload, actorID, actorKind, action, ts, reason)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ChainID:     c.id,
		SequenceNum: seq,
		PrevHash:    prevHash,
		RecordHash:  hash,
		Payload:     payload,
		Action:      action,
		ActorID:     actorID,
		ActorKind:   actorKind,
		Reason:      reason,
		Timestamp:   ts,
	}
	c.records = append(c.records, rec)
	return rec, nil
}

// Records returns a copy of every record appended so far.
func (c *Chain) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record{}, c.records...)
}

func recordHash(prevHash string, payload any, actorID string, actorKind ActorKind, action Action, ts time.Time, reason string) (string, error) {
	canonical := struct {
		PrevHash  string `json:"prev_hash"`
		Payload   any    `json:"payload"`
		ActorID   string `json:"actor_id"`
		ActorKind string `json:"actor_kind"`
		Action    string `json:"action"`
		Timestamp string `json:"timestamp"`
		Reason    string `json:"reason"`
	}{
		PrevHash:  prevHash,
		Payload:   payload,
		ActorID:   actorID,
		ActorKind: string(actorKind),
		Action:    string(action),
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Reason:    reason,
	}
	b, err := canonicalJSON(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON marshals v, then re-marshals through a sorted-key map tree so
// the byte representation is stable regardless of struct field order.
func canonicalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, err
	}
	return json.Marshal(sortTree(tree))
}

func sortTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = sortTree(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortTree(e)
		}
		return out
	default:
		return v
	}
}

// Verify walks the chain checking sequence contiguity, prev_hash linkage,
// and each record's recomputed hash.
func Verify(records []Record) error {
	for i, rec := range records {
		if rec.SequenceNum != i {
			return fmt.Errorf("approval chain %s: sequence gap at position %d (got %d)", rec.ChainID, i, rec.SequenceNum)
		}
		wantPrev := ""
		if i > 0 {
			wantPrev = records[i-1].RecordHash
		}
		if rec.PrevHash != wantPrev {
			return fmt.Errorf("approval chain %s: broken prev_hash linkage at sequence %d", rec.ChainID, rec.SequenceNum)
		}
		hash, err := recordHash(rec.PrevHash, rec.Payload, rec.ActorID, rec.ActorKind, rec.Action, rec.Timestamp, rec.Reason)
		if err != nil {
			return err
		}
		if hash != rec.RecordHash {
			return fmt.Errorf("approval chain %s: hash mismatch at sequence %d", rec.ChainID, rec.SequenceNum)
		}
	}
	return nil
}

// MerkleRoot folds a day's record hashes into a single root, used by the
// seal_day checkpoint record. Odd levels duplicate the last node, the
// standard Bitcoin-style padding rule.
func MerkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		return ""
	}
	level := make([]string, len(hashes))
	copy(level, hashes)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			sum := sha256.Sum256([]byte(level[i] + level[i+1]))
			next = append(next, hex.EncodeToString(sum[:]))
		}
		level = next
	}
	return level[0]
}

// SealDay appends a seal_day checkpoint record whose payload is the Merkle
// root of dayHashes.
func (c *Chain) SealDay(dayHashes []string, actorID string, ts time.Time) (Record, error) {
	root := MerkleRoot(dayHashes)
	return c.Append(ActionSeal, map[string]any{"merkle_root": root, "count": len(dayHashes)}, actorID, ActorSystem, "daily checkpoint", ts)
}
