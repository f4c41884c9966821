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

// Package explain implements the Explainability Recorder (C9): for every
// primary assignment the generator selects, it builds a DecisionExplanation
// carrying the alternatives considered, the constraint outcomes, a
// confidence score, and a tamper-evident audit hash.
package explain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/residency-sched/engine/pkg/constraints"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

// ConstraintEvaluation is one constraint's outcome against a specific candidate.
type ConstraintEvaluation struct {
	Name    string
	Hard    bool
	Status  string // satisfied | violated | not_applicable
	Weight  float64
	Penalty float64
	Details map[string]any
}

// AlternativeCandidate is a runner-up the recorder keeps for transparency.
type AlternativeCandidate struct {
	PersonID         string
	Score            float64
	RejectionReasons []string
	Violations       []constraints.Violation
}

// ConfidenceLevel buckets the numeric confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Confidence is the §4.9 scored+leveled confidence result.
type Confidence struct {
	Level   ConfidenceLevel
	Score   float64
	Factors []string
}

// DecisionExplanation is the per-assignment audit record of §3/§4.9.
type DecisionExplanation struct {
	BlockID           string
	TemplateID        string
	SelectedPersonID  string
	EligibleCount     int
	ActiveConstraints []string
	Score             float64
	Breakdown         map[string]float64
	ConstraintResults []ConstraintEvaluation
	Alternatives      []AlternativeCandidate
	Confidence        Confidence
	MarginVsNextBest  float64
	TradeOffSummary   string
	Algorithm         string
	SolverVersion     string
	Timestamp         time.Time
	RandomSeed        *int64
	AuditHash         string
}

// CandidateScore is one scored candidate the generator considered for a slot.
type CandidateScore struct {
	PersonID   string
	Score      float64
	Violations []constraints.Violation
}

// Input bundles everything the generator hands the recorder for one
// primary-assignment decision (§4.9).
type Input struct {
	SelectedPersonID string
	Block            schedcontext.Block
	TemplateID       string
	AllCandidates    []CandidateScore
	ActiveConstraints []string
	ConstraintResults []ConstraintEvaluation
	AssignmentCounts map[string]int
	Algorithm        string
	SolverVersion    string
	RandomSeed       *int64
}

const solverVersionUnset = "unknown"

// Record builds a DecisionExplanation from the generator's raw inputs.
func Record(in Input) DecisionExplanation {
	sorted := append([]CandidateScore{}, in.AllCandidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var selectedScore float64
	var nextBest float64
	for i, c := range sorted {
		if c.PersonID == in.SelectedPersonID {
			selectedScore = c.Score
			if i+1 < len(sorted) {
				nextBest = sorted[i+1].Score
			}
			break
		}
	}
	margin := selectedScore - nextBest

	var alternatives []AlternativeCandidate
	for _, c := range sorted {
		if c.PersonID == in.SelectedPersonID {
			continue
		}
		if len(alternatives) >= 3 {
			break
		}
		var reasons []string
		for _, v := range c.Violations {
			reasons = append(reasons, v.Message)
		}
		alternatives = append(alternatives, AlternativeCandidate{
			PersonID:         c.PersonID,
			Score:            c.Score,
			RejectionReasons: reasons,
			Violations:       c.Violations,
		})
	}

	hasHardViolation := false
	var totalSoftPenalty float64
	breakdown := map[string]float64{}
	for _, cr := range in.ConstraintResults {
		if cr.Hard && cr.Status == "violated" {
			hasHardViolation = true
		}
		if !cr.Hard {
			totalSoftPenalty += cr.Penalty
		}
		breakdown[cr.Name] = cr.Penalty
	}

	confidence := computeConfidence(margin, len(sorted), hasHardViolation, totalSoftPenalty)

	version := in.SolverVersion
	if version == "" {
		version = solverVersionUnset
	}

	exp := DecisionExplanation{
		BlockID:           in.Block.ID,
		TemplateID:        in.TemplateID,
		SelectedPersonID:  in.SelectedPersonID,
		EligibleCount:     len(sorted),
		ActiveConstraints: in.ActiveConstraints,
		Score:             selectedScore,
		Breakdown:         breakdown,
		ConstraintResults: in.ConstraintResults,
		Alternatives:      alternatives,
		Confidence:        confidence,
		MarginVsNextBest:  margin,
		TradeOffSummary:   tradeOffSummary(hasHardViolation, totalSoftPenalty, margin),
		Algorithm:         in.Algorithm,
		SolverVersion:     version,
		Timestamp:         time.Now(),
		RandomSeed:        in.RandomSeed,
	}
	exp.AuditHash = auditHash(exp)
	return exp
}

// computeConfidence applies the exact point rules of §4.9.
func computeConfidence(margin float64, poolSize int, hasHardViolation bool, totalSoftPenalty float64) Confidence {
	score := 0.5
	var factors []string

	switch {
	case margin > 100:
		score += 0.2
		factors = append(factors, "margin over next-best exceeds 100")
	case margin > 10:
		score += 0.1
		factors = append(factors, "margin over next-best exceeds 10")
	case margin < 5:
		score -= 0.1
		factors = append(factors, "margin over next-best below 5")
	}

	switch {
	case poolSize == 1:
		score += 0.1
		factors = append(factors, "only one eligible candidate")
	case poolSize >= 5:
		score += 0.1
		factors = append(factors, "five or more eligible candidates")
	}

	if hasHardViolation {
		score -= 0.3
		factors = append(factors, "a hard constraint was violated")
	}
	if totalSoftPenalty > 50 {
		score -= 0.1
		factors = append(factors, "total soft penalties exceed 50")
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	level := ConfidenceLow
	switch {
	case score >= 0.7:
		level = ConfidenceHigh
	case score >= 0.4:
		level = ConfidenceMedium
	}

	return Confidence{Level: level, Score: score, Factors: factors}
}

func tradeOffSummary(hasHardViolation bool, totalSoftPenalty, margin float64) string {
	if hasHardViolation {
		return "selected despite an unresolved hard-constraint violation"
	}
	if margin < 5 {
		return "near-tie with the next-best candidate"
	}
	if totalSoftPenalty > 50 {
		return "accepted elevated soft-constraint penalty to satisfy hard constraints"
	}
	return "clear winner on the combined objective"
}

// auditHash canonicalizes the fields named by §4.9 and SHA-256s them,
// distinct from the candidate cache's structural hash in pkg/generator.
func auditHash(exp DecisionExplanation) string {
	canonical := struct {
		PersonID   string `json:"person_id"`
		BlockID    string `json:"block_id"`
		TemplateID string `json:"template_id"`
		Score      float64 `json:"score"`
		Algorithm  string `json:"algorithm"`
		Timestamp  string `json:"timestamp"`
	}{
		PersonID:   exp.SelectedPersonID,
		BlockID:    exp.BlockID,
		TemplateID: exp.TemplateID,
		Score:      exp.Score,
		Algorithm:  exp.Algorithm,
		Timestamp:  exp.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the audit hash and compares it against the stored one.
func Verify(exp DecisionExplanation) error {
	if auditHash(exp) != exp.AuditHash {
		return fmt.Errorf("audit hash mismatch for assignment %s/%s", exp.BlockID, exp.SelectedPersonID)
	}
	return nil
}
