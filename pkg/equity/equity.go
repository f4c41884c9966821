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

// Package equity implements C11: Gini-based fairness metrics over provider
// hours, and a negative-selection immune system that flags anomalous
// schedule states and proposes antibody repairs.
package equity

import (
	"math/rand"
	"sort"
)

// Report is the equity metrics result of §4.11.
type Report struct {
	Gini            float64
	Equitable       bool
	LorenzPopShare  []float64
	LorenzHourShare []float64
	MostOverloaded  string
	MostUnderloaded string
	SuggestedTransferHours float64
}

// Gini computes the Gini coefficient over sorted-ascending hours per §4.11's
// formula. An all-zero (or empty) input returns 0.
func Gini(providerHours map[string]float64) float64 {
	if len(providerHours) == 0 {
		return 0
	}
	ids := make([]string, 0, len(providerHours))
	for id := range providerHours {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return providerHours[ids[i]] < providerHours[ids[j]] })

	n := len(ids)
	var sumX, weightedSum float64
	for i, id := range ids {
		x := providerHours[id]
		sumX += x
		weightedSum += float64(i+1) * x
	}
	if sumX == 0 {
		return 0
	}
	return (2*weightedSum - float64(n+1)*sumX) / (float64(n) * sumX)
}

// Analyze computes the full equity report: Gini, Lorenz curve, equitable
// threshold, and the most over/underloaded providers with a suggested hour
// transfer that would move the overloaded provider halfway to the mean.
func Analyze(providerHours map[string]float64, threshold float64) Report {
	if threshold <= 0 {
		threshold = 0.15
	}
	gini := Gini(providerHours)

	ids := make([]string, 0, len(providerHours))
	for id := range providerHours {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return providerHours[ids[i]] < providerHours[ids[j]] })

	var total float64
	for _, id := range ids {
		total += providerHours[id]
	}

	n := len(ids)
	popShare := make([]float64, n)
	hourShare := make([]float64, n)
	var cumHours float64
	for i, id := range ids {
		cumHours += providerHours[id]
		popShare[i] = float64(i+1) / float64(n)
		if total > 0 {
			hourShare[i] = cumHours / total
		}
	}

	var most, least string
	var mostHours, leastHours float64
	first := true
	for id, h := range providerHours {
		if first || h > mostHours {
			most, mostHours = id, h
		}
		if first || h < leastHours {
			least, leastHours = id, h
		}
		first = false
	}

	mean := 0.0
	if n > 0 {
		mean = total / float64(n)
	}
	transfer := (mostHours - mean) / 2
	if transfer < 0 {
		transfer = 0
	}

	return Report{
		Gini:                   gini,
		Equitable:              gini <= threshold,
		LorenzPopShare:         popShare,
		LorenzHourShare:        hourShare,
		MostOverloaded:         most,
		MostUnderloaded:        least,
		SuggestedTransferHours: transfer,
	}
}

// FeatureDimensions is the default dimensionality of a schedule's feature
// vector (§4.11): coverage_rate, violation_count, mean_hours, max_hours,
// std_hours, supervision_ratio, churn_rate, plus 5 per-category coverage slots.
const FeatureDimensions = 12

// FeatureVector is one schedule state's point in feature space.
type FeatureVector [FeatureDimensions]float64

func distance(a, b FeatureVector) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum // squared distance is sufficient for radius comparisons
}

// Detector is a negative-selection detector: a random point plus a radius.
type Detector struct {
	Center FeatureVector
	Radius float64
}

// Antibody pairs an affinity region with a repair function triggered when a
// candidate state falls inside it.
type Antibody struct {
	Center   FeatureVector
	Radius   float64
	RepairFn func(FeatureVector) FeatureVector
}

// ImmuneSystem trains detectors against known-valid schedule states and
// flags future states that fall within the radius of any detector.
type ImmuneSystem struct {
	detectors  []Detector
	antibodies []Antibody
	radius     float64
	rng        *rand.Rand
}

// NewImmuneSystem seeds an RNG deterministically so training is reproducible
// given the same seed and training set.
func NewImmuneSystem(radius float64, seed int64) *ImmuneSystem {
	if radius <= 0 {
		radius = 0.2
	}
	return &ImmuneSystem{radius: radius, rng: rand.New(rand.NewSource(seed))}
}

// Train generates candidateCount random detectors and discards any that fall
// within radius of a known-valid schedule state (negative selection).
func (m *ImmuneSystem) Train(validStates []FeatureVector, candidateCount int) {
	m.detectors = nil
	for i := 0; i < candidateCount; i++ {
		var center FeatureVector
		for j := range center {
			center[j] = m.rng.Float64()
		}
		candidate := Detector{Center: center, Radius: m.radius}
		tooClose := false
		for _, valid := range validStates {
			if distance(candidate.Center, valid) < m.radius*m.radius {
				tooClose = true
				break
			}
		}
		if !tooClose {
			m.detectors = append(m.detectors, candidate)
		}
	}
}

// RegisterAntibody adds a repair-capable affinity region.
func (m *ImmuneSystem) RegisterAntibody(a Antibody) {
	m.antibodies = append(m.antibodies, a)
}

// AnomalyScore is the fraction of detectors that match (are within radius of)
// candidate; 0 means no detector fired.
func (m *ImmuneSystem) AnomalyScore(candidate FeatureVector) float64 {
	if len(m.detectors) == 0 {
		return 0
	}
	matches := 0
	for _, d := range m.detectors {
		if distance(d.Center, candidate) < d.Radius*d.Radius {
			matches++
		}
	}
	return float64(matches) / float64(len(m.detectors))
}

// IsAnomalous reports whether any detector matches candidate.
func (m *ImmuneSystem) IsAnomalous(candidate FeatureVector) bool {
	return m.AnomalyScore(candidate) > 0
}

// SelectAntibody returns the highest-affinity antibody for an anomalous
// state (the one whose center is nearest candidate), or false if none are
// registered.
func (m *ImmuneSystem) SelectAntibody(candidate FeatureVector) (Antibody, bool) {
	if len(m.antibodies) == 0 {
		return Antibody{}, false
	}
	best := m.antibodies[0]
	bestDist := distance(best.Center, candidate)
	for _, a := range m.antibodies[1:] {
		if d := distance(a.Center, candidate); d < bestDist {
			best, bestDist = a, d
		}
	}
	return best, true
}

// Repair selects the highest-affinity antibody and applies its repair
// function, reporting the anomaly-score reduction achieved.
func (m *ImmuneSystem) Repair(candidate FeatureVector) (repaired FeatureVector, scoreReduction float64, ok bool) {
	antibody, found := m.SelectAntibody(candidate)
	if !found {
		return candidate, 0, false
	}
	before := m.AnomalyScore(candidate)
	repaired = antibody.RepairFn(candidate)
	after := m.AnomalyScore(repaired)
	return repaired, before - after, true
}
