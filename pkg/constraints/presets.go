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

package constraints

import (
	"fmt"

	"github.com/imdario/mergo"
)

// presetOverride is what a preset specifies for a single constraint: whether
// it's enabled, and the multiplier applied to its default weight.
type presetOverride struct {
	Enabled         bool
	WeightMultiplier float64
}

// preset is a full override map, keyed by constraint name. Names absent from
// the map fall back to baseOverride (see ApplyPreset).
type preset map[string]presetOverride

var baseOverride = presetOverride{Enabled: false, WeightMultiplier: 1}

var hardConstraintNames = []string{
	NameAvailability, NameEightyHourRule, NameOneInSevenRule, NameSupervisionRatio,
	NameClinicCapacity, NameTemplateMaxResidents, NameUniquePrimaryPerBlock,
	NameFMITStaffingFloor, NamePostFMITSundayBlocking, NameNightFloatHeadcount, NameFMITResidentHeadcount,
}

var softConstraintNames = []string{
	NameEquity, NameContinuity, NameFacultyPreference, NameWeekendFairness,
	NameCallSpacing, NameFMITContinuityTurf, NameSMResidentFacultyAlignment,
}

func allEnabled(multiplier float64) preset {
	p := preset{}
	for _, n := range append(append([]string{}, hardConstraintNames...), softConstraintNames...) {
		p[n] = presetOverride{Enabled: true, WeightMultiplier: multiplier}
	}
	return p
}

// presets is the authoritative table of named preset configurations (§4.2).
var presets = map[string]preset{
	"minimal": {
		NameAvailability:    {Enabled: true, WeightMultiplier: 1},
		NameEightyHourRule:  {Enabled: true, WeightMultiplier: 1},
		NameOneInSevenRule:  {Enabled: true, WeightMultiplier: 1},
		NameSupervisionRatio: {Enabled: true, WeightMultiplier: 1},
	},
	"standard": allEnabled(1),
	"strict":   allEnabled(2),
	"resilience_tier1": mustMerge(allEnabled(1), preset{
		NameEquity:             {Enabled: false, WeightMultiplier: 1},
		NameFacultyPreference:  {Enabled: false, WeightMultiplier: 1},
	}),
	"resilience_tier2": mustMerge(allEnabled(1.5), preset{
		NameFacultyPreference: {Enabled: false, WeightMultiplier: 1},
	}),
	"call_scheduling": mustMerge(preset{
		NameAvailability:     {Enabled: true, WeightMultiplier: 1},
		NameEightyHourRule:   {Enabled: true, WeightMultiplier: 1},
		NameOneInSevenRule:   {Enabled: true, WeightMultiplier: 1},
		NameSupervisionRatio: {Enabled: true, WeightMultiplier: 1},
		NameCallSpacing:      {Enabled: true, WeightMultiplier: 1},
	}, preset{}),
	"sports_medicine": mustMerge(preset{
		NameAvailability:              {Enabled: true, WeightMultiplier: 1},
		NameEightyHourRule:            {Enabled: true, WeightMultiplier: 1},
		NameOneInSevenRule:            {Enabled: true, WeightMultiplier: 1},
		NameSupervisionRatio:          {Enabled: true, WeightMultiplier: 1},
		NameSMResidentFacultyAlignment: {Enabled: true, WeightMultiplier: 1},
	}, preset{}),
}

// mustMerge overlays override onto base (override wins), using mergo the way
// the rest of the ecosystem merges partial config structs onto defaults.
func mustMerge(base, override preset) preset {
	out := preset{}
	for k, v := range base {
		out[k] = v
	}
	if err := mergo.Merge(&out, override, mergo.WithOverride()); err != nil {
		panic(fmt.Sprintf("merging constraint preset: %v", err))
	}
	return out
}

// ApplyPreset reconfigures every registered constraint's enabled/weight state
// from scratch according to the named preset. It is idempotent: calling it
// twice in a row with the same name yields the same registry state, since it
// is never applied cumulatively on top of a prior preset.
func (r *Registry) ApplyPreset(name string) error {
	p, ok := presets[name]
	if !ok {
		return fmt.Errorf("unknown constraint preset %q", name)
	}
	for _, cname := range r.order {
		e := r.entries[cname]
		override, ok := p[cname]
		if !ok {
			override = baseOverride
		}
		e.enabled = override.Enabled
		e.weight = e.constraint.DefaultWeight() * override.WeightMultiplier
	}
	return nil
}

// PresetNames lists the known preset identifiers.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	return names
}
