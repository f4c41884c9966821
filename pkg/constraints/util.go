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
	"time"

	"github.com/residency-sched/engine/pkg/schedcontext"
)

const hoursPerBlock = 4.0

// primaryByPerson groups primary assignments by person ID.
func primaryByPerson(assignments []schedcontext.Assignment) map[string][]schedcontext.Assignment {
	out := map[string][]schedcontext.Assignment{}
	for _, a := range assignments {
		if a.Role != schedcontext.RolePrimary {
			continue
		}
		out[a.PersonID] = append(out[a.PersonID], a)
	}
	return out
}

// blockDate looks up the calendar date (day precision) of a block ID.
func blockDate(ctx *schedcontext.Context, blockID string) (time.Time, bool) {
	i := ctx.BlockIndex(blockID)
	if i < 0 {
		return time.Time{}, false
	}
	b := ctx.Blocks()[i]
	return time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, b.Date.Location()), true
}

// rollingWindowStarts returns the start date d of every 7-calendar-day window
// [d, d+6] that starts on a date present among ctx.Blocks(), deduplicated.
func rollingWindowStarts(ctx *schedcontext.Context) []time.Time {
	seen := map[time.Time]bool{}
	var starts []time.Time
	for _, b := range ctx.Blocks() {
		d := time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, b.Date.Location())
		if !seen[d] {
			seen[d] = true
			starts = append(starts, d)
		}
	}
	return starts
}

// daysWithAssignment returns the set of calendar dates on which person has
// at least one primary assignment.
func daysWithAssignment(assignments []schedcontext.Assignment, ctx *schedcontext.Context) map[time.Time]bool {
	days := map[time.Time]bool{}
	for _, a := range assignments {
		if d, ok := blockDate(ctx, a.BlockID); ok {
			days[d] = true
		}
	}
	return days
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
