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

// Command verify-schedule is a thin CLI wrapping the ACGME Validator (C6)
// against a JSON fixture of people/blocks/templates/assignments, mirroring
// §6's verify_schedule exit-code contract: 0 on pass, 1 if any check fails.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/residency-sched/engine/pkg/acgme"
	"github.com/residency-sched/engine/pkg/schedcontext"
)

type fixture struct {
	People      []schedcontext.Person      `json:"people"`
	Blocks      []blockJSON                `json:"blocks"`
	Templates   []schedcontext.RotationTemplate `json:"templates"`
	Assignments []schedcontext.Assignment `json:"assignments"`
}

// blockJSON mirrors schedcontext.Block but with a plain date string, since
// Block.Date needs day precision and the fixture format favors readability
// over round-tripping time.Time's full RFC3339 representation.
type blockJSON struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	TimeOfDay string `json:"time_of_day"`
	IsHoliday bool   `json:"is_holiday"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("verify-schedule", flag.ContinueOnError)
	fixturePath := fs.String("fixture", "", "path to a JSON fixture of people/blocks/templates/assignments")
	start := fs.String("start", "", "start date YYYY-MM-DD (informational; the fixture's own blocks govern the check)")
	end := fs.String("end", "", "end date YYYY-MM-DD (informational; the fixture's own blocks govern the check)")
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	_ = start
	_ = end

	if *fixturePath == "" {
		fmt.Fprintln(stderr, "verify-schedule: -fixture is required")
		return 1
	}

	data, err := os.ReadFile(*fixturePath)
	if err != nil {
		fmt.Fprintf(stderr, "verify-schedule: reading fixture: %v\n", err)
		return 1
	}

	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		fmt.Fprintf(stderr, "verify-schedule: parsing fixture: %v\n", err)
		return 1
	}

	blocks := make([]schedcontext.Block, 0, len(fx.Blocks))
	for _, b := range fx.Blocks {
		d, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			fmt.Fprintf(stderr, "verify-schedule: invalid block date %q: %v\n", b.Date, err)
			return 1
		}
		blocks = append(blocks, schedcontext.Block{
			ID:        b.ID,
			Date:      d,
			TimeOfDay: schedcontext.TimeOfDay(b.TimeOfDay),
			IsHoliday: b.IsHoliday,
		})
	}

	sc := schedcontext.New(fx.People, blocks, fx.Templates, nil, fx.Assignments)
	summary := acgme.Validate(fx.Assignments, sc)

	if summary.Compliant {
		fmt.Fprintln(stdout, "PASS: no ACGME violations")
		return 0
	}

	fmt.Fprintf(stdout, "FAIL: %d ACGME violation(s)\n", len(summary.Violations))
	for _, v := range summary.Violations {
		fmt.Fprintf(stdout, "  [%s] person=%s block=%s %s\n", v.Kind, v.PersonID, v.BlockID, v.Detail)
	}
	return 1
}
