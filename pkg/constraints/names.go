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

// Stable constraint identifiers (§4.2), used in explanations, the approval
// audit chain, and tests.
const (
	NameAvailability      = "Availability"
	NameEightyHourRule    = "EightyHourRule"
	NameOneInSevenRule    = "OneInSevenRule"
	NameSupervisionRatio  = "SupervisionRatio"

	NameClinicCapacity        = "ClinicCapacity"
	NameTemplateMaxResidents  = "TemplateMaxResidents"
	NameUniquePrimaryPerBlock = "UniquePrimaryPerBlock"

	NameFMITStaffingFloor     = "FMITStaffingFloor"
	NamePostFMITSundayBlocking = "PostFMITSundayBlocking"
	NameNightFloatHeadcount   = "NightFloatHeadcount"
	NameFMITResidentHeadcount = "FMITResidentHeadcount"

	NameEquity                    = "Equity"
	NameContinuity                = "Continuity"
	NameFacultyPreference         = "FacultyPreference"
	NameWeekendFairness           = "WeekendFairness"
	NameCallSpacing               = "CallSpacing"
	NameFMITContinuityTurf        = "FMITContinuityTurf"
	NameSMResidentFacultyAlignment = "SMResidentFacultyAlignment"
)
