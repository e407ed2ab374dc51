package grid

import "strings"

// Canonical field names produced by DefaultHeaderMap.
const (
	FieldLastUpdated           = "LastUpdated"
	FieldProgramProvider       = "ProgramProvider"
	FieldProviderURL           = "ProviderUrl"
	FieldProviderAddress       = "ProviderAddress"
	FieldProgramName           = "ProgramName"
	FieldProgramCategory       = "ProgramCategory"
	FieldPopulationTargeted    = "PopulationTargeted"
	FieldGoal                  = "Goal"
	FieldTimeInvestment        = "TimeInvestment"
	FieldProgramID             = "ProgramId"
	FieldProgramStatus         = "ProgramStatus"
	FieldCIP                   = "CIP"
	FieldApplicationDeadline   = "ApplicationDeadline"
	FieldProgramAddress        = "ProgramAddress"
	FieldProgramURL            = "ProgramUrl"
	FieldContactPhone          = "ContactPhone"
	FieldProgramDescription    = "ProgramDescription"
	FieldPathwaysEnabled       = "PathwaysEnabled"
	FieldTotalCostOfProgram    = "TotalCostOfProgram"
	FieldProgramLength         = "ProgramLength"
	FieldTotalUnits            = "TotalUnits"
	FieldUnitCost              = "UnitCost"
	FieldFormat                = "Format"
	FieldTiming                = "Timing"
	FieldStartDates            = "StartDates"
	FieldEndDates              = "EndDates"
	FieldCredentialLevelEarned = "CredentialLevelEarned"
	FieldAccreditationBodyName = "AccreditationBodyName"
	FieldCredentialEarned      = "CredentialEarned"
	FieldRelatedOccupations    = "RelatedOccupations"
	FieldIsPaid                = "IsPaid"
	FieldAverageHourlyWagePaid = "AverageHourlyWagePaid"
	FieldIncentives            = "Incentives"
	FieldPostGradAnnualSalary  = "PostGradAnnualSalary"
	FieldPostGradHourlyWage    = "PostGradHourlyWage"
	FieldEligibleGroups        = "EligibleGroups"
	FieldMaxIncomeEligibility  = "MaxIncomeEligibility"
	FieldIsDiplomaRequired     = "IsDiplomaRequired"
	FieldPrerequisites         = "Prerequisites"
	FieldMiscellaneous         = "Miscellaneous"
	FieldMaximumEnrollment     = "MaximumEnrollment"
	FieldRowIdentifier         = "gs_row_identifier"

	// FieldSourceSheetID is not a form column; the pipeline tags each record
	// with the spreadsheet it came from.
	FieldSourceSheetID = "source_sheet_id"
)

// HeaderMap maps source column labels to canonical field names.
type HeaderMap map[string]string

// Canonical returns the canonical name for label. Unknown labels are
// returned unchanged. Lookup tolerates surrounding whitespace.
func (m HeaderMap) Canonical(label string) string {
	if name, ok := m[label]; ok {
		return name
	}
	trimmed := strings.TrimSpace(label)
	if name, ok := m[trimmed]; ok {
		return name
	}
	return label
}

// Merge returns a new map holding m overlaid with overrides.
func (m HeaderMap) Merge(overrides map[string]string) HeaderMap {
	out := make(HeaderMap, len(m)+len(overrides))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// DefaultHeaderMap returns the labels of the program intake form. Older
// revisions of the form label the organization "Goodwill Member Name"; both
// labels map to FieldProgramProvider.
func DefaultHeaderMap() HeaderMap {
	return HeaderMap{
		"Timestamp":                    FieldLastUpdated,
		"Organization Name":            FieldProgramProvider,
		"Goodwill Member Name":         FieldProgramProvider,
		"Organization URL":             FieldProviderURL,
		"Organization Address":         FieldProviderAddress,
		"Program Name":                 FieldProgramName,
		"Program Category":             FieldProgramCategory,
		"Population(s) Targeted":       FieldPopulationTargeted,
		"Goal/Outcome":                 FieldGoal,
		"Time Investment":              FieldTimeInvestment,
		"Program ID":                   FieldProgramID,
		"Program Status":               FieldProgramStatus,
		"CIP Code":                     FieldCIP,
		"Application Deadline":         FieldApplicationDeadline,
		"URL of Program":               FieldProgramURL,
		"Program description":          FieldProgramDescription,
		"Format":                       FieldFormat,
		"Timing":                       FieldTiming,
		"Start date(s)":                FieldStartDates,
		"End Date(s)":                  FieldEndDates,
		"Total Units":                  FieldTotalUnits,
		"Incentives":                   FieldIncentives,
		"Eligible groups":              FieldEligibleGroups,
		"HS diploma required?":         FieldIsDiplomaRequired,
		"Other prerequisites":          FieldPrerequisites,
		"Maximum Enrollment":           FieldMaximumEnrollment,
		"Credential level earned":      FieldCredentialLevelEarned,
		"Accreditation body name":      FieldAccreditationBodyName,
		"Row Identifier (DO NOT EDIT)": FieldRowIdentifier,

		"Program Address (if different from organization address)": FieldProgramAddress,
		"Contact phone number for program":                         FieldContactPhone,
		"Should this program be available in Google Pathways?":     FieldPathwaysEnabled,
		"Total cost of the program (in dollars)":                   FieldTotalCostOfProgram,
		"Duration / Time to complete":                              FieldProgramLength,
		"Unit Cost (not required if total cost is given)":          FieldUnitCost,
		"What occupations/jobs does the training prepare you for?": FieldRelatedOccupations,
		"Apprenticeship or Paid Training Available":                FieldIsPaid,
		"If yes, average hourly wage paid to student":              FieldAverageHourlyWagePaid,
		"Average ANNUAL salary post-graduation":                    FieldPostGradAnnualSalary,
		"Average HOURLY wage post-graduation":                      FieldPostGradHourlyWage,
		"Maximum yearly household income to be eligible":           FieldMaxIncomeEligibility,
		"Anything else to add about the program?":                  FieldMiscellaneous,

		"What certification (exam), license, or certificate (if any) does this program prepare you for or give you?": FieldCredentialEarned,
	}
}
