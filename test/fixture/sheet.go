// Package fixture provides intake-form grids for tests.
//
// The column layout mirrors the program intake spreadsheet, so tests can
// exercise the full header map without hand-writing 43 labels.
//
// Usage:
//
//	g := fixture.Grid(fixture.Row(map[string]string{
//	    fixture.ColPathways: "No",
//	}))
package fixture

import "github.com/3leaps/gopathways/pkg/grid"

// Column labels tests commonly override.
const (
	ColTimestamp         = "Timestamp"
	ColEmail             = "Your email address"
	ColOrganization      = "Goodwill Member Name"
	ColOrganizationAddr  = "Organization Address"
	ColProgramName       = "Program Name"
	ColProgramID         = "Program ID"
	ColPathways          = "Should this program be available in Google Pathways?"
	ColProgramURL        = "URL of Program"
	ColProgramAddr       = "Program Address (if different from organization address)"
	ColDeadline          = "Application Deadline"
	ColTotalCost         = "Total cost of the program (in dollars)"
	ColDuration          = "Duration / Time to complete"
	ColStartDates        = "Start date(s)"
	ColEndDates          = "End Date(s)"
	ColIsPaid            = "Apprenticeship or Paid Training Available"
	ColHourlyWagePaid    = "If yes, average hourly wage paid to student"
	ColAnnualSalary      = "Average ANNUAL salary post-graduation"
	ColEligibleGroups    = "Eligible groups"
	ColMaxIncome         = "Maximum yearly household income to be eligible"
	ColDiplomaRequired   = "HS diploma required?"
	ColOtherPrereqs      = "Other prerequisites"
	ColRowIdentifier     = "Row Identifier (DO NOT EDIT)"
	DefaultRowIdentifier = "3f109a01-87c6-4899-bfd0-63db86acae11"
	DefaultTimestamp     = "03/18/2020 07:25:37"
)

var headers = []string{
	"Timestamp",
	"Your email address",
	"Goodwill Member Name",
	"Organization URL",
	"Organization Address",
	"Program Name",
	"Program description",
	"Program ID",
	"Program Status",
	"Program Category",
	"Population(s) Targeted",
	"Goal/Outcome",
	"Time Investment",
	"Should this program be available in Google Pathways?",
	"URL of Program",
	"Program Address (if different from organization address)",
	"Contact phone number for program",
	"CIP Code",
	"Application Deadline",
	"Total cost of the program (in dollars)",
	"Duration / Time to complete",
	"Total Units",
	"Unit Cost (not required if total cost is given)",
	"Format",
	"Timing",
	"Start date(s)",
	"End Date(s)",
	"Credential level earned",
	"Accreditation body name",
	"What certification (exam), license, or certificate (if any) does this program prepare you for or give you?",
	"What occupations/jobs does the training prepare you for?",
	"Apprenticeship or Paid Training Available",
	"If yes, average hourly wage paid to student",
	"Incentives",
	"Average ANNUAL salary post-graduation",
	"Average HOURLY wage post-graduation",
	"Eligible groups",
	"Maximum yearly household income to be eligible",
	"HS diploma required?",
	"Other prerequisites",
	"Anything else to add about the program?",
	"Maximum Enrollment",
	"Row Identifier (DO NOT EDIT)",
}

var baseRow = []string{
	DefaultTimestamp,
	"john@goodwill.test",
	"Goodwill of Springfield",
	"http://www.goodwill.test/",
	"1 Grickle Grass Lane Springfield, MA 88883",
	"Youth Employment",
	"Work experience program for youth between the ages of 16-24",
	"5688",
	"Open",
	"Job Skills Training",
	"Youth",
	"Employment, Career Advancement, Certificate/Credential/Degree",
	"160 hours",
	"Yes",
	"http://www.goodwill.test/programs-and-services/one-stop-adult-employment/",
	"",
	"941-999-9999",
	"49.0444",
	"01/15/2021",
	"0",
	"14 weeks",
	"",
	"",
	"In person",
	"Evenings, Weekends, Full-time",
	"07/15/2021",
	"12/15/2021",
	"",
	"",
	"",
	"N/A",
	"Yes",
	"11",
	"",
	"",
	"",
	"Youth",
	"",
	"No",
	"",
	"",
	"",
	DefaultRowIdentifier,
}

// Headers returns a copy of the intake-form header row.
func Headers() []string {
	return append([]string(nil), headers...)
}

// Row returns the canonical sample data row with overrides applied by
// column label. Unknown labels panic so typos surface in the test.
func Row(overrides map[string]string) []string {
	row := append([]string(nil), baseRow...)
	for label, value := range overrides {
		idx := indexOf(label)
		if idx < 0 {
			panic("fixture: unknown column " + label)
		}
		row[idx] = value
	}
	return row
}

// Grid assembles a grid from the header row and rows.
func Grid(rows ...[]string) grid.Grid {
	g := grid.Grid{Headers()}
	return append(g, rows...)
}

func indexOf(label string) int {
	for i, h := range headers {
		if h == label {
			return i
		}
	}
	return -1
}
