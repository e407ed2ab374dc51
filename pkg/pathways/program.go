// Package pathways converts intake-form records into Pathways JSON-LD
// documents (EducationalOccupationalProgram and WorkBasedProgram).
package pathways

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gopathways/pkg/address"
	"github.com/3leaps/gopathways/pkg/fields"
	"github.com/3leaps/gopathways/pkg/grid"
)

// ProgramType selects the document variant.
type ProgramType string

const (
	Educational ProgramType = "EducationalOccupationalProgram"
	WorkBased   ProgramType = "WorkBasedProgram"
)

// ErrInvalidDocument marks rows that cannot be turned into a valid document.
var ErrInvalidDocument = errors.New("invalid pathways document")

// Program is the typed view of one intake-form row.
type Program struct {
	ID        string
	SourceID  string
	UpdatedAt time.Time
	Type      ProgramType

	Name        string
	Description string
	URL         string

	ProviderName      string
	ProviderURL       string
	ProviderTelephone string
	Addresses         []address.Address

	TotalCost         string
	TimeToComplete    string
	CredentialAwarded string
	StartDates        []string
	EndDates          []string
	TimeOfDay         string
	MaximumEnrollment string

	Prerequisites *Prerequisites

	// Exactly one of Educational and WorkBased is set, matching Type.
	Educational *EducationalDetails
	WorkBased   *WorkBasedDetails
}

// EducationalDetails are the fields only unpaid programs carry.
type EducationalDetails struct {
	ApplicationDeadline string
	CIP                 string
	ProgramID           string
	Mode                string
}

// WorkBasedDetails are the fields only paid programs carry.
type WorkBasedDetails struct {
	TrainingHourlyWage string
	PostGradSalary     string
}

// Prerequisites is the optional eligibility blob. Empty fields are omitted.
type Prerequisites struct {
	CredentialCategory        string `json:"credential_category,omitempty"`
	EligibleGroups            string `json:"eligible_groups,omitempty"`
	MaxIncomeEligibility      string `json:"max_income_eligibility,omitempty"`
	OtherProgramPrerequisites string `json:"other_program_prerequisites,omitempty"`
}

// IsEmpty reports whether no prerequisite was given.
func (p Prerequisites) IsEmpty() bool {
	return p == Prerequisites{}
}

// ProgramOptions tunes NewProgram.
type ProgramOptions struct {
	Country string
	Logger  *zap.Logger
}

// TypeOf classifies a record by its paid-training flag.
func TypeOf(rec grid.Record) ProgramType {
	if rec.Get(grid.FieldIsPaid) == "Yes" {
		return WorkBased
	}
	return Educational
}

// MakePrerequisites builds the prerequisite blob for rec, or nil when the
// record states none.
func MakePrerequisites(rec grid.Record) *Prerequisites {
	p := Prerequisites{
		EligibleGroups:            strings.TrimSpace(rec.Get(grid.FieldEligibleGroups)),
		MaxIncomeEligibility:      strings.TrimSpace(rec.Get(grid.FieldMaxIncomeEligibility)),
		OtherProgramPrerequisites: strings.TrimSpace(rec.Get(grid.FieldPrerequisites)),
	}
	if isTruthy(rec.Get(grid.FieldIsDiplomaRequired)) {
		p.CredentialCategory = "HighSchool"
	}
	if p.IsEmpty() {
		return nil
	}
	return &p
}

// NewProgram builds a Program from a normalized, date-transformed record.
// A duration that cannot be converted yields an error wrapping
// fields.ErrInvalidDuration; missing required fields wrap ErrInvalidDocument.
func NewProgram(rec grid.Record, updatedAt time.Time, opts ProgramOptions) (*Program, error) {
	id := strings.TrimSpace(rec.Get(grid.FieldRowIdentifier))
	if id == "" {
		return nil, fmt.Errorf("%w: missing row identifier", ErrInvalidDocument)
	}

	duration, err := fields.DurationToISO(rec.Get(grid.FieldProgramLength))
	if err != nil {
		return nil, err
	}

	p := &Program{
		ID:                id,
		SourceID:          rec.Get(grid.FieldSourceSheetID),
		UpdatedAt:         updatedAt,
		Type:              TypeOf(rec),
		Name:              strings.TrimSpace(rec.Get(grid.FieldProgramName)),
		Description:       strings.TrimSpace(rec.Get(grid.FieldProgramDescription)),
		URL:               strings.TrimSpace(rec.Get(grid.FieldProgramURL)),
		ProviderName:      strings.TrimSpace(rec.Get(grid.FieldProgramProvider)),
		ProviderURL:       strings.TrimSpace(rec.Get(grid.FieldProviderURL)),
		ProviderTelephone: strings.TrimSpace(rec.Get(grid.FieldContactPhone)),
		TotalCost:         strings.TrimSpace(rec.Get(grid.FieldTotalCostOfProgram)),
		TimeToComplete:    duration,
		CredentialAwarded: strings.TrimSpace(rec.Get(grid.FieldCredentialEarned)),
		StartDates:        fields.SplitList(rec.Get(grid.FieldStartDates)),
		EndDates:          fields.SplitList(rec.Get(grid.FieldEndDates)),
		TimeOfDay:         strings.TrimSpace(rec.Get(grid.FieldTiming)),
		MaximumEnrollment: strings.TrimSpace(rec.Get(grid.FieldMaximumEnrollment)),
		Prerequisites:     MakePrerequisites(rec),
		Addresses: address.Collect(
			rec.Get(grid.FieldProviderAddress),
			rec.Get(grid.FieldProgramAddress),
			opts.Country,
			opts.Logger,
		),
	}

	switch p.Type {
	case WorkBased:
		p.WorkBased = &WorkBasedDetails{
			TrainingHourlyWage: strings.TrimSpace(rec.Get(grid.FieldAverageHourlyWagePaid)),
			PostGradSalary:     strings.TrimSpace(rec.Get(grid.FieldPostGradAnnualSalary)),
		}
	default:
		p.Educational = &EducationalDetails{
			ApplicationDeadline: strings.TrimSpace(rec.Get(grid.FieldApplicationDeadline)),
			CIP:                 strings.TrimSpace(rec.Get(grid.FieldCIP)),
			ProgramID:           strings.TrimSpace(rec.Get(grid.FieldProgramID)),
			Mode:                strings.TrimSpace(rec.Get(grid.FieldFormat)),
		}
	}

	return p, nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}
