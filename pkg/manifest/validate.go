package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/3leaps/gopathways/internal/assets/schemas"
)

var (
	// ErrSchemaNotFound means the embedded manifest schema is missing.
	ErrSchemaNotFound = errors.New("manifest schema not found")

	// ErrValidationFailed is matched by every ValidationErrors.
	ErrValidationFailed = errors.New("manifest validation failed")
)

// compiledSchema compiles the embedded job-manifest schema on first use.
var compiledSchema = sync.OnceValues(func() (*schema.Validator, error) {
	if len(schemasassets.JobManifestSchema) == 0 {
		return nil, fmt.Errorf("%w: embedded job-manifest schema is empty", ErrSchemaNotFound)
	}
	v, err := schema.NewValidator(schemasassets.JobManifestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return v, nil
})

// ValidationError is one problem at a JSON pointer such as
// "/sources/0/spreadsheet_id".
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors collects every problem found in one manifest.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Error()
	}
	lines := make([]string, 0, len(e)+1)
	lines = append(lines, fmt.Sprintf("manifest validation failed with %d errors:", len(e)))
	for _, ve := range e {
		lines = append(lines, "  - "+ve.Error())
	}
	return strings.Join(lines, "\n")
}

func (e ValidationErrors) Unwrap() error { return ErrValidationFailed }

// Validate checks an in-memory manifest against the schema. Unknown fields
// cannot be detected here; LoadFromBytes validates the raw document.
func Validate(m *Manifest) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest for validation: %w", err)
	}
	return ValidateRaw(doc)
}

// ValidateRaw checks a JSON document against the embedded job-manifest
// schema. Schema warnings are ignored.
func ValidateRaw(doc []byte) error {
	v, err := compiledSchema()
	if err != nil {
		return err
	}
	diags, err := v.ValidateJSON(doc)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// checkSemantics enforces rules the schema cannot express: loadable
// timezone, parseable sentinel and error policy, unique source names and
// spreadsheet ids, and a global watermark only for single-source jobs.
func checkSemantics(m *Manifest) error {
	var errs ValidationErrors

	if _, err := m.Transform.Location(); err != nil {
		errs = append(errs, ValidationError{Path: "/transform/timezone", Message: err.Error()})
	}
	if m.Transform.Sentinel != "" {
		if _, err := time.Parse("2006-01-02", m.Transform.Sentinel); err != nil {
			errs = append(errs, ValidationError{Path: "/transform/sentinel", Message: "not a calendar date"})
		}
	}
	if _, err := m.Load.Policy(); err != nil {
		errs = append(errs, ValidationError{Path: "/load/error_policy", Message: err.Error()})
	}
	if m.Load.Global() && len(m.Sources) > 1 {
		errs = append(errs, ValidationError{
			Path:    "/load/watermark_scope",
			Message: "global watermark requires exactly one source",
		})
	}

	names := make(map[string]int, len(m.Sources))
	ids := make(map[string]int, len(m.Sources))
	for i, s := range m.Sources {
		if j, ok := names[s.Name]; ok {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("/sources/%d/name", i),
				Message: fmt.Sprintf("duplicate source name (also /sources/%d)", j),
			})
		}
		names[s.Name] = i

		id := s.Ref().SourceID()
		if j, ok := ids[id]; ok {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("/sources/%d", i),
				Message: fmt.Sprintf("source %q already configured at /sources/%d", id, j),
			})
		}
		ids[id] = i
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
