package pathways

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/3leaps/gopathways/internal/assets/schemas"
)

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// ValidateDocument checks the rendered JSON of doc against the embedded
// Pathways program schema.
func ValidateDocument(doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrInvalidDocument, err)
	}
	return ValidateJSON(data)
}

// ValidateJSON checks an encoded document against the schema.
func ValidateJSON(data []byte) error {
	v, err := getValidator()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(data)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var problems []string
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		if d.Pointer == "" {
			problems = append(problems, d.Message)
			continue
		}
		problems = append(problems, d.Pointer+": "+d.Message)
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(problems, "; "))
}

func getValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		if len(schemasassets.PathwaysProgramSchema) == 0 {
			validatorErr = fmt.Errorf("embedded pathways-program schema is empty")
			return
		}
		validator, validatorErr = schema.NewValidator(schemasassets.PathwaysProgramSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("compile pathways-program schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}
