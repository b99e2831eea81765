package config

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaData []byte

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaData))
})

// ValidationError describes the most specific schema violation in a config
// document.
type ValidationError struct {
	Message string
	Path    string
}

func (e *ValidationError) Error() string {
	if e.Path == "" || e.Path == rootField {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

const rootField = "(root)"

// Lower values win when several errors are reported for one document.
var errorPriority = map[string]int{
	"additional_property_not_allowed": 1,
	"required":                        2,
	"invalid_type":                    3,
	"enum":                            4,
	"pattern":                         5,
	"string_gte":                      6,
	"array_min_items":                 7,
}

// Validate checks a JSON document against the config schema. It returns a nil
// *ValidationError when the document is valid.
func Validate(jsonData []byte) (*ValidationError, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to load config schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if result.Valid() || len(result.Errors()) == 0 {
		return nil, nil
	}

	best := result.Errors()[0]
	highest := len(errorPriority) + 1
	for _, e := range result.Errors() {
		if p, ok := errorPriority[e.Type()]; ok && p < highest {
			best = e
			highest = p
		}
	}

	return &ValidationError{
		Message: friendlyErrorMessage(best),
		Path:    best.Field(),
	}, nil
}

func friendlyErrorMessage(err gojsonschema.ResultError) string {
	field := fieldName(err.Field())

	switch err.Type() {
	case "additional_property_not_allowed":
		return fmt.Sprintf("Unknown property '%v' is not allowed", err.Details()["property"])
	case "required":
		return fmt.Sprintf("Missing required property '%v'", err.Details()["property"])
	case "invalid_type":
		return fmt.Sprintf("Property '%s' has wrong type (expected %v)", field, err.Details()["expected"])
	case "enum":
		return fmt.Sprintf("Property '%s' must be one of: %v", field, err.Details()["allowed"])
	case "pattern":
		if field == "timeout" {
			return "Property 'timeout' must be a duration such as 30s or 1m"
		}
		return fmt.Sprintf("Property '%s' does not match %v", field, err.Details()["pattern"])
	case "string_gte":
		return fmt.Sprintf("Property '%s' must not be empty", field)
	case "array_min_items":
		return fmt.Sprintf("Array '%s' needs at least %v items", field, err.Details()["min"])
	default:
		return err.Description()
	}
}

// fieldName returns the last non-index segment of a dotted field path, so
// "markers.0" reports as "markers".
func fieldName(path string) string {
	parts := strings.Split(path, ".")
	for i := len(parts) - 1; i >= 0; i-- {
		if !isNumeric(parts[i]) {
			return parts[i]
		}
	}
	return path
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
