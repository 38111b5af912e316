package validation

import (
	"fmt"

	"github.com/davidahmann/partnergate/pkg/types"
)

// CheckSchema runs Layer 1. It never fails; problems come back as entries.
func CheckSchema(data types.SubmissionData, contract types.DataContract) types.SchemaResult {
	errs := make([]types.ValidationError, 0)

	for i, rec := range data.Records {
		for _, fs := range contract.RequiredFields {
			path := fmt.Sprintf("records[%d].%s", i, fs.Name)
			value, present := rec[fs.Name]
			if !present || isEmpty(value) {
				if fs.Required {
					errs = append(errs, types.ValidationError{
						Field:    path,
						Message:  fmt.Sprintf("required field %q is missing", fs.Name),
						Severity: types.SeverityError,
					})
				} else if present && value != nil {
					errs = append(errs, types.ValidationError{
						Field:    path,
						Message:  fmt.Sprintf("optional field %q is empty", fs.Name),
						Severity: types.SeverityWarning,
					})
				}
				continue
			}
			if msg, ok := checkType(fs.Type, value); !ok {
				errs = append(errs, types.ValidationError{
					Field:    path,
					Message:  msg,
					Severity: types.SeverityError,
				})
			}
		}
	}

	errs = append(errs, checkMetadata(data.Metadata, contract.RequiredMetadata)...)

	return types.SchemaResult{
		Passed: countSeverity(errs, types.SeverityError) == 0,
		Errors: errs,
	}
}

func checkType(t types.FieldType, value any) (string, bool) {
	switch t {
	case types.FieldNumber:
		if _, ok := numericValue(value); !ok {
			return fmt.Sprintf("expected number, got %s", describe(value)), false
		}
	case types.FieldDate:
		if _, ok := parseDate(value); !ok {
			return fmt.Sprintf("expected calendar date, got %s", describe(value)), false
		}
	case types.FieldBoolean:
		if !parseBool(value) {
			return fmt.Sprintf("expected boolean, got %s", describe(value)), false
		}
	case types.FieldGeo:
		if !parseGeo(value) {
			return fmt.Sprintf("expected \"lat,lon\" or {lat, lon}, got %s", describe(value)), false
		}
	case types.FieldString:
		if _, ok := scalarString(value); !ok {
			return fmt.Sprintf("expected scalar string value, got %s", describe(value)), false
		}
	}
	return "", true
}

func checkMetadata(meta *types.SubmissionMetadata, req types.MetadataRequirements) []types.ValidationError {
	var m types.SubmissionMetadata
	if meta != nil {
		m = *meta
	}
	checks := []struct {
		required bool
		name     string
		value    string
	}{
		{req.SourceStatement, "source_statement", m.SourceStatement},
		{req.MethodDescription, "method_description", m.MethodDescription},
		{req.CoverageWindow, "coverage_window", m.CoverageWindow},
		{req.License, "license", m.License},
		{req.ContactInfo, "contact_info", m.ContactInfo},
	}

	var out []types.ValidationError
	for _, c := range checks {
		if !c.required || !isEmpty(c.value) {
			continue
		}
		out = append(out, types.ValidationError{
			Field:    "metadata." + c.name,
			Message:  fmt.Sprintf("required metadata %q is missing", c.name),
			Severity: types.SeverityError,
		})
	}
	return out
}

func describe(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case bool:
		return "boolean"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func countSeverity(errs []types.ValidationError, sev types.Severity) int {
	n := 0
	for _, e := range errs {
		if e.Severity == sev {
			n++
		}
	}
	return n
}
