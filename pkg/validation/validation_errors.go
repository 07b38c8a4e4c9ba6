package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldLabels maps struct field names to user-facing labels
var FieldLabels = map[string]string{
	"OwnerCompanyID":  "Company",
	"CandidateID":     "Candidate",
	"Provider":        "Calendar provider",
	"Title":           "Title",
	"Description":     "Description",
	"Start":           "Start time",
	"End":             "End time",
	"Timezone":        "Timezone",
	"Attendees":       "Attendees",
	"RequestKey":      "Request key",
	"ExpectedVersion": "Expected version",
}

// FormatValidationErrors converts validator.ValidationErrors to readable messages
func FormatValidationErrors(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleError(e))
	}
	return messages
}

func formatSingleError(e validator.FieldError) string {
	label := fieldLabel(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", label)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.ReplaceAll(e.Param(), " ", ", "))
	case "timezone":
		return fmt.Sprintf("%s must be an IANA timezone such as Asia/Tokyo", label)
	case "email":
		return fmt.Sprintf("%s must contain valid email addresses", label)
	case "no_emoji":
		return fmt.Sprintf("%s must not contain emoji", label)
	case "provider_name":
		return fmt.Sprintf("%s is not a valid provider name", label)
	}
	return fmt.Sprintf("%s is invalid", label)
}

func fieldLabel(field string) string {
	if label, ok := FieldLabels[field]; ok {
		return label
	}
	return field
}
