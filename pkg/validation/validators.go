package validation

import (
	"unicode"

	"github.com/go-playground/validator/v10"
)

// New returns a validator with the project's custom tags registered.
func New() *validator.Validate {
	v := validator.New()
	RegisterValidators(v)
	return v
}

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("no_emoji", NoEmoji)
	_ = v.RegisterValidation("provider_name", ProviderName)
}

// NoEmoji validates that a string does not contain emoji characters.
// Calendar titles are mirrored to third-party calendars and mail subjects.
func NoEmoji(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, r := range val {
		if r > 0x1F000 {
			return false
		}
		if unicode.In(r, unicode.So, unicode.Sk) {
			return false
		}
	}
	return true
}

// ProviderName accepts lowercase ascii identifiers such as "google".
func ProviderName(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" || len(val) > 32 {
		return false
	}
	for _, r := range val {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}
