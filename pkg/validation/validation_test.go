package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title    string `validate:"required,min=3,no_emoji"`
	Timezone string `validate:"required,timezone"`
	Provider string `validate:"provider_name"`
}

func TestValidators(t *testing.T) {
	v := New()

	t.Run("Accepts a valid struct", func(t *testing.T) {
		err := v.Struct(sample{Title: "Backend interview", Timezone: "Asia/Jakarta", Provider: "google"})
		assert.NoError(t, err)
	})

	t.Run("Rejects emoji and unknown timezone", func(t *testing.T) {
		err := v.Struct(sample{Title: "Interview 🎉", Timezone: "Mars/Base", Provider: "google"})
		require.Error(t, err)
		msgs := FormatValidationErrors(err)
		assert.Contains(t, msgs, "Title must not contain emoji")
		assert.Contains(t, msgs, "Timezone must be an IANA timezone such as Asia/Tokyo")
	})

	t.Run("Rejects uppercase provider names", func(t *testing.T) {
		err := v.Struct(sample{Title: "Interview", Timezone: "UTC", Provider: "Google"})
		require.Error(t, err)
		assert.Equal(t, []string{"Calendar provider is not a valid provider name"}, FormatValidationErrors(err))
	})
}
