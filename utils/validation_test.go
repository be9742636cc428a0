package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"omitempty,gte=1,lte=50"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct passes", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(&sampleRequest{Query: "hello", TopK: 5}))
	})

	t.Run("missing required field reports the field", func(t *testing.T) {
		err := ValidateStruct(&sampleRequest{})
		require.Error(t, err)
		require.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Contains(t, fields, "Query")
		assert.Contains(t, fields["Query"], "required")
	})

	t.Run("range violations are described", func(t *testing.T) {
		err := ValidateStruct(&sampleRequest{Query: "hello", TopK: 99})
		require.Error(t, err)

		fields := GetValidationFields(err)
		assert.Contains(t, fields, "TopK")
	})
}

func TestValidationErrorHelpers(t *testing.T) {
	t.Run("plain errors are not validation errors", func(t *testing.T) {
		assert.False(t, IsValidationError(errors.New("plain")))
		assert.Nil(t, GetValidationFields(errors.New("plain")))
	})
}
