package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

type testRequest struct {
	Model    string        `json:"model"`
	Messages []testMessage `json:"messages" validate:"required,min=1,dive"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := testRequest{Messages: []testMessage{{Role: "user", Content: "hi"}}}
		assert.NoError(t, ValidateStruct(&s))
	})

	t.Run("missing messages", func(t *testing.T) {
		err := ValidateStruct(&testRequest{})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "messages is required", fields["messages"])
	})

	t.Run("empty messages", func(t *testing.T) {
		err := ValidateStruct(&testRequest{Messages: []testMessage{}})
		require.Error(t, err)
		assert.Contains(t, GetValidationFields(err)["messages"], "at least 1")
	})

	t.Run("invalid nested role uses json path", func(t *testing.T) {
		s := testRequest{Messages: []testMessage{{Role: "user"}, {Role: "tool"}}}
		err := ValidateStruct(&s)
		require.Error(t, err)

		fields := GetValidationFields(err)
		assert.Equal(t, "messages[1].role must be one of: system user assistant", fields["messages[1].role"])
		assert.Len(t, fields, 1)
	})
}

func TestIsValidationError(t *testing.T) {
	assert.False(t, IsValidationError(nil))
	assert.False(t, IsValidationError(assert.AnError))
	assert.Nil(t, GetValidationFields(assert.AnError))
}
