package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

func TestRuleValidator_Validate(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]string
		rules    map[string]string
		expected []string
	}{
		{
			name:     "valid row",
			data:     map[string]string{"sku": "A1", "price": "9.99"},
			rules:    map[string]string{"sku": "required", "price": "required|numeric|min:0"},
			expected: nil,
		},
		{
			name:     "missing required",
			data:     map[string]string{"price": "9.99"},
			rules:    map[string]string{"sku": "required"},
			expected: []string{"The sku field is required."},
		},
		{
			name:     "empty required",
			data:     map[string]string{"sku": ""},
			rules:    map[string]string{"sku": "required|min:2"},
			expected: []string{"The sku field is required."},
		},
		{
			name:     "filled only applies when present",
			data:     map[string]string{"note": ""},
			rules:    map[string]string{"note": "filled", "other": "filled"},
			expected: []string{"The note field must have a value."},
		},
		{
			name:     "empty optional value skips rules",
			data:     map[string]string{"price": ""},
			rules:    map[string]string{"price": "numeric|min:1"},
			expected: nil,
		},
		{
			name:     "numeric",
			data:     map[string]string{"price": "ten"},
			rules:    map[string]string{"price": "numeric|min:1"},
			expected: []string{"The price field must be a number."},
		},
		{
			name:     "integer",
			data:     map[string]string{"stock": "1.5"},
			rules:    map[string]string{"stock": "integer"},
			expected: []string{"The stock field must be an integer."},
		},
		{
			name:     "numeric bounds",
			data:     map[string]string{"price": "-1", "stock": "500"},
			rules:    map[string]string{"price": "numeric|min:0", "stock": "integer|max:100"},
			expected: []string{"The price field must be at least 0.", "The stock field must not be greater than 100."},
		},
		{
			name:     "string length bounds",
			data:     map[string]string{"name": "Wi", "code": "ABCDEF"},
			rules:    map[string]string{"name": "string|min:3", "code": "max:4"},
			expected: []string{"The code field must not be greater than 4 characters.", "The name field must be at least 3 characters."},
		},
		{
			name:     "in",
			data:     map[string]string{"status": "archived"},
			rules:    map[string]string{"status": "in:active, inactive"},
			expected: []string{"The selected status is invalid."},
		},
		{
			name:     "regex",
			data:     map[string]string{"sku": "a-1"},
			rules:    map[string]string{"sku": "regex:/^[A-Z][0-9]+$/"},
			expected: []string{"The sku field format is invalid."},
		},
		{
			name:     "regex with flags and escaped pipe",
			data:     map[string]string{"size": "m"},
			rules:    map[string]string{"size": `regex:/^(S\|M\|L)$/i`},
			expected: nil,
		},
		{
			name:     "boolean and date",
			data:     map[string]string{"active": "maybe", "since": "2024-02-30"},
			rules:    map[string]string{"active": "boolean", "since": "date"},
			expected: []string{"The active field must be true or false.", "The since field must be a valid date."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRuleValidator()
			messages, err := v.Validate(context.Background(), "POST", tt.data, tt.rules)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, messages)
		})
	}
}

func TestRuleValidator_UnknownRule(t *testing.T) {
	v := NewRuleValidator()

	err := v.Check(map[string]string{"sku": "required|uuid"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfigInvalid))

	_, err = v.Validate(context.Background(), "PUT", map[string]string{"sku": "A1"}, map[string]string{"sku": "min:abc"})
	assert.Error(t, err)
}

func TestRuleValidator_CachesParsedRules(t *testing.T) {
	v := NewRuleValidator()
	rules := map[string]string{"price": "numeric"}

	_, err := v.Validate(context.Background(), "POST", map[string]string{"price": "1"}, rules)
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), "POST", map[string]string{"price": "2"}, rules)
	require.NoError(t, err)

	assert.Len(t, v.cache, 1)
}

func TestRuleValidator_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRuleValidator().Validate(ctx, "POST", map[string]string{}, map[string]string{"sku": "required"})
	assert.ErrorIs(t, err, context.Canceled)
}
