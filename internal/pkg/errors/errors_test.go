package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: sheet products is not configured",
		NotFound("sheet products is not configured").Error())

	wrapped := DatabaseError(errors.New("connection reset"))
	assert.Equal(t, "DATABASE_ERROR: database operation failed - connection reset", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "connection reset")
}

func TestGetAppError_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("failed to read uploads/x.csv: %w", NotFound("file uploads/x.csv not found"))

	appErr, ok := GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
	assert.True(t, HasCode(err, ErrCodeNotFound))
	assert.False(t, HasCode(err, ErrCodeConflict))
	assert.True(t, IsAppError(err))
	assert.False(t, IsAppError(errors.New("plain")))
}

func TestRunLocked_CarriesSheet(t *testing.T) {
	err := RunLocked("products")

	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.Equal(t, "products", err.Details["sheet"])
}

func TestConfigurationFaults(t *testing.T) {
	assert.Equal(t, `header rule "starts" on sku is not defined`, HeaderRuleUnknown("starts", "sku").Message)
	assert.Equal(t, `underscore pointer for "variants" is not declared`, UnderscorePointer("variants").Message)
	assert.Equal(t, "The supplied XML structure processing is not yet available", UnsupportedStructure("XML").Message)
	assert.Equal(t, http.StatusInternalServerError, ConfigInvalid("x").StatusCode)
}
