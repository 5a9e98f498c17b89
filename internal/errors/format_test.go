package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	// Given: an error with a suggestion
	err := IndexLocked("/data/noteindex")

	// When: formatting for CLI
	result := FormatForCLI(err)

	// Then: message, hint and code are present
	assert.Contains(t, result, "Error: index is locked by another process")
	assert.Contains(t, result, "Hint:")
	assert.Contains(t, result, "Code: ERR_204_INDEX_LOCKED")
}

func TestFormatForCLI_StandardErrorIsWrapped(t *testing.T) {
	result := FormatForCLI(errors.New("plain failure"))

	assert.Contains(t, result, "plain failure")
	assert.Contains(t, result, ErrCodeInternal)
}

func TestFormatForCLI_Nil(t *testing.T) {
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON_RoundTripsFields(t *testing.T) {
	// Given: a storage error with a cause
	err := StorageIO("commit", errors.New("no space left on device"))

	// When: formatting as JSON
	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	// Then: fields are present
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ErrCodeStorageIO, got["code"])
	assert.Equal(t, "STORAGE", got["category"])
	assert.Equal(t, "no space left on device", got["cause"])
	assert.Equal(t, false, got["retryable"])
}

func TestLogAttrs_SortsDetails(t *testing.T) {
	// Given: an error with several details
	err := New(ErrCodeInvalidInput, "bad", nil).
		WithDetail("zeta", "1").
		WithDetail("alpha", "2")

	// When: building log attributes
	attrs := LogAttrs(err)

	// Then: detail attributes come last in key order
	require.Len(t, attrs, 6)
	assert.Equal(t, "detail_alpha", attrs[4].Key)
	assert.Equal(t, "detail_zeta", attrs[5].Key)
}

func TestLogAttrs_StandardError(t *testing.T) {
	attrs := LogAttrs(errors.New("oops"))

	require.Len(t, attrs, 1)
	assert.Equal(t, "error", attrs[0].Key)
	assert.Equal(t, "oops", attrs[0].Value.String())
}
