package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataQualityFlags_HasIssues(t *testing.T) {
	assert.False(t, DataQualityFlags{}.HasIssues())
	assert.True(t, DataQualityFlags{MissingFXRate: true}.HasIssues())
	assert.True(t, DataQualityFlags{InvalidFXRate: true}.HasIssues())
}

func TestDataQualityFlags_String(t *testing.T) {
	assert.Empty(t, DataQualityFlags{}.String())

	pair := "GBP/XAF"
	flags := DataQualityFlags{MissingFXRate: true, FXCurrencyPair: &pair, InvalidFXRate: true}
	s := flags.String()
	assert.Contains(t, s, "GBP/XAF")
	assert.Contains(t, s, "invalid FX rate")
}

func TestDataQualityFlags_ScanRoundTrip(t *testing.T) {
	pair := "GBP/XAF"
	original := DataQualityFlags{MissingFXRate: true, FXCurrencyPair: &pair}

	value, err := original.Value()
	require.NoError(t, err)

	var decoded DataQualityFlags
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, original, decoded)

	var fromNil DataQualityFlags
	require.NoError(t, fromNil.Scan(nil))
	assert.Equal(t, DataQualityFlags{}, fromNil)

	assert.Error(t, decoded.Scan(42))
}
